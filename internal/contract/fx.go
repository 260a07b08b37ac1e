package contract

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/contract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.generator",
	fx.Provide(service.NewService),
)
