package reconciliation

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(service.NewService),
)
