package invoice

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.NewService),
)
