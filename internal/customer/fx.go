package customer

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer",
	fx.Provide(service.NewLookup),
)
