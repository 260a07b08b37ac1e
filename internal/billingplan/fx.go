package billingplan

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/billingplan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingplan.manager",
	fx.Provide(service.NewManager),
)
