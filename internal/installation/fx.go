package installation

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/installation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("installation.service",
	fx.Provide(service.NewService),
)
