package payment

import (
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters/mercadopago"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters/paypal"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters/stripe"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/repository"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewAdapterRegistry),
	fx.Provide(service.NewService),
)

// NewAdapterRegistry wires one adapter per enabled gateway. Disabled gateways
// simply never appear in the registry; selecting one reports
// provider_not_found instead of failing at startup.
func NewAdapterRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	client := adapters.NewHTTPClient(cfg.GatewayTimeout)

	var list []paymentdomain.Adapter
	if gw, ok := cfg.Gateways["mercadopago"]; ok && gw.Enabled {
		list = append(list, mercadopago.New(gw, client, log))
	}
	if gw, ok := cfg.Gateways["stripe"]; ok && gw.Enabled {
		list = append(list, stripe.New(gw, client, log))
	}
	if gw, ok := cfg.Gateways["paypal"]; ok && gw.Enabled {
		list = append(list, paypal.New(gw, client, log))
	}
	return adapters.NewRegistry(list...)
}
