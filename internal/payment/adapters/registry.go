package adapters

import (
	"sort"
	"strings"

	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
)

// Registry holds the configured provider adapters, keyed by provider name.
// Adapters are constructed once at startup; lookups never branch on status
// strings.
type Registry struct {
	adapters map[string]paymentdomain.Adapter
}

func NewRegistry(list ...paymentdomain.Adapter) *Registry {
	registry := &Registry{adapters: make(map[string]paymentdomain.Adapter, len(list))}
	for _, adapter := range list {
		if adapter == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if name == "" {
			continue
		}
		registry.adapters[name] = adapter
	}
	return registry
}

func (r *Registry) Get(provider string) (paymentdomain.Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	return adapter, ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
