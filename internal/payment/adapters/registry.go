package adapters

import (
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/payment/domain"
)

type Registry struct {
	adapters map[domain.ProviderKind]domain.ProviderAdapter
}

func NewRegistry(adapters ...domain.ProviderAdapter) *Registry {
	registry := &Registry{adapters: map[domain.ProviderKind]domain.ProviderAdapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		kind := adapter.Kind()
		if kind == "" {
			continue
		}
		registry.adapters[kind] = adapter
	}
	return registry
}

func (r *Registry) ProviderExists(kind domain.ProviderKind) bool {
	if r == nil {
		return false
	}
	_, ok := r.adapters[kind]
	return ok
}

func (r *Registry) Adapter(kind domain.ProviderKind) (domain.ProviderAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// ForMethod resolves the adapter serving a donation method. The boolean is
// false for methods settled outside any provider.
func (r *Registry) ForMethod(method donationdomain.Method) (domain.ProviderAdapter, bool, error) {
	kind, ok := domain.KindForMethod(method)
	if !ok {
		return nil, false, nil
	}
	adapter, err := r.Adapter(kind)
	if err != nil {
		return nil, true, err
	}
	return adapter, true, nil
}
