package adapters

import (
	"context"
	"testing"

	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ kind domain.ProviderKind }

func (s stubAdapter) Kind() domain.ProviderKind { return s.kind }

func (s stubAdapter) Initiate(context.Context, domain.InitiateRequest) (domain.ProviderHandle, error) {
	return domain.ProviderHandle{}, nil
}

func (s stubAdapter) VerifyInbound(context.Context, domain.InboundNotification) (domain.InboundResult, error) {
	return domain.InboundResult{}, nil
}

func (s stubAdapter) QueryStatus(context.Context, string) (domain.VerifiedEvent, error) {
	return domain.VerifiedEvent{}, nil
}

func TestRegistryForMethod(t *testing.T) {
	registry := NewRegistry(stubAdapter{kind: domain.ProviderPhonePe}, nil)

	adapter, needs, err := registry.ForMethod(donationdomain.MethodProviderBRedirect)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, domain.ProviderPhonePe, adapter.Kind())

	_, needs, err = registry.ForMethod(donationdomain.MethodManualIntent)
	require.NoError(t, err)
	assert.False(t, needs)

	_, needs, err = registry.ForMethod(donationdomain.MethodProviderAOrder)
	assert.True(t, needs)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	assert.False(t, registry.ProviderExists(domain.ProviderRazorpay))
	assert.True(t, registry.ProviderExists(domain.ProviderPhonePe))
}
