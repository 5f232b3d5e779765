package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
)

type ProviderKind string

const (
	ProviderRazorpay ProviderKind = "razorpay"
	ProviderPhonePe  ProviderKind = "phonepe"
)

// ParseProviderKind normalizes a route segment or config key.
func ParseProviderKind(raw string) (ProviderKind, bool) {
	switch ProviderKind(raw) {
	case ProviderRazorpay, ProviderPhonePe:
		return ProviderKind(raw), true
	default:
		return "", false
	}
}

// KindForMethod reports which provider handles a donation method.
// manual_intent has none.
func KindForMethod(method donationdomain.Method) (ProviderKind, bool) {
	switch method {
	case donationdomain.MethodProviderAOrder:
		return ProviderRazorpay, true
	case donationdomain.MethodProviderBRedirect:
		return ProviderPhonePe, true
	default:
		return "", false
	}
}

type Channel string

const (
	ChannelWebhook  Channel = "webhook"
	ChannelCallback Channel = "callback"
	ChannelRedirect Channel = "redirect"
	ChannelRequery  Channel = "requery"
)

// ProviderAdapter speaks one provider's protocol. Implementations hold no
// donation state; correlation travels in the provider's echoed metadata.
type ProviderAdapter interface {
	Kind() ProviderKind
	Initiate(ctx context.Context, req InitiateRequest) (ProviderHandle, error)
	VerifyInbound(ctx context.Context, n InboundNotification) (InboundResult, error)
	QueryStatus(ctx context.Context, reference string) (VerifiedEvent, error)
}

type InitiateRequest struct {
	DonationID  snowflake.ID
	DonorID     string
	AmountMinor int64
	Currency    string
	ReceiptRef  string
}

type ProviderHandle struct {
	DonationID    snowflake.ID   `json:"donation_id"`
	Provider      ProviderKind   `json:"provider"`
	Reference     string         `json:"reference"`
	RedirectURL   string         `json:"redirect_url,omitempty"`
	CallbackURL   string         `json:"callback_url,omitempty"`
	ClientPayload map[string]any `json:"client_payload,omitempty"`
}

type InboundNotification struct {
	Body   []byte
	Header http.Header
}

// VerifiedEvent is a provider signal whose authenticity has been established,
// either by signature or by coming from an authenticated status query.
type VerifiedEvent struct {
	DonationID            snowflake.ID
	Outcome               donationdomain.Outcome
	ProviderTransactionID string
	Provider              ProviderKind
	Reference             string
	EventType             string
}

// InboundResult is either a verified event or a trigger naming the reference
// that must be re-queried before anything is applied.
type InboundResult struct {
	Event     *VerifiedEvent
	Reference string
}

// RequiresQuery reports whether the notification is only a trigger.
func (r InboundResult) RequiresQuery() bool {
	return r.Event == nil
}
