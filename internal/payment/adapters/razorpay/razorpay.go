package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	maxResponseSize = 1 << 20
)

type Adapter struct {
	providers *config.ProvidersHolder
	client    *http.Client
	log       *zap.Logger
}

func NewAdapter(providers *config.ProvidersHolder, client *http.Client, log *zap.Logger) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		providers: providers,
		client:    client,
		log:       log.Named("payment.razorpay"),
	}
}

func (a *Adapter) Kind() paymentdomain.ProviderKind {
	return paymentdomain.ProviderRazorpay
}

func (a *Adapter) settings() (config.RazorpayConfig, error) {
	cfg := a.providers.Get().Razorpay
	if !cfg.Enabled || cfg.KeyID == "" || cfg.KeySecret == "" {
		return cfg, paymentdomain.ErrInvalidConfig
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type orderResponse struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.ProviderHandle, error) {
	cfg, err := a.settings()
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}

	receipt := strings.TrimSpace(req.ReceiptRef)
	if receipt == "" {
		receipt = req.DonationID.String()
	}
	body, err := json.Marshal(orderRequest{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"donation_id": req.DonationID.String(),
			"donor_id":    req.DonorID,
		},
	})
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}

	var order orderResponse
	if err := a.do(ctx, cfg, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return paymentdomain.ProviderHandle{}, err
	}
	if strings.TrimSpace(order.ID) == "" {
		return paymentdomain.ProviderHandle{}, &paymentdomain.RejectedError{
			Provider: string(a.Kind()),
			Message:  "order response missing id",
		}
	}

	return paymentdomain.ProviderHandle{
		DonationID: req.DonationID,
		Provider:   a.Kind(),
		Reference:  order.ID,
		ClientPayload: map[string]any{
			"order_id": order.ID,
			"amount":   order.Amount,
			"currency": order.Currency,
			"key_id":   cfg.KeyID,
		},
	}, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderResponse `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Notes   json.RawMessage `json:"notes"`
}

func (a *Adapter) VerifyInbound(ctx context.Context, n paymentdomain.InboundNotification) (paymentdomain.InboundResult, error) {
	cfg := a.providers.Get().Razorpay
	if cfg.WebhookSecret == "" {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidConfig
	}

	signature := strings.TrimSpace(n.Header.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.InboundResult{}, paymentdomain.ErrAuthenticityRejected
	}
	mac := hmac.New(sha256.New, []byte(cfg.WebhookSecret))
	_, _ = mac.Write(n.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.InboundResult{}, paymentdomain.ErrAuthenticityRejected
	}

	var event webhookEvent
	if err := json.Unmarshal(n.Body, &event); err != nil {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidPayload
	}

	var outcome donationdomain.Outcome
	switch strings.TrimSpace(event.Event) {
	case "payment.captured", "order.paid":
		outcome = donationdomain.OutcomeSuccess
	case "payment.failed":
		outcome = donationdomain.OutcomeFailure
	case "payment.authorized":
		outcome = donationdomain.OutcomePending
	default:
		return paymentdomain.InboundResult{}, paymentdomain.ErrEventIgnored
	}

	var (
		payment paymentEntity
		order   orderResponse
	)
	if event.Payload.Payment != nil {
		payment = event.Payload.Payment.Entity
	}
	if event.Payload.Order != nil {
		order = event.Payload.Order.Entity
	}

	donationID, err := correlate(payment.Notes, order)
	if err != nil {
		return paymentdomain.InboundResult{}, err
	}

	reference := payment.OrderID
	if reference == "" {
		reference = order.ID
	}

	return paymentdomain.InboundResult{
		Event: &paymentdomain.VerifiedEvent{
			DonationID:            donationID,
			Outcome:               outcome,
			ProviderTransactionID: strings.TrimSpace(payment.ID),
			Provider:              a.Kind(),
			Reference:             reference,
			EventType:             event.Event,
		},
	}, nil
}

type paymentCollection struct {
	Count int             `json:"count"`
	Items []paymentEntity `json:"items"`
}

// QueryStatus reads the order and its payments. Any captured payment settles
// the donation; only a non-empty set of failed attempts fails it.
func (a *Adapter) QueryStatus(ctx context.Context, reference string) (paymentdomain.VerifiedEvent, error) {
	cfg, err := a.settings()
	if err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return paymentdomain.VerifiedEvent{}, paymentdomain.ErrMissingCorrelation
	}

	escaped := url.PathEscape(reference)
	var order orderResponse
	if err := a.do(ctx, cfg, http.MethodGet, "/v1/orders/"+escaped, nil, &order); err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}
	var payments paymentCollection
	if err := a.do(ctx, cfg, http.MethodGet, "/v1/orders/"+escaped+"/payments", nil, &payments); err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}

	event := paymentdomain.VerifiedEvent{
		Outcome:   donationdomain.OutcomePending,
		Provider:  a.Kind(),
		Reference: reference,
		EventType: "order.status",
	}
	failed := 0
	var notes json.RawMessage
	for _, item := range payments.Items {
		switch item.Status {
		case "captured":
			event.Outcome = donationdomain.OutcomeSuccess
			event.ProviderTransactionID = item.ID
			notes = item.Notes
		case "failed":
			failed++
		}
		if event.Outcome == donationdomain.OutcomeSuccess {
			break
		}
	}
	if event.Outcome != donationdomain.OutcomeSuccess && len(payments.Items) > 0 && failed == len(payments.Items) {
		event.Outcome = donationdomain.OutcomeFailure
		event.ProviderTransactionID = payments.Items[len(payments.Items)-1].ID
	}

	if len(notes) == 0 {
		notes = order.Notes
	}
	donationID, err := correlate(notes, order)
	if err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}
	event.DonationID = donationID
	return event, nil
}

func (a *Adapter) do(ctx context.Context, cfg config.RazorpayConfig, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(cfg.KeyID, cfg.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &paymentdomain.UnavailableError{Provider: string(a.Kind()), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &paymentdomain.UnavailableError{Provider: string(a.Kind()), Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return &paymentdomain.UnavailableError{
			Provider: string(a.Kind()),
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		a.log.Warn("razorpay request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Error.Code),
		)
		return &paymentdomain.RejectedError{
			Provider:   string(a.Kind()),
			StatusCode: resp.StatusCode,
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Description,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

// correlate recovers the donation id the order was created with.
func correlate(notes json.RawMessage, order orderResponse) (snowflake.ID, error) {
	candidates := []string{
		readNote(notes, "donation_id"),
		readNote(notes, "receipt"),
		readNote(order.Notes, "donation_id"),
		strings.TrimSpace(order.Receipt),
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		id, err := snowflake.ParseString(candidate)
		if err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, paymentdomain.ErrMissingCorrelation
}

// readNote tolerates notes sent as an empty array, which Razorpay does when none were set.
func readNote(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var notes map[string]any
	if err := json.Unmarshal(raw, &notes); err != nil {
		return ""
	}
	value, _ := notes[key].(string)
	return strings.TrimSpace(value)
}

var _ paymentdomain.ProviderAdapter = (*Adapter)(nil)
