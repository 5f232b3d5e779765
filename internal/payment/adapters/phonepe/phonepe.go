package phonepe

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	payPath         = "/pg/v1/pay"
	statusPath      = "/pg/v1/status"
	maxResponseSize = 1 << 20

	RedirectPath = "/donations/phonepe/redirect"
	CallbackPath = "/donations/phonepe/callback"
)

type Adapter struct {
	providers     *config.ProvidersHolder
	client        *http.Client
	log           *zap.Logger
	publicBaseURL string
	newID         func() string
}

func NewAdapter(providers *config.ProvidersHolder, client *http.Client, publicBaseURL string, log *zap.Logger) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		providers:     providers,
		client:        client,
		log:           log.Named("payment.phonepe"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		newID: func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
		},
	}
}

func (a *Adapter) Kind() paymentdomain.ProviderKind {
	return paymentdomain.ProviderPhonePe
}

func (a *Adapter) settings() (config.PhonePeConfig, error) {
	cfg := a.providers.Get().PhonePe
	if !cfg.Enabled || cfg.MerchantID == "" || cfg.SaltKey == "" {
		return cfg, paymentdomain.ErrInvalidConfig
	}
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// checksum builds the X-VERIFY header value: sha256(payload + saltKey) + "###" + saltIndex.
func checksum(payload string, cfg config.PhonePeConfig) string {
	sum := sha256.Sum256([]byte(payload + cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + cfg.SaltIndex
}

type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
	Metadata              map[string]string `json:"metadata"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		RedirectInfo struct {
			URL string `json:"url"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type statusData struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	TransactionID         string            `json:"transactionId"`
	Amount                int64             `json:"amount"`
	State                 string            `json:"state"`
	Metadata              map[string]string `json:"metadata"`
}

func (a *Adapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.ProviderHandle, error) {
	cfg, err := a.settings()
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}

	merchantTxnID := a.newID()
	redirectURL := a.publicBaseURL + RedirectPath + "?merchantTransactionId=" + url.QueryEscape(merchantTxnID)
	callbackURL := a.publicBaseURL + CallbackPath

	payload, err := json.Marshal(payRequest{
		MerchantID:            cfg.MerchantID,
		MerchantTransactionID: merchantTxnID,
		MerchantUserID:        req.DonorID,
		Amount:                req.AmountMinor,
		RedirectURL:           redirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           callbackURL,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
		Metadata:              map[string]string{"donation_id": req.DonationID.String()},
	})
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}

	header := http.Header{}
	header.Set("X-VERIFY", checksum(encoded+payPath, cfg))

	env, err := a.do(ctx, cfg, http.MethodPost, payPath, body, header)
	if err != nil {
		return paymentdomain.ProviderHandle{}, err
	}
	if !env.Success {
		return paymentdomain.ProviderHandle{}, &paymentdomain.RejectedError{
			Provider: string(a.Kind()),
			Code:     env.Code,
			Message:  env.Message,
		}
	}

	var data payData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return paymentdomain.ProviderHandle{}, paymentdomain.ErrInvalidPayload
	}
	payURL := strings.TrimSpace(data.InstrumentResponse.RedirectInfo.URL)
	if payURL == "" {
		return paymentdomain.ProviderHandle{}, &paymentdomain.RejectedError{
			Provider: string(a.Kind()),
			Code:     env.Code,
			Message:  "pay response missing redirect url",
		}
	}

	return paymentdomain.ProviderHandle{
		DonationID:  req.DonationID,
		Provider:    a.Kind(),
		Reference:   merchantTxnID,
		RedirectURL: payURL,
		CallbackURL: callbackURL,
		ClientPayload: map[string]any{
			"redirect_url":            payURL,
			"merchant_transaction_id": merchantTxnID,
		},
	}, nil
}

// VerifyInbound never authenticates a callback. It only recovers the merchant
// transaction id so the caller can ask the status API what happened.
func (a *Adapter) VerifyInbound(ctx context.Context, n paymentdomain.InboundNotification) (paymentdomain.InboundResult, error) {
	var body struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(n.Body, &body); err != nil || strings.TrimSpace(body.Response) == "" {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidPayload
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body.Response))
	if err != nil {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidPayload
	}

	var env envelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidPayload
	}
	var data statusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return paymentdomain.InboundResult{}, paymentdomain.ErrInvalidPayload
	}
	reference := strings.TrimSpace(data.MerchantTransactionID)
	if reference == "" {
		return paymentdomain.InboundResult{}, paymentdomain.ErrMissingCorrelation
	}
	return paymentdomain.InboundResult{Reference: reference}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, reference string) (paymentdomain.VerifiedEvent, error) {
	cfg, err := a.settings()
	if err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return paymentdomain.VerifiedEvent{}, paymentdomain.ErrMissingCorrelation
	}

	path := statusPath + "/" + url.PathEscape(cfg.MerchantID) + "/" + url.PathEscape(reference)
	header := http.Header{}
	header.Set("X-VERIFY", checksum(path, cfg))
	header.Set("X-MERCHANT-ID", cfg.MerchantID)

	env, err := a.do(ctx, cfg, http.MethodGet, path, nil, header)
	if err != nil {
		return paymentdomain.VerifiedEvent{}, err
	}

	outcome := mapCode(env.Code)
	if requestRejected(env.Code) {
		a.log.Warn("phonepe rejected status query", zap.String("code", env.Code), zap.String("reference", reference))
	}
	event := paymentdomain.VerifiedEvent{
		Outcome:   outcome,
		Provider:  a.Kind(),
		Reference: reference,
		EventType: env.Code,
	}

	var data statusData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return paymentdomain.VerifiedEvent{}, paymentdomain.ErrInvalidPayload
		}
	}
	event.ProviderTransactionID = strings.TrimSpace(data.TransactionID)

	raw := strings.TrimSpace(data.Metadata["donation_id"])
	if raw == "" {
		return event, paymentdomain.ErrMissingCorrelation
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return event, paymentdomain.ErrMissingCorrelation
	}
	event.DonationID = id
	return event, nil
}

// mapCode folds PhonePe response codes into outcomes. Anything unrecognized is
// treated as pending so an unknown code never fails a payment.
// AUTHORIZATION_FAILED and BAD_REQUEST reject our request (checksum or path),
// not the payment, so they stay pending too.
func mapCode(code string) donationdomain.Outcome {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAYMENT_SUCCESS":
		return donationdomain.OutcomeSuccess
	case "PAYMENT_PENDING", "INTERNAL_SERVER_ERROR", "AUTHORIZATION_FAILED", "BAD_REQUEST":
		return donationdomain.OutcomePending
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "PAYMENT_CANCELLED", "TIMED_OUT",
		"TRANSACTION_NOT_FOUND":
		return donationdomain.OutcomeFailure
	default:
		return donationdomain.OutcomePending
	}
}

func requestRejected(code string) bool {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "AUTHORIZATION_FAILED", "BAD_REQUEST":
		return true
	}
	return false
}

func (a *Adapter) do(ctx context.Context, cfg config.PhonePeConfig, method, path string, body []byte, header http.Header) (envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return envelope{}, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return envelope{}, &paymentdomain.UnavailableError{Provider: string(a.Kind()), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return envelope{}, &paymentdomain.UnavailableError{Provider: string(a.Kind()), Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return envelope{}, &paymentdomain.UnavailableError{
			Provider: string(a.Kind()),
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return envelope{}, &paymentdomain.RejectedError{Provider: string(a.Kind()), StatusCode: resp.StatusCode}
		}
		return envelope{}, paymentdomain.ErrInvalidPayload
	}

	// the status API answers 4xx with a code for unknown transactions; those are outcomes, not errors
	if resp.StatusCode >= 300 && method == http.MethodPost {
		a.log.Warn("phonepe request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", env.Code),
		)
		return envelope{}, &paymentdomain.RejectedError{
			Provider:   string(a.Kind()),
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Message,
		}
	}
	return env, nil
}

var _ paymentdomain.ProviderAdapter = (*Adapter)(nil)
