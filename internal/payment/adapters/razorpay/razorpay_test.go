package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	holder := config.NewStaticProvidersHolder(config.ProvidersConfig{
		Razorpay: config.RazorpayConfig{
			Enabled:       true,
			BaseURL:       baseURL,
			KeyID:         "rzp_test_key",
			KeySecret:     "rzp_test_secret",
			WebhookSecret: webhookSecret,
		},
	})
	return NewAdapter(holder, &http.Client{Timeout: time.Second}, zap.NewNop())
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func mustID(t *testing.T) snowflake.ID {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return node.Generate()
}

func TestInitiateCreatesOrderWithDonationNotes(t *testing.T) {
	donationID := mustID(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(25000), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, donationID.String(), body.Notes["donation_id"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_1", "amount": 25000, "currency": "INR", "status": "created"})
	}))
	defer server.Close()

	handle, err := newTestAdapter(t, server.URL).Initiate(context.Background(), paymentdomain.InitiateRequest{
		DonationID:  donationID,
		DonorID:     "uid-1",
		AmountMinor: 25000,
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", handle.Reference)
	assert.Equal(t, "order_1", handle.ClientPayload["order_id"])
	assert.Equal(t, "rzp_test_key", handle.ClientPayload["key_id"])
}

func TestInitiateClassifiesFailures(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
		}))
		defer server.Close()

		_, err := newTestAdapter(t, server.URL).Initiate(context.Background(), paymentdomain.InitiateRequest{DonationID: mustID(t), AmountMinor: 1, Currency: "INR"})
		assert.ErrorIs(t, err, paymentdomain.ErrProviderRejected)
		var rejected *paymentdomain.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "amount too small", rejected.Message)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestAdapter(t, server.URL).Initiate(context.Background(), paymentdomain.InitiateRequest{DonationID: mustID(t), AmountMinor: 100, Currency: "INR"})
		assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := newTestAdapter(t, url).Initiate(context.Background(), paymentdomain.InitiateRequest{DonationID: mustID(t), AmountMinor: 100, Currency: "INR"})
		assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	})
}

func webhookBody(t *testing.T, event string, donationID snowflake.ID) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       "pay_1",
					"order_id": "order_1",
					"status":   "captured",
					"notes":    map[string]any{"donation_id": donationID.String()},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestVerifyInboundMapsEvents(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	donationID := mustID(t)

	cases := map[string]donationdomain.Outcome{
		"payment.captured":   donationdomain.OutcomeSuccess,
		"order.paid":         donationdomain.OutcomeSuccess,
		"payment.failed":     donationdomain.OutcomeFailure,
		"payment.authorized": donationdomain.OutcomePending,
	}
	for event, want := range cases {
		t.Run(event, func(t *testing.T) {
			body := webhookBody(t, event, donationID)
			header := http.Header{}
			header.Set(signatureHeader, sign(body))

			result, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: body, Header: header})
			require.NoError(t, err)
			require.False(t, result.RequiresQuery())
			assert.Equal(t, want, result.Event.Outcome)
			assert.Equal(t, donationID, result.Event.DonationID)
			assert.Equal(t, "pay_1", result.Event.ProviderTransactionID)
			assert.Equal(t, "order_1", result.Event.Reference)
		})
	}
}

func TestVerifyInboundRejectsTampering(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	body := webhookBody(t, "payment.captured", mustID(t))

	header := http.Header{}
	_, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: body, Header: header})
	assert.ErrorIs(t, err, paymentdomain.ErrAuthenticityRejected)

	header.Set(signatureHeader, sign(body))
	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = ' '
	_, err = adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: tampered, Header: header})
	assert.ErrorIs(t, err, paymentdomain.ErrAuthenticityRejected)
}

func TestVerifyInboundIgnoresUnknownEvents(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	body := webhookBody(t, "refund.created", mustID(t))
	header := http.Header{}
	header.Set(signatureHeader, sign(body))

	_, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: body, Header: header})
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestVerifyInboundFallsBackToOrderReceipt(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	donationID := mustID(t)
	body, err := json.Marshal(map[string]any{
		"event": "order.paid",
		"payload": map[string]any{
			"payment": map[string]any{"entity": map[string]any{"id": "pay_9", "order_id": "order_9", "notes": []any{}}},
			"order":   map[string]any{"entity": map[string]any{"id": "order_9", "receipt": donationID.String()}},
		},
	})
	require.NoError(t, err)
	header := http.Header{}
	header.Set(signatureHeader, sign(body))

	result, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: body, Header: header})
	require.NoError(t, err)
	assert.Equal(t, donationID, result.Event.DonationID)
}

func TestQueryStatus(t *testing.T) {
	donationID := mustID(t)
	cases := []struct {
		name     string
		payments string
		want     donationdomain.Outcome
		txn      string
	}{
		{"captured", `{"count":2,"items":[{"id":"pay_a","status":"failed"},{"id":"pay_b","status":"captured"}]}`, donationdomain.OutcomeSuccess, "pay_b"},
		{"all failed", `{"count":1,"items":[{"id":"pay_a","status":"failed"}]}`, donationdomain.OutcomeFailure, "pay_a"},
		{"no attempts", `{"count":0,"items":[]}`, donationdomain.OutcomePending, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/v1/orders/order_1":
					_, _ = w.Write([]byte(`{"id":"order_1","receipt":"` + donationID.String() + `","notes":{"donation_id":"` + donationID.String() + `"}}`))
				case "/v1/orders/order_1/payments":
					_, _ = w.Write([]byte(tc.payments))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()

			event, err := newTestAdapter(t, server.URL).QueryStatus(context.Background(), "order_1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, event.Outcome)
			assert.Equal(t, tc.txn, event.ProviderTransactionID)
			assert.Equal(t, donationID, event.DonationID)
		})
	}
}
