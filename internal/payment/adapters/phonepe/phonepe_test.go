package phonepe

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
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

const (
	merchantID = "MERCHANTUAT"
	saltKey    = "salt-key"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	holder := config.NewStaticProvidersHolder(config.ProvidersConfig{
		PhonePe: config.PhonePeConfig{
			Enabled:    true,
			BaseURL:    baseURL,
			MerchantID: merchantID,
			SaltKey:    saltKey,
			SaltIndex:  "1",
		},
	})
	adapter := NewAdapter(holder, &http.Client{Timeout: time.Second}, "https://api.donara.test/", zap.NewNop())
	adapter.newID = func() string { return "01HZXMTID" }
	return adapter
}

func expectedChecksum(payload string) string {
	sum := sha256.Sum256([]byte(payload + saltKey))
	return hex.EncodeToString(sum[:]) + "###1"
}

func mustID(t *testing.T) snowflake.ID {
	t.Helper()
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return node.Generate()
}

func TestInitiateSignsPayRequest(t *testing.T) {
	donationID := mustID(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, payPath, r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, expectedChecksum(body["request"]+payPath), r.Header.Get("X-VERIFY"))

		decoded, err := base64.StdEncoding.DecodeString(body["request"])
		require.NoError(t, err)
		var pay payRequest
		require.NoError(t, json.Unmarshal(decoded, &pay))
		assert.Equal(t, merchantID, pay.MerchantID)
		assert.Equal(t, "01HZXMTID", pay.MerchantTransactionID)
		assert.Equal(t, int64(50000), pay.Amount)
		assert.Equal(t, "https://api.donara.test/donations/phonepe/redirect?merchantTransactionId=01HZXMTID", pay.RedirectURL)
		assert.Equal(t, "https://api.donara.test/donations/phonepe/callback", pay.CallbackURL)
		assert.Equal(t, "PAY_PAGE", pay.PaymentInstrument.Type)
		assert.Equal(t, donationID.String(), pay.Metadata["donation_id"])

		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","data":{"merchantTransactionId":"01HZXMTID","instrumentResponse":{"redirectInfo":{"url":"https://pay.phonepe.test/abc"}}}}`))
	}))
	defer server.Close()

	handle, err := newTestAdapter(t, server.URL).Initiate(context.Background(), paymentdomain.InitiateRequest{
		DonationID:  donationID,
		DonorID:     "uid-1",
		AmountMinor: 50000,
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "01HZXMTID", handle.Reference)
	assert.Equal(t, "https://pay.phonepe.test/abc", handle.RedirectURL)
	assert.Equal(t, "https://pay.phonepe.test/abc", handle.ClientPayload["redirect_url"])
}

func TestInitiateRejectedWhenUnsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"code":"BAD_REQUEST","message":"Please check the inputs"}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).Initiate(context.Background(), paymentdomain.InitiateRequest{DonationID: mustID(t), AmountMinor: 100})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderRejected)
}

func TestInitiateRequiresConfig(t *testing.T) {
	adapter := NewAdapter(config.NewStaticProvidersHolder(config.ProvidersConfig{}), nil, "https://api.donara.test", nil)
	_, err := adapter.Initiate(context.Background(), paymentdomain.InitiateRequest{DonationID: mustID(t), AmountMinor: 100})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := statusPath + "/" + merchantID + "/01HZXMTID"
		assert.Equal(t, path, r.URL.Path)
		assert.Equal(t, expectedChecksum(path), r.Header.Get("X-VERIFY"))
		assert.Equal(t, merchantID, r.Header.Get("X-MERCHANT-ID"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestQueryStatusMapsCodes(t *testing.T) {
	donationID := mustID(t)
	data := `{"merchantTransactionId":"01HZXMTID","transactionId":"T2403","metadata":{"donation_id":"` + donationID.String() + `"}}`
	cases := map[string]donationdomain.Outcome{
		"PAYMENT_SUCCESS":       donationdomain.OutcomeSuccess,
		"PAYMENT_PENDING":       donationdomain.OutcomePending,
		"INTERNAL_SERVER_ERROR": donationdomain.OutcomePending,
		"PAYMENT_ERROR":         donationdomain.OutcomeFailure,
		"PAYMENT_DECLINED":      donationdomain.OutcomeFailure,
		"TIMED_OUT":             donationdomain.OutcomeFailure,
		"AUTHORIZATION_FAILED":  donationdomain.OutcomePending,
		"BAD_REQUEST":           donationdomain.OutcomePending,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			server := statusServer(t, http.StatusOK, `{"success":true,"code":"`+code+`","data":`+data+`}`)
			defer server.Close()

			event, err := newTestAdapter(t, server.URL).QueryStatus(context.Background(), "01HZXMTID")
			require.NoError(t, err)
			assert.Equal(t, want, event.Outcome)
			assert.Equal(t, donationID, event.DonationID)
			assert.Equal(t, "T2403", event.ProviderTransactionID)
		})
	}
}

func TestQueryStatusUnavailableIsNeverFailure(t *testing.T) {
	server := statusServer(t, http.StatusServiceUnavailable, `upstream down`)
	defer server.Close()

	event, err := newTestAdapter(t, server.URL).QueryStatus(context.Background(), "01HZXMTID")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
	assert.NotEqual(t, donationdomain.OutcomeFailure, event.Outcome)
}

func TestQueryStatusWithoutMetadataCannotCorrelate(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{"success":false,"code":"TRANSACTION_NOT_FOUND","data":null}`)
	defer server.Close()

	event, err := newTestAdapter(t, server.URL).QueryStatus(context.Background(), "01HZXMTID")
	assert.ErrorIs(t, err, paymentdomain.ErrMissingCorrelation)
	assert.Equal(t, donationdomain.OutcomeFailure, event.Outcome)
}

func TestQueryStatusRejectedRequestIsNotFailure(t *testing.T) {
	server := statusServer(t, http.StatusUnauthorized, `{"success":false,"code":"AUTHORIZATION_FAILED","message":"Key not found","data":null}`)
	defer server.Close()

	event, err := newTestAdapter(t, server.URL).QueryStatus(context.Background(), "01HZXMTID")
	assert.ErrorIs(t, err, paymentdomain.ErrMissingCorrelation)
	assert.Equal(t, donationdomain.OutcomePending, event.Outcome)
}

func TestVerifyInboundExtractsTriggerOnly(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	inner := `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"01HZXMTID","transactionId":"T1"}}`
	body, err := json.Marshal(map[string]string{"response": base64.StdEncoding.EncodeToString([]byte(inner))})
	require.NoError(t, err)

	result, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: body, Header: http.Header{}})
	require.NoError(t, err)
	assert.True(t, result.RequiresQuery())
	assert.Equal(t, "01HZXMTID", result.Reference)
}

func TestVerifyInboundRejectsGarbage(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	for _, body := range []string{``, `{}`, `{"response":"%%%"}`, `not json`} {
		_, err := adapter.VerifyInbound(context.Background(), paymentdomain.InboundNotification{Body: []byte(body)})
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload, body)
	}
}
