package metricsexport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/internal/config"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_requests_total"}, []string{"route"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_pending"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_latency_seconds"})
	registry.MustRegister(counter, gauge, histogram)

	counter.WithLabelValues("/donations").Add(3)
	gauge.Set(7)
	histogram.Observe(0.2)

	families, err := registry.Gather()
	require.NoError(t, err)
	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		byName[s.Labels[0].Value] = s
	}
	requests := byName["test_requests_total"]
	require.Len(t, requests.Labels, 2)
	assert.Equal(t, "__name__", requests.Labels[0].Name)
	assert.Equal(t, "route", requests.Labels[1].Name)
	assert.Equal(t, 3.0, requests.Samples[0].Value)
	assert.Equal(t, int64(1000), requests.Samples[0].Timestamp)
	assert.Equal(t, 7.0, byName["test_pending"].Samples[0].Value)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	var auth, encoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		encoding = r.Header.Get("Content-Encoding")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_pending"})
	registry.MustRegister(gauge)
	gauge.Set(2)

	pusher := NewRemoteWritePusher(srv.URL, "secret", srv.Client())
	pusher.now = func() time.Time { return time.UnixMilli(5000) }
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "snappy", encoding)
	require.Len(t, got.Timeseries, 1)
	assert.Equal(t, 2.0, got.Timeseries[0].Samples[0].Value)
	assert.Equal(t, int64(5000), got.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_pending"})
	registry.MustRegister(gauge)

	err := NewRemoteWritePusher(srv.URL, "", srv.Client()).Push(context.Background(), registry)
	assert.ErrorContains(t, err, "400")
}

func TestNewPusherFromConfig(t *testing.T) {
	assert.Nil(t, NewPusher(config.Config{}, zap.NewNop()))

	cfg := config.Config{AppName: "donara", Metrics: config.MetricsExportConfig{Enabled: true, Exporter: ExporterPushgateway, Endpoint: "http://gateway:9091"}}
	_, ok := NewPusher(cfg, zap.NewNop()).(*PushgatewayPusher)
	assert.True(t, ok)

	cfg.Metrics.Exporter = ExporterRemoteWrite
	_, ok = NewPusher(cfg, zap.NewNop()).(*RemoteWritePusher)
	assert.True(t, ok)

	cfg.Metrics.Exporter = "statsd"
	_, err := newPusher(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Metrics.Exporter = ExporterRemoteWrite
	cfg.Metrics.Endpoint = ""
	_, err = newPusher(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDonationCollectorReadsTotals(t *testing.T) {
	dsn := fmt.Sprintf("file:metricsexport_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&donationdomain.Donation{}, &paymentdomain.NotificationRecord{}))

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	donations := []donationdomain.Donation{
		{ID: 1, DonorID: "a", OrphanageID: 9, Amount: decimal.RequireFromString("100.50"), Currency: "INR", Method: donationdomain.MethodProviderAOrder, Status: donationdomain.StatusSuccess, CreatedAt: now, UpdatedAt: now},
		{ID: 2, DonorID: "a", OrphanageID: 9, Amount: decimal.RequireFromString("49.50"), Currency: "INR", Method: donationdomain.MethodProviderAOrder, Status: donationdomain.StatusSuccess, CreatedAt: now, UpdatedAt: now},
		{ID: 3, DonorID: "b", OrphanageID: 9, Amount: decimal.NewFromInt(10), Currency: "INR", Method: donationdomain.MethodManualIntent, Status: donationdomain.StatusPending, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&donations).Error)
	require.NoError(t, db.Create(&paymentdomain.NotificationRecord{
		ID: 10, Provider: paymentdomain.ProviderRazorpay, Channel: paymentdomain.ChannelWebhook,
		State: paymentdomain.NotificationDeferred, ReceivedAt: now,
	}).Error)

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewDonationCollector(db, zap.NewNop(), prometheus.Labels{"service": "donara"}))
	families, err := registry.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, sample(t, families, "donara_donations", map[string]string{"status": "success"}))
	assert.Equal(t, 1.0, sample(t, families, "donara_donations", map[string]string{"status": "pending"}))
	assert.InDelta(t, 150.0, sample(t, families, "donara_donation_amount", map[string]string{"status": "success", "currency": "INR"}), 0.001)
	assert.Equal(t, 1.0, sample(t, families, "donara_provider_notifications", map[string]string{"state": "deferred"}))
	assert.Equal(t, 0.0, sample(t, families, "donara_metrics_collect_errors_total", nil))
}

func TestExporterDisabledWithoutPusher(t *testing.T) {
	exporter, err := NewExporter(ExporterParams{Cfg: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, exporter)
	assert.NoError(t, exporter.PushOnce(context.Background()))
}

func sample(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			if metric.GetGauge() != nil {
				return metric.GetGauge().GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, pair := range metric.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for key, value := range want {
		if got[key] != value {
			return false
		}
	}
	return true
}
