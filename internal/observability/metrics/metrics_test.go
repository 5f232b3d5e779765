package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "razorpay"),
		attribute.String("donation_id", "456"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "donation_id" {
			t.Fatalf("expected donation_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordInboundNotification(ctx, "phonepe", "callback", "deferred")
	m.RecordStatusQuery(ctx, "phonepe", "unavailable")
	m.RecordTransition(ctx, "provider_a_order", "success")
	m.RecordConflictingStatus(ctx, "success", "failed")
	m.RecordInitiationFailure(ctx, "razorpay", "provider_rejected")
	m.RecordRateLimitDenied(ctx, "/donations", "limit_exceeded")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "donara-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordStatusQuery(context.Background(), "phonepe", "success")
}

func TestCountersRecordFilteredLabels(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordTransition(ctx, "upi_collect", "success")
	m.RecordTransition(ctx, "upi_collect", "success")
	m.RecordInboundNotification(ctx, " razorpay ", "webhook", "applied")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != "donara" {
			t.Fatalf("unexpected meter name %q", scope.Scope.Name)
		}
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
				if v, ok := dp.Attributes.Value("provider"); ok && v.AsString() != "razorpay" {
					t.Fatalf("provider label not trimmed: %q", v.AsString())
				}
			}
		}
	}
	if totals["donara_donation_transitions_total"] != 2 {
		t.Fatalf("transitions = %d", totals["donara_donation_transitions_total"])
	}
	if totals["donara_provider_notifications_total"] != 1 {
		t.Fatalf("notifications = %d", totals["donara_provider_notifications_total"])
	}
}
