package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the donation and provider counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	inboundNotifications metric.Int64Counter
	statusQueries        metric.Int64Counter
	statusTransitions    metric.Int64Counter
	conflictingStatus    metric.Int64Counter
	initiationFailures   metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.meterName())
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.inboundNotifications, "donara_provider_notifications_total", "Inbound provider webhooks and callbacks by outcome."},
		{&m.statusQueries, "donara_provider_status_queries_total", "Authoritative status queries by outcome."},
		{&m.statusTransitions, "donara_donation_transitions_total", "Applied terminal donation transitions."},
		{&m.conflictingStatus, "donara_donation_conflicting_status_total", "Rejected attempts to move a settled donation to another status."},
		{&m.initiationFailures, "donara_payment_initiation_failures_total", "Payment initiation failures by reason."},
		{&m.rateLimitDenied, "donara_rate_limit_denied_total", "Requests refused by a rate limit."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// labels builds attributes from key, value pairs.
func labels(kv ...string) metric.AddOption {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], strings.TrimSpace(kv[i+1])))
	}
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

// RecordInboundNotification counts inbound provider triggers by how they were handled.
func (m *Metrics) RecordInboundNotification(ctx context.Context, provider, channel, outcome string) {
	if m == nil {
		return
	}
	m.inboundNotifications.Add(ctx, 1, labels("provider", provider, "channel", channel, "outcome", outcome))
}

// RecordStatusQuery counts authoritative status queries. outcome "unavailable"
// is kept apart from "failure" so a provider outage never reads as declined
// payments.
func (m *Metrics) RecordStatusQuery(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.statusQueries.Add(ctx, 1, labels("provider", provider, "outcome", outcome))
}

func (m *Metrics) RecordTransition(ctx context.Context, method, status string) {
	if m == nil {
		return
	}
	m.statusTransitions.Add(ctx, 1, labels("method", method, "status", status))
}

func (m *Metrics) RecordConflictingStatus(ctx context.Context, current, attempted string) {
	if m == nil {
		return
	}
	m.conflictingStatus.Add(ctx, 1, labels("status", current, "attempted", attempted))
}

func (m *Metrics) RecordInitiationFailure(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	m.initiationFailures.Add(ctx, 1, labels("provider", provider, "reason", reason))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, labels("endpoint", endpoint, "reason", reason))
}

// Donation, order and provider transaction ids must never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":    {},
	"channel":     {},
	"outcome":     {},
	"method":      {},
	"status":      {},
	"attempted":   {},
	"endpoint":    {},
	"status_code": {},
	"route":       {},
	"reason":      {},
}

// FilterAttributes drops labels outside the allow list.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
