package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value
	}
	return out
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/donations/razorpay/webhook", func(c *gin.Context) {
		c.Set(obscontext.DonationIDKey, "42")
		c.Set(obscontext.ProviderKey, "razorpay")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/donations/razorpay/webhook", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "HTTP POST /donations/razorpay/webhook" {
		t.Fatalf("span name = %q", got)
	}
	attrs := attrMap(spans[0].Attributes())
	if attrs["donation.id"].AsString() != "42" || attrs["payment.provider"].AsString() != "razorpay" {
		t.Fatalf("missing handler attributes: %v", attrs)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatalf("2xx request must not mark the span as failed")
	}
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("upstream down\nraw body"))
		c.Status(http.StatusBadGateway)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
	events := spans[0].Events()
	if len(events) != 1 {
		t.Fatalf("expected one recorded error, got %d", len(events))
	}
	for _, a := range events[0].Attributes {
		if a.Key == "exception.message" && a.Value.AsString() != "upstream down" {
			t.Fatalf("error message not truncated: %q", a.Value.AsString())
		}
	}
}
