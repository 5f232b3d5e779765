package observability

import (
	"math"
	"strings"

	"github.com/smallbiznis/donara/internal/config"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http"
)

// Config is the normalized telemetry setup shared by the logger, the tracer
// and the otel meter.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TracingEnabled  bool
	MetricsEnabled  bool
	Endpoint        string
	TracesProtocol  string
	MetricsProtocol string
	SamplingRatio   float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "donara"
	}
	environment := strings.TrimSpace(t.DeploymentEnv)
	if environment == "" {
		environment = strings.TrimSpace(cfg.Environment)
	}
	endpoint := strings.TrimSpace(t.Endpoint)
	return Config{
		ServiceName:     serviceName,
		Environment:     environment,
		Version:         strings.TrimSpace(cfg.AppVersion),
		LogLevel:        normalize(t.LogLevel, "info"),
		LogFormat:       normalize(t.LogFormat, "json"),
		TracingEnabled:  t.OtelEnabled && endpoint != "",
		MetricsEnabled:  t.MetricsEnabled && endpoint != "",
		Endpoint:        endpoint,
		TracesProtocol:  normalizeProtocol(t.TracesProtocol),
		MetricsProtocol: normalizeProtocol(t.MetricsProtocol),
		SamplingRatio:   clampRatio(t.SamplingRatio),
	}
}

// Debug switches on console logs, stack traces and request dumps.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func normalize(value, def string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return def
	}
	return value
}

// normalizeProtocol accepts the OTLP spellings "grpc", "http" and
// "http/protobuf". Anything else falls back to grpc.
func normalizeProtocol(value string) string {
	switch normalize(value, protocolGRPC) {
	case protocolHTTP, "http/protobuf", "http/json":
		return protocolHTTP
	default:
		return protocolGRPC
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case math.IsNaN(ratio), ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
