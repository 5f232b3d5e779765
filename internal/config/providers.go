package config

import (
	"errors"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RazorpayConfig holds order-push provider credentials.
type RazorpayConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	KeyID         string `mapstructure:"key_id"`
	KeySecret     string `mapstructure:"key_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// PhonePeConfig holds redirect-poll provider credentials.
type PhonePeConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	MerchantID string `mapstructure:"merchant_id"`
	SaltKey    string `mapstructure:"salt_key"`
	SaltIndex  string `mapstructure:"salt_index"`
}

type ProvidersConfig struct {
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
	PhonePe  PhonePeConfig  `mapstructure:"phonepe"`
}

func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Razorpay: RazorpayConfig{
			BaseURL: "https://api.razorpay.com",
		},
		PhonePe: PhonePeConfig{
			BaseURL:   "https://api-preprod.phonepe.com/apis/pg-sandbox",
			SaltIndex: "1",
		},
	}
}

// ProvidersHolder keeps the latest provider configuration. Secrets are re-read on file change.
type ProvidersHolder struct {
	current atomic.Value // holds ProvidersConfig
}

// NewStaticProvidersHolder wraps a fixed configuration, used by tests and tooling.
func NewStaticProvidersHolder(cfg ProvidersConfig) *ProvidersHolder {
	holder := &ProvidersHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewProvidersHolder(log *zap.Logger) (*ProvidersHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.providers")

	v := viper.New()
	if path := strings.TrimSpace(os.Getenv("DONARA_PROVIDERS_FILE")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("providers")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/donara")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DONARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setProviderDefaults(v, DefaultProvidersConfig())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
		log.Info("providers config file not found, using defaults and environment")
	}

	cfg, err := unmarshalProviders(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticProvidersHolder(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := unmarshalProviders(v)
			if err != nil {
				log.Warn("providers config reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("providers config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *ProvidersHolder) Get() ProvidersConfig {
	if h == nil {
		return ProvidersConfig{}
	}
	cfg, _ := h.current.Load().(ProvidersConfig)
	return cfg
}

func setProviderDefaults(v *viper.Viper, d ProvidersConfig) {
	v.SetDefault("providers.razorpay.enabled", d.Razorpay.Enabled)
	v.SetDefault("providers.razorpay.base_url", d.Razorpay.BaseURL)
	v.SetDefault("providers.razorpay.key_id", d.Razorpay.KeyID)
	v.SetDefault("providers.razorpay.key_secret", d.Razorpay.KeySecret)
	v.SetDefault("providers.razorpay.webhook_secret", d.Razorpay.WebhookSecret)
	v.SetDefault("providers.phonepe.enabled", d.PhonePe.Enabled)
	v.SetDefault("providers.phonepe.base_url", d.PhonePe.BaseURL)
	v.SetDefault("providers.phonepe.merchant_id", d.PhonePe.MerchantID)
	v.SetDefault("providers.phonepe.salt_key", d.PhonePe.SaltKey)
	v.SetDefault("providers.phonepe.salt_index", d.PhonePe.SaltIndex)
}

func unmarshalProviders(v *viper.Viper) (ProvidersConfig, error) {
	var cfg ProvidersConfig
	if err := v.UnmarshalKey("providers", &cfg); err != nil {
		return ProvidersConfig{}, err
	}
	if err := validateProvidersConfig(cfg); err != nil {
		return ProvidersConfig{}, err
	}
	return cfg, nil
}

func validateProvidersConfig(cfg ProvidersConfig) error {
	if cfg.Razorpay.Enabled {
		if strings.TrimSpace(cfg.Razorpay.KeyID) == "" || strings.TrimSpace(cfg.Razorpay.KeySecret) == "" {
			return errors.New("providers.razorpay requires key_id and key_secret")
		}
		if strings.TrimSpace(cfg.Razorpay.WebhookSecret) == "" {
			return errors.New("providers.razorpay.webhook_secret cannot be empty")
		}
	}
	if cfg.PhonePe.Enabled {
		if strings.TrimSpace(cfg.PhonePe.MerchantID) == "" || strings.TrimSpace(cfg.PhonePe.SaltKey) == "" {
			return errors.New("providers.phonepe requires merchant_id and salt_key")
		}
	}
	return nil
}
