package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvOverrides lists the settings that may be overridden from the
// environment. Empty values leave the file configuration untouched.
type EnvOverrides struct {
	LogLevel      string `env:"DISPATCH_LOG_LEVEL"`
	StorageDriver string `env:"DISPATCH_STORAGE_DRIVER"`
	StorageDir    string `env:"DISPATCH_STORAGE_DIR"`
	StoragePath   string `env:"DISPATCH_STORAGE_PATH"`
	GatewayDriver string `env:"DISPATCH_GATEWAY_DRIVER"`
	WebhookURL    string `env:"DISPATCH_WEBHOOK_URL"`
	WebhookToken  string `env:"DISPATCH_WEBHOOK_TOKEN"`
	SourcePath    string `env:"DISPATCH_SOURCE_PATH"`
	Timezone      string `env:"DISPATCH_TIMEZONE"`
	MetricsAddr   string `env:"DISPATCH_METRICS_ADDR"`
	OpsToken      string `env:"DISPATCH_OPS_TOKEN"`
}

// ApplyEnv overlays DISPATCH_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Dir, o.StorageDir)
	set(&cfg.Storage.Path, o.StoragePath)
	set(&cfg.Gateway.Driver, o.GatewayDriver)
	set(&cfg.Gateway.Webhook.URL, o.WebhookURL)
	set(&cfg.Gateway.Webhook.Token, o.WebhookToken)
	set(&cfg.Source.Path, o.SourcePath)
	set(&cfg.Dispatch.Timezone, o.Timezone)
	set(&cfg.Serve.MetricsAddr, o.MetricsAddr)
	set(&cfg.Serve.Token, o.OpsToken)
	return nil
}
