package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNoCampaigns = errors.New("config: no campaigns configured")

// Field formats understood by the renderer.
const (
	FormatText     = "text"
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatPercent  = "percent"
)

// Validate checks cross-field rules that strict decoding cannot express.
func (c *Config) Validate() error {
	if len(c.Campaigns) == 0 {
		return ErrNoCampaigns
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Gateway.Driver)) {
	case "", "log", "command", "webhook":
	default:
		return fmt.Errorf("gateway.driver: unknown driver %q", c.Gateway.Driver)
	}
	if c.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("dispatch.max_attempts: must be >= 0")
	}
	if c.Dispatch.RetentionDays < -1 {
		return fmt.Errorf("dispatch.retention_days: must be >= 0, or -1 to keep everything")
	}
	for _, f := range []struct{ path, raw string }{
		{"dispatch.backoff", c.Dispatch.Backoff},
		{"dispatch.throttle", c.Dispatch.Throttle},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"gateway.command.wait_time", c.Gateway.Command.WaitTime},
		{"gateway.command.close_time", c.Gateway.Command.CloseTime},
		{"gateway.command.timeout", c.Gateway.Command.Timeout},
		{"gateway.webhook.timeout", c.Gateway.Webhook.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	for _, name := range c.CampaignNames() {
		cc := c.Campaigns[name]
		path := "campaigns." + name
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\ `) {
			return fmt.Errorf("%s: invalid campaign name", path)
		}
		hasTpl := strings.TrimSpace(cc.Template) != ""
		hasMsg := strings.TrimSpace(cc.Message) != ""
		if hasTpl == hasMsg {
			return fmt.Errorf("%s: exactly one of template or message is required", path)
		}
		if cc.Eligibility != nil && strings.TrimSpace(cc.Eligibility.Column) == "" {
			return fmt.Errorf("%s.eligibility.column: required", path)
		}
		if cc.RetentionDays < -1 {
			return fmt.Errorf("%s.retention_days: must be >= 0, or -1 to keep everything", path)
		}
		for field, format := range cc.Fields {
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", FormatText, FormatNumber, FormatCurrency, FormatPercent:
			default:
				return fmt.Errorf("%s.fields.%s: unknown format %q", path, field, format)
			}
		}
	}
	return nil
}

// CampaignNames returns the configured campaign names in sorted order.
func (c *Config) CampaignNames() []string {
	out := make([]string, 0, len(c.Campaigns))
	for name := range c.Campaigns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
