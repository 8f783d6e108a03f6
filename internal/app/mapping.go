package app

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"dailydispatch/internal/config"
	"dailydispatch/internal/dispatch"
	"dailydispatch/internal/gateway"
	"dailydispatch/internal/ledger"
	"dailydispatch/internal/recipient"
	"dailydispatch/internal/render"
	logx "dailydispatch/pkg/logx"
)

const defaultRetentionDays = 30

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapLedgerConfig(cfg *config.Config) (ledger.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file":
		dir := strings.TrimSpace(sc.Dir)
		if dir == "" {
			dir = "."
		}
		return ledger.Config{Driver: "file", Dir: dir}, nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			return ledger.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return ledger.Config{}, err
		}
		return ledger.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return ledger.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapGatewayConfig(cfg *config.Config, dryRun bool) (gateway.Config, error) {
	gc := cfg.Gateway
	if dryRun {
		return gateway.Config{Driver: "log"}, nil
	}
	out := gateway.Config{Driver: strings.ToLower(strings.TrimSpace(gc.Driver))}
	var err error

	out.Command.Path = gc.Command.Path
	out.Command.Args = gc.Command.Args
	if out.Command.WaitTime, err = config.ParseDurationOrDefault("gateway.command.wait_time", gc.Command.WaitTime, 25*time.Second); err != nil {
		return gateway.Config{}, err
	}
	if out.Command.CloseTime, err = config.ParseDurationOrDefault("gateway.command.close_time", gc.Command.CloseTime, 15*time.Second); err != nil {
		return gateway.Config{}, err
	}
	if out.Command.Timeout, err = config.ParseDurationOrDefault("gateway.command.timeout", gc.Command.Timeout, 0); err != nil {
		return gateway.Config{}, err
	}

	out.Webhook.URL = gc.Webhook.URL
	out.Webhook.Token = gc.Webhook.Token
	out.Webhook.RatePerSec = gc.Webhook.RatePerSec
	if out.Webhook.Timeout, err = config.ParseDurationOrDefault("gateway.webhook.timeout", gc.Webhook.Timeout, 15*time.Second); err != nil {
		return gateway.Config{}, err
	}
	return out, nil
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Dispatch.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dispatch.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// retentionDays resolves the campaign override, then the global value, then
// the default. -1 maps to 0, which ledger.Prune treats as "keep everything".
func retentionDays(cfg *config.Config, cc config.CampaignConfig) int {
	days := defaultRetentionDays
	switch {
	case cc.RetentionDays != 0:
		days = cc.RetentionDays
	case cfg.Dispatch.RetentionDays != 0:
		days = cfg.Dispatch.RetentionDays
	}
	if days < 0 {
		return 0
	}
	return days
}

func mapEngineConfig(cfg *config.Config, name, tmpl string, loc *time.Location) (dispatch.Config, error) {
	dc := cfg.Dispatch
	backoff, err := config.ParseDurationOrDefault("dispatch.backoff", dc.Backoff, dispatch.DefaultBackoff)
	if err != nil {
		return dispatch.Config{}, err
	}
	throttle, err := config.ParseDurationOrDefault("dispatch.throttle", dc.Throttle, dispatch.DefaultThrottle)
	if err != nil {
		return dispatch.Config{}, err
	}
	// An explicit "0s" turns the pause off; the engine reads zero as default.
	if backoff == 0 {
		backoff = -1
	}
	if throttle == 0 {
		throttle = -1
	}
	persistEach := true
	if dc.PersistEachSuccess != nil {
		persistEach = *dc.PersistEachSuccess
	}
	return dispatch.Config{
		Campaign:           name,
		Template:           tmpl,
		MaxAttempts:        dc.MaxAttempts,
		Backoff:            backoff,
		Throttle:           throttle,
		PersistEachSuccess: persistEach,
		Location:           loc,
	}, nil
}

func mapLanguage(cfg *config.Config) (language.Tag, error) {
	raw := strings.TrimSpace(cfg.Render.Locale)
	if raw == "" {
		return language.BrazilianPortuguese, nil
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, fmt.Errorf("render.locale: invalid %q: %w", raw, err)
	}
	return tag, nil
}

func mapSourceOptions(cfg *config.Config, cc config.CampaignConfig, tag language.Tag) (recipient.Options, error) {
	sc := cfg.Source
	opts := recipient.Options{
		PhoneColumn: sc.PhoneColumn,
		NameColumn:  sc.NameColumn,
		CountryCode: sc.CountryCode,
		Fields:      cc.Fields,
		Language:    tag,
	}
	if d := sc.Delimiter; d != "" {
		if d == `\t` {
			d = "\t"
		}
		r, n := utf8.DecodeRuneInString(d)
		if n != len(d) || r == utf8.RuneError {
			return recipient.Options{}, fmt.Errorf("source.delimiter: must be a single character, got %q", sc.Delimiter)
		}
		opts.Delimiter = r
	}
	if e := cc.Eligibility; e != nil {
		opts.Eligibility = &recipient.Eligibility{Column: e.Column, Equals: e.Equals}
	}
	return opts, nil
}

func sourcePath(cfg *config.Config, cc config.CampaignConfig) string {
	if p := strings.TrimSpace(cc.Source); p != "" {
		return p
	}
	return strings.TrimSpace(cfg.Source.Path)
}

func mapRenderOptions(cfg *config.Config, cc config.CampaignConfig, tag language.Tag, loc *time.Location) render.Options {
	return render.Options{
		Locale:         tag,
		CurrencySymbol: cfg.Render.CurrencySymbol,
		Fields:         cc.Fields,
		Location:       loc,
	}
}
