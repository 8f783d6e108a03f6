package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Gateway  GatewayConfig  `json:"gateway"`
	Render   RenderConfig   `json:"render"`
	Source   SourceConfig   `json:"source"`

	// Campaigns maps a campaign name (e.g. "report", "congrats", "reminder")
	// to its template, eligibility filter and field formats.
	Campaigns map[string]CampaignConfig `json:"campaigns"`

	Serve ServeConfig `json:"serve,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls where the delivery history lives.
//
// Example:
//
//	"storage": { "driver": "file", "dir": "./history" }
//	"storage": { "driver": "sqlite", "path": "./history/dispatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Dir         string `json:"dir,omitempty"`          // file driver: one history_<campaign>.json per campaign
	Path        string `json:"path,omitempty"`         // sqlite driver: database file
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls the retry and throttle policy.
//
// Defaults (when fields are omitted/zero):
//   - max_attempts: 3
//   - backoff: "5s"
//   - throttle: "30s"
//   - retention_days: 30 (-1 disables pruning)
//   - persist_each_success: true
//   - timezone: local
type DispatchConfig struct {
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	Backoff       string `json:"backoff,omitempty"`
	Throttle      string `json:"throttle,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`

	// PersistEachSuccess is a pointer so an explicit false can be told apart
	// from an omitted field.
	PersistEachSuccess *bool `json:"persist_each_success,omitempty"`

	// Timezone decides the calendar day used for idempotency keys and
	// cron schedules (e.g. "America/Sao_Paulo").
	Timezone string `json:"timezone,omitempty"`
}

type GatewayConfig struct {
	// Driver is one of "command", "webhook" or "log".
	Driver  string               `json:"driver"`
	Command CommandGatewayConfig `json:"command,omitempty"`
	Webhook WebhookGatewayConfig `json:"webhook,omitempty"`
}

// CommandGatewayConfig runs an external delivery program once per message.
//
// "{phone}" inside Args is replaced by the recipient phone. The message is
// written to the program's stdin.
type CommandGatewayConfig struct {
	Path      string   `json:"path"`
	Args      []string `json:"args,omitempty"`
	WaitTime  string   `json:"wait_time,omitempty"`  // passed as DISPATCH_WAIT_TIME
	CloseTime string   `json:"close_time,omitempty"` // passed as DISPATCH_CLOSE_TIME
	Timeout   string   `json:"timeout,omitempty"`    // 0 disables
}

type WebhookGatewayConfig struct {
	URL        string `json:"url"`
	Token      string `json:"token,omitempty"` // bearer token (do not log)
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type RenderConfig struct {
	Locale         string `json:"locale,omitempty"`          // default "pt-BR"
	CurrencySymbol string `json:"currency_symbol,omitempty"` // default "R$"
}

// SourceConfig describes the recipient CSV.
type SourceConfig struct {
	Path        string `json:"path"`
	PhoneColumn string `json:"phone_column,omitempty"` // default "Telefone"
	NameColumn  string `json:"name_column,omitempty"`  // default "Nome"
	CountryCode string `json:"country_code,omitempty"` // default "+55"
	Delimiter   string `json:"delimiter,omitempty"`    // default ","
}

type CampaignConfig struct {
	// Exactly one of Template (file path) or Message (inline text) is set.
	Template string `json:"template,omitempty"`
	Message  string `json:"message,omitempty"`

	// Source overrides source.path for this campaign.
	Source string `json:"source,omitempty"`

	Eligibility *EligibilityConfig `json:"eligibility,omitempty"`

	// Fields declares the format of template variables taken from source
	// columns: "text", "number", "currency" or "percent".
	Fields map[string]string `json:"fields,omitempty"`

	// Schedule is a cron expression used by `serve` (empty: manual only).
	Schedule string `json:"schedule,omitempty"`

	// RetentionDays overrides dispatch.retention_days.
	RetentionDays int `json:"retention_days,omitempty"`
}

// EligibilityConfig keeps rows whose Column equals Equals (case-insensitive).
type EligibilityConfig struct {
	Column string `json:"column"`
	Equals string `json:"equals"`
}

// ServeConfig controls the ops HTTP server of serve mode.
type ServeConfig struct {
	// MetricsAddr enables /metrics and /healthz (e.g. "127.0.0.1:9464").
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// Token guards /metrics and pprof (bearer header or ?token=). Required
	// for non-loopback addresses unless AllowInsecure is set.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
