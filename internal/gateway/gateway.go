// Package gateway delivers one rendered message to one phone number.
//
// A Gateway is synchronous and single-channel: Send returns once the
// delivery attempt has finished. The dispatch engine never calls Send
// concurrently, retries failures itself and treats every non-nil error as a
// failed attempt.
//
// # Drivers
//
//   - "command": runs an external delivery program per message
//   - "webhook": POSTs {"phone","message"} JSON to an HTTP endpoint
//   - "log": dry run, logs the message and succeeds
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	logx "dailydispatch/pkg/logx"
)

var ErrEmptyPhone = errors.New("gateway: empty phone")

// Gateway attempts a single delivery.
type Gateway interface {
	Send(ctx context.Context, phone, message string) error
}

// Func adapts a plain function to Gateway.
type Func func(ctx context.Context, phone, message string) error

func (f Func) Send(ctx context.Context, phone, message string) error { return f(ctx, phone, message) }

type Config struct {
	Driver  string
	Command CommandConfig
	Webhook WebhookConfig
}

type CommandConfig struct {
	Path      string
	Args      []string
	WaitTime  time.Duration
	CloseTime time.Duration
	Timeout   time.Duration // 0 disables
}

type WebhookConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration // default 15s
	RatePerSec int           // 0 disables client-side limiting

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Open builds the configured gateway.
func Open(cfg Config, log logx.Logger) (Gateway, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "gateway"))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "log":
		return NewLog(log), nil
	case "command":
		return NewCommand(cfg.Command, log)
	case "webhook":
		return NewWebhook(cfg.Webhook, log)
	default:
		return nil, fmt.Errorf("unknown gateway driver: %s", driver)
	}
}

// Log is the dry-run gateway.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (g *Log) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if phone == "" {
		return ErrEmptyPhone
	}
	g.log.Info("dry run: message not sent",
		logx.String("phone", phone),
		logx.Int("chars", len([]rune(message))),
		logx.String("message", message),
	)
	return nil
}
