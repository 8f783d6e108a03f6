package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "dailydispatch/pkg/logx"
)

type webhookPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Webhook posts each message to an HTTP endpoint. Any 2xx status is a
// delivery.
type Webhook struct {
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewWebhook(cfg WebhookConfig, log logx.Logger) (*Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("gateway.webhook.url must be an absolute http(s) URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Webhook{cfg: cfg, client: client, log: log}
	if cfg.RatePerSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return g, nil
}

func (g *Webhook) Send(ctx context.Context, phone, message string) error {
	if phone == "" {
		return ErrEmptyPhone
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	buf, err := json.Marshal(webhookPayload{Phone: phone, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if s := strings.TrimSpace(string(body)); s != "" {
			return fmt.Errorf("webhook status %d: %s", resp.StatusCode, s)
		}
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	g.log.Debug("webhook delivered message", logx.String("phone", phone), logx.Int("status", resp.StatusCode))
	return nil
}
