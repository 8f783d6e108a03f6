package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./logs/dispatch_{date}.log
storage:
  driver: file
  dir: ./history
dispatch:
  max_attempts: 3
  backoff: 5s
  throttle: 30s
  retention_days: 30
gateway:
  driver: webhook
  webhook:
    url: http://127.0.0.1:8080/send
source:
  path: contatos.csv
  delimiter: ";"
campaigns:
  report:
    template: message.txt
    fields:
      Faturado_mes: currency
      Alcance: percent
  congrats:
    message: "Ei {Nome}, Parabéns por bater a sua meta diária!"
    eligibility:
      column: META_BATIDA
      equals: SIM
    schedule: "0 18 * * 1-6"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestManagerLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "dispatch.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
	if cfg.Gateway.Driver != "webhook" {
		t.Fatalf("gateway.driver = %q", cfg.Gateway.Driver)
	}
	if got := cfg.Campaigns["report"].Fields["Faturado_mes"]; got != FormatCurrency {
		t.Fatalf("report field format = %q", got)
	}
	if el := cfg.Campaigns["congrats"].Eligibility; el == nil || el.Equals != "SIM" {
		t.Fatalf("congrats eligibility = %+v", el)
	}
	if names := cfg.CampaignNames(); strings.Join(names, ",") != "congrats,report" {
		t.Fatalf("CampaignNames = %v", names)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("dispatch.json", []byte(`{"campaigns":{"a":{"message":"hi"}},"telegram":{}}`))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("dispatch.json", []byte(`{"campaigns":{"a":{"message":"hi"}}}{}`))
	if err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no campaigns", `{}`, "no campaigns"},
		{"template and message", `{"campaigns":{"a":{"message":"x","template":"t.txt"}}}`, "exactly one"},
		{"bad format", `{"campaigns":{"a":{"message":"x","fields":{"v":"money"}}}}`, "unknown format"},
		{"bad driver", `{"storage":{"driver":"redis"},"campaigns":{"a":{"message":"x"}}}`, "storage.driver"},
		{"bad duration", `{"dispatch":{"throttle":"soon"},"campaigns":{"a":{"message":"x"}}}`, "dispatch.throttle"},
		{"bad name", `{"campaigns":{"a b":{"message":"x"}}}`, "invalid campaign name"},
		{"bad retention", `{"dispatch":{"retention_days":-2},"campaigns":{"a":{"message":"x"}}}`, "dispatch.retention_days"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode("c.json", []byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_GATEWAY_DRIVER", "log")
	t.Setenv("DISPATCH_WEBHOOK_TOKEN", "secret")
	t.Setenv("DISPATCH_SOURCE_PATH", "/data/contacts.csv")

	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Gateway.Driver != "log" {
		t.Fatalf("gateway.driver = %q, want log", cfg.Gateway.Driver)
	}
	if cfg.Gateway.Webhook.Token != "secret" {
		t.Fatalf("webhook token not applied")
	}
	if cfg.Source.Path != "/data/contacts.csv" {
		t.Fatalf("source.path = %q", cfg.Source.Path)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("unset env should keep file value, got %q", cfg.Storage.Driver)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "0s", 5*time.Second)
	if err != nil || d != 0 {
		t.Fatalf("explicit zero: got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatal("expected negative duration error")
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	newCfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cc := newCfg.Campaigns["congrats"]
	cc.Schedule = "0 19 * * 1-6"
	newCfg.Campaigns["congrats"] = cc
	delete(newCfg.Campaigns, "report")

	sections, _, campaigns := SummarizeChange(oldCfg, newCfg)
	if strings.Join(sections, ",") != "campaigns" {
		t.Fatalf("sections = %v", sections)
	}
	if strings.Join(campaigns, ",") != "congrats,report" {
		t.Fatalf("campaigns = %v", campaigns)
	}
}

func TestValidateAcceptsRetentionSentinel(t *testing.T) {
	body := `{"dispatch":{"retention_days":-1},"campaigns":{"a":{"message":"x","retention_days":-1}}}`
	if _, err := Decode("c.json", []byte(body)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}
