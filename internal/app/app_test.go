package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dailydispatch/internal/dispatch"
	"dailydispatch/internal/gateway"
	"dailydispatch/internal/ledger"
	logx "dailydispatch/pkg/logx"
)

var fixedNow = time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)

const contacts = `Nome,Telefone,META_BATIDA,Faturado_mes,Alcance
ana souza,11999990001,SIM,1234.5,0.5
bruno lima,11999990002,NÃO,10,0.25
carla dias,11999990003,sim,99,1
`

type sentLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *sentLog) gateway() gateway.Gateway {
	return gateway.Func(func(ctx context.Context, phone, message string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.msgs = append(s.msgs, phone+"|"+message)
		return nil
	})
}

type fixture struct {
	dir     string
	cfgPath string
	out     *bytes.Buffer
	sent    *sentLog
}

func newFixture(t *testing.T, campaigns string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, out: &bytes.Buffer{}, sent: &sentLog{}}
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	csvPath := write("contatos.csv", contacts)
	tplPath := write("message.txt", "Olá {Nome}, faturado {Faturado_mes}, alcance {Alcance}%")

	cfg := fmt.Sprintf(`{
  "logging": {"level": "debug"},
  "storage": {"driver": "file", "dir": %q},
  "dispatch": {"timezone": "UTC", "retention_days": 30},
  "gateway": {"driver": "log"},
  "source": {"path": %q},
  "campaigns": %s
}`, filepath.Join(dir, "history"), csvPath, strings.ReplaceAll(campaigns, "TEMPLATE", tplPath))
	f.cfgPath = write("dispatch.json", cfg)
	return f
}

func (f *fixture) app(t *testing.T) *App {
	t.Helper()
	a, err := New(f.cfgPath, Options{
		Out:     f.out,
		Logger:  logx.Nop(),
		Gateway: f.sent.gateway(),
		Sleep:   func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		Now:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

const campaignsJSON = `{
  "report": {
    "template": "TEMPLATE",
    "fields": {"Faturado_mes": "currency", "Alcance": "percent"}
  },
  "congrats": {
    "message": "Ei {Nome}, parabéns por bater a meta!",
    "eligibility": {"column": "META_BATIDA", "equals": "SIM"}
  }
}`

func TestRunCampaignDeliversAndRecords(t *testing.T) {
	f := newFixture(t, campaignsJSON)
	a := f.app(t)

	res, err := a.RunCampaign(context.Background(), "report")
	if err != nil {
		t.Fatalf("RunCampaign: %v", err)
	}
	if res.Counters != (dispatch.Counters{Successes: 3, Total: 3}) {
		t.Fatalf("counters = %+v", res.Counters)
	}
	if len(f.sent.msgs) != 3 || f.sent.msgs[0] != "+5511999990001|Olá Ana, faturado R$ 1.234,50, alcance 50.00%" {
		t.Fatalf("sent = %v", f.sent.msgs)
	}
	if !strings.Contains(f.out.String(), "Delivered:                 3") {
		t.Fatalf("report not printed:\n%s", f.out.String())
	}

	st, err := ledger.Open(ledger.Config{Dir: filepath.Join(f.dir, "history")}, "report", logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !l.Contains(ledger.KeyFor("+5511999990001", fixedNow, "report")) || l.Len() != 3 {
		t.Fatalf("ledger = %v", l.Entries)
	}

	again, err := a.RunCampaign(context.Background(), "report")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Counters != (dispatch.Counters{Skips: 3, Total: 3}) {
		t.Fatalf("second run counters = %+v", again.Counters)
	}
	if len(f.sent.msgs) != 3 {
		t.Fatalf("second run must not send, sent = %d", len(f.sent.msgs))
	}
}

func TestRunCampaignEligibilityFilter(t *testing.T) {
	f := newFixture(t, campaignsJSON)
	a := f.app(t)

	res, err := a.RunCampaign(context.Background(), "congrats")
	if err != nil {
		t.Fatalf("RunCampaign: %v", err)
	}
	if res.Counters.Total != 2 || res.Counters.Successes != 2 {
		t.Fatalf("counters = %+v", res.Counters)
	}
	for _, m := range f.sent.msgs {
		if strings.HasPrefix(m, "+5511999990002") {
			t.Fatal("ineligible recipient was sent a message")
		}
	}
}

func TestRunCampaignSetupErrors(t *testing.T) {
	cases := []struct {
		name, campaigns, run string
		target               error
	}{
		{
			name:      "unknown campaign",
			campaigns: campaignsJSON,
			run:       "weekly",
			target:    ErrUnknownCampaign,
		},
		{
			name:      "missing template",
			campaigns: `{"report": {"template": "/nonexistent/message.txt"}}`,
			run:       "report",
			target:    os.ErrNotExist,
		},
		{
			name:      "missing column",
			campaigns: `{"report": {"message": "{Nome} {Comissao}", "fields": {"Comissao": "currency"}}}`,
			run:       "report",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t, c.campaigns)
			a := f.app(t)
			_, err := a.RunCampaign(context.Background(), c.run)
			if !IsSetup(err) {
				t.Fatalf("expected SetupError, got %v", err)
			}
			if c.target != nil && !errors.Is(err, c.target) {
				t.Fatalf("expected %v in chain, got %v", c.target, err)
			}
			if len(f.sent.msgs) != 0 {
				t.Fatal("nothing may be sent on setup failure")
			}
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.json")
	if err := os.WriteFile(path, []byte(`{"campaigns": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(path, Options{Logger: logx.Nop()})
	if !IsSetup(err) {
		t.Fatalf("expected SetupError, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	f := newFixture(t, campaignsJSON)
	a := f.app(t)

	st, err := ledger.Open(ledger.Config{Dir: filepath.Join(f.dir, "history")}, "congrats", logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l := ledger.New("congrats")
	old := fixedNow.AddDate(0, 0, -45)
	recent := fixedNow.AddDate(0, 0, -10)
	l.Record(ledger.KeyFor("+1", old, "congrats"), ledger.NewRecord("Old", "+1", old))
	l.Record(ledger.KeyFor("+2", recent, "congrats"), ledger.NewRecord("Recent", "+2", recent))
	if err := st.Persist(context.Background(), l); err != nil {
		t.Fatal(err)
	}

	removed, err := a.Prune(context.Background(), "congrats")
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 || !got.Contains(ledger.KeyFor("+2", recent, "congrats")) {
		t.Fatalf("entries after prune = %v", got.Entries)
	}
}

func TestRunCampaignInterrupted(t *testing.T) {
	f := newFixture(t, campaignsJSON)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(f.cfgPath, Options{
		Out:     f.out,
		Logger:  logx.Nop(),
		Gateway: f.sent.gateway(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res, err := a.RunCampaign(ctx, "report")
	if !errors.Is(err, dispatch.ErrInterrupted) || IsSetup(err) {
		t.Fatalf("expected interruption, got %v", err)
	}
	if res.Counters.Successes != 1 {
		t.Fatalf("counters = %+v", res.Counters)
	}
	if !strings.Contains(f.out.String(), "INTERRUPTED") {
		t.Fatalf("report should flag the interruption:\n%s", f.out.String())
	}

	st, err := ledger.Open(ledger.Config{Dir: filepath.Join(f.dir, "history")}, "report", logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l, err := st.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("delivered recipient must be persisted, got %d entries", l.Len())
	}
}
