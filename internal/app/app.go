// Package app wires configuration, logging, storage, recipients, rendering,
// the gateway and the dispatch engine into the run, prune and serve
// commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dailydispatch/internal/config"
	"dailydispatch/internal/dispatch"
	"dailydispatch/internal/eventbus"
	"dailydispatch/internal/gateway"
	"dailydispatch/internal/ledger"
	"dailydispatch/internal/recipient"
	"dailydispatch/internal/render"
	"dailydispatch/internal/report"
	logx "dailydispatch/pkg/logx"
)

type Options struct {
	// DryRun replaces the configured gateway with the log gateway.
	DryRun bool

	// Out receives the printed report (default os.Stdout).
	Out io.Writer

	// Logger overrides the config-driven logging service (tests).
	Logger logx.Logger

	// Gateway overrides the configured gateway (tests).
	Gateway gateway.Gateway

	// Sleep and Now override the engine's timing (tests).
	Sleep dispatch.SleepFunc
	Now   func() time.Time
}

type App struct {
	cfgm *config.Manager
	opts Options

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus
	out  io.Writer
}

// New loads the configuration and starts logging.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, setupErr("config", err)
	}

	a := &App{
		cfgm: cfgm,
		opts: opts,
		bus:  eventbus.New(),
		out:  opts.Out,
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if !opts.Logger.IsZero() {
		a.log = opts.Logger
	} else {
		a.logs, a.log = logx.New(mapLoggingConfig(cfg))
	}
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.log = a.log.With(logx.String("comp", "app"))
	if a.logs != nil {
		a.log.Debug("config loaded", logx.String("path", cfgm.Path()), logx.String("log_file", a.logs.FilePath()))
	}
	return a, nil
}

func (a *App) Close() error {
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Bus() *eventbus.MemBus { return a.bus }

func (a *App) now() time.Time {
	if a.opts.Now != nil {
		return a.opts.Now()
	}
	return time.Now()
}

func (a *App) campaign(cfg *config.Config, name string) (config.CampaignConfig, error) {
	cc, ok := cfg.Campaigns[name]
	if !ok {
		return config.CampaignConfig{}, setupErr("campaign", fmt.Errorf("%w: %q (configured: %s)",
			ErrUnknownCampaign, name, strings.Join(cfg.CampaignNames(), ", ")))
	}
	return cc, nil
}

func (a *App) openHistory(cfg *config.Config, name string, cc config.CampaignConfig) (ledger.Store, *ledger.History, error) {
	lc, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, nil, setupErr("storage", err)
	}
	st, err := ledger.Open(lc, name, a.log)
	if err != nil {
		return nil, nil, setupErr("storage", err)
	}
	return st, ledger.NewHistory(st, name, retentionDays(cfg, cc), a.log), nil
}

// RunCampaign runs one campaign to completion and prints its report. The
// error is a *SetupError when nothing could be sent, and wraps
// dispatch.ErrInterrupted when ctx was cancelled mid-run.
func (a *App) RunCampaign(ctx context.Context, name string) (dispatch.Result, error) {
	cfg := a.cfgm.Get()
	log := a.log.With(logx.String("campaign", name))

	cc, err := a.campaign(cfg, name)
	if err != nil {
		return dispatch.Result{}, err
	}
	loc, err := mapLocation(cfg)
	if err != nil {
		return dispatch.Result{}, setupErr("config", err)
	}
	tag, err := mapLanguage(cfg)
	if err != nil {
		return dispatch.Result{}, setupErr("config", err)
	}

	tmpl := cc.Message
	if strings.TrimSpace(cc.Template) != "" {
		if tmpl, err = render.LoadTemplate(cc.Template); err != nil {
			return dispatch.Result{}, setupErr("template", err)
		}
	} else if _, err := render.Placeholders(tmpl); err != nil {
		return dispatch.Result{}, setupErr("template", err)
	}

	srcPath := sourcePath(cfg, cc)
	if srcPath == "" {
		return dispatch.Result{}, setupErr("source", errors.New("source.path is required"))
	}
	srcOpts, err := mapSourceOptions(cfg, cc, tag)
	if err != nil {
		return dispatch.Result{}, setupErr("source", err)
	}
	all, err := recipient.NewSource(srcPath, srcOpts, log).Load(ctx)
	if err != nil {
		return dispatch.Result{}, setupErr("source", err)
	}
	eligible := recipient.Eligible(all)

	gw := a.opts.Gateway
	if gw == nil {
		gc, err := mapGatewayConfig(cfg, a.opts.DryRun)
		if err != nil {
			return dispatch.Result{}, setupErr("gateway", err)
		}
		if gw, err = gateway.Open(gc, log); err != nil {
			return dispatch.Result{}, setupErr("gateway", err)
		}
	}

	st, hist, err := a.openHistory(cfg, name, cc)
	if err != nil {
		return dispatch.Result{}, err
	}
	defer st.Close()
	l, err := hist.Load(ctx, a.now().In(loc))
	if err != nil {
		return dispatch.Result{}, setupErr("history", err)
	}

	ec, err := mapEngineConfig(cfg, name, tmpl, loc)
	if err != nil {
		return dispatch.Result{}, setupErr("config", err)
	}
	engOpts := []dispatch.Option{dispatch.WithBus(a.bus), dispatch.WithLogger(a.log)}
	if a.opts.Sleep != nil {
		engOpts = append(engOpts, dispatch.WithSleep(a.opts.Sleep))
	}
	if a.opts.Now != nil {
		engOpts = append(engOpts, dispatch.WithClock(a.opts.Now))
	}
	eng, err := dispatch.New(ec, l, hist, render.New(mapRenderOptions(cfg, cc, tag, loc)), gw, engOpts...)
	if err != nil {
		return dispatch.Result{}, setupErr("engine", err)
	}

	log.Info("campaign starting",
		logx.Int("rows", len(all)),
		logx.Int("eligible", len(eligible)),
		logx.Bool("dry_run", a.opts.DryRun),
	)
	res, runErr := eng.Run(ctx, eligible)

	fmt.Fprint(a.out, report.SummarizeRun(res))
	report.Log(log, res)
	return res, runErr
}

// Prune loads a campaign's history, drops entries older than the retention
// window and writes it back. It returns how many entries were removed.
func (a *App) Prune(ctx context.Context, name string) (int, error) {
	cfg := a.cfgm.Get()
	cc, err := a.campaign(cfg, name)
	if err != nil {
		return 0, err
	}
	loc, err := mapLocation(cfg)
	if err != nil {
		return 0, setupErr("config", err)
	}
	st, _, err := a.openHistory(cfg, name, cc)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	l, err := st.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}
	days := retentionDays(cfg, cc)
	removed := l.Prune(a.now().In(loc), days)
	if err := st.Persist(ctx, l); err != nil {
		return removed, fmt.Errorf("persist history: %w", err)
	}
	a.log.Info("history pruned",
		logx.String("campaign", name),
		logx.Int("removed", removed),
		logx.Int("kept", l.Len()),
		logx.Int("retention_days", days),
	)
	return removed, nil
}
