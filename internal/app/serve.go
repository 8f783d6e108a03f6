package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"dailydispatch/internal/config"
	"dailydispatch/internal/metrics"
	"dailydispatch/internal/observability"
	"dailydispatch/internal/scheduler"
	logx "dailydispatch/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

func scheduleEntries(cfg *config.Config) []scheduler.Entry {
	var out []scheduler.Entry
	for _, name := range cfg.CampaignNames() {
		if s := strings.TrimSpace(cfg.Campaigns[name].Schedule); s != "" {
			out = append(out, scheduler.Entry{Campaign: name, Schedule: s})
		}
	}
	return out
}

// Serve runs scheduled campaigns until ctx is done. It watches the config
// file, exposes metrics when serve.metrics_addr is set, and reports
// readiness to systemd when started as a notify service.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfgm.Get()
	loc, err := mapLocation(cfg)
	if err != nil {
		return setupErr("config", err)
	}
	entries := scheduleEntries(cfg)
	if len(entries) == 0 {
		a.log.Warn("no campaign has a schedule; serve will only watch the config")
	}

	sched := scheduler.New(func(ctx context.Context, campaign string) error {
		_, err := a.RunCampaign(ctx, campaign)
		return err
	}, loc, a.log)
	sched.Apply(entries, loc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.cfgm.Watch(gctx) })

	sub := a.cfgm.Subscribe(8)
	g.Go(func() error {
		defer a.cfgm.Unsubscribe(sub)
		a.applyLoop(gctx, sub, cfg, sched)
		return nil
	})

	events, unsub := a.bus.Subscribe(128)
	g.Go(func() error {
		defer unsub()
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("campaign", e.Campaign), logx.Time("time", e.Time))
			}
		}
	})

	if addr := strings.TrimSpace(cfg.Serve.MetricsAddr); addr != "" {
		col := metrics.New(a.log)
		g.Go(func() error { return col.Run(gctx, a.bus) })
		ops := observability.Config{
			Addr:          addr,
			Token:         cfg.Serve.Token,
			Pprof:         cfg.Serve.Pprof,
			AllowInsecure: cfg.Serve.AllowInsecure,
		}
		g.Go(func() error { return observability.Serve(gctx, ops, col.Handler(), a.log) })
	}

	sched.Start(gctx)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("serve started", logx.Int("schedules", len(entries)), logx.String("tz", loc.String()))

	<-gctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("serve stopping")

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	sched.Stop(sctx)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyLoop pushes reloaded configs into the logging service and the
// scheduler. Bursts are coalesced to the latest config.
func (a *App) applyLoop(ctx context.Context, sub chan *config.Config, last *config.Config, sched *scheduler.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}

			sections, fields, campaigns := config.SummarizeChange(last, next)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				last = next
				continue
			}
			fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
			a.log.Info("config change applied", fields...)

			if a.logs != nil && next.Logging != last.Logging {
				a.logs.Apply(mapLoggingConfig(next))
			}
			if len(campaigns) > 0 || next.Dispatch.Timezone != last.Dispatch.Timezone {
				loc, err := mapLocation(next)
				if err != nil {
					a.log.Warn("timezone rejected; keeping previous schedules", logx.Err(err))
				} else {
					sched.Apply(scheduleEntries(next), loc)
				}
			}
			last = next
		}
	}
}
