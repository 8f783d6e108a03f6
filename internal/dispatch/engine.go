package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dailydispatch/internal/eventbus"
	"dailydispatch/internal/gateway"
	"dailydispatch/internal/ledger"
	"dailydispatch/internal/recipient"
	logx "dailydispatch/pkg/logx"
)

// Renderer builds the message for one recipient.
type Renderer interface {
	Render(tmpl string, rc recipient.Recipient, now time.Time) (string, error)
}

// Persister durably stores the ledger and reports whether it succeeded.
// *ledger.History satisfies it.
type Persister interface {
	Persist(ctx context.Context, l *ledger.Ledger) bool
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config is the per-campaign run policy. Zero values take the defaults;
// a negative Backoff or Throttle disables that pause.
type Config struct {
	Campaign    string
	Template    string
	MaxAttempts int           // default 3
	Backoff     time.Duration // between failed attempts; default 5s
	Throttle    time.Duration // between recipients; default 30s

	// PersistEachSuccess writes the ledger after every delivery in addition
	// to the final write at the end of the run.
	PersistEachSuccess bool

	// Location decides the calendar day of idempotency keys.
	Location *time.Location
}

// Engine delivers one campaign to an ordered recipient list, one recipient
// at a time. It is not safe for concurrent runs.
type Engine struct {
	cfg     Config
	ledger  *ledger.Ledger
	store   Persister
	render  Renderer
	gateway gateway.Gateway

	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
	sleep SleepFunc
}

// Option customizes an Engine built by New.
type Option func(*Engine)

// WithBus publishes lifecycle events to b (default: discarded).
func WithBus(b eventbus.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithLogger sets the engine logger (default: Nop).
func WithLogger(l logx.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock replaces time.Now for keys, records and durations.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithSleep replaces the ctx-aware timer used for backoff and throttle.
func WithSleep(s SleepFunc) Option { return func(e *Engine) { e.sleep = s } }

// New builds an engine that owns l for the duration of its runs.
func New(cfg Config, l *ledger.Ledger, store Persister, r Renderer, gw gateway.Gateway, opts ...Option) (*Engine, error) {
	if cfg.Campaign == "" {
		return nil, errors.New("dispatch: campaign is required")
	}
	if l == nil || store == nil || r == nil || gw == nil {
		return nil, errors.New("dispatch: ledger, persister, renderer and gateway are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	switch {
	case cfg.Backoff == 0:
		cfg.Backoff = DefaultBackoff
	case cfg.Backoff < 0:
		cfg.Backoff = 0
	}
	switch {
	case cfg.Throttle == 0:
		cfg.Throttle = DefaultThrottle
	case cfg.Throttle < 0:
		cfg.Throttle = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	e := &Engine{
		cfg:     cfg,
		ledger:  l,
		store:   store,
		render:  r,
		gateway: gw,
		bus:     eventbus.Nop{},
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "dispatch"), logx.String("campaign", cfg.Campaign))
	return e, nil
}

// Run processes recipients in order. The returned error is nil for a
// completed run, including one with nothing to do, and wraps ErrInterrupted
// when ctx was cancelled.
func (e *Engine) Run(ctx context.Context, recipients []recipient.Recipient) (Result, error) {
	res := Result{
		RunID:     uuid.NewString(),
		Campaign:  e.cfg.Campaign,
		StartedAt: e.now(),
	}
	res.Counters.Total = len(recipients)
	log := e.log.With(logx.String("run_id", res.RunID))

	log.Info("dispatch run started",
		logx.Int("recipients", len(recipients)),
		logx.Int("max_attempts", e.cfg.MaxAttempts),
		logx.Duration("backoff", e.cfg.Backoff),
		logx.Duration("throttle", e.cfg.Throttle),
	)
	e.publish(res.RunID, eventbus.TypeRunStarted, res.Counters)

	var runErr error
	for i, rc := range recipients {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := e.process(ctx, log, res.RunID, rc, &res.Counters); err != nil {
			runErr = err
			break
		}
		if i < len(recipients)-1 && e.cfg.Throttle > 0 {
			if err := e.sleep(ctx, e.cfg.Throttle); err != nil {
				runErr = err
				break
			}
		}
	}

	persistCtx := ctx
	if runErr != nil {
		res.Interrupted = true
		persistCtx = context.WithoutCancel(ctx)
		log.Warn("dispatch run interrupted; saving history",
			logx.Int("processed", res.Counters.Processed()),
			logx.Int("total", res.Counters.Total),
		)
	}
	res.Persisted = e.store.Persist(persistCtx, e.ledger)
	if !res.Persisted {
		e.publish(res.RunID, eventbus.TypePersistFailed, res.Counters)
	}
	res.FinishedAt = e.now()

	log.Info("dispatch run finished",
		logx.Int("successes", res.Counters.Successes),
		logx.Int("failures", res.Counters.Failures),
		logx.Int("skips", res.Counters.Skips),
		logx.Int("total", res.Counters.Total),
		logx.Bool("interrupted", res.Interrupted),
		logx.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	e.publish(res.RunID, eventbus.TypeRunDone, res)

	if runErr != nil {
		return res, fmt.Errorf("%w: %w", ErrInterrupted, runErr)
	}
	return res, nil
}

// process drives one recipient to a final state. It returns a non-nil error
// only when ctx was cancelled before the recipient reached a final state; the
// recipient is then left uncounted.
func (e *Engine) process(ctx context.Context, log logx.Logger, runID string, rc recipient.Recipient, c *Counters) error {
	now := e.now().In(e.cfg.Location)
	key := ledger.KeyFor(rc.Phone, now, e.cfg.Campaign)
	log = log.With(logx.String("phone", rc.Phone), logx.String("name", rc.Name))

	if e.ledger.Contains(key) {
		c.Skips++
		log.Info("already delivered today; skipping", logx.String("state", string(StateSkipped)))
		e.publish(runID, eventbus.TypeSkipped, Outcome{Phone: rc.Phone, Name: rc.Name, State: StateSkipped})
		return nil
	}

	msg, err := e.render.Render(e.cfg.Template, rc, now)
	if err != nil {
		c.Failures++
		log.Error("message render failed", logx.String("state", string(StateRenderFailed)), logx.Err(err))
		e.publish(runID, eventbus.TypeRenderFailed, Outcome{Phone: rc.Phone, Name: rc.Name, State: StateRenderFailed, Error: err.Error()})
		return nil
	}

	start := e.now()
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		log.Debug("sending", logx.String("state", string(StateSending)), logx.Int("attempt", attempt))
		err := e.gateway.Send(ctx, rc.Phone, msg)
		if err == nil {
			sentAt := e.now().In(e.cfg.Location)
			e.ledger.Record(key, ledger.NewRecord(rc.Name, rc.Phone, sentAt))
			c.Successes++
			log.Info("message delivered", logx.String("state", string(StateSent)), logx.Int("attempt", attempt))
			e.publish(runID, eventbus.TypeSent, Outcome{
				Phone: rc.Phone, Name: rc.Name, State: StateSent, Attempt: attempt, Duration: e.now().Sub(start),
			})
			if e.cfg.PersistEachSuccess {
				e.store.Persist(ctx, e.ledger)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		log.Warn("send attempt failed",
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", e.cfg.MaxAttempts),
			logx.Err(err),
		)
		e.publish(runID, eventbus.TypeAttemptFailed, Outcome{
			Phone: rc.Phone, Name: rc.Name, State: StateSending, Attempt: attempt, Error: err.Error(),
		})
		if attempt < e.cfg.MaxAttempts && e.cfg.Backoff > 0 {
			if err := e.sleep(ctx, e.cfg.Backoff); err != nil {
				return err
			}
		}
	}

	c.Failures++
	log.Error("delivery failed after retries",
		logx.String("state", string(StateFailed)),
		logx.Int("attempts", e.cfg.MaxAttempts),
		logx.Err(lastErr),
	)
	e.publish(runID, eventbus.TypeFailed, Outcome{
		Phone: rc.Phone, Name: rc.Name, State: StateFailed, Attempt: e.cfg.MaxAttempts,
		Error: lastErr.Error(), Duration: e.now().Sub(start),
	})
	return nil
}

func (e *Engine) publish(runID, typ string, data any) {
	e.bus.Publish(eventbus.Event{
		Type:     typ,
		Time:     e.now(),
		Campaign: e.cfg.Campaign,
		RunID:    runID,
		Data:     data,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
