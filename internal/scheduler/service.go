package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "dailydispatch/pkg/logx"
)

// RunFunc runs one campaign to completion.
type RunFunc func(ctx context.Context, campaign string) error

// Entry binds a campaign to its schedule.
type Entry struct {
	Campaign string
	Schedule string
}

var (
	ErrAlreadyQueued = errors.New("campaign already running or queued")
	ErrQueueFull     = errors.New("run queue full")
)

const queueSize = 16

// Service triggers campaigns from cron. Cron jobs only enqueue; a single
// worker runs campaigns one at a time, so schedule changes and Stop never
// wait for a campaign to finish.
type Service struct {
	run RunFunc
	log logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	entries []Entry
	ids     map[cron.EntryID]string
	quit    chan struct{}
	done    chan struct{}

	queue   chan string
	pmu     sync.Mutex
	pending map[string]bool
}

func New(run RunFunc, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		run:     run,
		loc:     loc,
		log:     log.With(logx.String("comp", "scheduler")),
		queue:   make(chan string, queueSize),
		pending: map[string]bool{},
	}
}

// Start begins triggering and starts the run worker. Runs receive ctx, so
// cancelling it interrupts an in-progress campaign.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.worker(ctx, s.quit, s.done)
	s.c = s.newCronLocked()
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.ids)))
}

// Apply replaces the schedule set and time zone, swapping cron when it is
// running. A campaign already queued or running is left alone.
func (s *Service) Apply(entries []Entry, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.mu.Lock()
	s.entries = append([]Entry(nil), entries...)
	s.loc = loc
	old := s.c
	if old != nil {
		s.c = s.newCronLocked()
		s.c.Start()
	}
	n := len(s.ids)
	s.mu.Unlock()

	if old != nil {
		old.Stop()
		s.log.Info("schedules applied", logx.String("tz", loc.String()), logx.Int("schedules", n))
	}
}

func (s *Service) newCronLocked() *cron.Cron {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	s.ids = map[cron.EntryID]string{}
	for _, e := range s.entries {
		spec, err := ParseSchedule(e.Schedule)
		if err != nil {
			s.log.Warn("schedule ignored", logx.String("campaign", e.Campaign), logx.Err(err))
			continue
		}
		campaign := e.Campaign
		id, err := c.AddFunc(spec, func() { s.trigger(campaign) })
		if err != nil {
			s.log.Warn("schedule ignored", logx.String("campaign", campaign), logx.Err(err))
			continue
		}
		s.ids[id] = campaign
	}
	return c
}

// Stop stops triggering and waits for the worker until ctx is done. A
// running campaign is interrupted through the ctx given to Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, quit, done := s.c, s.quit, s.done
	s.c, s.quit, s.done = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.Stop()
	close(quit)
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; campaign still running", logx.Err(ctx.Err()))
	}
}

// Next returns the next activation per campaign, sorted by time.
func (s *Service) Next() []Activation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	var out []Activation
	for _, e := range s.c.Entries() {
		out = append(out, Activation{Campaign: s.ids[e.ID], At: e.Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Activation is the next planned trigger time of one schedule.
type Activation struct {
	Campaign string
	At       time.Time
}

func (s *Service) trigger(campaign string) {
	if err := s.enqueue(campaign); err != nil {
		s.log.Warn("schedule trigger dropped", logx.String("campaign", campaign), logx.Err(err))
	}
}

func (s *Service) enqueue(campaign string) error {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.pending[campaign] {
		return ErrAlreadyQueued
	}
	select {
	case s.queue <- campaign:
		s.pending[campaign] = true
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case campaign := <-s.queue:
			s.runOne(ctx, campaign)
		}
	}
}

func (s *Service) runOne(ctx context.Context, campaign string) {
	defer func() {
		s.pmu.Lock()
		delete(s.pending, campaign)
		s.pmu.Unlock()
	}()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.log.Info("scheduled run started", logx.String("campaign", campaign))
	if err := s.run(ctx, campaign); err != nil {
		s.log.Error("scheduled run failed", logx.String("campaign", campaign), logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("scheduled run finished", logx.String("campaign", campaign), logx.Duration("took", time.Since(start)))
}
