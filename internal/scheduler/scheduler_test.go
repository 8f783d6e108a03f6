package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "dailydispatch/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		raw, want string
		ok        bool
	}{
		{"18:00", "0 18 * * *", true},
		{"7:05", "5 7 * * *", true},
		{"0 18 * * 1-5", "0 18 * * 1-5", true},
		{"@daily", "@daily", true},
		{"cron: */30 * * * * *", "*/30 * * * * *", true},
		{"24:00", "", false},
		{"", "", false},
		{"every day", "", false},
	}
	for _, c := range cases {
		got, err := ParseSchedule(c.raw)
		if (err == nil) != c.ok {
			t.Fatalf("ParseSchedule(%q) err = %v, want ok=%v", c.raw, err, c.ok)
		}
		if c.ok && got != c.want {
			t.Fatalf("ParseSchedule(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestTriggerSerializesAndDropsDuplicates(t *testing.T) {
	var (
		running atomic.Int32
		maxSeen atomic.Int32
		calls   sync.Map
	)
	release := make(chan struct{})
	started := make(chan string, 4)
	s := New(func(ctx context.Context, campaign string) error {
		n := running.Add(1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		v, _ := calls.LoadOrStore(campaign, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		started <- campaign
		<-release
		running.Add(-1)
		return nil
	}, time.UTC, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	s.trigger("report")
	waitStarted(t, started, "report")

	// Same campaign while running: dropped.
	if err := s.enqueue("report"); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("enqueue duplicate err = %v, want ErrAlreadyQueued", err)
	}

	// Different campaign: waits for the first to finish.
	s.trigger("congrats")
	time.Sleep(20 * time.Millisecond)
	if running.Load() != 1 {
		t.Fatalf("runs must be serialized, running = %d", running.Load())
	}

	close(release)
	waitStarted(t, started, "congrats")

	if maxSeen.Load() != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", maxSeen.Load())
	}
	if v, _ := calls.Load("report"); v.(*atomic.Int32).Load() != 1 {
		t.Fatalf("report ran %d times, want 1", v.(*atomic.Int32).Load())
	}
}

func TestApplyDoesNotWaitForRunningCampaign(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 1)
	s := New(func(ctx context.Context, campaign string) error {
		started <- campaign
		<-release
		return nil
	}, time.UTC, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())
	defer close(release)

	s.trigger("report")
	waitStarted(t, started, "report")

	applied := make(chan struct{})
	go func() {
		s.Apply([]Entry{{Campaign: "report", Schedule: "08:30"}}, time.UTC)
		close(applied)
	}()
	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("Apply blocked while a campaign was running")
	}
	if next := s.Next(); len(next) != 1 || next[0].Campaign != "report" {
		t.Fatalf("Next after Apply = %+v", next)
	}
}

func TestStopHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan string, 1)
	s := New(func(ctx context.Context, campaign string) error {
		started <- campaign
		<-release
		return nil
	}, time.UTC, logx.Nop())
	s.Start(context.Background())

	s.trigger("report")
	waitStarted(t, started, "report")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		s.Stop(ctx)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop ignored its deadline")
	}
}

func TestStopInterruptsThroughStartContext(t *testing.T) {
	started := make(chan string, 1)
	s := New(func(ctx context.Context, campaign string) error {
		started <- campaign
		<-ctx.Done()
		return ctx.Err()
	}, time.UTC, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	s.trigger("report")
	waitStarted(t, started, "report")
	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), time.Second)
	defer scancel()
	s.Stop(sctx)
	if sctx.Err() != nil {
		t.Fatal("worker did not exit after its context was cancelled")
	}
}

func waitStarted(t *testing.T, started <-chan string, want string) {
	t.Helper()
	select {
	case got := <-started:
		if got != want {
			t.Fatalf("started %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never started", want)
	}
}

func TestStartTriggersCron(t *testing.T) {
	fired := make(chan string, 8)
	s := New(func(ctx context.Context, campaign string) error {
		select {
		case fired <- campaign:
		default:
		}
		return nil
	}, time.UTC, logx.Nop())
	s.Apply([]Entry{{Campaign: "report", Schedule: "cron: * * * * * *"}, {Campaign: "bad", Schedule: "nope"}}, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if next := s.Next(); len(next) != 1 || next[0].Campaign != "report" {
		t.Fatalf("Next = %+v", next)
	}
	select {
	case got := <-fired:
		if got != "report" {
			t.Fatalf("fired %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("schedule never fired")
	}
}
