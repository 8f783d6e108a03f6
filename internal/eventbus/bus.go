// Package eventbus fans dispatch lifecycle events out to observers such as
// the metrics collector.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatch engine.
const (
	TypeRunStarted    = "dispatch.run_started"
	TypeSkipped       = "dispatch.skipped"
	TypeSent          = "dispatch.sent"
	TypeFailed        = "dispatch.failed"
	TypeRenderFailed  = "dispatch.render_failed"
	TypeAttemptFailed = "dispatch.attempt_failed"
	TypeRunDone       = "dispatch.run_done"
	TypePersistFailed = "dispatch.persist_failed"
)

// Event is an in-memory signal. Publish never blocks: subscribers read
// from buffered channels and a full buffer drops the event.
type Event struct {
	Type     string
	Time     time.Time
	Campaign string
	RunID    string
	Data     any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many deliveries were lost to full subscriber buffers.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
