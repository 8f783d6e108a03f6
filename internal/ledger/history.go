package ledger

import (
	"context"
	"errors"
	"time"

	logx "dailydispatch/pkg/logx"
)

// History applies the run-level ledger policy on top of a Store.
type History struct {
	store         Store
	campaign      string
	retentionDays int
	log           logx.Logger
}

func NewHistory(store Store, campaign string, retentionDays int, log logx.Logger) *History {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &History{
		store:         store,
		campaign:      campaign,
		retentionDays: retentionDays,
		log:           log.With(logx.String("comp", "history"), logx.String("campaign", campaign)),
	}
}

// Load returns the persisted ledger pruned to the retention window.
// A missing or unreadable history yields an empty ledger. A history written
// by a newer schema is an error: starting empty would overwrite it on the
// next persist.
func (h *History) Load(ctx context.Context, now time.Time) (*Ledger, error) {
	l, err := h.store.Load(ctx)
	if errors.Is(err, ErrUnsupportedVersion) {
		return nil, err
	}
	if err != nil {
		h.log.Warn("history unreadable; starting with an empty ledger", logx.Err(err))
		l = New(h.campaign)
	}
	if l.Campaign == "" {
		l.Campaign = h.campaign
	}
	if removed := l.Prune(now, h.retentionDays); removed > 0 {
		h.log.Info("pruned old history entries",
			logx.Int("removed", removed),
			logx.Int("retention_days", h.retentionDays),
		)
	}
	h.log.Debug("history loaded", logx.Int("entries", l.Len()))
	return l, nil
}

// Persist writes l and reports whether it was stored. Failures are logged:
// deliveries already made stay counted, but a later run may repeat the ones
// that were not durably recorded.
func (h *History) Persist(ctx context.Context, l *Ledger) bool {
	if err := h.store.Persist(ctx, l); err != nil {
		h.log.Error("history persist failed", logx.Err(err), logx.Int("entries", l.Len()))
		return false
	}
	return true
}
