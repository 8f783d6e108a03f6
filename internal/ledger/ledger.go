package ledger

import (
	"time"
)

// SchemaVersion is the current on-disk schema of a Ledger.
const SchemaVersion = 1

// StatusSuccess is the only status ever recorded.
const StatusSuccess = "success"

const dateLayout = "2006-01-02"

// Key is a deterministic idempotency key.
type Key string

// DeliveryRecord describes one successful delivery.
type DeliveryRecord struct {
	Name    string        `json:"name"`
	Phone   string        `json:"phone"`
	SentAt  time.Time     `json:"sent_at"`
	Date    string        `json:"date"` // YYYY-MM-DD, calendar day of the send
	Status  string        `json:"status"`
	Weekday *time.Weekday `json:"weekday,omitempty"`
}

// Ledger is the in-memory delivery history of one campaign.
//
// It is owned by a single run and is not safe for concurrent use.
type Ledger struct {
	SchemaVersion int                    `json:"schema_version"`
	Campaign      string                 `json:"campaign"`
	Entries       map[Key]DeliveryRecord `json:"entries"`
}

func New(campaign string) *Ledger {
	return &Ledger{
		SchemaVersion: SchemaVersion,
		Campaign:      campaign,
		Entries:       map[Key]DeliveryRecord{},
	}
}

// KeyFor derives the idempotency key for a phone on the calendar day of at.
// The caller decides the time zone by passing at in the desired location.
func KeyFor(phone string, at time.Time, campaign string) Key {
	return Key(phone + "_" + at.Format(dateLayout) + "_" + campaign)
}

// NewRecord builds the success record for a delivery made at sentAt.
func NewRecord(name, phone string, sentAt time.Time) DeliveryRecord {
	wd := sentAt.Weekday()
	return DeliveryRecord{
		Name:    name,
		Phone:   phone,
		SentAt:  sentAt,
		Date:    sentAt.Format(dateLayout),
		Status:  StatusSuccess,
		Weekday: &wd,
	}
}

func (l *Ledger) Contains(key Key) bool {
	if l == nil {
		return false
	}
	_, ok := l.Entries[key]
	return ok
}

// Record inserts or overwrites the record for key.
func (l *Ledger) Record(key Key, rec DeliveryRecord) {
	if l.Entries == nil {
		l.Entries = map[Key]DeliveryRecord{}
	}
	l.Entries[key] = rec
}

func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// Prune removes entries whose delivery date is strictly before
// now - retentionDays (calendar days in now's location) and returns how many
// were removed. retentionDays <= 0 disables pruning. Entries without a usable
// date are kept.
func (l *Ledger) Prune(now time.Time, retentionDays int) int {
	if l == nil || retentionDays <= 0 {
		return 0
	}
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d-retentionDays, 0, 0, 0, 0, now.Location()).Format(dateLayout)

	removed := 0
	for k, rec := range l.Entries {
		date := rec.Date
		if date == "" && !rec.SentAt.IsZero() {
			date = rec.SentAt.In(now.Location()).Format(dateLayout)
		}
		if date == "" {
			continue
		}
		if date < cutoff {
			delete(l.Entries, k)
			removed++
		}
	}
	return removed
}
