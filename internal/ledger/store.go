package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "dailydispatch/pkg/logx"
)

var (
	ErrClosed             = errors.New("ledger store closed")
	ErrUnsupportedVersion = errors.New("ledger schema version not supported")
)

// Store persists the Ledger of one campaign.
type Store interface {
	// Load returns the persisted ledger. A missing history is an empty
	// ledger, not an error.
	Load(ctx context.Context) (*Ledger, error)
	// Persist replaces the persisted ledger with l as a whole.
	Persist(ctx context.Context, l *Ledger) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (default): <Dir>/history_<campaign>.json
//   - "sqlite": database file at Path
type Config struct {
	Driver      string
	Dir         string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store for campaign.
func Open(cfg Config, campaign string, log logx.Logger) (Store, error) {
	if strings.TrimSpace(campaign) == "" {
		return nil, errors.New("ledger: campaign is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "ledger"), logx.String("campaign", campaign))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, campaign, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, campaign, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
