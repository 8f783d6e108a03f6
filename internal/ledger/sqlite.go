package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "dailydispatch/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db       *sql.DB
	log      logx.Logger
	campaign string
}

func openSQLite(cfg Config, campaign string, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &sqliteStore{db: db, log: log, campaign: campaign}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	var v string
	if err := s.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = 'schema_version'`).Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if n, err := strconv.Atoi(v); err != nil || n > SchemaVersion {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (*Ledger, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, phone, sent_at, date, status, weekday FROM deliveries WHERE campaign = ?`,
		s.campaign,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := New(s.campaign)
	for rows.Next() {
		var (
			key, name, phone, sentAt, date, status string
			weekday                                sql.NullInt64
		)
		if err := rows.Scan(&key, &name, &phone, &sentAt, &date, &status, &weekday); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, sentAt)
		if err != nil {
			return nil, fmt.Errorf("row %s: sent_at: %w", key, err)
		}
		rec := DeliveryRecord{Name: name, Phone: phone, SentAt: ts, Date: date, Status: status}
		if weekday.Valid {
			wd := time.Weekday(weekday.Int64)
			rec.Weekday = &wd
		}
		l.Entries[Key(key)] = rec
	}
	return l, rows.Err()
}

// Persist replaces all rows of the campaign in one transaction.
func (s *sqliteStore) Persist(ctx context.Context, l *Ledger) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if l == nil {
		return errors.New("persist: nil ledger")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE campaign = ?`, s.campaign); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deliveries(campaign, key, name, phone, sent_at, date, status, weekday)
		 VALUES(?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, rec := range l.Entries {
		var weekday any
		if rec.Weekday != nil {
			weekday = int64(*rec.Weekday)
		}
		if _, err := stmt.ExecContext(ctx,
			s.campaign, string(k), rec.Name, rec.Phone,
			rec.SentAt.Format(time.RFC3339Nano), rec.Date, rec.Status, weekday,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("history persisted", logx.Int("entries", len(l.Entries)))
	return nil
}
