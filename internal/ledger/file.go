package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "dailydispatch/pkg/logx"
)

// fileStore keeps one human-readable JSON document per campaign.
type fileStore struct {
	log      logx.Logger
	campaign string
	path     string

	mu     sync.Mutex
	closed bool
}

// FilePath returns the history file used for campaign under dir.
func FilePath(dir, campaign string) string {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return filepath.Join(dir, "history_"+campaign+".json")
}

func openFile(cfg Config, campaign string, log logx.Logger) (Store, error) {
	path := FilePath(cfg.Dir, campaign)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, campaign: campaign, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) (*Ledger, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(s.campaign), nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return New(s.campaign), nil
	}
	return decodeLedger(data, s.campaign)
}

// decodeLedger accepts the versioned document and the flat legacy format.
func decodeLedger(data []byte, campaign string) (*Ledger, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if _, ok := head["schema_version"]; !ok {
		return importLegacy(data, campaign)
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if l.SchemaVersion < 1 || l.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, l.SchemaVersion)
	}
	if l.Entries == nil {
		l.Entries = map[Key]DeliveryRecord{}
	}
	if l.Campaign == "" {
		l.Campaign = campaign
	}
	return &l, nil
}

// Persist writes the whole ledger to a temp file in the same directory,
// syncs it and renames it over the history file.
func (s *fileStore) Persist(ctx context.Context, l *Ledger) error {
	_ = ctx
	if l == nil {
		return errors.New("persist: nil ledger")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	doc := *l
	doc.SchemaVersion = SchemaVersion
	if doc.Campaign == "" {
		doc.Campaign = s.campaign
	}
	if doc.Entries == nil {
		doc.Entries = map[Key]DeliveryRecord{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("write temp history: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("sync temp history: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace history file: %w", err)
	}
	s.log.Debug("history persisted", logx.String("path", s.path), logx.Int("entries", len(doc.Entries)))
	return nil
}
