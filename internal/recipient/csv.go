package recipient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	logx "dailydispatch/pkg/logx"
)

var (
	ErrNoHeader      = errors.New("recipient source has no header row")
	ErrMissingColumn = errors.New("recipient source is missing a required column")
)

// Options describes the CSV layout and the campaign-specific filter.
type Options struct {
	PhoneColumn string // default "Telefone"
	NameColumn  string // default "Nome"
	CountryCode string // default "+55"
	Delimiter   rune   // default ','

	// Eligibility keeps rows whose Column equals Equals (case-insensitive).
	// Nil marks every row eligible.
	Eligibility *Eligibility

	// Fields lists columns the template needs, with their format. Columns
	// with a numeric format ("number", "currency", "percent") are parsed.
	Fields map[string]string

	// Language drives title-casing of display names.
	Language language.Tag
}

type Eligibility struct {
	Column string
	Equals string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.PhoneColumn) == "" {
		o.PhoneColumn = "Telefone"
	}
	if strings.TrimSpace(o.NameColumn) == "" {
		o.NameColumn = "Nome"
	}
	if strings.TrimSpace(o.CountryCode) == "" {
		o.CountryCode = "+55"
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// Source reads recipients from a CSV file.
type Source struct {
	path string
	opts Options
	log  logx.Logger
}

func NewSource(path string, opts Options, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{
		path: path,
		opts: opts.withDefaults(),
		log:  log.With(logx.String("comp", "recipient"), logx.String("path", path)),
	}
}

// Load reads the whole file. Every returned recipient has a phone and a
// name; Eligible reports the filter result.
func (s *Source) Load(ctx context.Context) ([]Recipient, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open recipient source: %w", err)
	}
	defer f.Close()

	rs, dropped, err := parse(ctx, f, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if dropped > 0 {
		s.log.Warn("rows without phone or name dropped", logx.Int("dropped", dropped))
	}
	s.log.Info("recipient source loaded",
		logx.Int("rows", len(rs)),
		logx.Int("eligible", len(Eligible(rs))),
	)
	return rs, nil
}

// Parse reads recipients from r using opts.
func Parse(ctx context.Context, r io.Reader, opts Options) ([]Recipient, error) {
	rs, _, err := parse(ctx, r, opts.withDefaults())
	return rs, err
}

func parse(ctx context.Context, r io.Reader, opts Options) ([]Recipient, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, ErrNoHeader
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = h
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	required := []string{opts.PhoneColumn, opts.NameColumn}
	if opts.Eligibility != nil {
		required = append(required, opts.Eligibility.Column)
	}
	for name := range opts.Fields {
		required = append(required, name)
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}

	var (
		out     []Recipient
		dropped int
	)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		phone := NormalizePhone(cell(opts.PhoneColumn), opts.CountryCode)
		full := cell(opts.NameColumn)
		if phone == "" || full == "" || !utf8.ValidString(full) {
			dropped++
			continue
		}

		attrs := make(map[string]any, len(header))
		for _, h := range header {
			if h == "" {
				continue
			}
			attrs[h] = cell(h)
		}
		for name, format := range opts.Fields {
			if !numeric(format) {
				continue
			}
			if v, ok := ParseNumber(cell(name)); ok {
				attrs[name] = v
			}
		}

		eligible := true
		if e := opts.Eligibility; e != nil {
			eligible = strings.EqualFold(cell(e.Column), strings.TrimSpace(e.Equals))
		}
		out = append(out, Recipient{
			Phone:      phone,
			Name:       DisplayName(full, opts.Language),
			FullName:   full,
			Attributes: attrs,
			Eligible:   eligible,
		})
	}
	return out, dropped, nil
}

func numeric(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "number", "currency", "percent":
		return true
	}
	return false
}
