// Package recipient loads the people a campaign is sent to from a CSV sheet.
package recipient

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Recipient is one validated row of the source. It is immutable for a run.
type Recipient struct {
	Phone    string // normalized, "+<country><number>"
	Name     string // display name: first word of FullName, title-cased
	FullName string

	// Attributes holds every column of the row. Columns declared with a
	// numeric format are float64 when they parse, string otherwise.
	Attributes map[string]any

	Eligible bool
}

// Eligible returns the recipients that passed the eligibility filter,
// preserving source order.
func Eligible(rs []Recipient) []Recipient {
	out := make([]Recipient, 0, len(rs))
	for _, r := range rs {
		if r.Eligible {
			out = append(out, r)
		}
	}
	return out
}

// NormalizePhone strips formatting from raw and prefixes countryCode unless
// raw already carries an international "+" prefix. It returns "" when raw has
// no digits.
func NormalizePhone(raw, countryCode string) string {
	s := strings.TrimSpace(raw)
	// Spreadsheet exports turn numbers into floats.
	s = strings.TrimSuffix(s, ".0")
	international := strings.HasPrefix(s, "+")

	digits := keepDigits(s)
	if digits == "" {
		return ""
	}
	if international {
		return "+" + digits
	}
	cc := keepDigits(countryCode)
	return "+" + cc + digits
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DisplayName returns the first word of full, title-cased for tag.
func DisplayName(full string, tag language.Tag) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(tag).String(fields[0])
}

// ParseNumber parses a numeric cell written either as "1234.56" or in the
// Brazilian style "1.234,56". Currency symbols and percent signs are ignored.
func ParseNumber(raw string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' || r == 'e' || r == 'E' {
			return r
		}
		return -1
	}, strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
