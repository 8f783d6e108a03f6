package render

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

var ErrInvalidTemplate = errors.New("invalid template")

// LoadTemplate reads a UTF-8 template file once.
func LoadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidTemplate, path)
	}
	s := strings.TrimPrefix(string(b), "\ufeff")
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidTemplate, path)
	}
	if _, err := Placeholders(s); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, path, err)
	}
	return s, nil
}

// Placeholders returns the placeholder names used by tmpl in order of first
// appearance, or an error when its braces do not balance.
func Placeholders(tmpl string) ([]string, error) {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unbalanced '{' at offset %d", i)
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if name == "" || strings.ContainsRune(name, '{') {
				return nil, fmt.Errorf("malformed placeholder at offset %d", i)
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("unbalanced '}' at offset %d", i)
		}
	}
	return out, nil
}

// Builtin reports whether name is filled without a recipient attribute.
func Builtin(name string) bool {
	switch name {
	case "Name", "Nome", "Phone", "Telefone", "Date", "data_atual":
		return true
	}
	return false
}
