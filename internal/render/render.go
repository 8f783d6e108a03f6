// Package render fills message templates with recipient attributes.
//
// Templates use {Name} placeholders; "{{" and "}}" produce literal braces.
// Built-in placeholders:
//
//	{Name}, {Nome}            display name (first name, title-cased)
//	{Phone}, {Telefone}       normalized phone
//	{Date}, {data_atual}      today as dd/mm/yyyy
//
// Any other placeholder is read from the recipient attributes and formatted
// according to its declared field format.
package render

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"dailydispatch/internal/recipient"
)

const dateLayout = "02/01/2006"

var errNoAttribute = errors.New("no such attribute")

// Field formats.
const (
	FormatText     = "text"
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatPercent  = "percent"
)

// RenderError reports why a message could not be built for one recipient.
type RenderError struct {
	Recipient   string
	Placeholder string
	Reason      string
}

func (e *RenderError) Error() string {
	if e.Placeholder == "" {
		return fmt.Sprintf("render message for %s: %s", e.Recipient, e.Reason)
	}
	return fmt.Sprintf("render message for %s: placeholder {%s}: %s", e.Recipient, e.Placeholder, e.Reason)
}

type Options struct {
	Locale         language.Tag      // default pt-BR
	CurrencySymbol string            // default "R$"
	Fields         map[string]string // placeholder -> format
	Location       *time.Location    // for {Date}; default time.Local
}

// Renderer is bound to one campaign's field formats. It is not safe for
// concurrent use.
type Renderer struct {
	opts    Options
	printer *message.Printer
}

func New(opts Options) *Renderer {
	if opts.Locale == language.Und {
		opts.Locale = language.BrazilianPortuguese
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "R$"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Renderer{opts: opts, printer: message.NewPrinter(opts.Locale)}
}

// Render fills tmpl for rc. It is pure: the same inputs always produce the
// same message.
func (r *Renderer) Render(tmpl string, rc recipient.Recipient, now time.Time) (string, error) {
	fail := func(placeholder, reason string) error {
		return &RenderError{Recipient: who(rc), Placeholder: placeholder, Reason: reason}
	}

	var b strings.Builder
	b.Grow(len(tmpl) + 64)
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fail("", "unbalanced '{'")
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if name == "" || strings.ContainsRune(name, '{') {
				return "", fail(name, "empty or malformed placeholder")
			}
			v, err := r.value(name, rc, now)
			if err != nil {
				return "", fail(name, err.Error())
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fail("", "unbalanced '}'")
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func (r *Renderer) value(name string, rc recipient.Recipient, now time.Time) (string, error) {
	switch name {
	case "Name", "Nome":
		return rc.Name, nil
	case "Phone", "Telefone":
		return rc.Phone, nil
	case "Date", "data_atual":
		return now.In(r.opts.Location).Format(dateLayout), nil
	}

	raw, ok := rc.Attributes[name]
	if !ok {
		return "", errNoAttribute
	}
	format := strings.ToLower(strings.TrimSpace(r.opts.Fields[name]))
	if format == "" || format == FormatText {
		return text(raw), nil
	}

	v, ok := toFloat(raw)
	if !ok {
		return "", fmt.Errorf("value %q is not a number", text(raw))
	}
	switch format {
	case FormatPercent:
		return strconv.FormatFloat(v*100, 'f', 2, 64), nil
	case FormatNumber:
		return r.decimal(v), nil
	case FormatCurrency:
		return r.opts.CurrencySymbol + " " + r.decimal(v), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func (r *Renderer) decimal(v float64) string {
	return r.printer.Sprint(number.Decimal(v, number.Scale(2)))
}

func who(rc recipient.Recipient) string {
	if rc.Name != "" {
		return rc.Name + " (" + rc.Phone + ")"
	}
	return rc.Phone
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		return recipient.ParseNumber(x)
	default:
		return 0, false
	}
}
