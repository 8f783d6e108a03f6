package recipient

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"

	logx "dailydispatch/pkg/logx"
)

const sheet = `Nome,Telefone,META_BATIDA,Faturamento,Falta_Meta_Dia
ana maria souza,11999990001,SIM,1234.5,0.1
BRUNO LIMA,+5521988880002,não,"2.500,75",0.855
,11999990003,SIM,10,0
Carla,,SIM,10,0
Diego,11999990004.0,Sim,abc,0.2
`

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ raw, cc, want string }{
		{"11999990001", "+55", "+5511999990001"},
		{"+5511999990001", "+55", "+5511999990001"},
		{"(11) 99999-0001", "55", "+5511999990001"},
		{"11999990001.0", "+55", "+5511999990001"},
		{"+1 (415) 555-0100", "+55", "+14155550100"},
		{"  ", "+55", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.raw, c.cc); got != c.want {
			t.Fatalf("NormalizePhone(%q, %q) = %q, want %q", c.raw, c.cc, got, c.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("JOÃO da silva", language.BrazilianPortuguese); got != "João" {
		t.Fatalf("got %q, want João", got)
	}
	if got := DisplayName("   ", language.Und); got != "" {
		t.Fatalf("blank name should be empty, got %q", got)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1234.5", 1234.5, true},
		{"1.234,56", 1234.56, true},
		{"R$ 2.500,75", 2500.75, true},
		{"0,855", 0.855, true},
		{"-3", -3, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.raw)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("ParseNumber(%q) = %v, %v; want %v, %v", c.raw, got, ok, c.want, c.ok)
		}
	}
}

func TestParseSheet(t *testing.T) {
	opts := Options{
		Eligibility: &Eligibility{Column: "META_BATIDA", Equals: "SIM"},
		Fields:      map[string]string{"Faturamento": "currency", "Falta_Meta_Dia": "percent"},
		Language:    language.BrazilianPortuguese,
	}
	rs, err := Parse(context.Background(), strings.NewReader(sheet), opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("recipients = %d, want 3 (rows without phone or name dropped)", len(rs))
	}

	ana := rs[0]
	if ana.Phone != "+5511999990001" || ana.Name != "Ana" || ana.FullName != "ana maria souza" {
		t.Fatalf("unexpected first recipient: %+v", ana)
	}
	if v, ok := ana.Attributes["Faturamento"].(float64); !ok || v != 1234.5 {
		t.Fatalf("Faturamento = %#v, want 1234.5", ana.Attributes["Faturamento"])
	}
	if !ana.Eligible {
		t.Fatal("SIM row should be eligible")
	}

	bruno := rs[1]
	if bruno.Eligible {
		t.Fatal("não row should not be eligible")
	}
	if v, _ := bruno.Attributes["Faturamento"].(float64); v != 2500.75 {
		t.Fatalf("Faturamento = %#v, want 2500.75", bruno.Attributes["Faturamento"])
	}

	diego := rs[2]
	if !diego.Eligible {
		t.Fatal("eligibility match is case-insensitive")
	}
	if s, ok := diego.Attributes["Faturamento"].(string); !ok || s != "abc" {
		t.Fatalf("unparseable numeric cell should stay text, got %#v", diego.Attributes["Faturamento"])
	}

	if got := Eligible(rs); len(got) != 2 || got[0].Name != "Ana" || got[1].Name != "Diego" {
		t.Fatalf("Eligible = %+v", got)
	}
}

func TestParseMissingColumn(t *testing.T) {
	opts := Options{Fields: map[string]string{"Comissao": "currency"}}
	_, err := Parse(context.Background(), strings.NewReader(sheet), opts)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "Comissao") {
		t.Fatalf("error should name the column: %v", err)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader(""), Options{})
	if !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestSourceLoadSemicolon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contatos.csv")
	data := "\ufeffNome;Telefone\nAna;11999990001\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewSource(path, Options{Delimiter: ';'}, logx.Nop())
	rs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rs) != 1 || rs[0].Phone != "+5511999990001" || !rs[0].Eligible {
		t.Fatalf("unexpected recipients: %+v", rs)
	}
}

func TestSourceLoadMissingFile(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "missing.csv"), Options{}, logx.Nop())
	if _, err := src.Load(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
