package conversation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"50", "50.00"},
		{"R$ 50", "50.00"},
		{"12,5", "12.50"},
		{"R$ 1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1.234", "1234.00"},
		{"50.5", "50.50"},
		{"gastei 30 reais", "30.00"},
		{"1.000.000", "1000000.00"},
		{"3x", "3.00"},
		{"0.500", "0.50"},
		{"1234.567", "1234.57"},
		{"12.345", "12345.00"},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if err != nil {
			t.Fatalf("parseAmount(%q): %v", tt.in, err)
		}
		if got.StringFixed(2) != tt.want {
			t.Fatalf("parseAmount(%q) = %s, want %s", tt.in, got.StringFixed(2), tt.want)
		}
	}

	got, err := parseAmount("0.125")
	if err != nil || !got.Equal(decimal.RequireFromString("0.125")) {
		t.Fatalf("parseAmount(\"0.125\") = %s, %v; want 0.125", got, err)
	}

	if _, err := parseAmount("sem número"); err == nil {
		t.Fatalf("expected error for text without digits")
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 01:00 UTC is still the previous day in BRT.
	now := time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want string
	}{
		{"hoje", "2026-03-31"},
		{"Ontem", "2026-03-30"},
		{"amanhã", "2026-04-01"},
		{"10/03/2026", "2026-03-10"},
		{"5/3/2026", "2026-03-05"},
		{"2026-02-28", "2026-02-28"},
		{"15/12", "2026-12-15"},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in, now, loc)
		if err != nil {
			t.Fatalf("parseDate(%q): %v", tt.in, err)
		}
		if got.Format("2006-01-02") != tt.want {
			t.Fatalf("parseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
		if got.Location() != loc {
			t.Fatalf("parseDate(%q) lost location", tt.in)
		}
	}

	if _, err := parseDate("semana que vem", now, loc); err == nil {
		t.Fatalf("expected error for unsupported date")
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"sim", "pago", "já paguei", "Yes"}
	falsy := []string{"não", "pendente", "em aberto", "nao"}
	for _, in := range truthy {
		got, err := parseBool(in)
		if err != nil || !got {
			t.Fatalf("parseBool(%q) = %v, %v; want true", in, got, err)
		}
	}
	for _, in := range falsy {
		got, err := parseBool(in)
		if err != nil || got {
			t.Fatalf("parseBool(%q) = %v, %v; want false", in, got, err)
		}
	}
	if _, err := parseBool("quem sabe"); err == nil {
		t.Fatalf("expected error for ambiguous answer")
	}
}

func TestParseConfirmation(t *testing.T) {
	tests := map[string]confirmation{
		"sim":            confirmYes,
		"  SIM!! ":       confirmYes,
		"pode confirmar": confirmYes,
		"ok":             confirmYes,
		"não":            confirmNo,
		"Nao.":           confirmNo,
		"no":             confirmNo,
		"sim, mas muda":  confirmUnknown,
		"acho que sim":   confirmUnknown,
		"":               confirmUnknown,
	}
	for in, want := range tests {
		if got := parseConfirmation(in); got != want {
			t.Fatalf("parseConfirmation(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsCancel(t *testing.T) {
	for _, in := range []string{"cancelar", "Cancela!", "deixa pra lá", "cancel"} {
		if !isCancel(in) {
			t.Fatalf("expected %q to cancel", in)
		}
	}
	if isCancel("cancelar a compra de ontem e lançar outra") {
		t.Fatalf("long sentences should not match the cancel whitelist")
	}
}

func TestCoerceRaw(t *testing.T) {
	now := fixedNow
	v, err := coerceRaw(KindNumber, 49.9, now, time.UTC)
	if err != nil {
		t.Fatalf("coerce float: %v", err)
	}
	if d, _ := v.AsNumber(); d.StringFixed(2) != "49.90" {
		t.Fatalf("unexpected number %s", d)
	}

	v, err = coerceRaw(KindDate, "2026-03-01", now, time.UTC)
	if err != nil {
		t.Fatalf("coerce date: %v", err)
	}
	if d, _ := v.AsDate(); d.Day() != 1 {
		t.Fatalf("unexpected date %v", d)
	}

	if _, err := coerceRaw(KindNumber, true, now, time.UTC); err == nil {
		t.Fatalf("expected bool to be rejected for number slot")
	}
	if _, err := coerceRaw(KindString, nil, now, time.UTC); err == nil {
		t.Fatalf("expected nil to be rejected")
	}
}
