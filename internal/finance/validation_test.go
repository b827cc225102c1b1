package finance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestValidateExpense(t *testing.T) {
	valid := ExpenseInput{
		Description: "mercado",
		Amount:      decimal.NewFromInt(50),
		DueDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		CategoryID:  uuid.New(),
	}
	if err := ValidateExpense(valid); err != nil {
		t.Fatalf("expected valid expense, got %v", err)
	}

	invalid := valid
	invalid.Description = "  "
	invalid.Amount = decimal.Zero
	err := ValidateExpense(invalid)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !IsValidation(err) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	verr := err.(*ValidationError)
	if len(verr.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", verr.Problems)
	}
}

func TestValidateCardTransaction(t *testing.T) {
	base := CardTransactionInput{
		CardID:           uuid.New(),
		Description:      "notebook",
		Amount:           decimal.NewFromInt(3000),
		Date:             time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		InstallmentCount: 10,
		InvoiceYear:      2026,
		InvoiceMonth:     5,
	}
	if err := ValidateCardTransaction(base); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}

	cases := map[string]func(in *CardTransactionInput){
		"no card":          func(in *CardTransactionInput) { in.CardID = uuid.Nil },
		"negative amount":  func(in *CardTransactionInput) { in.Amount = decimal.NewFromInt(-1) },
		"zero installment": func(in *CardTransactionInput) { in.InstallmentCount = 0 },
		"too many":         func(in *CardTransactionInput) { in.InstallmentCount = MaxInstallments + 1 },
		"bad month":        func(in *CardTransactionInput) { in.InvoiceMonth = 13 },
		"no date":          func(in *CardTransactionInput) { in.Date = time.Time{} },
		"sub-cent parts":   func(in *CardTransactionInput) { in.Amount = decimal.RequireFromString("0.02"); in.InstallmentCount = 3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			if err := ValidateCardTransaction(in); !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSplitInstallments(t *testing.T) {
	tests := []struct {
		total string
		n     int
		want  []string
	}{
		{"100", 1, []string{"100.00"}},
		{"100", 3, []string{"33.34", "33.33", "33.33"}},
		{"3000", 10, []string{"300.00", "300.00", "300.00", "300.00", "300.00", "300.00", "300.00", "300.00", "300.00", "300.00"}},
		{"10.01", 2, []string{"5.01", "5.00"}},
	}
	for _, tt := range tests {
		total := decimal.RequireFromString(tt.total)
		parts := SplitInstallments(total, tt.n)
		if len(parts) != len(tt.want) {
			t.Fatalf("%s/%d: expected %d parts, got %d", tt.total, tt.n, len(tt.want), len(parts))
		}
		sum := decimal.Zero
		for i, p := range parts {
			if p.StringFixed(2) != tt.want[i] {
				t.Fatalf("%s/%d: part %d = %s, want %s", tt.total, tt.n, i, p.StringFixed(2), tt.want[i])
			}
			sum = sum.Add(p)
		}
		if !sum.Equal(total) {
			t.Fatalf("%s/%d: parts sum to %s", tt.total, tt.n, sum)
		}
	}
}

func TestCoversInstallments(t *testing.T) {
	tests := []struct {
		total string
		n     int
		want  bool
	}{
		{"0.02", 3, false},
		{"0.03", 3, true},
		{"0.01", 1, true},
		{"0.47", 48, false},
		{"0.48", 48, true},
	}
	for _, tt := range tests {
		if got := CoversInstallments(decimal.RequireFromString(tt.total), tt.n); got != tt.want {
			t.Fatalf("CoversInstallments(%s, %d) = %v, want %v", tt.total, tt.n, got, tt.want)
		}
	}
}
