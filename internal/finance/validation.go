package finance

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxInstallments bounds how many installments a card purchase may be split into.
const MaxInstallments = 48

// ValidateExpense checks an expense before it is written.
func ValidateExpense(in ExpenseInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Description) == "" {
		verr.add("description is required")
	}
	if !in.Amount.IsPositive() {
		verr.add("amount must be greater than zero")
	}
	if in.CategoryID == uuid.Nil {
		verr.add("category is required")
	}
	if in.DueDate.IsZero() {
		verr.add("due date is required")
	}
	return verr.orNil()
}

// ValidateCardTransaction checks a card purchase before it is written.
func ValidateCardTransaction(in CardTransactionInput) error {
	verr := &ValidationError{}
	if in.CardID == uuid.Nil {
		verr.add("card is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		verr.add("description is required")
	}
	if !in.Amount.IsPositive() {
		verr.add("amount must be greater than zero")
	}
	if in.Date.IsZero() {
		verr.add("purchase date is required")
	}
	if in.InstallmentCount < 1 || in.InstallmentCount > MaxInstallments {
		verr.add("installment count must be between 1 and %d", MaxInstallments)
	} else if in.Amount.IsPositive() && !CoversInstallments(in.Amount, in.InstallmentCount) {
		verr.add("amount %s is too small for %d installments", in.Amount.StringFixed(2), in.InstallmentCount)
	}
	if in.InvoiceMonth < int(time.January) || in.InvoiceMonth > int(time.December) {
		verr.add("invoice month must be between 1 and 12")
	}
	if in.InvoiceYear < 1 {
		verr.add("invoice year is required")
	}
	return verr.orNil()
}

// CoversInstallments reports whether total leaves at least one cent for each
// of n installments.
func CoversInstallments(total decimal.Decimal, n int) bool {
	if n < 1 {
		n = 1
	}
	return !total.LessThan(decimal.New(1, -2).Mul(decimal.NewFromInt(int64(n))))
}

// SplitInstallments divides total into n installments rounded to cents. The
// rounding remainder is added to the first installment so the parts always
// sum to total.
func SplitInstallments(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		n = 1
	}
	count := decimal.NewFromInt(int64(n))
	part := total.Div(count).RoundDown(2)
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		parts[i] = part
	}
	parts[0] = parts[0].Add(total.Sub(part.Mul(count)))
	return parts
}
