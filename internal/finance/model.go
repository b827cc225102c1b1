// Package finance is the persistence-backed collaborator the chat pipeline
// reads from and writes to: transactions, cards, categories and budgets.
package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Transaction is a single financial record. Card purchases carry the card and
// the invoice period they bill against; plain expenses do not.
type Transaction struct {
	ID                uuid.UUID       `json:"id"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"type"`
	Date              time.Time       `json:"date"`
	IsPaid            bool            `json:"is_paid"`
	CategoryID        *uuid.UUID      `json:"category_id,omitempty"`
	CardID            *uuid.UUID      `json:"card_id,omitempty"`
	InstallmentNumber int             `json:"installment_number,omitempty"`
	InstallmentCount  int             `json:"installment_count,omitempty"`
	InvoiceYear       int             `json:"invoice_year,omitempty"`
	InvoiceMonth      int             `json:"invoice_month,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Card is a credit card with its billing cycle days.
type Card struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	ClosingDay int             `json:"closing_day"`
	DueDay     int             `json:"due_day"`
	Limit      decimal.Decimal `json:"limit"`
}

// Category groups transactions; Color is a hex string such as #9E9E9E.
type Category struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// Budget caps spending for a category in one month.
type Budget struct {
	ID         uuid.UUID       `json:"id"`
	CategoryID uuid.UUID       `json:"category_id"`
	Month      int             `json:"month"`
	Year       int             `json:"year"`
	Amount     decimal.Decimal `json:"amount"`
}

// ExpenseInput is the payload for CreateExpense.
type ExpenseInput struct {
	Description string
	Amount      decimal.Decimal
	DueDate     time.Time
	CategoryID  uuid.UUID
	IsPaid      bool
}

// CardTransactionInput is the payload for CreateCardTransaction. Amount is the
// total purchase value; it is split across InstallmentCount records starting
// at the invoice period InvoiceYear/InvoiceMonth.
type CardTransactionInput struct {
	CardID           uuid.UUID
	Description      string
	Amount           decimal.Decimal
	Date             time.Time
	InstallmentCount int
	InvoiceYear      int
	InvoiceMonth     int
}
