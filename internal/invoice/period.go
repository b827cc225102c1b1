// Package invoice maps card transactions onto the monthly statement that bills them.
package invoice

import (
	"fmt"
	"time"
)

// Period identifies a monthly credit-card statement.
type Period struct {
	Year  int
	Month time.Month
}

// Calculate returns the invoice period owning a transaction made on
// transactionDate for a card that closes on closingDay and is due on dueDay.
//
// The statement closes on closingDay of the transaction month, or of the next
// month when the transaction happened after that day. The statement is due in
// the closing month when dueDay > closingDay, otherwise in the month after it.
// Callers validate the day range with Validate.
func Calculate(transactionDate time.Time, closingDay, dueDay int) Period {
	closing := Period{Year: transactionDate.Year(), Month: transactionDate.Month()}
	if transactionDate.Day() > closingDay {
		closing = closing.Next(1)
	}
	if dueDay <= closingDay {
		return closing.Next(1)
	}
	return closing
}

// Validate reports whether the closing and due days are usable calendar days.
func Validate(closingDay, dueDay int) error {
	if closingDay < 1 || closingDay > 31 {
		return fmt.Errorf("invoice: closing day %d out of range [1,31]", closingDay)
	}
	if dueDay < 1 || dueDay > 31 {
		return fmt.Errorf("invoice: due day %d out of range [1,31]", dueDay)
	}
	return nil
}

// Next shifts the period by n months. Negative n moves backwards.
func (p Period) Next(n int) Period {
	idx := p.Year*12 + int(p.Month-1) + n
	year := idx / 12
	month := idx % 12
	if month < 0 {
		month += 12
		year--
	}
	return Period{Year: year, Month: time.Month(month + 1)}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label renders the period as MM/YYYY for chat replies.
func (p Period) Label() string {
	return fmt.Sprintf("%02d/%04d", int(p.Month), p.Year)
}
