package finance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetUsage is how much of one category budget has been spent.
type BudgetUsage struct {
	CategoryID   uuid.UUID
	CategoryName string
	Budget       decimal.Decimal
	Spent        decimal.Decimal
	Percent      decimal.Decimal
}

// MonthSummary aggregates one month of transactions and budgets.
type MonthSummary struct {
	Month        time.Month
	Year         int
	Income       decimal.Decimal
	Expenses     decimal.Decimal
	PaidExpenses decimal.Decimal
	OpenExpenses decimal.Decimal
	CardExpenses decimal.Decimal
	Transactions int
	Budgets      []BudgetUsage
}

// Balance is income minus expenses.
func (m MonthSummary) Balance() decimal.Decimal {
	return m.Income.Sub(m.Expenses)
}

// Summarize builds the month view. Transactions outside the month are ignored.
func Summarize(month time.Month, year int, transactions []Transaction, budgets []Budget, categories []Category) MonthSummary {
	sum := MonthSummary{Month: month, Year: year}
	spentByCategory := make(map[uuid.UUID]decimal.Decimal)

	for _, tx := range transactions {
		if !InMonth(tx, month, year) {
			continue
		}
		sum.Transactions++
		switch tx.Type {
		case TypeIncome:
			sum.Income = sum.Income.Add(tx.Amount)
		default:
			sum.Expenses = sum.Expenses.Add(tx.Amount)
			if tx.IsPaid {
				sum.PaidExpenses = sum.PaidExpenses.Add(tx.Amount)
			} else {
				sum.OpenExpenses = sum.OpenExpenses.Add(tx.Amount)
			}
			if tx.CardID != nil {
				sum.CardExpenses = sum.CardExpenses.Add(tx.Amount)
			}
			if tx.CategoryID != nil {
				spentByCategory[*tx.CategoryID] = spentByCategory[*tx.CategoryID].Add(tx.Amount)
			}
		}
	}

	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	hundred := decimal.NewFromInt(100)
	for _, b := range budgets {
		if b.Month != int(month) || b.Year != year {
			continue
		}
		spent := spentByCategory[b.CategoryID]
		usage := BudgetUsage{
			CategoryID:   b.CategoryID,
			CategoryName: names[b.CategoryID],
			Budget:       b.Amount,
			Spent:        spent,
		}
		if b.Amount.IsPositive() {
			usage.Percent = spent.Mul(hundred).DivRound(b.Amount, 1)
		}
		if usage.CategoryName == "" {
			usage.CategoryName = b.CategoryID.String()
		}
		sum.Budgets = append(sum.Budgets, usage)
	}
	sort.Slice(sum.Budgets, func(i, j int) bool {
		return sum.Budgets[i].CategoryName < sum.Budgets[j].CategoryName
	})
	return sum
}

// Compact renders the summary as short plain text for the advisor prompt.
func (m MonthSummary) Compact() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mês: %02d/%d\n", int(m.Month), m.Year)
	fmt.Fprintf(&b, "Receitas: R$ %s\n", m.Income.StringFixed(2))
	fmt.Fprintf(&b, "Despesas: R$ %s (pagas R$ %s, em aberto R$ %s, cartão R$ %s)\n",
		m.Expenses.StringFixed(2),
		m.PaidExpenses.StringFixed(2),
		m.OpenExpenses.StringFixed(2),
		m.CardExpenses.StringFixed(2),
	)
	fmt.Fprintf(&b, "Saldo: R$ %s\n", m.Balance().StringFixed(2))
	fmt.Fprintf(&b, "Lançamentos: %d\n", m.Transactions)
	if len(m.Budgets) == 0 {
		b.WriteString("Orçamentos: nenhum")
		return b.String()
	}
	b.WriteString("Orçamentos:")
	for _, u := range m.Budgets {
		fmt.Fprintf(&b, "\n- %s: R$ %s de R$ %s (%s%%)",
			u.CategoryName, u.Spent.StringFixed(2), u.Budget.StringFixed(2), u.Percent.StringFixed(1))
	}
	return b.String()
}
