package finance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/finchat/internal/invoice"
)

// Reader is the read side used by intent handlers and the consulting summary.
type Reader interface {
	ListTransactions(ctx context.Context, month time.Month, year int) ([]Transaction, error)
	ListBudgets(ctx context.Context, month time.Month, year int) ([]Budget, error)
	ListCards(ctx context.Context) ([]Card, error)
	ListCategories(ctx context.Context) ([]Category, error)
	FindCardsByName(ctx context.Context, fragment string) ([]Card, error)
	FindCategoryByName(ctx context.Context, name string) (*Category, error)
	CreateCategory(ctx context.Context, name, color string) (*Category, error)
}

// Writer is the write side invoked after the user confirms an operation.
type Writer interface {
	CreateExpense(ctx context.Context, in ExpenseInput) (*Transaction, error)
	CreateCardTransaction(ctx context.Context, in CardTransactionInput) ([]Transaction, error)
}

// Store combines both sides.
type Store interface {
	Reader
	Writer
}

// MatchCardName reports whether a card name and a user-supplied fragment refer
// to each other: case-insensitive substring match in either direction.
func MatchCardName(cardName, fragment string) bool {
	name := strings.ToLower(strings.TrimSpace(cardName))
	frag := strings.ToLower(strings.TrimSpace(fragment))
	if name == "" || frag == "" {
		return false
	}
	return strings.Contains(name, frag) || strings.Contains(frag, name)
}

// InMonth reports whether a transaction belongs to the month view. Card
// purchases are attributed to their invoice period, everything else to its date.
func InMonth(tx Transaction, month time.Month, year int) bool {
	if tx.CardID != nil && tx.InvoiceYear > 0 {
		return tx.InvoiceYear == year && tx.InvoiceMonth == int(month)
	}
	return tx.Date.Year() == year && tx.Date.Month() == month
}

// MemoryStore is an in-memory Store used in development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions []Transaction
	cards        map[uuid.UUID]Card
	categories   map[uuid.UUID]Category
	budgets      []Budget
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:      make(map[uuid.UUID]Card),
		categories: make(map[uuid.UUID]Category),
		now:        time.Now,
	}
}

// AddCard seeds a card, assigning an id when missing.
func (s *MemoryStore) AddCard(card Card) Card {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	s.mu.Lock()
	s.cards[card.ID] = card
	s.mu.Unlock()
	return card
}

// AddCategory seeds a category, assigning an id when missing.
func (s *MemoryStore) AddCategory(cat Category) Category {
	if cat.ID == uuid.Nil {
		cat.ID = uuid.New()
	}
	s.mu.Lock()
	s.categories[cat.ID] = cat
	s.mu.Unlock()
	return cat
}

// AddBudget seeds a budget, assigning an id when missing.
func (s *MemoryStore) AddBudget(b Budget) Budget {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.mu.Lock()
	s.budgets = append(s.budgets, b)
	s.mu.Unlock()
	return b
}

// AddTransaction seeds a transaction as-is, assigning an id when missing.
func (s *MemoryStore) AddTransaction(tx Transaction) Transaction {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	s.mu.Lock()
	s.transactions = append(s.transactions, tx)
	s.mu.Unlock()
	return tx
}

// Transactions returns a copy of every stored transaction.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *MemoryStore) ListTransactions(ctx context.Context, month time.Month, year int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.transactions {
		if InMonth(tx, month, year) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBudgets(ctx context.Context, month time.Month, year int) ([]Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Budget
	for _, b := range s.budgets {
		if b.Month == int(month) && b.Year == year {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListCards(ctx context.Context) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) FindCardsByName(ctx context.Context, fragment string) ([]Card, error) {
	cards, _ := s.ListCards(ctx)
	var out []Card
	for _, c := range cards {
		if MatchCardName(c.Name, fragment) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range s.categories {
		if strings.ToLower(c.Name) == want {
			found := c
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateCategory(ctx context.Context, name, color string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Problems: []string{"category name is required"}}
	}
	cat := s.AddCategory(Category{Name: name, Color: color})
	return &cat, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, in ExpenseInput) (*Transaction, error) {
	if err := ValidateExpense(in); err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, ok := s.categories[in.CategoryID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ValidationError{Problems: []string{"category does not exist"}}
	}
	categoryID := in.CategoryID
	tx := s.AddTransaction(Transaction{
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Type:        TypeExpense,
		Date:        in.DueDate,
		IsPaid:      in.IsPaid,
		CategoryID:  &categoryID,
		CreatedAt:   s.now().UTC(),
	})
	return &tx, nil
}

func (s *MemoryStore) CreateCardTransaction(ctx context.Context, in CardTransactionInput) ([]Transaction, error) {
	if err := ValidateCardTransaction(in); err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, ok := s.cards[in.CardID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ValidationError{Problems: []string{"card does not exist"}}
	}
	records := buildInstallments(in, s.now().UTC())
	for i := range records {
		records[i] = s.AddTransaction(records[i])
	}
	return records, nil
}

func buildInstallments(in CardTransactionInput, createdAt time.Time) []Transaction {
	parts := SplitInstallments(in.Amount, in.InstallmentCount)
	start := invoice.Period{Year: in.InvoiceYear, Month: time.Month(in.InvoiceMonth)}
	cardID := in.CardID
	out := make([]Transaction, 0, len(parts))
	for i, amount := range parts {
		period := start.Next(i)
		out = append(out, Transaction{
			ID:                uuid.New(),
			Description:       strings.TrimSpace(in.Description),
			Amount:            amount,
			Type:              TypeExpense,
			Date:              in.Date,
			CardID:            &cardID,
			InstallmentNumber: i + 1,
			InstallmentCount:  len(parts),
			InvoiceYear:       period.Year,
			InvoiceMonth:      int(period.Month),
			CreatedAt:         createdAt,
		})
	}
	return out
}
