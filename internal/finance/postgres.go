package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool used by PgStore.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore persists finance records in Postgres.
type PgStore struct {
	pool PgxPool
	now  func() time.Time
}

var _ Store = (*PgStore)(nil)

// NewPgStore wraps a pgx pool.
func NewPgStore(pool PgxPool) *PgStore {
	if pool == nil {
		panic("finance: pgx pool required")
	}
	return &PgStore{pool: pool, now: time.Now}
}

const transactionColumns = `id, description, amount, type, date, is_paid, category_id, card_id,
	COALESCE(installment_number, 0), COALESCE(installment_count, 0),
	COALESCE(invoice_year, 0), COALESCE(invoice_month, 0), created_at`

func (s *PgStore) ListTransactions(ctx context.Context, month time.Month, year int) ([]Transaction, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (card_id IS NOT NULL AND invoice_year = $1 AND invoice_month = $2)
		   OR (card_id IS NULL AND date >= $3 AND date < $4)
		ORDER BY date, created_at
	`
	rows, err := s.pool.Query(ctx, query, year, int(month), start, end)
	if err != nil {
		return nil, fmt.Errorf("finance: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var txType string
		if err := rows.Scan(
			&tx.ID,
			&tx.Description,
			&tx.Amount,
			&txType,
			&tx.Date,
			&tx.IsPaid,
			&tx.CategoryID,
			&tx.CardID,
			&tx.InstallmentNumber,
			&tx.InstallmentCount,
			&tx.InvoiceYear,
			&tx.InvoiceMonth,
			&tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("finance: scan transaction: %w", err)
		}
		tx.Type = TransactionType(txType)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: list transactions: %w", err)
	}
	return out, nil
}

func (s *PgStore) ListBudgets(ctx context.Context, month time.Month, year int) ([]Budget, error) {
	query := `
		SELECT id, category_id, month, year, amount
		FROM budgets
		WHERE month = $1 AND year = $2
	`
	rows, err := s.pool.Query(ctx, query, int(month), year)
	if err != nil {
		return nil, fmt.Errorf("finance: list budgets: %w", err)
	}
	defer rows.Close()

	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Month, &b.Year, &b.Amount); err != nil {
			return nil, fmt.Errorf("finance: scan budget: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: list budgets: %w", err)
	}
	return out, nil
}

func (s *PgStore) ListCards(ctx context.Context) ([]Card, error) {
	return s.queryCards(ctx, `SELECT id, name, closing_day, due_day, credit_limit FROM cards ORDER BY name`)
}

// FindCardsByName matches case-insensitively with the fragment contained in
// the name or the name contained in the fragment.
func (s *PgStore) FindCardsByName(ctx context.Context, fragment string) ([]Card, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	query := `
		SELECT id, name, closing_day, due_day, credit_limit
		FROM cards
		WHERE strpos(lower(name), lower($1)) > 0 OR strpos(lower($1), lower(name)) > 0
		ORDER BY name
	`
	return s.queryCards(ctx, query, fragment)
}

func (s *PgStore) queryCards(ctx context.Context, query string, args ...any) ([]Card, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finance: list cards: %w", err)
	}
	defer rows.Close()

	var out []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.Limit); err != nil {
			return nil, fmt.Errorf("finance: scan card: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: list cards: %w", err)
	}
	return out, nil
}

func (s *PgStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, color FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("finance: list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("finance: scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finance: list categories: %w", err)
	}
	return out, nil
}

func (s *PgStore) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	query := `SELECT id, name, color FROM categories WHERE lower(name) = lower($1) LIMIT 1`
	var c Category
	if err := s.pool.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(&c.ID, &c.Name, &c.Color); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finance: find category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts a category. A concurrent insert of the same name
// returns the existing row.
func (s *PgStore) CreateCategory(ctx context.Context, name, color string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Problems: []string{"category name is required"}}
	}
	query := `
		INSERT INTO categories (id, name, color)
		VALUES ($1, $2, $3)
		ON CONFLICT (lower(name)) DO UPDATE SET name = categories.name
		RETURNING id, name, color
	`
	var c Category
	if err := s.pool.QueryRow(ctx, query, uuid.New(), name, color).Scan(&c.ID, &c.Name, &c.Color); err != nil {
		return nil, fmt.Errorf("finance: create category: %w", err)
	}
	return &c, nil
}

func (s *PgStore) CreateExpense(ctx context.Context, in ExpenseInput) (*Transaction, error) {
	if err := ValidateExpense(in); err != nil {
		return nil, err
	}
	categoryID := in.CategoryID
	tx := Transaction{
		ID:          uuid.New(),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Type:        TypeExpense,
		Date:        in.DueDate,
		IsPaid:      in.IsPaid,
		CategoryID:  &categoryID,
	}
	query := `
		INSERT INTO transactions (id, description, amount, type, date, is_paid, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := s.pool.QueryRow(ctx, query,
		tx.ID,
		tx.Description,
		tx.Amount,
		string(tx.Type),
		tx.Date,
		tx.IsPaid,
		categoryID,
	).Scan(&tx.CreatedAt); err != nil {
		return nil, fmt.Errorf("finance: insert expense: %w", err)
	}
	return &tx, nil
}

// CreateCardTransaction writes every installment in a single database transaction.
func (s *PgStore) CreateCardTransaction(ctx context.Context, in CardTransactionInput) ([]Transaction, error) {
	if err := ValidateCardTransaction(in); err != nil {
		return nil, err
	}
	records := buildInstallments(in, s.now().UTC())

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("finance: begin card transaction: %w", err)
	}
	query := `
		INSERT INTO transactions (id, description, amount, type, date, is_paid, card_id,
			installment_number, installment_count, invoice_year, invoice_month, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8, $9, $10, $11)
	`
	for _, rec := range records {
		if _, err := dbtx.Exec(ctx, query,
			rec.ID,
			rec.Description,
			rec.Amount,
			string(rec.Type),
			rec.Date,
			in.CardID,
			rec.InstallmentNumber,
			rec.InstallmentCount,
			rec.InvoiceYear,
			rec.InvoiceMonth,
			rec.CreatedAt,
		); err != nil {
			_ = dbtx.Rollback(ctx)
			return nil, fmt.Errorf("finance: insert installment %d/%d: %w", rec.InstallmentNumber, rec.InstallmentCount, err)
		}
	}
	if err := dbtx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("finance: commit card transaction: %w", err)
	}
	return records, nil
}
