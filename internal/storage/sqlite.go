package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Store on a single SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// DSN builds a modernc.org/sqlite connection string with WAL and a busy timeout.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewSQLiteRepository opens dbPath, creating its directory, and applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- transactions ---

const transactionColumns = `seq, id, owner_id, amount, currency, category_id, date, description, created_at, updated_at`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, amount, currency, category_id, date, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Amount.String(), string(t.Currency), t.CategoryID, t.Date.String(),
		t.Description, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Transaction{}, fmt.Errorf("create transaction %s: %w", t.ID, core.ErrDuplicate)
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("read transaction seq: %w", err)
	}
	t.Seq = seq
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount = ?, currency = ?, category_id = ?, date = ?, description = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		t.Amount.String(), string(t.Currency), t.CategoryID, t.Date.String(), t.Description,
		formatTime(t.UpdatedAt), t.ID, t.OwnerID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := expectOneRow(res, "transaction", t.ID); err != nil {
		return core.Transaction{}, err
	}
	return r.GetTransaction(ctx, t.OwnerID, t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectOneRow(res, "transaction", id)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string, filter core.TransactionFilter) ([]core.Transaction, error) {
	return listTransactions(ctx, r.db, ownerID, filter)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listTransactions(ctx context.Context, q queryer, ownerID string, filter core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{ownerID}
	)
	if filter.Period != nil {
		where = append(where, "date >= ?", "date <= ?")
		args = append(args, filter.Period.Start().String(), filter.Period.End().String())
	}
	if filter.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// --- categories ---

const categoryColumns = `id, owner_id, name, color, description, created_at`

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	return listCategories(ctx, r.db, ownerID)
}

func listCategories(ctx context.Context, q queryer, ownerID string) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE owner_id = '' OR owner_id = ?
		ORDER BY name COLLATE NOCASE, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE id = ? AND (owner_id = '' OR owner_id = ?)`, id, ownerID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategoryName(ctx, tx, c.OwnerID, c.Name, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, owner_id, name, color, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.OwnerID, c.Name, c.Color, c.Description, formatTime(c.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicate)
			}
			return fmt.Errorf("create category: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategoryName(ctx, tx, c.OwnerID, c.Name, c.ID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE categories SET name = ?, color = ?, description = ?
			WHERE id = ? AND owner_id = ? AND owner_id != ''`,
			c.Name, c.Color, c.Description, c.ID, c.OwnerID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicate)
			}
			return fmt.Errorf("update category: %w", err)
		}
		return expectOneRow(res, "category", c.ID)
	})
	if err != nil {
		return core.Category{}, err
	}
	return r.GetCategory(ctx, c.OwnerID, c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND owner_id = ? AND owner_id != ''`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOneRow(res, "category", id)
}

// checkCategoryName rejects names already used by a global default or by
// another category of the same owner.
func checkCategoryName(ctx context.Context, tx *sql.Tx, ownerID, name, exceptID string) error {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM categories
		WHERE (owner_id = '' OR owner_id = ?) AND name = ? COLLATE NOCASE AND id != ?`,
		ownerID, name, exceptID).Scan(&n)
	if err != nil {
		return fmt.Errorf("check category name: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("category %q: %w", name, core.ErrDuplicate)
	}
	return nil
}

// --- profiles ---

func (r *SQLiteRepository) EnsureProfile(ctx context.Context, ownerID string, base core.Currency) (core.UserProfile, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_profiles (owner_id, base_currency, budget_limit, updated_at)
		VALUES (?, ?, '0', ?)
		ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, string(base), formatTime(r.now()))
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return getProfile(ctx, r.db, ownerID)
}

func (r *SQLiteRepository) UpdateBaseCurrency(ctx context.Context, ownerID string, base core.Currency) (core.UserProfile, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_profiles (owner_id, base_currency, budget_limit, updated_at)
		VALUES (?, ?, '0', ?)
		ON CONFLICT (owner_id) DO UPDATE SET base_currency = excluded.base_currency, updated_at = excluded.updated_at`,
		ownerID, string(base), formatTime(r.now()))
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("update base currency: %w", err)
	}
	return getProfile(ctx, r.db, ownerID)
}

// SetBudgetLimit upserts the limit in one statement; the base currency of a
// new profile is filled in by a later EnsureProfile, so callers ensure first.
func (r *SQLiteRepository) SetBudgetLimit(ctx context.Context, ownerID string, limit decimal.Decimal) (core.UserProfile, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_profiles SET budget_limit = ?, updated_at = ? WHERE owner_id = ?`,
		limit.String(), formatTime(r.now()), ownerID)
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("set budget limit: %w", err)
	}
	if err := expectOneRow(res, "profile", ownerID); err != nil {
		return core.UserProfile{}, err
	}
	return getProfile(ctx, r.db, ownerID)
}

func getProfile(ctx context.Context, q queryer, ownerID string) (core.UserProfile, error) {
	var (
		p                    core.UserProfile
		base, limit, updated string
	)
	err := q.QueryRowContext(ctx, `
		SELECT owner_id, base_currency, budget_limit, updated_at
		FROM user_profiles WHERE owner_id = ?`, ownerID).
		Scan(&p.OwnerID, &base, &limit, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{}, fmt.Errorf("profile %s: %w", ownerID, core.ErrNotFound)
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	p.BaseCurrency = core.Currency(base)
	if p.BudgetLimit, err = decimal.NewFromString(limit); err != nil {
		return core.UserProfile{}, fmt.Errorf("parse budget limit %q: %w", limit, err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return core.UserProfile{}, err
	}
	return p, nil
}

// --- exchange rates ---

func (r *SQLiteRepository) AppendRates(ctx context.Context, rates []core.ExchangeRate) (int, error) {
	inserted := 0
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO exchange_rates (source, target, as_of, rate, provider, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (source, target, as_of) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare rate insert: %w", err)
		}
		defer stmt.Close()

		for _, rate := range rates {
			if err := rate.Validate(); err != nil {
				return fmt.Errorf("rate %s/%s %s: %w", rate.Source, rate.Target, rate.AsOf, err)
			}
			res, err := stmt.ExecContext(ctx, string(rate.Source), string(rate.Target),
				rate.AsOf.String(), rate.Rate.String(), rate.Provider, formatTime(rate.FetchedAt))
			if err != nil {
				return fmt.Errorf("insert rate: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *SQLiteRepository) LatestRate(ctx context.Context, source, target core.Currency, asOf core.Date) (core.ExchangeRate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT source, target, as_of, rate, provider, fetched_at FROM exchange_rates
		WHERE source = ? AND target = ? AND as_of <= ?
		ORDER BY as_of DESC LIMIT 1`,
		string(source), string(target), asOf.String())
	rate, err := scanRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExchangeRate{}, fmt.Errorf("rate %s/%s on %s: %w", source, target, asOf, core.ErrNotFound)
	}
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("latest rate: %w", err)
	}
	return rate, nil
}

func (r *SQLiteRepository) ListRates(ctx context.Context, source, target core.Currency, limit int) ([]core.ExchangeRate, error) {
	query := `
		SELECT source, target, as_of, rate, provider, fetched_at FROM exchange_rates
		WHERE source = ? AND target = ?
		ORDER BY as_of DESC`
	args := []any{string(source), string(target)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	var out []core.ExchangeRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		out = append(out, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rates: %w", err)
	}
	return out, nil
}

// --- budget alerts ---

func (r *SQLiteRepository) RecordAlert(ctx context.Context, a core.BudgetAlert) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_alerts (owner_id, period, tier, message, percentage, spend, budget_limit, base_currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, period, tier) DO NOTHING`,
		a.OwnerID, a.Period.String(), string(a.Tier), a.Message, a.Percentage.String(),
		a.Spend.String(), a.BudgetLimit.String(), string(a.BaseCurrency), formatTime(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("record alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, ownerID string, limit int) ([]core.BudgetAlert, error) {
	query := `
		SELECT id, owner_id, period, tier, message, percentage, spend, budget_limit, base_currency, created_at
		FROM budget_alerts WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetAlert
	for rows.Next() {
		var (
			a                             core.BudgetAlert
			period, tier, pct, spend, lim string
			base, created                 string
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &period, &tier, &a.Message, &pct, &spend, &lim, &base, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.Period, err = core.ParsePeriod(period); err != nil {
			return nil, err
		}
		a.Tier = core.Tier(tier)
		a.BaseCurrency = core.Currency(base)
		if a.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse alert percentage: %w", err)
		}
		if a.Spend, err = decimal.NewFromString(spend); err != nil {
			return nil, fmt.Errorf("parse alert spend: %w", err)
		}
		if a.BudgetLimit, err = decimal.NewFromString(lim); err != nil {
			return nil, fmt.Errorf("parse alert limit: %w", err)
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// --- snapshot ---

// Snapshot reads the profile, transactions and categories inside one read
// transaction so a summary never mixes states.
func (r *SQLiteRepository) Snapshot(ctx context.Context, ownerID string, filter core.TransactionFilter) (Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var snap Snapshot
	if snap.Profile, err = getProfile(ctx, tx, ownerID); err != nil {
		return Snapshot{}, err
	}
	if snap.Transactions, err = listTransactions(ctx, tx, ownerID, filter); err != nil {
		return Snapshot{}, err
	}
	cats, err := listCategories(ctx, tx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Categories = make(map[string]core.Category, len(cats))
	for _, c := range cats {
		snap.Categories[c.ID] = c
	}
	return snap, nil
}

// --- helpers ---

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                      core.Transaction
		amount, currency, date string
		created, updated       string
	)
	if err := s.Scan(&t.Seq, &t.ID, &t.OwnerID, &amount, &currency, &t.CategoryID, &date,
		&t.Description, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Currency = core.Currency(currency)
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c       core.Category
		created string
	)
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.Description, &created); err != nil {
		return core.Category{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func scanRate(s scanner) (core.ExchangeRate, error) {
	var (
		rate                        core.ExchangeRate
		source, target, asOf, value string
		fetched                     string
	)
	if err := s.Scan(&source, &target, &asOf, &value, &rate.Provider, &fetched); err != nil {
		return core.ExchangeRate{}, err
	}
	rate.Source = core.Currency(source)
	rate.Target = core.Currency(target)
	var err error
	if rate.AsOf, err = core.ParseDate(asOf); err != nil {
		return core.ExchangeRate{}, err
	}
	if rate.Rate, err = decimal.NewFromString(value); err != nil {
		return core.ExchangeRate{}, fmt.Errorf("parse rate %q: %w", value, err)
	}
	if rate.FetchedAt, err = parseTime(fetched); err != nil {
		return core.ExchangeRate{}, err
	}
	return rate, nil
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
