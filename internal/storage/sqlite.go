package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"tally/internal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a single SQLite database. SQLite's
// writer serialization provides the per-ledger write ordering the engine
// requires; reads run under snapshot isolation in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating parent directories if needed) the
// database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if err := migrateUp(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// migrateUp brings the schema to the latest embedded migration. The
// migrator gets its own connection; closing it must not tear down the
// pool the store keeps using.
func migrateUp(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("wrap migration connection: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- chart of accounts ---

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *core.LedgerGroup) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO ledger_groups (name, classification, subtype, description) VALUES (?, ?, ?, ?)",
		g.Name, string(g.Classification), string(g.Subtype), g.Description,
	)
	if err != nil {
		return 0, fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("group id: %w", err)
	}
	g.ID = id
	return id, nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id int64) (*core.LedgerGroup, error) {
	g := &core.LedgerGroup{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, classification, subtype, description FROM ledger_groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name, &g.Classification, &g.Subtype, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *SQLiteStore) UpdateGroup(ctx context.Context, g *core.LedgerGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current core.Classification
	err = tx.QueryRowContext(ctx, "SELECT classification FROM ledger_groups WHERE id = ?", g.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %d: %w", g.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}

	// Changing classification once history exists would silently invert
	// the sign of every report built on it.
	if g.Classification != current {
		var n int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM transactions t
			WHERE t.debit_ledger_id  IN (SELECT id FROM ledgers WHERE group_id = ?)
			   OR t.credit_ledger_id IN (SELECT id FROM ledgers WHERE group_id = ?)`,
			g.ID, g.ID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("count group transactions: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("classification change with %d posted transactions: %w", n, core.ErrConflict)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE ledger_groups SET name = ?, classification = ?, subtype = ?, description = ? WHERE id = ?",
		g.Name, string(g.Classification), string(g.Subtype), g.Description, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]core.LedgerGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, classification, subtype, description FROM ledger_groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []core.LedgerGroup
	for rows.Next() {
		var g core.LedgerGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Classification, &g.Subtype, &g.Description); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) CountLedgers(ctx context.Context, groupID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledgers WHERE group_id = ?", groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledgers: %w", err)
	}
	return n, nil
}

const ledgerColumns = `
	l.id, l.name, l.group_id, l.opening_balance_cents, l.account_number,
	l.notes, l.credit_limit_cents, l.due_day, l.version, g.classification, g.subtype`

func scanLedger(row interface{ Scan(...any) error }) (*core.Ledger, error) {
	l := &core.Ledger{}
	var limit sql.NullInt64
	var dueDay sql.NullInt64
	err := row.Scan(&l.ID, &l.Name, &l.GroupID, &l.OpeningBalance.Cents, &l.AccountNumber,
		&l.Notes, &limit, &dueDay, &l.Version, &l.Classification, &l.Subtype)
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		l.CreditLimit = &core.Money{Cents: limit.Int64}
	}
	if dueDay.Valid {
		d := int(dueDay.Int64)
		l.DueDay = &d
	}
	return l, nil
}

func (s *SQLiteStore) CreateLedger(ctx context.Context, l *core.Ledger) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledger_groups WHERE id = ?", l.GroupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("group %d: %w", l.GroupID, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("check group: %w", err)
	}

	var limit, dueDay any
	if l.CreditLimit != nil {
		limit = l.CreditLimit.Cents
	}
	if l.DueDay != nil {
		dueDay = *l.DueDay
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledgers (name, group_id, opening_balance_cents, account_number, notes, credit_limit_cents, due_day)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.Name, l.GroupID, l.OpeningBalance.Cents, l.AccountNumber, l.Notes, limit, dueDay,
	)
	if err != nil {
		return 0, fmt.Errorf("insert ledger: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	l.ID = id
	return id, nil
}

func (s *SQLiteStore) GetLedger(ctx context.Context, id int64) (*core.Ledger, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+ledgerColumns+" FROM ledgers l JOIN ledger_groups g ON g.id = l.group_id WHERE l.id = ?", id)
	l, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) UpdateLedger(ctx context.Context, l *core.Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledgers WHERE id = ?", l.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger %d: %w", l.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check ledger: %w", err)
	}
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledger_groups WHERE id = ?", l.GroupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %d: %w", l.GroupID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}

	var limit, dueDay any
	if l.CreditLimit != nil {
		limit = l.CreditLimit.Cents
	}
	if l.DueDay != nil {
		dueDay = *l.DueDay
	}
	// opening_balance_cents is fixed at creation; balances change only
	// through transactions.
	_, err = tx.ExecContext(ctx, `
		UPDATE ledgers SET name = ?, group_id = ?, account_number = ?, notes = ?,
			credit_limit_cents = ?, due_day = ?
		WHERE id = ?`,
		l.Name, l.GroupID, l.AccountNumber, l.Notes, limit, dueDay, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListLedgers(ctx context.Context, f LedgerFilter) ([]core.Ledger, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.GroupID > 0 {
		where = append(where, "l.group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.Classification != "" {
		where = append(where, "g.classification = ?")
		args = append(args, string(f.Classification))
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledgers l JOIN ledger_groups g ON g.id = l.group_id WHERE "+cond,
		args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledgers: %w", err)
	}

	query := "SELECT" + ledgerColumns +
		" FROM ledgers l JOIN ledger_groups g ON g.id = l.group_id WHERE " + cond + " ORDER BY l.id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []core.Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ledger: %w", err)
		}
		ledgers = append(ledgers, *l)
	}
	return ledgers, total, rows.Err()
}

// --- transaction ledger ---

const transactionColumns = `
	id, transaction_date, kind, amount_cents, debit_ledger_id, credit_ledger_id,
	narration, reference_number, COALESCE(idempotency_key, ''), version, synced_at`

func scanTransaction(row interface{ Scan(...any) error }) (*core.Transaction, error) {
	t := &core.Transaction{}
	var date string
	var synced sql.NullTime
	err := row.Scan(&t.ID, &date, &t.Kind, &t.Amount.Cents, &t.DebitLedgerID, &t.CreditLedgerID,
		&t.Narration, &t.ReferenceNumber, &t.IdempotencyKey, &t.Version, &synced)
	if err != nil {
		return nil, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("stored date %q: %w", date, core.ErrIntegrity)
	}
	t.Date = d
	if synced.Valid {
		t.SyncedAt = &synced.Time
	}
	return t, nil
}

func (s *SQLiteStore) ledgerExistsTx(ctx context.Context, tx *sql.Tx, field string, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM ledgers WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", field, id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func bumpLedgerVersions(ctx context.Context, tx *sql.Tx, ids ...int64) error {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := tx.ExecContext(ctx, "UPDATE ledgers SET version = version + 1 WHERE id = ?", id); err != nil {
			return fmt.Errorf("bump ledger %d version: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, t *core.Transaction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Idempotent replay: same key returns the original id, posting nothing.
	if t.IdempotencyKey != "" {
		var existing int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM transactions WHERE idempotency_key = ?", t.IdempotencyKey).Scan(&existing)
		if err == nil {
			t.ID = existing
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	if err := s.ledgerExistsTx(ctx, tx, "debit_ledger_id", t.DebitLedgerID); err != nil {
		return 0, err
	}
	if err := s.ledgerExistsTx(ctx, tx, "credit_ledger_id", t.CreditLedgerID); err != nil {
		return 0, err
	}

	var key any
	if t.IdempotencyKey != "" {
		key = t.IdempotencyKey
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_date, kind, amount_cents, debit_ledger_id,
			credit_ledger_id, narration, reference_number, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Date.String(), string(t.Kind), t.Amount.Cents, t.DebitLedgerID, t.CreditLedgerID,
		t.Narration, t.ReferenceNumber, key,
	)
	if err != nil {
		// Two concurrent creates with the same key can both pass the
		// replay lookup; the loser lands on the unique index and resolves
		// to the winner's id.
		if t.IdempotencyKey != "" && isUniqueViolation(err) {
			tx.Rollback()
			var existing int64
			lookupErr := s.db.QueryRowContext(ctx,
				"SELECT id FROM transactions WHERE idempotency_key = ?", t.IdempotencyKey).Scan(&existing)
			if lookupErr == nil {
				t.ID = existing
				return existing, nil
			}
		}
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}

	if err := bumpLedgerVersions(ctx, tx, t.DebitLedgerID, t.CreditLedgerID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	t.ID = id
	t.Version = 1
	return id, nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var oldDebit, oldCredit int64
	err = tx.QueryRowContext(ctx,
		"SELECT debit_ledger_id, credit_ledger_id FROM transactions WHERE id = ?", t.ID,
	).Scan(&oldDebit, &oldCredit)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if err := s.ledgerExistsTx(ctx, tx, "debit_ledger_id", t.DebitLedgerID); err != nil {
		return err
	}
	if err := s.ledgerExistsTx(ctx, tx, "credit_ledger_id", t.CreditLedgerID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET transaction_date = ?, kind = ?, amount_cents = ?,
			debit_ledger_id = ?, credit_ledger_id = ?, narration = ?, reference_number = ?,
			version = version + 1, synced_at = NULL
		WHERE id = ?`,
		t.Date.String(), string(t.Kind), t.Amount.Cents, t.DebitLedgerID, t.CreditLedgerID,
		t.Narration, t.ReferenceNumber, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	// Both the old and the new ledger pair see their cached balances
	// invalidated.
	if err := bumpLedgerVersions(ctx, tx, oldDebit, oldCredit, t.DebitLedgerID, t.CreditLedgerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var debit, credit int64
	err = tx.QueryRowContext(ctx,
		"SELECT debit_ledger_id, credit_ledger_id FROM transactions WHERE id = ?", id,
	).Scan(&debit, &credit)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := bumpLedgerVersions(ctx, tx, debit, credit); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.LedgerID > 0 {
		where = append(where, "(debit_ledger_id = ? OR credit_ledger_id = ?)")
		args = append(args, f.LedgerID, f.LedgerID)
	}
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, f.To.String())
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Ascending (date, id) order: the statement running balance depends
	// on this ordering.
	query := "SELECT" + transactionColumns + " FROM transactions WHERE " + cond +
		" ORDER BY transaction_date ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, total, rows.Err()
}

// --- balance inputs ---

func (s *SQLiteStore) SumPostings(ctx context.Context, ledgerID int64, asOf core.Date) (int64, int64, error) {
	dateCond := ""
	debitArgs := []any{ledgerID}
	creditArgs := []any{ledgerID}
	if !asOf.IsZero() {
		dateCond = " AND transaction_date <= ?"
		debitArgs = append(debitArgs, asOf.String())
		creditArgs = append(creditArgs, asOf.String())
	}

	var debits, credits int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE debit_ledger_id = ?"+dateCond,
		debitArgs...).Scan(&debits)
	if err != nil {
		return 0, 0, fmt.Errorf("sum debits: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE credit_ledger_id = ?"+dateCond,
		creditArgs...).Scan(&credits)
	if err != nil {
		return 0, 0, fmt.Errorf("sum credits: %w", err)
	}
	return debits, credits, nil
}

func (s *SQLiteStore) ActivityByLedger(ctx context.Context, from, to core.Date) ([]LedgerActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.name, g.classification,
			COALESCE(SUM(CASE WHEN t.debit_ledger_id = l.id THEN t.amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.credit_ledger_id = l.id THEN t.amount_cents ELSE 0 END), 0)
		FROM transactions t
		JOIN ledgers l ON l.id = t.debit_ledger_id OR l.id = t.credit_ledger_id
		JOIN ledger_groups g ON g.id = l.group_id
		WHERE t.transaction_date >= ? AND t.transaction_date <= ?
		GROUP BY l.id, l.name, g.classification
		ORDER BY l.id`,
		from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("activity by ledger: %w", err)
	}
	defer rows.Close()

	var out []LedgerActivity
	for rows.Next() {
		var a LedgerActivity
		if err := rows.Scan(&a.LedgerID, &a.Name, &a.Classification, &a.Debits, &a.Credits); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- lifecycle ---

func (s *SQLiteStore) DeleteEmptyGroup(ctx context.Context, groupID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledgers WHERE group_id = ?", groupID).Scan(&n); err != nil {
		return fmt.Errorf("count ledgers: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("group %d still has %d ledgers: %w", groupID, n, core.ErrConflict)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM ledger_groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReassignAndDeleteGroup(ctx context.Context, groupID, targetGroupID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledger_groups WHERE id = ?", targetGroupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("target group %d: %w", targetGroupID, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("check target group: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE ledgers SET group_id = ? WHERE group_id = ?", targetGroupID, groupID)
	if err != nil {
		return 0, fmt.Errorf("reassign ledgers: %w", err)
	}
	moved, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM ledger_groups WHERE id = ?", groupID)
	if err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(moved), nil
}

func (s *SQLiteStore) CascadeDeleteGroup(ctx context.Context, groupID int64) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM ledger_groups WHERE id = ?", groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("group %d: %w", groupID, core.ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("check group: %w", err)
	}

	// Counterparty ledgers outside the group lose postings too; their
	// cached balances must be invalidated.
	counterparties, err := collectInt64s(ctx, tx, `
		SELECT DISTINCT CASE
			WHEN dl.group_id = ? THEN t.credit_ledger_id
			ELSE t.debit_ledger_id
		END
		FROM transactions t
		JOIN ledgers dl ON dl.id = t.debit_ledger_id
		JOIN ledgers cl ON cl.id = t.credit_ledger_id
		WHERE dl.group_id = ? OR cl.group_id = ?`,
		groupID, groupID, groupID)
	if err != nil {
		return 0, 0, fmt.Errorf("collect counterparties: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE debit_ledger_id  IN (SELECT id FROM ledgers WHERE group_id = ?)
		   OR credit_ledger_id IN (SELECT id FROM ledgers WHERE group_id = ?)`,
		groupID, groupID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete transactions: %w", err)
	}
	txsDeleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM ledgers WHERE group_id = ?", groupID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete ledgers: %w", err)
	}
	ledgersDeleted, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ledger_groups WHERE id = ?", groupID); err != nil {
		return 0, 0, fmt.Errorf("delete group: %w", err)
	}
	if err := bumpLedgerVersions(ctx, tx, counterparties...); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return int(ledgersDeleted), int(txsDeleted), nil
}

func (s *SQLiteStore) DeleteLedger(ctx context.Context, ledgerID int64, cascade bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledgerExistsTx(ctx, tx, "ledger", ledgerID); err != nil {
		return 0, err
	}

	var n int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE debit_ledger_id = ? OR credit_ledger_id = ?",
		ledgerID, ledgerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	if n > 0 && !cascade {
		return 0, fmt.Errorf("ledger %d has %d transactions: %w", ledgerID, n, core.ErrConflict)
	}

	var txsDeleted int64
	if n > 0 {
		counterparties, err := collectInt64s(ctx, tx, `
			SELECT DISTINCT CASE
				WHEN t.debit_ledger_id = ? THEN t.credit_ledger_id
				ELSE t.debit_ledger_id
			END
			FROM transactions t
			WHERE t.debit_ledger_id = ? OR t.credit_ledger_id = ?`,
			ledgerID, ledgerID, ledgerID)
		if err != nil {
			return 0, fmt.Errorf("collect counterparties: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM transactions WHERE debit_ledger_id = ? OR credit_ledger_id = ?",
			ledgerID, ledgerID)
		if err != nil {
			return 0, fmt.Errorf("delete transactions: %w", err)
		}
		txsDeleted, _ = res.RowsAffected()
		if err := bumpLedgerVersions(ctx, tx, counterparties...); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM ledgers WHERE id = ?", ledgerID); err != nil {
		return 0, fmt.Errorf("delete ledger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(txsDeleted), nil
}

func collectInt64s(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- export feed ---

func (s *SQLiteStore) PendingSync(ctx context.Context, limit int) ([]PendingTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, version FROM transactions WHERE synced_at IS NULL ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync: %w", err)
	}
	defer rows.Close()

	var pending []PendingTransaction
	for rows.Next() {
		var p PendingTransaction
		if err := rows.Scan(&p.ID, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET synced_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET sync_attempts = sync_attempts + 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	return nil
}
