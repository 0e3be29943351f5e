/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements LedgerStore, GradeStore, OrderStore, SettlementStore,
  PolicyStore, and CompanyStore on a single SQLite database. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on balance_transactions, ever
  - Unique index on idempotency_key catches double-spends at the database
    even if a caller bypasses the BalanceLedger's locks
  - settlements has a unique constraint on order_id: one settlement per
    order, written once

KEY TABLES:
  companies:            The HQ -> Agency -> Retail hierarchy
  policies:             Policy definitions as JSON (replaced wholesale)
  orders:               Orders with a status column
  balance_transactions: Immutable money ledger
  grade_counters:       (company, policy, period_key) -> cumulative count
  grade_orders:         Order ids already counted (exactly-once guard)
  settlements:          Immutable splits, unique per order

CONCURRENCY:
  WAL mode for concurrent readers; a mutex serializes writers, matching
  SQLite's single-writer model. Grade increments and multi-leg ledger
  writes run inside real SQL transactions.

USAGE:
  store, err := sqlite.New("./data/rebate.db")  // or ":memory:"
  ledger := engine.NewBalanceLedger(store)

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/rebate-engine/engine"
)

// Store implements all engine storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The in-memory database vanishes if the pool opens a second
	// connection; file databases are serialized by the write mutex anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		carrier TEXT NOT NULL,
		plan_price TEXT NOT NULL,
		contract_period INTEGER NOT NULL,
		sim_type TEXT NOT NULL,
		status TEXT NOT NULL,
		base_amount TEXT NOT NULL DEFAULT '0',
		held_amount TEXT NOT NULL DEFAULT '0',
		grade_bonus TEXT NOT NULL DEFAULT '0',
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_company ON orders(company_id);

	-- Append-only money ledger. No UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS balance_transactions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		delta TEXT NOT NULL,
		reason TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_tx_company
		ON balance_transactions(company_id);
	CREATE INDEX IF NOT EXISTS idx_balance_tx_order
		ON balance_transactions(order_id) WHERE order_id != '';

	CREATE TABLE IF NOT EXISTS grade_counters (
		company_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (company_id, policy_id, period_key)
	);

	-- Exactly-once guard: an order id is counted at most once.
	CREATE TABLE IF NOT EXISTS grade_orders (
		order_id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		period_key TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		hq_share TEXT NOT NULL,
		agency_share TEXT NOT NULL,
		retail_share TEXT NOT NULL,
		grade_bonus TEXT NOT NULL,
		total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// LEDGER STORE (engine.LedgerStore)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Append(ctx context.Context, tx engine.BalanceTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db execer, tx engine.BalanceTransaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO balance_transactions
		(id, company_id, delta, reason, order_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.CompanyID,
		tx.Delta.Value.String(),
		tx.Reason,
		tx.OrderID,
		tx.IdempotencyKey,
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

const txColumns = `id, company_id, delta, reason, order_id, idempotency_key, created_at`

func (s *Store) Load(ctx context.Context, companyID engine.CompanyID) ([]engine.BalanceTransaction, error) {
	return loadTxs(ctx, s.db, companyID)
}

func loadTxs(ctx context.Context, db execer, companyID engine.CompanyID) ([]engine.BalanceTransaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM balance_transactions
		WHERE company_id = ?
		ORDER BY created_at ASC, id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.BalanceTransaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTx(row rowScanner) (engine.BalanceTransaction, error) {
	var tx engine.BalanceTransaction
	var delta, createdAt string
	if err := row.Scan(&tx.ID, &tx.CompanyID, &delta, &tx.Reason, &tx.OrderID, &tx.IdempotencyKey, &createdAt); err != nil {
		return tx, err
	}
	var err error
	if tx.Delta, err = engine.ParseMoney(delta); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return tx, fmt.Errorf("transaction %s: invalid created_at: %w", tx.ID, err)
	}
	return tx, nil
}

func (s *Store) FindByKey(ctx context.Context, idempotencyKey string) (*engine.BalanceTransaction, error) {
	return findByKey(ctx, s.db, idempotencyKey)
}

func findByKey(ctx context.Context, db execer, key string) (*engine.BalanceTransaction, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+txColumns+`
		FROM balance_transactions
		WHERE idempotency_key = ?`, key)
	tx, err := scanTx(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) Balance(ctx context.Context, companyID engine.CompanyID) (engine.Money, error) {
	return balanceOf(ctx, s.db, companyID)
}

func balanceOf(ctx context.Context, db execer, companyID engine.CompanyID) (engine.Money, error) {
	// Deltas are stored as decimal strings, so the sum is computed by
	// replaying rows rather than SQL SUM (which would coerce to float).
	rows, err := db.QueryContext(ctx, `
		SELECT delta FROM balance_transactions WHERE company_id = ?`, companyID)
	if err != nil {
		return engine.Money{}, err
	}
	defer rows.Close()

	balance := engine.ZeroMoney()
	for rows.Next() {
		var delta string
		if err := rows.Scan(&delta); err != nil {
			return engine.Money{}, err
		}
		d, err := engine.ParseMoney(delta)
		if err != nil {
			return engine.Money{}, fmt.Errorf("company %s ledger: %w", companyID, err)
		}
		balance = balance.Add(d)
	}
	return balance, rows.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&ledgerTxView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// ledgerTxView scopes LedgerStore operations to one SQL transaction.
type ledgerTxView struct {
	tx *sql.Tx
}

func (v *ledgerTxView) Append(ctx context.Context, tx engine.BalanceTransaction) error {
	return appendTx(ctx, v.tx, tx)
}

func (v *ledgerTxView) Load(ctx context.Context, companyID engine.CompanyID) ([]engine.BalanceTransaction, error) {
	return loadTxs(ctx, v.tx, companyID)
}

func (v *ledgerTxView) FindByKey(ctx context.Context, key string) (*engine.BalanceTransaction, error) {
	return findByKey(ctx, v.tx, key)
}

func (v *ledgerTxView) Balance(ctx context.Context, companyID engine.CompanyID) (engine.Money, error) {
	return balanceOf(ctx, v.tx, companyID)
}

func (v *ledgerTxView) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	return fn(v) // already inside the transaction
}

// =============================================================================
// GRADE STORE (engine.GradeStore)
// =============================================================================

func (s *Store) RecordOrder(ctx context.Context, companyID engine.CompanyID, policyID engine.PolicyID, periodKey string, orderID engine.OrderID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer sqlTx.Rollback()

	// Exactly-once: if the order was already counted, return the counter
	// it landed in without incrementing.
	var priorCompany, priorPolicy, priorPeriod string
	err = sqlTx.QueryRowContext(ctx, `
		SELECT company_id, policy_id, period_key FROM grade_orders WHERE order_id = ?`,
		orderID).Scan(&priorCompany, &priorPolicy, &priorPeriod)
	switch {
	case err == nil:
		var count int
		err = sqlTx.QueryRowContext(ctx, `
			SELECT count FROM grade_counters
			WHERE company_id = ? AND policy_id = ? AND period_key = ?`,
			priorCompany, priorPolicy, priorPeriod).Scan(&count)
		if err != nil {
			return 0, err
		}
		return count, sqlTx.Commit()
	case err != sql.ErrNoRows:
		return 0, err
	}

	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO grade_orders (order_id, company_id, policy_id, period_key)
		VALUES (?, ?, ?, ?)`, orderID, companyID, policyID, periodKey); err != nil {
		return 0, err
	}

	// Counter rows are created lazily on the first qualifying order.
	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO grade_counters (company_id, policy_id, period_key, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(company_id, policy_id, period_key) DO UPDATE SET count = count + 1`,
		companyID, policyID, periodKey); err != nil {
		return 0, err
	}

	var count int
	if err := sqlTx.QueryRowContext(ctx, `
		SELECT count FROM grade_counters
		WHERE company_id = ? AND policy_id = ? AND period_key = ?`,
		companyID, policyID, periodKey).Scan(&count); err != nil {
		return 0, err
	}
	return count, sqlTx.Commit()
}

func (s *Store) Count(ctx context.Context, companyID engine.CompanyID, policyID engine.PolicyID, periodKey string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM grade_counters
		WHERE company_id = ? AND policy_id = ? AND period_key = ?`,
		companyID, policyID, periodKey).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// =============================================================================
// ORDER STORE (engine.OrderStore)
// =============================================================================

func (s *Store) Create(ctx context.Context, o engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, policy_id, company_id, carrier, plan_price, contract_period, sim_type,
		 status, base_amount, held_amount, grade_bonus, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PolicyID, o.CompanyID, o.Carrier,
		o.PlanPrice.Value.String(), o.ContractPeriod, o.SIMType,
		o.Status, o.BaseAmount.Value.String(), o.HeldAmount.Value.String(),
		o.GradeBonus.Value.String(), o.RejectionReason,
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const orderColumns = `id, policy_id, company_id, carrier, plan_price, contract_period, sim_type,
	status, base_amount, held_amount, grade_bonus, rejection_reason, created_at, updated_at`

func scanOrder(row rowScanner) (engine.Order, error) {
	var o engine.Order
	var planPrice, base, held, bonus, createdAt, updatedAt string
	err := row.Scan(&o.ID, &o.PolicyID, &o.CompanyID, &o.Carrier,
		&planPrice, &o.ContractPeriod, &o.SIMType,
		&o.Status, &base, &held, &bonus, &o.RejectionReason,
		&createdAt, &updatedAt)
	if err != nil {
		return o, err
	}
	for _, field := range []struct {
		dst *engine.Money
		raw string
	}{
		{&o.PlanPrice, planPrice}, {&o.BaseAmount, base}, {&o.HeldAmount, held}, {&o.GradeBonus, bonus},
	} {
		if *field.dst, err = engine.ParseMoney(field.raw); err != nil {
			return o, fmt.Errorf("order %s: %w", o.ID, err)
		}
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return o, fmt.Errorf("order %s: invalid created_at: %w", o.ID, err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return o, fmt.Errorf("order %s: invalid updated_at: %w", o.ID, err)
	}
	return o, nil
}

func (s *Store) Get(ctx context.Context, id engine.OrderID) (*engine.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) Update(ctx context.Context, o engine.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, base_amount = ?, held_amount = ?, grade_bonus = ?,
			rejection_reason = ?, updated_at = ?
		WHERE id = ?`,
		o.Status, o.BaseAmount.Value.String(), o.HeldAmount.Value.String(),
		o.GradeBonus.Value.String(), o.RejectionReason,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano), o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrOrderNotFound
	}
	return nil
}

// Transition is the compare-and-swap status write: the row only updates
// when the stored status still matches the expected one, so two racing
// transitions can never both commit.
func (s *Store) Transition(ctx context.Context, o engine.Order, from engine.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, base_amount = ?, held_amount = ?, grade_bonus = ?,
			rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		o.Status, o.BaseAmount.Value.String(), o.HeldAmount.Value.String(),
		o.GradeBonus.Value.String(), o.RejectionReason,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano), o.ID, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, o.ID).Scan(&exists); err == sql.ErrNoRows {
			return engine.ErrOrderNotFound
		}
		return engine.ErrStaleOrderStatus
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, status engine.OrderStatus) ([]engine.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// =============================================================================
// SETTLEMENT STORE (engine.SettlementStore)
// =============================================================================

func (s *Store) CreateSettlement(ctx context.Context, st engine.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements
		(id, order_id, hq_share, agency_share, retail_share, grade_bonus, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.OrderID,
		st.HQShare.Value.String(), st.AgencyShare.Value.String(), st.RetailShare.Value.String(),
		st.GradeBonus.Value.String(), st.Total.Value.String(),
		st.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrSettlementImmutable
		}
		return err
	}
	return nil
}

func (s *Store) GetSettlementByOrder(ctx context.Context, orderID engine.OrderID) (*engine.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, hq_share, agency_share, retail_share, grade_bonus, total, created_at
		FROM settlements WHERE order_id = ?`, orderID)

	var st engine.Settlement
	var hq, agency, retail, bonus, total, createdAt string
	err := row.Scan(&st.ID, &st.OrderID, &hq, &agency, &retail, &bonus, &total, &createdAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrSettlementNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, field := range []struct {
		dst *engine.Money
		raw string
	}{
		{&st.HQShare, hq}, {&st.AgencyShare, agency}, {&st.RetailShare, retail},
		{&st.GradeBonus, bonus}, {&st.Total, total},
	} {
		if *field.dst, err = engine.ParseMoney(field.raw); err != nil {
			return nil, fmt.Errorf("settlement for order %s: %w", orderID, err)
		}
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("settlement for order %s: invalid created_at: %w", orderID, err)
	}
	return &st, nil
}

// Settlements adapts the store to engine.SettlementStore (the interface
// method names collide with OrderStore's Create/Get on the flat Store).
func (s *Store) Settlements() engine.SettlementStore { return settlementAdapter{s} }

type settlementAdapter struct{ s *Store }

func (a settlementAdapter) Create(ctx context.Context, st engine.Settlement) error {
	return a.s.CreateSettlement(ctx, st)
}

func (a settlementAdapter) GetByOrder(ctx context.Context, orderID engine.OrderID) (*engine.Settlement, error) {
	return a.s.GetSettlementByOrder(ctx, orderID)
}

// =============================================================================
// POLICY STORE (engine.PolicyStore)
// =============================================================================

func (s *Store) PutPolicy(ctx context.Context, p engine.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, config_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			config_json = excluded.config_json, updated_at = excluded.updated_at`,
		p.ID, p.Name, string(configJSON), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetPolicy(ctx context.Context, id engine.PolicyID) (*engine.Policy, error) {
	var configJSON string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM policies WHERE id = ?`, id).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	var p engine.Policy
	if err := json.Unmarshal([]byte(configJSON), &p); err != nil {
		return nil, fmt.Errorf("corrupt policy config for %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]engine.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT config_json FROM policies ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.Policy
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		var p engine.Policy
		if err := json.Unmarshal([]byte(configJSON), &p); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Policies adapts the store to engine.PolicyStore.
func (s *Store) Policies() engine.PolicyStore { return policyAdapter{s} }

type policyAdapter struct{ s *Store }

func (a policyAdapter) Put(ctx context.Context, p engine.Policy) error { return a.s.PutPolicy(ctx, p) }
func (a policyAdapter) Get(ctx context.Context, id engine.PolicyID) (*engine.Policy, error) {
	return a.s.GetPolicy(ctx, id)
}
func (a policyAdapter) List(ctx context.Context) ([]engine.Policy, error) {
	return a.s.ListPolicies(ctx)
}

// =============================================================================
// COMPANY STORE (engine.CompanyStore)
// =============================================================================

func (s *Store) PutCompany(ctx context.Context, c engine.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, type, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			type = excluded.type, parent_id = excluded.parent_id`,
		c.ID, c.Name, c.Type, c.ParentID, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetCompany(ctx context.Context, id engine.CompanyID) (*engine.Company, error) {
	var c engine.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, parent_id FROM companies WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Type, &c.ParentID)
	if err == sql.ErrNoRows {
		return nil, engine.ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]engine.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, parent_id FROM companies ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []engine.Company
	for rows.Next() {
		var c engine.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.ParentID); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Companies adapts the store to engine.CompanyStore.
func (s *Store) Companies() engine.CompanyStore { return companyAdapter{s} }

type companyAdapter struct{ s *Store }

func (a companyAdapter) Put(ctx context.Context, c engine.Company) error {
	return a.s.PutCompany(ctx, c)
}
func (a companyAdapter) Get(ctx context.Context, id engine.CompanyID) (*engine.Company, error) {
	return a.s.GetCompany(ctx, id)
}
func (a companyAdapter) List(ctx context.Context) ([]engine.Company, error) {
	return a.s.ListCompanies(ctx)
}
