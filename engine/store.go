/*
store.go - Persistence interfaces for the settlement engine

PURPOSE:
  Defines the contract between the engine and the database. The engine
  performs no network I/O of its own; it blocks only on these stores.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage.

KEY INTERFACES:
  LedgerStore:     Append-only balance transaction persistence
  GradeStore:      Atomic per-(company, policy, period) order counters
  OrderStore:      Order persistence with status
  SettlementStore: Immutable settlements, unique per order
  PolicyStore:     Policy definitions (replaced wholesale, never edited)
  CompanyStore:    The reseller hierarchy

APPEND-ONLY CONTRACT:
  LedgerStore has no Update or Delete. Corrections are new transactions.
  SettlementStore has Create and reads only: a settlement is written once
  when an order completes and never mutated thereafter.

IDEMPOTENCY:
  Every ledger write carries an idempotency key scoped to the order id.
  Appending a duplicate key fails with ErrDuplicateIdempotencyKey; the
  BalanceLedger resolves this by returning the prior transaction, so client
  retries never double-deduct or double-settle.

ATOMICITY:
  WithTx executes a function against a transactional view: all writes
  commit together or none do. allocate()'s two legs and a settlement's
  three legs ride in one WithTx.

IMPLEMENTATIONS:
  - store/sqlite: production store with real SQL transactions
  - engine/store: in-memory store for tests and development
*/
package engine

import "context"

// =============================================================================
// LEDGER STORE - Append-only balance transactions
// =============================================================================

type LedgerStore interface {
	// Append persists a transaction. Fails with ErrDuplicateIdempotencyKey
	// if the key already exists. This is the ONLY write operation.
	Append(ctx context.Context, tx BalanceTransaction) error

	// Load returns all transactions for a company, ordered by creation.
	Load(ctx context.Context, companyID CompanyID) ([]BalanceTransaction, error)

	// FindByKey returns the transaction with the given idempotency key,
	// or nil if none exists.
	FindByKey(ctx context.Context, idempotencyKey string) (*BalanceTransaction, error)

	// Balance returns the sum of the company's transaction deltas.
	// Always ledger-derived; there is no separately-maintained counter.
	Balance(ctx context.Context, companyID CompanyID) (Money, error)

	// WithTx executes fn against a transactional view. If fn returns an
	// error the writes roll back; otherwise they commit together.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}

// =============================================================================
// GRADE STORE - Cumulative qualifying-order counters
// =============================================================================

type GradeStore interface {
	// RecordOrder atomically increments the counter for (company, policy,
	// periodKey) and returns the new count. Exactly-once per order id:
	// recording the same order again returns the current count without
	// incrementing.
	RecordOrder(ctx context.Context, companyID CompanyID, policyID PolicyID, periodKey string, orderID OrderID) (int, error)

	// Count returns the current counter value. Zero if the counter row
	// has not been created yet (rows are created lazily on first order).
	Count(ctx context.Context, companyID CompanyID, policyID PolicyID, periodKey string) (int, error)
}

// =============================================================================
// ORDER / SETTLEMENT / POLICY / COMPANY STORES
// =============================================================================

type OrderStore interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id OrderID) (*Order, error)

	// Update persists non-status fields (resolved amounts on a draft).
	// Status changes go through Transition.
	Update(ctx context.Context, o Order) error

	// Transition persists o only if the stored status still equals from
	// (compare-and-swap on the status column). Fails with
	// ErrStaleOrderStatus when another transition committed first.
	Transition(ctx context.Context, o Order, from OrderStatus) error

	ListByStatus(ctx context.Context, status OrderStatus) ([]Order, error)
}

type SettlementStore interface {
	// Create persists a settlement. Fails with ErrSettlementImmutable if
	// one already exists for the order (unique constraint on order id).
	Create(ctx context.Context, s Settlement) error

	// GetByOrder returns the settlement for an order, or
	// ErrSettlementNotFound.
	GetByOrder(ctx context.Context, orderID OrderID) (*Settlement, error)
}

type PolicyStore interface {
	// Put creates or replaces a policy wholesale. No partial edits.
	Put(ctx context.Context, p Policy) error
	Get(ctx context.Context, id PolicyID) (*Policy, error)
	List(ctx context.Context) ([]Policy, error)
}

type CompanyStore interface {
	Put(ctx context.Context, c Company) error
	Get(ctx context.Context, id CompanyID) (*Company, error)
	List(ctx context.Context) ([]Company, error)
}
