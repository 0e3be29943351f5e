/*
ledger.go - The multi-party balance ledger

PURPOSE:
  The only component permitted to mutate money. Every company's allocatable
  rebate balance lives here as an append-only transaction log; the balance
  is always the sum of the company's deltas, never a separately-maintained
  counter that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Ever.
  2. NON-NEGATIVE: No committed transaction leaves a balance below zero.
  3. IDEMPOTENT: Keys scoped to the order id; a retried deduct or settle
     returns the prior result instead of moving money twice.
  4. ATOMIC: allocate()'s two legs and a settlement's multi-party legs
     commit together or not at all.

CONCURRENCY:
  Every mutating operation runs under a per-company mutex so the
  read-balance/append pair is atomic under contention. Operations spanning
  companies acquire locks in sorted id order, which rules out deadlock.
  Settling one order never locks the whole hierarchy - only the companies
  on that order's settlement.

KEY SCHEME:
  orderID:deduct               the submit-time hold
  orderID:release              hold reversal (shared by reject and cancel,
                               so a hold can never be released twice)
  refID:grant                  funding credit
  refID:allocate:out|in        hierarchy transfer legs
  orderID:settlement:<role>    finalized split legs

SEE ALSO:
  - store.go: LedgerStore interface
  - lifecycle.go: drives holds, releases, and settlement splits
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BalanceLedger coordinates balance mutations against a LedgerStore.
type BalanceLedger struct {
	Store LedgerStore

	locks sync.Map // CompanyID -> *sync.Mutex
	now   func() time.Time
}

func NewBalanceLedger(store LedgerStore) *BalanceLedger {
	return &BalanceLedger{Store: store, now: time.Now}
}

func (l *BalanceLedger) lockFor(id CompanyID) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// lockAll acquires the mutexes of all given companies in sorted id order
// and returns the unlock function.
func (l *BalanceLedger) lockAll(ids ...CompanyID) func() {
	uniq := make(map[CompanyID]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	sorted := make([]CompanyID, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		l.lockFor(id).Lock()
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			l.lockFor(sorted[i]).Unlock()
		}
	}
}

// =============================================================================
// DEDUCT - Pre-authorization hold at order submission
// =============================================================================

// Deduct atomically verifies balance >= amount, decrements, and appends a
// transaction keyed by orderID:deduct. If that key already exists the prior
// transaction is returned unchanged (idempotent, no double-deduct).
func (l *BalanceLedger) Deduct(ctx context.Context, companyID CompanyID, amount Money, orderID OrderID) (*BalanceTransaction, error) {
	if !amount.IsPositive() && !amount.IsZero() {
		return nil, fmt.Errorf("deduct amount must be non-negative, got %s", amount)
	}

	unlock := l.lockAll(companyID)
	defer unlock()

	key := deductKey(orderID)
	if prior, err := l.Store.FindByKey(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	balance, err := l.Store.Balance(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, &InsufficientBalanceError{
			CompanyID: companyID,
			Available: balance,
			Requested: amount,
		}
	}

	tx := BalanceTransaction{
		ID:             TransactionID(uuid.NewString()),
		CompanyID:      companyID,
		Delta:          amount.Neg(),
		Reason:         ReasonHold,
		OrderID:        orderID,
		IdempotencyKey: key,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.Store.Append(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// =============================================================================
// CREDIT - Idempotent increment
// =============================================================================

// Credit atomically increments a company's balance, idempotent by
// refID:reason.
func (l *BalanceLedger) Credit(ctx context.Context, companyID CompanyID, amount Money, reason TransactionReason, refID string) (*BalanceTransaction, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("credit amount must be non-negative, got %s", amount)
	}

	unlock := l.lockAll(companyID)
	defer unlock()

	key := fmt.Sprintf("%s:%s", refID, reason)
	if prior, err := l.Store.FindByKey(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	tx := BalanceTransaction{
		ID:             TransactionID(uuid.NewString()),
		CompanyID:      companyID,
		Delta:          amount,
		Reason:         reason,
		OrderID:        orderIDFromRef(reason, refID),
		IdempotencyKey: key,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.Store.Append(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// =============================================================================
// ALLOCATE - Paired atomic transfer between two companies
// =============================================================================

// Allocate deducts from one company and credits another within one
// transaction boundary; both legs succeed or neither does. Used to fund
// the hierarchy downward (HQ -> Agency -> Retail). Idempotent by refID.
func (l *BalanceLedger) Allocate(ctx context.Context, fromID, toID CompanyID, amount Money, refID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("allocate amount must be positive, got %s", amount)
	}
	if fromID == toID {
		return fmt.Errorf("allocate requires distinct companies")
	}

	unlock := l.lockAll(fromID, toID)
	defer unlock()

	outKey := fmt.Sprintf("%s:allocate:out", refID)
	if prior, err := l.Store.FindByKey(ctx, outKey); err != nil {
		return err
	} else if prior != nil {
		return nil // already applied
	}

	balance, err := l.Store.Balance(ctx, fromID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return &InsufficientBalanceError{
			CompanyID: fromID,
			Available: balance,
			Requested: amount,
		}
	}

	now := l.now().UTC()
	return l.Store.WithTx(ctx, func(s LedgerStore) error {
		if err := s.Append(ctx, BalanceTransaction{
			ID:             TransactionID(uuid.NewString()),
			CompanyID:      fromID,
			Delta:          amount.Neg(),
			Reason:         ReasonAllocate,
			IdempotencyKey: outKey,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		return s.Append(ctx, BalanceTransaction{
			ID:             TransactionID(uuid.NewString()),
			CompanyID:      toID,
			Delta:          amount,
			Reason:         ReasonAllocate,
			IdempotencyKey: fmt.Sprintf("%s:allocate:in", refID),
			CreatedAt:      now,
		})
	})
}

// =============================================================================
// SETTLEMENT SPLIT - Convert a hold into the finalized multi-party split
// =============================================================================

// SettlementLeg is one company's share of a finalized settlement. A
// negative amount debits the company (HQ funding a grade bonus larger
// than its own share).
type SettlementLeg struct {
	CompanyID CompanyID
	Amount    Money
	Role      string // "hq", "agency", "retail"
}

// AllocateSplit appends all settlement legs for an order atomically.
// The held amount was already deducted at submit; the legs distribute it.
// Idempotent by order id: if the order's settlement legs exist, this is a
// no-op.
func (l *BalanceLedger) AllocateSplit(ctx context.Context, orderID OrderID, legs []SettlementLeg) error {
	ids := make([]CompanyID, 0, len(legs))
	for _, leg := range legs {
		ids = append(ids, leg.CompanyID)
	}
	unlock := l.lockAll(ids...)
	defer unlock()

	if len(legs) == 0 {
		return nil
	}

	firstKey := settlementKey(orderID, legs[0].Role)
	if prior, err := l.Store.FindByKey(ctx, firstKey); err != nil {
		return err
	} else if prior != nil {
		return nil // already settled
	}

	// A company's net delta across the legs must not drive it negative.
	net := make(map[CompanyID]Money)
	for _, leg := range legs {
		cur, ok := net[leg.CompanyID]
		if !ok {
			cur = ZeroMoney()
		}
		net[leg.CompanyID] = cur.Add(leg.Amount)
	}
	for companyID, delta := range net {
		if !delta.IsNegative() {
			continue
		}
		balance, err := l.Store.Balance(ctx, companyID)
		if err != nil {
			return err
		}
		if balance.LessThan(delta.Neg()) {
			return &InsufficientBalanceError{
				CompanyID: companyID,
				Available: balance,
				Requested: delta.Neg(),
			}
		}
	}

	now := l.now().UTC()
	return l.Store.WithTx(ctx, func(s LedgerStore) error {
		for _, leg := range legs {
			if err := s.Append(ctx, BalanceTransaction{
				ID:             TransactionID(uuid.NewString()),
				CompanyID:      leg.CompanyID,
				Delta:          leg.Amount,
				Reason:         ReasonSettlement,
				OrderID:        orderID,
				IdempotencyKey: settlementKey(orderID, leg.Role),
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// READS
// =============================================================================

// Balance returns the ledger-derived balance for a company.
func (l *BalanceLedger) Balance(ctx context.Context, companyID CompanyID) (Money, error) {
	return l.Store.Balance(ctx, companyID)
}

// Transactions returns a company's full transaction history.
func (l *BalanceLedger) Transactions(ctx context.Context, companyID CompanyID) ([]BalanceTransaction, error) {
	return l.Store.Load(ctx, companyID)
}

// HasHold reports whether a deduction hold exists for the order.
func (l *BalanceLedger) HasHold(ctx context.Context, orderID OrderID) (bool, error) {
	tx, err := l.Store.FindByKey(ctx, deductKey(orderID))
	if err != nil {
		return false, err
	}
	return tx != nil, nil
}

// =============================================================================
// KEY HELPERS
// =============================================================================

func deductKey(orderID OrderID) string {
	return fmt.Sprintf("%s:deduct", orderID)
}

func settlementKey(orderID OrderID, role string) string {
	return fmt.Sprintf("%s:settlement:%s", orderID, role)
}

// orderIDFromRef back-references the order for hold releases; other credit
// reasons reference grants or transfers, not orders.
func orderIDFromRef(reason TransactionReason, refID string) OrderID {
	if reason == ReasonRelease {
		return OrderID(refID)
	}
	return ""
}
