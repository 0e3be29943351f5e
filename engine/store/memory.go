// Package store provides in-memory store implementations for tests and
// development. The production store lives in store/sqlite.
package store

import (
	"context"
	"sync"

	"github.com/warp/rebate-engine/engine"
)

// =============================================================================
// MEMORY LEDGER STORE
// =============================================================================

// MemoryLedger is a mutex-guarded in-memory engine.LedgerStore. WithTx is
// simulated with a snapshot and rollback on error, matching the semantics
// of a real database transaction closely enough for engine tests.
type MemoryLedger struct {
	mu           sync.RWMutex
	transactions map[engine.CompanyID][]engine.BalanceTransaction
	byKey        map[string]engine.BalanceTransaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions: make(map[engine.CompanyID][]engine.BalanceTransaction),
		byKey:        make(map[string]engine.BalanceTransaction),
	}
}

func (m *MemoryLedger) Append(_ context.Context, tx engine.BalanceTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *MemoryLedger) appendLocked(tx engine.BalanceTransaction) error {
	if tx.IdempotencyKey != "" {
		if _, exists := m.byKey[tx.IdempotencyKey]; exists {
			return engine.ErrDuplicateIdempotencyKey
		}
		m.byKey[tx.IdempotencyKey] = tx
	}
	m.transactions[tx.CompanyID] = append(m.transactions[tx.CompanyID], tx)
	return nil
}

func (m *MemoryLedger) Load(_ context.Context, companyID engine.CompanyID) ([]engine.BalanceTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]engine.BalanceTransaction, len(m.transactions[companyID]))
	copy(result, m.transactions[companyID])
	return result, nil
}

func (m *MemoryLedger) FindByKey(_ context.Context, idempotencyKey string) (*engine.BalanceTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tx, ok := m.byKey[idempotencyKey]; ok {
		return &tx, nil
	}
	return nil, nil
}

func (m *MemoryLedger) Balance(_ context.Context, companyID engine.CompanyID) (engine.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(companyID), nil
}

func (m *MemoryLedger) balanceLocked(companyID engine.CompanyID) engine.Money {
	balance := engine.ZeroMoney()
	for _, tx := range m.transactions[companyID] {
		balance = balance.Add(tx.Delta)
	}
	return balance
}

func (m *MemoryLedger) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &ledgerTxView{parent: m}
	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type ledgerSnapshot struct {
	transactions map[engine.CompanyID][]engine.BalanceTransaction
	byKey        map[string]engine.BalanceTransaction
}

func (m *MemoryLedger) snapshot() ledgerSnapshot {
	txs := make(map[engine.CompanyID][]engine.BalanceTransaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = append([]engine.BalanceTransaction{}, v...)
	}
	keys := make(map[string]engine.BalanceTransaction, len(m.byKey))
	for k, v := range m.byKey {
		keys[k] = v
	}
	return ledgerSnapshot{transactions: txs, byKey: keys}
}

func (m *MemoryLedger) restore(s ledgerSnapshot) {
	m.transactions = s.transactions
	m.byKey = s.byKey
}

// ledgerTxView writes through to the already-locked parent.
type ledgerTxView struct {
	parent *MemoryLedger
}

func (v *ledgerTxView) Append(_ context.Context, tx engine.BalanceTransaction) error {
	return v.parent.appendLocked(tx)
}

func (v *ledgerTxView) Load(_ context.Context, companyID engine.CompanyID) ([]engine.BalanceTransaction, error) {
	return v.parent.transactions[companyID], nil
}

func (v *ledgerTxView) FindByKey(_ context.Context, key string) (*engine.BalanceTransaction, error) {
	if tx, ok := v.parent.byKey[key]; ok {
		return &tx, nil
	}
	return nil, nil
}

func (v *ledgerTxView) Balance(_ context.Context, companyID engine.CompanyID) (engine.Money, error) {
	return v.parent.balanceLocked(companyID), nil
}

func (v *ledgerTxView) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	return fn(v) // already inside the transaction
}

// =============================================================================
// MEMORY GRADE STORE
// =============================================================================

type gradeKey struct {
	Company engine.CompanyID
	Policy  engine.PolicyID
	Period  string
}

// MemoryGrades implements engine.GradeStore with exactly-once order
// counting.
type MemoryGrades struct {
	mu       sync.Mutex
	counters map[gradeKey]int
	orders   map[engine.OrderID]gradeKey
}

func NewMemoryGrades() *MemoryGrades {
	return &MemoryGrades{
		counters: make(map[gradeKey]int),
		orders:   make(map[engine.OrderID]gradeKey),
	}
}

func (m *MemoryGrades) RecordOrder(_ context.Context, companyID engine.CompanyID, policyID engine.PolicyID, periodKey string, orderID engine.OrderID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, seen := m.orders[orderID]; seen {
		return m.counters[prior], nil
	}

	k := gradeKey{Company: companyID, Policy: policyID, Period: periodKey}
	m.counters[k]++
	m.orders[orderID] = k
	return m.counters[k], nil
}

func (m *MemoryGrades) Count(_ context.Context, companyID engine.CompanyID, policyID engine.PolicyID, periodKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[gradeKey{Company: companyID, Policy: policyID, Period: periodKey}], nil
}

// =============================================================================
// MEMORY ORDER STORE
// =============================================================================

type MemoryOrders struct {
	mu     sync.RWMutex
	orders map[engine.OrderID]engine.Order
	seq    []engine.OrderID
}

func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[engine.OrderID]engine.Order)}
}

func (m *MemoryOrders) Create(_ context.Context, o engine.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.seq = append(m.seq, o.ID)
	return nil
}

func (m *MemoryOrders) Get(_ context.Context, id engine.OrderID) (*engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.orders[id]; ok {
		return &o, nil
	}
	return nil, engine.ErrOrderNotFound
}

func (m *MemoryOrders) Update(_ context.Context, o engine.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return engine.ErrOrderNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryOrders) Transition(_ context.Context, o engine.Order, from engine.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return engine.ErrOrderNotFound
	}
	if stored.Status != from {
		return engine.ErrStaleOrderStatus
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MemoryOrders) ListByStatus(_ context.Context, status engine.OrderStatus) ([]engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Order
	for _, id := range m.seq {
		if o := m.orders[id]; o.Status == status {
			result = append(result, o)
		}
	}
	return result, nil
}

// =============================================================================
// MEMORY SETTLEMENT STORE
// =============================================================================

type MemorySettlements struct {
	mu      sync.RWMutex
	byOrder map[engine.OrderID]engine.Settlement
}

func NewMemorySettlements() *MemorySettlements {
	return &MemorySettlements{byOrder: make(map[engine.OrderID]engine.Settlement)}
}

func (m *MemorySettlements) Create(_ context.Context, s engine.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byOrder[s.OrderID]; exists {
		return engine.ErrSettlementImmutable
	}
	m.byOrder[s.OrderID] = s
	return nil
}

func (m *MemorySettlements) GetByOrder(_ context.Context, orderID engine.OrderID) (*engine.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byOrder[orderID]; ok {
		return &s, nil
	}
	return nil, engine.ErrSettlementNotFound
}

// =============================================================================
// MEMORY POLICY / COMPANY STORES
// =============================================================================

type MemoryPolicies struct {
	mu       sync.RWMutex
	policies map[engine.PolicyID]engine.Policy
}

func NewMemoryPolicies() *MemoryPolicies {
	return &MemoryPolicies{policies: make(map[engine.PolicyID]engine.Policy)}
}

func (m *MemoryPolicies) Put(_ context.Context, p engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
	return nil
}

func (m *MemoryPolicies) Get(_ context.Context, id engine.PolicyID) (*engine.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.policies[id]; ok {
		return &p, nil
	}
	return nil, engine.ErrPolicyNotFound
}

func (m *MemoryPolicies) List(_ context.Context) ([]engine.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]engine.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, p)
	}
	return result, nil
}

type MemoryCompanies struct {
	mu        sync.RWMutex
	companies map[engine.CompanyID]engine.Company
}

func NewMemoryCompanies() *MemoryCompanies {
	return &MemoryCompanies{companies: make(map[engine.CompanyID]engine.Company)}
}

func (m *MemoryCompanies) Put(_ context.Context, c engine.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
	return nil
}

func (m *MemoryCompanies) Get(_ context.Context, id engine.CompanyID) (*engine.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.companies[id]; ok {
		return &c, nil
	}
	return nil, engine.ErrCompanyNotFound
}

func (m *MemoryCompanies) List(_ context.Context) ([]engine.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]engine.Company, 0, len(m.companies))
	for _, c := range m.companies {
		result = append(result, c)
	}
	return result, nil
}
