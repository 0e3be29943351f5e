package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func won(n int64) engine.Money { return engine.NewMoney(n) }

func grantTx(company engine.CompanyID, amount int64, key string) engine.BalanceTransaction {
	return engine.BalanceTransaction{
		ID:             engine.TransactionID("tx-" + key),
		CompanyID:      company,
		Delta:          won(amount),
		Reason:         engine.ReasonGrant,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
	}
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func TestLedger_AppendAndBalance(t *testing.T) {
	// GIVEN: A grant and a hold appended for one company
	// THEN: Balance replays to the exact decimal sum; Load returns both rows

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, grantTx("retail-1", 200000, "k1")))
	require.NoError(t, store.Append(ctx, engine.BalanceTransaction{
		ID: "tx-hold", CompanyID: "retail-1", Delta: won(-107700),
		Reason: engine.ReasonHold, OrderID: "order-1",
		IdempotencyKey: "order-1:deduct", CreatedAt: time.Now().UTC(),
	}))

	balance, err := store.Balance(ctx, "retail-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(won(92300)), "balance = %s", balance)

	txs, err := store.Load(ctx, "retail-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, engine.ReasonGrant, txs[0].Reason)
	assert.Equal(t, engine.OrderID("order-1"), txs[1].OrderID)
}

func TestLedger_DuplicateIdempotencyKeyRejected(t *testing.T) {
	// The unique index is the last line of defense against double-spends.
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, grantTx("retail-1", 1000, "dup")))
	err := store.Append(ctx, grantTx("retail-1", 1000, "dup"))
	assert.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)

	balance, err := store.Balance(ctx, "retail-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(won(1000)))
}

func TestLedger_FindByKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	found, err := store.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, store.Append(ctx, grantTx("retail-1", 500, "k1")))
	found, err = store.FindByKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Delta.Equal(won(500)))
}

func TestLedger_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction appending one leg then failing
	// THEN: Nothing commits; the atomic pair guarantee holds

	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithTx(ctx, func(s engine.LedgerStore) error {
		if err := s.Append(ctx, grantTx("hq", -300000, "out")); err != nil {
			return err
		}
		// Second leg collides with itself to force a failure.
		return s.Append(ctx, grantTx("agency-1", 300000, "out"))
	})
	require.Error(t, err)

	for _, company := range []engine.CompanyID{"hq", "agency-1"} {
		balance, err := store.Balance(ctx, company)
		require.NoError(t, err)
		assert.True(t, balance.IsZero(), "%s balance = %s", company, balance)
	}
}

func TestLedger_WithTxCommitsBothLegs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithTx(ctx, func(s engine.LedgerStore) error {
		if err := s.Append(ctx, grantTx("hq", -300000, "alloc:out")); err != nil {
			return err
		}
		return s.Append(ctx, grantTx("agency-1", 300000, "alloc:in"))
	})
	require.NoError(t, err)

	hq, _ := store.Balance(ctx, "hq")
	agency, _ := store.Balance(ctx, "agency-1")
	assert.True(t, hq.Equal(won(-300000)))
	assert.True(t, agency.Equal(won(300000)))
}

// =============================================================================
// GRADE STORE
// =============================================================================

func TestGrades_RecordOrderExactlyOnce(t *testing.T) {
	// GIVEN: An order recorded once
	// WHEN: The same order id is recorded again
	// THEN: The counter stays put and the original count returns

	ctx := context.Background()
	store := newTestStore(t)

	count, err := store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-08", "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-08", "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-08", "order-2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGrades_LazyCounterRows(t *testing.T) {
	// A period with no orders reads as zero without any row existing.
	ctx := context.Background()
	store := newTestStore(t)

	count, err := store.Count(ctx, "retail-1", "skt-2025", "2025-09")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-09", "order-1")
	require.NoError(t, err)

	count, err = store.Count(ctx, "retail-1", "skt-2025", "2025-09")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGrades_PeriodsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-08", "order-1")
	require.NoError(t, err)
	count, err := store.RecordOrder(ctx, "retail-1", "skt-2025", "2025-09", "order-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "September opens at 1")
}

// =============================================================================
// ORDER STORE
// =============================================================================

func TestOrders_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	order := engine.Order{
		ID: "order-1", PolicyID: "skt-2025", CompanyID: "retail-1",
		Carrier: engine.CarrierSKT, PlanPrice: won(55000), ContractPeriod: 24,
		SIMType: engine.SIMPrepaid, Status: engine.OrderDraft,
		BaseAmount: won(100000), HeldAmount: won(107700), GradeBonus: won(0),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, order))

	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, engine.OrderDraft, got.Status)
	assert.True(t, got.HeldAmount.Equal(won(107700)))
	assert.Equal(t, 24, got.ContractPeriod)
	assert.True(t, got.CreatedAt.Equal(now))

	got.Status = engine.OrderPending
	got.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.Transition(ctx, *got, engine.OrderDraft))

	pending, err := store.ListByStatus(ctx, engine.OrderPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, engine.OrderID("order-1"), pending[0].ID)
}

func TestOrders_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	err = store.Update(ctx, engine.Order{ID: "nope", Status: engine.OrderPending})
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
}

func TestOrders_TransitionIsCompareAndSwap(t *testing.T) {
	// GIVEN: A pending order
	// WHEN: Two status writes both expect pending
	// THEN: Only the first lands; the WHERE guard fails the second and the
	//       stored status keeps the winner

	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	order := engine.Order{
		ID: "order-1", PolicyID: "skt-2025", CompanyID: "retail-1",
		Carrier: engine.CarrierSKT, PlanPrice: won(55000), ContractPeriod: 24,
		SIMType: engine.SIMPrepaid, Status: engine.OrderPending,
		BaseAmount: won(100000), HeldAmount: won(107700), GradeBonus: won(0),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, order))

	order.Status = engine.OrderApproved
	require.NoError(t, store.Transition(ctx, order, engine.OrderPending))

	order.Status = engine.OrderRejected
	err := store.Transition(ctx, order, engine.OrderPending)
	assert.ErrorIs(t, err, engine.ErrStaleOrderStatus)

	got, err := store.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, engine.OrderApproved, got.Status)

	err = store.Transition(ctx, engine.Order{ID: "nope", Status: engine.OrderPending,
		PlanPrice: won(0), BaseAmount: won(0), HeldAmount: won(0), GradeBonus: won(0),
		CreatedAt: now, UpdatedAt: now}, engine.OrderDraft)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
}

func TestLedger_CorruptDeltaFailsReads(t *testing.T) {
	// GIVEN: A ledger row whose delta no longer parses as a decimal
	// WHEN: Balance or Load replays the company's transactions
	// THEN: The read fails loudly; a corrupt row must never count as zero

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rebate.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, grantTx("retail-1", 200000, "k1")))
	require.NoError(t, store.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, `UPDATE balance_transactions SET delta = 'garbage'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	_, err = reopened.Balance(ctx, "retail-1")
	assert.Error(t, err)
	_, err = reopened.Load(ctx, "retail-1")
	assert.Error(t, err)
}

// =============================================================================
// SETTLEMENT STORE
// =============================================================================

func TestSettlements_ImmutablePerOrder(t *testing.T) {
	// GIVEN: A settlement persisted for an order
	// WHEN: A second settlement targets the same order
	// THEN: Rejected; the stored shares never change

	ctx := context.Background()
	store := newTestStore(t)
	settlements := store.Settlements()

	first := engine.Settlement{
		ID: "s1", OrderID: "order-1",
		HQShare: won(32310), AgencyShare: won(21540), RetailShare: won(53850),
		GradeBonus: won(0), Total: won(107700), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, settlements.Create(ctx, first))

	second := first
	second.ID = "s2"
	second.HQShare = won(0)
	assert.ErrorIs(t, settlements.Create(ctx, second), engine.ErrSettlementImmutable)

	got, err := settlements.GetByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, engine.SettlementID("s1"), got.ID)
	assert.True(t, got.HQShare.Equal(won(32310)))
	assert.True(t, got.Reconciles())
}

func TestSettlements_NotFound(t *testing.T) {
	_, err := newTestStore(t).Settlements().GetByOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrSettlementNotFound)
}

// =============================================================================
// POLICY / COMPANY STORES
// =============================================================================

func TestPolicies_RoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	policies := newTestStore(t).Policies()

	cap := won(50000)
	p := engine.Policy{
		ID: "skt-2025", Name: "SKT 2025", Carrier: engine.CarrierSKT,
		RebateMatrix: []engine.RebateMatrixRow{
			{Carrier: engine.CarrierSKT, BracketLow: won(0), BracketHigh: won(44999), ContractPeriod: 24, BaseAmount: won(70000)},
		},
		GradeTiers:    []engine.GradeTier{{MinOrders: 10, BonusPerOrder: won(5000)}},
		GradePeriod:   engine.PeriodMonthly,
		SplitOverride: &engine.SplitConfig{AgencyPercent: 80, RetailPercent: 60, AgencyShareCap: &cap},
	}
	require.NoError(t, policies.Put(ctx, p))

	got, err := policies.Get(ctx, "skt-2025")
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodMonthly, got.GradePeriod)
	require.Len(t, got.RebateMatrix, 1)
	assert.True(t, got.RebateMatrix[0].BaseAmount.Equal(won(70000)))
	require.NotNil(t, got.SplitOverride)
	require.NotNil(t, got.SplitOverride.AgencyShareCap)
	assert.True(t, got.SplitOverride.AgencyShareCap.Equal(won(50000)))

	// Wholesale replace
	p.Name = "SKT 2025 v2"
	p.GradeTiers = nil
	require.NoError(t, policies.Put(ctx, p))
	got, err = policies.Get(ctx, "skt-2025")
	require.NoError(t, err)
	assert.Equal(t, "SKT 2025 v2", got.Name)
	assert.Empty(t, got.GradeTiers)

	_, err = policies.Get(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrPolicyNotFound)
}

func TestCompanies_RoundTrip(t *testing.T) {
	ctx := context.Background()
	companies := newTestStore(t).Companies()

	require.NoError(t, companies.Put(ctx, engine.Company{ID: "hq", Name: "HQ", Type: engine.CompanyHQ}))
	require.NoError(t, companies.Put(ctx, engine.Company{ID: "agency-1", Name: "Agency", Type: engine.CompanyAgency, ParentID: "hq"}))

	got, err := companies.Get(ctx, "agency-1")
	require.NoError(t, err)
	assert.Equal(t, engine.CompanyID("hq"), got.ParentID)

	all, err := companies.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = companies.Get(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrCompanyNotFound)
}

// =============================================================================
// FULL ENGINE OVER SQLITE
// =============================================================================

func TestEngine_FullLifecycleOverSQLite(t *testing.T) {
	// GIVEN: The whole coordinator wired over one SQLite store
	// WHEN: An order runs submit -> ... -> complete
	// THEN: Balances and the settlement match the memory-store semantics

	ctx := context.Background()
	store := newTestStore(t)

	ledger := engine.NewBalanceLedger(store)
	grades := engine.NewGradeLedger(store)
	coord := engine.NewCoordinator(store.Policies(), store.Companies(), store, store.Settlements(), ledger, grades, nil)

	for _, c := range []engine.Company{
		{ID: "hq", Name: "HQ", Type: engine.CompanyHQ},
		{ID: "agency-1", Name: "Agency", Type: engine.CompanyAgency, ParentID: "hq"},
		{ID: "retail-1", Name: "Retail", Type: engine.CompanyRetail, ParentID: "agency-1"},
	} {
		require.NoError(t, store.PutCompany(ctx, c))
	}
	require.NoError(t, store.PutPolicy(ctx, engine.Policy{
		ID: "skt-2025", Name: "SKT", Carrier: engine.CarrierSKT,
		RebateMatrix: []engine.RebateMatrixRow{
			{Carrier: engine.CarrierSKT, BracketLow: won(45000), BracketHigh: won(69999), ContractPeriod: 24, BaseAmount: won(100000)},
		},
		GradePeriod: engine.PeriodMonthly,
	}))

	_, err := ledger.Credit(ctx, "retail-1", won(200000), engine.ReasonGrant, "seed")
	require.NoError(t, err)

	order, err := coord.SubmitOrder(ctx, "retail-1", "skt-2025", engine.CarrierSKT, won(55000), 24, engine.SIMPrepaid)
	require.NoError(t, err)
	assert.Equal(t, engine.OrderPending, order.Status)

	_, err = coord.Approve(ctx, order.ID)
	require.NoError(t, err)
	_, err = coord.StartProcessing(ctx, order.ID)
	require.NoError(t, err)
	_, err = coord.MarkShipped(ctx, order.ID)
	require.NoError(t, err)

	_, settlement, err := coord.Complete(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, settlement.Reconciles())
	assert.True(t, settlement.RetailShare.Equal(won(53850)))

	retail, _ := ledger.Balance(ctx, "retail-1")
	agency, _ := ledger.Balance(ctx, "agency-1")
	hq, _ := ledger.Balance(ctx, "hq")
	assert.True(t, retail.Equal(won(146150)))
	assert.True(t, agency.Equal(won(21540)))
	assert.True(t, hq.Equal(won(32310)))
}
