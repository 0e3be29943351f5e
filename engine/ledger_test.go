package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/engine/store"
)

func newTestLedger() *engine.BalanceLedger {
	return engine.NewBalanceLedger(store.NewMemoryLedger())
}

func fund(t *testing.T, l *engine.BalanceLedger, company engine.CompanyID, amount int64) {
	t.Helper()
	_, err := l.Credit(context.Background(), company, won(amount), engine.ReasonGrant, fmt.Sprintf("fund-%s-%d", company, amount))
	require.NoError(t, err)
}

func balanceOf(t *testing.T, l *engine.BalanceLedger, company engine.CompanyID) engine.Money {
	t.Helper()
	b, err := l.Balance(context.Background(), company)
	require.NoError(t, err)
	return b
}

// =============================================================================
// DEDUCT
// =============================================================================

func TestDeduct_HappyPath(t *testing.T) {
	// GIVEN: A company funded with 200,000
	// WHEN: Deducting a 107,700 hold
	// THEN: Balance drops and the transaction records the hold

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 200000)

	tx, err := ledger.Deduct(ctx, "retail-1", won(107700), "order-1")
	require.NoError(t, err)
	assert.True(t, tx.Delta.Equal(won(-107700)))
	assert.Equal(t, engine.ReasonHold, tx.Reason)
	assert.Equal(t, engine.OrderID("order-1"), tx.OrderID)
	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(won(92300)))
}

func TestDeduct_Idempotent(t *testing.T) {
	// GIVEN: A hold already taken for order-1
	// WHEN: Deducting again with the same order id
	// THEN: The prior transaction returns and no money moves twice

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 200000)

	first, err := ledger.Deduct(ctx, "retail-1", won(50000), "order-1")
	require.NoError(t, err)
	replay, err := ledger.Deduct(ctx, "retail-1", won(50000), "order-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, replay.ID)
	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(won(150000)))
}

func TestDeduct_InsufficientBalance(t *testing.T) {
	// GIVEN: A balance of 50,000
	// WHEN: Deducting 50,001
	// THEN: InsufficientBalanceError with available/requested; no ledger entry

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 50000)

	_, err := ledger.Deduct(ctx, "retail-1", won(50001), "order-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)

	var ibe *engine.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Equal(won(50000)))
	assert.True(t, ibe.Requested.Equal(won(50001)))

	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(won(50000)))
	txs, err := ledger.Transactions(ctx, "retail-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the funding grant")
}

func TestDeduct_ExactBalanceAllowed(t *testing.T) {
	// Draining the balance to exactly zero is a legal hold.
	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 50000)

	_, err := ledger.Deduct(ctx, "retail-1", won(50000), "order-1")
	require.NoError(t, err)
	assert.True(t, balanceOf(t, ledger, "retail-1").IsZero())
}

func TestDeduct_ConcurrentHoldsNeverOverdraw(t *testing.T) {
	// GIVEN: Balance 500 and ten concurrent 100-won holds
	// WHEN: All ten race
	// THEN: Exactly five commit; the balance ends at zero, never below

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 500)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Deduct(ctx, "retail-1", won(100), engine.OrderID(fmt.Sprintf("order-%d", i)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.True(t, balanceOf(t, ledger, "retail-1").IsZero())
}

// =============================================================================
// CREDIT
// =============================================================================

func TestCredit_IdempotentByRef(t *testing.T) {
	// GIVEN: A grant applied under ref "april-funding"
	// WHEN: The same grant is replayed
	// THEN: The balance reflects one grant

	ctx := context.Background()
	ledger := newTestLedger()

	_, err := ledger.Credit(ctx, "agency-1", won(300000), engine.ReasonGrant, "april-funding")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "agency-1", won(300000), engine.ReasonGrant, "april-funding")
	require.NoError(t, err)

	assert.True(t, balanceOf(t, ledger, "agency-1").Equal(won(300000)))
}

func TestCredit_RejectsNegativeAmount(t *testing.T) {
	_, err := newTestLedger().Credit(context.Background(), "agency-1", won(-1), engine.ReasonGrant, "x")
	assert.Error(t, err)
}

// =============================================================================
// ALLOCATE
// =============================================================================

func TestAllocate_MovesMoneyAtomically(t *testing.T) {
	// GIVEN: HQ funded with 1,000,000
	// WHEN: Allocating 300,000 to an agency
	// THEN: Both legs land; system-wide total is conserved

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "hq", 1000000)

	require.NoError(t, ledger.Allocate(ctx, "hq", "agency-1", won(300000), "alloc-1"))

	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(700000)))
	assert.True(t, balanceOf(t, ledger, "agency-1").Equal(won(300000)))
}

func TestAllocate_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "hq", 1000000)

	require.NoError(t, ledger.Allocate(ctx, "hq", "agency-1", won(300000), "alloc-1"))
	require.NoError(t, ledger.Allocate(ctx, "hq", "agency-1", won(300000), "alloc-1"))

	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(700000)))
	assert.True(t, balanceOf(t, ledger, "agency-1").Equal(won(300000)))
}

func TestAllocate_InsufficientSourceBalance(t *testing.T) {
	// GIVEN: HQ holds 100,000
	// WHEN: Allocating 100,001 downward
	// THEN: Neither side moves

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "hq", 100000)

	err := ledger.Allocate(ctx, "hq", "agency-1", won(100001), "alloc-1")
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(100000)))
	assert.True(t, balanceOf(t, ledger, "agency-1").IsZero())
}

func TestAllocate_SameCompanyRejected(t *testing.T) {
	err := newTestLedger().Allocate(context.Background(), "hq", "hq", won(100), "alloc-1")
	assert.Error(t, err)
}

// =============================================================================
// SETTLEMENT SPLIT
// =============================================================================

func TestAllocateSplit_DistributesLegs(t *testing.T) {
	// GIVEN: The finalized 107,700 split (net shares)
	// WHEN: Allocating the legs
	// THEN: Each party is credited its net share exactly once

	ctx := context.Background()
	ledger := newTestLedger()

	legs := []engine.SettlementLeg{
		{CompanyID: "hq", Amount: won(32310), Role: "hq"},
		{CompanyID: "agency-1", Amount: won(21540), Role: "agency"},
		{CompanyID: "retail-1", Amount: won(53850), Role: "retail"},
	}
	require.NoError(t, ledger.AllocateSplit(ctx, "order-1", legs))
	// Replay is a no-op.
	require.NoError(t, ledger.AllocateSplit(ctx, "order-1", legs))

	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(32310)))
	assert.True(t, balanceOf(t, ledger, "agency-1").Equal(won(21540)))
	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(won(53850)))
}

func TestAllocateSplit_NegativeHQLegRequiresBalance(t *testing.T) {
	// GIVEN: A grade bonus larger than HQ's share produced a negative HQ leg
	// WHEN: HQ's tracked balance cannot absorb the debit
	// THEN: The whole split fails; nobody is paid

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "hq", 1000)

	legs := []engine.SettlementLeg{
		{CompanyID: "hq", Amount: won(-7690), Role: "hq"},
		{CompanyID: "retail-1", Amount: won(115390), Role: "retail"},
	}
	err := ledger.AllocateSplit(ctx, "order-1", legs)
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(1000)))
	assert.True(t, balanceOf(t, ledger, "retail-1").IsZero())

	// With enough HQ balance the same split commits.
	fund(t, ledger, "hq", 10000)
	require.NoError(t, ledger.AllocateSplit(ctx, "order-1", legs))
	assert.True(t, balanceOf(t, ledger, "hq").Equal(won(3310)))
	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(won(115390)))
}

// =============================================================================
// BALANCE DERIVATION
// =============================================================================

func TestBalance_IsSumOfDeltas(t *testing.T) {
	// GIVEN: A mixed history of grants, holds, and releases
	// THEN: The balance equals the sum of all deltas

	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 200000)

	_, err := ledger.Deduct(ctx, "retail-1", won(107700), "order-1")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "retail-1", won(107700), engine.ReasonRelease, "order-1")
	require.NoError(t, err)

	txs, err := ledger.Transactions(ctx, "retail-1")
	require.NoError(t, err)
	sum := engine.ZeroMoney()
	for _, tx := range txs {
		sum = sum.Add(tx.Delta)
	}
	assert.True(t, balanceOf(t, ledger, "retail-1").Equal(sum))
	assert.True(t, sum.Equal(won(200000)), "hold + release round-trips to net zero")
}

func TestHasHold(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	fund(t, ledger, "retail-1", 200000)

	held, err := ledger.HasHold(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, held)

	_, err = ledger.Deduct(ctx, "retail-1", won(1000), "order-1")
	require.NoError(t, err)

	held, err = ledger.HasHold(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, held)
}
