package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/engine/store"
)

func TestMemoryOrders_TransitionIsCompareAndSwap(t *testing.T) {
	// GIVEN: A pending order
	// WHEN: Two transitions both expect pending
	// THEN: Only the first lands; the second fails stale and the stored
	//       status is untouched

	ctx := context.Background()
	orders := store.NewMemoryOrders()
	require.NoError(t, orders.Create(ctx, engine.Order{ID: "o1", Status: engine.OrderPending}))

	approved := engine.Order{ID: "o1", Status: engine.OrderApproved}
	require.NoError(t, orders.Transition(ctx, approved, engine.OrderPending))

	rejected := engine.Order{ID: "o1", Status: engine.OrderRejected}
	err := orders.Transition(ctx, rejected, engine.OrderPending)
	assert.ErrorIs(t, err, engine.ErrStaleOrderStatus)

	stored, err := orders.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, engine.OrderApproved, stored.Status)
}

func TestMemoryOrders_TransitionMissingOrder(t *testing.T) {
	err := store.NewMemoryOrders().Transition(context.Background(),
		engine.Order{ID: "nope", Status: engine.OrderPending}, engine.OrderDraft)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
}
