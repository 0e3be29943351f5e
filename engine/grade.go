/*
grade.go - Commission grade ledger

PURPOSE:
  Tracks each company's cumulative qualifying order count per (policy,
  accounting period) and resolves the count to a per-order bonus tier.

EXACTLY-ONCE COUNTING:
  The store keys every increment by order id, so re-recording an order
  (client retry, resubmit after a funding failure) never double-counts.

LAZY ROLLOVER:
  There is no background clock. The period key is derived from the order
  timestamp when the order is recorded; a new period's counter row is
  created lazily on its first qualifying order.

TIER RESOLUTION:
  Tiers are sorted ascending by threshold (validated at policy creation).
  The bonus is that of the highest tier whose threshold <= count, or zero
  when no tier qualifies.
*/
package engine

import (
	"context"
	"time"
)

// GradeLedger wraps a GradeStore with period-key derivation and tier
// resolution.
type GradeLedger struct {
	Store GradeStore
}

func NewGradeLedger(store GradeStore) *GradeLedger {
	return &GradeLedger{Store: store}
}

// RecordOrder increments the company's counter for the period containing ts
// and returns the new cumulative count. Idempotent per order id.
func (g *GradeLedger) RecordOrder(ctx context.Context, companyID CompanyID, policy *Policy, orderID OrderID, ts time.Time) (int, error) {
	key := PeriodKeyFor(policy.GradePeriod, ts)
	return g.Store.RecordOrder(ctx, companyID, policy.ID, key, orderID)
}

// Count returns the current counter without incrementing.
func (g *GradeLedger) Count(ctx context.Context, companyID CompanyID, policy *Policy, ts time.Time) (int, error) {
	key := PeriodKeyFor(policy.GradePeriod, ts)
	return g.Store.Count(ctx, companyID, policy.ID, key)
}

// ResolveTier returns the per-order bonus for a cumulative count against a
// sorted tier ladder. Zero when no tier qualifies.
func ResolveTier(count int, tiers []GradeTier) Money {
	bonus := ZeroMoney()
	for _, tier := range tiers {
		if count >= tier.MinOrders {
			bonus = tier.BonusPerOrder
		}
	}
	return bonus
}
