/*
lifecycle.go - The order lifecycle coordinator

PURPOSE:
  The state machine orchestrating the rate table, grade ledger, balance
  ledger, and settlement computer against order status transitions.

STATES:
  draft -> pending -> {approved, rejected} -> processing -> shipped -> completed
  cancelled is reachable from draft, pending, or approved only.
  completed, rejected, cancelled are terminal.

LEDGER CHOREOGRAPHY:
  submit:   resolve rebate, record grade order, deduct hold
  reject:   credit the full held amount back (grade increment stays)
  cancel:   release any existing hold exactly once
  complete: compute settlement, convert the hold into the final
            HQ/Agency/Retail split

  Any disallowed transition fails with InvalidStateTransitionError and
  leaves all ledger state untouched. Non-ledger failures never leave
  partial ledger mutations behind: the resolve runs before any persistence,
  and every multi-leg mutation rides one store transaction.

CONCURRENCY:
  Transitions on one order are serialized by a per-order mutex, and every
  status write is a compare-and-swap against the status the transition was
  guarded on (OrderStore.Transition). Two racing transitions therefore
  resolve to exactly one winner; the loser fails the guard before touching
  the ledger, or fails the swap and surfaces InvalidStateTransitionError.

SEE ALSO:
  - ledger.go: Deduct / Credit / AllocateSplit
  - settlement.go: ComputeSettlement
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

var transitions = map[OrderStatus][]OrderStatus{
	OrderDraft:      {OrderPending, OrderCancelled},
	OrderPending:    {OrderApproved, OrderRejected, OrderCancelled},
	OrderApproved:   {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderCompleted},
	// rejected, completed, cancelled: terminal, no outgoing transitions
}

func canTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator drives orders through their lifecycle. It is safe for
// concurrent use; atomicity of money movement is delegated to the
// BalanceLedger and the stores.
type Coordinator struct {
	Policies    PolicyStore
	Companies   CompanyStore
	Orders      OrderStore
	Settlements SettlementStore
	Ledger      *BalanceLedger
	Grades      *GradeLedger

	Log logrus.FieldLogger

	locks sync.Map // OrderID -> *sync.Mutex
	now   func() time.Time
}

func NewCoordinator(policies PolicyStore, companies CompanyStore, orders OrderStore, settlements SettlementStore, ledger *BalanceLedger, grades *GradeLedger, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		log = logger
	}
	return &Coordinator{
		Policies:    policies,
		Companies:   companies,
		Orders:      orders,
		Settlements: settlements,
		Ledger:      ledger,
		Grades:      grades,
		Log:         log,
		now:         time.Now,
	}
}

// lockOrder serializes all transitions on one order, mirroring
// BalanceLedger.lockFor.
func (c *Coordinator) lockOrder(id OrderID) func() {
	mu, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// =============================================================================
// SUBMIT - draft -> pending with a balance hold
// =============================================================================

// SubmitOrder creates an order and drives it to pending. A failed rate
// lookup creates nothing; a failed hold leaves the order persisted as a
// draft that can be resubmitted after funding (see Submit).
func (c *Coordinator) SubmitOrder(ctx context.Context, companyID CompanyID, policyID PolicyID, carrier Carrier, planPrice Money, contractPeriod int, simType SIMType) (*Order, error) {
	company, err := c.Companies.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.Type == CompanyHQ {
		return nil, fmt.Errorf("company %s: HQ cannot place orders", companyID)
	}

	policy, err := c.Policies.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}

	// Resolve before anything persists: a PolicyConfigError must leave no
	// order behind.
	rebate, err := ResolveRebate(policy, carrier, planPrice, contractPeriod, simType)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	order := Order{
		ID:             OrderID(uuid.NewString()),
		PolicyID:       policyID,
		CompanyID:      companyID,
		Carrier:        carrier,
		PlanPrice:      planPrice,
		ContractPeriod: contractPeriod,
		SIMType:        simType,
		Status:         OrderDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.Orders.Create(ctx, order); err != nil {
		return nil, err
	}

	unlock := c.lockOrder(order.ID)
	defer unlock()
	return c.submit(ctx, &order, policy, rebate)
}

// Submit retries a draft order, typically after the caller funded the
// company's balance. Re-resolves against the current policy.
func (c *Coordinator) Submit(ctx context.Context, orderID OrderID) (*Order, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderDraft {
		return nil, &InvalidStateTransitionError{OrderID: orderID, From: order.Status, To: OrderPending}
	}

	policy, err := c.Policies.Get(ctx, order.PolicyID)
	if err != nil {
		return nil, err
	}
	rebate, err := ResolveRebate(policy, order.Carrier, order.PlanPrice, order.ContractPeriod, order.SIMType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, order, policy, rebate)
}

func (c *Coordinator) submit(ctx context.Context, order *Order, policy *Policy, rebate RebateResult) (*Order, error) {
	// Grade counting is exactly-once per order id: a resubmitted draft
	// returns the count it already produced.
	count, err := c.Grades.RecordOrder(ctx, order.CompanyID, policy, order.ID, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	order.BaseAmount = rebate.BaseAmount
	order.HeldAmount = rebate.AdjustedAmount
	order.GradeBonus = ResolveTier(count, policy.GradeTiers)
	order.UpdatedAt = c.now().UTC()

	hold, err := c.Ledger.Deduct(ctx, order.CompanyID, rebate.AdjustedAmount, order.ID)
	if err != nil {
		// The order stays a draft; persist the resolved amounts so the
		// caller sees what funding is needed.
		if uerr := c.Orders.Update(ctx, *order); uerr != nil {
			return nil, uerr
		}
		return order, err
	}
	// The hold is the source of truth for the held amount. A replayed
	// submit after a crash may resolve differently under a replaced
	// policy, but release and settlement must move exactly what was held.
	order.HeldAmount = hold.Delta.Neg()

	order.Status = OrderPending
	if err := c.Orders.Transition(ctx, *order, OrderDraft); err != nil {
		if errors.Is(err, ErrStaleOrderStatus) {
			return nil, c.staleError(ctx, order.ID, OrderPending)
		}
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{
		"order":   order.ID,
		"company": order.CompanyID,
		"policy":  order.PolicyID,
		"held":    order.HeldAmount.String(),
		"count":   count,
	}).Info("order submitted")

	return order, nil
}

// =============================================================================
// APPROVAL FLOW
// =============================================================================

// Approve moves a pending order to approved. No ledger activity.
func (c *Coordinator) Approve(ctx context.Context, orderID OrderID) (*Order, error) {
	return c.step(ctx, orderID, OrderApproved, nil)
}

// Reject moves a pending order to rejected and reverses the hold in full.
// The grade-counter increment is not reverted.
func (c *Coordinator) Reject(ctx context.Context, orderID OrderID, reason string) (*Order, error) {
	return c.step(ctx, orderID, OrderRejected, func(order *Order) error {
		order.RejectionReason = reason
		_, err := c.Ledger.Credit(ctx, order.CompanyID, order.HeldAmount, ReasonRelease, string(order.ID))
		return err
	})
}

// StartProcessing moves an approved order into fulfilment.
func (c *Coordinator) StartProcessing(ctx context.Context, orderID OrderID) (*Order, error) {
	return c.step(ctx, orderID, OrderProcessing, nil)
}

// MarkShipped moves a processing order to shipped. Cancellation is no
// longer possible past this point.
func (c *Coordinator) MarkShipped(ctx context.Context, orderID OrderID) (*Order, error) {
	return c.step(ctx, orderID, OrderShipped, nil)
}

// Cancel aborts an order from draft, pending, or approved. Any existing
// hold is released exactly once; the release shares its idempotency key
// with rejection, so the two paths can never both pay out.
func (c *Coordinator) Cancel(ctx context.Context, orderID OrderID) (*Order, error) {
	return c.step(ctx, orderID, OrderCancelled, func(order *Order) error {
		held, err := c.Ledger.HasHold(ctx, order.ID)
		if err != nil {
			return err
		}
		if !held {
			return nil // draft with no hold: nothing to release
		}
		_, err = c.Ledger.Credit(ctx, order.CompanyID, order.HeldAmount, ReasonRelease, string(order.ID))
		return err
	})
}

// staleError re-reads the order so the error reports the status that won
// the race.
func (c *Coordinator) staleError(ctx context.Context, id OrderID, to OrderStatus) error {
	var from OrderStatus
	if current, err := c.Orders.Get(ctx, id); err == nil {
		from = current.Status
	}
	return &InvalidStateTransitionError{OrderID: id, From: from, To: to}
}

// step performs a guarded transition under the order's mutex, running fn
// (ledger work) before the status persists. fn must be idempotent: a
// crash after the ledger write but before the status update replays
// safely. The status write compare-and-swaps against the status the guard
// saw, so a competing transition can never also commit.
func (c *Coordinator) step(ctx context.Context, orderID OrderID, to OrderStatus, fn func(*Order) error) (*Order, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canTransition(order.Status, to) {
		return nil, &InvalidStateTransitionError{OrderID: orderID, From: order.Status, To: to}
	}

	if fn != nil {
		if err := fn(order); err != nil {
			return nil, err
		}
	}

	from := order.Status
	order.Status = to
	order.UpdatedAt = c.now().UTC()
	if err := c.Orders.Transition(ctx, *order, from); err != nil {
		if errors.Is(err, ErrStaleOrderStatus) {
			return nil, c.staleError(ctx, orderID, to)
		}
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{
		"order": order.ID,
		"from":  from,
		"to":    to,
	}).Info("order transitioned")

	return order, nil
}

// =============================================================================
// COMPLETION - shipped -> completed with the finalized split
// =============================================================================

// Complete finishes a shipped order: computes the settlement and converts
// the hold into the final HQ/Agency/Retail split. Invoked twice on an
// already-completed order it returns the identical, unmutated settlement.
func (c *Coordinator) Complete(ctx context.Context, orderID OrderID) (*Order, *Settlement, error) {
	unlock := c.lockOrder(orderID)
	defer unlock()

	order, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if order.Status == OrderCompleted {
		existing, err := c.Settlements.GetByOrder(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
		return order, existing, nil
	}
	if !canTransition(order.Status, OrderCompleted) {
		return nil, nil, &InvalidStateTransitionError{OrderID: orderID, From: order.Status, To: OrderCompleted}
	}

	policy, err := c.Policies.Get(ctx, order.PolicyID)
	if err != nil {
		return nil, nil, err
	}
	company, err := c.Companies.Get(ctx, order.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	parties, err := c.resolveParties(ctx, company)
	if err != nil {
		return nil, nil, err
	}

	// The settlement on record is the only source for the ledger legs. It
	// persists BEFORE any money moves, so a replay after a crash between
	// the two writes settles the persisted amounts, never a recomputation
	// under whatever policy is current by then.
	settlement, err := c.Settlements.GetByOrder(ctx, orderID)
	if IsNotFound(err) {
		computed := ComputeSettlement(order,
			RebateResult{BaseAmount: order.BaseAmount, AdjustedAmount: order.HeldAmount},
			order.GradeBonus, policy.Split(), company.Type, c.now())
		if cerr := c.Settlements.Create(ctx, computed); cerr == nil {
			settlement = &computed
		} else if errors.Is(cerr, ErrSettlementImmutable) {
			// Lost a cross-process race to persist; settle what won.
			if settlement, err = c.Settlements.GetByOrder(ctx, orderID); err != nil {
				return nil, nil, err
			}
		} else {
			return nil, nil, cerr
		}
	} else if err != nil {
		return nil, nil, err
	}

	legs := settlementLegs(settlement, parties)
	if err := c.Ledger.AllocateSplit(ctx, orderID, legs); err != nil {
		return nil, nil, err
	}

	from := order.Status
	order.Status = OrderCompleted
	order.UpdatedAt = c.now().UTC()
	if err := c.Orders.Transition(ctx, *order, from); err != nil {
		if errors.Is(err, ErrStaleOrderStatus) {
			return nil, nil, c.staleError(ctx, orderID, OrderCompleted)
		}
		return nil, nil, err
	}

	c.Log.WithFields(logrus.Fields{
		"order":  order.ID,
		"hq":     settlement.HQShare.String(),
		"agency": settlement.AgencyShare.String(),
		"retail": settlement.RetailShare.String(),
	}).Info("order settled")

	return order, settlement, nil
}

// settlementParties names the companies on each side of a split.
type settlementParties struct {
	HQ     CompanyID
	Agency CompanyID
	Retail CompanyID // empty for agency-placed orders
}

// resolveParties walks the parent chain from the ordering company up to HQ.
func (c *Coordinator) resolveParties(ctx context.Context, ordering *Company) (settlementParties, error) {
	var p settlementParties

	switch ordering.Type {
	case CompanyRetail:
		p.Retail = ordering.ID
		agency, err := c.Companies.Get(ctx, ordering.ParentID)
		if err != nil {
			return p, fmt.Errorf("retail %s has no agency parent: %w", ordering.ID, err)
		}
		if agency.Type != CompanyAgency {
			return p, fmt.Errorf("retail %s parent %s is not an agency", ordering.ID, agency.ID)
		}
		p.Agency = agency.ID
		hq, err := c.Companies.Get(ctx, agency.ParentID)
		if err != nil {
			return p, fmt.Errorf("agency %s has no HQ parent: %w", agency.ID, err)
		}
		p.HQ = hq.ID
	case CompanyAgency:
		p.Agency = ordering.ID
		hq, err := c.Companies.Get(ctx, ordering.ParentID)
		if err != nil {
			return p, fmt.Errorf("agency %s has no HQ parent: %w", ordering.ID, err)
		}
		p.HQ = hq.ID
	default:
		return p, fmt.Errorf("company %s type %s cannot settle", ordering.ID, ordering.Type)
	}
	return p, nil
}

// settlementLegs maps settlement shares onto the parties. The HQ leg is
// always first (it carries the idempotency anchor and the only possibly
// negative delta).
func settlementLegs(s *Settlement, p settlementParties) []SettlementLeg {
	legs := []SettlementLeg{{CompanyID: p.HQ, Amount: s.HQShare, Role: "hq"}}
	if !s.AgencyShare.IsZero() {
		legs = append(legs, SettlementLeg{CompanyID: p.Agency, Amount: s.AgencyShare, Role: "agency"})
	}
	if p.Retail != "" && !s.RetailShare.IsZero() {
		legs = append(legs, SettlementLeg{CompanyID: p.Retail, Amount: s.RetailShare, Role: "retail"})
	}
	return legs
}

// =============================================================================
// READS
// =============================================================================

// GetSettlement returns the settlement for a completed order.
func (c *Coordinator) GetSettlement(ctx context.Context, orderID OrderID) (*Settlement, error) {
	return c.Settlements.GetByOrder(ctx, orderID)
}

// GetBalance returns a company's ledger-derived balance.
func (c *Coordinator) GetBalance(ctx context.Context, companyID CompanyID) (Money, error) {
	return c.Ledger.Balance(ctx, companyID)
}
