/*
Package engine provides the hierarchical rebate computation and settlement core.

PURPOSE:
  This package contains the domain types and algorithms for resolving a
  per-order rebate from a policy rate table, layering a volume-based
  commission-grade bonus, moving money through a multi-party balance
  ledger, and producing an immutable settlement tied to an order's
  lifecycle. It is the only part of the platform with financial-correctness
  guarantees: no negative balances, no double-spend, exact reconciliation
  of splits under concurrent access.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A KRW amount backed by decimal.Decimal (no float arithmetic)
  - Company: A node in the HQ -> Agency -> Retail hierarchy
  - Order: A customer order driven through the lifecycle state machine
  - BalanceTransaction: An immutable ledger entry recording balance changes
  - Settlement: The finalized three-way split of a completed order's rebate

DESIGN PRINCIPLES:
  1. Immutability: Transactions and settlements are never modified
  2. Precision: decimal.Decimal everywhere money is computed
  3. Type Safety: Strong ID types prevent mixing company/policy/order ids
  4. Auditability: Every transaction carries reason, reference, and
     idempotency key

SEE ALSO:
  - policy.go: Policy definitions and creation-time validation
  - ledger.go: The balance ledger (the only component that mutates money)
  - lifecycle.go: The order state machine orchestrating everything
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - KRW amount with decimal precision
// =============================================================================

// Money is an amount of Korean won. Multi-currency is out of scope, so no
// currency code is carried.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(won int64) Money {
	return Money{Value: decimal.NewFromInt(won)}
}

// ParseMoney parses a stored decimal string. A corrupt value is an error,
// never silently zero: in a balance that is the sum of its deltas, a row
// read as 0 is unreconcilable corruption.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return Money{Value: d}, nil
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool    { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool       { return m.Value.Equal(o.Value) }
func (m Money) String() string           { return m.Value.String() }

// PercentFloor returns floor(m * percent / 100). Share computation always
// rounds down; HQ absorbs the remainder so no value leaks.
func (m Money) PercentFloor(percent int64) Money {
	return Money{Value: m.Value.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100)).Floor()}
}

// Min returns the smaller of the two amounts.
func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type PolicyID string
type OrderID string
type TransactionID string
type SettlementID string

// =============================================================================
// COMPANY - Node in the two-level reseller hierarchy
// =============================================================================

type CompanyType string

const (
	CompanyHQ     CompanyType = "hq"
	CompanyAgency CompanyType = "agency"
	CompanyRetail CompanyType = "retail"
)

// Company is a participant in the rebate hierarchy. Balance is NOT a field:
// it is always derived from the ledger (see BalanceLedger.Balance).
type Company struct {
	ID       CompanyID
	Name     string
	Type     CompanyType
	ParentID CompanyID // empty for HQ
}

// =============================================================================
// ORDER INPUTS
// =============================================================================

type Carrier string

const (
	CarrierSKT Carrier = "SKT"
	CarrierKT  Carrier = "KT"
	CarrierLGU Carrier = "LGU+"
)

type SIMType string

const (
	SIMPrepaid  SIMType = "prepaid"
	SIMPostpaid SIMType = "postpaid"
	SIMESIM     SIMType = "esim"
	SIMReuse    SIMType = "reuse"
)

// =============================================================================
// ORDER - Driven through the lifecycle state machine
// =============================================================================

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderApproved   OrderStatus = "approved"
	OrderRejected   OrderStatus = "rejected"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID        OrderID
	PolicyID  PolicyID
	CompanyID CompanyID

	Carrier        Carrier
	PlanPrice      Money
	ContractPeriod int // months
	SIMType        SIMType

	Status OrderStatus

	// Resolved at submit time and carried to settlement.
	BaseAmount Money // matrix row amount before SIM adjustment
	HeldAmount Money // adjusted amount held on the ordering company
	GradeBonus Money // per-order bonus from the company's grade tier

	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BALANCE TRANSACTION - Atomic change to a company's allocatable balance
// =============================================================================

type TransactionReason string

const (
	ReasonGrant      TransactionReason = "grant"      // funding from outside the hierarchy
	ReasonHold       TransactionReason = "hold"       // pre-authorization at submit
	ReasonRelease    TransactionReason = "release"    // hold reversed (reject/cancel)
	ReasonAllocate   TransactionReason = "allocate"   // hierarchy funding transfer
	ReasonSettlement TransactionReason = "settlement" // finalized split leg
)

// BalanceTransaction is an append-only ledger row. Never updated or deleted;
// corrections are new transactions.
type BalanceTransaction struct {
	ID             TransactionID
	CompanyID      CompanyID
	Delta          Money // signed
	Reason         TransactionReason
	OrderID        OrderID // optional back-reference
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// SETTLEMENT - Immutable three-way split of a completed order's rebate
// =============================================================================

// Settlement stores NET shares: HQShare + AgencyShare + RetailShare equals
// the order's held amount exactly. The retail share is carved out of the
// agency's gross share; HQ absorbs all floor-rounding remainders.
type Settlement struct {
	ID      SettlementID
	OrderID OrderID

	HQShare     Money
	AgencyShare Money
	RetailShare Money

	GradeBonus Money // informational: bonus folded into the ordering company's share
	Total      Money

	CreatedAt time.Time
}

// Reconciles reports whether the shares sum exactly to the total.
func (s Settlement) Reconciles() bool {
	return s.HQShare.Add(s.AgencyShare).Add(s.RetailShare).Equal(s.Total)
}
