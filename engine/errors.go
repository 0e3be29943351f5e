/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. Callers match with errors.Is/errors.As;
  structured errors carry the context needed to act on the failure.

ERROR CATEGORIES:
  1. Configuration errors - missing rebate rows, invalid policies (fatal)
  2. Balance errors       - insufficient funds (recoverable: fund and retry)
  3. Lifecycle errors     - invalid state transitions (usage errors)
  4. Integrity errors     - settlement mutation attempts (must never occur)

SEE ALSO:
  - ledger.go: returns InsufficientBalanceError
  - lifecycle.go: returns InvalidStateTransitionError
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyConfig is returned when a policy has no rebate row for the
	// requested (carrier, bracket, period) combination. Absence is a
	// configuration error, never a fallback case.
	ErrPolicyConfig = errors.New("policy configuration error")

	// ErrInsufficientBalance is returned when a deduction or allocation
	// exceeds the source company's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidStateTransition is returned for a disallowed order status
	// change. No ledger state is touched.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrSettlementImmutable is returned on an attempted mutation of a
	// finalized settlement. A data-integrity violation: must never occur
	// under correct usage.
	ErrSettlementImmutable = errors.New("settlement is immutable")

	// ErrDuplicateIdempotencyKey is returned by stores when a transaction
	// with the same idempotency key already exists. The ledger resolves
	// this transparently by returning the prior result.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrStaleOrderStatus is returned by OrderStore.Transition when the
	// stored status no longer matches the expected one: another transition
	// committed first. The coordinator surfaces this as an
	// InvalidStateTransitionError.
	ErrStaleOrderStatus = errors.New("order status changed concurrently")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrCompanyNotFound is returned when a referenced company doesn't exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrOrderNotFound is returned when a referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrSettlementNotFound is returned when no settlement exists for an order.
	ErrSettlementNotFound = errors.New("settlement not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PolicyConfigError reports a failed rate-table lookup or an invalid policy
// definition.
type PolicyConfigError struct {
	PolicyID PolicyID
	Detail   string
}

func (e *PolicyConfigError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.PolicyID, e.Detail)
}

func (e *PolicyConfigError) Unwrap() error { return ErrPolicyConfig }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	CompanyID CompanyID
	Available Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %s, requested %s",
		e.CompanyID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidStateTransitionError reports a disallowed order status change.
type InvalidStateTransitionError struct {
	OrderID OrderID
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation may succeed after the caller
// fixes funding (e.g., requests a reallocation).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrPolicyConfig)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrCompanyNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}
