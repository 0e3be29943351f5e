package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// ACCOUNTING PERIODS - Keys for grade counters
// =============================================================================

// PeriodType defines how grade-counter accounting periods roll over.
// Rollover is lazy: the key is derived from each order's timestamp at
// record time, never by a background clock.
type PeriodType string

const (
	PeriodMonthly        PeriodType = "monthly"         // "2025-03"
	PeriodQuarterly      PeriodType = "quarterly"       // "2025-Q1"
	PeriodYearly         PeriodType = "yearly"          // "2025"
	PeriodPolicyLifetime PeriodType = "policy_lifetime" // one key across all time
)

// lifetimeKey is the constant key shared across all time for
// policy_lifetime grading.
const lifetimeKey = "lifetime"

// PeriodKeyFor returns the accounting-period key containing ts.
func PeriodKeyFor(pt PeriodType, ts time.Time) string {
	ts = ts.UTC()
	switch pt {
	case PeriodMonthly:
		return fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month()))
	case PeriodQuarterly:
		quarter := (int(ts.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", ts.Year(), quarter)
	case PeriodYearly:
		return fmt.Sprintf("%04d", ts.Year())
	case PeriodPolicyLifetime:
		return lifetimeKey
	default:
		return lifetimeKey
	}
}
