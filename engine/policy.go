/*
policy.go - Rebate policy definitions and creation-time validation

PURPOSE:
  A Policy is HQ's contract with the hierarchy: which carrier/plan/contract
  combinations earn which base rebate, which order volumes unlock which
  grade bonuses, and how the rebate splits across HQ/Agency/Retail.

LIFECYCLE:
  Policies are created and only ever replaced wholesale by HQ. There are no
  partial in-place edits - a half-updated matrix could desynchronize with
  grade counters already recorded against the policy.

VALIDATION:
  All structural rules are enforced at creation time, not lookup time:
  - split percentages within [0,100], retail <= agency
  - grade tiers sorted ascending with unique thresholds
  - rebate matrix rows unique per (carrier, bracket, period), brackets
    non-overlapping for the same carrier+period

SEE ALSO:
  - ratetable.go: resolves a rebate from the matrix
  - grade.go: resolves a tier from the grade ladder
*/
package engine

// =============================================================================
// REBATE MATRIX - (carrier, plan-price bracket, contract period) -> base amount
// =============================================================================

// RebateMatrixRow maps an exact (carrier, bracket, contract period)
// combination to a base rebate amount. The bracket is a closed plan-price
// range [BracketLow, BracketHigh].
type RebateMatrixRow struct {
	Carrier        Carrier
	BracketLow     Money
	BracketHigh    Money
	ContractPeriod int // months
	BaseAmount     Money
}

// Contains reports whether planPrice falls inside this row's bracket.
func (r RebateMatrixRow) Contains(planPrice Money) bool {
	return !planPrice.LessThan(r.BracketLow) && !planPrice.GreaterThan(r.BracketHigh)
}

// =============================================================================
// GRADE TIERS - Volume thresholds unlocking per-order bonuses
// =============================================================================

// GradeTier unlocks BonusPerOrder once a company's qualifying order count
// within an accounting period reaches MinOrders.
type GradeTier struct {
	MinOrders     int
	BonusPerOrder Money
}

// =============================================================================
// SPLIT CONFIG - How a rebate divides across the hierarchy
// =============================================================================

const (
	DefaultAgencyPercent int64 = 70
	DefaultRetailPercent int64 = 50
)

// SplitConfig is the strongly-typed split configuration. Percentages apply
// to the order's total adjusted rebate; the retail share is carved out of
// the agency's gross share, and HQ absorbs the remainder.
type SplitConfig struct {
	AgencyPercent int64
	RetailPercent int64

	// AgencyShareCap, when set, caps the agency's gross share at a fixed
	// amount (an agency-specific custom override).
	AgencyShareCap *Money

	// RetailShareOverride, when set, replaces the percentage-derived retail
	// share (an agency-set per-retail override). Still bounded by the
	// agency gross share.
	RetailShareOverride *Money
}

// DefaultSplit returns the platform default: agency 70%, retail 50%.
func DefaultSplit() SplitConfig {
	return SplitConfig{
		AgencyPercent: DefaultAgencyPercent,
		RetailPercent: DefaultRetailPercent,
	}
}

func (c SplitConfig) validate() *PolicyConfigError {
	if c.AgencyPercent < 0 || c.AgencyPercent > 100 {
		return &PolicyConfigError{Detail: "agency percent out of [0,100]"}
	}
	if c.RetailPercent < 0 || c.RetailPercent > 100 {
		return &PolicyConfigError{Detail: "retail percent out of [0,100]"}
	}
	if c.RetailPercent > c.AgencyPercent {
		return &PolicyConfigError{Detail: "retail percent exceeds agency percent"}
	}
	if c.AgencyShareCap != nil && c.AgencyShareCap.IsNegative() {
		return &PolicyConfigError{Detail: "agency share cap is negative"}
	}
	if c.RetailShareOverride != nil && c.RetailShareOverride.IsNegative() {
		return &PolicyConfigError{Detail: "retail share override is negative"}
	}
	return nil
}

// =============================================================================
// POLICY
// =============================================================================

// Policy bundles a rebate matrix, a grade ladder, and an optional split
// override under one id.
type Policy struct {
	ID      PolicyID
	Name    string
	Carrier Carrier

	RebateMatrix []RebateMatrixRow
	GradeTiers   []GradeTier
	GradePeriod  PeriodType

	// SplitOverride replaces DefaultSplit() when set.
	SplitOverride *SplitConfig
}

// Split returns the effective split configuration for this policy.
func (p *Policy) Split() SplitConfig {
	if p.SplitOverride != nil {
		return *p.SplitOverride
	}
	return DefaultSplit()
}

// Validate enforces all structural invariants. Called once at creation;
// a policy that passes never produces configuration surprises at runtime.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return &PolicyConfigError{Detail: "missing policy id"}
	}
	if len(p.RebateMatrix) == 0 {
		return &PolicyConfigError{PolicyID: p.ID, Detail: "empty rebate matrix"}
	}

	for i, row := range p.RebateMatrix {
		if row.BracketHigh.LessThan(row.BracketLow) {
			return &PolicyConfigError{PolicyID: p.ID, Detail: "bracket high below bracket low"}
		}
		if row.BaseAmount.IsNegative() {
			return &PolicyConfigError{PolicyID: p.ID, Detail: "negative base amount"}
		}
		if row.ContractPeriod <= 0 {
			return &PolicyConfigError{PolicyID: p.ID, Detail: "non-positive contract period"}
		}
		// Uniqueness per (carrier, bracket, period): brackets for the same
		// carrier+period must not overlap.
		for j := 0; j < i; j++ {
			prev := p.RebateMatrix[j]
			if prev.Carrier != row.Carrier || prev.ContractPeriod != row.ContractPeriod {
				continue
			}
			if !row.BracketLow.GreaterThan(prev.BracketHigh) && !prev.BracketLow.GreaterThan(row.BracketHigh) {
				return &PolicyConfigError{PolicyID: p.ID, Detail: "overlapping rebate matrix brackets"}
			}
		}
	}

	if err := validateTiers(p.GradeTiers); err != nil {
		err.PolicyID = p.ID
		return err
	}

	switch p.GradePeriod {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly, PeriodPolicyLifetime:
	default:
		return &PolicyConfigError{PolicyID: p.ID, Detail: "unknown grade period type"}
	}

	if p.SplitOverride != nil {
		if err := p.SplitOverride.validate(); err != nil {
			err.PolicyID = p.ID
			return err
		}
	}
	return nil
}

// validateTiers requires tiers sorted ascending by threshold with unique
// thresholds. Ties on identical thresholds are invalid configuration.
func validateTiers(tiers []GradeTier) *PolicyConfigError {
	for i, tier := range tiers {
		if tier.MinOrders <= 0 {
			return &PolicyConfigError{Detail: "grade tier threshold must be positive"}
		}
		if tier.BonusPerOrder.IsNegative() {
			return &PolicyConfigError{Detail: "grade tier bonus is negative"}
		}
		if i > 0 && tier.MinOrders <= tiers[i-1].MinOrders {
			return &PolicyConfigError{Detail: "grade tiers must be sorted ascending with unique thresholds"}
		}
	}
	return nil
}
