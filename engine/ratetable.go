/*
ratetable.go - Pure rebate lookup from a policy's rate matrix

PURPOSE:
  Resolves a per-order rebate: exact match on (carrier, bracket containing
  the plan price, contract period), then a SIM-type adjustment. No partial
  or default matching - a missing row is a configuration error and the
  order must not be created.

SIM ADJUSTMENT:
  prepaid    +7,700
  postpaid   -7,700
  esim/reuse      0
  Applied after the lookup. If the adjustment would drive the amount below
  zero, the result clamps at zero.
*/
package engine

// simAdjustmentWon is the flat prepaid/postpaid adjustment (7,700 won,
// i.e. the standard SIM card fee).
const simAdjustmentWon = 7700

// RebateResult is the outcome of a rate-table lookup.
type RebateResult struct {
	BaseAmount     Money // matrix row amount
	AdjustedAmount Money // after SIM adjustment, clamped at zero
}

// ResolveRebate looks up the rebate for an order's inputs against a policy's
// rate matrix. Returns *PolicyConfigError when no row matches.
func ResolveRebate(policy *Policy, carrier Carrier, planPrice Money, contractPeriod int, simType SIMType) (RebateResult, error) {
	for _, row := range policy.RebateMatrix {
		if row.Carrier != carrier || row.ContractPeriod != contractPeriod {
			continue
		}
		if !row.Contains(planPrice) {
			continue
		}
		return RebateResult{
			BaseAmount:     row.BaseAmount,
			AdjustedAmount: applySIMAdjustment(row.BaseAmount, simType),
		}, nil
	}

	return RebateResult{}, &PolicyConfigError{
		PolicyID: policy.ID,
		Detail:   "no rebate row for carrier/bracket/period combination",
	}
}

func applySIMAdjustment(base Money, simType SIMType) Money {
	adjusted := base
	switch simType {
	case SIMPrepaid:
		adjusted = base.Add(NewMoney(simAdjustmentWon))
	case SIMPostpaid:
		adjusted = base.Sub(NewMoney(simAdjustmentWon))
	}
	if adjusted.IsNegative() {
		return ZeroMoney()
	}
	return adjusted
}
