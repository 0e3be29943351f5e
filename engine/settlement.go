/*
settlement.go - The settlement computer

PURPOSE:
  Combines a resolved rebate, a grade bonus, and the hierarchy split
  configuration into an immutable per-order settlement.

SPLIT ARITHMETIC:
  gross agency share = floor(total * agencyPercent / 100), optionally
  capped by an agency-specific override. The retail share is carved out of
  the agency's gross share: floor(total * retailPercent / 100) unless
  overridden, bounded so retail <= agency gross <= total. HQ takes
  total - agency gross, absorbing every floor-rounding remainder - no
  value ever leaks from the split.

  Stored shares are NET: hq + agency + retail == total exactly.

GRADE BONUS:
  Additive to the ordering company's share and funded out of HQ's share.
  Grade incentives reduce HQ's net margin; they are never reallocated from
  the Agency or Retail shares. HQ's net share can go negative when the
  bonus exceeds it, in which case settlement debits HQ's tracked balance.

IDEMPOTENCY:
  A second compute for the same order returns the existing settlement
  unchanged. Enforced by the coordinator against the SettlementStore's
  unique order-id constraint.
*/
package engine

import (
	"time"

	"github.com/google/uuid"
)

// ComputeSettlement derives the immutable split for an order. Pure: no
// store access, no ledger mutation. The ordering company's type decides
// where the retail share and the grade bonus land:
//   - retail order: retail share to the retailer, bonus to the retailer
//   - agency order: no retail party, the agency keeps its full gross
//     share, bonus to the agency
func ComputeSettlement(order *Order, rebate RebateResult, gradeBonus Money, split SplitConfig, orderingType CompanyType, at time.Time) Settlement {
	total := rebate.AdjustedAmount

	agencyGross := total.PercentFloor(split.AgencyPercent)
	if split.AgencyShareCap != nil {
		agencyGross = agencyGross.Min(*split.AgencyShareCap)
	}
	if agencyGross.GreaterThan(total) {
		agencyGross = total
	}

	retailShare := ZeroMoney()
	if orderingType == CompanyRetail {
		retailShare = total.PercentFloor(split.RetailPercent)
		if split.RetailShareOverride != nil {
			retailShare = *split.RetailShareOverride
		}
		// Bounded: retail <= agency gross <= total.
		retailShare = retailShare.Min(agencyGross)
	}

	hqShare := total.Sub(agencyGross)
	agencyShare := agencyGross.Sub(retailShare)

	// Bonus funded out of HQ's share, added to the ordering company's.
	if gradeBonus.IsPositive() {
		hqShare = hqShare.Sub(gradeBonus)
		if orderingType == CompanyRetail {
			retailShare = retailShare.Add(gradeBonus)
		} else {
			agencyShare = agencyShare.Add(gradeBonus)
		}
	}

	return Settlement{
		ID:          SettlementID(uuid.NewString()),
		OrderID:     order.ID,
		HQShare:     hqShare,
		AgencyShare: agencyShare,
		RetailShare: retailShare,
		GradeBonus:  gradeBonus,
		Total:       total,
		CreatedAt:   at.UTC(),
	}
}
