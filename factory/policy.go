/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into engine.Policy values. This enables
  rebate schedule configuration without code changes - HQ operations staff
  can define a policy's rate matrix, grade ladder, and split override in
  JSON, and the factory builds and validates the proper Go structs.

JSON SCHEMA:
  {
    "id": "skt-2025-standard",
    "name": "SKT Standard 2025",
    "carrier": "SKT",
    "grade_period": "monthly",
    "rebate_matrix": [
      {"carrier": "SKT", "bracket_low": 45000, "bracket_high": 59999,
       "contract_period": 24, "base_amount": 100000}
    ],
    "grade_tiers": [
      {"min_orders": 10, "bonus_per_order": 5000},
      {"min_orders": 50, "bonus_per_order": 10000}
    ],
    "split": {"agency_percent": 70, "retail_percent": 50}
  }

VALIDATION:
  Every parsed policy runs engine.Policy.Validate() before it is returned;
  an invalid definition never reaches a store.

SEE ALSO:
  - engine/policy.go: Policy type and validation rules
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/rebate-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a rebate policy.
type PolicyJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Carrier      string          `json:"carrier"`
	GradePeriod  string          `json:"grade_period"`
	RebateMatrix []MatrixRowJSON `json:"rebate_matrix"`
	GradeTiers   []GradeTierJSON `json:"grade_tiers,omitempty"`
	Split        *SplitJSON      `json:"split,omitempty"`
}

// MatrixRowJSON represents one rate-table row. Amounts are integer won.
type MatrixRowJSON struct {
	Carrier        string `json:"carrier"`
	BracketLow     int64  `json:"bracket_low"`
	BracketHigh    int64  `json:"bracket_high"`
	ContractPeriod int    `json:"contract_period"`
	BaseAmount     int64  `json:"base_amount"`
}

// GradeTierJSON represents one grade-ladder rung.
type GradeTierJSON struct {
	MinOrders     int   `json:"min_orders"`
	BonusPerOrder int64 `json:"bonus_per_order"`
}

// SplitJSON represents a hierarchy split override.
type SplitJSON struct {
	AgencyPercent       int64  `json:"agency_percent"`
	RetailPercent       int64  `json:"retail_percent"`
	AgencyShareCap      *int64 `json:"agency_share_cap,omitempty"`
	RetailShareOverride *int64 `json:"retail_share_override,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to validated engine.Policy values.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory { return &PolicyFactory{} }

// ParsePolicy parses and validates a JSON policy definition.
func (f *PolicyFactory) ParsePolicy(data []byte) (engine.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return engine.Policy{}, fmt.Errorf("invalid policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON builds a validated engine.Policy from its JSON form.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (engine.Policy, error) {
	p := engine.Policy{
		ID:          engine.PolicyID(pj.ID),
		Name:        pj.Name,
		Carrier:     engine.Carrier(pj.Carrier),
		GradePeriod: engine.PeriodType(pj.GradePeriod),
	}
	if p.GradePeriod == "" {
		p.GradePeriod = engine.PeriodPolicyLifetime
	}

	for _, row := range pj.RebateMatrix {
		p.RebateMatrix = append(p.RebateMatrix, engine.RebateMatrixRow{
			Carrier:        engine.Carrier(row.Carrier),
			BracketLow:     engine.NewMoney(row.BracketLow),
			BracketHigh:    engine.NewMoney(row.BracketHigh),
			ContractPeriod: row.ContractPeriod,
			BaseAmount:     engine.NewMoney(row.BaseAmount),
		})
	}

	for _, tier := range pj.GradeTiers {
		p.GradeTiers = append(p.GradeTiers, engine.GradeTier{
			MinOrders:     tier.MinOrders,
			BonusPerOrder: engine.NewMoney(tier.BonusPerOrder),
		})
	}

	if pj.Split != nil {
		split := engine.SplitConfig{
			AgencyPercent: pj.Split.AgencyPercent,
			RetailPercent: pj.Split.RetailPercent,
		}
		if pj.Split.AgencyShareCap != nil {
			cap := engine.NewMoney(*pj.Split.AgencyShareCap)
			split.AgencyShareCap = &cap
		}
		if pj.Split.RetailShareOverride != nil {
			override := engine.NewMoney(*pj.Split.RetailShareOverride)
			split.RetailShareOverride = &override
		}
		p.SplitOverride = &split
	}

	if err := p.Validate(); err != nil {
		return engine.Policy{}, err
	}
	return p, nil
}

// =============================================================================
// PRESETS - Standard policies for seeding and tests
// =============================================================================

// StandardGradeTiers is the common two-rung ladder: 10 orders unlock
// 5,000/order, 50 orders unlock 10,000/order.
func StandardGradeTiers() []engine.GradeTier {
	return []engine.GradeTier{
		{MinOrders: 10, BonusPerOrder: engine.NewMoney(5000)},
		{MinOrders: 50, BonusPerOrder: engine.NewMoney(10000)},
	}
}

// StandardMatrix builds a typical bracket ladder for a carrier: plan-price
// brackets at 30k/50k/80k won crossed with 12- and 24-month contracts.
func StandardMatrix(carrier engine.Carrier) []engine.RebateMatrixRow {
	type bracket struct {
		low, high int64
		base12    int64
		base24    int64
	}
	brackets := []bracket{
		{0, 44999, 40000, 70000},
		{45000, 69999, 60000, 100000},
		{70000, 999999, 90000, 150000},
	}

	var rows []engine.RebateMatrixRow
	for _, b := range brackets {
		rows = append(rows,
			engine.RebateMatrixRow{
				Carrier:        carrier,
				BracketLow:     engine.NewMoney(b.low),
				BracketHigh:    engine.NewMoney(b.high),
				ContractPeriod: 12,
				BaseAmount:     engine.NewMoney(b.base12),
			},
			engine.RebateMatrixRow{
				Carrier:        carrier,
				BracketLow:     engine.NewMoney(b.low),
				BracketHigh:    engine.NewMoney(b.high),
				ContractPeriod: 24,
				BaseAmount:     engine.NewMoney(b.base24),
			},
		)
	}
	return rows
}

// StandardPolicy builds a validated monthly-graded policy with the
// standard matrix and tiers for a carrier.
func StandardPolicy(id, name string, carrier engine.Carrier) (engine.Policy, error) {
	p := engine.Policy{
		ID:           engine.PolicyID(id),
		Name:         name,
		Carrier:      carrier,
		RebateMatrix: StandardMatrix(carrier),
		GradeTiers:   StandardGradeTiers(),
		GradePeriod:  engine.PeriodMonthly,
	}
	if err := p.Validate(); err != nil {
		return engine.Policy{}, err
	}
	return p, nil
}
