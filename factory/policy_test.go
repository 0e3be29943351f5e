package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/factory"
)

func TestParsePolicy_FullDefinition(t *testing.T) {
	// GIVEN: A complete JSON policy with matrix, tiers, and split override
	// WHEN: Parsing it
	// THEN: A validated engine.Policy with all amounts as decimals

	data := []byte(`{
		"id": "skt-2025-standard",
		"name": "SKT Standard 2025",
		"carrier": "SKT",
		"grade_period": "monthly",
		"rebate_matrix": [
			{"carrier": "SKT", "bracket_low": 45000, "bracket_high": 69999,
			 "contract_period": 24, "base_amount": 100000}
		],
		"grade_tiers": [
			{"min_orders": 10, "bonus_per_order": 5000},
			{"min_orders": 50, "bonus_per_order": 10000}
		],
		"split": {"agency_percent": 80, "retail_percent": 60, "agency_share_cap": 90000}
	}`)

	p, err := factory.NewPolicyFactory().ParsePolicy(data)
	require.NoError(t, err)

	assert.Equal(t, engine.PolicyID("skt-2025-standard"), p.ID)
	assert.Equal(t, engine.PeriodMonthly, p.GradePeriod)
	require.Len(t, p.RebateMatrix, 1)
	assert.True(t, p.RebateMatrix[0].BaseAmount.Equal(engine.NewMoney(100000)))
	require.Len(t, p.GradeTiers, 2)
	assert.Equal(t, 50, p.GradeTiers[1].MinOrders)
	require.NotNil(t, p.SplitOverride)
	assert.Equal(t, int64(80), p.SplitOverride.AgencyPercent)
	require.NotNil(t, p.SplitOverride.AgencyShareCap)
	assert.True(t, p.SplitOverride.AgencyShareCap.Equal(engine.NewMoney(90000)))
}

func TestParsePolicy_DefaultsToLifetimeGrading(t *testing.T) {
	data := []byte(`{
		"id": "kt-basic", "name": "KT Basic", "carrier": "KT",
		"rebate_matrix": [
			{"carrier": "KT", "bracket_low": 0, "bracket_high": 99999,
			 "contract_period": 12, "base_amount": 50000}
		]
	}`)

	p, err := factory.NewPolicyFactory().ParsePolicy(data)
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodPolicyLifetime, p.GradePeriod)
	assert.Nil(t, p.SplitOverride)
}

func TestParsePolicy_InvalidDefinitionsRejected(t *testing.T) {
	f := factory.NewPolicyFactory()

	cases := []struct {
		name string
		json string
	}{
		{"malformed JSON", `{"id":`},
		{"empty matrix", `{"id": "x", "carrier": "SKT", "rebate_matrix": []}`},
		{"overlapping brackets", `{
			"id": "x", "carrier": "SKT", "grade_period": "monthly",
			"rebate_matrix": [
				{"carrier": "SKT", "bracket_low": 0, "bracket_high": 50000, "contract_period": 24, "base_amount": 1},
				{"carrier": "SKT", "bracket_low": 40000, "bracket_high": 90000, "contract_period": 24, "base_amount": 2}
			]}`},
		{"unsorted tiers", `{
			"id": "x", "carrier": "SKT", "grade_period": "monthly",
			"rebate_matrix": [{"carrier": "SKT", "bracket_low": 0, "bracket_high": 9, "contract_period": 24, "base_amount": 1}],
			"grade_tiers": [
				{"min_orders": 50, "bonus_per_order": 10000},
				{"min_orders": 10, "bonus_per_order": 5000}
			]}`},
		{"retail percent above agency", `{
			"id": "x", "carrier": "SKT", "grade_period": "monthly",
			"rebate_matrix": [{"carrier": "SKT", "bracket_low": 0, "bracket_high": 9, "contract_period": 24, "base_amount": 1}],
			"split": {"agency_percent": 40, "retail_percent": 70}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParsePolicy([]byte(tc.json))
			assert.Error(t, err)
		})
	}
}

func TestStandardPolicy_Valid(t *testing.T) {
	// The seeding preset must always pass its own validation.
	for _, carrier := range []engine.Carrier{engine.CarrierSKT, engine.CarrierKT, engine.CarrierLGU} {
		p, err := factory.StandardPolicy("std", "Standard", carrier)
		require.NoError(t, err, "carrier %s", carrier)
		assert.Len(t, p.RebateMatrix, 6, "three brackets x two contract periods")
	}
}

func TestStandardPolicy_ResolvesAcrossBrackets(t *testing.T) {
	p, err := factory.StandardPolicy("std", "Standard", engine.CarrierSKT)
	require.NoError(t, err)

	cases := []struct {
		price  int64
		period int
		base   int64
	}{
		{30000, 12, 40000},
		{30000, 24, 70000},
		{55000, 24, 100000},
		{90000, 24, 150000},
	}
	for _, tc := range cases {
		result, err := engine.ResolveRebate(&p, engine.CarrierSKT, engine.NewMoney(tc.price), tc.period, engine.SIMESIM)
		require.NoError(t, err, "price %d period %d", tc.price, tc.period)
		assert.True(t, result.BaseAmount.Equal(engine.NewMoney(tc.base)),
			"price %d period %d: %s", tc.price, tc.period, result.BaseAmount)
	}
}
