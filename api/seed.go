/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:
  Populates the stores with a realistic distribution hierarchy and the
  three carrier rebate policies so the API is usable out of the box:

    megacom-hq (HQ, funded 10,000,000)
      seoul-agency (agency, allocated 3,000,000)
        gangnam-mobile (retail, allocated 1,000,000)
        hongdae-phones (retail, allocated 1,000,000)
      busan-agency (agency, allocated 2,000,000)
        haeundae-telecom (retail, allocated 800,000)

  Policies: skt-standard, kt-standard, lgu-standard (monthly grading,
  standard matrix and tiers).

  Seeding is idempotent: company and policy puts are wholesale replaces,
  and the funding grants and allocations carry fixed idempotency keys, so
  repeated seeds never double-fund.

NOTE:
  Only use in development/demo environments.

SEE ALSO:
  - handlers.go: SeedDemo handler
  - factory/policy.go: StandardPolicy preset
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/factory"
)

// SeedDemo loads the demo hierarchy, policies, and funding.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.seed(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func (h *Handler) seed(ctx context.Context) error {
	companies := []engine.Company{
		{ID: "megacom-hq", Name: "MegaCom HQ", Type: engine.CompanyHQ},
		{ID: "seoul-agency", Name: "Seoul Agency", Type: engine.CompanyAgency, ParentID: "megacom-hq"},
		{ID: "busan-agency", Name: "Busan Agency", Type: engine.CompanyAgency, ParentID: "megacom-hq"},
		{ID: "gangnam-mobile", Name: "Gangnam Mobile", Type: engine.CompanyRetail, ParentID: "seoul-agency"},
		{ID: "hongdae-phones", Name: "Hongdae Phones", Type: engine.CompanyRetail, ParentID: "seoul-agency"},
		{ID: "haeundae-telecom", Name: "Haeundae Telecom", Type: engine.CompanyRetail, ParentID: "busan-agency"},
	}
	for _, c := range companies {
		if err := h.Companies.Put(ctx, c); err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
	}

	policies := []struct {
		id, name string
		carrier  engine.Carrier
	}{
		{"skt-standard", "SKT Standard", engine.CarrierSKT},
		{"kt-standard", "KT Standard", engine.CarrierKT},
		{"lgu-standard", "LG U+ Standard", engine.CarrierLGU},
	}
	for _, pd := range policies {
		p, err := factory.StandardPolicy(pd.id, pd.name, pd.carrier)
		if err != nil {
			return fmt.Errorf("seed policy %s: %w", pd.id, err)
		}
		if err := h.Policies.Put(ctx, p); err != nil {
			return fmt.Errorf("seed policy %s: %w", pd.id, err)
		}
	}

	if _, err := h.Ledger.Credit(ctx, "megacom-hq", engine.NewMoney(10_000_000), engine.ReasonGrant, "seed-hq-funding"); err != nil {
		return err
	}

	allocations := []struct {
		from, to engine.CompanyID
		amount   int64
		ref      string
	}{
		{"megacom-hq", "seoul-agency", 3_000_000, "seed-alloc-seoul"},
		{"megacom-hq", "busan-agency", 2_000_000, "seed-alloc-busan"},
		{"seoul-agency", "gangnam-mobile", 1_000_000, "seed-alloc-gangnam"},
		{"seoul-agency", "hongdae-phones", 1_000_000, "seed-alloc-hongdae"},
		{"busan-agency", "haeundae-telecom", 800_000, "seed-alloc-haeundae"},
	}
	for _, a := range allocations {
		if err := h.Ledger.Allocate(ctx, a.from, a.to, engine.NewMoney(a.amount), a.ref); err != nil {
			return fmt.Errorf("seed allocation %s: %w", a.ref, err)
		}
	}

	h.Log.Info("demo data seeded")
	return nil
}
