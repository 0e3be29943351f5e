/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external API contract. Money crosses the
  wire as integer won.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type used for policy creation
*/
package api

import (
	"github.com/warp/rebate-engine/engine"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateCompanyRequest creates a node in the reseller hierarchy.
type CreateCompanyRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"` // hq, agency, retail
	ParentID string `json:"parent_id,omitempty"`
}

// SubmitOrderRequest submits a customer order against a policy.
type SubmitOrderRequest struct {
	CompanyID      string `json:"company_id"`
	PolicyID       string `json:"policy_id"`
	Carrier        string `json:"carrier"`
	PlanPrice      int64  `json:"plan_price"`
	ContractPeriod int    `json:"contract_period"`
	SIMType        string `json:"sim_type"`
}

// RejectOrderRequest carries the rejection reason.
type RejectOrderRequest struct {
	Reason string `json:"reason"`
}

// GrantRequest funds a company's balance from outside the hierarchy.
type GrantRequest struct {
	CompanyID string `json:"company_id"`
	Amount    int64  `json:"amount"`
	RefID     string `json:"ref_id"`
}

// AllocateRequest transfers balance down the hierarchy.
type AllocateRequest struct {
	FromCompanyID string `json:"from_company_id"`
	ToCompanyID   string `json:"to_company_id"`
	Amount        int64  `json:"amount"`
	RefID         string `json:"ref_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CompanyDTO represents a company in API responses.
type CompanyDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
	Balance  string `json:"balance,omitempty"`
}

// OrderDTO represents an order in API responses.
type OrderDTO struct {
	ID              string `json:"id"`
	PolicyID        string `json:"policy_id"`
	CompanyID       string `json:"company_id"`
	Carrier         string `json:"carrier"`
	PlanPrice       string `json:"plan_price"`
	ContractPeriod  int    `json:"contract_period"`
	SIMType         string `json:"sim_type"`
	Status          string `json:"status"`
	BaseAmount      string `json:"base_amount"`
	HeldAmount      string `json:"held_amount"`
	GradeBonus      string `json:"grade_bonus"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// SettlementDTO represents a finalized settlement.
type SettlementDTO struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	HQShare     string `json:"hq_share"`
	AgencyShare string `json:"agency_share"`
	RetailShare string `json:"retail_share"`
	GradeBonus  string `json:"grade_bonus"`
	Total       string `json:"total"`
	CreatedAt   string `json:"created_at"`
}

// BalanceDTO is the ledger-derived balance for a company.
type BalanceDTO struct {
	CompanyID string `json:"company_id"`
	Balance   string `json:"balance"`
}

// TransactionDTO represents one ledger row.
type TransactionDTO struct {
	ID             string `json:"id"`
	CompanyID      string `json:"company_id"`
	Delta          string `json:"delta"`
	Reason         string `json:"reason"`
	OrderID        string `json:"order_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	CreatedAt      string `json:"created_at"`
}

// ErrorDTO is the uniform error envelope.
type ErrorDTO struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

const timeFormat = "2006-01-02T15:04:05Z07:00"

func toCompanyDTO(c engine.Company) CompanyDTO {
	return CompanyDTO{
		ID:       string(c.ID),
		Name:     c.Name,
		Type:     string(c.Type),
		ParentID: string(c.ParentID),
	}
}

func toOrderDTO(o *engine.Order) OrderDTO {
	return OrderDTO{
		ID:              string(o.ID),
		PolicyID:        string(o.PolicyID),
		CompanyID:       string(o.CompanyID),
		Carrier:         string(o.Carrier),
		PlanPrice:       o.PlanPrice.String(),
		ContractPeriod:  o.ContractPeriod,
		SIMType:         string(o.SIMType),
		Status:          string(o.Status),
		BaseAmount:      o.BaseAmount.String(),
		HeldAmount:      o.HeldAmount.String(),
		GradeBonus:      o.GradeBonus.String(),
		RejectionReason: o.RejectionReason,
		CreatedAt:       o.CreatedAt.Format(timeFormat),
		UpdatedAt:       o.UpdatedAt.Format(timeFormat),
	}
}

func toSettlementDTO(s *engine.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:          string(s.ID),
		OrderID:     string(s.OrderID),
		HQShare:     s.HQShare.String(),
		AgencyShare: s.AgencyShare.String(),
		RetailShare: s.RetailShare.String(),
		GradeBonus:  s.GradeBonus.String(),
		Total:       s.Total.String(),
		CreatedAt:   s.CreatedAt.Format(timeFormat),
	}
}

func toTransactionDTO(tx engine.BalanceTransaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		CompanyID:      string(tx.CompanyID),
		Delta:          tx.Delta.String(),
		Reason:         string(tx.Reason),
		OrderID:        string(tx.OrderID),
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt.Format(timeFormat),
	}
}
