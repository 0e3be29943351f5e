/*
handlers.go - HTTP API handlers for the rebate settlement platform

PURPOSE:
  Exposes the settlement engine via REST. Handles HTTP request/response
  and JSON serialization, delegating all domain logic to the engine. This
  layer contains no algorithmic complexity by design.

ENDPOINTS:
  Companies:
    GET    /api/companies                    List companies
    POST   /api/companies                    Create company
    GET    /api/companies/{id}               Get company (with balance)
    GET    /api/companies/{id}/balance       Ledger-derived balance
    GET    /api/companies/{id}/transactions  Transaction history

  Orders:
    POST   /api/orders                 Submit a new order
    GET    /api/orders/{id}            Get order
    GET    /api/orders?status=pending  List by status
    POST   /api/orders/{id}/submit     Resubmit a draft after funding
    POST   /api/orders/{id}/approve    pending -> approved
    POST   /api/orders/{id}/reject     pending -> rejected (releases hold)
    POST   /api/orders/{id}/process    approved -> processing
    POST   /api/orders/{id}/ship       processing -> shipped
    POST   /api/orders/{id}/complete   shipped -> completed (settles)
    POST   /api/orders/{id}/cancel     draft|pending|approved -> cancelled
    GET    /api/orders/{id}/settlement Finalized settlement

  Policies:
    GET    /api/policies      List policies
    POST   /api/policies      Create/replace policy from JSON (validated)
    GET    /api/policies/{id} Get policy

  Ledger admin:
    POST   /api/admin/grants      Fund a company's balance
    POST   /api/admin/allocations Transfer balance down the hierarchy
    POST   /api/admin/seed        Load the demo hierarchy and policies

ERROR HANDLING:
  Errors map to HTTP status by engine classification:
  - 400: invalid input, policy configuration errors
  - 402: insufficient balance (recoverable: fund and retry)
  - 404: missing company/policy/order/settlement
  - 409: invalid state transition
  - 500: everything else

SEE ALSO:
  - dto.go: request/response structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/rebate-engine/engine"
	"github.com/warp/rebate-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator   *engine.Coordinator
	Ledger        *engine.BalanceLedger
	Policies      engine.PolicyStore
	Companies     engine.CompanyStore
	Orders        engine.OrderStore
	PolicyFactory *factory.PolicyFactory
	Log           logrus.FieldLogger
}

// NewHandler wires a handler around a coordinator and its stores.
func NewHandler(coord *engine.Coordinator, log logrus.FieldLogger) *Handler {
	return &Handler{
		Coordinator:   coord,
		Ledger:        coord.Ledger,
		Policies:      coord.Policies,
		Companies:     coord.Companies,
		Orders:        coord.Orders,
		PolicyFactory: factory.NewPolicyFactory(),
		Log:           log,
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case engine.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrInsufficientBalance):
		status, code = http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, engine.ErrInvalidStateTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, engine.ErrPolicyConfig):
		status, code = http.StatusBadRequest, "policy_config"
	}

	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, ErrorDTO{Error: err.Error(), Code: code})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Companies.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]CompanyDTO, 0, len(companies))
	for _, c := range companies {
		dtos = append(dtos, toCompanyDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid JSON body"})
		return
	}

	companyType := engine.CompanyType(req.Type)
	switch companyType {
	case engine.CompanyHQ, engine.CompanyAgency, engine.CompanyRetail:
	default:
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "type must be hq, agency, or retail"})
		return
	}
	if companyType != engine.CompanyHQ && req.ParentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "non-HQ companies require a parent_id"})
		return
	}

	company := engine.Company{
		ID:       engine.CompanyID(req.ID),
		Name:     req.Name,
		Type:     companyType,
		ParentID: engine.CompanyID(req.ParentID),
	}
	if err := h.Companies.Put(r.Context(), company); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyDTO(company))
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id := engine.CompanyID(chi.URLParam(r, "id"))
	company, err := h.Companies.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dto := toCompanyDTO(*company)
	if balance, err := h.Ledger.Balance(r.Context(), id); err == nil {
		dto.Balance = balance.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := engine.CompanyID(chi.URLParam(r, "id"))
	if _, err := h.Companies.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{CompanyID: string(id), Balance: balance.String()})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := engine.CompanyID(chi.URLParam(r, "id"))
	if _, err := h.Companies.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	txs, err := h.Ledger.Transactions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid JSON body"})
		return
	}

	order, err := h.Coordinator.SubmitOrder(r.Context(),
		engine.CompanyID(req.CompanyID),
		engine.PolicyID(req.PolicyID),
		engine.Carrier(req.Carrier),
		engine.NewMoney(req.PlanPrice),
		req.ContractPeriod,
		engine.SIMType(req.SIMType),
	)
	if err != nil {
		// A draft order survives an insufficient-balance failure so the
		// caller can fund and resubmit; surface both the error and the id.
		if order != nil && errors.Is(err, engine.ErrInsufficientBalance) {
			writeJSON(w, http.StatusPaymentRequired, struct {
				ErrorDTO
				Order OrderDTO `json:"order"`
			}{
				ErrorDTO: ErrorDTO{Error: err.Error(), Code: "insufficient_balance"},
				Order:    toOrderDTO(order),
			})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), engine.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := engine.OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = engine.OrderPending
	}
	orders, err := h.Orders.ListByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, toOrderDTO(&orders[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// transition wraps the shared handler shape of all lifecycle endpoints.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(engine.OrderID) (*engine.Order, error)) {
	order, err := fn(engine.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *Handler) ResubmitOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.Submit(r.Context(), id)
	})
}

func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.Approve(r.Context(), id)
	})
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	var req RejectOrderRequest
	decode(r, &req) // reason is optional
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.Reject(r.Context(), id, req.Reason)
	})
}

func (h *Handler) ProcessOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.StartProcessing(r.Context(), id)
	})
}

func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.MarkShipped(r.Context(), id)
	})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id engine.OrderID) (*engine.Order, error) {
		return h.Coordinator.Cancel(r.Context(), id)
	})
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	order, settlement, err := h.Coordinator.Complete(r.Context(), engine.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Order      OrderDTO      `json:"order"`
		Settlement SettlementDTO `json:"settlement"`
	}{toOrderDTO(order), toSettlementDTO(settlement)})
}

func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.Coordinator.GetSettlement(r.Context(), engine.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(settlement))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Policies.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := decode(r, &pj); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid JSON body"})
		return
	}
	policy, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// Wholesale replace: an existing policy with this id is overwritten in
	// full, never patched.
	if err := h.Policies.Put(r.Context(), policy); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Policies.Get(r.Context(), engine.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// =============================================================================
// LEDGER ADMIN HANDLERS
// =============================================================================

func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid JSON body"})
		return
	}
	if req.RefID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "ref_id is required for idempotency"})
		return
	}
	if _, err := h.Companies.Get(r.Context(), engine.CompanyID(req.CompanyID)); err != nil {
		h.writeError(w, err)
		return
	}

	tx, err := h.Ledger.Credit(r.Context(), engine.CompanyID(req.CompanyID),
		engine.NewMoney(req.Amount), engine.ReasonGrant, req.RefID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid JSON body"})
		return
	}
	if req.RefID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "ref_id is required for idempotency"})
		return
	}

	err := h.Ledger.Allocate(r.Context(),
		engine.CompanyID(req.FromCompanyID),
		engine.CompanyID(req.ToCompanyID),
		engine.NewMoney(req.Amount), req.RefID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
