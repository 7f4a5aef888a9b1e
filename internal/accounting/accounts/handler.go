package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires chart of accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes for the account registry.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounting/accounts", h.list)
	r.Post("/accounting/accounts", h.create)
	r.Get("/accounting/accounts/{code}", h.getByCode)
	r.Delete("/accounting/accounts/{code}", h.delete)
}

type createAccountRequest struct {
	Code           string  `json:"code" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Type           string  `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Category       string  `json:"category"`
	ParentID       *int64  `json:"parent_id"`
	IsGroup        bool    `json:"is_group"`
	OpeningBalance float64 `json:"opening_balance"`
}

type accountResponse struct {
	ID             int64   `json:"id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Category       string  `json:"category,omitempty"`
	ParentID       *int64  `json:"parent_id,omitempty"`
	Level          int16   `json:"level"`
	IsGroup        bool    `json:"is_group"`
	NormalBalance  string  `json:"normal_balance"`
	OpeningBalance float64 `json:"opening_balance"`
	CurrentBalance float64 `json:"current_balance"`
	IsActive       bool    `json:"is_active"`
}

func toAccountResponse(a accounting.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Code:           a.Code,
		Name:           a.Name,
		Type:           string(a.Type),
		Category:       a.Category,
		ParentID:       a.ParentID,
		Level:          a.Level,
		IsGroup:        a.IsGroup,
		NormalBalance:  string(a.NormalBalance()),
		OpeningBalance: a.OpeningBalance,
		CurrentBalance: a.CurrentBalance,
		IsActive:       a.IsActive,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid request", err.Error())
		return
	}

	account, err := h.service.Create(r.Context(), CreateAccountInput{
		OrgID:          scope.OrgID,
		Code:           req.Code,
		Name:           req.Name,
		Type:           accounting.AccountType(req.Type),
		Category:       req.Category,
		ParentID:       req.ParentID,
		IsGroup:        req.IsGroup,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	accountList, err := h.service.List(r.Context(), scope.OrgID)
	if err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	resp := make([]accountResponse, 0, len(accountList))
	for _, a := range accountList {
		resp = append(resp, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getByCode(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	account, err := h.service.GetByCode(r.Context(), scope.OrgID, chi.URLParam(r, "code"))
	if err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	account, err := h.service.GetByCode(r.Context(), scope.OrgID, chi.URLParam(r, "code"))
	if err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), scope.OrgID, account.ID); err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
