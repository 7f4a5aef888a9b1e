package accounting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires voucher and reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes for the voucher module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounting/vouchers", h.createVoucher)
	r.Get("/accounting/vouchers/{id}", h.getVoucher)
	r.Post("/accounting/vouchers/{id}/post", h.postVoucher)
	r.Post("/accounting/vouchers/{id}/void", h.voidVoucher)
	r.Delete("/accounting/vouchers/{id}", h.deleteVoucher)
	r.Post("/accounting/accounts/{code}/reconcile", h.reconcileAccount)
}

type voucherEntryRequest struct {
	AccountID   int64   `json:"account_id" validate:"required"`
	Side        string  `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description"`
}

type createVoucherRequest struct {
	Type      string                `json:"type" validate:"required,oneof=JV PV RV CV"`
	Date      string                `json:"date" validate:"required,datetime=2006-01-02"`
	Narration string                `json:"narration" validate:"required"`
	Reference string                `json:"reference"`
	Entries   []voucherEntryRequest `json:"entries" validate:"required,min=2,dive"`
}

type voucherEntryResponse struct {
	AccountID   int64   `json:"account_id"`
	Side        string  `json:"side"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

type voucherResponse struct {
	ID           int64                  `json:"id"`
	Number       string                 `json:"number"`
	Type         string                 `json:"type"`
	Date         string                 `json:"date"`
	FiscalYear   int                    `json:"fiscal_year"`
	FiscalPeriod string                 `json:"fiscal_period"`
	Narration    string                 `json:"narration"`
	Reference    string                 `json:"reference,omitempty"`
	Status       string                 `json:"status"`
	TotalDebit   float64                `json:"total_debit"`
	TotalCredit  float64                `json:"total_credit"`
	Entries      []voucherEntryResponse `json:"entries"`
}

func toVoucherResponse(v Voucher) voucherResponse {
	resp := voucherResponse{
		ID:           v.ID,
		Number:       v.Number,
		Type:         string(v.Type),
		Date:         v.Date.Format("2006-01-02"),
		FiscalYear:   v.FiscalYear,
		FiscalPeriod: v.FiscalPeriod,
		Narration:    v.Narration,
		Reference:    v.Reference,
		Status:       string(v.Status),
		TotalDebit:   v.TotalDebit,
		TotalCredit:  v.TotalCredit,
	}
	for _, e := range v.Entries {
		resp.Entries = append(resp.Entries, voucherEntryResponse{
			AccountID:   e.AccountID,
			Side:        string(e.Side),
			Amount:      e.Amount,
			Description: e.Description,
		})
	}
	return resp
}

func (h *Handler) createVoucher(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}

	var req createVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid request", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)

	in := VoucherInput{
		OrgID:     scope.OrgID,
		Type:      VoucherType(req.Type),
		Date:      date,
		Narration: req.Narration,
		Reference: req.Reference,
	}
	for _, e := range req.Entries {
		in.Entries = append(in.Entries, EntryInput{
			AccountID:   e.AccountID,
			Side:        EntrySide(e.Side),
			Amount:      e.Amount,
			Description: e.Description,
		})
	}

	voucher, err := h.service.CreateVoucher(r.Context(), in, scope.ActorID)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoucherResponse(voucher))
}

func (h *Handler) getVoucher(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	voucher, err := h.service.GetVoucher(r.Context(), scope.OrgID, id)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

func (h *Handler) postVoucher(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	voucher, err := h.service.PostVoucher(r.Context(), scope.OrgID, id, scope.ActorID)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) voidVoucher(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid request", err.Error())
		return
	}
	voucher, err := h.service.VoidVoucher(r.Context(), scope.OrgID, id, scope.ActorID, req.Reason)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

func (h *Handler) deleteVoucher(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteVoucher(r.Context(), scope.OrgID, id, scope.ActorID); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reconcileRequest struct {
	Repair bool `json:"repair"`
}

func (h *Handler) reconcileAccount(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	result, err := h.service.ReconcileAccount(r.Context(), scope.OrgID, chi.URLParam(r, "code"), scope.ActorID, req.Repair)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id":       result.AccountID,
		"account_code":     result.AccountCode,
		"cached_balance":   result.CachedBalance,
		"expected_balance": result.ExpectedBalance,
		"drift":            result.Drift,
		"repaired":         result.Repaired,
	})
}

func (h *Handler) scopeAndID(w http.ResponseWriter, r *http.Request) (shared.Scope, int64, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return shared.Scope{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "path id must be an integer")
		return shared.Scope{}, 0, false
	}
	return scope, id, true
}

// RespondError translates ledger domain errors into problem responses. The
// document poster handlers delegate here after mapping their own sentinels.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		httpx.ProblemWithViolations(w, http.StatusUnprocessableEntity, "Validation failed", "double-entry validation failed", validation.Violations)
		return
	}
	var config *ConfigurationError
	if errors.As(err, &config) {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Configuration error", config.Error())
		return
	}
	switch {
	case errors.Is(err, ErrVoucherNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrAccountHasActivity), errors.Is(err, ErrDuplicateAccountCode):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrGroupAccountPosting), errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid posting target", err.Error())
	case errors.Is(err, ErrVoucherNumberConflict):
		httpx.Problem(w, http.StatusConflict, "Numbering conflict", "voucher numbering contention persisted across retries")
	default:
		logger.Error("accounting request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "the operation could not be completed")
	}
}
