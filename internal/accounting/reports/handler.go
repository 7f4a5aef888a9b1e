package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the read-side report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for reporting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/trial-balance", h.trialBalance)
	r.Get("/reports/accounts/{id}/ledger", h.accountLedger)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	fiscalYear, err := strconv.Atoi(r.URL.Query().Get("fiscal_year"))
	if err != nil || fiscalYear <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid fiscal year", "fiscal_year query parameter is required")
		return
	}
	fiscalPeriod := r.URL.Query().Get("fiscal_period")

	report, err := h.service.GetTrialBalance(r.Context(), scope.OrgID, fiscalYear, fiscalPeriod)
	if err != nil {
		h.logger.Error("trial balance failed", "error", err, "fiscal_year", fiscalYear)
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "the report could not be produced")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type ledgerEntryResponse struct {
	ID             int64   `json:"id"`
	VoucherID      int64   `json:"voucher_id"`
	VoucherNumber  string  `json:"voucher_number"`
	VoucherType    string  `json:"voucher_type"`
	EntryDate      string  `json:"entry_date"`
	FiscalYear     int     `json:"fiscal_year"`
	FiscalPeriod   string  `json:"fiscal_period"`
	Side           string  `json:"side"`
	Amount         float64 `json:"amount"`
	RunningBalance float64 `json:"running_balance"`
}

func (h *Handler) accountLedger(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "path id must be an integer")
		return
	}

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid date", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid date", "to must be YYYY-MM-DD")
			return
		}
	}

	entries, err := h.service.GetAccountLedger(r.Context(), scope.OrgID, accountID, from, to)
	if err != nil {
		accounting.RespondError(w, h.logger, err)
		return
	}
	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			ID:             e.ID,
			VoucherID:      e.VoucherID,
			VoucherNumber:  e.VoucherNumber,
			VoucherType:    string(e.VoucherType),
			EntryDate:      e.EntryDate.Format("2006-01-02"),
			FiscalYear:     e.FiscalYear,
			FiscalPeriod:   e.FiscalPeriod,
			Side:           string(e.Side),
			Amount:         e.Amount,
			RunningBalance: e.RunningBalance,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
