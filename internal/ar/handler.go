package ar

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires sales invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes for sales invoices.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ar/invoices", h.list)
	r.Post("/ar/invoices", h.create)
	r.Get("/ar/invoices/{id}", h.get)
	r.Post("/ar/invoices/{id}/post", h.post)
	r.Post("/ar/invoices/{id}/void", h.void)
}

type invoiceLineRequest struct {
	ProductID   *int64  `json:"product_id"`
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	DiscountPct float64 `json:"discount_pct" validate:"gte=0,lte=100"`
	TaxPct      float64 `json:"tax_pct" validate:"gte=0"`
}

type createInvoiceRequest struct {
	Number                string               `json:"number"`
	CustomerID            int64                `json:"customer_id" validate:"required"`
	InvoiceDate           string               `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate               string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	ShippingCharges       float64              `json:"shipping_charges" validate:"gte=0"`
	OtherCharges          float64              `json:"other_charges" validate:"gte=0"`
	ReceivableAccountCode string               `json:"receivable_account_code"`
	RevenueAccountCode    string               `json:"revenue_account_code"`
	TaxAccountCode        string               `json:"tax_account_code"`
	Lines                 []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLineResponse struct {
	ID          int64   `json:"id"`
	ProductID   *int64  `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	DiscountPct float64 `json:"discount_pct"`
	TaxPct      float64 `json:"tax_pct"`
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"tax_amount"`
	Total       float64 `json:"total"`
}

type invoiceResponse struct {
	ID              int64                 `json:"id"`
	Number          string                `json:"number"`
	CustomerID      int64                 `json:"customer_id"`
	InvoiceDate     string                `json:"invoice_date"`
	DueDate         string                `json:"due_date"`
	Subtotal        float64               `json:"subtotal"`
	DiscountAmount  float64               `json:"discount_amount"`
	TaxableAmount   float64               `json:"taxable_amount"`
	TotalTax        float64               `json:"total_tax"`
	ShippingCharges float64               `json:"shipping_charges"`
	OtherCharges    float64               `json:"other_charges"`
	TotalAmount     float64               `json:"total_amount"`
	Status          string                `json:"status"`
	IsPosted        bool                  `json:"is_posted"`
	VoucherID       *int64                `json:"voucher_id,omitempty"`
	Lines           []invoiceLineResponse `json:"lines,omitempty"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:              inv.ID,
		Number:          inv.Number,
		CustomerID:      inv.CustomerID,
		InvoiceDate:     inv.InvoiceDate.Format("2006-01-02"),
		DueDate:         inv.DueDate.Format("2006-01-02"),
		Subtotal:        inv.Subtotal,
		DiscountAmount:  inv.DiscountAmount,
		TaxableAmount:   inv.TaxableAmount,
		TotalTax:        inv.TotalTax,
		ShippingCharges: inv.ShippingCharges,
		OtherCharges:    inv.OtherCharges,
		TotalAmount:     inv.TotalAmount,
		Status:          string(inv.Status),
		IsPosted:        inv.IsPosted,
		VoucherID:       inv.VoucherID,
	}
	for _, l := range inv.Lines {
		resp.Lines = append(resp.Lines, invoiceLineResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
			Subtotal:    l.Subtotal,
			TaxAmount:   l.TaxAmount,
			Total:       l.Total,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid request", err.Error())
		return
	}

	in := CreateInvoiceInput{
		OrgID:                 scope.OrgID,
		Number:                req.Number,
		CustomerID:            req.CustomerID,
		ShippingCharges:       req.ShippingCharges,
		OtherCharges:          req.OtherCharges,
		ReceivableAccountCode: req.ReceivableAccountCode,
		RevenueAccountCode:    req.RevenueAccountCode,
		TaxAccountCode:        req.TaxAccountCode,
		CreatedBy:             scope.ActorID,
	}
	if req.InvoiceDate != "" {
		in.InvoiceDate, _ = time.Parse("2006-01-02", req.InvoiceDate)
	}
	if req.DueDate != "" {
		in.DueDate, _ = time.Parse("2006-01-02", req.DueDate)
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, CreateInvoiceLineInput{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
		})
	}

	inv, err := h.service.CreateInvoice(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), scope.OrgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing scope", "organization scope not attached")
		return
	}
	status := InvoiceStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	invoices, err := h.service.ListInvoices(r.Context(), scope.OrgID, status, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.PostInvoice(r.Context(), scope.OrgID, id, scope.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
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
	inv, err := h.service.VoidInvoice(r.Context(), scope.OrgID, id, scope.ActorID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
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

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		accounting.RespondError(w, h.logger, err)
	}
}
