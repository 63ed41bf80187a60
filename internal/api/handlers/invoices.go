package handlers

import (
	"context"
	"net/http"
	"package-billing-service/internal/api/dto"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/services"
	"strings"
)

// InvoiceHandler exposes invoice preview, generation, rendering and lifecycle endpoints.
type InvoiceHandler struct {
	Invoices *services.InvoiceService
}

func (h *InvoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.InvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	preview, err := h.Invoices.Preview(r.Context(), c, invoiceRequest(req))
	if err != nil {
		writeServiceError(w, r, "preview invoice", err)
		return
	}

	res := dto.NewPreviewResponse(preview.Items, preview.Totals, preview.Warnings)
	res.UserID = preview.UserID
	res.Currency = preview.Currency
	res.PackageIDs = preview.PackageIDs
	writeJSON(w, r, http.StatusOK, res)
}

func (h *InvoiceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.InvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.Invoices.Generate(r.Context(), c, invoiceRequest(req))
	if err != nil {
		writeServiceError(w, r, "generate invoice", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.NewInvoiceResponse(inv))
}

// GenerateForUser bills all of the user's unbilled packages. The body is
// optional; package_ids and user_id in it are ignored.
func (h *InvoiceHandler) GenerateForUser(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.InvoiceRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.Invoices.GenerateForUser(r.Context(), c, r.PathValue("userID"), invoiceRequest(req))
	if err != nil {
		writeServiceError(w, r, "generate invoice for user", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.NewInvoiceResponse(inv))
}

// Get renders the invoice, converted into ?currency= when given.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	currency := domain.Currency(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))))
	rendered, err := h.Invoices.Render(r.Context(), c.CompanyID, r.PathValue("id"), currency)
	if err != nil {
		writeServiceError(w, r, "render invoice", err)
		return
	}
	writeJSON(w, r, http.StatusOK, renderedResponse(rendered))
}

func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "cancel invoice", h.Invoices.Cancel)
}

func (h *InvoiceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "finalize invoice", h.Invoices.Finalize)
}

func (h *InvoiceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "mark invoice paid", h.Invoices.MarkPaid)
}

func (h *InvoiceHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "mark invoice overdue", h.Invoices.MarkOverdue)
}

type lifecycleFunc func(ctx context.Context, c services.Caller, id string) (*domain.Invoice, error)

func (h *InvoiceHandler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn lifecycleFunc) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	inv, err := fn(r.Context(), c, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.NewInvoiceResponse(inv))
}

func (h *InvoiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(w, r)
	if !ok {
		return
	}

	stats, err := h.Invoices.Stats(r.Context(), c.CompanyID)
	if err != nil {
		writeServiceError(w, r, "invoice stats", err)
		return
	}

	res := dto.InvoiceStatsResponse{Stats: make([]dto.InvoiceStatResponse, 0, len(stats))}
	for _, st := range stats {
		res.Stats = append(res.Stats, dto.InvoiceStatResponse{
			Status:      st.Status,
			Currency:    st.Currency,
			Count:       st.Count,
			TotalAmount: st.TotalAmount,
		})
	}
	writeJSON(w, r, http.StatusOK, res)
}

func invoiceRequest(req dto.InvoiceRequest) services.InvoiceRequest {
	custom := make([]services.CustomLineItem, 0, len(req.CustomLineItems))
	for _, it := range req.CustomLineItems {
		custom = append(custom, services.CustomLineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Currency:    it.Currency,
			IsTax:       it.IsTax,
			PackageID:   it.PackageID,
		})
	}

	return services.InvoiceRequest{
		UserID:                   req.UserID,
		PackageIDs:               req.PackageIDs,
		CustomLineItems:          custom,
		AdditionalCharge:         req.AdditionalCharge,
		AdditionalChargeCurrency: req.AdditionalChargeCurrency,
		SkipFeeRules:             req.SkipFeeRules,
		Notes:                    req.Notes,
		IssueDate:                req.IssueDate,
		DueDate:                  req.DueDate,
		IsDraft:                  req.IsDraft,
		SendNotification:         req.SendNotification,
	}
}

func renderedResponse(ri *services.RenderedInvoice) dto.RenderedInvoiceResponse {
	res := dto.RenderedInvoiceResponse{
		InvoiceResponse: dto.NewInvoiceResponse(ri.Invoice),
		DisplayCurrency: ri.Currency,
		Lines:           make([]dto.RenderedLineResponse, 0, len(ri.Lines)),
		DisplaySubtotal: ri.Subtotal,
		DisplayTax:      ri.TaxAmount,
		DisplayTotal:    ri.TotalAmount,
		RoundedTotal:    ri.RoundedTotal,
		Nominal:         ri.Nominal,
	}
	for _, l := range ri.Lines {
		res.Lines = append(res.Lines, dto.RenderedLineResponse{
			LineItemResponse: dto.NewLineItemResponse(l.LineItem),
			DisplayAmount:    l.Display.Amount,
			DisplayCurrency:  l.Display.Currency,
			Converted:        l.Display.Converted,
			Nominal:          l.Display.Nominal,
		})
	}
	return res
}
