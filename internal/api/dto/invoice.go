package dto

import (
	"package-billing-service/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

type CustomLineItemRequest struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    domain.Currency `json:"currency"`
	IsTax       bool            `json:"is_tax"`
	PackageID   string          `json:"package_id"`
}

type InvoiceRequest struct {
	UserID                   string                  `json:"user_id"`
	PackageIDs               []string                `json:"package_ids"`
	CustomLineItems          []CustomLineItemRequest `json:"custom_line_items"`
	AdditionalCharge         *decimal.Decimal        `json:"additional_charge"`
	AdditionalChargeCurrency domain.Currency         `json:"additional_charge_currency"`
	SkipFeeRules             bool                    `json:"skip_fee_rules"`
	Notes                    string                  `json:"notes"`
	IssueDate                *time.Time              `json:"issue_date"`
	DueDate                  *time.Time              `json:"due_date"`
	IsDraft                  bool                    `json:"is_draft"`
	SendNotification         bool                    `json:"send_notification"`
}

type LineItemResponse struct {
	ID          string          `json:"id"`
	PackageID   *string         `json:"package_id"`
	Type        domain.LineType `json:"type"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Currency    domain.Currency `json:"currency"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
}

type CurrencyTotalsResponse struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type WarningResponse struct {
	RuleID   string `json:"rule_id"`
	RuleCode string `json:"rule_code"`
	Message  string `json:"message"`
}

type PreviewResponse struct {
	UserID      string                                     `json:"user_id"`
	Currency    domain.Currency                            `json:"currency"`
	PackageIDs  []string                                   `json:"package_ids"`
	Items       []LineItemResponse                         `json:"items"`
	Subtotal    decimal.Decimal                            `json:"subtotal"`
	TaxAmount   decimal.Decimal                            `json:"tax_amount"`
	TotalAmount decimal.Decimal                            `json:"total_amount"`
	ByCurrency  map[domain.Currency]CurrencyTotalsResponse `json:"by_currency"`
	Warnings    []WarningResponse                          `json:"warnings"`
}

type InvoiceResponse struct {
	ID            string               `json:"id"`
	InvoiceNumber string               `json:"invoice_number"`
	UserID        string               `json:"user_id"`
	Status        domain.InvoiceStatus `json:"status"`
	Currency      domain.Currency      `json:"currency"`
	IssueDate     time.Time            `json:"issue_date"`
	DueDate       time.Time            `json:"due_date"`
	Items         []LineItemResponse   `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxAmount     decimal.Decimal      `json:"tax_amount"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	Notes         string               `json:"notes,omitempty"`
	PackageIDs    []string             `json:"package_ids"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
}

type RenderedLineResponse struct {
	LineItemResponse
	DisplayAmount   decimal.Decimal `json:"display_amount"`
	DisplayCurrency domain.Currency `json:"display_currency"`
	Converted       bool            `json:"converted"`
	Nominal         bool            `json:"nominal"`
}

type RenderedInvoiceResponse struct {
	InvoiceResponse
	DisplayCurrency domain.Currency        `json:"display_currency"`
	Lines           []RenderedLineResponse `json:"lines"`
	DisplaySubtotal decimal.Decimal        `json:"display_subtotal"`
	DisplayTax      decimal.Decimal        `json:"display_tax_amount"`
	DisplayTotal    decimal.Decimal        `json:"display_total_amount"`
	RoundedTotal    decimal.Decimal        `json:"rounded_total"`
	Nominal         bool                   `json:"nominal"`
}

type InvoiceStatResponse struct {
	Status      domain.InvoiceStatus `json:"status"`
	Currency    domain.Currency      `json:"currency"`
	Count       int                  `json:"count"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
}

type InvoiceStatsResponse struct {
	Stats []InvoiceStatResponse `json:"stats"`
}

func NewLineItemResponse(it domain.LineItem) LineItemResponse {
	return LineItemResponse{
		ID:          it.ID,
		PackageID:   it.PackageID,
		Type:        it.Type,
		Description: it.Description,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
		LineTotal:   it.LineTotal,
		Currency:    it.Currency,
		VoidedAt:    it.VoidedAt,
	}
}

func newLineItems(items []domain.LineItem) []LineItemResponse {
	out := make([]LineItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, NewLineItemResponse(it))
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func NewInvoiceResponse(inv *domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		UserID:        inv.UserID,
		Status:        inv.Status,
		Currency:      inv.Currency,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Items:         newLineItems(inv.Items),
		Subtotal:      inv.Subtotal,
		TaxAmount:     inv.TaxAmount,
		TotalAmount:   inv.TotalAmount,
		Notes:         inv.Notes,
		PackageIDs:    nonNil(inv.PackageIDs),
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		CancelledAt:   inv.CancelledAt,
	}
}

func NewPreviewResponse(items []domain.LineItem, totals domain.Totals, warnings []domain.ConfigWarning) PreviewResponse {
	res := PreviewResponse{
		Items:       newLineItems(items),
		Subtotal:    totals.Subtotal,
		TaxAmount:   totals.TaxAmount,
		TotalAmount: totals.TotalAmount,
		ByCurrency:  make(map[domain.Currency]CurrencyTotalsResponse, len(totals.ByCurrency)),
		Warnings:    make([]WarningResponse, 0, len(warnings)),
	}
	for cur, t := range totals.ByCurrency {
		res.ByCurrency[cur] = CurrencyTotalsResponse{
			Subtotal:    t.Subtotal,
			TaxAmount:   t.TaxAmount,
			TotalAmount: t.TotalAmount,
		}
	}
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, WarningResponse{
			RuleID:   w.RuleID,
			RuleCode: w.RuleCode,
			Message:  w.Message,
		})
	}
	return res
}
