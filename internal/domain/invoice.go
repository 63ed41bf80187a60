package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusIssued, InvoiceStatusCancelled},
	InvoiceStatusIssued:  {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusCancelled},
}

// CanTransition reports whether the status machine allows s -> to.
// Paid and cancelled are terminal.
func (s InvoiceStatus) CanTransition(to InvoiceStatus) bool {
	return slices.Contains(invoiceTransitions[s], to)
}

// SourcesFor lists the statuses that may move to the given status.
func SourcesFor(to InvoiceStatus) []InvoiceStatus {
	var from []InvoiceStatus
	for _, s := range []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusOverdue} {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}

// LineType labels an invoice line; rule lines use the rule's fee type.
type LineType string

const (
	LineTypeTax   LineType = "tax"
	LineTypeDuty  LineType = "duty"
	LineTypeOther LineType = "other"
)

const AdditionalChargeDescription = "Additional Charge"

// LineItem is one charge on an invoice, in its originating currency.
type LineItem struct {
	ID          string
	PackageID   *string
	Type        LineType
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Currency    Currency
	VoidedAt    *time.Time
}

func (l LineItem) IsTax() bool { return l.Type == LineTypeTax }

type lineKey struct {
	typ         LineType
	description string
	currency    Currency
}

// MergeLineItems sums lines sharing (type, description, currency), keeping
// first-seen order. Quantity and LineTotal accumulate; UnitPrice becomes the average.
func MergeLineItems(items []LineItem) []LineItem {
	index := make(map[lineKey]int, len(items))
	merged := make([]LineItem, 0, len(items))

	for _, item := range items {
		k := lineKey{typ: item.Type, description: item.Description, currency: item.Currency}
		i, ok := index[k]
		if !ok {
			index[k] = len(merged)
			merged = append(merged, item)
			continue
		}

		m := &merged[i]
		m.Quantity += item.Quantity
		m.LineTotal = m.LineTotal.Add(item.LineTotal)
		if m.PackageID != nil && (item.PackageID == nil || *item.PackageID != *m.PackageID) {
			m.PackageID = nil
		}
	}

	for i := range merged {
		if merged[i].Quantity > 0 {
			merged[i].UnitPrice = Money(merged[i].LineTotal.Div(decimal.NewFromInt(int64(merged[i].Quantity))))
		}
	}
	return merged
}

// CurrencyTotals are the totals of the lines in one currency.
type CurrencyTotals struct {
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
}

// Totals holds nominal invoice totals plus the per-currency breakdown.
// Nominal totals add line amounts without conversion.
type Totals struct {
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	ByCurrency  map[Currency]CurrencyTotals
}

// ComputeTotals derives subtotal (non-tax lines), tax and total; voided lines are skipped.
func ComputeTotals(items []LineItem) Totals {
	t := Totals{
		Subtotal:   decimal.Zero,
		TaxAmount:  decimal.Zero,
		ByCurrency: map[Currency]CurrencyTotals{},
	}

	for _, item := range items {
		if item.VoidedAt != nil {
			continue
		}
		ct, ok := t.ByCurrency[item.Currency]
		if !ok {
			ct = CurrencyTotals{Subtotal: decimal.Zero, TaxAmount: decimal.Zero}
		}
		if item.IsTax() {
			t.TaxAmount = t.TaxAmount.Add(item.LineTotal)
			ct.TaxAmount = ct.TaxAmount.Add(item.LineTotal)
		} else {
			t.Subtotal = t.Subtotal.Add(item.LineTotal)
			ct.Subtotal = ct.Subtotal.Add(item.LineTotal)
		}
		ct.TotalAmount = ct.Subtotal.Add(ct.TaxAmount)
		t.ByCurrency[item.Currency] = ct
	}

	t.Subtotal = Money(t.Subtotal)
	t.TaxAmount = Money(t.TaxAmount)
	t.TotalAmount = t.Subtotal.Add(t.TaxAmount)
	return t
}

// Invoice bills a set of packages for one customer.
type Invoice struct {
	ID            string
	CompanyID     string
	UserID        string
	InvoiceNumber string
	Status        InvoiceStatus
	Currency      Currency
	IssueDate     time.Time
	DueDate       time.Time
	Items         []LineItem
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	Notes         string
	PackageIDs    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// ApplyTotals recomputes the invoice totals from its items.
func (inv *Invoice) ApplyTotals() Totals {
	t := ComputeTotals(inv.Items)
	inv.Subtotal = t.Subtotal
	inv.TaxAmount = t.TaxAmount
	inv.TotalAmount = t.TotalAmount
	return t
}

// Clone returns a copy that shares no slices with inv.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	c.Items = slices.Clone(inv.Items)
	c.PackageIDs = slices.Clone(inv.PackageIDs)
	return &c
}

// Active reports whether the invoice still holds its packages.
func (inv *Invoice) Active() bool { return inv.Status != InvoiceStatusCancelled }

// FormatInvoiceNumber renders the n-th invoice number of a company, e.g. INV-000042.
func FormatInvoiceNumber(prefix string, n int64) string {
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// InvoiceStat is one row of the per-status, per-currency aggregate.
// Cancelled invoices never appear.
type InvoiceStat struct {
	Status      InvoiceStatus
	Currency    Currency
	Count       int
	TotalAmount decimal.Decimal
}
