package ports

import (
	"context"
	"package-billing-service/internal/domain"
	"time"
)

// Port: invoice persistence and the package billing lock.
//
// CreateInvoice is one atomic unit: it claims every package in inv.PackageIDs
// with a conditional write, allocates the next invoice number for the company
// and stores the invoice with its items. A package that is already linked to
// an active invoice fails the whole call with a ConflictError.
type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, inv *domain.Invoice, prefix string) error
	GetInvoice(ctx context.Context, companyID, id string) (*domain.Invoice, error)
	// Move the invoice from status `from` to cancelled, void its items and
	// unlink its packages. A concurrent status change is a ConflictError.
	CancelInvoice(ctx context.Context, companyID, id string, from domain.InvoiceStatus, at time.Time) (*domain.Invoice, error)
	// Move the invoice from status `from` to `to`. A concurrent status change is a ConflictError.
	UpdateInvoiceStatus(ctx context.Context, companyID, id string, from, to domain.InvoiceStatus, at time.Time) (*domain.Invoice, error)
	// Return per-status, per-currency aggregates; cancelled invoices are excluded.
	InvoiceStats(ctx context.Context, companyID string) ([]domain.InvoiceStat, error)
}
