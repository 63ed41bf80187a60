package ports

import (
	"context"
	"package-billing-service/internal/domain"
)

// Port: read access to package snapshots owned by the intake system.
// Billing links are written only by InvoiceRepository inside its transaction.
type PackageDirectory interface {
	// Return one package scoped to the company, or a NotFoundError.
	GetPackage(ctx context.Context, companyID, packageID string) (*domain.Package, error)
	// Return the user's packages that are not linked to an active invoice.
	ListUnbilled(ctx context.Context, companyID, userID string) ([]*domain.Package, error)
}
