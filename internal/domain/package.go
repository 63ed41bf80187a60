package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PackageStatus is the intake lifecycle state of a package.
type PackageStatus string

const (
	PackageStatusPreAlert       PackageStatus = "pre_alert"
	PackageStatusReceived       PackageStatus = "received"
	PackageStatusProcessed      PackageStatus = "processed"
	PackageStatusInTransit      PackageStatus = "in_transit"
	PackageStatusReadyForPickup PackageStatus = "ready_for_pickup"
	PackageStatusDelivered      PackageStatus = "delivered"
	PackageStatusReturned       PackageStatus = "returned"
)

// Represents a customer package as seen by billing.
// A package is billable while InvoiceID is nil; the invoice store sets and
// clears the link inside its own transaction.
type Package struct {
	ID             string
	CompanyID      string
	UserID         string
	TrackingNumber string
	Weight         decimal.Decimal
	DeclaredValue  decimal.Decimal
	ItemCount      int
	Tags           []string
	Status         PackageStatus
	ReceivedDate   *time.Time
	InvoiceID      *string
}

// Items returns the item count, defaulting to 1.
func (p *Package) Items() int {
	if p.ItemCount <= 0 {
		return 1
	}
	return p.ItemCount
}

// Billed reports whether the package is linked to an active invoice.
func (p *Package) Billed() bool { return p.InvoiceID != nil && *p.InvoiceID != "" }

// EnsureDutyFeesMutable is the single guard for duty-fee create, update and delete.
// Duty charges freeze once a package is staged for hand-off.
func EnsureDutyFeesMutable(status PackageStatus) error {
	switch status {
	case PackageStatusReadyForPickup, PackageStatusDelivered:
		return NewConflictError("duty fees are frozen for packages that are %s", status)
	}
	return nil
}

// Clone returns a deep copy.
func (p *Package) Clone() *Package {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	if p.ReceivedDate != nil {
		d := *p.ReceivedDate
		c.ReceivedDate = &d
	}
	if p.InvoiceID != nil {
		id := *p.InvoiceID
		c.InvoiceID = &id
	}
	return &c
}
