package services

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/ports"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DutyFeeInput carries the editable fields of a duty fee.
type DutyFeeInput struct {
	PackageID     string
	FeeType       string
	CustomFeeType string
	Amount        decimal.Decimal
	Currency      domain.Currency
	Description   string
}

// DutyFeeLedger manages per-package duty fees. Every mutation goes through
// domain.EnsureDutyFeesMutable and is recorded in the audit log.
type DutyFeeLedger struct {
	Packages ports.PackageDirectory
	Fees     ports.DutyFeeRepository
	Audit    ports.AuditLog
	Now      func() time.Time
}

func (l *DutyFeeLedger) List(ctx context.Context, companyID, packageID string) (_ []*domain.DutyFee, err error) {
	defer obs.Time(ctx, "dutyFees.List")(&err)

	if _, err := l.Packages.GetPackage(ctx, companyID, packageID); err != nil {
		return nil, fmt.Errorf("list duty fees: %w", err)
	}

	fees, err := l.Fees.ListDutyFees(ctx, companyID, packageID)
	if err != nil {
		return nil, fmt.Errorf("list duty fees: %w", err)
	}
	return fees, nil
}

func (l *DutyFeeLedger) Get(ctx context.Context, companyID, id string) (*domain.DutyFee, error) {
	fee, err := l.Fees.GetDutyFee(ctx, companyID, id)
	if err != nil {
		return nil, fmt.Errorf("get duty fee: %w", err)
	}
	return fee, nil
}

func (l *DutyFeeLedger) Create(ctx context.Context, c Caller, in DutyFeeInput) (_ *domain.DutyFee, err error) {
	defer obs.Time(ctx, "dutyFees.Create")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	pkg, err := l.Packages.GetPackage(ctx, c.CompanyID, in.PackageID)
	if err != nil {
		return nil, fmt.Errorf("create duty fee: %w", err)
	}
	if err := domain.EnsureDutyFeesMutable(pkg.Status); err != nil {
		return nil, err
	}

	now := nowFunc(l.Now)()
	fee := &domain.DutyFee{
		ID:        uuid.NewString(),
		CompanyID: c.CompanyID,
		PackageID: pkg.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyDutyFeeInput(fee, in)
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	if err := l.Fees.CreateDutyFee(ctx, fee); err != nil {
		return nil, fmt.Errorf("create duty fee: %w", err)
	}

	recordAudit(ctx, l.Audit, c, domain.AuditDutyFeeCreate, "duty_fee", fee.ID, dutyFeeDetails(fee), now)
	return fee, nil
}

// Update replaces the editable fields. A fee never moves between packages:
// an input PackageID naming another package is reported as not found.
func (l *DutyFeeLedger) Update(ctx context.Context, c Caller, id string, in DutyFeeInput) (_ *domain.DutyFee, err error) {
	defer obs.Time(ctx, "dutyFees.Update")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	fee, pkg, err := l.loadMutable(ctx, c.CompanyID, id, in.PackageID)
	if err != nil {
		return nil, fmt.Errorf("update duty fee: %w", err)
	}

	before := dutyFeeDetails(fee)
	updated := *fee
	updated.PackageID = pkg.ID
	applyDutyFeeInput(&updated, in)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	now := nowFunc(l.Now)()
	updated.UpdatedAt = now
	if err := l.Fees.UpdateDutyFee(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update duty fee: %w", err)
	}

	recordAudit(ctx, l.Audit, c, domain.AuditDutyFeeUpdate, "duty_fee", updated.ID,
		map[string]any{"before": before, "after": dutyFeeDetails(&updated)}, now)
	return &updated, nil
}

func (l *DutyFeeLedger) Delete(ctx context.Context, c Caller, id, packageID string) (err error) {
	defer obs.Time(ctx, "dutyFees.Delete")(&err)

	if err := c.validate(); err != nil {
		return err
	}

	fee, _, err := l.loadMutable(ctx, c.CompanyID, id, packageID)
	if err != nil {
		return fmt.Errorf("delete duty fee: %w", err)
	}

	if err := l.Fees.DeleteDutyFee(ctx, c.CompanyID, fee.ID); err != nil {
		return fmt.Errorf("delete duty fee: %w", err)
	}

	recordAudit(ctx, l.Audit, c, domain.AuditDutyFeeDelete, "duty_fee", fee.ID, dutyFeeDetails(fee), nowFunc(l.Now)())
	return nil
}

// TotalByCurrency sums the package's duty fees in one currency.
func (l *DutyFeeLedger) TotalByCurrency(ctx context.Context, companyID, packageID string, currency domain.Currency) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, domain.NewValidationError("currency", "must be a 3-letter currency code")
	}

	fees, err := l.List(ctx, companyID, packageID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.TotalDutyFees(fees, currency), nil
}

// GroupedByCurrency returns one {total, fees} group per currency.
func (l *DutyFeeLedger) GroupedByCurrency(ctx context.Context, companyID, packageID string) ([]domain.DutyFeeGroup, error) {
	fees, err := l.List(ctx, companyID, packageID)
	if err != nil {
		return nil, err
	}
	return domain.GroupDutyFeesByCurrency(fees), nil
}

// loadMutable resolves a fee and its package and runs the state guard.
func (l *DutyFeeLedger) loadMutable(ctx context.Context, companyID, id, packageID string) (*domain.DutyFee, *domain.Package, error) {
	fee, err := l.Fees.GetDutyFee(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	if packageID != "" && packageID != fee.PackageID {
		return nil, nil, domain.NewNotFoundError("duty fee", id)
	}

	pkg, err := l.Packages.GetPackage(ctx, companyID, fee.PackageID)
	if err != nil {
		return nil, nil, err
	}
	if err := domain.EnsureDutyFeesMutable(pkg.Status); err != nil {
		return nil, nil, err
	}
	return fee, pkg, nil
}

func applyDutyFeeInput(fee *domain.DutyFee, in DutyFeeInput) {
	fee.FeeType = strings.TrimSpace(in.FeeType)
	fee.CustomFeeType = strings.TrimSpace(in.CustomFeeType)
	fee.Amount = in.Amount
	fee.Currency = in.Currency
	fee.Description = strings.TrimSpace(in.Description)
	if fee.FeeType != domain.DutyFeeTypeOther {
		fee.CustomFeeType = ""
	}
}

func dutyFeeDetails(f *domain.DutyFee) map[string]any {
	return map[string]any{
		"packageId":     f.PackageID,
		"feeType":       f.FeeType,
		"customFeeType": f.CustomFeeType,
		"amount":        f.Amount.StringFixed(2),
		"currency":      string(f.Currency),
	}
}
