package ports

import (
	"context"
	"package-billing-service/internal/domain"
)

// Port: persistence for manually entered duty fees.
type DutyFeeRepository interface {
	ListDutyFees(ctx context.Context, companyID, packageID string) ([]*domain.DutyFee, error)
	GetDutyFee(ctx context.Context, companyID, id string) (*domain.DutyFee, error)
	CreateDutyFee(ctx context.Context, fee *domain.DutyFee) error
	UpdateDutyFee(ctx context.Context, fee *domain.DutyFee) error
	DeleteDutyFee(ctx context.Context, companyID, id string) error
}
