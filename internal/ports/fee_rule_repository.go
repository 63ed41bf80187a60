package ports

import (
	"context"
	"package-billing-service/internal/domain"
)

// Port: persistence for company fee rules.
type FeeRuleRepository interface {
	// Return the company's rules in evaluation order.
	ListFeeRules(ctx context.Context, companyID string) ([]*domain.FeeRule, error)
	GetFeeRule(ctx context.Context, companyID, id string) (*domain.FeeRule, error)
	// Insert a rule; a duplicate code within the company is a ConflictError.
	// A zero Sequence is replaced by the next company sequence, allocated
	// atomically with the insert.
	CreateFeeRule(ctx context.Context, rule *domain.FeeRule) error
	UpdateFeeRule(ctx context.Context, rule *domain.FeeRule) error
	DeleteFeeRule(ctx context.Context, companyID, id string) error
}
