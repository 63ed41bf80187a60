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
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// FeeRuleInput carries the editable fields of a fee rule.
type FeeRuleInput struct {
	Name          string
	Code          string
	FeeType       domain.FeeType
	Method        domain.CalculationMethod
	Amount        decimal.Decimal
	Currency      domain.Currency
	AppliesTo     []string
	TagConditions domain.TagConditions
	Metadata      domain.FeeMetadata
	Limits        domain.FeeLimits
	Description   string
	// Sequence 0 on create appends the rule after the existing ones.
	Sequence int
	// IsActive defaults to true on create.
	IsActive *bool
}

// FeeRuleService is the fee rule store. Rules are validated in full before
// they are saved; edits apply to future evaluations only.
type FeeRuleService struct {
	Rules ports.FeeRuleRepository
	Audit ports.AuditLog
	Now   func() time.Time
}

// List returns the company's rules in evaluation order.
func (s *FeeRuleService) List(ctx context.Context, companyID string) (_ []*domain.FeeRule, err error) {
	defer obs.Time(ctx, "feeRules.List")(&err)

	rules, err := s.Rules.ListFeeRules(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}
	domain.SortRules(rules)
	return rules, nil
}

func (s *FeeRuleService) Create(ctx context.Context, c Caller, in FeeRuleInput) (_ *domain.FeeRule, err error) {
	defer obs.Time(ctx, "feeRules.Create")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	now := nowFunc(s.Now)()
	rule := &domain.FeeRule{
		ID:        uuid.NewString(),
		CompanyID: c.CompanyID,
		Code:      strings.TrimSpace(in.Code),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyFeeRuleInput(rule, in)
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.Rules.CreateFeeRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("create fee rule: %w", err)
	}

	recordAudit(ctx, s.Audit, c, domain.AuditFeeRuleCreate, "fee_rule", rule.ID, feeRuleDetails(rule), now)
	return rule, nil
}

// Update replaces the editable fields. The code is immutable: an input code
// that differs from the stored one is rejected.
func (s *FeeRuleService) Update(ctx context.Context, c Caller, id string, in FeeRuleInput) (_ *domain.FeeRule, err error) {
	defer obs.Time(ctx, "feeRules.Update")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	existing, err := s.Rules.GetFeeRule(ctx, c.CompanyID, id)
	if err != nil {
		return nil, fmt.Errorf("update fee rule: %w", err)
	}
	if code := strings.TrimSpace(in.Code); code != "" && code != existing.Code {
		return nil, domain.NewValidationError("code", "cannot be changed after creation")
	}

	updated := *existing
	applyFeeRuleInput(&updated, in)
	if in.Sequence == 0 {
		updated.Sequence = existing.Sequence
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	now := nowFunc(s.Now)()
	updated.UpdatedAt = now
	if err := s.Rules.UpdateFeeRule(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update fee rule: %w", err)
	}

	recordAudit(ctx, s.Audit, c, domain.AuditFeeRuleUpdate, "fee_rule", updated.ID, feeRuleDetails(&updated), now)
	return &updated, nil
}

func (s *FeeRuleService) Delete(ctx context.Context, c Caller, id string) (err error) {
	defer obs.Time(ctx, "feeRules.Delete")(&err)

	if err := c.validate(); err != nil {
		return err
	}

	rule, err := s.Rules.GetFeeRule(ctx, c.CompanyID, id)
	if err != nil {
		return fmt.Errorf("delete fee rule: %w", err)
	}
	if err := s.Rules.DeleteFeeRule(ctx, c.CompanyID, id); err != nil {
		return fmt.Errorf("delete fee rule: %w", err)
	}

	recordAudit(ctx, s.Audit, c, domain.AuditFeeRuleDelete, "fee_rule", rule.ID, feeRuleDetails(rule), nowFunc(s.Now)())
	return nil
}

func applyFeeRuleInput(r *domain.FeeRule, in FeeRuleInput) {
	r.Name = strings.TrimSpace(in.Name)
	r.FeeType = in.FeeType
	r.Method = in.Method
	r.Amount = in.Amount
	r.Currency = in.Currency
	r.AppliesTo = lo.Uniq(lo.Map(in.AppliesTo, func(tag string, _ int) string { return strings.TrimSpace(tag) }))
	r.TagConditions = in.TagConditions
	r.Metadata = in.Metadata
	r.Limits = in.Limits
	r.Description = strings.TrimSpace(in.Description)
	r.Sequence = in.Sequence
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
}

func feeRuleDetails(r *domain.FeeRule) map[string]any {
	return map[string]any{
		"code":              r.Code,
		"feeType":           string(r.FeeType),
		"calculationMethod": string(r.Method),
		"amount":            r.Amount.String(),
		"currency":          string(r.Currency),
		"isActive":          r.IsActive,
	}
}
