package dto

import (
	"package-billing-service/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

type FeeRuleRequest struct {
	Name              string                   `json:"name"`
	Code              string                   `json:"code"`
	FeeType           domain.FeeType           `json:"fee_type"`
	CalculationMethod domain.CalculationMethod `json:"calculation_method"`
	Amount            decimal.Decimal          `json:"amount"`
	Currency          domain.Currency          `json:"currency"`
	AppliesTo         []string                 `json:"applies_to"`
	TagConditions     domain.TagConditions     `json:"tag_conditions"`
	Metadata          domain.FeeMetadata       `json:"metadata"`
	Limits            domain.FeeLimits         `json:"limits"`
	Description       string                   `json:"description"`
	Sequence          int                      `json:"sequence"`
	IsActive          *bool                    `json:"is_active"`
}

type FeeRuleResponse struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Code              string                   `json:"code"`
	FeeType           domain.FeeType           `json:"fee_type"`
	CalculationMethod domain.CalculationMethod `json:"calculation_method"`
	Amount            decimal.Decimal          `json:"amount"`
	Currency          domain.Currency          `json:"currency"`
	AppliesTo         []string                 `json:"applies_to"`
	TagConditions     domain.TagConditions     `json:"tag_conditions"`
	Metadata          domain.FeeMetadata       `json:"metadata"`
	Limits            domain.FeeLimits         `json:"limits"`
	Description       string                   `json:"description"`
	Sequence          int                      `json:"sequence"`
	IsActive          bool                     `json:"is_active"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

type ListFeeRulesResponse struct {
	FeeRules []FeeRuleResponse `json:"fee_rules"`
}

func NewFeeRuleResponse(r *domain.FeeRule) FeeRuleResponse {
	appliesTo := r.AppliesTo
	if appliesTo == nil {
		appliesTo = []string{}
	}
	return FeeRuleResponse{
		ID:                r.ID,
		Name:              r.Name,
		Code:              r.Code,
		FeeType:           r.FeeType,
		CalculationMethod: r.Method,
		Amount:            r.Amount,
		Currency:          r.Currency,
		AppliesTo:         appliesTo,
		TagConditions:     r.TagConditions,
		Metadata:          r.Metadata,
		Limits:            r.Limits,
		Description:       r.Description,
		Sequence:          r.Sequence,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
