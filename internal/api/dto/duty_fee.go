package dto

import (
	"package-billing-service/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

type DutyFeeRequest struct {
	PackageID     string          `json:"package_id"`
	FeeType       string          `json:"fee_type"`
	CustomFeeType string          `json:"custom_fee_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      domain.Currency `json:"currency"`
	Description   string          `json:"description"`
}

type DutyFeeResponse struct {
	ID            string          `json:"id"`
	PackageID     string          `json:"package_id"`
	FeeType       string          `json:"fee_type"`
	CustomFeeType string          `json:"custom_fee_type,omitempty"`
	DisplayName   string          `json:"display_name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      domain.Currency `json:"currency"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListDutyFeesResponse struct {
	DutyFees []DutyFeeResponse `json:"duty_fees"`
}

type DutyFeeTotalResponse struct {
	PackageID string          `json:"package_id"`
	Currency  domain.Currency `json:"currency"`
	Total     decimal.Decimal `json:"total"`
}

type DutyFeeGroupResponse struct {
	Currency domain.Currency   `json:"currency"`
	Total    decimal.Decimal   `json:"total"`
	Fees     []DutyFeeResponse `json:"fees"`
}

type GroupedDutyFeesResponse struct {
	PackageID string                 `json:"package_id"`
	Groups    []DutyFeeGroupResponse `json:"groups"`
}

func NewDutyFeeResponse(f *domain.DutyFee) DutyFeeResponse {
	return DutyFeeResponse{
		ID:            f.ID,
		PackageID:     f.PackageID,
		FeeType:       f.FeeType,
		CustomFeeType: f.CustomFeeType,
		DisplayName:   f.DisplayName(),
		Amount:        f.Amount,
		Currency:      f.Currency,
		Description:   f.Description,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func NewDutyFeeList(fees []*domain.DutyFee) []DutyFeeResponse {
	out := make([]DutyFeeResponse, 0, len(fees))
	for _, f := range fees {
		out = append(out, NewDutyFeeResponse(f))
	}
	return out
}
