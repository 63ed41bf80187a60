package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"package-billing-service/internal/domain"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeRateSeed struct {
	BaseCurrency   string          `json:"base_currency"`
	TargetCurrency string          `json:"target_currency"`
	Rate           decimal.Decimal `json:"rate"`
}

type SettingsSeed struct {
	CompanyID       string            `json:"company_id"`
	InvoicePrefix   string            `json:"invoice_prefix"`
	PaymentTermDays int               `json:"payment_term_days"`
	ExchangeRate    *ExchangeRateSeed `json:"exchange_rate"`
}

type PackageSeed struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	UserID         string          `json:"user_id"`
	TrackingNumber string          `json:"tracking_number"`
	Weight         decimal.Decimal `json:"weight"`
	DeclaredValue  decimal.Decimal `json:"declared_value"`
	ItemCount      int             `json:"item_count"`
	Tags           []string        `json:"tags"`
	Status         string          `json:"status"`
	ReceivedDate   *time.Time      `json:"received_date"`
}

type Seed struct {
	Settings []SettingsSeed `json:"settings"`
	Packages []PackageSeed  `json:"packages"`
}

// SeedTarget receives seeded rows. *Repositories and the in-memory store both satisfy it.
type SeedTarget interface {
	UpsertSettings(ctx context.Context, settings domain.CompanySettings) error
	UpsertPackage(ctx context.Context, p *domain.Package) error
}

// SeedFromJSON loads company settings and package snapshots from a JSON file.
// It is idempotent: rows are upserted by id.
func SeedFromJSON(ctx context.Context, target SeedTarget, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed: read %q: %w", jsonPath, err)
	}

	var data Seed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed: parse json: %w", err)
	}

	for i, item := range data.Settings {
		companyID := strings.TrimSpace(item.CompanyID)
		if companyID == "" {
			return fmt.Errorf("seed settings: item at index %d: company_id cannot be empty", i+1)
		}

		settings := domain.CompanySettings{
			CompanyID:       companyID,
			InvoicePrefix:   strings.TrimSpace(item.InvoicePrefix),
			PaymentTermDays: item.PaymentTermDays,
		}
		if er := item.ExchangeRate; er != nil {
			settings.ExchangeRate = &domain.ExchangeRateSettings{
				BaseCurrency:   domain.Currency(er.BaseCurrency),
				TargetCurrency: domain.Currency(er.TargetCurrency),
				ExchangeRate:   er.Rate,
				AsOf:           time.Now().UTC(),
			}
		}

		if err := target.UpsertSettings(ctx, settings); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	for i, item := range data.Packages {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return fmt.Errorf("seed packages: item at index %d: id cannot be empty", i+1)
		}
		if strings.TrimSpace(item.CompanyID) == "" || strings.TrimSpace(item.UserID) == "" {
			return fmt.Errorf("seed packages: item %s: company_id and user_id are required", id)
		}

		status := domain.PackageStatus(item.Status)
		if status == "" {
			status = domain.PackageStatusReceived
		}

		p := &domain.Package{
			ID:             id,
			CompanyID:      item.CompanyID,
			UserID:         item.UserID,
			TrackingNumber: item.TrackingNumber,
			Weight:         item.Weight,
			DeclaredValue:  item.DeclaredValue,
			ItemCount:      item.ItemCount,
			Tags:           item.Tags,
			Status:         status,
			ReceivedDate:   item.ReceivedDate,
		}
		if err := target.UpsertPackage(ctx, p); err != nil {
			return fmt.Errorf("seed packages: %w", err)
		}
	}

	return nil
}
