package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"package-billing-service/internal/domain"

	"github.com/shopspring/decimal"
)

// SQL-backed implementation of the SettingsRepository port.
type SettingsRepository struct{ conn }

func (s *SettingsRepository) CompanySettings(ctx context.Context, companyID string) (domain.CompanySettings, error) {
	if err := s.check("company settings"); err != nil {
		return domain.CompanySettings{}, err
	}

	q := `
	SELECT
		invoice_prefix,
		payment_term_days,
		base_currency,
		target_currency,
		exchange_rate,
		rate_as_of
	FROM company_settings
	WHERE company_id = ?;
	`
	var (
		settings     = domain.CompanySettings{CompanyID: companyID}
		base, target sql.NullString
		rate         decimal.NullDecimal
		asOf         sql.NullTime
	)
	err := s.queryRow(ctx, q, companyID).Scan(
		&settings.InvoicePrefix, &settings.PaymentTermDays, &base, &target, &rate, &asOf,
	)
	if isNoRows(err) {
		return settings.WithDefaults(), nil
	}
	if err != nil {
		return domain.CompanySettings{}, fmt.Errorf("company settings: scan row: %w", err)
	}

	if base.Valid && target.Valid && rate.Valid {
		settings.ExchangeRate = &domain.ExchangeRateSettings{
			BaseCurrency:   domain.Currency(base.String),
			TargetCurrency: domain.Currency(target.String),
			ExchangeRate:   rate.Decimal,
		}
		if asOf.Valid {
			settings.ExchangeRate.AsOf = asOf.Time.UTC()
		}
	}
	return settings.WithDefaults(), nil
}

// UpsertSettings writes company settings; used by seeding and admin tooling.
func (s *SettingsRepository) UpsertSettings(ctx context.Context, settings domain.CompanySettings) error {
	if err := s.check("upsert company settings"); err != nil {
		return err
	}

	settings = settings.WithDefaults()
	var (
		base, target sql.NullString
		rate         decimal.NullDecimal
		asOf         sql.NullTime
	)
	if er := settings.ExchangeRate; er != nil {
		base = sql.NullString{String: string(er.BaseCurrency), Valid: true}
		target = sql.NullString{String: string(er.TargetCurrency), Valid: true}
		rate = decimal.NewNullDecimal(er.ExchangeRate)
		if !er.AsOf.IsZero() {
			asOf = sql.NullTime{Time: er.AsOf.UTC(), Valid: true}
		}
	}

	q := `
	INSERT INTO company_settings (
		company_id, invoice_prefix, payment_term_days,
		base_currency, target_currency, exchange_rate, rate_as_of
	)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (company_id) DO UPDATE SET
		invoice_prefix = excluded.invoice_prefix,
		payment_term_days = excluded.payment_term_days,
		base_currency = excluded.base_currency,
		target_currency = excluded.target_currency,
		exchange_rate = excluded.exchange_rate,
		rate_as_of = excluded.rate_as_of;
	`
	_, err := s.exec(ctx, q,
		settings.CompanyID, settings.InvoicePrefix, settings.PaymentTermDays,
		base, target, rate, asOf,
	)
	if err != nil {
		return fmt.Errorf("upsert company settings %s: %w", settings.CompanyID, err)
	}
	return nil
}
