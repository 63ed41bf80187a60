package services

import (
	"package-billing-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Conversion is a display-only converted amount.
type Conversion struct {
	Amount   decimal.Decimal
	Currency domain.Currency
	// Converted is true when a rate was applied.
	Converted bool
	// Nominal marks an amount that could not be converted and is shown as USD-nominal.
	Nominal bool
}

// Convert converts amount between the configured base/target pair.
// It never fails: without a usable rate the amount comes back unchanged and Nominal.
func Convert(amount decimal.Decimal, from, to domain.Currency, settings *domain.ExchangeRateSettings) Conversion {
	if from == to {
		return Conversion{Amount: amount, Currency: to}
	}

	nominal := Conversion{Amount: amount, Currency: domain.CurrencyUSD, Nominal: true}
	if settings == nil || !settings.ExchangeRate.IsPositive() {
		return nominal
	}

	switch {
	case from == settings.BaseCurrency && to == settings.TargetCurrency:
		return Conversion{
			Amount:    domain.Money(amount.Mul(settings.ExchangeRate)),
			Currency:  to,
			Converted: true,
		}
	case from == settings.TargetCurrency && to == settings.BaseCurrency:
		return Conversion{
			Amount:    domain.Money(amount.Div(settings.ExchangeRate)),
			Currency:  to,
			Converted: true,
		}
	}

	return nominal
}

var cashIncrements = map[domain.Currency]decimal.Decimal{
	domain.CurrencyJMD: decimal.NewFromInt(100),
	domain.CurrencyUSD: decimal.NewFromInt(10),
}

// RoundInvoiceTotal rounds a displayed total up to the cash increment of its
// currency (JMD 100, USD 10). Other currencies are rounded to cents.
func RoundInvoiceTotal(amount decimal.Decimal, currency domain.Currency) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	step, ok := cashIncrements[currency]
	if !ok {
		return domain.Money(amount)
	}
	rounded := amount.Div(step).Ceil().Mul(step)
	if rounded.IsZero() {
		return step
	}
	return rounded
}
