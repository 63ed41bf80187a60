package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyJMD Currency = "JMD"
)

// Valid reports whether c looks like a 3-letter uppercase code.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ExchangeRateSettings is a company-scoped USD<->JMD style pair.
// One unit of BaseCurrency equals ExchangeRate units of TargetCurrency.
type ExchangeRateSettings struct {
	BaseCurrency   Currency
	TargetCurrency Currency
	ExchangeRate   decimal.Decimal
	AsOf           time.Time
}

// CompanySettings are the billing-relevant company settings, read-only to the engine.
type CompanySettings struct {
	CompanyID       string
	ExchangeRate    *ExchangeRateSettings
	InvoicePrefix   string
	PaymentTermDays int
}

const (
	DefaultInvoicePrefix   = "INV"
	DefaultPaymentTermDays = 30
)

// HomeCurrency is the currency invoices are stored in.
func (s CompanySettings) HomeCurrency() Currency {
	if s.ExchangeRate != nil && s.ExchangeRate.BaseCurrency != "" {
		return s.ExchangeRate.BaseCurrency
	}
	return CurrencyUSD
}

// WithDefaults fills unset prefix and payment terms.
func (s CompanySettings) WithDefaults() CompanySettings {
	if s.InvoicePrefix == "" {
		s.InvoicePrefix = DefaultInvoicePrefix
	}
	if s.PaymentTermDays <= 0 {
		s.PaymentTermDays = DefaultPaymentTermDays
	}
	return s
}

// Money rounds an amount to cents.
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
