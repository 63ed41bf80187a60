package services

import (
	"package-billing-service/internal/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	settings := &domain.ExchangeRateSettings{
		BaseCurrency:   domain.CurrencyUSD,
		TargetCurrency: domain.CurrencyJMD,
		ExchangeRate:   d("157.5"),
	}

	same := Convert(d("10"), domain.CurrencyUSD, domain.CurrencyUSD, settings)
	require.False(t, same.Converted)
	require.False(t, same.Nominal)
	require.True(t, same.Amount.Equal(d("10")))

	toJMD := Convert(d("10"), domain.CurrencyUSD, domain.CurrencyJMD, settings)
	require.True(t, toJMD.Converted)
	require.Equal(t, domain.CurrencyJMD, toJMD.Currency)
	require.True(t, toJMD.Amount.Equal(d("1575")))

	toUSD := Convert(d("1000"), domain.CurrencyJMD, domain.CurrencyUSD, settings)
	require.True(t, toUSD.Amount.Equal(d("6.35")))
}

func TestConvertWithoutRateIsNominal(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.ExchangeRateSettings
		from, to domain.Currency
	}{
		{"no settings", nil, domain.CurrencyJMD, domain.CurrencyUSD},
		{"zero rate", &domain.ExchangeRateSettings{BaseCurrency: "USD", TargetCurrency: "JMD"}, "USD", "JMD"},
		{"unrelated pair", &domain.ExchangeRateSettings{BaseCurrency: "USD", TargetCurrency: "JMD", ExchangeRate: d("150")}, "EUR", "JMD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Convert(d("42.10"), tt.from, tt.to, tt.settings)
			require.True(t, c.Nominal)
			require.False(t, c.Converted)
			require.Equal(t, domain.CurrencyUSD, c.Currency)
			require.True(t, c.Amount.Equal(d("42.10")))
		})
	}
}

func TestRoundInvoiceTotal(t *testing.T) {
	tests := []struct {
		amount   string
		currency domain.Currency
		want     string
	}{
		{"3247.50", domain.CurrencyJMD, "3300"},
		{"3300", domain.CurrencyJMD, "3300"},
		{"0.01", domain.CurrencyJMD, "100"},
		{"32.47", domain.CurrencyUSD, "40"},
		{"0.50", domain.CurrencyUSD, "10"},
		{"0", domain.CurrencyUSD, "0"},
		{"12.345", "EUR", "12.35"},
	}

	for _, tt := range tests {
		got := RoundInvoiceTotal(d(tt.amount), tt.currency)
		require.True(t, got.Equal(d(tt.want)), "RoundInvoiceTotal(%s %s) = %s, want %s", tt.amount, tt.currency, got, tt.want)
	}
}
