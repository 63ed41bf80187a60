package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DutyFeeTypeOther requires a CustomFeeType.
const DutyFeeTypeOther = "Other"

// DutyFee is a manually entered customs/duty charge on one package.
type DutyFee struct {
	ID            string
	CompanyID     string
	PackageID     string
	FeeType       string
	CustomFeeType string
	Amount        decimal.Decimal
	Currency      Currency
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate is shared by create and update.
func (f *DutyFee) Validate() error {
	v := &ValidationError{}

	feeType := strings.TrimSpace(f.FeeType)
	if feeType == "" {
		v.Add("feeType", "is required")
	} else if len(feeType) > 100 {
		v.Add("feeType", "must be at most 100 characters")
	}
	if feeType == DutyFeeTypeOther && strings.TrimSpace(f.CustomFeeType) == "" {
		v.Add("customFeeType", "is required when feeType is %q", DutyFeeTypeOther)
	}
	if !f.Amount.IsPositive() {
		v.Add("amount", "must be greater than 0")
	}
	if f.Currency != CurrencyUSD && f.Currency != CurrencyJMD {
		v.Add("currency", "must be USD or JMD")
	}

	return v.Err()
}

// DisplayName is the category label used on invoices, e.g. "Electronics Duty".
func (f *DutyFee) DisplayName() string {
	if f.FeeType == DutyFeeTypeOther && strings.TrimSpace(f.CustomFeeType) != "" {
		return strings.TrimSpace(f.CustomFeeType) + " Duty"
	}
	return f.FeeType + " Duty"
}

// LineDescription is the invoice line description for the fee.
func (f *DutyFee) LineDescription() string {
	if d := strings.TrimSpace(f.Description); d != "" {
		return f.DisplayName() + " - " + d
	}
	return f.DisplayName()
}

// DutyFeeGroup is the per-currency view of a package's duty fees.
type DutyFeeGroup struct {
	Currency Currency
	Total    decimal.Decimal
	Fees     []*DutyFee
}

// GroupDutyFeesByCurrency groups fees by currency, ordered by currency code.
func GroupDutyFeesByCurrency(fees []*DutyFee) []DutyFeeGroup {
	byCurrency := lo.GroupBy(fees, func(f *DutyFee) Currency { return f.Currency })

	currencies := lo.Keys(byCurrency)
	slices.Sort(currencies)

	groups := make([]DutyFeeGroup, 0, len(currencies))
	for _, c := range currencies {
		groups = append(groups, DutyFeeGroup{
			Currency: c,
			Total:    TotalDutyFees(byCurrency[c], c),
			Fees:     byCurrency[c],
		})
	}
	return groups
}

// TotalDutyFees sums the fees in currency.
func TotalDutyFees(fees []*DutyFee, currency Currency) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fees {
		if f.Currency == currency {
			total = total.Add(f.Amount)
		}
	}
	return Money(total)
}
