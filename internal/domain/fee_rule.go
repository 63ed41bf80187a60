package domain

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeTypeTax       FeeType = "tax"
	FeeTypeService   FeeType = "service"
	FeeTypeShipping  FeeType = "shipping"
	FeeTypeHandling  FeeType = "handling"
	FeeTypeCustoms   FeeType = "customs"
	FeeTypeThreshold FeeType = "threshold"
	FeeTypeOther     FeeType = "other"
)

var feeTypes = []FeeType{
	FeeTypeTax, FeeTypeService, FeeTypeShipping, FeeTypeHandling,
	FeeTypeCustoms, FeeTypeThreshold, FeeTypeOther,
}

func (t FeeType) Valid() bool { return slices.Contains(feeTypes, t) }

type CalculationMethod string

const (
	MethodFixed      CalculationMethod = "fixed"
	MethodPercentage CalculationMethod = "percentage"
	MethodPerWeight  CalculationMethod = "per_weight"
	MethodPerItem    CalculationMethod = "per_item"
	MethodTiered     CalculationMethod = "tiered"
	MethodThreshold  CalculationMethod = "threshold"
	MethodTimed      CalculationMethod = "timed"
)

var methods = []CalculationMethod{
	MethodFixed, MethodPercentage, MethodPerWeight, MethodPerItem,
	MethodTiered, MethodThreshold, MethodTimed,
}

func (m CalculationMethod) Valid() bool { return slices.Contains(methods, m) }

// TagConditions narrow a rule beyond AppliesTo.
type TagConditions struct {
	Required []string `json:"required,omitempty"`
	Excluded []string `json:"excluded,omitempty"`
}

// FeeLimits clamp a non-zero evaluated amount.
type FeeLimits struct {
	Minimum *decimal.Decimal `json:"minimum,omitempty"`
	Maximum *decimal.Decimal `json:"maximum,omitempty"`
}

// Apply clamps amount into [Minimum, Maximum].
func (l FeeLimits) Apply(amount decimal.Decimal) decimal.Decimal {
	if l.Minimum != nil && amount.LessThan(*l.Minimum) {
		amount = *l.Minimum
	}
	if l.Maximum != nil && amount.GreaterThan(*l.Maximum) {
		amount = *l.Maximum
	}
	return amount
}

// FeeRule is a company-defined declarative charge.
type FeeRule struct {
	ID            string
	CompanyID     string
	Name          string
	Code          string
	FeeType       FeeType
	Method        CalculationMethod
	Amount        decimal.Decimal
	Currency      Currency
	AppliesTo     []string
	TagConditions TagConditions
	Metadata      FeeMetadata
	Limits        FeeLimits
	Description   string
	Sequence      int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var codePattern = regexp.MustCompile(`^[A-Z0-9_]{2,50}$`)

// Validate checks the rule exhaustively so that no invalid method/parameter
// combination can reach evaluation.
func (r *FeeRule) Validate() error {
	v := &ValidationError{}

	name := strings.TrimSpace(r.Name)
	if len(name) < 2 || len(name) > 255 {
		v.Add("name", "must be between 2 and 255 characters")
	}
	if !codePattern.MatchString(r.Code) {
		v.Add("code", "must be 2-50 uppercase letters, digits or underscores")
	}
	if !r.FeeType.Valid() {
		v.Add("feeType", "unknown fee type %q", r.FeeType)
	}
	if !r.Method.Valid() {
		v.Add("calculationMethod", "unknown calculation method %q", r.Method)
	}
	if r.Amount.IsNegative() {
		v.Add("amount", "must not be negative")
	}
	if !r.Currency.Valid() {
		v.Add("currency", "must be a 3-letter currency code")
	}
	if r.Sequence < 0 {
		v.Add("sequence", "must not be negative")
	}
	for i, tag := range r.AppliesTo {
		if strings.TrimSpace(tag) == "" {
			v.Add("appliesTo", "tag #%d is empty", i+1)
		}
	}
	if l := r.Limits; l.Minimum != nil && l.Maximum != nil && l.Minimum.GreaterThan(*l.Maximum) {
		v.Add("limits", "minimum must not exceed maximum")
	}
	if r.Method.Valid() {
		r.Metadata.validate(r.Method, v)
	}

	return v.Err()
}

// Clone returns a copy that shares no slices with r.
func (r *FeeRule) Clone() *FeeRule {
	c := *r
	c.AppliesTo = slices.Clone(r.AppliesTo)
	c.TagConditions.Required = slices.Clone(r.TagConditions.Required)
	c.TagConditions.Excluded = slices.Clone(r.TagConditions.Excluded)
	return &c
}

// AppliesToTags runs the AppliesTo filter and the tag conditions.
func (r *FeeRule) AppliesToTags(tags []string) bool {
	if len(r.AppliesTo) > 0 && !lo.Some(tags, r.AppliesTo) {
		return false
	}
	if len(r.TagConditions.Required) > 0 && !lo.Every(tags, r.TagConditions.Required) {
		return false
	}
	if len(r.TagConditions.Excluded) > 0 && lo.Some(tags, r.TagConditions.Excluded) {
		return false
	}
	return true
}

// SortRules orders rules for evaluation: sequence, then creation time, then id.
func SortRules(rules []*FeeRule) {
	slices.SortStableFunc(rules, func(a, b *FeeRule) int {
		if a.Sequence != b.Sequence {
			return a.Sequence - b.Sequence
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
