package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// BaseAttribute is the running total a percentage rule is applied to.
type BaseAttribute string

const (
	BaseSubtotal BaseAttribute = "subtotal"
	BaseCustoms  BaseAttribute = "customs"
	BaseHandling BaseAttribute = "handling"
	BaseOther    BaseAttribute = "other"
)

func (b BaseAttribute) Valid() bool {
	return slices.Contains([]BaseAttribute{BaseSubtotal, BaseCustoms, BaseHandling, BaseOther}, b)
}

// Attribute is a package-derived value used by tiered and threshold rules.
type Attribute string

const (
	AttrWeight        Attribute = "weight"
	AttrDeclaredValue Attribute = "declaredValue"
	AttrItemCount     Attribute = "itemCount"
	AttrCustomsDuty   Attribute = "customsDuty"
	AttrDaysInStorage Attribute = "daysInStorage"
	// attrLegacyDate is accepted from stored rules as an alias of daysInStorage.
	attrLegacyDate Attribute = "date"
)

// Canonical maps legacy aliases onto their current names.
func (a Attribute) Canonical() Attribute {
	if a == attrLegacyDate {
		return AttrDaysInStorage
	}
	return a
}

func (a Attribute) Valid() bool {
	return slices.Contains(
		[]Attribute{AttrWeight, AttrDeclaredValue, AttrItemCount, AttrCustomsDuty, AttrDaysInStorage},
		a.Canonical(),
	)
}

type ThresholdApplication string

const (
	ApplyBefore ThresholdApplication = "before"
	ApplyDuring ThresholdApplication = "during"
	ApplyAfter  ThresholdApplication = "after"
)

type PercentageParams struct {
	BaseAttribute BaseAttribute `json:"baseAttribute"`
}

// Tier is a half-open range [Min, Max); a nil Max is unbounded.
type Tier struct {
	Min  decimal.Decimal  `json:"min"`
	Max  *decimal.Decimal `json:"max"`
	Rate decimal.Decimal  `json:"rate"`
}

// Contains reports whether value falls in the tier.
func (t Tier) Contains(value decimal.Decimal) bool {
	if value.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || value.LessThan(*t.Max)
}

type TieredParams struct {
	TierAttribute Attribute `json:"tierAttribute"`
	Tiers         []Tier    `json:"tiers"`
}

type ThresholdParams struct {
	Attribute   Attribute            `json:"attribute"`
	Min         decimal.Decimal      `json:"min"`
	Max         *decimal.Decimal     `json:"max"`
	Application ThresholdApplication `json:"application"`
}

// Applies evaluates the before/during/after gate for value.
func (p ThresholdParams) Applies(value decimal.Decimal) bool {
	switch p.Application {
	case ApplyBefore:
		return value.LessThan(p.Min)
	case ApplyDuring:
		if value.LessThan(p.Min) {
			return false
		}
		return p.Max == nil || value.LessThan(*p.Max)
	case ApplyAfter:
		bound := p.Min
		if p.Max != nil {
			bound = *p.Max
		}
		return value.GreaterThanOrEqual(bound)
	}
	return false
}

type TimedParams struct {
	Days        int                  `json:"days"`
	Application ThresholdApplication `json:"application"`
}

// Applies evaluates the before/after gate for elapsed days.
func (p TimedParams) Applies(elapsedDays int) bool {
	switch p.Application {
	case ApplyBefore:
		return elapsedDays < p.Days
	case ApplyAfter:
		return elapsedDays >= p.Days
	}
	return false
}

// FeeMetadata is a tagged union keyed by the rule's calculation method:
// exactly the variant for that method is set, all others are nil.
type FeeMetadata struct {
	Percentage *PercentageParams `json:"percentage,omitempty"`
	Tiered     *TieredParams     `json:"tiered,omitempty"`
	Threshold  *ThresholdParams  `json:"threshold,omitempty"`
	Timed      *TimedParams      `json:"timed,omitempty"`
}

func (m FeeMetadata) validate(method CalculationMethod, v *ValidationError) {
	variants := []struct {
		method  CalculationMethod
		present bool
	}{
		{MethodPercentage, m.Percentage != nil},
		{MethodTiered, m.Tiered != nil},
		{MethodThreshold, m.Threshold != nil},
		{MethodTimed, m.Timed != nil},
	}
	for _, variant := range variants {
		if variant.present && variant.method != method {
			v.Add("metadata."+string(variant.method), "not allowed for calculation method %q", method)
		}
	}

	switch method {
	case MethodPercentage:
		if m.Percentage == nil {
			v.Add("metadata.percentage", "is required")
			return
		}
		if !m.Percentage.BaseAttribute.Valid() {
			v.Add("metadata.percentage.baseAttribute", "unknown base attribute %q", m.Percentage.BaseAttribute)
		}
	case MethodTiered:
		if m.Tiered == nil {
			v.Add("metadata.tiered", "is required")
			return
		}
		validateTiers(m.Tiered, v)
	case MethodThreshold:
		if m.Threshold == nil {
			v.Add("metadata.threshold", "is required")
			return
		}
		validateThreshold(m.Threshold, v)
	case MethodTimed:
		if m.Timed == nil {
			v.Add("metadata.timed", "is required")
			return
		}
		if m.Timed.Days < 0 {
			v.Add("metadata.timed.days", "must not be negative")
		}
		if m.Timed.Application != ApplyBefore && m.Timed.Application != ApplyAfter {
			v.Add("metadata.timed.application", "must be before or after")
		}
	}
}

// validateTiers requires contiguous ranges starting at 0 and ending unbounded,
// so every non-negative value matches exactly one tier.
func validateTiers(p *TieredParams, v *ValidationError) {
	if !p.TierAttribute.Valid() {
		v.Add("metadata.tiered.tierAttribute", "unknown attribute %q", p.TierAttribute)
	}
	if len(p.Tiers) == 0 {
		v.Add("metadata.tiered.tiers", "at least one tier is required")
		return
	}
	if !p.Tiers[0].Min.IsZero() {
		v.Add("metadata.tiered.tiers", "first tier must start at 0")
	}
	for i, tier := range p.Tiers {
		if tier.Rate.IsNegative() {
			v.Add("metadata.tiered.tiers", "tier #%d rate must not be negative", i+1)
		}
		last := i == len(p.Tiers)-1
		if tier.Max == nil {
			if !last {
				v.Add("metadata.tiered.tiers", "only the last tier may be unbounded (tier #%d)", i+1)
			}
			continue
		}
		if last {
			v.Add("metadata.tiered.tiers", "last tier must be unbounded")
		}
		if !tier.Max.GreaterThan(tier.Min) {
			v.Add("metadata.tiered.tiers", "tier #%d max must exceed min", i+1)
		}
		if !last && !p.Tiers[i+1].Min.Equal(*tier.Max) {
			v.Add("metadata.tiered.tiers", "tier #%d must start where tier #%d ends", i+2, i+1)
		}
	}
}

func validateThreshold(p *ThresholdParams, v *ValidationError) {
	switch {
	case FeeType(p.Attribute).Valid():
		v.Add("metadata.threshold.attribute", "fee-type thresholds (%q) are not supported", p.Attribute)
	case !p.Attribute.Valid():
		v.Add("metadata.threshold.attribute", "unknown attribute %q", p.Attribute)
	}
	if p.Min.IsNegative() {
		v.Add("metadata.threshold.min", "must not be negative")
	}
	if p.Max != nil && !p.Max.GreaterThan(p.Min) {
		v.Add("metadata.threshold.max", "must exceed min")
	}
	switch p.Application {
	case ApplyBefore, ApplyDuring, ApplyAfter:
	default:
		v.Add("metadata.threshold.application", "must be before, during or after")
	}
}
