package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validRule() *FeeRule {
	return &FeeRule{
		Name:     "Service Fee",
		Code:     "SERVICE_FEE",
		FeeType:  FeeTypeService,
		Method:   MethodFixed,
		Amount:   dec("10"),
		Currency: CurrencyUSD,
		IsActive: true,
	}
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var v *ValidationError
	require.True(t, errors.As(err, &v), "expected ValidationError, got %v", err)
	names := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestFeeRuleValidate(t *testing.T) {
	require.NoError(t, validRule().Validate())

	tests := []struct {
		name   string
		mutate func(r *FeeRule)
		field  string
	}{
		{"short name", func(r *FeeRule) { r.Name = "x" }, "name"},
		{"lowercase code", func(r *FeeRule) { r.Code = "service" }, "code"},
		{"unknown fee type", func(r *FeeRule) { r.FeeType = "bonus" }, "feeType"},
		{"unknown method", func(r *FeeRule) { r.Method = "random" }, "calculationMethod"},
		{"negative amount", func(r *FeeRule) { r.Amount = dec("-1") }, "amount"},
		{"bad currency", func(r *FeeRule) { r.Currency = "usd" }, "currency"},
		{"empty tag", func(r *FeeRule) { r.AppliesTo = []string{"fragile", " "} }, "appliesTo"},
		{"inverted limits", func(r *FeeRule) {
			r.Limits = FeeLimits{Minimum: decPtr("10"), Maximum: decPtr("5")}
		}, "limits"},
		{"percentage without params", func(r *FeeRule) { r.Method = MethodPercentage }, "metadata.percentage"},
		{"stray variant", func(r *FeeRule) {
			r.Metadata.Timed = &TimedParams{Days: 3, Application: ApplyAfter}
		}, "metadata.timed"},
		{"bad base attribute", func(r *FeeRule) {
			r.Method = MethodPercentage
			r.Metadata.Percentage = &PercentageParams{BaseAttribute: "shipping"}
		}, "metadata.percentage.baseAttribute"},
		{"fee type threshold attribute", func(r *FeeRule) {
			r.Method = MethodThreshold
			r.Metadata.Threshold = &ThresholdParams{Attribute: "customs", Min: dec("1"), Application: ApplyAfter}
		}, "metadata.threshold.attribute"},
		{"timed during", func(r *FeeRule) {
			r.Method = MethodTimed
			r.Metadata.Timed = &TimedParams{Days: 3, Application: ApplyDuring}
		}, "metadata.timed.application"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(r)
			require.Contains(t, fieldNames(t, r.Validate()), tt.field)
		})
	}
}

func TestFeeRuleValidateTiers(t *testing.T) {
	tiered := func(tiers ...Tier) *FeeRule {
		r := validRule()
		r.Method = MethodTiered
		r.Metadata.Tiered = &TieredParams{TierAttribute: AttrWeight, Tiers: tiers}
		return r
	}

	require.NoError(t, tiered(
		Tier{Min: dec("0"), Max: decPtr("10"), Rate: dec("5")},
		Tier{Min: dec("10"), Rate: dec("8")},
	).Validate())

	tests := []struct {
		name string
		rule *FeeRule
	}{
		{"empty", tiered()},
		{"does not start at zero", tiered(Tier{Min: dec("1"), Rate: dec("5")})},
		{"gap", tiered(
			Tier{Min: dec("0"), Max: decPtr("10"), Rate: dec("5")},
			Tier{Min: dec("12"), Rate: dec("8")},
		)},
		{"bounded last tier", tiered(Tier{Min: dec("0"), Max: decPtr("10"), Rate: dec("5")})},
		{"unbounded middle tier", tiered(
			Tier{Min: dec("0"), Rate: dec("5")},
			Tier{Min: dec("10"), Rate: dec("8")},
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, fieldNames(t, tt.rule.Validate()), "metadata.tiered.tiers")
		})
	}
}

func TestFeeRuleAppliesToTags(t *testing.T) {
	r := validRule()
	require.True(t, r.AppliesToTags(nil), "empty appliesTo matches all packages")

	r.AppliesTo = []string{"fragile", "oversize"}
	require.True(t, r.AppliesToTags([]string{"oversize"}))
	require.False(t, r.AppliesToTags([]string{"express"}))

	r.AppliesTo = nil
	r.TagConditions = TagConditions{Required: []string{"express"}, Excluded: []string{"vip"}}
	require.True(t, r.AppliesToTags([]string{"express"}))
	require.False(t, r.AppliesToTags([]string{"express", "vip"}))
	require.False(t, r.AppliesToTags([]string{"fragile"}))
}

func TestFeeLimitsApply(t *testing.T) {
	l := FeeLimits{Minimum: decPtr("5"), Maximum: decPtr("50")}
	require.True(t, l.Apply(dec("2")).Equal(dec("5")))
	require.True(t, l.Apply(dec("75")).Equal(dec("50")))
	require.True(t, l.Apply(dec("20")).Equal(dec("20")))
}

func TestSortRules(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []*FeeRule{
		{ID: "c", Sequence: 2, CreatedAt: t0},
		{ID: "b", Sequence: 1, CreatedAt: t0.Add(time.Hour)},
		{ID: "a", Sequence: 1, CreatedAt: t0.Add(time.Hour)},
		{ID: "d", Sequence: 1, CreatedAt: t0},
	}

	SortRules(rules)

	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []string{"d", "a", "b", "c"}, ids)
}
