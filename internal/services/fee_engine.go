package services

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Charge is one matched rule and its evaluated amount.
type Charge struct {
	Rule     *domain.FeeRule
	Amount   decimal.Decimal
	Currency domain.Currency
}

// Evaluation is the result of scoring one package against a rule set.
type Evaluation struct {
	Charges  []Charge
	Warnings []domain.ConfigWarning
}

// EvaluationInput is everything the engine reads; it never touches storage.
type EvaluationInput struct {
	Package  *domain.Package
	DutyFees []*domain.DutyFee
	// Rules in evaluation order (see domain.SortRules).
	Rules []*domain.FeeRule
	Now   time.Time
}

// buckets are the running totals percentage rules read, kept per currency
// so that amounts are never summed across currencies.
type buckets map[domain.Currency]map[string]decimal.Decimal

func (b buckets) get(c domain.Currency, key string) decimal.Decimal {
	return b[c][key]
}

func (b buckets) add(c domain.Currency, key string, amount decimal.Decimal) {
	if b[c] == nil {
		b[c] = map[string]decimal.Decimal{}
	}
	b[c][key] = b[c][key].Add(amount)
}

// Evaluate scores a package against the rules. It is deterministic for a
// given input and does not fail: rules whose configuration cannot be
// evaluated are skipped with a ConfigWarning.
func Evaluate(ctx context.Context, in EvaluationInput) Evaluation {
	var out Evaluation
	if in.Package == nil {
		return out
	}

	run := buckets{}
	for _, f := range in.DutyFees {
		run.add(f.Currency, string(domain.BaseCustoms), f.Amount)
		run.add(f.Currency, string(domain.BaseSubtotal), f.Amount)
	}

	for _, rule := range in.Rules {
		if !rule.AppliesToTags(in.Package.Tags) {
			continue
		}
		if !rule.IsActive {
			continue
		}

		amount, warning := evaluateRule(rule, in, run)
		if warning != "" {
			w := domain.ConfigWarning{RuleID: rule.ID, RuleCode: rule.Code, Message: warning}
			out.Warnings = append(out.Warnings, w)
			obs.FromContext(ctx).Warn("fee rule skipped",
				zap.String("rule_id", rule.ID),
				zap.String("rule_code", rule.Code),
				zap.String("package_id", in.Package.ID),
				zap.String("reason", warning),
			)
			continue
		}
		if amount.IsZero() {
			continue
		}

		amount = domain.Money(rule.Limits.Apply(amount))
		if amount.IsZero() {
			continue
		}

		run.add(rule.Currency, string(rule.FeeType), amount)
		if rule.FeeType != domain.FeeTypeTax {
			run.add(rule.Currency, string(domain.BaseSubtotal), amount)
		}
		out.Charges = append(out.Charges, Charge{Rule: rule, Amount: amount, Currency: rule.Currency})
	}

	return out
}

// evaluateRule returns the raw amount, or a non-empty warning when the rule
// cannot be evaluated against this package.
func evaluateRule(rule *domain.FeeRule, in EvaluationInput, run buckets) (decimal.Decimal, string) {
	pkg := in.Package
	meta := rule.Metadata

	switch rule.Method {
	case domain.MethodFixed:
		return rule.Amount, ""

	case domain.MethodPercentage:
		if meta.Percentage == nil {
			return decimal.Zero, "percentage rule has no base attribute"
		}
		base := run.get(rule.Currency, string(meta.Percentage.BaseAttribute))
		return rule.Amount.Div(decimal.NewFromInt(100)).Mul(base), ""

	case domain.MethodPerWeight:
		return rule.Amount.Mul(pkg.Weight), ""

	case domain.MethodPerItem:
		return rule.Amount.Mul(decimal.NewFromInt(int64(pkg.Items()))), ""

	case domain.MethodTiered:
		if meta.Tiered == nil {
			return decimal.Zero, "tiered rule has no tiers"
		}
		value, warning := resolveAttribute(meta.Tiered.TierAttribute, rule, in)
		if warning != "" {
			return decimal.Zero, warning
		}
		for _, tier := range meta.Tiered.Tiers {
			if tier.Contains(value) {
				return tier.Rate, ""
			}
		}
		return decimal.Zero, fmt.Sprintf("no tier matches %s=%s", meta.Tiered.TierAttribute, value)

	case domain.MethodThreshold:
		if meta.Threshold == nil {
			return decimal.Zero, "threshold rule has no parameters"
		}
		value, warning := resolveAttribute(meta.Threshold.Attribute, rule, in)
		if warning != "" {
			return decimal.Zero, warning
		}
		if meta.Threshold.Applies(value) {
			return rule.Amount, ""
		}
		return decimal.Zero, ""

	case domain.MethodTimed:
		if meta.Timed == nil {
			return decimal.Zero, "timed rule has no parameters"
		}
		days, ok := elapsedDays(pkg, in.Now)
		if !ok {
			return decimal.Zero, "package has no received date"
		}
		if meta.Timed.Applies(days) {
			return rule.Amount, ""
		}
		return decimal.Zero, ""
	}

	return decimal.Zero, fmt.Sprintf("unknown calculation method %q", rule.Method)
}

// resolveAttribute reads a package-derived value for tiered and threshold rules.
func resolveAttribute(attr domain.Attribute, rule *domain.FeeRule, in EvaluationInput) (decimal.Decimal, string) {
	pkg := in.Package

	switch attr.Canonical() {
	case domain.AttrWeight:
		return pkg.Weight, ""
	case domain.AttrDeclaredValue:
		return pkg.DeclaredValue, ""
	case domain.AttrItemCount:
		return decimal.NewFromInt(int64(pkg.Items())), ""
	case domain.AttrCustomsDuty:
		return domain.TotalDutyFees(in.DutyFees, rule.Currency), ""
	case domain.AttrDaysInStorage:
		days, ok := elapsedDays(pkg, in.Now)
		if !ok {
			return decimal.Zero, "package has no received date"
		}
		return decimal.NewFromInt(int64(days)), ""
	}

	if domain.FeeType(attr).Valid() {
		return decimal.Zero, fmt.Sprintf("fee-type attribute %q is not supported", attr)
	}
	return decimal.Zero, fmt.Sprintf("attribute %q does not resolve against package data", attr)
}

// elapsedDays is the number of whole days since the package was received.
func elapsedDays(pkg *domain.Package, now time.Time) (int, bool) {
	if pkg.ReceivedDate == nil {
		return 0, false
	}
	d := now.Sub(*pkg.ReceivedDate)
	if d < 0 {
		return 0, true
	}
	return int(d / (24 * time.Hour)), true
}
