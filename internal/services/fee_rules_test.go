package services

import (
	"context"
	"package-billing-service/internal/domain"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestFeeRuleServiceCreateAssignsSequence(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.mustRule(fixedRule("SERVICE", "Service Fee", "10"))
	second := f.mustRule(fixedRule("HANDLING", "Handling Fee", "5"))
	require.Equal(t, 1, first.Sequence)
	require.Equal(t, 2, second.Sequence)
	require.True(t, first.IsActive)

	pinned := fixedRule("FIRST", "First Fee", "1")
	pinned.Sequence = 1
	f.mustRule(pinned)

	rules, err := f.rules.List(ctx, companyA)
	require.NoError(t, err)
	codes := lo.Map(rules, func(r *domain.FeeRule, _ int) string { return r.Code })
	require.Equal(t, []string{"SERVICE", "FIRST", "HANDLING"}, codes, "ties on sequence fall back to creation order")
}

func TestFeeRuleServiceDuplicateCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mustRule(fixedRule("SERVICE", "Service Fee", "10"))

	_, err := f.rules.Create(ctx, staff, fixedRule("SERVICE", "Another", "3"))
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.rules.Create(ctx, Caller{CompanyID: companyB}, fixedRule("SERVICE", "Service Fee", "10"))
	require.NoError(t, err, "codes are unique per company")
}

func TestFeeRuleServiceUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.mustRule(fixedRule("SERVICE", "Service Fee", "10"))

	in := fixedRule("", "Service Fee", "12.50")
	in.IsActive = lo.ToPtr(false)
	updated, err := f.rules.Update(ctx, staff, r.ID, in)
	require.NoError(t, err)
	require.Equal(t, "SERVICE", updated.Code)
	require.Equal(t, r.Sequence, updated.Sequence)
	require.False(t, updated.IsActive)
	require.True(t, updated.Amount.Equal(d("12.50")))

	_, err = f.rules.Update(ctx, staff, r.ID, fixedRule("RENAMED", "Service Fee", "10"))
	require.ErrorIs(t, err, domain.ErrValidation, "code is immutable")

	bad := fixedRule("SERVICE", "Service Fee", "10")
	bad.Method = domain.MethodTiered
	_, err = f.rules.Update(ctx, staff, r.ID, bad)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.rules.Update(ctx, Caller{CompanyID: companyB}, r.ID, fixedRule("SERVICE", "Service Fee", "10"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFeeRuleServiceDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.mustRule(fixedRule("SERVICE", "Service Fee", "10"))

	require.ErrorIs(t, f.rules.Delete(ctx, Caller{CompanyID: companyB}, r.ID), domain.ErrNotFound)
	require.NoError(t, f.rules.Delete(ctx, staff, r.ID))
	require.ErrorIs(t, f.rules.Delete(ctx, staff, r.ID), domain.ErrNotFound)

	actions := lo.Map(f.store.AuditEntries(), func(e domain.AuditEntry, _ int) string { return e.Action })
	require.Equal(t, []string{domain.AuditFeeRuleCreate, domain.AuditFeeRuleDelete}, actions)
}

func TestFeeRuleServiceRejectsInvalidRule(t *testing.T) {
	f := newFixture()

	in := fixedRule("TIERED", "Tiered Fee", "0")
	in.Method = domain.MethodTiered
	in.Metadata.Tiered = &domain.TieredParams{
		TierAttribute: domain.AttrWeight,
		Tiers:         []domain.Tier{{Min: d("0"), Max: dp("10"), Rate: d("5")}},
	}

	_, err := f.rules.Create(context.Background(), staff, in)
	require.ErrorIs(t, err, domain.ErrValidation)

	rules, err := f.rules.List(context.Background(), companyA)
	require.NoError(t, err)
	require.Empty(t, rules)
}
