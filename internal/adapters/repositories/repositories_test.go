package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/db"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const company = "company-a"

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()

	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, InitSchema(context.Background(), sqlDB, SQLite))
	return New(sqlDB, SQLite)
}

func putPackage(t *testing.T, r *Repositories, id, userID string) {
	t.Helper()
	received := now.Add(-72 * time.Hour)
	err := r.Packages.UpsertPackage(context.Background(), &domain.Package{
		ID:             id,
		CompanyID:      company,
		UserID:         userID,
		TrackingNumber: "TRK-" + id,
		Weight:         decimal.RequireFromString("2.5"),
		DeclaredValue:  decimal.RequireFromString("80"),
		ItemCount:      2,
		Tags:           []string{"fragile"},
		Status:         domain.PackageStatusReceived,
		ReceivedDate:   &received,
	})
	require.NoError(t, err)
}

func newInvoice(id, userID string, packageIDs ...string) *domain.Invoice {
	items := make([]domain.LineItem, 0, len(packageIDs)+1)
	for i, pkgID := range packageIDs {
		pkgID := pkgID
		items = append(items, domain.LineItem{
			ID:          id + "-item-" + pkgID,
			PackageID:   &pkgID,
			Type:        domain.LineType(domain.FeeTypeShipping),
			Description: "Shipping",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(int64(10 * (i + 1))),
			LineTotal:   decimal.NewFromInt(int64(10 * (i + 1))),
			Currency:    domain.CurrencyUSD,
		})
	}
	items = append(items, domain.LineItem{
		ID:          id + "-tax",
		Type:        domain.LineTypeTax,
		Description: "GCT",
		Quantity:    1,
		UnitPrice:   decimal.RequireFromString("1.5"),
		LineTotal:   decimal.RequireFromString("1.5"),
		Currency:    domain.CurrencyUSD,
	})

	inv := &domain.Invoice{
		ID:         id,
		CompanyID:  company,
		UserID:     userID,
		Status:     domain.InvoiceStatusIssued,
		Currency:   domain.CurrencyUSD,
		IssueDate:  now,
		DueDate:    now.AddDate(0, 0, 30),
		Items:      items,
		PackageIDs: packageIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inv.ApplyTotals()
	return inv
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	r := newTestRepos(t)
	require.NoError(t, InitSchema(context.Background(), r.Invoices.DB, SQLite))
}

func TestPackageRepository_ListUnbilled(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")
	putPackage(t, r, "pkg-2", "user-1")
	putPackage(t, r, "pkg-3", "user-2")

	p, err := r.Packages.GetPackage(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.Equal(t, []string{"fragile"}, p.Tags)
	require.True(t, p.Weight.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, p.ReceivedDate)
	require.True(t, p.ReceivedDate.Equal(now.Add(-72*time.Hour)))
	require.Nil(t, p.InvoiceID)

	_, err = r.Packages.GetPackage(ctx, "company-b", "pkg-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	unbilled, err := r.Packages.ListUnbilled(ctx, company, "user-1")
	require.NoError(t, err)
	require.Len(t, unbilled, 2)
	require.Equal(t, "pkg-1", unbilled[0].ID)
}

func TestFeeRuleRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	minimum := decimal.NewFromInt(5)
	rule := &domain.FeeRule{
		ID:        "rule-1",
		CompanyID: company,
		Name:      "Weight charge",
		Code:      "WEIGHT",
		FeeType:   domain.FeeTypeShipping,
		Method:    domain.MethodPerWeight,
		Amount:    decimal.RequireFromString("3.25"),
		Currency:  domain.CurrencyUSD,
		AppliesTo: []string{"standard"},
		TagConditions: domain.TagConditions{
			Required: []string{"oversize"},
			Excluded: []string{"document"},
		},
		Limits:    domain.FeeLimits{Minimum: &minimum},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, r.FeeRules.CreateFeeRule(ctx, rule))
	require.Equal(t, 1, rule.Sequence)

	dup := rule.Clone()
	dup.ID = "rule-2"
	err := r.FeeRules.CreateFeeRule(ctx, dup)
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := r.FeeRules.GetFeeRule(ctx, company, "rule-1")
	require.NoError(t, err)
	require.Equal(t, "WEIGHT", got.Code)
	require.True(t, got.Amount.Equal(rule.Amount))
	require.Equal(t, rule.TagConditions, got.TagConditions)
	require.NotNil(t, got.Limits.Minimum)
	require.True(t, got.Limits.Minimum.Equal(minimum))
	require.True(t, got.IsActive)

	got.IsActive = false
	got.Name = "Weight charge (paused)"
	require.NoError(t, r.FeeRules.UpdateFeeRule(ctx, got))

	list, err := r.FeeRules.ListFeeRules(ctx, company)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].IsActive)
	require.Equal(t, 1, list[0].Sequence)

	require.NoError(t, r.FeeRules.DeleteFeeRule(ctx, company, "rule-1"))
	require.ErrorIs(t, r.FeeRules.DeleteFeeRule(ctx, company, "rule-1"), domain.ErrNotFound)
}

func newFixedRule(id, code string, sequence int) *domain.FeeRule {
	return &domain.FeeRule{
		ID:        id,
		CompanyID: company,
		Name:      code,
		Code:      code,
		FeeType:   domain.FeeTypeService,
		Method:    domain.MethodFixed,
		Amount:    decimal.NewFromInt(1),
		Currency:  domain.CurrencyUSD,
		Sequence:  sequence,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestFeeRuleRepository_SequenceAllocation(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	first := newFixedRule("rule-1", "FIRST", 0)
	require.NoError(t, r.FeeRules.CreateFeeRule(ctx, first))
	require.Equal(t, 1, first.Sequence)

	pinned := newFixedRule("rule-2", "PINNED", 10)
	require.NoError(t, r.FeeRules.CreateFeeRule(ctx, pinned))
	require.Equal(t, 10, pinned.Sequence)

	dup := newFixedRule("rule-3", "FIRST", 0)
	require.ErrorIs(t, r.FeeRules.CreateFeeRule(ctx, dup), domain.ErrConflict)

	next := newFixedRule("rule-4", "NEXT", 0)
	require.NoError(t, r.FeeRules.CreateFeeRule(ctx, next))
	require.Equal(t, 11, next.Sequence, "a failed insert does not consume a sequence")

	moved, err := r.FeeRules.GetFeeRule(ctx, company, "rule-1")
	require.NoError(t, err)
	moved.Sequence = 20
	require.NoError(t, r.FeeRules.UpdateFeeRule(ctx, moved))

	last := newFixedRule("rule-5", "LAST", 0)
	require.NoError(t, r.FeeRules.CreateFeeRule(ctx, last))
	require.Equal(t, 21, last.Sequence)
}

func TestFeeRuleRepository_ConcurrentCreatesGetDistinctSequences(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		rules = make([]*domain.FeeRule, n)
	)
	for i := range n {
		rules[i] = newFixedRule(fmt.Sprintf("rule-%d", i), fmt.Sprintf("RULE_%d", i), 0)
		wg.Add(1)
		go func(rule *domain.FeeRule) {
			defer wg.Done()
			if err := r.FeeRules.CreateFeeRule(ctx, rule); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(rules[i])
	}
	wg.Wait()
	require.Empty(t, errs)

	list, err := r.FeeRules.ListFeeRules(ctx, company)
	require.NoError(t, err)
	seqs := lo.Map(list, func(r *domain.FeeRule, _ int) int { return r.Sequence })
	require.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seqs)
}

func TestDutyFeeRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")

	fee := &domain.DutyFee{
		ID:        "duty-1",
		CompanyID: company,
		PackageID: "pkg-1",
		FeeType:   "customs_duty",
		Amount:    decimal.RequireFromString("1250.00"),
		Currency:  domain.CurrencyJMD,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, r.DutyFees.CreateDutyFee(ctx, fee))

	fee.Amount = decimal.RequireFromString("1300.50")
	fee.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, r.DutyFees.UpdateDutyFee(ctx, fee))

	fees, err := r.DutyFees.ListDutyFees(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.Len(t, fees, 1)
	require.True(t, fees[0].Amount.Equal(decimal.RequireFromString("1300.50")))
	require.Equal(t, domain.CurrencyJMD, fees[0].Currency)

	_, err = r.DutyFees.GetDutyFee(ctx, "company-b", "duty-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, r.DutyFees.DeleteDutyFee(ctx, company, "duty-1"))
	fees, err = r.DutyFees.ListDutyFees(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.Empty(t, fees)
}

func TestSettingsRepository_DefaultsAndUpsert(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	settings, err := r.Settings.CompanySettings(ctx, company)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultInvoicePrefix, settings.InvoicePrefix)
	require.Equal(t, domain.DefaultPaymentTermDays, settings.PaymentTermDays)
	require.Nil(t, settings.ExchangeRate)

	err = r.Settings.UpsertSettings(ctx, domain.CompanySettings{
		CompanyID:       company,
		InvoicePrefix:   "ACME",
		PaymentTermDays: 14,
		ExchangeRate: &domain.ExchangeRateSettings{
			BaseCurrency:   domain.CurrencyUSD,
			TargetCurrency: domain.CurrencyJMD,
			ExchangeRate:   decimal.RequireFromString("157.5"),
			AsOf:           now,
		},
	})
	require.NoError(t, err)

	settings, err = r.Settings.CompanySettings(ctx, company)
	require.NoError(t, err)
	require.Equal(t, "ACME", settings.InvoicePrefix)
	require.Equal(t, 14, settings.PaymentTermDays)
	require.NotNil(t, settings.ExchangeRate)
	require.True(t, settings.ExchangeRate.ExchangeRate.Equal(decimal.RequireFromString("157.5")))
	require.Equal(t, domain.CurrencyUSD, settings.HomeCurrency(), "invoices are stored in the rate's base currency")
}

func TestInvoiceRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")
	putPackage(t, r, "pkg-2", "user-1")

	first := newInvoice("inv-1", "user-1", "pkg-1")
	require.NoError(t, r.Invoices.CreateInvoice(ctx, first, "ACME"))
	require.Equal(t, "ACME-000001", first.InvoiceNumber)

	second := newInvoice("inv-2", "user-1", "pkg-2")
	require.NoError(t, r.Invoices.CreateInvoice(ctx, second, "ACME"))
	require.Equal(t, "ACME-000002", second.InvoiceNumber)

	got, err := r.Invoices.GetInvoice(ctx, company, "inv-1")
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusIssued, got.Status)
	require.Equal(t, []string{"pkg-1"}, got.PackageIDs)
	require.Len(t, got.Items, 2)
	require.Equal(t, "pkg-1", *got.Items[0].PackageID)
	require.Nil(t, got.Items[1].PackageID)
	require.True(t, got.TotalAmount.Equal(decimal.RequireFromString("11.5")))
	require.True(t, got.TaxAmount.Equal(decimal.RequireFromString("1.5")))
	require.True(t, got.DueDate.Equal(now.AddDate(0, 0, 30)))

	p, err := r.Packages.GetPackage(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.NotNil(t, p.InvoiceID)
	require.Equal(t, "inv-1", *p.InvoiceID)

	_, err = r.Invoices.GetInvoice(ctx, "company-b", "inv-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceRepository_ClaimConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")
	putPackage(t, r, "pkg-2", "user-1")

	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-1", "user-1", "pkg-1"), "INV"))

	err := r.Invoices.CreateInvoice(ctx, newInvoice("inv-2", "user-1", "pkg-2", "pkg-1"), "INV")
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	// pkg-2 was claimed before the conflict; the rollback must release it.
	p, err := r.Packages.GetPackage(ctx, company, "pkg-2")
	require.NoError(t, err)
	require.Nil(t, p.InvoiceID)

	_, err = r.Invoices.GetInvoice(ctx, company, "inv-2")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// The failed attempt must not burn a number.
	third := newInvoice("inv-3", "user-1", "pkg-2")
	require.NoError(t, r.Invoices.CreateInvoice(ctx, third, "INV"))
	require.Equal(t, "INV-000002", third.InvoiceNumber)
}

func TestInvoiceRepository_ClaimRejectsOtherUser(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-2")

	err := r.Invoices.CreateInvoice(ctx, newInvoice("inv-1", "user-1", "pkg-1"), "INV")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestInvoiceRepository_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv := newInvoice(fmt.Sprintf("inv-%d", i), "user-1", "pkg-1")
			errs[i] = r.Invoices.CreateInvoice(ctx, inv, "INV")
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, domain.ErrConflict)
	}
	require.Equal(t, 1, success)
}

func TestInvoiceRepository_CancelReleasesPackages(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")

	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-1", "user-1", "pkg-1"), "INV"))

	cancelledAt := now.Add(time.Hour)
	inv, err := r.Invoices.CancelInvoice(ctx, company, "inv-1", domain.InvoiceStatusIssued, cancelledAt)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusCancelled, inv.Status)
	require.NotNil(t, inv.CancelledAt)
	for _, it := range inv.Items {
		require.NotNil(t, it.VoidedAt)
	}
	require.Equal(t, []string{"pkg-1"}, inv.PackageIDs)

	p, err := r.Packages.GetPackage(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.Nil(t, p.InvoiceID)

	_, err = r.Invoices.CancelInvoice(ctx, company, "inv-1", domain.InvoiceStatusIssued, cancelledAt)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = r.Invoices.CancelInvoice(ctx, company, "missing", domain.InvoiceStatusIssued, cancelledAt)
	require.ErrorIs(t, err, domain.ErrNotFound)

	rebill := newInvoice("inv-2", "user-1", "pkg-1")
	require.NoError(t, r.Invoices.CreateInvoice(ctx, rebill, "INV"))
	require.Equal(t, "INV-000002", rebill.InvoiceNumber)
}

func TestInvoiceRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")
	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-1", "user-1", "pkg-1"), "INV"))

	inv, err := r.Invoices.UpdateInvoiceStatus(ctx, company, "inv-1", domain.InvoiceStatusIssued, domain.InvoiceStatusPaid, now)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusPaid, inv.Status)

	_, err = r.Invoices.UpdateInvoiceStatus(ctx, company, "inv-1", domain.InvoiceStatusIssued, domain.InvoiceStatusOverdue, now)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestInvoiceRepository_StatsExcludeCancelled(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)
	putPackage(t, r, "pkg-1", "user-1")
	putPackage(t, r, "pkg-2", "user-1")
	putPackage(t, r, "pkg-3", "user-1")

	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-1", "user-1", "pkg-1"), "INV"))
	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-2", "user-1", "pkg-2"), "INV"))
	require.NoError(t, r.Invoices.CreateInvoice(ctx, newInvoice("inv-3", "user-1", "pkg-3"), "INV"))
	_, err := r.Invoices.CancelInvoice(ctx, company, "inv-3", domain.InvoiceStatusIssued, now)
	require.NoError(t, err)

	stats, err := r.Invoices.InvoiceStats(ctx, company)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, domain.InvoiceStatusIssued, stats[0].Status)
	require.Equal(t, 2, stats[0].Count)
	require.True(t, stats[0].TotalAmount.Equal(decimal.RequireFromString("23")))
}

func TestInvoiceRepository_MoneyIsExactOnSQLite(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	for i, amount := range []string{"0.10", "0.20", "1234567.89"} {
		id := fmt.Sprintf("inv-%d", i+1)
		inv := newInvoice(id, "user-1")
		inv.Items = []domain.LineItem{{
			ID:          id + "-fee",
			Type:        domain.LineTypeOther,
			Description: "Handling",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString(amount),
			LineTotal:   decimal.RequireFromString(amount),
			Currency:    domain.CurrencyUSD,
		}}
		inv.ApplyTotals()
		require.NoError(t, r.Invoices.CreateInvoice(ctx, inv, "INV"))
	}

	var storage string
	err := r.Invoices.DB.QueryRowContext(ctx, `SELECT typeof(total_amount) FROM invoices WHERE id = 'inv-1'`).Scan(&storage)
	require.NoError(t, err)
	require.Equal(t, "text", storage)

	got, err := r.Invoices.GetInvoice(ctx, company, "inv-3")
	require.NoError(t, err)
	require.Equal(t, "1234567.89", got.TotalAmount.StringFixed(2))

	stats, err := r.Invoices.InvoiceStats(ctx, company)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 3, stats[0].Count)
	require.Equal(t, "1234568.19", stats[0].TotalAmount.StringFixed(2))
}

func TestAuditRepository_RecordAndList(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	err := r.Audit.Record(ctx, domain.AuditEntry{
		ID:         "audit-1",
		CompanyID:  company,
		UserID:     "staff-1",
		Action:     domain.AuditInvoiceCancel,
		EntityType: "invoice",
		EntityID:   "inv-1",
		Details:    map[string]any{"invoice_number": "INV-000001"},
		CreatedAt:  now,
	})
	require.NoError(t, err)

	entries, err := r.Audit.ListAudit(ctx, company, "inv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditInvoiceCancel, entries[0].Action)
	require.Equal(t, "INV-000001", entries[0].Details["invoice_number"])
}

func TestSeedFromJSON(t *testing.T) {
	ctx := context.Background()
	r := newTestRepos(t)

	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{
		"settings": [{"company_id": "company-a", "invoice_prefix": "SEED", "payment_term_days": 10}],
		"packages": [
			{"id": "pkg-1", "company_id": "company-a", "user_id": "user-1", "tracking_number": "T1",
			 "weight": "4.2", "declared_value": "99.99", "item_count": 3, "tags": ["oversize"]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	require.NoError(t, SeedFromJSON(ctx, r, path))
	// Seeding twice upserts in place.
	require.NoError(t, SeedFromJSON(ctx, r, path))

	settings, err := r.Settings.CompanySettings(ctx, company)
	require.NoError(t, err)
	require.Equal(t, "SEED", settings.InvoicePrefix)

	p, err := r.Packages.GetPackage(ctx, company, "pkg-1")
	require.NoError(t, err)
	require.Equal(t, domain.PackageStatusReceived, p.Status)
	require.Equal(t, 3, p.ItemCount)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"packages":[{"id":""}]}`), 0o600))
	require.Error(t, SeedFromJSON(ctx, r, bad))
}
