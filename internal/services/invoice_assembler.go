package services

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/ports"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CustomLineItem is an ad hoc line entered by staff.
type CustomLineItem struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	// Currency defaults to the company's home currency.
	Currency  domain.Currency
	IsTax     bool
	PackageID string
}

// InvoiceRequest is the input shared by preview and generate.
type InvoiceRequest struct {
	UserID          string
	PackageIDs      []string
	CustomLineItems []CustomLineItem
	// AdditionalCharge is added as its own line when positive.
	AdditionalCharge *decimal.Decimal
	// AdditionalChargeCurrency defaults to the company's home currency.
	AdditionalChargeCurrency domain.Currency
	// SkipFeeRules bills duty fees and custom lines only.
	SkipFeeRules bool

	Notes            string
	IssueDate        *time.Time
	DueDate          *time.Time
	IsDraft          bool
	SendNotification bool
}

// InvoicePreview is the computed, unpersisted invoice.
type InvoicePreview struct {
	UserID     string
	Currency   domain.Currency
	PackageIDs []string
	Items      []domain.LineItem
	Totals     domain.Totals
	Warnings   []domain.ConfigWarning
}

// assembler computes invoice contents from the stores. It only reads.
type assembler struct {
	packages ports.PackageDirectory
	rules    ports.FeeRuleRepository
	dutyFees ports.DutyFeeRepository
}

func (a assembler) assemble(ctx context.Context, companyID string, req InvoiceRequest, settings domain.CompanySettings, now time.Time) (*InvoicePreview, error) {
	if err := validateInvoiceRequest(req); err != nil {
		return nil, err
	}

	home := settings.HomeCurrency()
	out := &InvoicePreview{
		UserID:     req.UserID,
		Currency:   home,
		PackageIDs: append([]string(nil), req.PackageIDs...),
	}

	var rules []*domain.FeeRule
	if !req.SkipFeeRules && len(req.PackageIDs) > 0 {
		var err error
		rules, err = a.rules.ListFeeRules(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("assemble invoice: list fee rules: %w", err)
		}
		domain.SortRules(rules)
	}

	var items []domain.LineItem
	for _, id := range req.PackageIDs {
		pkg, err := a.packages.GetPackage(ctx, companyID, id)
		if err != nil {
			return nil, fmt.Errorf("assemble invoice: %w", err)
		}
		if pkg.UserID != req.UserID {
			return nil, domain.NewValidationError("packageIds", "package %s does not belong to user %s", id, req.UserID)
		}
		if pkg.Billed() {
			return nil, domain.NewConflictError("package %s is already linked to invoice %s", id, *pkg.InvoiceID)
		}

		fees, err := a.dutyFees.ListDutyFees(ctx, companyID, pkg.ID)
		if err != nil {
			return nil, fmt.Errorf("assemble invoice: list duty fees for %s: %w", pkg.ID, err)
		}

		eval := Evaluate(ctx, EvaluationInput{Package: pkg, DutyFees: fees, Rules: rules, Now: now})
		out.Warnings = append(out.Warnings, eval.Warnings...)

		for _, ch := range eval.Charges {
			items = append(items, singleLine(pkg.ID, domain.LineType(ch.Rule.FeeType), ch.Rule.Name, ch.Amount, ch.Currency))
		}
		for _, f := range fees {
			items = append(items, singleLine(pkg.ID, domain.LineTypeDuty, f.LineDescription(), f.Amount, f.Currency))
		}
	}

	for _, ci := range req.CustomLineItems {
		typ := domain.LineTypeOther
		if ci.IsTax {
			typ = domain.LineTypeTax
		}
		currency := lo.Ternary(ci.Currency == "", home, ci.Currency)
		var pkgID *string
		if ci.PackageID != "" {
			pkgID = lo.ToPtr(ci.PackageID)
		}
		items = append(items, domain.LineItem{
			PackageID:   pkgID,
			Type:        typ,
			Description: strings.TrimSpace(ci.Description),
			Quantity:    ci.Quantity,
			UnitPrice:   domain.Money(ci.UnitPrice),
			LineTotal:   domain.Money(ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))),
			Currency:    currency,
		})
	}

	if req.AdditionalCharge != nil && req.AdditionalCharge.IsPositive() {
		currency := lo.Ternary(req.AdditionalChargeCurrency == "", home, req.AdditionalChargeCurrency)
		items = append(items, domain.LineItem{
			Type:        domain.LineTypeOther,
			Description: domain.AdditionalChargeDescription,
			Quantity:    1,
			UnitPrice:   domain.Money(*req.AdditionalCharge),
			LineTotal:   domain.Money(*req.AdditionalCharge),
			Currency:    currency,
		})
	}

	out.Items = domain.MergeLineItems(items)
	out.Totals = domain.ComputeTotals(out.Items)
	return out, nil
}

func singleLine(packageID string, typ domain.LineType, description string, amount decimal.Decimal, currency domain.Currency) domain.LineItem {
	return domain.LineItem{
		PackageID:   lo.ToPtr(packageID),
		Type:        typ,
		Description: description,
		Quantity:    1,
		UnitPrice:   amount,
		LineTotal:   amount,
		Currency:    currency,
	}
}

func validateInvoiceRequest(req InvoiceRequest) error {
	v := &domain.ValidationError{}

	if strings.TrimSpace(req.UserID) == "" {
		v.Add("userId", "is required")
	}
	hasCharge := req.AdditionalCharge != nil && req.AdditionalCharge.IsPositive()
	if len(req.PackageIDs) == 0 && len(req.CustomLineItems) == 0 && !hasCharge {
		v.Add("packageIds", "at least one package, custom line item or additional charge is required")
	}
	if dups := lo.FindDuplicates(req.PackageIDs); len(dups) > 0 {
		v.Add("packageIds", "duplicate package ids: %s", strings.Join(dups, ", "))
	}
	if req.AdditionalCharge != nil && req.AdditionalCharge.IsNegative() {
		v.Add("additionalCharge", "must not be negative")
	}
	if c := req.AdditionalChargeCurrency; c != "" && !c.Valid() {
		v.Add("additionalChargeCurrency", "must be a 3-letter currency code")
	}
	for i, ci := range req.CustomLineItems {
		field := fmt.Sprintf("customLineItems[%d]", i)
		if d := strings.TrimSpace(ci.Description); d == "" || len(d) > 255 {
			v.Add(field+".description", "must be between 1 and 255 characters")
		}
		if ci.Quantity < 1 {
			v.Add(field+".quantity", "must be at least 1")
		}
		if ci.UnitPrice.IsNegative() {
			v.Add(field+".unitPrice", "must not be negative")
		}
		if ci.Currency != "" && !ci.Currency.Valid() {
			v.Add(field+".currency", "must be a 3-letter currency code")
		}
	}
	if req.IssueDate != nil && req.DueDate != nil && req.DueDate.Before(*req.IssueDate) {
		v.Add("dueDate", "must not be before issueDate")
	}

	return v.Err()
}
