package services

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/ports"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventInvoiceGenerated = "invoice.generated"

	defaultNotifyTimeout = 5 * time.Second
)

// InvoiceService previews, generates and moves invoices through their lifecycle.
// It must not be copied after first use.
type InvoiceService struct {
	Packages ports.PackageDirectory
	Rules    ports.FeeRuleRepository
	DutyFees ports.DutyFeeRepository
	Invoices ports.InvoiceRepository
	Settings ports.SettingsRepository
	Audit    ports.AuditLog
	Notifier ports.Notifier

	NotifyTimeout time.Duration
	Now           func() time.Time

	notifications sync.WaitGroup
}

func (s *InvoiceService) assembler() assembler {
	return assembler{packages: s.Packages, rules: s.Rules, dutyFees: s.DutyFees}
}

func (s *InvoiceService) settings(ctx context.Context, companyID string) (domain.CompanySettings, error) {
	settings, err := s.Settings.CompanySettings(ctx, companyID)
	if err != nil {
		return domain.CompanySettings{}, fmt.Errorf("load company settings: %w", err)
	}
	return settings.WithDefaults(), nil
}

// Preview computes an invoice without persisting anything. For unchanged
// rules, duty fees and packages it returns the same result on every call.
func (s *InvoiceService) Preview(ctx context.Context, c Caller, req InvoiceRequest) (_ *InvoicePreview, err error) {
	defer obs.Time(ctx, "invoices.Preview")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	settings, err := s.settings(ctx, c.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("preview invoice: %w", err)
	}

	preview, err := s.assembler().assemble(ctx, c.CompanyID, req, settings, nowFunc(s.Now)())
	if err != nil {
		return nil, fmt.Errorf("preview invoice: %w", err)
	}
	return preview, nil
}

// Generate assembles and persists an invoice. Claiming the packages,
// allocating the number and writing the invoice happen in one repository
// call; a package already on an active invoice fails the whole request.
func (s *InvoiceService) Generate(ctx context.Context, c Caller, req InvoiceRequest) (_ *domain.Invoice, err error) {
	defer obs.Time(ctx, "invoices.Generate")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	settings, err := s.settings(ctx, c.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("generate invoice: %w", err)
	}

	now := nowFunc(s.Now)()
	preview, err := s.assembler().assemble(ctx, c.CompanyID, req, settings, now)
	if err != nil {
		return nil, fmt.Errorf("generate invoice: %w", err)
	}

	issue := now
	if req.IssueDate != nil {
		issue = req.IssueDate.UTC()
	}
	due := issue.AddDate(0, 0, settings.PaymentTermDays)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}
	if due.Before(issue) {
		return nil, domain.NewValidationError("dueDate", "must not be before issueDate")
	}

	status := domain.InvoiceStatusIssued
	if req.IsDraft {
		status = domain.InvoiceStatusDraft
	}

	inv := &domain.Invoice{
		ID:         uuid.NewString(),
		CompanyID:  c.CompanyID,
		UserID:     req.UserID,
		Status:     status,
		Currency:   preview.Currency,
		IssueDate:  issue,
		DueDate:    due,
		Items:      preview.Items,
		Notes:      strings.TrimSpace(req.Notes),
		PackageIDs: preview.PackageIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i := range inv.Items {
		inv.Items[i].ID = uuid.NewString()
	}
	inv.ApplyTotals()

	if err := s.Invoices.CreateInvoice(ctx, inv, settings.InvoicePrefix); err != nil {
		return nil, fmt.Errorf("generate invoice: %w", err)
	}

	recordAudit(ctx, s.Audit, c, domain.AuditInvoiceGenerate, "invoice", inv.ID, map[string]any{
		"invoiceNumber": inv.InvoiceNumber,
		"userId":        inv.UserID,
		"packageIds":    inv.PackageIDs,
		"totalAmount":   inv.TotalAmount.StringFixed(2),
		"status":        string(inv.Status),
	}, now)

	if req.SendNotification {
		s.notify(ctx, inv, EventInvoiceGenerated)
	}

	return inv, nil
}

// GenerateForUser bills every unbilled package of the user.
func (s *InvoiceService) GenerateForUser(ctx context.Context, c Caller, userID string, req InvoiceRequest) (*domain.Invoice, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	pkgs, err := s.Packages.ListUnbilled(ctx, c.CompanyID, userID)
	if err != nil {
		return nil, fmt.Errorf("generate invoice for user: list unbilled packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, domain.NewValidationError("userId", "user %s has no unbilled packages", userID)
	}

	req.UserID = userID
	req.PackageIDs = make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		req.PackageIDs = append(req.PackageIDs, p.ID)
	}
	return s.Generate(ctx, c, req)
}

// Get returns one invoice with its items.
func (s *InvoiceService) Get(ctx context.Context, companyID, id string) (*domain.Invoice, error) {
	inv, err := s.Invoices.GetInvoice(ctx, companyID, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// Cancel voids the invoice and releases its packages for re-billing.
// Paid and cancelled invoices cannot be cancelled.
func (s *InvoiceService) Cancel(ctx context.Context, c Caller, id string) (_ *domain.Invoice, err error) {
	defer obs.Time(ctx, "invoices.Cancel")(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	inv, err := s.Invoices.GetInvoice(ctx, c.CompanyID, id)
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	if !inv.Status.CanTransition(domain.InvoiceStatusCancelled) {
		return nil, domain.NewConflictError("invoice %s is %s and cannot be cancelled", inv.InvoiceNumber, inv.Status)
	}

	now := nowFunc(s.Now)()
	cancelled, err := s.Invoices.CancelInvoice(ctx, c.CompanyID, id, inv.Status, now)
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}

	recordAudit(ctx, s.Audit, c, domain.AuditInvoiceCancel, "invoice", id, map[string]any{
		"invoiceNumber": cancelled.InvoiceNumber,
		"previous":      string(inv.Status),
		"packageIds":    inv.PackageIDs,
	}, now)
	return cancelled, nil
}

// Finalize issues a draft invoice.
func (s *InvoiceService) Finalize(ctx context.Context, c Caller, id string) (*domain.Invoice, error) {
	return s.transition(ctx, c, id, domain.InvoiceStatusIssued, nil)
}

// MarkPaid records payment of an issued or overdue invoice.
func (s *InvoiceService) MarkPaid(ctx context.Context, c Caller, id string) (*domain.Invoice, error) {
	return s.transition(ctx, c, id, domain.InvoiceStatusPaid, nil)
}

// MarkOverdue flags an issued invoice whose due date has passed.
func (s *InvoiceService) MarkOverdue(ctx context.Context, c Caller, id string) (*domain.Invoice, error) {
	return s.transition(ctx, c, id, domain.InvoiceStatusOverdue, func(inv *domain.Invoice, now time.Time) error {
		if !now.After(inv.DueDate) {
			return domain.NewConflictError("invoice %s is not past due", inv.InvoiceNumber)
		}
		return nil
	})
}

func (s *InvoiceService) transition(
	ctx context.Context,
	c Caller,
	id string,
	to domain.InvoiceStatus,
	guard func(inv *domain.Invoice, now time.Time) error,
) (_ *domain.Invoice, err error) {
	defer obs.Time(ctx, "invoices.transition."+string(to))(&err)

	if err := c.validate(); err != nil {
		return nil, err
	}

	inv, err := s.Invoices.GetInvoice(ctx, c.CompanyID, id)
	if err != nil {
		return nil, fmt.Errorf("update invoice status: %w", err)
	}
	if !inv.Status.CanTransition(to) {
		return nil, domain.NewConflictError("invoice %s cannot move from %s to %s", inv.InvoiceNumber, inv.Status, to)
	}

	now := nowFunc(s.Now)()
	if guard != nil {
		if err := guard(inv, now); err != nil {
			return nil, err
		}
	}

	updated, err := s.Invoices.UpdateInvoiceStatus(ctx, c.CompanyID, id, inv.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("update invoice status: %w", err)
	}
	return updated, nil
}

// Stats returns per-status, per-currency totals of active invoices.
func (s *InvoiceService) Stats(ctx context.Context, companyID string) ([]domain.InvoiceStat, error) {
	stats, err := s.Invoices.InvoiceStats(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}
	return stats, nil
}

// notify dispatches in the background on a context detached from the request.
// Failures are logged and never affect the invoice.
func (s *InvoiceService) notify(ctx context.Context, inv *domain.Invoice, event string) {
	if s.Notifier == nil {
		return
	}

	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	log := obs.FromContext(ctx)
	payload := map[string]any{
		"invoiceId":     inv.ID,
		"invoiceNumber": inv.InvoiceNumber,
		"totalAmount":   inv.TotalAmount.StringFixed(2),
		"currency":      string(inv.Currency),
		"dueDate":       inv.DueDate.Format(time.DateOnly),
	}
	detached := context.WithoutCancel(ctx)

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		if err := s.Notifier.Notify(ctx, inv.UserID, event, payload); err != nil {
			log.Warn("notification failed",
				zap.String("event", event),
				zap.String("invoice_id", inv.ID),
				zap.Error(err),
			)
		}
	}()
}

// WaitNotifications blocks until in-flight notifications finish.
func (s *InvoiceService) WaitNotifications() {
	s.notifications.Wait()
}

// RenderedLine is a line item with its display conversion.
type RenderedLine struct {
	domain.LineItem
	Display Conversion
}

// RenderedInvoice is an invoice converted into a viewer-selected currency.
// Stored amounts are never rewritten.
type RenderedInvoice struct {
	Invoice      *domain.Invoice
	Currency     domain.Currency
	Lines        []RenderedLine
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	TotalAmount  decimal.Decimal
	RoundedTotal decimal.Decimal
	// Nominal is set when any active line could not be converted; every line
	// is then shown in its stored currency and the totals are USD-nominal.
	Nominal bool
}

// Render converts the invoice for display. An empty currency selects the
// invoice's own currency. Voided lines are listed but not totalled.
func (s *InvoiceService) Render(ctx context.Context, companyID, id string, currency domain.Currency) (_ *RenderedInvoice, err error) {
	defer obs.Time(ctx, "invoices.Render")(&err)

	if currency != "" && !currency.Valid() {
		return nil, domain.NewValidationError("currency", "must be a 3-letter currency code")
	}

	inv, err := s.Invoices.GetInvoice(ctx, companyID, id)
	if err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}
	settings, err := s.settings(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}

	target := currency
	if target == "" {
		target = inv.Currency
	}

	// One unconvertible line makes the whole view nominal: converted and
	// unconverted amounts are never added into one total.
	nominal := lo.ContainsBy(inv.Items, func(item domain.LineItem) bool {
		return item.VoidedAt == nil && Convert(item.LineTotal, item.Currency, target, settings.ExchangeRate).Nominal
	})

	out := &RenderedInvoice{
		Invoice:   inv,
		Currency:  target,
		Lines:     make([]RenderedLine, 0, len(inv.Items)),
		Subtotal:  decimal.Zero,
		TaxAmount: decimal.Zero,
		Nominal:   nominal,
	}
	if nominal {
		out.Currency = domain.CurrencyUSD
	}
	for _, item := range inv.Items {
		conv := Convert(item.LineTotal, item.Currency, target, settings.ExchangeRate)
		if nominal {
			conv = Conversion{Amount: item.LineTotal, Currency: item.Currency, Nominal: true}
		}
		out.Lines = append(out.Lines, RenderedLine{LineItem: item, Display: conv})
		if item.VoidedAt != nil {
			continue
		}
		if item.IsTax() {
			out.TaxAmount = out.TaxAmount.Add(conv.Amount)
		} else {
			out.Subtotal = out.Subtotal.Add(conv.Amount)
		}
	}

	out.Subtotal = domain.Money(out.Subtotal)
	out.TaxAmount = domain.Money(out.TaxAmount)
	out.TotalAmount = out.Subtotal.Add(out.TaxAmount)
	out.RoundedTotal = RoundInvoiceTotal(out.TotalAmount, out.Currency)
	return out, nil
}
