package memory

import (
	"cmp"
	"context"
	"package-billing-service/internal/domain"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of every billing port.
// One mutex guards all state, so the invoice claim is atomic.
type Store struct {
	mu            sync.Mutex
	packages      map[string]*domain.Package
	rules         map[string]*domain.FeeRule
	ruleSequences map[string]int
	dutyFees      map[string]*domain.DutyFee
	invoices      map[string]*domain.Invoice
	sequences     map[string]int64
	settings      map[string]domain.CompanySettings
	audit         []domain.AuditEntry
}

func NewStore() *Store {
	return &Store{
		packages:      map[string]*domain.Package{},
		rules:         map[string]*domain.FeeRule{},
		ruleSequences: map[string]int{},
		dutyFees:      map[string]*domain.DutyFee{},
		invoices:      map[string]*domain.Invoice{},
		sequences:     map[string]int64{},
		settings:      map[string]domain.CompanySettings{},
	}
}

// PutPackage inserts or replaces a package snapshot.
func (s *Store) PutPackage(p *domain.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[p.ID] = p.Clone()
}

// PutSettings inserts or replaces company settings.
func (s *Store) PutSettings(settings domain.CompanySettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.CompanyID] = settings
}

// UpsertPackage writes an intake snapshot and keeps any existing billing link.
func (s *Store) UpsertPackage(_ context.Context, p *domain.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := p.Clone()
	if existing, ok := s.packages[p.ID]; ok {
		c.InvoiceID = existing.InvoiceID
	}
	s.packages[p.ID] = c
	return nil
}

func (s *Store) UpsertSettings(_ context.Context, settings domain.CompanySettings) error {
	s.PutSettings(settings.WithDefaults())
	return nil
}

// AuditEntries returns the recorded audit trail in insertion order.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}

func (s *Store) GetPackage(_ context.Context, companyID, packageID string) (*domain.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[packageID]
	if !ok || p.CompanyID != companyID {
		return nil, domain.NewNotFoundError("package", packageID)
	}
	return p.Clone(), nil
}

func (s *Store) ListUnbilled(_ context.Context, companyID, userID string) ([]*domain.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Package, 0)
	for _, p := range s.packages {
		if p.CompanyID == companyID && p.UserID == userID && !p.Billed() {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Package) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) CompanySettings(_ context.Context, companyID string) (domain.CompanySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[companyID]
	if !ok {
		return domain.CompanySettings{CompanyID: companyID}.WithDefaults(), nil
	}
	return settings.WithDefaults(), nil
}

func (s *Store) Record(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) ListFeeRules(_ context.Context, companyID string) ([]*domain.FeeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.FeeRule, 0)
	for _, r := range s.rules {
		if r.CompanyID == companyID {
			out = append(out, r.Clone())
		}
	}
	domain.SortRules(out)
	return out, nil
}

func (s *Store) GetFeeRule(_ context.Context, companyID, id string) (*domain.FeeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok || r.CompanyID != companyID {
		return nil, domain.NewNotFoundError("fee rule", id)
	}
	return r.Clone(), nil
}

func (s *Store) CreateFeeRule(_ context.Context, rule *domain.FeeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.CompanyID == rule.CompanyID && r.Code == rule.Code {
			return domain.NewConflictError("fee rule code %s already exists", rule.Code)
		}
	}
	if rule.Sequence == 0 {
		rule.Sequence = s.ruleSequences[rule.CompanyID] + 1
	}
	s.ruleSequences[rule.CompanyID] = max(s.ruleSequences[rule.CompanyID], rule.Sequence)
	s.rules[rule.ID] = rule.Clone()
	return nil
}

func (s *Store) UpdateFeeRule(_ context.Context, rule *domain.FeeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[rule.ID]
	if !ok || r.CompanyID != rule.CompanyID {
		return domain.NewNotFoundError("fee rule", rule.ID)
	}
	s.ruleSequences[rule.CompanyID] = max(s.ruleSequences[rule.CompanyID], rule.Sequence)
	s.rules[rule.ID] = rule.Clone()
	return nil
}

func (s *Store) DeleteFeeRule(_ context.Context, companyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok || r.CompanyID != companyID {
		return domain.NewNotFoundError("fee rule", id)
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) ListDutyFees(_ context.Context, companyID, packageID string) ([]*domain.DutyFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.DutyFee, 0)
	for _, f := range s.dutyFees {
		if f.CompanyID == companyID && f.PackageID == packageID {
			c := *f
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *domain.DutyFee) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetDutyFee(_ context.Context, companyID, id string) (*domain.DutyFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.dutyFees[id]
	if !ok || f.CompanyID != companyID {
		return nil, domain.NewNotFoundError("duty fee", id)
	}
	c := *f
	return &c, nil
}

func (s *Store) CreateDutyFee(_ context.Context, fee *domain.DutyFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *fee
	s.dutyFees[fee.ID] = &c
	return nil
}

func (s *Store) UpdateDutyFee(_ context.Context, fee *domain.DutyFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.dutyFees[fee.ID]
	if !ok || f.CompanyID != fee.CompanyID {
		return domain.NewNotFoundError("duty fee", fee.ID)
	}
	c := *fee
	s.dutyFees[fee.ID] = &c
	return nil
}

func (s *Store) DeleteDutyFee(_ context.Context, companyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.dutyFees[id]
	if !ok || f.CompanyID != companyID {
		return domain.NewNotFoundError("duty fee", id)
	}
	delete(s.dutyFees, id)
	return nil
}

// CreateInvoice checks every claim before changing anything, so a failed
// call leaves no package linked and consumes no invoice number.
func (s *Store) CreateInvoice(_ context.Context, inv *domain.Invoice, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range inv.PackageIDs {
		p, ok := s.packages[id]
		if !ok || p.CompanyID != inv.CompanyID || p.UserID != inv.UserID || p.Billed() {
			return domain.NewConflictError("package %s is not available for billing", id)
		}
	}

	s.sequences[inv.CompanyID]++
	inv.InvoiceNumber = domain.FormatInvoiceNumber(prefix, s.sequences[inv.CompanyID])

	for _, id := range inv.PackageIDs {
		s.packages[id].InvoiceID = lo.ToPtr(inv.ID)
	}
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, companyID, id string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	return inv.Clone(), nil
}

func (s *Store) CancelInvoice(_ context.Context, companyID, id string, from domain.InvoiceStatus, at time.Time) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.invoiceInStatus(companyID, id, from)
	if err != nil {
		return nil, err
	}

	inv.Status = domain.InvoiceStatusCancelled
	inv.CancelledAt = &at
	inv.UpdatedAt = at
	for i := range inv.Items {
		if inv.Items[i].VoidedAt == nil {
			inv.Items[i].VoidedAt = &at
		}
	}
	for _, p := range s.packages {
		if p.InvoiceID != nil && *p.InvoiceID == id {
			p.InvoiceID = nil
		}
	}
	return inv.Clone(), nil
}

func (s *Store) UpdateInvoiceStatus(_ context.Context, companyID, id string, from, to domain.InvoiceStatus, at time.Time) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.invoiceInStatus(companyID, id, from)
	if err != nil {
		return nil, err
	}
	inv.Status = to
	inv.UpdatedAt = at
	return inv.Clone(), nil
}

func (s *Store) invoiceInStatus(companyID, id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	if inv.Status != status {
		return nil, domain.NewConflictError("invoice %s changed status to %s", inv.InvoiceNumber, inv.Status)
	}
	return inv, nil
}

func (s *Store) InvoiceStats(_ context.Context, companyID string) ([]domain.InvoiceStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		status   domain.InvoiceStatus
		currency domain.Currency
	}
	agg := map[key]*domain.InvoiceStat{}
	for _, inv := range s.invoices {
		if inv.CompanyID != companyID || inv.Status == domain.InvoiceStatusCancelled {
			continue
		}
		k := key{inv.Status, inv.Currency}
		st, ok := agg[k]
		if !ok {
			st = &domain.InvoiceStat{Status: inv.Status, Currency: inv.Currency, TotalAmount: decimal.Zero}
			agg[k] = st
		}
		st.Count++
		st.TotalAmount = st.TotalAmount.Add(inv.TotalAmount)
	}

	out := make([]domain.InvoiceStat, 0, len(agg))
	for _, st := range agg {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b domain.InvoiceStat) int {
		if c := cmp.Compare(a.Status, b.Status); c != 0 {
			return c
		}
		return cmp.Compare(a.Currency, b.Currency)
	})
	return out, nil
}
