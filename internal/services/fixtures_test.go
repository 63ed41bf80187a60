package services

import (
	"context"
	"package-billing-service/internal/adapters/memory"
	"package-billing-service/internal/domain"
	"sync"
	"time"
)

const (
	companyA = "company-a"
	companyB = "company-b"
	customer = "user-1"
)

var staff = Caller{CompanyID: companyA, UserID: "staff-1"}

type fixture struct {
	store    *memory.Store
	rules    *FeeRuleService
	ledger   *DutyFeeLedger
	invoices *InvoiceService
	notifier *recordingNotifier
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.NewStore(),
		notifier: &recordingNotifier{sent: make(chan notification, 16)},
		now:      testNow,
	}
	clock := func() time.Time { return f.now }

	f.rules = &FeeRuleService{Rules: f.store, Audit: f.store, Now: clock}
	f.ledger = &DutyFeeLedger{Packages: f.store, Fees: f.store, Audit: f.store, Now: clock}
	f.invoices = &InvoiceService{
		Packages:      f.store,
		Rules:         f.store,
		DutyFees:      f.store,
		Invoices:      f.store,
		Settings:      f.store,
		Audit:         f.store,
		Notifier:      f.notifier,
		NotifyTimeout: time.Second,
		Now:           clock,
	}
	return f
}

func (f *fixture) addPackage(id string, mutate ...func(p *domain.Package)) *domain.Package {
	p := &domain.Package{
		ID:             id,
		CompanyID:      companyA,
		UserID:         customer,
		TrackingNumber: "TRK-" + id,
		Weight:         d("2"),
		DeclaredValue:  d("80"),
		Status:         domain.PackageStatusReceived,
		ReceivedDate:   daysAgo(1),
	}
	for _, m := range mutate {
		m(p)
	}
	f.store.PutPackage(p)
	return p
}

// mustRule creates a rule and advances the clock so creation order is stable.
func (f *fixture) mustRule(in FeeRuleInput) *domain.FeeRule {
	r, err := f.rules.Create(context.Background(), staff, in)
	if err != nil {
		panic(err)
	}
	f.now = f.now.Add(time.Second)
	return r
}

func fixedRule(code, name string, amount string) FeeRuleInput {
	return FeeRuleInput{
		Name:     name,
		Code:     code,
		FeeType:  domain.FeeTypeService,
		Method:   domain.MethodFixed,
		Amount:   d(amount),
		Currency: domain.CurrencyUSD,
	}
}

type notification struct {
	userID  string
	event   string
	payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent chan notification
}

func (n *recordingNotifier) Notify(_ context.Context, userID, event string, payload map[string]any) error {
	n.mu.Lock()
	err := n.err
	n.mu.Unlock()

	n.sent <- notification{userID: userID, event: event, payload: payload}
	return err
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}
