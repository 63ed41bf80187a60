package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"package-billing-service/internal/adapters/memory"
	"package-billing-service/internal/api/dto"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/services"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCompany = "company-a"

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.NewStore()

	received := now.Add(-48 * time.Hour)
	store.PutPackage(&domain.Package{
		ID:             "pkg-1",
		CompanyID:      testCompany,
		UserID:         "user-1",
		TrackingNumber: "TRK-1",
		Weight:         decimal.NewFromInt(2),
		DeclaredValue:  decimal.NewFromInt(80),
		ItemCount:      1,
		Status:         domain.PackageStatusReceived,
		ReceivedDate:   &received,
	})

	invoices := &services.InvoiceService{
		Packages:      store,
		Rules:         store,
		DutyFees:      store,
		Invoices:      store,
		Settings:      store,
		Audit:         store,
		NotifyTimeout: time.Second,
		Now:           clock,
	}
	t.Cleanup(invoices.WaitNotifications)

	h := NewRouter(Services{
		FeeRules: &services.FeeRuleService{Rules: store, Audit: store, Now: clock},
		DutyFees: &services.DutyFeeLedger{Packages: store, Fees: store, Audit: store, Now: clock},
		Invoices: invoices,
	}, zap.NewNop())

	return &testServer{t: t, handler: h, store: store}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Company-ID", testCompany)
	req.Header.Set("X-User-ID", "staff-1")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestMissingCompanyHeader(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/fee-rules", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/invoices/inv-1/cancel", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(http.MethodDelete, "/invoices/preview", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFeeRuleEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"name":               "Handling",
		"code":               "HANDLING",
		"fee_type":           "handling",
		"calculation_method": "fixed",
		"amount":             "5.00",
		"currency":           "USD",
	}
	rec := s.do(http.MethodPost, "/fee-rules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[dto.FeeRuleResponse](t, rec)
	require.Equal(t, "HANDLING", created.Code)
	require.True(t, created.IsActive)
	require.Equal(t, 1, created.Sequence)

	rec = s.do(http.MethodPost, "/fee-rules", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/fee-rules", map[string]any{
		"name":               "X",
		"code":               "bad code",
		"fee_type":           "nope",
		"calculation_method": "percentage",
		"amount":             "-1",
		"currency":           "USD",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errRes := decode[struct {
		Fields []domain.FieldError `json:"fields"`
	}](t, rec)
	require.NotEmpty(t, errRes.Fields)

	body["name"] = "Handling fee"
	body["amount"] = "7.50"
	rec = s.do(http.MethodPut, "/fee-rules/"+created.ID, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[dto.FeeRuleResponse](t, rec)
	require.True(t, updated.Amount.Equal(dec("7.5")))

	rec = s.do(http.MethodGet, "/fee-rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ListFeeRulesResponse](t, rec)
	require.Len(t, list.FeeRules, 1)

	rec = s.do(http.MethodDelete, "/fee-rules/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, "/fee-rules/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDutyFeeEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/packages/pkg-1/duty-fees", map[string]any{
		"fee_type": "Electronics",
		"amount":   "12.00",
		"currency": "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fee := decode[dto.DutyFeeResponse](t, rec)
	require.Equal(t, "pkg-1", fee.PackageID)
	require.Equal(t, "Electronics Duty", fee.DisplayName)

	rec = s.do(http.MethodPost, "/packages/pkg-1/duty-fees", map[string]any{
		"fee_type": "Customs",
		"amount":   "1500",
		"currency": "JMD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/packages/pkg-1/duty-fees/total?currency=usd", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	total := decode[dto.DutyFeeTotalResponse](t, rec)
	require.True(t, total.Total.Equal(dec("12")))

	rec = s.do(http.MethodGet, "/packages/pkg-1/duty-fees/grouped", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grouped := decode[dto.GroupedDutyFeesResponse](t, rec)
	require.Len(t, grouped.Groups, 2)

	rec = s.do(http.MethodPut, "/duty-fees/"+fee.ID, map[string]any{
		"package_id": "pkg-1",
		"fee_type":   "Electronics",
		"amount":     "0",
		"currency":   "USD",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodDelete, "/duty-fees/"+fee.ID+"?package_id=pkg-2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/duty-fees/"+fee.ID+"?package_id=pkg-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/packages/pkg-1/duty-fees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[dto.ListDutyFeesResponse](t, rec).DutyFees, 1)

	rec = s.do(http.MethodGet, "/packages/missing/duty-fees", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/fee-rules", map[string]any{
		"name":               "Service",
		"code":               "SERVICE",
		"fee_type":           "service",
		"calculation_method": "fixed",
		"amount":             "5",
		"currency":           "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/packages/pkg-1/duty-fees", map[string]any{
		"fee_type": "Electronics",
		"amount":   "10",
		"currency": "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := map[string]any{"user_id": "user-1", "package_ids": []string{"pkg-1"}}

	rec = s.do(http.MethodPost, "/invoices/preview", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[dto.PreviewResponse](t, rec)
	require.True(t, preview.TotalAmount.Equal(dec("15")), preview.TotalAmount.String())
	require.Equal(t, domain.CurrencyUSD, preview.Currency)

	rec = s.do(http.MethodPost, "/invoices", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[dto.InvoiceResponse](t, rec)
	require.Equal(t, "INV-000001", inv.InvoiceNumber)
	require.Equal(t, domain.InvoiceStatusIssued, inv.Status)
	require.True(t, inv.TotalAmount.Equal(dec("15")))

	rec = s.do(http.MethodPost, "/invoices", req)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/invoices/"+inv.ID+"?currency=USD", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rendered := decode[dto.RenderedInvoiceResponse](t, rec)
	require.Equal(t, domain.CurrencyUSD, rendered.DisplayCurrency)
	require.True(t, rendered.RoundedTotal.Equal(dec("20")))

	rec = s.do(http.MethodGet, "/invoices/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[dto.InvoiceStatsResponse](t, rec)
	require.Len(t, stats.Stats, 1)
	require.Equal(t, 1, stats.Stats[0].Count)

	rec = s.do(http.MethodPost, "/invoices/"+inv.ID+"/overdue", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/invoices/"+inv.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[dto.InvoiceResponse](t, rec)
	require.Equal(t, domain.InvoiceStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	rec = s.do(http.MethodPost, "/invoices/"+inv.ID+"/pay", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/users/user-1/invoices", map[string]any{"is_draft": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[dto.InvoiceResponse](t, rec)
	require.Equal(t, domain.InvoiceStatusDraft, draft.Status)
	require.Equal(t, []string{"pkg-1"}, draft.PackageIDs)

	rec = s.do(http.MethodPost, "/invoices/"+draft.ID+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, domain.InvoiceStatusIssued, decode[dto.InvoiceResponse](t, rec).Status)

	rec = s.do(http.MethodPost, "/invoices/"+draft.ID+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.InvoiceStatusPaid, decode[dto.InvoiceResponse](t, rec).Status)

	rec = s.do(http.MethodGet, "/invoices/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceRequestValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/invoices", `{"user_id": "user-1", "package_ids": []}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/invoices", `{"user_id": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/invoices", `{"unknown": 1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/invoices", `{} {}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/users/nobody/invoices", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
