package api

import (
	"net/http"
	"package-billing-service/internal/api/handlers"
	"package-billing-service/internal/services"

	"go.uber.org/zap"
)

// Services groups what the HTTP layer depends on.
type Services struct {
	FeeRules *services.FeeRuleService
	DutyFees *services.DutyFeeLedger
	Invoices *services.InvoiceService
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(svc Services, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	rules := &handlers.FeeRuleHandler{Rules: svc.FeeRules}
	duty := &handlers.DutyFeeHandler{Ledger: svc.DutyFees}
	invoices := &handlers.InvoiceHandler{Invoices: svc.Invoices}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("GET /fee-rules", rules.List)
	mux.HandleFunc("POST /fee-rules", rules.Create)
	mux.HandleFunc("PUT /fee-rules/{id}", rules.Update)
	mux.HandleFunc("DELETE /fee-rules/{id}", rules.Delete)

	mux.HandleFunc("GET /packages/{packageID}/duty-fees", duty.List)
	mux.HandleFunc("POST /packages/{packageID}/duty-fees", duty.Create)
	mux.HandleFunc("GET /packages/{packageID}/duty-fees/total", duty.Total)
	mux.HandleFunc("GET /packages/{packageID}/duty-fees/grouped", duty.Grouped)
	mux.HandleFunc("PUT /duty-fees/{id}", duty.Update)
	mux.HandleFunc("DELETE /duty-fees/{id}", duty.Delete)

	mux.HandleFunc("POST /invoices/preview", invoices.Preview)
	mux.HandleFunc("POST /invoices", invoices.Generate)
	mux.HandleFunc("POST /users/{userID}/invoices", invoices.GenerateForUser)
	mux.HandleFunc("GET /invoices/stats", invoices.Stats)
	mux.HandleFunc("GET /invoices/{id}", invoices.Get)
	mux.HandleFunc("POST /invoices/{id}/cancel", invoices.Cancel)
	mux.HandleFunc("POST /invoices/{id}/finalize", invoices.Finalize)
	mux.HandleFunc("POST /invoices/{id}/pay", invoices.MarkPaid)
	mux.HandleFunc("POST /invoices/{id}/overdue", invoices.MarkOverdue)

	if log == nil {
		log = zap.L()
	}
	return requestIDMiddleware(log, loggingMiddleware(recoverMiddleware(mux)))
}
