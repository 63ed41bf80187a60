package ports

import (
	"context"
	"package-billing-service/internal/domain"
)

// Port: company-scoped settings, read-only to billing.
type SettingsRepository interface {
	// Return the company's settings; a company without a row gets defaults.
	CompanySettings(ctx context.Context, companyID string) (domain.CompanySettings, error)
}

// Port: append-only audit trail.
type AuditLog interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

// Port: best-effort delivery of customer notifications.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any) error
}
