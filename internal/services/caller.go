package services

import (
	"context"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"package-billing-service/internal/ports"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller identifies the tenant and the acting user of a request.
type Caller struct {
	CompanyID string
	UserID    string
}

func (c Caller) validate() error {
	if strings.TrimSpace(c.CompanyID) == "" {
		return domain.NewValidationError("companyId", "is required")
	}
	return nil
}

// recordAudit writes an audit entry; failures are logged and never returned.
func recordAudit(ctx context.Context, audit ports.AuditLog, c Caller, action, entityType, entityID string, details map[string]any, now time.Time) {
	if audit == nil {
		return
	}

	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		UserID:     c.UserID,
		CompanyID:  c.CompanyID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  now,
	}
	if err := audit.Record(ctx, entry); err != nil {
		obs.FromContext(ctx).Warn("audit record failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func nowFunc(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return func() time.Time { return time.Now().UTC() }
}
