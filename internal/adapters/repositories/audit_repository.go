package repositories

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
)

// SQL-backed implementation of the AuditLog port. Entries are append-only.
type AuditRepository struct{ conn }

func (s *AuditRepository) Record(ctx context.Context, e domain.AuditEntry) error {
	if err := s.check("record audit entry"); err != nil {
		return err
	}

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	js, err := toJSON(details)
	if err != nil {
		return fmt.Errorf("record audit entry: encode details: %w", err)
	}

	q := `
	INSERT INTO audit_logs (
		id, company_id, user_id, action, entity_type, entity_id, details, created_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = s.exec(ctx, q,
		e.ID, e.CompanyID, e.UserID, e.Action, e.EntityType, e.EntityID, js, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record audit entry %s: %w", e.Action, err)
	}
	return nil
}

// ListAudit returns the company's entries for one entity, oldest first.
func (s *AuditRepository) ListAudit(ctx context.Context, companyID, entityID string) ([]domain.AuditEntry, error) {
	if err := s.check("list audit entries"); err != nil {
		return nil, err
	}

	q := `
	SELECT id, company_id, user_id, action, entity_type, entity_id, details, created_at
	FROM audit_logs
	WHERE company_id = ? AND entity_id = ?
	ORDER BY created_at, id;
	`
	rows, err := s.query(ctx, q, companyID, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: query audit_logs table: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e  domain.AuditEntry
			js string
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &js, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list audit entries: scan row: %w", err)
		}
		if err := fromJSON(js, &e.Details); err != nil {
			return nil, fmt.Errorf("list audit entries: decode details: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: row iteration: %w", err)
	}

	return entries, nil
}
