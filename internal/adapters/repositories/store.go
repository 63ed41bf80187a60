package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"package-billing-service/internal/domain"
	"time"
)

// conn is shared by the SQL repositories.
type conn struct {
	DB      *sql.DB
	Dialect Dialect
}

func (c conn) check(op string) error {
	if c.DB == nil {
		return fmt.Errorf("%s: DB is nil", op)
	}
	return nil
}

func (c conn) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return c.DB.ExecContext(ctx, c.Dialect.Rebind(q), args...)
}

func (c conn) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, c.Dialect.Rebind(q), args...)
}

func (c conn) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return c.DB.QueryRowContext(ctx, c.Dialect.Rebind(q), args...)
}

// Repositories bundles every SQL-backed port over one connection.
type Repositories struct {
	Packages *PackageRepository
	FeeRules *FeeRuleRepository
	DutyFees *DutyFeeRepository
	Invoices *InvoiceRepository
	Settings *SettingsRepository
	Audit    *AuditRepository
}

func New(db *sql.DB, dialect Dialect) *Repositories {
	c := conn{DB: db, Dialect: dialect}
	return &Repositories{
		Packages: &PackageRepository{conn: c},
		FeeRules: &FeeRuleRepository{conn: c},
		DutyFees: &DutyFeeRepository{conn: c},
		Invoices: &InvoiceRepository{conn: c},
		Settings: &SettingsRepository{conn: c},
		Audit:    &AuditRepository{conn: c},
	}
}

func (r *Repositories) UpsertSettings(ctx context.Context, settings domain.CompanySettings) error {
	return r.Settings.UpsertSettings(ctx, settings)
}

func (r *Repositories) UpsertPackage(ctx context.Context, p *domain.Package) error {
	return r.Packages.UpsertPackage(ctx, p)
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// requireAffected maps a zero-row write to a NotFoundError.
func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", entity, id, err)
	}
	if n == 0 {
		return domain.NewNotFoundError(entity, id)
	}
	return nil
}
