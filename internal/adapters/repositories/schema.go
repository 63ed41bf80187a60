package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`
	CREATE TABLE IF NOT EXISTS company_settings (
		company_id TEXT PRIMARY KEY,
		invoice_prefix TEXT NOT NULL DEFAULT 'INV',
		payment_term_days INTEGER NOT NULL DEFAULT 30,
		base_currency TEXT,
		target_currency TEXT,
		exchange_rate NUMERIC(14,6),
		rate_as_of TIMESTAMPTZ
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		tracking_number TEXT NOT NULL,
		weight NUMERIC(10,2) NOT NULL DEFAULT '0',
		declared_value NUMERIC(12,2) NOT NULL DEFAULT '0',
		item_count INTEGER NOT NULL DEFAULT 1,
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		received_date TIMESTAMPTZ,
		invoice_id TEXT
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_packages_company_user_invoice
	ON packages(company_id, user_id, invoice_id);
	`,
	`
	CREATE TABLE IF NOT EXISTS fee_rules (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		calculation_method TEXT NOT NULL,
		amount NUMERIC(12,4) NOT NULL,
		currency TEXT NOT NULL,
		applies_to TEXT NOT NULL DEFAULT '[]',
		tag_conditions TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		limits TEXT NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		sequence INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (company_id, code)
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS fee_rule_sequences (
		company_id TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS duty_fees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		custom_fee_type TEXT NOT NULL DEFAULT '',
		amount NUMERIC(12,2) NOT NULL,
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_duty_fees_company_package
	ON duty_fees(company_id, package_id);
	`,
	`
	CREATE TABLE IF NOT EXISTS invoice_sequences (
		company_id TEXT PRIMARY KEY,
		last_value BIGINT NOT NULL
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		invoice_number TEXT NOT NULL,
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		issue_date TIMESTAMPTZ NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		subtotal NUMERIC(14,2) NOT NULL,
		tax_amount NUMERIC(14,2) NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ,
		UNIQUE (company_id, invoice_number)
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_invoices_company_status
	ON invoices(company_id, status);
	`,
	`
	CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		position INTEGER NOT NULL,
		package_id TEXT,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL,
		line_total NUMERIC(14,2) NOT NULL,
		currency TEXT NOT NULL,
		voided_at TIMESTAMPTZ
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS invoice_packages (
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		package_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (invoice_id, package_id)
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	);
	`,
}

// InitSchema creates the billing tables if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
