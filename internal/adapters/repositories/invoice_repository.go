package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
	"time"

	"github.com/shopspring/decimal"
)

// SQL-backed implementation of the InvoiceRepository port.
//
// Packages are claimed with a conditional UPDATE inside the invoice
// transaction; the row lock taken by the first writer makes a concurrent
// claim on the same package see invoice_id already set and affect no rows.
type InvoiceRepository struct{ conn }

func (s *InvoiceRepository) CreateInvoice(ctx context.Context, inv *domain.Invoice, prefix string) (err error) {
	defer obs.Time(ctx, "invoices.Create")(&err)

	if err := s.check("create invoice"); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create invoice: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claim := s.Dialect.Rebind(`
	UPDATE packages
	SET invoice_id = ?
	WHERE id = ? AND company_id = ? AND user_id = ? AND invoice_id IS NULL;
	`)
	for _, pkgID := range inv.PackageIDs {
		res, err := tx.ExecContext(ctx, claim, inv.ID, pkgID, inv.CompanyID, inv.UserID)
		if err != nil {
			return fmt.Errorf("create invoice: claim package %s: %w", pkgID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("create invoice: claim package %s: rows affected: %w", pkgID, err)
		}
		if n == 0 {
			return domain.NewConflictError("package %s is not available for billing", pkgID)
		}
	}

	var seq int64
	nextSeq := s.Dialect.Rebind(`
	INSERT INTO invoice_sequences (company_id, last_value)
	VALUES (?, 1)
	ON CONFLICT (company_id) DO UPDATE SET last_value = invoice_sequences.last_value + 1
	RETURNING last_value;
	`)
	if err := tx.QueryRowContext(ctx, nextSeq, inv.CompanyID).Scan(&seq); err != nil {
		return fmt.Errorf("create invoice: allocate number: %w", err)
	}
	number := domain.FormatInvoiceNumber(prefix, seq)

	insertInvoice := s.Dialect.Rebind(`
	INSERT INTO invoices (
		id, company_id, user_id, invoice_number, status, currency,
		issue_date, due_date, subtotal, tax_amount, total_amount, notes,
		created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	_, err = tx.ExecContext(ctx, insertInvoice,
		inv.ID, inv.CompanyID, inv.UserID, number, string(inv.Status), string(inv.Currency),
		inv.IssueDate.UTC(), inv.DueDate.UTC(), inv.Subtotal, inv.TaxAmount, inv.TotalAmount, inv.Notes,
		inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create invoice: insert invoice: %w", err)
	}

	insertItem, err := tx.PrepareContext(ctx, s.Dialect.Rebind(`
	INSERT INTO invoice_items (
		id, invoice_id, position, package_id, type, description,
		quantity, unit_price, line_total, currency
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`))
	if err != nil {
		return fmt.Errorf("create invoice: prepare item insert: %w", err)
	}
	defer insertItem.Close()

	for i, it := range inv.Items {
		_, err := insertItem.ExecContext(ctx,
			it.ID, inv.ID, i, nullString(it.PackageID), string(it.Type), it.Description,
			it.Quantity, it.UnitPrice, it.LineTotal, string(it.Currency),
		)
		if err != nil {
			return fmt.Errorf("create invoice: insert item #%d: %w", i+1, err)
		}
	}

	linkPackage := s.Dialect.Rebind(`
	INSERT INTO invoice_packages (invoice_id, package_id, position) VALUES (?, ?, ?);
	`)
	for i, pkgID := range inv.PackageIDs {
		if _, err := tx.ExecContext(ctx, linkPackage, inv.ID, pkgID, i); err != nil {
			return fmt.Errorf("create invoice: record package %s: %w", pkgID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create invoice: commit tx: %w", err)
	}

	inv.InvoiceNumber = number
	return nil
}

const invoiceColumns = `
	id,
	company_id,
	user_id,
	invoice_number,
	status,
	currency,
	issue_date,
	due_date,
	subtotal,
	tax_amount,
	total_amount,
	notes,
	created_at,
	updated_at,
	cancelled_at
`

func (s *InvoiceRepository) GetInvoice(ctx context.Context, companyID, id string) (_ *domain.Invoice, err error) {
	defer obs.Time(ctx, "invoices.Get")(&err)

	if err := s.check("get invoice"); err != nil {
		return nil, err
	}

	var (
		inv       domain.Invoice
		cancelled sql.NullTime
	)
	q := `SELECT` + invoiceColumns + `FROM invoices WHERE id = ? AND company_id = ?;`
	err = s.queryRow(ctx, q, id, companyID).Scan(
		&inv.ID, &inv.CompanyID, &inv.UserID, &inv.InvoiceNumber, &inv.Status, &inv.Currency,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount, &inv.Notes,
		&inv.CreatedAt, &inv.UpdatedAt, &cancelled,
	)
	if isNoRows(err) {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: scan row: %w", err)
	}
	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	inv.CancelledAt = timePtr(cancelled)

	if inv.Items, err = s.items(ctx, inv.ID); err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv.PackageIDs, err = s.packageIDs(ctx, inv.ID); err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (s *InvoiceRepository) items(ctx context.Context, invoiceID string) ([]domain.LineItem, error) {
	q := `
	SELECT id, package_id, type, description, quantity, unit_price, line_total, currency, voided_at
	FROM invoice_items
	WHERE invoice_id = ?
	ORDER BY position;
	`
	rows, err := s.query(ctx, q, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice_items table: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0, 8)
	for rows.Next() {
		var (
			it     domain.LineItem
			pkgID  sql.NullString
			voided sql.NullTime
		)
		err := rows.Scan(&it.ID, &pkgID, &it.Type, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.LineTotal, &it.Currency, &voided)
		if err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		it.PackageID = stringPtr(pkgID)
		it.VoidedAt = timePtr(voided)
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoice item iteration: %w", err)
	}
	return items, nil
}

func (s *InvoiceRepository) packageIDs(ctx context.Context, invoiceID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT package_id FROM invoice_packages WHERE invoice_id = ? ORDER BY position;`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice_packages table: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invoice package: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoice package iteration: %w", err)
	}
	return ids, nil
}

// CancelInvoice voids items and releases packages in one transaction.
// invoice_packages keeps the history of what the invoice covered.
func (s *InvoiceRepository) CancelInvoice(ctx context.Context, companyID, id string, from domain.InvoiceStatus, at time.Time) (_ *domain.Invoice, err error) {
	defer obs.Time(ctx, "invoices.Cancel")(&err)

	if err := s.check("cancel invoice"); err != nil {
		return nil, err
	}

	at = at.UTC()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.Dialect.Rebind(`
	UPDATE invoices
	SET status = ?, cancelled_at = ?, updated_at = ?
	WHERE id = ? AND company_id = ? AND status = ?;
	`), string(domain.InvoiceStatusCancelled), at, at, id, companyID, string(from))
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: update status: %w", err)
	}
	if err := s.statusChanged(ctx, tx, res, companyID, id, from); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, s.Dialect.Rebind(`
	UPDATE invoice_items SET voided_at = ? WHERE invoice_id = ? AND voided_at IS NULL;
	`), at, id)
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: void items: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.Dialect.Rebind(`
	UPDATE packages SET invoice_id = NULL WHERE invoice_id = ? AND company_id = ?;
	`), id, companyID)
	if err != nil {
		return nil, fmt.Errorf("cancel invoice: release packages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cancel invoice: commit tx: %w", err)
	}

	return s.GetInvoice(ctx, companyID, id)
}

func (s *InvoiceRepository) UpdateInvoiceStatus(ctx context.Context, companyID, id string, from, to domain.InvoiceStatus, at time.Time) (*domain.Invoice, error) {
	if err := s.check("update invoice status"); err != nil {
		return nil, err
	}

	res, err := s.exec(ctx, `
	UPDATE invoices
	SET status = ?, updated_at = ?
	WHERE id = ? AND company_id = ? AND status = ?;
	`, string(to), at.UTC(), id, companyID, string(from))
	if err != nil {
		return nil, fmt.Errorf("update invoice status: exec: %w", err)
	}
	if err := s.statusChanged(ctx, s.DB, res, companyID, id, from); err != nil {
		return nil, err
	}

	return s.GetInvoice(ctx, companyID, id)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// statusChanged tells a missing invoice apart from one whose status moved
// under a conditional update. q must be the transaction when one is open.
func (s *InvoiceRepository) statusChanged(ctx context.Context, q rowQuerier, res sql.Result, companyID, id string, from domain.InvoiceStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("invoice %s: rows affected: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, s.Dialect.Rebind(`SELECT status FROM invoices WHERE id = ? AND company_id = ?;`), id, companyID).Scan(&status)
	if isNoRows(err) {
		return domain.NewNotFoundError("invoice", id)
	}
	if err != nil {
		return fmt.Errorf("invoice %s: read status: %w", id, err)
	}
	return domain.NewConflictError("invoice %s is %s, expected %s", id, status, from)
}

// InvoiceStats aggregates active invoices only: the status filter is the
// single place cancelled invoices are excluded. Totals are summed as decimals
// here rather than with SQL SUM, which SQLite evaluates in floating point.
func (s *InvoiceRepository) InvoiceStats(ctx context.Context, companyID string) (_ []domain.InvoiceStat, err error) {
	defer obs.Time(ctx, "invoices.Stats")(&err)

	if err := s.check("invoice stats"); err != nil {
		return nil, err
	}

	q := `
	SELECT status, currency, total_amount
	FROM invoices
	WHERE company_id = ? AND status IN (?, ?, ?, ?)
	ORDER BY status, currency;
	`
	rows, err := s.query(ctx, q, companyID,
		string(domain.InvoiceStatusDraft), string(domain.InvoiceStatusIssued),
		string(domain.InvoiceStatusPaid), string(domain.InvoiceStatusOverdue),
	)
	if err != nil {
		return nil, fmt.Errorf("invoice stats: query invoices table: %w", err)
	}
	defer rows.Close()

	stats := make([]domain.InvoiceStat, 0, 8)
	for rows.Next() {
		var (
			status   domain.InvoiceStatus
			currency domain.Currency
			total    decimal.Decimal
		)
		if err := rows.Scan(&status, &currency, &total); err != nil {
			return nil, fmt.Errorf("invoice stats: scan row: %w", err)
		}

		n := len(stats)
		if n == 0 || stats[n-1].Status != status || stats[n-1].Currency != currency {
			stats = append(stats, domain.InvoiceStat{Status: status, Currency: currency, TotalAmount: decimal.Zero})
			n++
		}
		stats[n-1].Count++
		stats[n-1].TotalAmount = domain.Money(stats[n-1].TotalAmount.Add(total))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoice stats: row iteration: %w", err)
	}
	return stats, nil
}
