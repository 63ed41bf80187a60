package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
)

// SQL-backed implementation of the PackageDirectory port.
type PackageRepository struct{ conn }

const packageColumns = `
	id,
	company_id,
	user_id,
	tracking_number,
	weight,
	declared_value,
	item_count,
	tags,
	status,
	received_date,
	invoice_id
`

func scanPackage(row interface{ Scan(...any) error }) (*domain.Package, error) {
	var (
		p         domain.Package
		tags      string
		received  sql.NullTime
		invoiceID sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.UserID, &p.TrackingNumber,
		&p.Weight, &p.DeclaredValue, &p.ItemCount, &tags,
		&p.Status, &received, &invoiceID,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	p.ReceivedDate = timePtr(received)
	p.InvoiceID = stringPtr(invoiceID)
	return &p, nil
}

func (r *PackageRepository) GetPackage(ctx context.Context, companyID, packageID string) (_ *domain.Package, err error) {
	defer obs.Time(ctx, "packages.Get")(&err)

	if err := r.check("get package"); err != nil {
		return nil, err
	}

	q := `SELECT` + packageColumns + `FROM packages WHERE id = ? AND company_id = ?;`
	p, err := scanPackage(r.queryRow(ctx, q, packageID, companyID))
	if isNoRows(err) {
		return nil, domain.NewNotFoundError("package", packageID)
	}
	if err != nil {
		return nil, fmt.Errorf("get package: scan row: %w", err)
	}
	return p, nil
}

// Return the user's packages without an active invoice link.
func (r *PackageRepository) ListUnbilled(ctx context.Context, companyID, userID string) (_ []*domain.Package, err error) {
	defer obs.Time(ctx, "packages.ListUnbilled")(&err)

	if err := r.check("list unbilled packages"); err != nil {
		return nil, err
	}

	q := `SELECT` + packageColumns + `
	FROM packages
	WHERE company_id = ? AND user_id = ? AND invoice_id IS NULL
	ORDER BY id;
	`
	rows, err := r.query(ctx, q, companyID, userID)
	if err != nil {
		return nil, fmt.Errorf("list unbilled packages: query packages table: %w", err)
	}
	defer rows.Close()

	packages := make([]*domain.Package, 0, 16)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("list unbilled packages: scan row: %w", err)
		}
		packages = append(packages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unbilled packages: row iteration: %w", err)
	}

	return packages, nil
}

// UpsertPackage writes a package snapshot received from intake.
// The billing link is left untouched on update.
func (r *PackageRepository) UpsertPackage(ctx context.Context, p *domain.Package) error {
	if err := r.check("upsert package"); err != nil {
		return err
	}

	tags, err := toJSON(p.Tags)
	if err != nil {
		return fmt.Errorf("upsert package: encode tags: %w", err)
	}

	q := `
	INSERT INTO packages (
		id, company_id, user_id, tracking_number, weight, declared_value,
		item_count, tags, status, received_date
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		company_id = excluded.company_id,
		user_id = excluded.user_id,
		tracking_number = excluded.tracking_number,
		weight = excluded.weight,
		declared_value = excluded.declared_value,
		item_count = excluded.item_count,
		tags = excluded.tags,
		status = excluded.status,
		received_date = excluded.received_date;
	`
	_, err = r.exec(ctx, q,
		p.ID, p.CompanyID, p.UserID, p.TrackingNumber, p.Weight, p.DeclaredValue,
		p.ItemCount, tags, string(p.Status), nullTime(p.ReceivedDate),
	)
	if err != nil {
		return fmt.Errorf("upsert package id=%s: %w", p.ID, err)
	}
	return nil
}
