package repositories

import (
	"context"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
)

// SQL-backed implementation of the DutyFeeRepository port.
type DutyFeeRepository struct{ conn }

const dutyFeeColumns = `
	id,
	company_id,
	package_id,
	fee_type,
	custom_fee_type,
	amount,
	currency,
	description,
	created_at,
	updated_at
`

func scanDutyFee(row interface{ Scan(...any) error }) (*domain.DutyFee, error) {
	var f domain.DutyFee
	err := row.Scan(
		&f.ID, &f.CompanyID, &f.PackageID, &f.FeeType, &f.CustomFeeType,
		&f.Amount, &f.Currency, &f.Description, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

func (s *DutyFeeRepository) ListDutyFees(ctx context.Context, companyID, packageID string) (_ []*domain.DutyFee, err error) {
	defer obs.Time(ctx, "dutyFees.List")(&err)

	if err := s.check("list duty fees"); err != nil {
		return nil, err
	}

	q := `SELECT` + dutyFeeColumns + `
	FROM duty_fees
	WHERE company_id = ? AND package_id = ?
	ORDER BY created_at, id;
	`
	rows, err := s.query(ctx, q, companyID, packageID)
	if err != nil {
		return nil, fmt.Errorf("list duty fees: query duty_fees table: %w", err)
	}
	defer rows.Close()

	fees := make([]*domain.DutyFee, 0, 8)
	for rows.Next() {
		f, err := scanDutyFee(rows)
		if err != nil {
			return nil, fmt.Errorf("list duty fees: scan row: %w", err)
		}
		fees = append(fees, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list duty fees: row iteration: %w", err)
	}

	return fees, nil
}

func (s *DutyFeeRepository) GetDutyFee(ctx context.Context, companyID, id string) (*domain.DutyFee, error) {
	if err := s.check("get duty fee"); err != nil {
		return nil, err
	}

	q := `SELECT` + dutyFeeColumns + `FROM duty_fees WHERE id = ? AND company_id = ?;`
	f, err := scanDutyFee(s.queryRow(ctx, q, id, companyID))
	if isNoRows(err) {
		return nil, domain.NewNotFoundError("duty fee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get duty fee: scan row: %w", err)
	}
	return f, nil
}

func (s *DutyFeeRepository) CreateDutyFee(ctx context.Context, f *domain.DutyFee) error {
	if err := s.check("create duty fee"); err != nil {
		return err
	}

	q := `
	INSERT INTO duty_fees (` + dutyFeeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err := s.exec(ctx, q,
		f.ID, f.CompanyID, f.PackageID, f.FeeType, f.CustomFeeType,
		f.Amount, string(f.Currency), f.Description, f.CreatedAt.UTC(), f.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create duty fee: insert: %w", err)
	}
	return nil
}

// UpdateDutyFee never changes the owning package.
func (s *DutyFeeRepository) UpdateDutyFee(ctx context.Context, f *domain.DutyFee) error {
	if err := s.check("update duty fee"); err != nil {
		return err
	}

	q := `
	UPDATE duty_fees SET
		fee_type = ?,
		custom_fee_type = ?,
		amount = ?,
		currency = ?,
		description = ?,
		updated_at = ?
	WHERE id = ? AND company_id = ? AND package_id = ?;
	`
	res, err := s.exec(ctx, q,
		f.FeeType, f.CustomFeeType, f.Amount, string(f.Currency), f.Description,
		f.UpdatedAt.UTC(), f.ID, f.CompanyID, f.PackageID,
	)
	if err != nil {
		return fmt.Errorf("update duty fee: exec: %w", err)
	}
	return requireAffected(res, "duty fee", f.ID)
}

func (s *DutyFeeRepository) DeleteDutyFee(ctx context.Context, companyID, id string) error {
	if err := s.check("delete duty fee"); err != nil {
		return err
	}

	res, err := s.exec(ctx, `DELETE FROM duty_fees WHERE id = ? AND company_id = ?;`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete duty fee: exec: %w", err)
	}
	return requireAffected(res, "duty fee", id)
}
