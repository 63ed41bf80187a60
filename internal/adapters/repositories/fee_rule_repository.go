package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"package-billing-service/internal/domain"
	"package-billing-service/internal/platform/obs"
)

// SQL-backed implementation of the FeeRuleRepository port.
// Variant metadata, limits and tag sets are stored as JSON text.
type FeeRuleRepository struct{ conn }

const feeRuleColumns = `
	id,
	company_id,
	name,
	code,
	fee_type,
	calculation_method,
	amount,
	currency,
	applies_to,
	tag_conditions,
	metadata,
	limits,
	description,
	sequence,
	is_active,
	created_at,
	updated_at
`

func scanFeeRule(row interface{ Scan(...any) error }) (*domain.FeeRule, error) {
	var (
		r                                   domain.FeeRule
		appliesTo, tagConds, meta, limitsJS string
	)
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.Name, &r.Code, &r.FeeType, &r.Method,
		&r.Amount, &r.Currency, &appliesTo, &tagConds, &meta, &limitsJS,
		&r.Description, &r.Sequence, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSON(appliesTo, &r.AppliesTo); err != nil {
		return nil, fmt.Errorf("decode applies_to: %w", err)
	}
	if err := fromJSON(tagConds, &r.TagConditions); err != nil {
		return nil, fmt.Errorf("decode tag_conditions: %w", err)
	}
	if err := fromJSON(meta, &r.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := fromJSON(limitsJS, &r.Limits); err != nil {
		return nil, fmt.Errorf("decode limits: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

type feeRuleJSON struct {
	appliesTo, tagConditions, metadata, limits string
}

func encodeFeeRule(r *domain.FeeRule) (feeRuleJSON, error) {
	var (
		out feeRuleJSON
		err error
	)
	appliesTo := r.AppliesTo
	if appliesTo == nil {
		appliesTo = []string{}
	}
	if out.appliesTo, err = toJSON(appliesTo); err != nil {
		return out, fmt.Errorf("encode applies_to: %w", err)
	}
	if out.tagConditions, err = toJSON(r.TagConditions); err != nil {
		return out, fmt.Errorf("encode tag_conditions: %w", err)
	}
	if out.metadata, err = toJSON(r.Metadata); err != nil {
		return out, fmt.Errorf("encode metadata: %w", err)
	}
	if out.limits, err = toJSON(r.Limits); err != nil {
		return out, fmt.Errorf("encode limits: %w", err)
	}
	return out, nil
}

// Return the company's rules in evaluation order.
func (s *FeeRuleRepository) ListFeeRules(ctx context.Context, companyID string) (_ []*domain.FeeRule, err error) {
	defer obs.Time(ctx, "feeRules.List")(&err)

	if err := s.check("list fee rules"); err != nil {
		return nil, err
	}

	q := `SELECT` + feeRuleColumns + `
	FROM fee_rules
	WHERE company_id = ?
	ORDER BY sequence, created_at, id;
	`
	rows, err := s.query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list fee rules: query fee_rules table: %w", err)
	}
	defer rows.Close()

	rules := make([]*domain.FeeRule, 0, 16)
	for rows.Next() {
		r, err := scanFeeRule(rows)
		if err != nil {
			return nil, fmt.Errorf("list fee rules: scan row: %w", err)
		}
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fee rules: row iteration: %w", err)
	}

	return rules, nil
}

func (s *FeeRuleRepository) GetFeeRule(ctx context.Context, companyID, id string) (*domain.FeeRule, error) {
	if err := s.check("get fee rule"); err != nil {
		return nil, err
	}

	q := `SELECT` + feeRuleColumns + `FROM fee_rules WHERE id = ? AND company_id = ?;`
	r, err := scanFeeRule(s.queryRow(ctx, q, id, companyID))
	if isNoRows(err) {
		return nil, domain.NewNotFoundError("fee rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get fee rule: scan row: %w", err)
	}
	return r, nil
}

// CreateFeeRule inserts the rule. A zero Sequence is allocated from the
// company's counter row in the same transaction, so concurrent creates never
// share a sequence; an explicit one moves the counter forward when higher.
func (s *FeeRuleRepository) CreateFeeRule(ctx context.Context, r *domain.FeeRule) (err error) {
	defer obs.Time(ctx, "feeRules.Create")(&err)

	if err := s.check("create fee rule"); err != nil {
		return err
	}

	js, err := encodeFeeRule(r)
	if err != nil {
		return fmt.Errorf("create fee rule: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create fee rule: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq := r.Sequence
	if seq == 0 {
		if seq, err = s.allocateSequence(ctx, tx, r.CompanyID); err != nil {
			return fmt.Errorf("create fee rule: %w", err)
		}
	} else if err := s.advanceSequence(ctx, tx, r.CompanyID, seq); err != nil {
		return fmt.Errorf("create fee rule: %w", err)
	}

	q := s.Dialect.Rebind(`
	INSERT INTO fee_rules (` + feeRuleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	_, err = tx.ExecContext(ctx, q,
		r.ID, r.CompanyID, r.Name, r.Code, string(r.FeeType), string(r.Method),
		r.Amount, string(r.Currency), js.appliesTo, js.tagConditions, js.metadata, js.limits,
		r.Description, seq, r.IsActive, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return domain.NewConflictError("fee rule code %s already exists", r.Code)
	}
	if err != nil {
		return fmt.Errorf("create fee rule: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create fee rule: commit tx: %w", err)
	}

	r.Sequence = seq
	return nil
}

// allocateSequence bumps the company's counter row and returns the new value.
// The upsert holds the row until commit, serializing concurrent creators.
func (s *FeeRuleRepository) allocateSequence(ctx context.Context, tx *sql.Tx, companyID string) (int, error) {
	q := s.Dialect.Rebind(`
	INSERT INTO fee_rule_sequences (company_id, last_value)
	VALUES (?, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM fee_rules WHERE company_id = ?))
	ON CONFLICT (company_id) DO UPDATE SET last_value = fee_rule_sequences.last_value + 1
	RETURNING last_value;
	`)
	var seq int
	if err := tx.QueryRowContext(ctx, q, companyID, companyID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return seq, nil
}

// advanceSequence keeps the counter at or above an explicitly chosen sequence.
func (s *FeeRuleRepository) advanceSequence(ctx context.Context, tx *sql.Tx, companyID string, seq int) error {
	q := s.Dialect.Rebind(`
	INSERT INTO fee_rule_sequences (company_id, last_value)
	VALUES (?, ?)
	ON CONFLICT (company_id) DO UPDATE SET last_value = CASE
		WHEN excluded.last_value > fee_rule_sequences.last_value THEN excluded.last_value
		ELSE fee_rule_sequences.last_value
	END;
	`)
	if _, err := tx.ExecContext(ctx, q, companyID, seq); err != nil {
		return fmt.Errorf("advance sequence: %w", err)
	}
	return nil
}

// UpdateFeeRule rewrites everything but the code and creation time.
func (s *FeeRuleRepository) UpdateFeeRule(ctx context.Context, r *domain.FeeRule) (err error) {
	defer obs.Time(ctx, "feeRules.Update")(&err)

	if err := s.check("update fee rule"); err != nil {
		return err
	}

	js, err := encodeFeeRule(r)
	if err != nil {
		return fmt.Errorf("update fee rule: %w", err)
	}

	q := `
	UPDATE fee_rules SET
		name = ?,
		fee_type = ?,
		calculation_method = ?,
		amount = ?,
		currency = ?,
		applies_to = ?,
		tag_conditions = ?,
		metadata = ?,
		limits = ?,
		description = ?,
		sequence = ?,
		is_active = ?,
		updated_at = ?
	WHERE id = ? AND company_id = ?;
	`
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update fee rule: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.Dialect.Rebind(q),
		r.Name, string(r.FeeType), string(r.Method), r.Amount, string(r.Currency),
		js.appliesTo, js.tagConditions, js.metadata, js.limits, r.Description,
		r.Sequence, r.IsActive, r.UpdatedAt.UTC(), r.ID, r.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("update fee rule: exec: %w", err)
	}
	if err := requireAffected(res, "fee rule", r.ID); err != nil {
		return err
	}
	if err := s.advanceSequence(ctx, tx, r.CompanyID, r.Sequence); err != nil {
		return fmt.Errorf("update fee rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update fee rule: commit tx: %w", err)
	}
	return nil
}

func (s *FeeRuleRepository) DeleteFeeRule(ctx context.Context, companyID, id string) error {
	if err := s.check("delete fee rule"); err != nil {
		return err
	}

	res, err := s.exec(ctx, `DELETE FROM fee_rules WHERE id = ? AND company_id = ?;`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete fee rule: exec: %w", err)
	}
	return requireAffected(res, "fee rule", id)
}
