package domain

import "time"

const (
	AuditDutyFeeCreate   = "duty_fee.create"
	AuditDutyFeeUpdate   = "duty_fee.update"
	AuditDutyFeeDelete   = "duty_fee.delete"
	AuditInvoiceGenerate = "invoice.generate"
	AuditInvoiceCancel   = "invoice.cancel"
	AuditFeeRuleCreate   = "fee_rule.create"
	AuditFeeRuleUpdate   = "fee_rule.update"
	AuditFeeRuleDelete   = "fee_rule.delete"
)

// AuditEntry is an immutable record of a billing mutation.
type AuditEntry struct {
	ID         string
	UserID     string
	CompanyID  string
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	CreatedAt  time.Time
}
