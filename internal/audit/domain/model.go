package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType represents who triggered an action.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Billing actions recorded in the audit trail.
const (
	ActionContractIssued   = "contract.issued"
	ActionInvoiceGenerated = "invoice.generated"
	ActionInvoiceOverdue   = "invoice.overdue"
	ActionPaymentReceived  = "payment.received"
	ActionPaymentFailed    = "payment.failed"
	ActionPaymentRefunded  = "payment.refunded"
	ActionReconcileFixed   = "reconcile.fixed"
)

// AuditLog captures an immutable record of a billing action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
