package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionStatus is the gateway transaction lifecycle state.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusRefunded   TransactionStatus = "refunded"
)

// CanTransition reports whether a transaction may move from one status to
// another. Completed is terminal except for refunds; refunded is terminal.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusCompleted:
		return to == StatusRefunded
	default:
		return false
	}
}

// GatewayTransaction records one payment attempt made through an external
// provider. Rows are never deleted; they are the financial audit trail.
type GatewayTransaction struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	InvoiceID        snowflake.ID      `gorm:"not null;index"`
	Provider         string            `gorm:"type:text;not null"`
	Status           TransactionStatus `gorm:"type:text;not null;default:'pending'"`
	ExternalID       string            `gorm:"type:text;not null;uniqueIndex"`
	ExternalIntentID *string           `gorm:"type:text;index"`
	AmountCents      int64             `gorm:"not null"`
	Currency         string            `gorm:"type:text;not null"`
	RawResponse      datatypes.JSON    `gorm:"type:jsonb"`
	ErrorMessage     *string           `gorm:"type:text"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt      *time.Time
}

// TableName sets the database table name.
func (GatewayTransaction) TableName() string { return "gateway_transactions" }

// WebhookEvent is the dedupe record for provider callbacks; replays of the
// same provider event id are detected before any state change.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt     *time.Time
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "gateway_webhook_events" }

// PaymentEvent is a provider callback normalized to internal terms.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	ExternalID      string
	IntentID        string
	Status          TransactionStatus
	AmountCents     int64
	Currency        string
	ErrorMessage    string
	OccurredAt      time.Time
}
