package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *GatewayTransaction) (bool, error)
	FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*GatewayTransaction, error)
	FindTransactionByExternalRef(ctx context.Context, db *gorm.DB, externalID, intentID string) (*GatewayTransaction, error)
	// UpdateTransactionStatus moves a transaction between statuses with a
	// conditional write; it reports whether this call won the transition.
	UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to TransactionStatus, errorMessage *string, completedAt *time.Time) (bool, error)
}
