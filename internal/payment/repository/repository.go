package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the gorm-backed payment repository.
func Provide() paymentdomain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) InsertEvent(ctx context.Context, db *gorm.DB, event *paymentdomain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO gateway_webhook_events (id, provider, provider_event_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*paymentdomain.WebhookEvent, error) {
	var event paymentdomain.WebhookEvent
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_webhook_events
		 SET processed_at = ?
		 WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	).Error
}

func (r *gormRepository) InsertTransaction(ctx context.Context, db *gorm.DB, txn *paymentdomain.GatewayTransaction) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO gateway_transactions (id, invoice_id, provider, status, external_id, external_intent_id,
		                                   amount_cents, currency, raw_response, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		txn.ID,
		txn.InvoiceID,
		txn.Provider,
		txn.Status,
		txn.ExternalID,
		txn.ExternalIntentID,
		txn.AmountCents,
		txn.Currency,
		txn.RawResponse,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormRepository) FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.GatewayTransaction, error) {
	var txn paymentdomain.GatewayTransaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// FindTransactionByExternalRef looks up by external id first, then by the
// provider's payment-intent id; some providers only echo one of them.
func (r *gormRepository) FindTransactionByExternalRef(ctx context.Context, db *gorm.DB, externalID, intentID string) (*paymentdomain.GatewayTransaction, error) {
	externalID = strings.TrimSpace(externalID)
	intentID = strings.TrimSpace(intentID)

	var txn paymentdomain.GatewayTransaction
	if externalID != "" {
		err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&txn).Error
		if err == nil {
			return &txn, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if intentID != "" {
		err := db.WithContext(ctx).Where("external_intent_id = ?", intentID).First(&txn).Error
		if err == nil {
			return &txn, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *gormRepository) UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to paymentdomain.TransactionStatus, errorMessage *string, completedAt *time.Time) (bool, error) {
	now := time.Now().UTC()
	result := db.WithContext(ctx).Exec(
		`UPDATE gateway_transactions
		 SET status = ?, error_message = ?, completed_at = COALESCE(completed_at, ?), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		errorMessage,
		completedAt,
		now,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
