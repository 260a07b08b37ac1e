package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// CheckoutResult is returned to the "pay now" caller.
type CheckoutResult struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	ExternalID    string       `json:"external_id"`
	RedirectURL   string       `json:"redirect_url"`
}

type Service interface {
	// CreatePaymentIntent builds a provider checkout for a payable invoice
	// and persists the pending gateway transaction. On provider failure
	// nothing is persisted.
	CreatePaymentIntent(ctx context.Context, invoiceID snowflake.ID, provider, returnURL, cancelURL string) (CheckoutResult, error)
	// IngestWebhook verifies, dedupes and applies one provider callback.
	// Reprocessing a delivered event is a no-op.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
	// VerifyTransaction polls the provider and applies the current status;
	// used by reconciliation instead of relying solely on webhooks.
	VerifyTransaction(ctx context.Context, externalID string) (TransactionStatus, error)
	// Refund reverses a completed transaction (fully, or partially when
	// amountCents is non-nil) and voids the owning invoice.
	Refund(ctx context.Context, transactionID snowflake.ID, amountCents *int64) error
	// ApplyCompletedCascadeTx re-applies the paid-cascade for a completed
	// transaction; reconciliation uses it to repair missed cascades.
	ApplyCompletedCascadeTx(ctx context.Context, transactionID snowflake.ID) (bool, error)
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrProviderNotFound     = errors.New("provider_not_found")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrEventIgnored         = errors.New("event_ignored")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrMissingContact       = errors.New("missing_customer_contact")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrNotRefundable        = errors.New("transaction_not_refundable")
	ErrGatewayRejected      = errors.New("gateway_rejected")
	ErrGatewayTimeout       = errors.New("gateway_timeout")
)
