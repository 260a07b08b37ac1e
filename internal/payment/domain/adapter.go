package domain

import (
	"context"
	"net/http"

	customerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/customer/domain"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
)

// CheckoutRequest carries everything a provider needs to build a checkout
// for one invoice.
type CheckoutRequest struct {
	Invoice        invoicedomain.Invoice
	Contact        customerdomain.Contact
	Currency       string
	ReturnURL      string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	ExternalID  string
	IntentID    string
	RedirectURL string
	RawResponse []byte
}

// Adapter is one external payment provider. Implementations are constructed
// once at startup from static credentials; provider selection happens by
// registry lookup, never by branching on a status string.
type Adapter interface {
	Provider() string
	// CreateCheckout builds the provider-side checkout/preference object.
	// No local state is written; the caller persists the transaction.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// VerifyStatus polls the provider for a known transaction's status.
	VerifyStatus(ctx context.Context, externalID string) (TransactionStatus, error)
	// VerifySignature authenticates a webhook payload.
	VerifySignature(payload []byte, headers http.Header) error
	// ParseEvent normalizes a webhook payload; unknown event types return
	// ErrEventIgnored so new provider events stay forward-compatible.
	ParseEvent(payload []byte) (*PaymentEvent, error)
	// Refund reverses a completed charge, fully or partially.
	Refund(ctx context.Context, externalID string, amountCents int64) error
}
