package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreateRequest describes a manually created invoice (outside the generation
// job, e.g. a one-off charge).
type CreateRequest struct {
	CustomerID     snowflake.ID
	InstallationID *snowflake.ID
	AmountCents    int64
	Concept        string
	PeriodMonth    int
	PeriodYear     int
	DueDate        time.Time
}

type Service interface {
	// GetByID loads an invoice, opportunistically correcting a pending
	// invoice past its due date to overdue.
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	// Create inserts a manually issued invoice, enforcing per-period
	// uniqueness.
	Create(ctx context.Context, req CreateRequest) (Invoice, error)
	// MarkPaidTx transitions the invoice to paid inside the caller's
	// transaction. It reports whether this call performed the transition;
	// an already-paid invoice is a no-op, not an error.
	MarkPaidTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, method PaymentMethod, externalRef *string, paidAt time.Time) (bool, error)
	// RecordManualPayment settles an invoice through a manual channel
	// (cash, bank transfer) without a gateway transaction.
	RecordManualPayment(ctx context.Context, invoiceID snowflake.ID, method PaymentMethod) (Invoice, error)
	// Cancel voids an unpaid invoice.
	Cancel(ctx context.Context, invoiceID snowflake.ID) error
	// CancelForRefundTx voids a paid invoice as part of a refund.
	CancelForRefundTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error
}

var (
	ErrInvalidInvoiceID     = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrDuplicatePeriod      = errors.New("duplicate_period_invoice")
	ErrInvoiceCancelled     = errors.New("invoice_cancelled")
	ErrInvoiceNotPaid       = errors.New("invoice_not_paid")
	ErrInvoiceNotPayable    = errors.New("invoice_not_payable")
	ErrNotManualMethod      = errors.New("not_manual_method")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
)
