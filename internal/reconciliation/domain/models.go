package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind classifies a detected mismatch between invoices and gateway
// transactions.
type Kind string

const (
	// KindCompletedTxnUnpaidInvoice is a completed gateway transaction whose
	// invoice never transitioned to paid, typically a lost webhook.
	KindCompletedTxnUnpaidInvoice Kind = "completed_transaction_unpaid_invoice"
	// KindPaidInvoiceWithoutTxn is an invoice marked paid through a gateway
	// method with no completed transaction backing it.
	KindPaidInvoiceWithoutTxn Kind = "paid_invoice_without_transaction"
)

// Inconsistency is one detected mismatch.
type Inconsistency struct {
	Kind          Kind          `json:"kind"`
	InvoiceID     snowflake.ID  `json:"invoice_id"`
	TransactionID *snowflake.ID `json:"transaction_id,omitempty"`
	Provider      string        `json:"provider,omitempty"`
	Detail        string        `json:"detail"`
	Fixed         bool          `json:"fixed"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	CheckedAt       time.Time       `json:"checked_at"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Fixed           int             `json:"fixed"`
}

type Service interface {
	// FindInconsistencies detects mismatches without changing anything.
	FindInconsistencies(ctx context.Context) ([]Inconsistency, error)
	// Reconcile detects mismatches and, when autoFix is set, repairs the
	// ones with an unambiguous fix. Paid invoices without a backing
	// transaction are only reported; voiding recorded revenue is a human
	// decision.
	Reconcile(ctx context.Context, autoFix bool) (Report, error)
}
