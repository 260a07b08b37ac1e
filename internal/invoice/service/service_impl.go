package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	ledgerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/ledger/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/notification"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	LedgerSvc ledgerdomain.Service
	Outbox    *notification.Outbox
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	currency  string
	ledgerSvc ledgerdomain.Service
	outbox    *notification.Outbox
	auditSvc  auditdomain.Service
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		currency:  p.Cfg.Currency,
		ledgerSvc: p.LedgerSvc,
		outbox:    p.Outbox,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	inv, err := s.load(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	now := s.clock.Now()
	touched := inv.Touch(now)
	if touched.Status == inv.Status {
		return inv, nil
	}

	if err := s.persistOverdue(ctx, touched, now); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return touched, nil
}

// persistOverdue corrects the stored row as a side effect of a read. The
// conditional update keeps it idempotent against a concurrent sweep; the
// outbox event and audit record are written only when this call actually
// performed the transition.
func (s *Service) persistOverdue(ctx context.Context, touched invoicedomain.Invoice, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			invoicedomain.StatusOverdue,
			now,
			touched.ID,
			invoicedomain.StatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeSystem, auditdomain.ActionInvoiceOverdue, "invoice", touched.ID, map[string]any{
			"due_date": touched.DueDate.Format(time.RFC3339),
		})
		return s.publishInvoiceEvent(ctx, tx, notification.EventInvoiceOverdue, touched)
	})
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (invoicedomain.Invoice, error) {
	if req.CustomerID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	if req.AmountCents <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}
	if req.PeriodMonth < 1 || req.PeriodMonth > 12 || req.PeriodYear < 2000 || req.PeriodYear > 2200 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPeriod
	}

	now := s.clock.Now()
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = invoicedomain.DueDateFor(req.PeriodYear, time.Month(req.PeriodMonth), now.Day())
	}

	inv := invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		CustomerID:     req.CustomerID,
		InstallationID: req.InstallationID,
		AmountCents:    req.AmountCents,
		Concept:        strings.TrimSpace(req.Concept),
		PeriodMonth:    req.PeriodMonth,
		PeriodYear:     req.PeriodYear,
		DueDate:        dueDate,
		Status:         invoicedomain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := InsertIdempotent(ctx, tx, &inv)
		if err != nil {
			return err
		}
		if !inserted {
			return invoicedomain.ErrDuplicatePeriod
		}
		return s.ledgerSvc.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeInvoice, inv.ID, s.currency, now, []ledgerdomain.PostingLine{
			{AccountCode: ledgerdomain.AccountCodeAccountsReceivable, AccountName: "Accounts Receivable", Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: inv.AmountCents},
			{AccountCode: ledgerdomain.AccountCodeRevenue, AccountName: "Revenue", Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: inv.AmountCents},
		})
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.auditSvc.Record(ctx, auditdomain.ActorTypeUser, auditdomain.ActionInvoiceGenerated, "invoice", inv.ID, map[string]any{
		"amount_cents": inv.AmountCents,
		"period_month": inv.PeriodMonth,
		"period_year":  inv.PeriodYear,
	})
	return inv, nil
}

// InsertIdempotent inserts an invoice unless a non-cancelled invoice already
// covers the same (customer, installation, period). It reports whether the
// row was inserted. The generation job shares this helper so concurrent
// workers converge on the partial unique index instead of racing.
func InsertIdempotent(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, customer_id, installation_id, amount_cents, concept,
		                       period_month, period_year, due_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (customer_id, COALESCE(installation_id, 0), period_year, period_month)
		 WHERE status <> 'cancelled' DO NOTHING`,
		inv.ID,
		inv.CustomerID,
		inv.InstallationID,
		inv.AmountCents,
		inv.Concept,
		inv.PeriodMonth,
		inv.PeriodYear,
		inv.DueDate,
		inv.Status,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) MarkPaidTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, method invoicedomain.PaymentMethod, externalRef *string, paidAt time.Time) (bool, error) {
	if invoiceID == 0 {
		return false, invoicedomain.ErrInvalidInvoiceID
	}
	if method == "" {
		return false, invoicedomain.ErrInvalidPaymentMethod
	}
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}

	// The conditional update is the serialization point: of two concurrent
	// callers only one moves the row out of pending/overdue.
	result := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, payment_method = ?, external_ref = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		invoicedomain.StatusPaid,
		paidAt,
		method,
		externalRef,
		paidAt,
		invoiceID,
		invoicedomain.StatusPending,
		invoicedomain.StatusOverdue,
	)
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := s.load(ctx, tx, invoiceID)
		if err != nil {
			return false, err
		}
		switch existing.Status {
		case invoicedomain.StatusPaid:
			return false, nil
		case invoicedomain.StatusCancelled:
			return false, invoicedomain.ErrInvoiceCancelled
		default:
			return false, invoicedomain.ErrInvoiceNotPayable
		}
	}

	inv, err := s.load(ctx, tx, invoiceID)
	if err != nil {
		return false, err
	}

	sourceType := ledgerdomain.SourceTypePayment
	if method.Manual() {
		sourceType = ledgerdomain.SourceTypeManualPayment
	}
	if err := s.ledgerSvc.CreateEntryTx(ctx, tx, sourceType, inv.ID, s.currency, paidAt, []ledgerdomain.PostingLine{
		{AccountCode: ledgerdomain.AccountCodeCashClearing, AccountName: "Cash / Clearing", Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: inv.AmountCents},
		{AccountCode: ledgerdomain.AccountCodeAccountsReceivable, AccountName: "Accounts Receivable", Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: inv.AmountCents},
	}); err != nil {
		return false, err
	}

	if err := s.publishInvoiceEvent(ctx, tx, notification.EventInvoicePaid, inv); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) RecordManualPayment(ctx context.Context, invoiceID snowflake.ID, method invoicedomain.PaymentMethod) (invoicedomain.Invoice, error) {
	if !method.Manual() {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotManualMethod
	}

	var transitioned bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		transitioned, err = s.MarkPaidTx(ctx, tx, invoiceID, method, nil, s.clock.Now())
		return err
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	inv, err := s.load(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if transitioned {
		s.auditSvc.Record(ctx, auditdomain.ActorTypeUser, auditdomain.ActionPaymentReceived, "invoice", invoiceID, map[string]any{
			"payment_method": string(method),
			"amount_cents":   inv.AmountCents,
		})
	}
	return inv, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID snowflake.ID) error {
	if invoiceID == 0 {
		return invoicedomain.ErrInvalidInvoiceID
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		invoicedomain.StatusCancelled,
		s.clock.Now(),
		invoiceID,
		invoicedomain.StatusPending,
		invoicedomain.StatusOverdue,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := s.load(ctx, s.db, invoiceID)
		if err != nil {
			return err
		}
		if existing.Status == invoicedomain.StatusCancelled {
			return nil
		}
		return invoicedomain.ErrInvoiceNotPayable
	}
	return nil
}

func (s *Service) CancelForRefundTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.StatusCancelled,
		s.clock.Now(),
		invoiceID,
		invoicedomain.StatusPaid,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := s.load(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if existing.Status == invoicedomain.StatusCancelled {
			return nil
		}
		return invoicedomain.ErrInvoiceNotPaid
	}
	return nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

func (s *Service) publishInvoiceEvent(ctx context.Context, tx *gorm.DB, eventType string, inv invoicedomain.Invoice) error {
	payload := notification.InvoicePayload{
		InvoiceID:   inv.ID.String(),
		CustomerID:  inv.CustomerID.String(),
		AmountCents: inv.AmountCents,
		PeriodMonth: inv.PeriodMonth,
		PeriodYear:  inv.PeriodYear,
	}
	if inv.PaymentMethod != nil {
		payload.PaymentMethod = string(*inv.PaymentMethod)
	}
	return s.outbox.PublishTx(ctx, tx, notification.Event{
		Type:      eventType,
		Payload:   payload.ToMap(),
		DedupeKey: eventType + ":" + inv.ID.String(),
	})
}
