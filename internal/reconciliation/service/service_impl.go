package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	reconciliationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	PaymentSvc paymentdomain.Service
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	auditSvc   auditdomain.Service
}

func NewService(p Params) reconciliationdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reconciliation.service"),
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		auditSvc:   p.AuditSvc,
	}
}

type completedTxnRow struct {
	TransactionID snowflake.ID
	InvoiceID     snowflake.ID
	Provider      string
	InvoiceStatus string
}

type orphanPaidRow struct {
	InvoiceID     snowflake.ID
	PaymentMethod string
}

func (s *Service) FindInconsistencies(ctx context.Context) ([]reconciliationdomain.Inconsistency, error) {
	var found []reconciliationdomain.Inconsistency

	var stale []completedTxnRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT gt.id AS transaction_id, gt.invoice_id, gt.provider, i.status AS invoice_status
		 FROM gateway_transactions gt
		 JOIN invoices i ON i.id = gt.invoice_id
		 WHERE gt.status = 'completed' AND i.status IN ('pending', 'overdue')
		 ORDER BY gt.id`,
	).Scan(&stale).Error
	if err != nil {
		return nil, err
	}
	for _, row := range stale {
		txnID := row.TransactionID
		found = append(found, reconciliationdomain.Inconsistency{
			Kind:          reconciliationdomain.KindCompletedTxnUnpaidInvoice,
			InvoiceID:     row.InvoiceID,
			TransactionID: &txnID,
			Provider:      row.Provider,
			Detail:        fmt.Sprintf("transaction completed but invoice is %s", row.InvoiceStatus),
		})
	}

	var orphans []orphanPaidRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT i.id AS invoice_id, i.payment_method
		 FROM invoices i
		 WHERE i.status = 'paid'
		   AND i.payment_method IN ('mercadopago', 'stripe', 'paypal')
		   AND NOT EXISTS (
		       SELECT 1 FROM gateway_transactions gt
		       WHERE gt.invoice_id = i.id AND gt.status IN ('completed', 'refunded')
		   )
		 ORDER BY i.id`,
	).Scan(&orphans).Error
	if err != nil {
		return nil, err
	}
	for _, row := range orphans {
		found = append(found, reconciliationdomain.Inconsistency{
			Kind:      reconciliationdomain.KindPaidInvoiceWithoutTxn,
			InvoiceID: row.InvoiceID,
			Detail:    fmt.Sprintf("invoice paid via %s with no completed transaction", row.PaymentMethod),
		})
	}
	return found, nil
}

func (s *Service) Reconcile(ctx context.Context, autoFix bool) (reconciliationdomain.Report, error) {
	report := reconciliationdomain.Report{CheckedAt: s.clock.Now()}

	found, err := s.FindInconsistencies(ctx)
	if err != nil {
		return report, err
	}

	for i := range found {
		item := &found[i]
		if !autoFix || item.Kind != reconciliationdomain.KindCompletedTxnUnpaidInvoice {
			continue
		}
		// Re-running the paid cascade is the unambiguous repair: the
		// provider confirmed the money, only the local transition was lost.
		transitioned, err := s.paymentSvc.ApplyCompletedCascadeTx(ctx, *item.TransactionID)
		if err != nil {
			s.log.Error("reconcile fix failed",
				zap.String("transaction_id", item.TransactionID.String()),
				zap.String("invoice_id", item.InvoiceID.String()),
				zap.Error(err),
			)
			continue
		}
		item.Fixed = true
		report.Fixed++
		if transitioned {
			s.auditSvc.Record(ctx, auditdomain.ActorTypeSystem, auditdomain.ActionReconcileFixed, "invoice", item.InvoiceID, map[string]any{
				"transaction_id": item.TransactionID.String(),
				"kind":           string(item.Kind),
			})
		}
	}

	report.Inconsistencies = found
	if len(found) > 0 {
		s.log.Warn("reconciliation found inconsistencies",
			zap.Int("total", len(found)),
			zap.Int("fixed", report.Fixed),
		)
	}
	return report, nil
}
