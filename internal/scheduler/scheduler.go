package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	invoiceservice "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/service"
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

// Scheduler runs the periodic billing jobs: monthly invoice generation and
// the overdue sweep. Both are safe to re-run; generation converges on the
// per-period unique index and the sweep on conditional updates.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	batchSize int
	currency  string
	ledgerSvc ledgerdomain.Service
	outbox    *notification.Outbox
	auditSvc  auditdomain.Service
}

func New(p Params) *Scheduler {
	batchSize := p.Cfg.JobBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler"),
		genID:     p.GenID,
		clock:     p.Clock,
		batchSize: batchSize,
		currency:  p.Cfg.Currency,
		ledgerSvc: p.LedgerSvc,
		outbox:    p.Outbox,
		auditSvc:  p.AuditSvc,
	}
}

// GenerateResult summarizes one invoice generation run.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type planRow struct {
	PlanID         snowflake.ID
	InstallationID snowflake.ID
	CustomerID     snowflake.ID
	AmountCents    int64
	DueDay         int
	ContractID     *string
}

// GenerateInvoices creates the month's invoice for every active plan on an
// active installation. Plans whose period is already covered by a
// non-cancelled invoice are skipped; a failing plan is counted and the run
// continues.
func (s *Scheduler) GenerateInvoices(ctx context.Context, year int, month time.Month) (GenerateResult, error) {
	var result GenerateResult
	if month < time.January || month > time.December || year < 2000 || year > 2200 {
		return result, invoicedomain.ErrInvalidPeriod
	}

	var afterID snowflake.ID
	for {
		var batch []planRow
		err := s.db.WithContext(ctx).Raw(
			`SELECT bp.id AS plan_id, bp.installation_id, bp.customer_id, bp.amount_cents, bp.due_day,
			        inst.contract_id
			 FROM billing_plans bp
			 JOIN installations inst ON inst.id = bp.installation_id
			 WHERE bp.is_active AND inst.status = 'active' AND bp.id > ?
			 ORDER BY bp.id
			 LIMIT ?`,
			afterID,
			s.batchSize,
		).Scan(&batch).Error
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		for _, plan := range batch {
			created, err := s.generateForPlan(ctx, plan, year, month)
			if err != nil {
				result.Errors++
				s.log.Error("invoice generation failed for plan",
					zap.String("plan_id", plan.PlanID.String()),
					zap.String("installation_id", plan.InstallationID.String()),
					zap.Error(err),
				)
				continue
			}
			if created {
				result.Created++
			} else {
				result.Skipped++
			}
		}
		afterID = batch[len(batch)-1].PlanID
	}

	s.log.Info("invoice generation finished",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func (s *Scheduler) generateForPlan(ctx context.Context, plan planRow, year int, month time.Month) (bool, error) {
	now := s.clock.Now()
	concept := fmt.Sprintf("Monthly service %04d-%02d", year, int(month))
	if plan.ContractID != nil && *plan.ContractID != "" {
		concept = fmt.Sprintf("Monthly service %04d-%02d (%s)", year, int(month), *plan.ContractID)
	}

	installationID := plan.InstallationID
	inv := invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		CustomerID:     plan.CustomerID,
		InstallationID: &installationID,
		AmountCents:    plan.AmountCents,
		Concept:        concept,
		PeriodMonth:    int(month),
		PeriodYear:     year,
		DueDate:        invoicedomain.DueDateFor(year, month, plan.DueDay),
		Status:         invoicedomain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = invoiceservice.InsertIdempotent(ctx, tx, &inv)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return s.ledgerSvc.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeInvoice, inv.ID, s.currency, now, []ledgerdomain.PostingLine{
			{AccountCode: ledgerdomain.AccountCodeAccountsReceivable, AccountName: "Accounts Receivable", Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: inv.AmountCents},
			{AccountCode: ledgerdomain.AccountCodeRevenue, AccountName: "Revenue", Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: inv.AmountCents},
		})
	})
	if err != nil {
		return false, err
	}

	if inserted {
		s.auditSvc.Record(ctx, auditdomain.ActorTypeSystem, auditdomain.ActionInvoiceGenerated, "invoice", inv.ID, map[string]any{
			"installation_id": plan.InstallationID.String(),
			"amount_cents":    inv.AmountCents,
			"period_month":    inv.PeriodMonth,
			"period_year":     inv.PeriodYear,
		})
	}
	return inserted, nil
}

type sweepRow struct {
	ID          snowflake.ID
	CustomerID  snowflake.ID
	AmountCents int64
	PeriodMonth int
	PeriodYear  int
	DueDate     time.Time
}

// SweepOverdue marks every pending invoice past its due date as overdue and
// returns how many rows it transitioned.
func (s *Scheduler) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	total := 0
	var afterID snowflake.ID
	for {
		var batch []sweepRow
		err := s.db.WithContext(ctx).Raw(
			`SELECT id, customer_id, amount_cents, period_month, period_year, due_date
			 FROM invoices
			 WHERE status = 'pending' AND due_date < ? AND id > ?
			 ORDER BY id
			 LIMIT ?`,
			asOf,
			afterID,
			s.batchSize,
		).Scan(&batch).Error
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		for _, row := range batch {
			swept, err := s.sweepInvoice(ctx, row, asOf)
			if err != nil {
				return total, err
			}
			if swept {
				total++
			}
		}
		afterID = batch[len(batch)-1].ID
	}

	s.log.Info("overdue sweep finished",
		zap.Time("as_of", asOf),
		zap.Int("marked_overdue", total),
	)
	return total, nil
}

func (s *Scheduler) sweepInvoice(ctx context.Context, row sweepRow, asOf time.Time) (bool, error) {
	swept := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional so a payment or cancellation racing the sweep wins.
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			invoicedomain.StatusOverdue,
			asOf,
			row.ID,
			invoicedomain.StatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		swept = true
		return s.outbox.PublishTx(ctx, tx, notification.Event{
			Type: notification.EventInvoiceOverdue,
			Payload: notification.InvoicePayload{
				InvoiceID:   row.ID.String(),
				CustomerID:  row.CustomerID.String(),
				AmountCents: row.AmountCents,
				PeriodMonth: row.PeriodMonth,
				PeriodYear:  row.PeriodYear,
			}.ToMap(),
			DedupeKey: notification.EventInvoiceOverdue + ":" + row.ID.String(),
		})
	})
	if err != nil {
		return false, err
	}

	if swept {
		s.auditSvc.Record(ctx, auditdomain.ActorTypeSystem, auditdomain.ActionInvoiceOverdue, "invoice", row.ID, map[string]any{
			"due_date": row.DueDate.Format(time.RFC3339),
		})
	}
	return swept, nil
}
