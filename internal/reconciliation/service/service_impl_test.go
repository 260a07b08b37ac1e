package service

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/rmateo1203/AdminiRed-sub000/internal/audit/repository"
	auditservice "github.com/rmateo1203/AdminiRed-sub000/internal/audit/service"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	reconciliationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:reconciliation%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE invoices (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL,
			installation_id INTEGER,
			amount_cents INTEGER NOT NULL,
			concept TEXT NOT NULL DEFAULT '',
			period_month INTEGER NOT NULL,
			period_year INTEGER NOT NULL,
			due_date DATETIME NOT NULL,
			paid_at DATETIME,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT,
			external_ref TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE gateway_transactions (
			id INTEGER PRIMARY KEY,
			invoice_id INTEGER NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			external_id TEXT NOT NULL UNIQUE,
			external_intent_id TEXT,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			raw_response TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
	} {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// fakePaymentService repairs a missed paid-cascade by flipping the invoice
// row directly; the real cascade is covered by the payment service tests.
type fakePaymentService struct {
	db       *gorm.DB
	applied  []snowflake.ID
	applyErr error
}

func (f *fakePaymentService) CreatePaymentIntent(ctx context.Context, invoiceID snowflake.ID, provider, returnURL, cancelURL string) (paymentdomain.CheckoutResult, error) {
	return paymentdomain.CheckoutResult{}, nil
}

func (f *fakePaymentService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	return nil
}

func (f *fakePaymentService) VerifyTransaction(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	return "", nil
}

func (f *fakePaymentService) Refund(ctx context.Context, transactionID snowflake.ID, amountCents *int64) error {
	return nil
}

func (f *fakePaymentService) ApplyCompletedCascadeTx(ctx context.Context, transactionID snowflake.ID) (bool, error) {
	if f.applyErr != nil {
		return false, f.applyErr
	}
	f.applied = append(f.applied, transactionID)
	result := f.db.Exec(
		`UPDATE invoices
		 SET status = 'paid'
		 WHERE id = (SELECT invoice_id FROM gateway_transactions WHERE id = ?)
		   AND status IN ('pending', 'overdue')`,
		transactionID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func newTestService(t *testing.T, db *gorm.DB, payments paymentdomain.Service, at time.Time) reconciliationdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	return NewService(Params{
		DB:         db,
		Log:        log,
		Clock:      clock.Fixed(at),
		PaymentSvc: payments,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
	})
}

func seedInvoice(t *testing.T, db *gorm.DB, id int64, status string, method *string, now time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO invoices (id, customer_id, amount_cents, period_month, period_year, due_date, status, payment_method, created_at, updated_at)
		 VALUES (?, ?, 50000, ?, 2025, ?, ?, ?, ?, ?)`,
		id, id+100, id, now, status, method, now, now,
	).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
}

func seedTransaction(t *testing.T, db *gorm.DB, id, invoiceID int64, status string, now time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO gateway_transactions (id, invoice_id, provider, status, external_id, amount_cents, currency, created_at, updated_at)
		 VALUES (?, ?, 'stripe', ?, ?, 50000, 'MXN', ?, ?)`,
		id, invoiceID, status, fmt.Sprintf("ext-%d", id), now, now,
	).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func TestFindInconsistenciesDetectsBothKinds(t *testing.T) {
	now := time.Date(2025, time.April, 1, 3, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	fake := &fakePaymentService{db: db}
	svc := newTestService(t, db, fake, now)

	stripe := "stripe"
	cash := "cash"
	// Completed transaction whose invoice never flipped to paid.
	seedInvoice(t, db, 1, "pending", nil, now)
	seedTransaction(t, db, 11, 1, "completed", now)
	// Gateway-paid invoice with no completed transaction behind it.
	seedInvoice(t, db, 2, "paid", &stripe, now)
	// Healthy rows that must not be reported.
	seedInvoice(t, db, 3, "paid", &stripe, now)
	seedTransaction(t, db, 13, 3, "completed", now)
	seedInvoice(t, db, 4, "paid", &cash, now)

	found, err := svc.FindInconsistencies(context.Background())
	if err != nil {
		t.Fatalf("FindInconsistencies: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 inconsistencies, got %d: %+v", len(found), found)
	}
	if found[0].Kind != reconciliationdomain.KindCompletedTxnUnpaidInvoice || found[0].InvoiceID != 1 {
		t.Fatalf("unexpected first inconsistency: %+v", found[0])
	}
	if found[1].Kind != reconciliationdomain.KindPaidInvoiceWithoutTxn || found[1].InvoiceID != 2 {
		t.Fatalf("unexpected second inconsistency: %+v", found[1])
	}
}

func TestReconcileWithoutAutoFixOnlyReports(t *testing.T) {
	now := time.Date(2025, time.April, 1, 3, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	fake := &fakePaymentService{db: db}
	svc := newTestService(t, db, fake, now)

	seedInvoice(t, db, 1, "pending", nil, now)
	seedTransaction(t, db, 11, 1, "completed", now)

	report, err := svc.Reconcile(context.Background(), false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Inconsistencies) != 1 || report.Fixed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(fake.applied) != 0 {
		t.Fatalf("expected no repairs, got %v", fake.applied)
	}
}

func TestReconcileAutoFixRepairsMissedCascadeOnly(t *testing.T) {
	now := time.Date(2025, time.April, 1, 3, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	fake := &fakePaymentService{db: db}
	svc := newTestService(t, db, fake, now)

	stripe := "stripe"
	seedInvoice(t, db, 1, "pending", nil, now)
	seedTransaction(t, db, 11, 1, "completed", now)
	// Orphan paid invoice: report-only, voiding revenue is a human decision.
	seedInvoice(t, db, 2, "paid", &stripe, now)

	report, err := svc.Reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Inconsistencies) != 2 || report.Fixed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(fake.applied) != 1 || fake.applied[0] != 11 {
		t.Fatalf("expected transaction 11 repaired, got %v", fake.applied)
	}

	var status string
	if err := db.Raw(`SELECT status FROM invoices WHERE id = 1`).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "paid" {
		t.Fatalf("expected invoice 1 paid after repair, got %s", status)
	}
	for _, item := range report.Inconsistencies {
		if item.Kind == reconciliationdomain.KindPaidInvoiceWithoutTxn && item.Fixed {
			t.Fatal("orphan paid invoice must never be auto-fixed")
		}
	}
}
