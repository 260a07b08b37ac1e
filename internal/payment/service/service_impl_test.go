package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/rmateo1203/AdminiRed-sub000/internal/audit/repository"
	auditservice "github.com/rmateo1203/AdminiRed-sub000/internal/audit/service"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	customerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/customer/domain"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	invoiceservice "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/service"
	ledgerservice "github.com/rmateo1203/AdminiRed-sub000/internal/ledger/service"
	"github.com/rmateo1203/AdminiRed-sub000/internal/notification"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:payment%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
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
		`CREATE UNIQUE INDEX ux_invoices_period
		 ON invoices (customer_id, COALESCE(installation_id, 0), period_year, period_month)
		 WHERE status <> 'cancelled'`,
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
		`CREATE TABLE gateway_webhook_events (
			id INTEGER PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME,
			UNIQUE (provider, provider_event_id)
		)`,
		`CREATE TABLE ledger_accounts (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE ledger_entries (
			id INTEGER PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			currency TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE ledger_entry_lines (
			id INTEGER PRIMARY KEY,
			ledger_entry_id INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			direction TEXT NOT NULL,
			amount INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE billing_events (
			id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_billing_events_dedupe
		 ON billing_events (dedupe_key) WHERE dedupe_key IS NOT NULL`,
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

// fakeAdapter scripts provider behavior without network calls.
type fakeAdapter struct {
	name          string
	session       *paymentdomain.CheckoutSession
	checkoutErr   error
	pollStatus    paymentdomain.TransactionStatus
	pollErr       error
	signatureErr  error
	event         *paymentdomain.PaymentEvent
	parseErr      error
	refundErr     error
	refundAmounts []int64
}

func (f *fakeAdapter) Provider() string { return f.name }

func (f *fakeAdapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.session, nil
}

func (f *fakeAdapter) VerifyStatus(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	return f.pollStatus, f.pollErr
}

func (f *fakeAdapter) VerifySignature(payload []byte, headers http.Header) error {
	return f.signatureErr
}

func (f *fakeAdapter) ParseEvent(payload []byte) (*paymentdomain.PaymentEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

func (f *fakeAdapter) Refund(ctx context.Context, externalID string, amountCents int64) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refundAmounts = append(f.refundAmounts, amountCents)
	return nil
}

type fakeContacts struct {
	contact customerdomain.Contact
	err     error
}

func (f *fakeContacts) GetContact(ctx context.Context, customerID snowflake.ID) (customerdomain.Contact, error) {
	return f.contact, f.err
}

type testEnv struct {
	db       *gorm.DB
	svc      paymentdomain.Service
	invoices invoicedomain.Service
	adapter  *fakeAdapter
	contacts *fakeContacts
}

func newTestEnv(t *testing.T, at time.Time) *testEnv {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	db := openTestDB(t)
	log := zap.NewNop()
	fixed := clock.Fixed(at)
	cfg := config.Config{Currency: "MXN"}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{Log: log, GenID: node})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	outbox := notification.NewOutbox(db, node)
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fixed,
		Cfg:       cfg,
		LedgerSvc: ledgerSvc,
		Outbox:    outbox,
		AuditSvc:  auditSvc,
	})

	adapter := &fakeAdapter{
		name: "stripe",
		session: &paymentdomain.CheckoutSession{
			ExternalID:  "cs_test_1",
			IntentID:    "pi_test_1",
			RedirectURL: "https://checkout.example/cs_test_1",
			RawResponse: []byte(`{"id":"cs_test_1"}`),
		},
	}
	contacts := &fakeContacts{contact: customerdomain.Contact{Name: "Ana", Email: "ana@example.com"}}

	svc := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fixed,
		Cfg:        cfg,
		Registry:   adapters.NewRegistry(adapter),
		Repo:       repository.Provide(),
		InvoiceSvc: invoiceSvc,
		Contacts:   contacts,
		LedgerSvc:  ledgerSvc,
		AuditSvc:   auditSvc,
	})
	return &testEnv{db: db, svc: svc, invoices: invoiceSvc, adapter: adapter, contacts: contacts}
}

func (e *testEnv) createInvoice(t *testing.T) invoicedomain.Invoice {
	t.Helper()
	inv, err := e.invoices.Create(context.Background(), invoicedomain.CreateRequest{
		CustomerID:  7,
		AmountCents: 50000,
		PeriodMonth: 3,
		PeriodYear:  2025,
		DueDate:     time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func countRows(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return count
}

func invoiceStatus(t *testing.T, db *gorm.DB, id snowflake.ID) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM invoices WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read invoice status: %v", err)
	}
	return status
}

func txnStatus(t *testing.T, db *gorm.DB, externalID string) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM gateway_transactions WHERE external_id = ?`, externalID).Scan(&status).Error; err != nil {
		t.Fatalf("read transaction status: %v", err)
	}
	return status
}

func TestCreatePaymentIntentPersistsPendingTransaction(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)

	result, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "https://app.example/ok", "https://app.example/cancel")
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if result.ExternalID != "cs_test_1" || result.RedirectURL != "https://checkout.example/cs_test_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := txnStatus(t, env.db, "cs_test_1"); got != "pending" {
		t.Fatalf("expected pending transaction, got %s", got)
	}
}

func TestCreatePaymentIntentProviderValidation(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	ctx := context.Background()

	if _, err := env.svc.CreatePaymentIntent(ctx, inv.ID, "oxxo", "", ""); !errors.Is(err, paymentdomain.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
	// Known provider that has no configured adapter.
	if _, err := env.svc.CreatePaymentIntent(ctx, inv.ID, "paypal", "", ""); !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestCreatePaymentIntentRequiresContact(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	env.contacts.contact = customerdomain.Contact{Name: "Ana"}

	_, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", "")
	if !errors.Is(err, paymentdomain.ErrMissingContact) {
		t.Fatalf("expected ErrMissingContact, got %v", err)
	}
	if got := countRows(t, env.db, `SELECT COUNT(1) FROM gateway_transactions`); got != 0 {
		t.Fatalf("expected no transaction persisted, got %d", got)
	}
}

func TestCreatePaymentIntentRejectsCancelledInvoice(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	if err := env.invoices.Cancel(context.Background(), inv.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", "")
	if !errors.Is(err, invoicedomain.ErrInvoiceCancelled) {
		t.Fatalf("expected ErrInvoiceCancelled, got %v", err)
	}
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.adapter.signatureErr = paymentdomain.ErrInvalidSignature

	err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if got := countRows(t, env.db, `SELECT COUNT(1) FROM gateway_webhook_events`); got != 0 {
		t.Fatalf("expected no event recorded, got %d", got)
	}
}

func TestIngestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.adapter.parseErr = paymentdomain.ErrEventIgnored

	if err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("expected ignored event to ack, got %v", err)
	}
}

func TestIngestWebhookCompletedPaysInvoiceOnce(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	if _, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", ""); err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}

	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		Type:            "checkout.session.completed",
		ExternalID:      "cs_test_1",
		Status:          paymentdomain.StatusCompleted,
		OccurredAt:      now,
	}
	payload := []byte(`{"id":"evt_1"}`)

	if err := env.svc.IngestWebhook(context.Background(), "stripe", payload, http.Header{}); err != nil {
		t.Fatalf("IngestWebhook: %v", err)
	}
	if got := txnStatus(t, env.db, "cs_test_1"); got != "completed" {
		t.Fatalf("expected completed transaction, got %s", got)
	}
	if got := invoiceStatus(t, env.db, inv.ID); got != "paid" {
		t.Fatalf("expected paid invoice, got %s", got)
	}

	// Redelivery of the same provider event changes nothing.
	if err := env.svc.IngestWebhook(context.Background(), "stripe", payload, http.Header{}); err != nil {
		t.Fatalf("IngestWebhook redelivery: %v", err)
	}
	if got := countRows(t, env.db, `SELECT COUNT(1) FROM gateway_webhook_events`); got != 1 {
		t.Fatalf("expected 1 webhook event, got %d", got)
	}
	if got := countRows(t, env.db, `SELECT COUNT(1) FROM ledger_entries WHERE source_type = 'payment'`); got != 1 {
		t.Fatalf("expected 1 payment ledger entry, got %d", got)
	}
}

func TestIngestWebhookDropsOutOfOrderEvents(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	if _, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", ""); err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}

	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		ExternalID:      "cs_test_1",
		Status:          paymentdomain.StatusCompleted,
		OccurredAt:      now,
	}
	if err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{"id":"evt_1"}`), http.Header{}); err != nil {
		t.Fatalf("completed event: %v", err)
	}

	// A stale "processing" event arriving after completion is acknowledged
	// and dropped.
	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_2",
		ExternalID:      "cs_test_1",
		Status:          paymentdomain.StatusProcessing,
		OccurredAt:      now,
	}
	if err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{"id":"evt_2"}`), http.Header{}); err != nil {
		t.Fatalf("stale event: %v", err)
	}
	if got := txnStatus(t, env.db, "cs_test_1"); got != "completed" {
		t.Fatalf("expected status to stay completed, got %s", got)
	}
}

func TestIngestWebhookUnknownTransaction(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)

	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		ExternalID:      "cs_unknown",
		Status:          paymentdomain.StatusCompleted,
	}
	err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{"id":"evt_1"}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestVerifyTransactionAppliesPolledStatus(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	if _, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", ""); err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	env.adapter.pollStatus = paymentdomain.StatusCompleted

	status, err := env.svc.VerifyTransaction(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if status != paymentdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if got := invoiceStatus(t, env.db, inv.ID); got != "paid" {
		t.Fatalf("expected paid invoice after poll, got %s", got)
	}
}

func TestRefundFullAmountVoidsInvoice(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	result, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", "")
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}

	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		ExternalID:      "cs_test_1",
		Status:          paymentdomain.StatusCompleted,
		OccurredAt:      now,
	}
	if err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{"id":"evt_1"}`), http.Header{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := env.svc.Refund(context.Background(), result.TransactionID, nil); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := txnStatus(t, env.db, "cs_test_1"); got != "refunded" {
		t.Fatalf("expected refunded transaction, got %s", got)
	}
	if got := invoiceStatus(t, env.db, inv.ID); got != "cancelled" {
		t.Fatalf("expected cancelled invoice, got %s", got)
	}
	if got := countRows(t, env.db, `SELECT COUNT(1) FROM ledger_entries WHERE source_type = 'refund'`); got != 1 {
		t.Fatalf("expected 1 refund ledger entry, got %d", got)
	}
	if len(env.adapter.refundAmounts) != 1 || env.adapter.refundAmounts[0] != 0 {
		t.Fatalf("expected full refund call, got %v", env.adapter.refundAmounts)
	}
}

func TestRefundValidation(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	inv := env.createInvoice(t)
	result, err := env.svc.CreatePaymentIntent(context.Background(), inv.ID, "stripe", "", "")
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}

	// Pending transactions are not refundable.
	if err := env.svc.Refund(context.Background(), result.TransactionID, nil); !errors.Is(err, paymentdomain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable, got %v", err)
	}

	env.adapter.event = &paymentdomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		ExternalID:      "cs_test_1",
		Status:          paymentdomain.StatusCompleted,
		OccurredAt:      now,
	}
	if err := env.svc.IngestWebhook(context.Background(), "stripe", []byte(`{"id":"evt_1"}`), http.Header{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	over := int64(60000)
	if err := env.svc.Refund(context.Background(), result.TransactionID, &over); !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	zero := int64(0)
	if err := env.svc.Refund(context.Background(), result.TransactionID, &zero); !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
}
