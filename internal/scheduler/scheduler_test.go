package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/rmateo1203/AdminiRed-sub000/internal/audit/repository"
	auditservice "github.com/rmateo1203/AdminiRed-sub000/internal/audit/service"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	ledgerservice "github.com/rmateo1203/AdminiRed-sub000/internal/ledger/service"
	"github.com/rmateo1203/AdminiRed-sub000/internal/notification"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:scheduler%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE installations (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'requested',
			monthly_price_cents INTEGER NOT NULL DEFAULT 0,
			activated_at DATETIME,
			contract_id TEXT UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE billing_plans (
			id INTEGER PRIMARY KEY,
			installation_id INTEGER NOT NULL UNIQUE,
			customer_id INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			due_day INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
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

func newTestScheduler(t *testing.T, db *gorm.DB, at time.Time) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	return New(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clock.Fixed(at),
		Cfg:   config.Config{Currency: "MXN", JobBatchSize: 2},
		LedgerSvc: ledgerservice.NewService(ledgerservice.Params{
			Log:   log,
			GenID: node,
		}),
		Outbox: notification.NewOutbox(db, node),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
	})
}

func seedPlan(t *testing.T, db *gorm.DB, planID, installationID, customerID, amountCents int64, dueDay int, planActive bool, installationStatus string, now time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO installations (id, customer_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		installationID, customerID, installationStatus, now, now,
	).Error; err != nil {
		t.Fatalf("seed installation: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO billing_plans (id, installation_id, customer_id, amount_cents, due_day, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		planID, installationID, customerID, amountCents, dueDay, planActive, now, now,
	).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}

func countRows(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return count
}

func TestGenerateInvoicesCreatesOnePerActivePlan(t *testing.T) {
	now := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, now)

	// Batch size is 2, so five plans exercise keyset pagination.
	for i := int64(1); i <= 5; i++ {
		seedPlan(t, db, i, i+100, i+200, 50000, 15, true, "active", now)
	}

	result, err := sched.GenerateInvoices(context.Background(), 2025, time.March)
	if err != nil {
		t.Fatalf("GenerateInvoices: %v", err)
	}
	if result.Created != 5 || result.Skipped != 0 || result.Errors != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if got := countRows(t, db, `SELECT COUNT(1) FROM invoices WHERE period_year = 2025 AND period_month = 3`); got != 5 {
		t.Fatalf("expected 5 invoices, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM invoices WHERE due_date = ?`, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)); got != 5 {
		t.Fatalf("expected all due dates on day 15, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM ledger_entries WHERE source_type = 'invoice'`); got != 5 {
		t.Fatalf("expected 5 ledger entries, got %d", got)
	}
}

func TestGenerateInvoicesRerunSkipsExisting(t *testing.T) {
	now := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, now)
	seedPlan(t, db, 1, 101, 201, 50000, 15, true, "active", now)

	first, err := sched.GenerateInvoices(context.Background(), 2025, time.March)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("expected 1 created, got %+v", first)
	}

	second, err := sched.GenerateInvoices(context.Background(), 2025, time.March)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 || second.Skipped != 1 {
		t.Fatalf("expected rerun to skip, got %+v", second)
	}

	if got := countRows(t, db, `SELECT COUNT(1) FROM invoices`); got != 1 {
		t.Fatalf("expected 1 invoice, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM ledger_entries`); got != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", got)
	}
}

func TestGenerateInvoicesClampsDueDay(t *testing.T) {
	now := time.Date(2025, time.February, 1, 6, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, now)
	seedPlan(t, db, 1, 101, 201, 50000, 31, true, "active", now)

	if _, err := sched.GenerateInvoices(context.Background(), 2025, time.February); err != nil {
		t.Fatalf("GenerateInvoices: %v", err)
	}

	var due time.Time
	if err := db.Raw(`SELECT due_date FROM invoices LIMIT 1`).Scan(&due).Error; err != nil {
		t.Fatalf("read due date: %v", err)
	}
	want := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("expected due date %s, got %s", want, due)
	}
}

func TestGenerateInvoicesSkipsInactivePlansAndInstallations(t *testing.T) {
	now := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, now)

	seedPlan(t, db, 1, 101, 201, 50000, 15, true, "active", now)
	seedPlan(t, db, 2, 102, 202, 50000, 15, false, "active", now)
	seedPlan(t, db, 3, 103, 203, 50000, 15, true, "suspended", now)

	result, err := sched.GenerateInvoices(context.Background(), 2025, time.March)
	if err != nil {
		t.Fatalf("GenerateInvoices: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("expected only the active pair to bill, got %+v", result)
	}
}

func TestGenerateInvoicesIncludesContractInConcept(t *testing.T) {
	now := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, now)

	seedPlan(t, db, 1, 101, 201, 50000, 15, true, "active", now)
	if err := db.Exec(`UPDATE installations SET contract_id = 'INST-202503-00001' WHERE id = 101`).Error; err != nil {
		t.Fatalf("set contract: %v", err)
	}

	if _, err := sched.GenerateInvoices(context.Background(), 2025, time.March); err != nil {
		t.Fatalf("GenerateInvoices: %v", err)
	}

	var concept string
	if err := db.Raw(`SELECT concept FROM invoices LIMIT 1`).Scan(&concept).Error; err != nil {
		t.Fatalf("read concept: %v", err)
	}
	if concept != "Monthly service 2025-03 (INST-202503-00001)" {
		t.Fatalf("unexpected concept %q", concept)
	}
}

func TestSweepOverdueMarksOnlyPastDuePending(t *testing.T) {
	asOf := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	db := openTestDB(t)
	sched := newTestScheduler(t, db, asOf)

	seed := func(id int64, status string, due time.Time) {
		t.Helper()
		if err := db.Exec(
			`INSERT INTO invoices (id, customer_id, amount_cents, period_month, period_year, due_date, status, created_at, updated_at)
			 VALUES (?, ?, 50000, ?, 2025, ?, ?, ?, ?)`,
			id, id+200, id, due, status, asOf, asOf,
		).Error; err != nil {
			t.Fatalf("seed invoice: %v", err)
		}
	}
	pastDue := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	futureDue := time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC)
	seed(1, "pending", pastDue)
	seed(2, "pending", futureDue)
	seed(3, "paid", pastDue)
	seed(4, "cancelled", pastDue)

	swept, err := sched.SweepOverdue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	var status string
	if err := db.Raw(`SELECT status FROM invoices WHERE id = 1`).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "overdue" {
		t.Fatalf("expected invoice 1 overdue, got %s", status)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM invoices WHERE status = 'overdue'`); got != 1 {
		t.Fatalf("expected exactly 1 overdue invoice, got %d", got)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM billing_events WHERE event_type = ?`, notification.EventInvoiceOverdue); got != 1 {
		t.Fatalf("expected 1 overdue event, got %d", got)
	}

	// Replaying the sweep finds nothing new and emits nothing new.
	swept, err = sched.SweepOverdue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("SweepOverdue replay: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected 0 swept on replay, got %d", swept)
	}
	if got := countRows(t, db, `SELECT COUNT(1) FROM billing_events`); got != 1 {
		t.Fatalf("expected 1 event after replay, got %d", got)
	}
}
