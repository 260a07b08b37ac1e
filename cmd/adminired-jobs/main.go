package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/rmateo1203/AdminiRed-sub000/internal/audit"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/customer"
	"github.com/rmateo1203/AdminiRed-sub000/internal/invoice"
	"github.com/rmateo1203/AdminiRed-sub000/internal/ledger"
	"github.com/rmateo1203/AdminiRed-sub000/internal/logger"
	"github.com/rmateo1203/AdminiRed-sub000/internal/migration"
	"github.com/rmateo1203/AdminiRed-sub000/internal/notification"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment"
	"github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation"
	reconciliationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/scheduler"
	"github.com/rmateo1203/AdminiRed-sub000/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Exit codes: 0 success, 1 completed with per-item problems, 2 fatal.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		jobName  = flag.String("job", "", "job to run: generate_invoices, sweep_overdue, reconcile")
		year     = flag.Int("year", 0, "billing year for generate_invoices (default: current)")
		month    = flag.Int("month", 0, "billing month for generate_invoices (default: current)")
		asOfFlag = flag.String("as-of", "", "RFC3339 cutoff for sweep_overdue (default: now)")
		autoFix  = flag.Bool("auto-fix", false, "repair fixable inconsistencies during reconcile")
		cronSpec = flag.String("cron", "", "cron expression; when set the job repeats until interrupted")
	)
	flag.Parse()

	switch *jobName {
	case "generate_invoices", "sweep_overdue", "reconcile":
	default:
		fmt.Fprintf(os.Stderr, "unknown job %q\n", *jobName)
		flag.Usage()
		return exitFatal
	}

	var asOf time.Time
	if *asOfFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *asOfFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -as-of: %v\n", err)
			return exitFatal
		}
		asOf = parsed
	}

	var (
		sched    *scheduler.Scheduler
		reconSvc reconciliationdomain.Service
		log      *zap.Logger
	)
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(2)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),
		audit.Module,
		notification.Module,
		ledger.Module,
		customer.Module,
		invoice.Module,
		payment.Module,
		reconciliation.Module,
		scheduler.Module,
		fx.Populate(&sched, &reconSvc, &log),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return exitFatal
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			log.Warn("shutdown error", zap.Error(err))
		}
	}()

	runOnce := func(ctx context.Context) int {
		switch *jobName {
		case "generate_invoices":
			now := time.Now().UTC()
			y, m := *year, *month
			if y == 0 {
				y = now.Year()
			}
			if m == 0 {
				m = int(now.Month())
			}
			result, err := sched.GenerateInvoices(ctx, y, time.Month(m))
			if err != nil {
				log.Error("generate_invoices failed", zap.Error(err))
				return exitFatal
			}
			if result.Errors > 0 {
				return exitPartial
			}
			return exitOK

		case "sweep_overdue":
			if _, err := sched.SweepOverdue(ctx, asOf); err != nil {
				log.Error("sweep_overdue failed", zap.Error(err))
				return exitFatal
			}
			return exitOK

		case "reconcile":
			report, err := reconSvc.Reconcile(ctx, *autoFix)
			if err != nil {
				log.Error("reconcile failed", zap.Error(err))
				return exitFatal
			}
			if len(report.Inconsistencies) > report.Fixed {
				return exitPartial
			}
			return exitOK
		}
		return exitFatal
	}

	if *cronSpec == "" {
		return runOnce(context.Background())
	}

	// Scheduled mode: repeat until SIGINT/SIGTERM. Per-run outcomes are
	// logged; the process exit code only reflects setup.
	runner := cron.New()
	if _, err := runner.AddFunc(*cronSpec, func() {
		code := runOnce(context.Background())
		log.Info("scheduled job run finished",
			zap.String("job", *jobName),
			zap.Int("exit_code", code),
		)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -cron: %v\n", err)
		return exitFatal
	}
	runner.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	<-runner.Stop().Done()
	return exitOK
}
