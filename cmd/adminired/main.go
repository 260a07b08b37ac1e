package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rmateo1203/AdminiRed-sub000/internal/audit"
	"github.com/rmateo1203/AdminiRed-sub000/internal/billingplan"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/contract"
	"github.com/rmateo1203/AdminiRed-sub000/internal/customer"
	"github.com/rmateo1203/AdminiRed-sub000/internal/installation"
	"github.com/rmateo1203/AdminiRed-sub000/internal/invoice"
	"github.com/rmateo1203/AdminiRed-sub000/internal/ledger"
	"github.com/rmateo1203/AdminiRed-sub000/internal/logger"
	"github.com/rmateo1203/AdminiRed-sub000/internal/migration"
	"github.com/rmateo1203/AdminiRed-sub000/internal/notification"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment"
	"github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation"
	"github.com/rmateo1203/AdminiRed-sub000/internal/scheduler"
	"github.com/rmateo1203/AdminiRed-sub000/internal/seed"
	"github.com/rmateo1203/AdminiRed-sub000/internal/server"
	"github.com/rmateo1203/AdminiRed-sub000/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, genID *snowflake.Node, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureDefaultNumberingConfig(conn, genID, cfg.Contract)
		}),
		audit.Module,
		notification.Module,
		ledger.Module,
		customer.Module,
		contract.Module,
		billingplan.Module,
		installation.Module,
		invoice.Module,
		payment.Module,
		reconciliation.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
