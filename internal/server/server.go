package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	reconciliationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/reconciliation/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	Cfg             config.Config
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	InstallationSvc installationdomain.Service
	ReconSvc        reconciliationdomain.Service
	Sched           *scheduler.Scheduler
}

type Server struct {
	log             *zap.Logger
	cfg             config.Config
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	installationSvc installationdomain.Service
	reconSvc        reconciliationdomain.Service
	sched           *scheduler.Scheduler
	webhookLimiter  *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		log:             p.Log.Named("server"),
		cfg:             p.Cfg,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		installationSvc: p.InstallationSvc,
		reconSvc:        p.ReconSvc,
		sched:           p.Sched,
		webhookLimiter:  newRateLimiter(p.Cfg.WebhookRateLimit, p.Cfg.WebhookRateWindow),
	}
}

// Engine builds the gin engine with all routes registered.
func (s *Server) Engine() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.POST("/webhooks/:provider", s.HandleWebhook)

	api := engine.Group("/api")
	{
		api.POST("/invoices", s.CreateInvoice)
		api.GET("/invoices/:id", s.GetInvoice)
		api.POST("/invoices/:id/payment_intent", s.CreatePaymentIntent)
		api.POST("/invoices/:id/manual_payment", s.RecordManualPayment)
		api.POST("/invoices/:id/cancel", s.CancelInvoice)

		api.POST("/installations/:id/status", s.ApplyInstallationStatus)
		api.POST("/installations/:id/price", s.ApplyInstallationPrice)
		api.GET("/installations/:id", s.GetInstallation)

		api.GET("/transactions/:external_id/verify", s.VerifyTransaction)
		api.POST("/transactions/:id/refund", s.RefundTransaction)

		api.POST("/jobs/generate_invoices", s.RunGenerateInvoices)
		api.POST("/jobs/sweep_overdue", s.RunSweepOverdue)
		api.POST("/jobs/reconcile", s.RunReconcile)
	}
	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// RunHTTP binds the engine to the configured address under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Engine(),
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
