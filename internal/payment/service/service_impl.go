package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	customerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/customer/domain"
	invoicedomain "github.com/rmateo1203/AdminiRed-sub000/internal/invoice/domain"
	ledgerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/ledger/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Registry   *adapters.Registry
	Repo       paymentdomain.Repository
	InvoiceSvc invoicedomain.Service
	Contacts   customerdomain.ContactLookup
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	currency   string
	registry   *adapters.Registry
	repo       paymentdomain.Repository
	invoiceSvc invoicedomain.Service
	contacts   customerdomain.ContactLookup
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		currency:   p.Cfg.Currency,
		registry:   p.Registry,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		contacts:   p.Contacts,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
	}
}

func methodForProvider(provider string) (invoicedomain.PaymentMethod, bool) {
	switch provider {
	case "mercadopago":
		return invoicedomain.MethodMercadoPago, true
	case "stripe":
		return invoicedomain.MethodStripe, true
	case "paypal":
		return invoicedomain.MethodPayPal, true
	default:
		return "", false
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, invoiceID snowflake.ID, provider, returnURL, cancelURL string) (paymentdomain.CheckoutResult, error) {
	if _, known := methodForProvider(provider); !known {
		return paymentdomain.CheckoutResult{}, paymentdomain.ErrInvalidProvider
	}
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return paymentdomain.CheckoutResult{}, paymentdomain.ErrProviderNotFound
	}

	inv, err := s.invoiceSvc.GetByID(ctx, invoiceID)
	if err != nil {
		return paymentdomain.CheckoutResult{}, err
	}
	switch inv.Status {
	case invoicedomain.StatusPending, invoicedomain.StatusOverdue:
	case invoicedomain.StatusCancelled:
		return paymentdomain.CheckoutResult{}, invoicedomain.ErrInvoiceCancelled
	default:
		return paymentdomain.CheckoutResult{}, invoicedomain.ErrInvoiceNotPayable
	}

	contact, err := s.contacts.GetContact(ctx, inv.CustomerID)
	if err != nil {
		return paymentdomain.CheckoutResult{}, err
	}
	if contact.Empty() {
		return paymentdomain.CheckoutResult{}, paymentdomain.ErrMissingContact
	}

	session, err := adapter.CreateCheckout(ctx, paymentdomain.CheckoutRequest{
		Invoice:        inv,
		Contact:        contact,
		Currency:       s.currency,
		ReturnURL:      returnURL,
		CancelURL:      cancelURL,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return paymentdomain.CheckoutResult{}, err
	}

	now := s.clock.Now()
	txn := paymentdomain.GatewayTransaction{
		ID:          s.genID.Generate(),
		InvoiceID:   inv.ID,
		Provider:    adapter.Provider(),
		Status:      paymentdomain.StatusPending,
		ExternalID:  session.ExternalID,
		AmountCents: inv.AmountCents,
		Currency:    s.currency,
		RawResponse: session.RawResponse,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if session.IntentID != "" {
		intentID := session.IntentID
		txn.ExternalIntentID = &intentID
	}

	inserted, err := s.repo.InsertTransaction(ctx, s.db, &txn)
	if err != nil {
		return paymentdomain.CheckoutResult{}, err
	}
	if !inserted {
		return paymentdomain.CheckoutResult{}, paymentdomain.ErrDuplicateTransaction
	}

	s.log.Info("payment intent created",
		zap.String("provider", txn.Provider),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("external_id", txn.ExternalID),
	)
	return paymentdomain.CheckoutResult{
		TransactionID: txn.ID,
		ExternalID:    txn.ExternalID,
		RedirectURL:   session.RedirectURL,
	}, nil
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if err := adapter.VerifySignature(payload, headers); err != nil {
		return err
	}

	event, err := adapter.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored",
				zap.String("provider", provider),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	now := s.clock.Now()
	record := paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        adapter.Provider(),
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         payload,
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, record.Provider, record.ProviderEventID)
		if err != nil {
			return err
		}
		// Replays of a delivered event are acknowledged without reprocessing;
		// a redelivery after a failed attempt runs the apply step again.
		if existing == nil || existing.ProcessedAt != nil {
			s.log.Debug("duplicate webhook event",
				zap.String("provider", record.Provider),
				zap.String("provider_event_id", record.ProviderEventID),
			)
			return nil
		}
		record.ID = existing.ID
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyEvent(ctx, tx, event)
	}); err != nil {
		return err
	}
	return s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now())
}

// applyEvent moves the gateway transaction to the event's status and runs the
// matching invoice cascade. Stale and out-of-order events are dropped rather
// than failed; providers redeliver on non-2xx and a terminal transaction
// never changes again.
func (s *Service) applyEvent(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent) error {
	txn, err := s.repo.FindTransactionByExternalRef(ctx, tx, event.ExternalID, event.IntentID)
	if err != nil {
		return err
	}
	if txn == nil {
		return paymentdomain.ErrTransactionNotFound
	}

	if event.IntentID != "" && txn.ExternalIntentID == nil {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE gateway_transactions SET external_intent_id = ? WHERE id = ? AND external_intent_id IS NULL`,
			event.IntentID,
			txn.ID,
		).Error; err != nil {
			return err
		}
	}

	if txn.Status == event.Status {
		return nil
	}
	if !paymentdomain.CanTransition(txn.Status, event.Status) {
		s.log.Warn("dropping out-of-order payment event",
			zap.String("provider", event.Provider),
			zap.String("external_id", txn.ExternalID),
			zap.String("from", string(txn.Status)),
			zap.String("to", string(event.Status)),
		)
		return nil
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	var errMsg *string
	if event.ErrorMessage != "" {
		msg := event.ErrorMessage
		errMsg = &msg
	}
	var completedAt *time.Time
	if event.Status == paymentdomain.StatusCompleted {
		completedAt = &occurredAt
	}

	moved, err := s.repo.UpdateTransactionStatus(ctx, tx, txn.ID, txn.Status, event.Status, errMsg, completedAt)
	if err != nil {
		return err
	}
	if !moved {
		// A concurrent writer won the transition; redelivery reconciles.
		return nil
	}

	switch event.Status {
	case paymentdomain.StatusCompleted:
		return s.cascadePaid(ctx, tx, txn, occurredAt)
	case paymentdomain.StatusFailed:
		s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeSystem, auditdomain.ActionPaymentFailed, "gateway_transaction", txn.ID, map[string]any{
			"provider":      txn.Provider,
			"invoice_id":    txn.InvoiceID.String(),
			"error_message": event.ErrorMessage,
		})
	case paymentdomain.StatusRefunded:
		amount := event.AmountCents
		if amount <= 0 || amount > txn.AmountCents {
			amount = txn.AmountCents
		}
		return s.cascadeRefunded(ctx, tx, txn, amount, occurredAt)
	}
	return nil
}

// cascadePaid settles the owning invoice for a completed transaction. Paying
// an already-paid invoice is a no-op so webhook redelivery stays idempotent.
func (s *Service) cascadePaid(ctx context.Context, tx *gorm.DB, txn *paymentdomain.GatewayTransaction, paidAt time.Time) error {
	method, ok := methodForProvider(txn.Provider)
	if !ok {
		return paymentdomain.ErrInvalidProvider
	}
	externalRef := txn.ExternalID
	transitioned, err := s.invoiceSvc.MarkPaidTx(ctx, tx, txn.InvoiceID, method, &externalRef, paidAt)
	if err != nil {
		return err
	}
	if transitioned {
		s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeSystem, auditdomain.ActionPaymentReceived, "invoice", txn.InvoiceID, map[string]any{
			"provider":     txn.Provider,
			"external_id":  txn.ExternalID,
			"amount_cents": txn.AmountCents,
		})
	}
	return nil
}

// cascadeRefunded voids the owning invoice and posts the reversing ledger
// entry.
func (s *Service) cascadeRefunded(ctx context.Context, tx *gorm.DB, txn *paymentdomain.GatewayTransaction, amountCents int64, occurredAt time.Time) error {
	if err := s.invoiceSvc.CancelForRefundTx(ctx, tx, txn.InvoiceID); err != nil {
		return err
	}
	if err := s.ledgerSvc.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeRefund, txn.InvoiceID, txn.Currency, occurredAt, []ledgerdomain.PostingLine{
		{AccountCode: ledgerdomain.AccountCodeRevenue, AccountName: "Revenue", Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: amountCents},
		{AccountCode: ledgerdomain.AccountCodeCashClearing, AccountName: "Cash / Clearing", Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: amountCents},
	}); err != nil {
		return err
	}
	s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeSystem, auditdomain.ActionPaymentRefunded, "invoice", txn.InvoiceID, map[string]any{
		"provider":     txn.Provider,
		"external_id":  txn.ExternalID,
		"amount_cents": amountCents,
	})
	return nil
}

func (s *Service) VerifyTransaction(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	txn, err := s.repo.FindTransactionByExternalRef(ctx, s.db, externalID, "")
	if err != nil {
		return "", err
	}
	if txn == nil {
		return "", paymentdomain.ErrTransactionNotFound
	}
	adapter, ok := s.registry.Get(txn.Provider)
	if !ok {
		return "", paymentdomain.ErrProviderNotFound
	}

	status, err := adapter.VerifyStatus(ctx, txn.ExternalID)
	if err != nil {
		return "", err
	}
	if status == txn.Status {
		return status, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyEvent(ctx, tx, &paymentdomain.PaymentEvent{
			Provider:   txn.Provider,
			Type:       "status_poll",
			ExternalID: txn.ExternalID,
			Status:     status,
			OccurredAt: s.clock.Now(),
		})
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (s *Service) Refund(ctx context.Context, transactionID snowflake.ID, amountCents *int64) error {
	txn, err := s.repo.FindTransactionByID(ctx, s.db, transactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return paymentdomain.ErrTransactionNotFound
	}
	if txn.Status != paymentdomain.StatusCompleted {
		return paymentdomain.ErrNotRefundable
	}

	amount := int64(0)
	if amountCents != nil {
		if *amountCents <= 0 || *amountCents > txn.AmountCents {
			return paymentdomain.ErrInvalidAmount
		}
		amount = *amountCents
	}

	adapter, ok := s.registry.Get(txn.Provider)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if err := adapter.Refund(ctx, txn.ExternalID, amount); err != nil {
		return err
	}

	applied := amount
	if applied == 0 {
		applied = txn.AmountCents
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateTransactionStatus(ctx, tx, txn.ID, paymentdomain.StatusCompleted, paymentdomain.StatusRefunded, nil, nil)
		if err != nil {
			return err
		}
		if !moved {
			// The refund webhook beat us to it.
			return nil
		}
		return s.cascadeRefunded(ctx, tx, txn, applied, s.clock.Now())
	})
}

func (s *Service) ApplyCompletedCascadeTx(ctx context.Context, transactionID snowflake.ID) (bool, error) {
	var transitioned bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindTransactionByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return paymentdomain.ErrTransactionNotFound
		}
		if txn.Status != paymentdomain.StatusCompleted {
			return nil
		}
		paidAt := s.clock.Now()
		if txn.CompletedAt != nil {
			paidAt = *txn.CompletedAt
		}
		method, ok := methodForProvider(txn.Provider)
		if !ok {
			return paymentdomain.ErrInvalidProvider
		}
		externalRef := txn.ExternalID
		transitioned, err = s.invoiceSvc.MarkPaidTx(ctx, tx, txn.InvoiceID, method, &externalRef, paidAt)
		return err
	})
	return transitioned, err
}
