package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"go.uber.org/zap"
)

const providerName = "stripe"

// Adapter drives Stripe hosted checkout. The checkout session id is the
// stored external reference; the payment intent id arrives with the session
// and is kept as the secondary reference for intent-scoped events.
type Adapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.Logger
}

func New(cfg config.GatewayConfig, client *http.Client, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, client: client, log: log.Named("payment.stripe")}
}

func (a *Adapter) Provider() string { return providerName }

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.ReturnURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.Invoice.ID.String())
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Invoice.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Invoice.Concept)
	if req.Contact.Email != "" {
		form.Set("customer_email", req.Contact.Email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.SetBasicAuth(a.cfg.APIKey, "")

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var session checkoutSessionResponse
	if err := json.Unmarshal(raw, &session); err != nil || session.ID == "" {
		return nil, fmt.Errorf("%w: malformed checkout session response", paymentdomain.ErrGatewayRejected)
	}

	a.log.Debug("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("invoice_id", req.Invoice.ID.String()),
	)
	return &paymentdomain.CheckoutSession{
		ExternalID:  session.ID,
		IntentID:    session.PaymentIntent,
		RedirectURL: session.URL,
		RawResponse: raw,
	}, nil
}

func (a *Adapter) VerifyStatus(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(externalID), nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(a.cfg.APIKey, "")

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var session checkoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("%w: malformed checkout session response", paymentdomain.ErrGatewayRejected)
	}
	switch {
	case session.PaymentStatus == "paid", session.PaymentStatus == "no_payment_required":
		return paymentdomain.StatusCompleted, nil
	case session.Status == "expired":
		return paymentdomain.StatusCancelled, nil
	case session.Status == "open":
		return paymentdomain.StatusPending, nil
	default:
		return paymentdomain.StatusProcessing, nil
	}
}

// VerifySignature checks the Stripe-Signature header, an HMAC over
// "<t>.<payload>" keyed by the webhook secret.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	parts := adapters.ParseSignatureHeader(headers.Get("Stripe-Signature"))
	t, v1 := parts["t"], parts["v1"]
	if t == "" || v1 == "" {
		return paymentdomain.ErrInvalidSignature
	}
	return adapters.VerifyHMAC(a.cfg.WebhookSecret, t+"."+string(payload), v1)
}

type eventPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID               string `json:"id"`
			PaymentIntent    string `json:"payment_intent"`
			AmountTotal      int64  `json:"amount_total"`
			Currency         string `json:"currency"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

func (a *Adapter) ParseEvent(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var hook eventPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if hook.ID == "" || hook.Data.Object.ID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event := &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: hook.ID,
		Type:            hook.Type,
		AmountCents:     hook.Data.Object.AmountTotal,
		Currency:        strings.ToUpper(hook.Data.Object.Currency),
		OccurredAt:      time.Unix(hook.Created, 0).UTC(),
	}
	switch hook.Type {
	case "checkout.session.completed":
		event.Status = paymentdomain.StatusCompleted
		event.ExternalID = hook.Data.Object.ID
		event.IntentID = hook.Data.Object.PaymentIntent
	case "checkout.session.expired":
		event.Status = paymentdomain.StatusCancelled
		event.ExternalID = hook.Data.Object.ID
	case "payment_intent.payment_failed":
		event.Status = paymentdomain.StatusFailed
		event.IntentID = hook.Data.Object.ID
		if hook.Data.Object.LastPaymentError != nil {
			event.ErrorMessage = hook.Data.Object.LastPaymentError.Message
		}
	case "charge.refunded":
		event.Status = paymentdomain.StatusRefunded
		event.IntentID = hook.Data.Object.PaymentIntent
	default:
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrEventIgnored, hook.Type)
	}
	return event, nil
}

func (a *Adapter) Refund(ctx context.Context, externalID string, amountCents int64) error {
	// Refunds target the payment intent behind the session.
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(externalID), nil)
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(a.cfg.APIKey, "")
	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return err
	}
	var session checkoutSessionResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&session)
	_ = resp.Body.Close()
	if decodeErr != nil || session.PaymentIntent == "" {
		return fmt.Errorf("%w: no payment intent for session %s", paymentdomain.ErrGatewayRejected, externalID)
	}

	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	if amountCents > 0 {
		form.Set("amount", strconv.FormatInt(amountCents, 10))
	}
	refundReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/refunds", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	refundReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	refundReq.SetBasicAuth(a.cfg.APIKey, "")

	refundResp, err := adapters.Do(a.client, refundReq)
	if err != nil {
		return err
	}
	return refundResp.Body.Close()
}
