package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"go.uber.org/zap"
)

const providerName = "paypal"

// Adapter drives PayPal checkout orders. The order id is the stored external
// reference; capture-scoped webhook events carry the order id in their
// supplementary data.
type Adapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.Logger
}

func New(cfg config.GatewayConfig, client *http.Client, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, client: client, log: log.Named("payment.paypal")}
}

func (a *Adapter) Provider() string { return providerName }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// accessToken exchanges the client credentials for a bearer token. Tokens are
// fetched per call; order traffic is low enough that caching buys nothing.
func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(a.cfg.APIKey, a.cfg.Secret)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", paymentdomain.ErrGatewayRejected)
	}
	return token.AccessToken, nil
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *orderResponse) currency() string {
	for _, unit := range o.PurchaseUnits {
		if unit.Amount.CurrencyCode != "" {
			return unit.Amount.CurrencyCode
		}
	}
	return ""
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.Invoice.ID.String(),
			"description":  req.Invoice.Concept,
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         adapters.FormatAmount(req.Invoice.AmountCents),
			},
		}},
		"application_context": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("PayPal-Request-Id", req.IdempotencyKey)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var order orderResponse
	if err := json.Unmarshal(raw, &order); err != nil || order.ID == "" {
		return nil, fmt.Errorf("%w: malformed order response", paymentdomain.ErrGatewayRejected)
	}

	session := &paymentdomain.CheckoutSession{ExternalID: order.ID, RawResponse: raw}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			session.RedirectURL = link.Href
			break
		}
	}
	a.log.Debug("checkout order created",
		zap.String("order_id", order.ID),
		zap.String("invoice_id", req.Invoice.ID.String()),
	)
	return session, nil
}

func (a *Adapter) VerifyStatus(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	order, err := a.getOrder(ctx, externalID)
	if err != nil {
		return "", err
	}
	return mapOrderStatus(order.Status)
}

// VerifySignature checks the transmission headers, an HMAC over
// "<transmission-id>|<transmission-time>|<payload>" keyed by the webhook
// secret.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	id := headers.Get("Paypal-Transmission-Id")
	ts := headers.Get("Paypal-Transmission-Time")
	sig := headers.Get("Paypal-Transmission-Sig")
	if id == "" || ts == "" || sig == "" {
		return paymentdomain.ErrInvalidSignature
	}
	return adapters.VerifyHMAC(a.cfg.WebhookSecret, id+"|"+ts+"|"+string(payload), sig)
}

type webhookPayload struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	CreateTime time.Time `json:"create_time"`
	Resource   struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
	} `json:"resource"`
}

func (a *Adapter) ParseEvent(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var hook webhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if hook.ID == "" || hook.Resource.ID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event := &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: hook.ID,
		Type:            hook.EventType,
		Currency:        hook.Resource.Amount.CurrencyCode,
		AmountCents:     parseAmount(hook.Resource.Amount.Value),
		OccurredAt:      hook.CreateTime,
	}
	switch hook.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		event.Status = paymentdomain.StatusProcessing
		event.ExternalID = hook.Resource.ID
	case "PAYMENT.CAPTURE.COMPLETED":
		event.Status = paymentdomain.StatusCompleted
		event.ExternalID = hook.Resource.SupplementaryData.RelatedIDs.OrderID
		event.IntentID = hook.Resource.ID
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		event.Status = paymentdomain.StatusFailed
		event.ExternalID = hook.Resource.SupplementaryData.RelatedIDs.OrderID
		event.IntentID = hook.Resource.ID
		event.ErrorMessage = hook.Resource.StatusDetails.Reason
	case "PAYMENT.CAPTURE.REFUNDED":
		event.Status = paymentdomain.StatusRefunded
		event.ExternalID = hook.Resource.SupplementaryData.RelatedIDs.OrderID
		event.IntentID = hook.Resource.ID
	default:
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrEventIgnored, hook.EventType)
	}
	return event, nil
}

func (a *Adapter) Refund(ctx context.Context, externalID string, amountCents int64) error {
	token, err := a.accessToken(ctx)
	if err != nil {
		return err
	}
	order, err := a.getOrder(ctx, externalID)
	if err != nil {
		return err
	}
	captureID := ""
	for _, unit := range order.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			captureID = unit.Payments.Captures[0].ID
			break
		}
	}
	if captureID == "" {
		return fmt.Errorf("%w: no capture for order %s", paymentdomain.ErrGatewayRejected, externalID)
	}

	var body io.Reader
	if amountCents > 0 {
		payload, err := json.Marshal(map[string]any{
			"amount": map[string]string{
				"currency_code": order.currency(),
				"value":         adapters.FormatAmount(amountCents),
			},
		})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (a *Adapter) getOrder(ctx context.Context, orderID string) (*orderResponse, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil || order.ID == "" {
		return nil, fmt.Errorf("%w: malformed order response", paymentdomain.ErrGatewayRejected)
	}
	return &order, nil
}

func mapOrderStatus(status string) (paymentdomain.TransactionStatus, error) {
	switch status {
	case "CREATED", "SAVED":
		return paymentdomain.StatusPending, nil
	case "APPROVED", "PAYER_ACTION_REQUIRED":
		return paymentdomain.StatusProcessing, nil
	case "COMPLETED":
		return paymentdomain.StatusCompleted, nil
	case "VOIDED":
		return paymentdomain.StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: unknown order status %q", paymentdomain.ErrInvalidEvent, status)
	}
}

func parseAmount(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(value, ".")
	for len(frac) < 2 {
		frac += "0"
	}
	var cents int64
	if _, err := fmt.Sscanf(whole+frac[:2], "%d", &cents); err != nil {
		return 0
	}
	return cents
}
