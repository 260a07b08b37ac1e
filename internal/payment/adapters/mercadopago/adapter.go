package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"go.uber.org/zap"
)

const providerName = "mercadopago"

// Adapter talks to the Mercado Pago checkout-preference API. Checkouts are
// created as preferences; the preference id is the stored external reference
// and webhook payloads echo it back alongside the payment id.
type Adapter struct {
	cfg    config.GatewayConfig
	client *http.Client
	log    *zap.Logger
}

func New(cfg config.GatewayConfig, client *http.Client, log *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, client: client, log: log.Named("payment.mercadopago")}
}

func (a *Adapter) Provider() string { return providerName }

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	body := map[string]any{
		"external_reference": req.Invoice.ID.String(),
		"items": []map[string]any{{
			"title":       req.Invoice.Concept,
			"quantity":    1,
			"unit_price":  float64(req.Invoice.AmountCents) / 100,
			"currency_id": req.Currency,
		}},
		"back_urls": map[string]string{
			"success": req.ReturnURL,
			"pending": req.ReturnURL,
			"failure": req.CancelURL,
		},
		"auto_return": "approved",
	}
	if req.Contact.Email != "" {
		body["payer"] = map[string]string{
			"name":  req.Contact.Name,
			"email": req.Contact.Email,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var pref preferenceResponse
	if err := json.Unmarshal(raw, &pref); err != nil || pref.ID == "" {
		return nil, fmt.Errorf("%w: malformed preference response", paymentdomain.ErrGatewayRejected)
	}

	a.log.Debug("checkout preference created",
		zap.String("preference_id", pref.ID),
		zap.String("invoice_id", req.Invoice.ID.String()),
	)
	return &paymentdomain.CheckoutSession{
		ExternalID:  pref.ID,
		RedirectURL: pref.InitPoint,
		RawResponse: raw,
	}, nil
}

type paymentSearchResponse struct {
	Results []struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	} `json:"results"`
}

func (a *Adapter) VerifyStatus(ctx context.Context, externalID string) (paymentdomain.TransactionStatus, error) {
	endpoint := a.cfg.BaseURL + "/v1/payments/search?preference_id=" + url.QueryEscape(externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var search paymentSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return "", fmt.Errorf("%w: malformed search response", paymentdomain.ErrGatewayRejected)
	}
	// No payment yet means the payer never finished checkout.
	if len(search.Results) == 0 {
		return paymentdomain.StatusPending, nil
	}
	return mapStatus(search.Results[0].Status)
}

// VerifySignature checks the x-signature header, which carries a timestamp
// and an HMAC over "<ts>.<payload>" keyed by the webhook secret.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header) error {
	parts := adapters.ParseSignatureHeader(headers.Get("X-Signature"))
	ts, v1 := parts["ts"], parts["v1"]
	if ts == "" || v1 == "" {
		return paymentdomain.ErrInvalidSignature
	}
	return adapters.VerifyHMAC(a.cfg.WebhookSecret, ts+"."+string(payload), v1)
}

type webhookPayload struct {
	ID     json.Number `json:"id"`
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		PreferenceID      string      `json:"preference_id"`
		TransactionAmount float64     `json:"transaction_amount"`
		CurrencyID        string      `json:"currency_id"`
		DateApproved      time.Time   `json:"date_approved"`
		StatusDetail      string      `json:"status_detail"`
	} `json:"data"`
}

func (a *Adapter) ParseEvent(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var hook webhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if hook.Type != "payment" {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrEventIgnored, hook.Type)
	}
	if hook.ID.String() == "" || hook.Data.ID.String() == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	status, err := mapStatus(hook.Data.Status)
	if err != nil {
		return nil, err
	}
	event := &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: hook.ID.String(),
		Type:            hook.Action,
		ExternalID:      hook.Data.PreferenceID,
		IntentID:        hook.Data.ID.String(),
		Status:          status,
		AmountCents:     int64(math.Round(hook.Data.TransactionAmount * 100)),
		Currency:        hook.Data.CurrencyID,
		OccurredAt:      hook.Data.DateApproved,
	}
	if status == paymentdomain.StatusFailed {
		event.ErrorMessage = hook.Data.StatusDetail
	}
	return event, nil
}

func (a *Adapter) Refund(ctx context.Context, externalID string, amountCents int64) error {
	// Refunds apply to the payment, not the preference; find it first.
	paymentID, err := a.findPaymentID(ctx, externalID)
	if err != nil {
		return err
	}

	var body io.Reader
	if amountCents > 0 {
		// json.Number keeps the decimal amount exact on the wire.
		payload, err := json.Marshal(map[string]json.Number{"amount": json.Number(adapters.FormatAmount(amountCents))})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/payments/"+paymentID+"/refunds", body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (a *Adapter) findPaymentID(ctx context.Context, externalID string) (string, error) {
	endpoint := a.cfg.BaseURL + "/v1/payments/search?preference_id=" + url.QueryEscape(externalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := adapters.Do(a.client, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var search paymentSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil || len(search.Results) == 0 {
		return "", fmt.Errorf("%w: no payment for preference %s", paymentdomain.ErrGatewayRejected, externalID)
	}
	return search.Results[0].ID.String(), nil
}

func mapStatus(status string) (paymentdomain.TransactionStatus, error) {
	switch status {
	case "approved":
		return paymentdomain.StatusCompleted, nil
	case "pending":
		return paymentdomain.StatusPending, nil
	case "authorized", "in_process", "in_mediation":
		return paymentdomain.StatusProcessing, nil
	case "rejected":
		return paymentdomain.StatusFailed, nil
	case "cancelled":
		return paymentdomain.StatusCancelled, nil
	case "refunded", "charged_back":
		return paymentdomain.StatusRefunded, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", paymentdomain.ErrInvalidEvent, status)
	}
}
