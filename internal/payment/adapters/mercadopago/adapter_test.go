package mercadopago

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	"github.com/rmateo1203/AdminiRed-sub000/internal/payment/adapters"
	paymentdomain "github.com/rmateo1203/AdminiRed-sub000/internal/payment/domain"
	"go.uber.org/zap"
)

func newTestAdapter() *Adapter {
	return New(config.GatewayConfig{
		APIKey:        "TEST-access-token",
		WebhookSecret: "mp_secret",
		BaseURL:       "https://api.mercadopago.test",
	}, adapters.NewHTTPClient(0), zap.NewNop())
}

func TestParseEventApprovedPayment(t *testing.T) {
	a := newTestAdapter()
	payload := []byte(`{
		"id": 9001,
		"type": "payment",
		"action": "payment.updated",
		"data": {
			"id": 555001,
			"status": "approved",
			"preference_id": "pref_1",
			"transaction_amount": 500.00,
			"currency_id": "MXN"
		}
	}`)

	event, err := a.ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Status != paymentdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", event.Status)
	}
	if event.ExternalID != "pref_1" || event.IntentID != "555001" || event.ProviderEventID != "9001" {
		t.Fatalf("unexpected references: %+v", event)
	}
	if event.AmountCents != 50000 {
		t.Fatalf("expected 50000 cents, got %d", event.AmountCents)
	}
}

func TestParseEventRoundsDecimalAmounts(t *testing.T) {
	a := newTestAdapter()
	// Amounts whose cent value is not exactly representable in a float64
	// must still land on the right cent.
	cases := []struct {
		amount string
		cents  int64
	}{
		{"19.99", 1999},
		{"1865.98", 186598},
		{"0.07", 7},
		{"500.00", 50000},
	}
	for _, tc := range cases {
		payload := fmt.Sprintf(`{
			"id": 9002,
			"type": "payment",
			"data": {
				"id": 555002,
				"status": "approved",
				"preference_id": "pref_2",
				"transaction_amount": %s,
				"currency_id": "MXN"
			}
		}`, tc.amount)

		event, err := a.ParseEvent([]byte(payload))
		if err != nil {
			t.Fatalf("ParseEvent(%s): %v", tc.amount, err)
		}
		if event.AmountCents != tc.cents {
			t.Fatalf("amount %s: expected %d cents, got %d", tc.amount, tc.cents, event.AmountCents)
		}
	}
}

func TestParseEventRejectedCarriesDetail(t *testing.T) {
	a := newTestAdapter()
	payload := []byte(`{
		"id": 9003,
		"type": "payment",
		"data": {
			"id": 555003,
			"status": "rejected",
			"preference_id": "pref_3",
			"transaction_amount": 19.99,
			"currency_id": "MXN",
			"status_detail": "cc_rejected_insufficient_amount"
		}
	}`)

	event, err := a.ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Status != paymentdomain.StatusFailed {
		t.Fatalf("expected failed, got %s", event.Status)
	}
	if event.ErrorMessage != "cc_rejected_insufficient_amount" {
		t.Fatalf("unexpected error message: %q", event.ErrorMessage)
	}
}

func TestParseEventNonPaymentIsIgnored(t *testing.T) {
	a := newTestAdapter()
	payload := []byte(`{"id": 9004, "type": "merchant_order", "data": {"id": 1}}`)

	if _, err := a.ParseEvent(payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
	if _, err := a.ParseEvent([]byte(`not json`)); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
