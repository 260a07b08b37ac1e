package notification

// Billing event types emitted for external delivery (email/SMS dispatch is a
// separate consumer of the billing_events table).
const (
	EventInvoicePaid    = "invoice.paid"
	EventInvoiceOverdue = "invoice.overdue"
)

// InvoicePayload captures the minimal data a notification consumer needs.
type InvoicePayload struct {
	InvoiceID     string `json:"invoice_id"`
	CustomerID    string `json:"customer_id"`
	AmountCents   int64  `json:"amount_cents"`
	PeriodMonth   int    `json:"period_month"`
	PeriodYear    int    `json:"period_year"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p InvoicePayload) ToMap() map[string]any {
	payload := map[string]any{
		"invoice_id":   p.InvoiceID,
		"customer_id":  p.CustomerID,
		"amount_cents": p.AmountCents,
		"period_month": p.PeriodMonth,
		"period_year":  p.PeriodYear,
	}
	if p.PaymentMethod != "" {
		payload["payment_method"] = p.PaymentMethod
	}
	return payload
}
