package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// PaymentMethod records how an invoice was settled. Manual channels are
// explicit values, never inferred from the absence of a gateway transaction.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMercadoPago  PaymentMethod = "mercadopago"
	MethodStripe       PaymentMethod = "stripe"
	MethodPayPal       PaymentMethod = "paypal"
)

// Manual reports whether the method is a manually-recorded channel that
// settles without a gateway transaction.
func (m PaymentMethod) Manual() bool {
	return m == MethodCash || m == MethodBankTransfer
}

// Invoice is one billing period's amount owed. Cancellation is a status, not
// a deletion; non-cancelled invoices are unique per (customer, installation,
// period).
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	CustomerID     snowflake.ID  `gorm:"not null;index"`
	InstallationID *snowflake.ID `gorm:"index"`
	AmountCents    int64         `gorm:"not null"`
	Concept        string        `gorm:"type:text;not null;default:''"`
	PeriodMonth    int           `gorm:"not null"`
	PeriodYear     int           `gorm:"not null"`
	DueDate        time.Time     `gorm:"not null"`
	PaidAt         *time.Time
	Status         Status         `gorm:"type:text;not null;default:'pending'"`
	PaymentMethod  *PaymentMethod `gorm:"type:text"`
	ExternalRef    *string        `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Touch returns a copy with a pending invoice past its due date corrected to
// overdue. It never mutates the receiver; both the read path and the sweep
// job share it so overdue detection has exactly one definition.
func (i Invoice) Touch(asOf time.Time) Invoice {
	if i.Status == StatusPending && i.DueDate.Before(asOf) {
		i.Status = StatusOverdue
	}
	return i
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DueDateFor clamps dueDay to the month's last valid day and returns the due
// date at UTC midnight.
func DueDateFor(year int, month time.Month, dueDay int) time.Time {
	if dueDay < 1 {
		dueDay = 1
	}
	if last := DaysInMonth(year, month); dueDay > last {
		dueDay = last
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, time.UTC)
}
