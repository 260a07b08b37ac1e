package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer owns installations and receives invoices.
type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Email     *string      `gorm:"type:text"`
	Phone     *string      `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// Contact carries the reachable channels for a customer. Payment gateways
// require at least one of them to build a checkout payload.
type Contact struct {
	Name  string
	Email string
	Phone string
}

func (c Contact) Empty() bool { return c.Email == "" && c.Phone == "" }

// ContactLookup resolves customer contact details for outbound gateway calls.
type ContactLookup interface {
	GetContact(ctx context.Context, customerID snowflake.ID) (Contact, error)
}

var (
	ErrCustomerNotFound = errors.New("customer_not_found")
)
