package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rmateo1203/AdminiRed-sub000/internal/cache"
	customerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const contactTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Lookup struct {
	db       *gorm.DB
	log      *zap.Logger
	contacts cache.Cache[snowflake.ID, customerdomain.Contact]
}

func NewLookup(p Params) customerdomain.ContactLookup {
	return &Lookup{
		db:       p.DB,
		log:      p.Log.Named("customer.lookup"),
		contacts: cache.NewTTLCache[snowflake.ID, customerdomain.Contact](),
	}
}

func (l *Lookup) GetContact(ctx context.Context, customerID snowflake.ID) (customerdomain.Contact, error) {
	if cached, ok := l.contacts.Get(customerID); ok {
		return cached, nil
	}

	var row struct {
		Name  string
		Email *string
		Phone *string
	}
	result := l.db.WithContext(ctx).Raw(
		`SELECT name, email, phone
		 FROM customers
		 WHERE id = ?`,
		customerID,
	).Scan(&row)
	if result.Error != nil {
		return customerdomain.Contact{}, result.Error
	}
	if result.RowsAffected == 0 {
		return customerdomain.Contact{}, customerdomain.ErrCustomerNotFound
	}

	contact := customerdomain.Contact{Name: strings.TrimSpace(row.Name)}
	if row.Email != nil {
		contact.Email = strings.TrimSpace(*row.Email)
	}
	if row.Phone != nil {
		contact.Phone = strings.TrimSpace(*row.Phone)
	}

	l.contacts.Set(customerID, contact, contactTTL)
	return contact, nil
}
