package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
	"gorm.io/gorm"
)

// BillingPlan is the recurring charge definition for one installation.
// At most one plan ever exists per installation; suspension deactivates it
// instead of deleting it.
type BillingPlan struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	InstallationID snowflake.ID `gorm:"not null;uniqueIndex"`
	CustomerID     snowflake.ID `gorm:"not null;index"`
	AmountCents    int64        `gorm:"not null"`
	DueDay         int          `gorm:"not null"`
	IsActive       bool         `gorm:"not null;default:true"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingPlan) TableName() string { return "billing_plans" }

// Manager reacts to installation lifecycle transitions. Methods take the
// caller's transaction handle so plan changes commit atomically with the
// installation row they react to. All operations are idempotent.
type Manager interface {
	HandleStatusChange(ctx context.Context, tx *gorm.DB, change installationdomain.StatusChange) error
	HandlePriceChange(ctx context.Context, tx *gorm.DB, installationID snowflake.ID, priceCents int64) error
	FindByInstallation(ctx context.Context, tx *gorm.DB, installationID snowflake.ID) (*BillingPlan, error)
}

var (
	ErrPlanNotFound = errors.New("billing_plan_not_found")
)
