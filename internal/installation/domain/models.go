package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a subscriber installation.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusScheduled, StatusInProgress, StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// Installation is a subscriber's physical internet service instance. The
// installation workflow owns it; billing reacts to its transitions.
type Installation struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	CustomerID        snowflake.ID `gorm:"not null;index"`
	Status            Status       `gorm:"type:text;not null;default:'requested'"`
	MonthlyPriceCents int64        `gorm:"not null;default:0"`
	ActivatedAt       *time.Time
	ContractID        *string   `gorm:"type:text;uniqueIndex"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Installation) TableName() string { return "installations" }

// StatusChange is the explicit lifecycle event pushed by the installation
// workflow. It replaces implicit save-side-effects with a synchronous call.
type StatusChange struct {
	InstallationID snowflake.ID
	OldStatus      Status
	NewStatus      Status
	PriceCents     int64
	ActivatedAt    time.Time
}

var (
	ErrInstallationNotFound = errors.New("installation_not_found")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPrice         = errors.New("invalid_price")
)
