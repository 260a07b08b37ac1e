package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResetPolicy controls when the contract sequence restarts from its initial value.
type ResetPolicy string

const (
	ResetNever   ResetPolicy = "never"
	ResetDaily   ResetPolicy = "daily"
	ResetMonthly ResetPolicy = "monthly"
)

// Valid reports whether the policy is a known reset policy.
func (p ResetPolicy) Valid() bool {
	switch p {
	case ResetNever, ResetDaily, ResetMonthly:
		return true
	}
	return false
}

// NumberingConfig describes how contract identifiers are formatted. The active
// row is loaded explicitly per invocation; it is never cached process-wide.
type NumberingConfig struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Template      string       `gorm:"type:text;not null"`
	Prefix        string       `gorm:"type:text;not null"`
	SequenceWidth int          `gorm:"not null;default:5"`
	InitialValue  int64        `gorm:"not null;default:1"`
	ResetPolicy   ResetPolicy  `gorm:"type:text;not null;default:'never'"`
	IsActive      bool         `gorm:"not null;default:true"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (NumberingConfig) TableName() string { return "contract_numbering_configs" }

// SequenceState is the single counter row per literal pattern expansion.
// It is incremented atomically on every issuance.
type SequenceState struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PatternKey string       `gorm:"type:text;not null;uniqueIndex"`
	LastValue  int64        `gorm:"not null"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SequenceState) TableName() string { return "contract_sequences" }

// Generator issues unique, formatted contract identifiers.
type Generator interface {
	// ActiveConfig loads the active numbering configuration, falling back to
	// the environment defaults when the table is empty.
	ActiveConfig(ctx context.Context) (NumberingConfig, error)
	// Generate issues the next identifier for the given configuration.
	Generate(ctx context.Context, cfg NumberingConfig) (string, error)
}

var (
	ErrInvalidTemplate     = errors.New("invalid_template")
	ErrInvalidResetPolicy  = errors.New("invalid_reset_policy")
	ErrGenerationExhausted = errors.New("generation_exhausted")
)
