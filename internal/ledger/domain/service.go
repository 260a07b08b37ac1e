package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service writes immutable double-entry postings. CreateEntryTx joins an
// existing transaction so postings commit atomically with the billing rows
// they describe.
type Service interface {
	CreateEntryTx(
		ctx context.Context,
		tx *gorm.DB,
		sourceType string,
		sourceID snowflake.ID,
		currency string,
		occurredAt time.Time,
		lines []PostingLine,
	) error
}

// PostingLine is a pending posting addressed by account code; the service
// resolves (and lazily creates) the backing account rows.
type PostingLine struct {
	AccountCode string
	AccountName string
	Direction   LedgerEntryDirection
	Amount      int64
}

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)
