package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service applies externally driven installation lifecycle events to the
// billing side: contract id assignment on first activation and billing plan
// maintenance on every transition.
type Service interface {
	ApplyStatusChange(ctx context.Context, change StatusChange) (Installation, error)
	ApplyPriceChange(ctx context.Context, installationID snowflake.ID, priceCents int64) error
	GetByID(ctx context.Context, id snowflake.ID) (Installation, error)
}
