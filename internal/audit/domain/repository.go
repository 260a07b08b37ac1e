package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Service records audit entries. Failures are logged, never propagated to the
// billing operation being audited.
type Service interface {
	Record(ctx context.Context, actor ActorType, action, targetType string, targetID snowflake.ID, metadata map[string]any)
	RecordTx(ctx context.Context, tx *gorm.DB, actor ActorType, action, targetType string, targetID snowflake.ID, metadata map[string]any)
}
