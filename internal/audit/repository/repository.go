package repository

import (
	"context"
	"strings"

	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the gorm-backed audit repository.
func Provide() auditdomain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) List(ctx context.Context, db *gorm.DB, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	query := db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if targetType := strings.TrimSpace(filter.TargetType); targetType != "" {
		query = query.Where("target_type = ?", targetType)
	}
	if targetID := strings.TrimSpace(filter.TargetID); targetID != "" {
		query = query.Where("target_id = ?", targetID)
	}
	if filter.StartAt != nil {
		query = query.Where("created_at >= ?", *filter.StartAt)
	}
	if filter.EndAt != nil {
		query = query.Where("created_at < ?", *filter.EndAt)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []*auditdomain.AuditLog
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
