package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, actor auditdomain.ActorType, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	s.RecordTx(ctx, s.db, actor, action, targetType, targetID, metadata)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, actor auditdomain.ActorType, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actor),
		Action:     action,
		TargetType: targetType,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  time.Now().UTC(),
	}
	if targetID != 0 {
		value := targetID.String()
		entry.TargetID = &value
	}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		entry.Metadata[key] = value
	}

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
