package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rmateo1203/AdminiRed-sub000/internal/audit/domain"
	billingplandomain "github.com/rmateo1203/AdminiRed-sub000/internal/billingplan/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	contractdomain "github.com/rmateo1203/AdminiRed-sub000/internal/contract/domain"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Generator contractdomain.Generator
	Plans     billingplandomain.Manager
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	generator contractdomain.Generator
	plans     billingplandomain.Manager
	auditSvc  auditdomain.Service
}

func NewService(p Params) installationdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("installation.service"),
		clock:     p.Clock,
		generator: p.Generator,
		plans:     p.Plans,
		auditSvc:  p.AuditSvc,
	}
}

// ApplyStatusChange persists the transition and runs its billing side effects
// in one transaction: assigning the contract identifier on first activation
// and creating/suspending/reactivating the billing plan. Replaying the same
// event is a no-op.
func (s *Service) ApplyStatusChange(ctx context.Context, change installationdomain.StatusChange) (installationdomain.Installation, error) {
	if !change.NewStatus.Valid() {
		return installationdomain.Installation{}, installationdomain.ErrInvalidStatus
	}

	var issuedContract string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := s.load(ctx, tx, change.InstallationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		updates := map[string]any{
			"status":     change.NewStatus,
			"updated_at": now,
		}
		if change.PriceCents > 0 {
			updates["monthly_price_cents"] = change.PriceCents
		}

		if change.NewStatus == installationdomain.StatusActive {
			activatedAt := change.ActivatedAt
			if activatedAt.IsZero() {
				activatedAt = now
			}
			if inst.ActivatedAt == nil {
				updates["activated_at"] = activatedAt
			}
			change.ActivatedAt = activatedAt

			if inst.ContractID == nil {
				cfg, err := s.generator.ActiveConfig(ctx)
				if err != nil {
					return err
				}
				contractID, err := s.generator.Generate(ctx, cfg)
				if err != nil {
					return err
				}
				updates["contract_id"] = contractID
				issuedContract = contractID
			}
		}

		if err := tx.WithContext(ctx).
			Model(&installationdomain.Installation{}).
			Where("id = ?", change.InstallationID).
			Updates(updates).Error; err != nil {
			return err
		}

		return s.plans.HandleStatusChange(ctx, tx, change)
	})
	if err != nil {
		return installationdomain.Installation{}, err
	}

	if issuedContract != "" {
		s.auditSvc.Record(ctx, auditdomain.ActorTypeSystem, auditdomain.ActionContractIssued, "installation", change.InstallationID, map[string]any{
			"contract_id": issuedContract,
		})
	}
	return s.GetByID(ctx, change.InstallationID)
}

func (s *Service) ApplyPriceChange(ctx context.Context, installationID snowflake.ID, priceCents int64) error {
	if priceCents <= 0 {
		return installationdomain.ErrInvalidPrice
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE installations
			 SET monthly_price_cents = ?, updated_at = ?
			 WHERE id = ?`,
			priceCents,
			s.clock.Now(),
			installationID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return installationdomain.ErrInstallationNotFound
		}
		return s.plans.HandlePriceChange(ctx, tx, installationID, priceCents)
	})
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (installationdomain.Installation, error) {
	return s.load(ctx, s.db, id)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (installationdomain.Installation, error) {
	var inst installationdomain.Installation
	err := db.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return installationdomain.Installation{}, installationdomain.ErrInstallationNotFound
		}
		return installationdomain.Installation{}, err
	}
	return inst, nil
}
