package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingplandomain "github.com/rmateo1203/AdminiRed-sub000/internal/billingplan/domain"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	installationdomain "github.com/rmateo1203/AdminiRed-sub000/internal/installation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Manager struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewManager(p Params) billingplandomain.Manager {
	return &Manager{
		log:   p.Log.Named("billingplan.manager"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (m *Manager) HandleStatusChange(ctx context.Context, tx *gorm.DB, change installationdomain.StatusChange) error {
	if !change.NewStatus.Valid() {
		return installationdomain.ErrInvalidStatus
	}

	switch {
	case change.NewStatus == installationdomain.StatusActive:
		return m.activate(ctx, tx, change)
	case change.OldStatus == installationdomain.StatusActive &&
		(change.NewStatus == installationdomain.StatusSuspended || change.NewStatus == installationdomain.StatusCancelled):
		return m.deactivate(ctx, tx, change.InstallationID)
	default:
		return nil
	}
}

// activate covers both first activation and reactivation after suspension.
// Creation uses an insert-or-ignore against the unique installation index, so
// replaying the same transition never produces a second plan.
func (m *Manager) activate(ctx context.Context, tx *gorm.DB, change installationdomain.StatusChange) error {
	existing, err := m.FindByInstallation(ctx, tx, change.InstallationID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsActive {
			return nil
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE billing_plans
			 SET is_active = TRUE, updated_at = ?
			 WHERE installation_id = ? AND is_active = FALSE`,
			m.clock.Now(),
			change.InstallationID,
		).Error
	}

	var inst struct {
		CustomerID        snowflake.ID
		MonthlyPriceCents int64
	}
	if err := tx.WithContext(ctx).Raw(
		`SELECT customer_id, monthly_price_cents FROM installations WHERE id = ?`,
		change.InstallationID,
	).Scan(&inst).Error; err != nil {
		return err
	}
	if inst.CustomerID == 0 {
		return installationdomain.ErrInstallationNotFound
	}

	// The event price wins; an event without one falls back to the price
	// stored on the installation row.
	amountCents := change.PriceCents
	if amountCents <= 0 {
		amountCents = inst.MonthlyPriceCents
	}
	if amountCents <= 0 {
		m.log.Warn("skipping billing plan creation, installation has no positive price",
			zap.String("installation_id", change.InstallationID.String()),
		)
		return nil
	}

	activatedAt := change.ActivatedAt
	if activatedAt.IsZero() {
		activatedAt = m.clock.Now()
	}

	now := m.clock.Now()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO billing_plans (id, installation_id, customer_id, amount_cents, due_day, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, TRUE, ?, ?)
		 ON CONFLICT (installation_id) DO NOTHING`,
		m.genID.Generate(),
		change.InstallationID,
		inst.CustomerID,
		amountCents,
		activatedAt.Day(),
		now,
		now,
	).Error
}

func (m *Manager) deactivate(ctx context.Context, tx *gorm.DB, installationID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE billing_plans
		 SET is_active = FALSE, updated_at = ?
		 WHERE installation_id = ? AND is_active = TRUE`,
		m.clock.Now(),
		installationID,
	).Error
}

// HandlePriceChange keeps the plan amount synchronized with the installation
// price. Invalid prices are ignored; an absent plan is a no-op.
func (m *Manager) HandlePriceChange(ctx context.Context, tx *gorm.DB, installationID snowflake.ID, priceCents int64) error {
	if priceCents <= 0 {
		m.log.Warn("ignoring non-positive price change",
			zap.String("installation_id", installationID.String()),
			zap.Int64("price_cents", priceCents),
		)
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE billing_plans
		 SET amount_cents = ?, updated_at = ?
		 WHERE installation_id = ? AND amount_cents <> ?`,
		priceCents,
		m.clock.Now(),
		installationID,
		priceCents,
	).Error
}

func (m *Manager) FindByInstallation(ctx context.Context, tx *gorm.DB, installationID snowflake.ID) (*billingplandomain.BillingPlan, error) {
	var plan billingplandomain.BillingPlan
	err := tx.WithContext(ctx).
		Where("installation_id = ?", installationID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}
