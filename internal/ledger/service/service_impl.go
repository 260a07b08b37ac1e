package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/rmateo1203/AdminiRed-sub000/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

func (s *Service) CreateEntryTx(
	ctx context.Context,
	tx *gorm.DB,
	sourceType string,
	sourceID snowflake.ID,
	currency string,
	occurredAt time.Time,
	lines []ledgerdomain.PostingLine,
) error {
	if strings.TrimSpace(sourceType) == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	if sourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if occurredAt.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return err
	}

	now := time.Now().UTC()
	entryID := s.genID.Generate()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, source_type, source_id, currency, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entryID,
		sourceType,
		sourceID,
		currency,
		occurredAt,
		now,
	).Error; err != nil {
		return err
	}

	for _, line := range lines {
		accountID, err := s.ensureAccount(ctx, tx, line.AccountCode, line.AccountName, now)
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (id, ledger_entry_id, account_id, direction, amount, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			accountID,
			line.Direction,
			line.Amount,
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, code, name string, now time.Time) (snowflake.ID, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	if strings.TrimSpace(name) == "" {
		name = code
	}

	var accountID snowflake.ID
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM ledger_accounts WHERE code = ?`,
		code,
	).Scan(&accountID).Error; err != nil {
		return 0, err
	}
	if accountID != 0 {
		return accountID, nil
	}

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, code, name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (code) DO NOTHING`,
		s.genID.Generate(),
		code,
		name,
		now,
	).Error; err != nil {
		return 0, err
	}

	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM ledger_accounts WHERE code = ?`,
		code,
	).Scan(&accountID).Error; err != nil {
		return 0, err
	}
	if accountID == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return accountID, nil
}
