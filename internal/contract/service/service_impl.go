package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rmateo1203/AdminiRed-sub000/internal/clock"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	contractdomain "github.com/rmateo1203/AdminiRed-sub000/internal/contract/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxAttempts bounds the collision-retry loop. Hitting it means the numbering
// configuration or the sequence row is broken and needs operator attention.
const maxAttempts = 1000

const (
	tokenPrefix    = "{PREFIX}"
	tokenYearFull  = "{YYYY}"
	tokenYearShort = "{YY}"
	tokenMonth     = "{MM}"
	tokenDay       = "{DD}"
	tokenSequence  = "{SEQ}"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.Config
}

func NewService(p Params) contractdomain.Generator {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contract.generator"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Cfg,
	}
}

func (s *Service) ActiveConfig(ctx context.Context) (contractdomain.NumberingConfig, error) {
	var cfg contractdomain.NumberingConfig
	result := s.db.WithContext(ctx).Raw(
		`SELECT id, template, prefix, sequence_width, initial_value, reset_policy, is_active
		 FROM contract_numbering_configs
		 WHERE is_active = TRUE
		 ORDER BY id
		 LIMIT 1`,
	).Scan(&cfg)
	if result.Error != nil {
		return contractdomain.NumberingConfig{}, result.Error
	}
	if cfg.ID != 0 {
		return cfg, nil
	}

	fallback := s.cfg.Contract
	return contractdomain.NumberingConfig{
		Template:      fallback.Template,
		Prefix:        fallback.Prefix,
		SequenceWidth: fallback.SequenceWidth,
		InitialValue:  fallback.InitialSequence,
		ResetPolicy:   contractdomain.ResetPolicy(fallback.ResetPolicy),
	}, nil
}

// Generate issues the next contract identifier for cfg. The counter row is
// incremented atomically inside one transaction, so concurrent issuers can
// never observe the same sequence value. Candidates are still verified against
// installations.contract_id and retried on collision, bounded by maxAttempts,
// so a manually assigned identifier cannot wedge the sequence.
func (s *Service) Generate(ctx context.Context, cfg contractdomain.NumberingConfig) (string, error) {
	if !strings.Contains(cfg.Template, tokenSequence) {
		return "", contractdomain.ErrInvalidTemplate
	}
	if cfg.ResetPolicy == "" {
		cfg.ResetPolicy = contractdomain.ResetNever
	}
	if !cfg.ResetPolicy.Valid() {
		return "", contractdomain.ErrInvalidResetPolicy
	}
	if cfg.SequenceWidth <= 0 {
		cfg.SequenceWidth = 1
	}
	if cfg.InitialValue <= 0 {
		cfg.InitialValue = 1
	}

	now := s.clock.Now()
	literal := expandTokens(cfg, now)
	key := patternKey(cfg.ResetPolicy, literal, now)

	var contractID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO contract_sequences (id, pattern_key, last_value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (pattern_key) DO NOTHING`,
			s.genID.Generate(),
			key,
			cfg.InitialValue-1,
			now,
		).Error; err != nil {
			return err
		}

		for attempt := 0; attempt < maxAttempts; attempt++ {
			var seq int64
			if err := tx.Raw(
				`UPDATE contract_sequences
				 SET last_value = last_value + 1, updated_at = ?
				 WHERE pattern_key = ?
				 RETURNING last_value`,
				now,
				key,
			).Scan(&seq).Error; err != nil {
				return err
			}

			candidate := strings.ReplaceAll(literal, tokenSequence, padSequence(seq, cfg.SequenceWidth))

			var count int64
			if err := tx.Raw(
				`SELECT COUNT(1) FROM installations WHERE contract_id = ?`,
				candidate,
			).Scan(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				contractID = candidate
				return nil
			}
			s.log.Warn("contract id collision, retrying",
				zap.String("candidate", candidate),
				zap.Int("attempt", attempt+1),
			)
		}
		return contractdomain.ErrGenerationExhausted
	})
	if err != nil {
		return "", err
	}
	return contractID, nil
}

// expandTokens substitutes everything except the sequence token.
func expandTokens(cfg contractdomain.NumberingConfig, now time.Time) string {
	replacer := strings.NewReplacer(
		tokenPrefix, cfg.Prefix,
		tokenYearFull, now.Format("2006"),
		tokenYearShort, now.Format("06"),
		tokenMonth, now.Format("01"),
		tokenDay, now.Format("02"),
	)
	return replacer.Replace(cfg.Template)
}

// patternKey scopes the counter row. Reset "never" still keys on the literal
// expansion, so multiple concurrently-used formats keep independent counters.
func patternKey(policy contractdomain.ResetPolicy, literal string, now time.Time) string {
	switch policy {
	case contractdomain.ResetDaily:
		return literal + "|" + now.Format("20060102")
	case contractdomain.ResetMonthly:
		return literal + "|" + now.Format("200601")
	default:
		return literal
	}
}

func padSequence(seq int64, width int) string {
	return fmt.Sprintf("%0*d", width, seq)
}
