package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rmateo1203/AdminiRed-sub000/internal/config"
	contractdomain "github.com/rmateo1203/AdminiRed-sub000/internal/contract/domain"
	"gorm.io/gorm"
)

// EnsureDefaultNumberingConfig seeds an active contract numbering
// configuration on first startup so installations can activate before an
// operator customizes the format. An existing active row wins.
func EnsureDefaultNumberingConfig(db *gorm.DB, genID *snowflake.Node, cfg config.ContractConfig) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if genID == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing contractdomain.NumberingConfig
		err := tx.WithContext(ctx).Where("is_active").First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		template := strings.TrimSpace(cfg.Template)
		if template == "" {
			template = "{PREFIX}-{YYYY}{MM}-{SEQ}"
		}
		prefix := strings.TrimSpace(cfg.Prefix)
		if prefix == "" {
			prefix = "INST"
		}
		width := cfg.SequenceWidth
		if width <= 0 {
			width = 5
		}
		initial := cfg.InitialSequence
		if initial <= 0 {
			initial = 1
		}
		policy := contractdomain.ResetPolicy(strings.TrimSpace(cfg.ResetPolicy))
		if !policy.Valid() {
			policy = contractdomain.ResetNever
		}

		now := time.Now().UTC()
		return tx.WithContext(ctx).Create(&contractdomain.NumberingConfig{
			ID:            genID.Generate(),
			Template:      template,
			Prefix:        prefix,
			SequenceWidth: width,
			InitialValue:  initial,
			ResetPolicy:   policy,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}).Error
	})
}
