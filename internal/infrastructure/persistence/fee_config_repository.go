package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeeDefaults is the split applied to clients without a stored fee config.
// A zero ClientSharePercent disables the fallback.
type FeeDefaults struct {
	ClientSharePercent decimal.Decimal
	PlatformFeePercent decimal.Decimal
}

func (d FeeDefaults) enabled() bool {
	return d.ClientSharePercent.IsPositive()
}

// GormClientFeeConfigRepository implements ClientFeeConfigRepository using GORM
type GormClientFeeConfigRepository struct {
	db       *gorm.DB
	defaults FeeDefaults
}

// NewGormClientFeeConfigRepository creates a new GormClientFeeConfigRepository
func NewGormClientFeeConfigRepository(db *gorm.DB, defaults FeeDefaults) *GormClientFeeConfigRepository {
	return &GormClientFeeConfigRepository{db: db, defaults: defaults}
}

// Get returns the fee config of a client, or the defaults when none is stored
func (r *GormClientFeeConfigRepository) Get(ctx context.Context, clientID uuid.UUID) (*ledger.ClientFeeConfig, error) {
	var model models.ClientFeeConfigModel
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&model).Error
	switch {
	case err == nil:
		return model.ToDomain(), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	case r.defaults.enabled():
		return &ledger.ClientFeeConfig{
			ClientID:                  clientID,
			ClientRevenueSharePercent: r.defaults.ClientSharePercent,
			PlatformFeePercent:        r.defaults.PlatformFeePercent,
			Active:                    true,
			UpdatedAt:                 time.Time{},
		}, nil
	default:
		return nil, shared.ErrNotFound
	}
}

// Save creates or updates a fee config
func (r *GormClientFeeConfigRepository) Save(ctx context.Context, cfg *ledger.ClientFeeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"client_revenue_share_percent", "platform_fee_percent", "active", "updated_at"}),
		}).
		Create(models.ClientFeeConfigModelFromDomain(cfg)).Error
}

// ListActive returns every active fee config
func (r *GormClientFeeConfigRepository) ListActive(ctx context.Context) ([]*ledger.ClientFeeConfig, error) {
	var rows []models.ClientFeeConfigModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("client_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(m models.ClientFeeConfigModel, _ int) *ledger.ClientFeeConfig {
		return m.ToDomain()
	}), nil
}

// Ensure GormClientFeeConfigRepository implements ClientFeeConfigRepository
var _ ledger.ClientFeeConfigRepository = (*GormClientFeeConfigRepository)(nil)
