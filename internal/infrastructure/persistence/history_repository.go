package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormIndexSnapshotRepository implements IndexSnapshotRepository using GORM.
// Snapshots are append-only.
type GormIndexSnapshotRepository struct {
	db *gorm.DB
}

// NewGormIndexSnapshotRepository creates a new GormIndexSnapshotRepository
func NewGormIndexSnapshotRepository(db *gorm.DB) *GormIndexSnapshotRepository {
	return &GormIndexSnapshotRepository{db: db}
}

// Append stores a new snapshot
func (r *GormIndexSnapshotRepository) Append(ctx context.Context, snapshot *ledger.IndexSnapshot) error {
	return r.db.WithContext(ctx).Create(models.IndexSnapshotModelFromDomain(snapshot)).Error
}

// ListSince returns the snapshots of a vault taken at or after since, oldest first
func (r *GormIndexSnapshotRepository) ListSince(ctx context.Context, vaultID uuid.UUID, since time.Time) ([]*ledger.IndexSnapshot, error) {
	var rows []models.IndexSnapshotModel
	if err := r.db.WithContext(ctx).
		Where("vault_id = ? AND taken_at >= ?", vaultID, since).
		Order("taken_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(m models.IndexSnapshotModel, _ int) *ledger.IndexSnapshot {
		return m.ToDomain()
	}), nil
}

// PruneBefore deletes snapshots older than cutoff
func (r *GormIndexSnapshotRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("taken_at < ?", cutoff).Delete(&models.IndexSnapshotModel{})
	return result.RowsAffected, result.Error
}

// GormRevenueDistributionRepository implements RevenueDistributionRepository using GORM
type GormRevenueDistributionRepository struct {
	db *gorm.DB
}

// NewGormRevenueDistributionRepository creates a new GormRevenueDistributionRepository
func NewGormRevenueDistributionRepository(db *gorm.DB) *GormRevenueDistributionRepository {
	return &GormRevenueDistributionRepository{db: db}
}

// Append stores a new distribution
func (r *GormRevenueDistributionRepository) Append(ctx context.Context, d *ledger.RevenueDistribution) error {
	return r.db.WithContext(ctx).Create(models.RevenueDistributionModelFromDomain(d)).Error
}

// ListByVault lists the distributions of a vault, newest first unless the filter asks otherwise
func (r *GormRevenueDistributionRepository) ListByVault(ctx context.Context, vaultID uuid.UUID, filter shared.Filter) ([]*ledger.RevenueDistribution, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.RevenueDistributionModel{}).
		Where("vault_id = ?", vaultID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.RevenueDistributionModel
	if err := applyPagination(query, filter, DistributionSortFields, "distributed_at").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return lo.Map(rows, func(m models.RevenueDistributionModel, _ int) *ledger.RevenueDistribution {
		return m.ToDomain()
	}), total, nil
}

// PruneBefore deletes distributions older than cutoff
func (r *GormRevenueDistributionRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("distributed_at < ?", cutoff).Delete(&models.RevenueDistributionModel{})
	return result.RowsAffected, result.Error
}

var (
	_ ledger.IndexSnapshotRepository       = (*GormIndexSnapshotRepository)(nil)
	_ ledger.RevenueDistributionRepository = (*GormRevenueDistributionRepository)(nil)
)
