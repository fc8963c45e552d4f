package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormShareAccountRepository implements ShareAccountRepository using GORM
type GormShareAccountRepository struct {
	db *gorm.DB
}

// NewGormShareAccountRepository creates a new GormShareAccountRepository
func NewGormShareAccountRepository(db *gorm.DB) *GormShareAccountRepository {
	return &GormShareAccountRepository{db: db}
}

// FindByEndUser finds the account of endUserID with clientID
func (r *GormShareAccountRepository) FindByEndUser(ctx context.Context, clientID uuid.UUID, endUserID string) (*ledger.ShareAccount, error) {
	return r.first(r.db.WithContext(ctx), clientID, endUserID)
}

// FindByEndUserForUpdate finds the account and locks its row until the transaction ends
func (r *GormShareAccountRepository) FindByEndUserForUpdate(ctx context.Context, clientID uuid.UUID, endUserID string) (*ledger.ShareAccount, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), clientID, endUserID)
}

// ListByClient lists the accounts of a client
func (r *GormShareAccountRepository) ListByClient(ctx context.Context, clientID uuid.UUID, filter shared.Filter) ([]*ledger.ShareAccount, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ShareAccountModel{}).
		Where("client_id = ?", clientID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ShareAccountModel
	if err := applyPagination(query, filter, ShareAccountSortFields, "created_at").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return lo.Map(rows, func(m models.ShareAccountModel, _ int) *ledger.ShareAccount {
		return m.ToDomain()
	}), total, nil
}

// Save creates or updates an account
func (r *GormShareAccountRepository) Save(ctx context.Context, account *ledger.ShareAccount) error {
	if err := r.db.WithContext(ctx).Save(models.ShareAccountModelFromDomain(account)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainErrorf(shared.CodeAlreadyExists, "account for end user %s already exists", account.EndUserID)
		}
		return err
	}
	return nil
}

func (r *GormShareAccountRepository) first(query *gorm.DB, clientID uuid.UUID, endUserID string) (*ledger.ShareAccount, error) {
	var model models.ShareAccountModel
	if err := query.
		Where("client_id = ? AND end_user_id = ?", clientID, endUserID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormShareAccountRepository implements ShareAccountRepository
var _ ledger.ShareAccountRepository = (*GormShareAccountRepository)(nil)
