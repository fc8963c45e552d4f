package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormVaultLedgerRepository implements VaultLedgerRepository using GORM
type GormVaultLedgerRepository struct {
	db *gorm.DB
}

// NewGormVaultLedgerRepository creates a new GormVaultLedgerRepository
func NewGormVaultLedgerRepository(db *gorm.DB) *GormVaultLedgerRepository {
	return &GormVaultLedgerRepository{db: db}
}

// FindByID finds a vault by its ID
func (r *GormVaultLedgerRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.VaultLedger, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a vault and takes a row lock (SELECT ... FOR UPDATE).
// Must be called inside a transaction for the lock to outlive the statement.
func (r *GormVaultLedgerRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.VaultLedger, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// FindByKey finds the vault of a client for (chain, token, environment)
func (r *GormVaultLedgerRepository) FindByKey(ctx context.Context, clientID uuid.UUID, chain, tokenAddress string, env ledger.Environment) (*ledger.VaultLedger, error) {
	return r.first(r.db.WithContext(ctx).
		Where("client_id = ? AND chain = ? AND token_address = ? AND environment = ?",
			clientID, chain, tokenAddress, string(env)))
}

// ListByClient returns every active vault of a client
func (r *GormVaultLedgerRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*ledger.VaultLedger, error) {
	return r.find(r.db.WithContext(ctx).
		Where("client_id = ? AND active = ?", clientID, true).
		Order("created_at ASC"))
}

// ListActive returns every active vault
func (r *GormVaultLedgerRepository) ListActive(ctx context.Context) ([]*ledger.VaultLedger, error) {
	return r.find(r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC"))
}

// FindAll lists vaults with filtering and pagination
func (r *GormVaultLedgerRepository) FindAll(ctx context.Context, filter ledger.VaultFilter) ([]*ledger.VaultLedger, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.VaultLedgerModel{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Environment != nil {
		query = query.Where("environment = ?", string(*filter.Environment))
	}
	if filter.Chain != "" {
		query = query.Where("chain = ?", filter.Chain)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	vaults, err := r.find(applyPagination(query, filter.Filter, VaultSortFields, "created_at"))
	if err != nil {
		return nil, 0, err
	}
	return vaults, total, nil
}

// ListClientIDs returns the distinct clients owning an active vault
func (r *GormVaultLedgerRepository) ListClientIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.VaultLedgerModel{}).
		Where("active = ?", true).
		Distinct().
		Order("client_id").
		Pluck("client_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Save creates or updates a vault
func (r *GormVaultLedgerRepository) Save(ctx context.Context, vault *ledger.VaultLedger) error {
	model, err := models.VaultLedgerModelFromDomain(vault)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDomainErrorf(shared.CodeAlreadyExists,
				"vault for %s/%s (%s) already exists", vault.Chain, vault.TokenAddress, vault.Environment)
		}
		return err
	}
	return nil
}

func (r *GormVaultLedgerRepository) first(query *gorm.DB) (*ledger.VaultLedger, error) {
	var model models.VaultLedgerModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

func (r *GormVaultLedgerRepository) find(query *gorm.DB) ([]*ledger.VaultLedger, error) {
	var rows []models.VaultLedgerModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	vaults := make([]*ledger.VaultLedger, 0, len(rows))
	for i := range rows {
		v, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

// Ensure GormVaultLedgerRepository implements VaultLedgerRepository
var _ ledger.VaultLedgerRepository = (*GormVaultLedgerRepository)(nil)
