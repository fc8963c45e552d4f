package persistence

import (
	"context"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Row locks taken through the scoped repositories are held until commit or rollback.
type GormTransactionScope struct {
	db   *gorm.DB
	fees FeeDefaults
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, fees FeeDefaults) *GormTransactionScope {
	return &GormTransactionScope{db: db, fees: fees}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, fees: s.fees})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx   *gorm.DB
	fees FeeDefaults
}

func (r *gormTransactionalRepositories) VaultRepo() ledger.VaultLedgerRepository {
	return NewGormVaultLedgerRepository(r.tx)
}

func (r *gormTransactionalRepositories) AccountRepo() ledger.ShareAccountRepository {
	return NewGormShareAccountRepository(r.tx)
}

func (r *gormTransactionalRepositories) SnapshotRepo() ledger.IndexSnapshotRepository {
	return NewGormIndexSnapshotRepository(r.tx)
}

func (r *gormTransactionalRepositories) DistributionRepo() ledger.RevenueDistributionRepository {
	return NewGormRevenueDistributionRepository(r.tx)
}

func (r *gormTransactionalRepositories) FeeConfigRepo() ledger.ClientFeeConfigRepository {
	return NewGormClientFeeConfigRepository(r.tx, r.fees)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
