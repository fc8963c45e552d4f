package ledger

import (
	"context"

	"github.com/yieldvault/backend/internal/domain/ledger"
)

// TransactionScope runs a unit of work inside one database transaction.
// If fn returns an error the transaction is rolled back, otherwise it is committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the ledger repositories bound to
// the current transaction. Row locks taken through them are held until commit.
type TransactionalRepositories interface {
	VaultRepo() ledger.VaultLedgerRepository
	AccountRepo() ledger.ShareAccountRepository
	SnapshotRepo() ledger.IndexSnapshotRepository
	DistributionRepo() ledger.RevenueDistributionRepository
	FeeConfigRepo() ledger.ClientFeeConfigRepository
}

// NoOpTransactionScope runs fn directly against the given repositories.
// It is used in tests and with in-memory repositories.
type NoOpTransactionScope struct {
	vaults        ledger.VaultLedgerRepository
	accounts      ledger.ShareAccountRepository
	snapshots     ledger.IndexSnapshotRepository
	distributions ledger.RevenueDistributionRepository
	feeConfigs    ledger.ClientFeeConfigRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(
	vaults ledger.VaultLedgerRepository,
	accounts ledger.ShareAccountRepository,
	snapshots ledger.IndexSnapshotRepository,
	distributions ledger.RevenueDistributionRepository,
	feeConfigs ledger.ClientFeeConfigRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		vaults:        vaults,
		accounts:      accounts,
		snapshots:     snapshots,
		distributions: distributions,
		feeConfigs:    feeConfigs,
	}
}

// Execute implements TransactionScope
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) VaultRepo() ledger.VaultLedgerRepository { return s.vaults }
func (s *NoOpTransactionScope) AccountRepo() ledger.ShareAccountRepository { return s.accounts }
func (s *NoOpTransactionScope) SnapshotRepo() ledger.IndexSnapshotRepository { return s.snapshots }
func (s *NoOpTransactionScope) DistributionRepo() ledger.RevenueDistributionRepository {
	return s.distributions
}
func (s *NoOpTransactionScope) FeeConfigRepo() ledger.ClientFeeConfigRepository { return s.feeConfigs }
