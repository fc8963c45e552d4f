package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// VaultFilter defines filtering options for vault queries
type VaultFilter struct {
	shared.Filter
	ClientID    *uuid.UUID   // Filter by owning client
	Environment *Environment // Filter by environment
	Chain       string       // Filter by chain
	ActiveOnly  bool         // Only active vaults
}

// VaultLedgerRepository defines the interface for vault persistence
type VaultLedgerRepository interface {
	// FindByID finds a vault by ID
	FindByID(ctx context.Context, id uuid.UUID) (*VaultLedger, error)

	// FindByIDForUpdate loads a vault and locks its row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*VaultLedger, error)

	// FindByKey finds the vault of a client for (chain, token, environment)
	FindByKey(ctx context.Context, clientID uuid.UUID, chain, tokenAddress string, env Environment) (*VaultLedger, error)

	// ListByClient returns every active vault of a client
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*VaultLedger, error)

	// ListActive returns every active vault
	ListActive(ctx context.Context) ([]*VaultLedger, error)

	// FindAll lists vaults with filtering and pagination
	FindAll(ctx context.Context, filter VaultFilter) ([]*VaultLedger, int64, error)

	// ListClientIDs returns the distinct clients owning an active vault
	ListClientIDs(ctx context.Context) ([]uuid.UUID, error)

	// Save creates or updates a vault
	Save(ctx context.Context, vault *VaultLedger) error
}

// ShareAccountRepository defines the interface for share account persistence
type ShareAccountRepository interface {
	// FindByEndUser finds the account of endUserID with clientID
	FindByEndUser(ctx context.Context, clientID uuid.UUID, endUserID string) (*ShareAccount, error)

	// FindByEndUserForUpdate is FindByEndUser with a row lock
	FindByEndUserForUpdate(ctx context.Context, clientID uuid.UUID, endUserID string) (*ShareAccount, error)

	// ListByClient lists the accounts of a client
	ListByClient(ctx context.Context, clientID uuid.UUID, filter shared.Filter) ([]*ShareAccount, int64, error)

	// Save creates or updates an account
	Save(ctx context.Context, account *ShareAccount) error
}

// IndexSnapshotRepository defines the interface for snapshot history
type IndexSnapshotRepository interface {
	// Append stores a new snapshot
	Append(ctx context.Context, snapshot *IndexSnapshot) error

	// ListSince returns the snapshots of a vault taken at or after since, oldest first
	ListSince(ctx context.Context, vaultID uuid.UUID, since time.Time) ([]*IndexSnapshot, error)

	// PruneBefore deletes snapshots older than cutoff and returns the number removed
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevenueDistributionRepository defines the interface for distribution records
type RevenueDistributionRepository interface {
	// Append stores a new distribution
	Append(ctx context.Context, d *RevenueDistribution) error

	// ListByVault lists the distributions of a vault, newest first
	ListByVault(ctx context.Context, vaultID uuid.UUID, filter shared.Filter) ([]*RevenueDistribution, int64, error)

	// PruneBefore deletes distributions older than cutoff
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClientFeeConfigRepository defines the interface for fee configuration
type ClientFeeConfigRepository interface {
	// Get returns the fee config of a client
	Get(ctx context.Context, clientID uuid.UUID) (*ClientFeeConfig, error)

	// Save creates or updates a fee config
	Save(ctx context.Context, cfg *ClientFeeConfig) error

	// ListActive returns every active fee config
	ListActive(ctx context.Context) ([]*ClientFeeConfig, error)
}
