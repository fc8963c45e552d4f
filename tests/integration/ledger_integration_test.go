package integration

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/cache"
	"github.com/yieldvault/backend/internal/infrastructure/persistence"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

type ledgerStack struct {
	vaults   *appledger.VaultService
	accounts *appledger.AccountService
	splitter *appledger.RevenueSplitter
}

func newLedgerStack(t *testing.T, tdb *TestDB) ledgerStack {
	t.Helper()
	fees := persistence.FeeDefaults{
		ClientSharePercent: decimal.NewFromInt(15),
		PlatformFeePercent: decimal.NewFromInt(10),
	}
	stores := cache.NewInMemoryStores()
	t.Cleanup(func() { _ = stores.Close() })

	clock := shared.SystemClock{}
	log := zap.NewNop()
	vaultRepo := persistence.NewGormVaultLedgerRepository(tdb.DB)
	snapshots := persistence.NewGormIndexSnapshotRepository(tdb.DB)
	scope := persistence.NewGormTransactionScope(tdb.DB, fees)
	aggregator := appledger.NewGrowthIndexAggregator(vaultRepo, snapshots, stores.GrowthIndex, clock, log)

	return ledgerStack{
		vaults: appledger.NewVaultService(scope, vaultRepo, aggregator, nil, clock, log),
		accounts: appledger.NewAccountService(scope, persistence.NewGormShareAccountRepository(tdb.DB),
			aggregator, stores.Idempotency, nil, nil, clock, log),
		splitter: appledger.NewRevenueSplitter(scope, vaultRepo,
			persistence.NewGormRevenueDistributionRepository(tdb.DB),
			persistence.NewGormClientFeeConfigRepository(tdb.DB, fees),
			aggregator, nil, nil, clock, log),
	}
}

func createSandboxVault(t *testing.T, s ledgerStack, client uuid.UUID) *appledger.VaultResponse {
	t.Helper()
	vault, err := s.vaults.CreateVault(context.Background(), appledger.CreateVaultRequest{
		ClientID:     client,
		Chain:        "ethereum",
		TokenAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		Environment:  "sandbox",
		Strategy:     json.RawMessage(`{"kind":"sandbox","params":{"apy":"5"}}`),
	})
	require.NoError(t, err)
	return vault
}

func TestConcurrentDepositsSerialize(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	s := newLedgerStack(t, tdb)
	ctx := context.Background()
	client := uuid.New()
	vault := createSandboxVault(t, s, client)

	const workers = 16
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := s.accounts.Deposit(ctx, appledger.DepositRequest{
				ClientID:  client,
				EndUserID: "user-1",
				VaultID:   vault.ID,
				Amount:    "1000000",
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	pos, err := s.accounts.GetPosition(ctx, client, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "16000000", pos.TotalDeposited)

	got, err := s.vaults.GetVault(ctx, vault.ID)
	require.NoError(t, err)
	assert.Equal(t, "16000000", got.PendingDepositBalance)
}

func TestIdempotentDepositAppliesOnce(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	s := newLedgerStack(t, tdb)
	ctx := context.Background()
	client := uuid.New()
	vault := createSandboxVault(t, s, client)

	var applied, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.accounts.Deposit(ctx, appledger.DepositRequest{
				ClientID:       client,
				EndUserID:      "user-1",
				VaultID:        vault.ID,
				Amount:         "500",
				IdempotencyKey: "deposit-42",
			})
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, shared.ErrAlreadyExists):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(7), duplicates.Load())

	pos, err := s.accounts.GetPosition(ctx, client, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "500", pos.TotalDeposited)
}

func TestWithdrawBeyondBalanceIsRejected(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	s := newLedgerStack(t, tdb)
	ctx := context.Background()
	client := uuid.New()
	vault := createSandboxVault(t, s, client)

	_, err := s.accounts.Deposit(ctx, appledger.DepositRequest{ClientID: client, EndUserID: "user-1", VaultID: vault.ID, Amount: "1000"})
	require.NoError(t, err)

	_, err = s.accounts.Withdraw(ctx, appledger.WithdrawRequest{ClientID: client, EndUserID: "user-1", VaultID: vault.ID, Amount: "1001"})
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	pos, err := s.accounts.Withdraw(ctx, appledger.WithdrawRequest{ClientID: client, EndUserID: "user-1", VaultID: vault.ID, Amount: "400"})
	require.NoError(t, err)
	assert.Equal(t, "400", pos.TotalWithdrawn)
}

func TestDistributionUsesDefaultFees(t *testing.T) {
	tdb := NewSharedTestDB(t)
	tdb.CleanTables()
	s := newLedgerStack(t, tdb)
	ctx := context.Background()
	client := uuid.New()
	vault := createSandboxVault(t, s, client)

	dist, err := s.splitter.Distribute(ctx, vault.ID, appledger.AmountRequest{Amount: "1000"})
	require.NoError(t, err)
	assert.Equal(t, "1000", dist.RawYield)

	page, err := s.splitter.ListDistributions(ctx, vault.ID, shared.Filter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, dist.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Total)
}
