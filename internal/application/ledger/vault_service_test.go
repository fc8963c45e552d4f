package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"go.uber.org/zap"
)

func (f *ledgerFixture) vaultService() *VaultService {
	return NewVaultService(f.scope, f.vaults, f.aggregator(nil), f.publisher, f.clock, zap.NewNop())
}

func createVaultRequest(clientID uuid.UUID) CreateVaultRequest {
	return CreateVaultRequest{
		ClientID:        clientID,
		Chain:           "Ethereum",
		TokenAddress:    testToken,
		Environment:     "production",
		CustodialWallet: testWallet,
		Strategy: json.RawMessage(`{"kind":"erc4626","params":{"chain":"ethereum","vault":"` +
			"0x83f20f44975d03b1b09e64809b757c47f942beea" + `"}}`),
	}
}

func TestVaultService_CreateVault(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	svc := f.vaultService()
	clientID := uuid.New()

	resp, err := svc.CreateVault(ctx, createVaultRequest(clientID))
	require.NoError(t, err)
	assert.Equal(t, "ethereum", resp.Chain)
	assert.Equal(t, "1000000000000000000", resp.CurrentIndex)
	assert.JSONEq(t, `{"kind":"erc4626","params":{"chain":"ethereum","vault":"0x83f20f44975d03b1b09e64809b757c47f942beea"}}`, string(resp.Strategy))
	assert.Contains(t, f.publisher.types(), ledger.EventTypeVaultCreated)

	_, err = svc.CreateVault(ctx, createVaultRequest(clientID))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	got, err := svc.GetVault(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, got.ID)
}

func TestVaultService_CreateVault_InvalidStrategy(t *testing.T) {
	f := newLedgerFixture()
	req := createVaultRequest(uuid.New())
	req.Strategy = json.RawMessage(`{"kind":"sandbox","params":{"apy":"5"}}`)

	_, err := f.vaultService().CreateVault(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestVaultService_ConfirmStake(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture()
	clientID := uuid.New()
	vault := f.addProductionVault(t, clientID)
	accounts := f.accountService(nil)
	_, err := accounts.Deposit(ctx, DepositRequest{ClientID: clientID, EndUserID: "u1", VaultID: vault.ID, Amount: "1000"})
	require.NoError(t, err)

	svc := f.vaultService()
	resp, err := svc.ConfirmStake(ctx, vault.ID, AmountRequest{Amount: "700"})
	require.NoError(t, err)
	assert.Equal(t, "300", resp.PendingDepositBalance)
	assert.Equal(t, "700", resp.TotalStakedBalance)

	_, err = svc.ConfirmStake(ctx, vault.ID, AmountRequest{Amount: "301"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, svc.DeactivateVault(ctx, vault.ID))
	_, err = accounts.Deposit(ctx, DepositRequest{ClientID: clientID, EndUserID: "u1", VaultID: vault.ID, Amount: "1"})
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}
