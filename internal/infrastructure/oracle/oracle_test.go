package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/backend/internal/domain/ledger"
)

const (
	usdcEthereum = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	aaveVault    = "0x4d5F47FA6A74757f35C14fD3a6Ef8E3C9BC514E8"
	wallet       = "0x00000000000000000000000000000000000000aa"
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeCaller struct {
	responses map[string][]byte // hex selector -> result
	calls     []ethereum.CallMsg
	err       error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[hex.EncodeToString(msg.Data[:4])], nil
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

type fakeSolana struct {
	amount  string
	account solana.PublicKey
	err     error
}

func (f *fakeSolana) GetTokenAccountBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	f.account = account
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: f.amount}}, nil
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, "70a08231", hex.EncodeToString(balanceOfSelector))
	assert.Equal(t, "07a2d13a", hex.EncodeToString(convertToAssetsSelector))
}

func TestERC20BalanceOracle(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{"70a08231": word(1_500_000)}}
	o, err := NewERC20BalanceOracle(caller, usdcEthereum)
	require.NoError(t, err)

	bal, err := o.ReadBalance(context.Background(), wallet, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), bal.Int64())

	require.Len(t, caller.calls, 1)
	assert.Equal(t, common.HexToAddress(usdcEthereum), *caller.calls[0].To)
	assert.Len(t, caller.calls[0].Data, 36)
	assert.Equal(t, common.HexToAddress(wallet).Bytes(), caller.calls[0].Data[16:36])

	t.Run("bad wallet", func(t *testing.T) {
		_, err := o.ReadBalance(context.Background(), "not-an-address", "")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("short result", func(t *testing.T) {
		o, err := NewERC20BalanceOracle(&fakeCaller{responses: map[string][]byte{"70a08231": {1}}}, usdcEthereum)
		require.NoError(t, err)
		_, err = o.ReadBalance(context.Background(), wallet, "")
		assert.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("rpc error", func(t *testing.T) {
		boom := errors.New("connection refused")
		o, err := NewERC20BalanceOracle(&fakeCaller{err: boom}, usdcEthereum)
		require.NoError(t, err)
		_, err = o.ReadBalance(context.Background(), wallet, "")
		assert.ErrorIs(t, err, boom)
	})
}

func TestERC4626Oracle(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"70a08231": word(1000),
		"07a2d13a": word(1050),
	}}
	o, err := NewERC4626Oracle(caller, aaveVault)
	require.NoError(t, err)

	bal, err := o.ReadBalance(context.Background(), wallet, usdcEthereum)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), bal.Int64())

	require.Len(t, caller.calls, 2)
	assert.Equal(t, word(1000), caller.calls[1].Data[4:])

	t.Run("zero shares skip conversion", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string][]byte{"70a08231": word(0)}}
		o, err := NewERC4626Oracle(caller, aaveVault)
		require.NoError(t, err)
		bal, err := o.ReadBalance(context.Background(), wallet, "")
		require.NoError(t, err)
		assert.Zero(t, bal.Sign())
		assert.Len(t, caller.calls, 1)
	})
}

func TestSPLTokenOracle(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	reader := &fakeSolana{amount: "250000000000"}
	o, err := NewSPLTokenOracle(reader, usdcMint)
	require.NoError(t, err)

	bal, err := o.ReadBalance(context.Background(), owner.String(), "")
	require.NoError(t, err)
	assert.Equal(t, "250000000000", bal.String())

	ata, _, err := solana.FindAssociatedTokenAddress(owner, solana.MustPublicKeyFromBase58(usdcMint))
	require.NoError(t, err)
	assert.Equal(t, ata, reader.account)

	t.Run("malformed amount", func(t *testing.T) {
		o, err := NewSPLTokenOracle(&fakeSolana{amount: "1.5"}, usdcMint)
		require.NoError(t, err)
		_, err = o.ReadBalance(context.Background(), owner.String(), "")
		assert.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("invalid mint", func(t *testing.T) {
		_, err := NewSPLTokenOracle(reader, "0xnotbase58")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})
}

func TestCompositeOracle(t *testing.T) {
	a := &fakeCaller{responses: map[string][]byte{"70a08231": word(100)}}
	b := &fakeCaller{responses: map[string][]byte{"70a08231": word(250)}}
	oa, err := NewERC20BalanceOracle(a, usdcEthereum)
	require.NoError(t, err)
	ob, err := NewERC20BalanceOracle(b, aaveVault)
	require.NoError(t, err)

	bal, err := CompositeOracle{oa, ob}.ReadBalance(context.Background(), wallet, "")
	require.NoError(t, err)
	assert.Equal(t, int64(350), bal.Int64())

	failing, err := NewERC20BalanceOracle(&fakeCaller{err: errors.New("timeout")}, aaveVault)
	require.NoError(t, err)
	_, err = CompositeOracle{oa, failing}.ReadBalance(context.Background(), wallet, "")
	assert.ErrorContains(t, err, "position 1")
}

func TestRegistry_Resolve(t *testing.T) {
	eth := &fakeCaller{responses: map[string][]byte{"70a08231": word(7)}}
	reg := NewRegistry(map[string]ContractCaller{"Ethereum": eth}, &fakeSolana{amount: "5"})

	t.Run("erc20 on known chain, case-insensitive", func(t *testing.T) {
		o, err := reg.Resolve(ledger.ERC20BalanceStrategy{Chain: "ethereum", Token: usdcEthereum})
		require.NoError(t, err)
		bal, err := o.ReadBalance(context.Background(), wallet, "")
		require.NoError(t, err)
		assert.Equal(t, int64(7), bal.Int64())
	})

	t.Run("unknown chain", func(t *testing.T) {
		_, err := reg.Resolve(ledger.ERC4626Strategy{Chain: "base", Vault: aaveVault})
		assert.ErrorIs(t, err, ErrUnknownChain)
	})

	t.Run("sandbox has no oracle", func(t *testing.T) {
		_, err := reg.Resolve(ledger.SandboxStrategy{APY: decimal.NewFromInt(5)})
		assert.ErrorIs(t, err, ErrUnsupportedStrategy)
	})

	t.Run("composite sums across chains", func(t *testing.T) {
		o, err := reg.Resolve(ledger.CompositeStrategy{Positions: []ledger.StrategyConfig{
			ledger.ERC20BalanceStrategy{Chain: "ethereum", Token: usdcEthereum},
			ledger.ERC20BalanceStrategy{Chain: "ethereum", Token: aaveVault},
		}})
		require.NoError(t, err)
		bal, err := o.ReadBalance(context.Background(), wallet, "")
		require.NoError(t, err)
		assert.Equal(t, int64(14), bal.Int64())
	})

	t.Run("spl without solana client", func(t *testing.T) {
		reg := NewRegistry(nil, nil)
		_, err := reg.Resolve(ledger.SPLTokenStrategy{Mint: usdcMint})
		assert.ErrorIs(t, err, ErrSolanaUnavailable)
	})
}
