package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	balanceOfSelector       = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	convertToAssetsSelector = crypto.Keccak256([]byte("convertToAssets(uint256)"))[:4]
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20BalanceOracle reads balanceOf(wallet) on a rebasing position token
type ERC20BalanceOracle struct {
	caller ContractCaller
	token  common.Address
}

// NewERC20BalanceOracle binds an oracle to one token contract
func NewERC20BalanceOracle(caller ContractCaller, token string) (*ERC20BalanceOracle, error) {
	addr, err := parseAddress(token)
	if err != nil {
		return nil, err
	}
	return &ERC20BalanceOracle{caller: caller, token: addr}, nil
}

// ReadBalance implements BalanceOracle. The position token is fixed by the
// strategy, so the vault's underlying token address is not consulted.
func (o *ERC20BalanceOracle) ReadBalance(ctx context.Context, custodialWallet, _ string) (*big.Int, error) {
	wallet, err := parseAddress(custodialWallet)
	if err != nil {
		return nil, err
	}
	return callUint256(ctx, o.caller, o.token, balanceOfSelector, common.LeftPadBytes(wallet.Bytes(), 32))
}

// ERC4626Oracle reads convertToAssets(balanceOf(wallet)) on a tokenized vault
type ERC4626Oracle struct {
	caller ContractCaller
	vault  common.Address
}

// NewERC4626Oracle binds an oracle to one ERC-4626 vault
func NewERC4626Oracle(caller ContractCaller, vault string) (*ERC4626Oracle, error) {
	addr, err := parseAddress(vault)
	if err != nil {
		return nil, err
	}
	return &ERC4626Oracle{caller: caller, vault: addr}, nil
}

// ReadBalance implements BalanceOracle
func (o *ERC4626Oracle) ReadBalance(ctx context.Context, custodialWallet, _ string) (*big.Int, error) {
	wallet, err := parseAddress(custodialWallet)
	if err != nil {
		return nil, err
	}
	shares, err := callUint256(ctx, o.caller, o.vault, balanceOfSelector, common.LeftPadBytes(wallet.Bytes(), 32))
	if err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return shares, nil
	}
	return callUint256(ctx, o.caller, o.vault, convertToAssetsSelector, common.LeftPadBytes(shares.Bytes(), 32))
}

func callUint256(ctx context.Context, caller ContractCaller, to common.Address, selector, arg []byte) (*big.Int, error) {
	data := make([]byte, 0, len(selector)+len(arg))
	data = append(append(data, selector...), arg...)

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", to.Hex(), err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("%w: %d bytes from %s", ErrMalformedResult, len(out), to.Hex())
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
