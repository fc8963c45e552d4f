package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// StrategyKind discriminates StrategyConfig variants
type StrategyKind string

const (
	// StrategySandbox simulates growth from a configured APY
	StrategySandbox StrategyKind = "sandbox"
	// StrategyERC20Balance reads a rebasing position token balance (aToken style)
	StrategyERC20Balance StrategyKind = "erc20_balance"
	// StrategyERC4626 reads the assets behind ERC-4626 vault shares
	StrategyERC4626 StrategyKind = "erc4626"
	// StrategySPLToken reads an SPL token account balance on Solana
	StrategySPLToken StrategyKind = "spl_token"
	// StrategyComposite sums several external positions
	StrategyComposite StrategyKind = "composite"
)

// StrategyConfig describes where a vault's capital is deployed and how its
// balance is observed. The set of variants is closed: only the types in this
// file implement it.
type StrategyConfig interface {
	Kind() StrategyKind
	Validate() error
	isStrategy()
}

// SandboxStrategy simulates yield at a fixed APY percentage
type SandboxStrategy struct {
	APY decimal.Decimal `json:"apy"`
}

// ERC20BalanceStrategy observes balanceOf(wallet) on a rebasing token
type ERC20BalanceStrategy struct {
	Chain string `json:"chain" validate:"required"`
	Token string `json:"token" validate:"required,eth_addr"`
}

// ERC4626Strategy observes convertToAssets(balanceOf(wallet)) on a tokenized vault
type ERC4626Strategy struct {
	Chain string `json:"chain" validate:"required"`
	Vault string `json:"vault" validate:"required,eth_addr"`
}

// SPLTokenStrategy observes the wallet's associated token account for Mint
type SPLTokenStrategy struct {
	Mint string `json:"mint" validate:"required,min=32,max=44,alphanum"`
}

// CompositeStrategy sums the balances of several positions
type CompositeStrategy struct {
	Positions []StrategyConfig `json:"-"`
}

var strategyValidator = validator.New(validator.WithRequiredStructEnabled())

func (SandboxStrategy) Kind() StrategyKind      { return StrategySandbox }
func (ERC20BalanceStrategy) Kind() StrategyKind { return StrategyERC20Balance }
func (ERC4626Strategy) Kind() StrategyKind      { return StrategyERC4626 }
func (SPLTokenStrategy) Kind() StrategyKind     { return StrategySPLToken }
func (CompositeStrategy) Kind() StrategyKind    { return StrategyComposite }

func (SandboxStrategy) isStrategy()      {}
func (ERC20BalanceStrategy) isStrategy() {}
func (ERC4626Strategy) isStrategy()      {}
func (SPLTokenStrategy) isStrategy()     {}
func (CompositeStrategy) isStrategy()    {}

// Validate implements StrategyConfig
func (s SandboxStrategy) Validate() error {
	if s.APY.IsNegative() || s.APY.GreaterThan(hundred) {
		return shared.NewDomainErrorf(shared.CodeValidation, "sandbox apy %s must be within [0,100]", s.APY)
	}
	return nil
}

// Validate implements StrategyConfig
func (s ERC20BalanceStrategy) Validate() error { return validateStruct(s) }

// Validate implements StrategyConfig
func (s ERC4626Strategy) Validate() error { return validateStruct(s) }

// Validate implements StrategyConfig
func (s SPLTokenStrategy) Validate() error { return validateStruct(s) }

// Validate implements StrategyConfig
func (s CompositeStrategy) Validate() error {
	if len(s.Positions) == 0 {
		return shared.NewDomainError(shared.CodeValidation, "composite strategy needs at least one position")
	}
	for i, p := range s.Positions {
		switch p.Kind() {
		case StrategySandbox, StrategyComposite:
			return shared.NewDomainErrorf(shared.CodeValidation, "composite position %d cannot be %s", i, p.Kind())
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateStruct(s any) error {
	if err := strategyValidator.Struct(s); err != nil {
		return shared.NewDomainErrorf(shared.CodeValidation, "invalid strategy: %v", err)
	}
	return nil
}

type strategyEnvelope struct {
	Kind      StrategyKind      `json:"kind"`
	Params    json.RawMessage   `json:"params,omitempty"`
	Positions []json.RawMessage `json:"positions,omitempty"`
}

// MarshalStrategy encodes a strategy with its kind discriminator
func MarshalStrategy(s StrategyConfig) ([]byte, error) {
	if s == nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "strategy is required")
	}
	env := strategyEnvelope{Kind: s.Kind()}
	if c, ok := s.(CompositeStrategy); ok {
		for _, p := range c.Positions {
			raw, err := MarshalStrategy(p)
			if err != nil {
				return nil, err
			}
			env.Positions = append(env.Positions, raw)
		}
	} else {
		params, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshal %s strategy: %w", s.Kind(), err)
		}
		env.Params = params
	}
	return json.Marshal(env)
}

// UnmarshalStrategy decodes and validates a strategy. Unknown kinds and unknown
// parameter fields are rejected.
func UnmarshalStrategy(data []byte) (StrategyConfig, error) {
	var env strategyEnvelope
	if err := decodeStrict(data, &env); err != nil {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid strategy document: %v", err)
	}

	var s StrategyConfig
	switch env.Kind {
	case StrategySandbox:
		var v SandboxStrategy
		if err := decodeStrict(env.Params, &v); err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid sandbox params: %v", err)
		}
		s = v
	case StrategyERC20Balance:
		var v ERC20BalanceStrategy
		if err := decodeStrict(env.Params, &v); err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid erc20_balance params: %v", err)
		}
		s = v
	case StrategyERC4626:
		var v ERC4626Strategy
		if err := decodeStrict(env.Params, &v); err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid erc4626 params: %v", err)
		}
		s = v
	case StrategySPLToken:
		var v SPLTokenStrategy
		if err := decodeStrict(env.Params, &v); err != nil {
			return nil, shared.NewDomainErrorf(shared.CodeValidation, "invalid spl_token params: %v", err)
		}
		s = v
	case StrategyComposite:
		c := CompositeStrategy{}
		for _, raw := range env.Positions {
			p, err := UnmarshalStrategy(raw)
			if err != nil {
				return nil, err
			}
			c.Positions = append(c.Positions, p)
		}
		s = c
	default:
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "unknown strategy kind %q", env.Kind)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeStrict(data []byte, v any) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
