package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/dice-oracle/internal/dice"
)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// =============================================================================
// Dice Contract Interface
// =============================================================================

// DiceContract provides interaction with the dice contract.
type DiceContract struct {
	caller  Caller
	address common.Address
}

// NewDiceContract creates a new dice contract interface.
func NewDiceContract(caller Caller, address common.Address) *DiceContract {
	return &DiceContract{
		caller:  caller,
		address: address,
	}
}

// Address returns the contract address.
func (d *DiceContract) Address() common.Address {
	return d.address
}

// IsRolling reports whether a roll request is waiting for fulfillment.
func (d *DiceContract) IsRolling(ctx context.Context) (bool, error) {
	out, err := d.call(ctx, MethodIsRolling)
	if err != nil {
		return false, err
	}
	rolling, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected result type %T", MethodIsRolling, out[0])
	}
	return rolling, nil
}

// LastResult returns the last fulfilled roll.
func (d *DiceContract) LastResult(ctx context.Context) (*big.Int, error) {
	out, err := d.call(ctx, MethodLastResult)
	if err != nil {
		return nil, err
	}
	result, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", MethodLastResult, out[0])
	}
	return result, nil
}

// Oracle returns the address the contract accepts fulfillments from.
func (d *DiceContract) Oracle(ctx context.Context) (common.Address, error) {
	out, err := d.call(ctx, MethodOracle)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected result type %T", MethodOracle, out[0])
	}
	return addr, nil
}

// PackFulfill encodes the fulfillRoll call data for value.
func (d *DiceContract) PackFulfill(value dice.Value) ([]byte, error) {
	data, err := diceABI.Pack(MethodFulfillRoll, value.Big())
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodFulfillRoll, err)
	}
	return data, nil
}

func (d *DiceContract) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := diceABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := d.address
	result, err := d.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("call %s: empty result (no contract at %s?)", method, to.Hex())
	}

	out, err := diceABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no result", method)
	}
	return out, nil
}
