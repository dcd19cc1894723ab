package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/dice-oracle/internal/logging"
)

// ChainIDReader reports the node's chain id.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// OracleReader reports the address the contract accepts fulfillments from.
type OracleReader interface {
	Oracle(ctx context.Context) (common.Address, error)
}

// PreflightConfig configures Preflight.
type PreflightConfig struct {
	Node     ChainIDReader
	Contract OracleReader

	ContractAddress common.Address
	RelayAddress    common.Address
	ChainID         *big.Int

	Logger *logging.Logger
}

// Preflight logs the relay identity and checks it against the node and
// contract. Problems are logged and returned as warnings; none of them
// prevent the loop from starting.
func Preflight(ctx context.Context, cfg PreflightConfig) []string {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("relay")
	}

	log.WithContext(ctx).WithFields(map[string]any{
		"contract": cfg.ContractAddress.Hex(),
		"oracle":   cfg.RelayAddress.Hex(),
		"chain_id": cfg.ChainID.String(),
	}).Info("listening to contract")

	var warnings []string
	warn := func(msg string, err error) {
		warnings = append(warnings, msg)
		entry := log.WithContext(ctx)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn(msg)
	}

	if cfg.Node != nil {
		id, err := cfg.Node.ChainID(ctx)
		switch {
		case err != nil:
			warn("could not read chain id from node", err)
		case cfg.ChainID != nil && id.Cmp(cfg.ChainID) != 0:
			warn(fmt.Sprintf("node chain id %s does not match configured chain id %s", id, cfg.ChainID), nil)
		}
	}

	if cfg.Contract != nil {
		oracle, err := cfg.Contract.Oracle(ctx)
		switch {
		case err != nil:
			warn("could not read oracle address from contract", err)
		case oracle != cfg.RelayAddress:
			warn(fmt.Sprintf("contract oracle %s is not the relay wallet %s; fulfillments will revert", oracle.Hex(), cfg.RelayAddress.Hex()), nil)
		}
	}

	return warnings
}
