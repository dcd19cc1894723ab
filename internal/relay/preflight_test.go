package relay

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/dice-oracle/internal/logging"
)

type fakeNode struct {
	id  *big.Int
	err error
}

func (n fakeNode) ChainID(context.Context) (*big.Int, error) { return n.id, n.err }

type fakeOracle struct {
	addr common.Address
	err  error
}

func (o fakeOracle) Oracle(context.Context) (common.Address, error) { return o.addr, o.err }

func TestPreflight(t *testing.T) {
	relayAddr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name     string
		node     ChainIDReader
		contract OracleReader
		warnings int
		contains string
	}{
		{
			name:     "all consistent",
			node:     fakeNode{id: big.NewInt(43113)},
			contract: fakeOracle{addr: relayAddr},
		},
		{
			name:     "chain id mismatch",
			node:     fakeNode{id: big.NewInt(1)},
			contract: fakeOracle{addr: relayAddr},
			warnings: 1,
			contains: "does not match configured chain id 43113",
		},
		{
			name:     "oracle mismatch",
			node:     fakeNode{id: big.NewInt(43113)},
			contract: fakeOracle{addr: other},
			warnings: 1,
			contains: "is not the relay wallet",
		},
		{
			name:     "rpc failures",
			node:     fakeNode{err: errors.New("dial tcp: refused")},
			contract: fakeOracle{err: errors.New("execution reverted")},
			warnings: 2,
			contains: "could not read",
		},
		{
			name: "nothing to check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := Preflight(context.Background(), PreflightConfig{
				Node:            tt.node,
				Contract:        tt.contract,
				ContractAddress: common.HexToAddress("0x00000000000000000000000000000000000000c0"),
				RelayAddress:    relayAddr,
				ChainID:         big.NewInt(43113),
				Logger:          logging.NewDiscard(),
			})
			assert.Len(t, warnings, tt.warnings)
			if tt.contains != "" {
				assert.Contains(t, warnings[0], tt.contains)
			}
		})
	}
}
