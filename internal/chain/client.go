// Package chain provides EVM ledger interaction for the oracle: a JSON-RPC
// client, the dice contract binding, transaction signing and the
// fulfillment submitter.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client provides EVM JSON-RPC client functionality.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a new JSON-RPC client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		rpc: rpcClient,
		eth: ethclient.NewClient(rpcClient),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// NonceAt returns the confirmed transaction count of account at the latest block.
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.NonceAt(ctx, account, nil)
}

// SendRawTransaction broadcasts signed transaction bytes and returns the hash
// the node assigned.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// CallContract executes a read-only call at the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
