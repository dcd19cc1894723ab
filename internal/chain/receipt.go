package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultTxWaitTimeout is the default timeout for waiting for a receipt.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling a receipt.
const DefaultPollInterval = time.Second

// ReceiptReader fetches transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls for a transaction receipt until it is available or ctx
// is done. A not-yet-mined transaction is treated as transient.
func WaitForReceipt(ctx context.Context, r ReceiptReader, hash common.Hash, pollInterval time.Duration) (*types.Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !isNotFoundError(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
