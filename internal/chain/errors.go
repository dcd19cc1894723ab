package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Stage names the step of a fulfillment that failed.
type Stage string

const (
	StageNonce     Stage = "nonce"
	StageBuild     Stage = "build"
	StageSign      Stage = "sign"
	StageEncode    Stage = "encode"
	StageBroadcast Stage = "broadcast"
	StageReceipt   Stage = "receipt"
)

// SubmissionError is a fulfillment that failed before a receipt was obtained.
// The transaction either never reached the network or its fate is unknown.
type SubmissionError struct {
	Stage  Stage
	TxHash common.Hash // zero until broadcast succeeded
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("fulfill %s (tx %s): %v", e.Stage, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("fulfill %s: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RevertError is a fulfillment that was mined with a failed status.
type RevertError struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("transaction %s reverted (status %d, block %d)", e.TxHash.Hex(), e.Status, e.BlockNumber)
}
