package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/R3E-Network/dice-oracle/internal/dice"
	"github.com/R3E-Network/dice-oracle/internal/logging"
)

// Ledger is the subset of the JSON-RPC client the submitter needs.
type Ledger interface {
	ReceiptReader
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}

// Receipt is the terminal outcome of a fulfillment transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// =============================================================================
// Fulfillment Submitter
// =============================================================================

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	Ledger   Ledger
	Signer   Signer
	Contract *DiceContract
	ChainID  *big.Int
	GasLimit uint64
	GasPrice *big.Int

	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration

	Logger *logging.Logger
}

// Submitter builds, signs, broadcasts and confirms fulfillRoll transactions.
type Submitter struct {
	ledger   Ledger
	signer   Signer
	contract *DiceContract
	chainID  *big.Int
	gasLimit uint64
	gasPrice *big.Int

	pollInterval time.Duration
	waitTimeout  time.Duration

	log *logging.Logger
}

// NewSubmitter creates a new fulfillment submitter.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("submitter: ledger is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("submitter: signer is required")
	}
	if cfg.Contract == nil {
		return nil, fmt.Errorf("submitter: contract is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("submitter: positive chain id is required")
	}
	if cfg.GasLimit == 0 {
		return nil, fmt.Errorf("submitter: gas limit is required")
	}
	if cfg.GasPrice == nil || cfg.GasPrice.Sign() < 0 {
		return nil, fmt.Errorf("submitter: gas price is required")
	}

	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	waitTimeout := cfg.ReceiptTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("submitter")
	}

	return &Submitter{
		ledger:       cfg.Ledger,
		signer:       cfg.Signer,
		contract:     cfg.Contract,
		chainID:      new(big.Int).Set(cfg.ChainID),
		gasLimit:     cfg.GasLimit,
		gasPrice:     new(big.Int).Set(cfg.GasPrice),
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
		log:          log,
	}, nil
}

// Fulfill writes value to the contract and waits for the receipt.
//
// A reverted transaction returns its receipt together with a *RevertError.
// Every other failure is a *SubmissionError. Nothing is retried here.
func (s *Submitter) Fulfill(ctx context.Context, value dice.Value) (*Receipt, error) {
	if !value.Valid() {
		return nil, &SubmissionError{Stage: StageBuild, Err: fmt.Errorf("dice value %d out of range", value)}
	}

	from := s.signer.Address()
	nonce, err := s.ledger.NonceAt(ctx, from)
	if err != nil {
		return nil, &SubmissionError{Stage: StageNonce, Err: fmt.Errorf("read nonce for %s: %w", from.Hex(), err)}
	}

	tx, err := s.buildTx(nonce, value)
	if err != nil {
		return nil, &SubmissionError{Stage: StageBuild, Err: err}
	}

	signed, err := s.signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, &SubmissionError{Stage: StageSign, Err: err}
	}
	if signed == nil {
		return nil, &SubmissionError{Stage: StageSign, Err: errors.New("signer returned no transaction")}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &SubmissionError{Stage: StageEncode, Err: err}
	}

	txHash, err := s.ledger.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, &SubmissionError{Stage: StageBroadcast, Err: err}
	}
	if txHash == (common.Hash{}) {
		txHash = signed.Hash()
	}

	s.log.WithContext(ctx).WithFields(map[string]any{
		"tx_hash": txHash.Hex(),
		"nonce":   nonce,
		"dice":    value,
	}).Info("fulfillment broadcast")

	wctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	r, err := WaitForReceipt(wctx, s.ledger, txHash, s.pollInterval)
	if err != nil {
		return nil, &SubmissionError{Stage: StageReceipt, TxHash: txHash, Err: fmt.Errorf("wait for receipt: %w", err)}
	}

	receipt := &Receipt{
		TxHash:  txHash,
		Status:  r.Status,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}

	if !receipt.Succeeded() {
		return receipt, &RevertError{
			TxHash:      txHash,
			Status:      receipt.Status,
			BlockNumber: receipt.BlockNumber,
		}
	}
	return receipt, nil
}

func (s *Submitter) buildTx(nonce uint64, value dice.Value) (*types.Transaction, error) {
	data, err := s.contract.PackFulfill(value)
	if err != nil {
		return nil, err
	}
	to := s.contract.Address()
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(s.gasPrice),
		Gas:      s.gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	}), nil
}
