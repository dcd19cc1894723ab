package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/dice-oracle/internal/dice"
	"github.com/R3E-Network/dice-oracle/internal/logging"
)

var (
	testContractAddr = common.HexToAddress("0x00000000000000000000000000000000000d1ce0")
	testChainID      = big.NewInt(43113)
	testGasPrice     = new(big.Int).Mul(big.NewInt(30), big.NewInt(params.GWei))
)

// fakeLedger records calls and plays back scripted responses.
type fakeLedger struct {
	mu sync.Mutex

	nonce    uint64
	nonceErr error
	sendErr  error
	sendHash common.Hash

	// pending is the number of receipt lookups answered with NotFound.
	pending    int
	receiptErr error
	status     uint64

	nonceCalls   int
	receiptCalls int
	sent         [][]byte
}

func (f *fakeLedger) NonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	n := f.nonce
	f.nonce++
	return n, nil
}

func (f *fakeLedger) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, raw)
	if f.sendHash != (common.Hash{}) {
		return f.sendHash, nil
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (f *fakeLedger) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		TxHash:      hash,
		Status:      f.status,
		BlockNumber: big.NewInt(1234),
		GasUsed:     51234,
	}, nil
}

type failingSigner struct {
	address common.Address
}

func (s failingSigner) Address() common.Address { return s.address }

func (s failingSigner) SignTx(*types.Transaction, *big.Int) (*types.Transaction, error) {
	return nil, errors.New("hsm offline")
}

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewKeySignerFromKey(key)
}

func newTestSubmitter(t *testing.T, ledger Ledger, signer Signer) *Submitter {
	t.Helper()
	s, err := NewSubmitter(SubmitterConfig{
		Ledger:              ledger,
		Signer:              signer,
		Contract:            NewDiceContract(nil, testContractAddr),
		ChainID:             testChainID,
		GasLimit:            80000,
		GasPrice:            testGasPrice,
		ReceiptPollInterval: time.Millisecond,
		ReceiptTimeout:      time.Second,
		Logger:              logging.NewDiscard(),
	})
	require.NoError(t, err)
	return s
}

// =============================================================================
// Success path
// =============================================================================

func TestFulfill_Success(t *testing.T) {
	ledger := &fakeLedger{nonce: 5, status: types.ReceiptStatusSuccessful, pending: 2}
	signer := newTestSigner(t)
	s := newTestSubmitter(t, ledger, signer)

	receipt, err := s.Fulfill(context.Background(), dice.Value(2))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(1234), receipt.BlockNumber)
	assert.Equal(t, uint64(51234), receipt.GasUsed)
	assert.Equal(t, 3, ledger.receiptCalls)

	require.Len(t, ledger.sent, 1)
	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(ledger.sent[0]))

	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint64(80000), tx.Gas())
	assert.Equal(t, 0, tx.GasPrice().Cmp(testGasPrice))
	assert.Equal(t, 0, tx.ChainId().Cmp(testChainID))
	require.NotNil(t, tx.To())
	assert.Equal(t, testContractAddr, *tx.To())
	assert.Equal(t, receipt.TxHash, tx.Hash())

	want, err := NewDiceContract(nil, testContractAddr).PackFulfill(dice.Value(2))
	require.NoError(t, err)
	assert.Equal(t, want, tx.Data())

	sender, err := types.Sender(types.NewEIP155Signer(testChainID), &tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)
}

func TestFulfill_ReadsFreshNonceEachCall(t *testing.T) {
	ledger := &fakeLedger{nonce: 9, status: types.ReceiptStatusSuccessful}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	_, err := s.Fulfill(context.Background(), dice.Value(1))
	require.NoError(t, err)
	_, err = s.Fulfill(context.Background(), dice.Value(6))
	require.NoError(t, err)

	assert.Equal(t, 2, ledger.nonceCalls)
	require.Len(t, ledger.sent, 2)

	var first, second types.Transaction
	require.NoError(t, first.UnmarshalBinary(ledger.sent[0]))
	require.NoError(t, second.UnmarshalBinary(ledger.sent[1]))
	assert.Equal(t, uint64(9), first.Nonce())
	assert.Equal(t, uint64(10), second.Nonce())
}

func TestFulfill_UsesNodeHash(t *testing.T) {
	nodeHash := common.HexToHash("0xfeed")
	ledger := &fakeLedger{status: types.ReceiptStatusSuccessful, sendHash: nodeHash}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	receipt, err := s.Fulfill(context.Background(), dice.Value(3))
	require.NoError(t, err)
	assert.Equal(t, nodeHash, receipt.TxHash)
}

// =============================================================================
// Failure taxonomy
// =============================================================================

func TestFulfill_NonceFailureSkipsBroadcast(t *testing.T) {
	ledger := &fakeLedger{nonceErr: errors.New("connection refused")}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	receipt, err := s.Fulfill(context.Background(), dice.Value(4))
	assert.Nil(t, receipt)

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageNonce, subErr.Stage)
	assert.Empty(t, ledger.sent)
	assert.Zero(t, ledger.receiptCalls)
}

func TestFulfill_SignFailure(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestSubmitter(t, ledger, failingSigner{address: common.HexToAddress("0x01")})

	_, err := s.Fulfill(context.Background(), dice.Value(4))

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageSign, subErr.Stage)
	assert.ErrorContains(t, err, "hsm offline")
	assert.Empty(t, ledger.sent)
}

func TestFulfill_BroadcastFailure(t *testing.T) {
	ledger := &fakeLedger{sendErr: errors.New("nonce too low")}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	_, err := s.Fulfill(context.Background(), dice.Value(4))

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageBroadcast, subErr.Stage)
	assert.Equal(t, common.Hash{}, subErr.TxHash)
	assert.Zero(t, ledger.receiptCalls)
}

func TestFulfill_InvalidValue(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	_, err := s.Fulfill(context.Background(), dice.Value(7))

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageBuild, subErr.Stage)
	assert.Zero(t, ledger.nonceCalls)
}

func TestFulfill_RevertedIsDistinct(t *testing.T) {
	ledger := &fakeLedger{status: types.ReceiptStatusFailed}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	receipt, err := s.Fulfill(context.Background(), dice.Value(2))
	require.NotNil(t, receipt)
	assert.False(t, receipt.Succeeded())

	var revertErr *RevertError
	require.True(t, errors.As(err, &revertErr))
	assert.Equal(t, receipt.TxHash, revertErr.TxHash)
	assert.Equal(t, uint64(1234), revertErr.BlockNumber)

	var subErr *SubmissionError
	assert.False(t, errors.As(err, &subErr))
}

func TestFulfill_ReceiptTimeout(t *testing.T) {
	ledger := &fakeLedger{pending: 1 << 30}
	s, err := NewSubmitter(SubmitterConfig{
		Ledger:              ledger,
		Signer:              newTestSigner(t),
		Contract:            NewDiceContract(nil, testContractAddr),
		ChainID:             testChainID,
		GasLimit:            80000,
		GasPrice:            testGasPrice,
		ReceiptPollInterval: time.Millisecond,
		ReceiptTimeout:      20 * time.Millisecond,
		Logger:              logging.NewDiscard(),
	})
	require.NoError(t, err)

	_, err = s.Fulfill(context.Background(), dice.Value(2))

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageReceipt, subErr.Stage)
	assert.NotEqual(t, common.Hash{}, subErr.TxHash)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFulfill_ReceiptLookupFailure(t *testing.T) {
	ledger := &fakeLedger{receiptErr: errors.New("rpc gateway timeout")}
	s := newTestSubmitter(t, ledger, newTestSigner(t))

	_, err := s.Fulfill(context.Background(), dice.Value(2))

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StageReceipt, subErr.Stage)
	assert.Equal(t, 1, ledger.receiptCalls)
}

// =============================================================================
// Construction
// =============================================================================

func TestNewSubmitter_Validation(t *testing.T) {
	base := SubmitterConfig{
		Ledger:   &fakeLedger{},
		Signer:   newTestSigner(t),
		Contract: NewDiceContract(nil, testContractAddr),
		ChainID:  testChainID,
		GasLimit: 80000,
		GasPrice: testGasPrice,
	}

	tests := []struct {
		name   string
		mutate func(*SubmitterConfig)
	}{
		{"no ledger", func(c *SubmitterConfig) { c.Ledger = nil }},
		{"no signer", func(c *SubmitterConfig) { c.Signer = nil }},
		{"no contract", func(c *SubmitterConfig) { c.Contract = nil }},
		{"no chain id", func(c *SubmitterConfig) { c.ChainID = nil }},
		{"zero chain id", func(c *SubmitterConfig) { c.ChainID = big.NewInt(0) }},
		{"no gas limit", func(c *SubmitterConfig) { c.GasLimit = 0 }},
		{"no gas price", func(c *SubmitterConfig) { c.GasPrice = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewSubmitter(cfg)
			assert.Error(t, err)
		})
	}

	s, err := NewSubmitter(base)
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, s.pollInterval)
	assert.Equal(t, DefaultTxWaitTimeout, s.waitTimeout)
}
