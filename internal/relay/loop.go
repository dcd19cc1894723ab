// Package relay runs the oracle loop: poll the contract for a pending roll,
// draw entropy, and submit the fulfillment.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/dice-oracle/internal/chain"
	"github.com/R3E-Network/dice-oracle/internal/dice"
	"github.com/R3E-Network/dice-oracle/internal/entropy"
	"github.com/R3E-Network/dice-oracle/internal/logging"
	"github.com/R3E-Network/dice-oracle/internal/metrics"
)

// DefaultPollInterval is the sleep between cycles.
const DefaultPollInterval = 3 * time.Second

// StateReader reads the contract's pending-request flag.
type StateReader interface {
	IsRolling(ctx context.Context) (bool, error)
}

// RollSource produces die values.
type RollSource interface {
	NextRoll(ctx context.Context) (entropy.Roll, error)
}

// Fulfiller writes a die value on-chain.
type Fulfiller interface {
	Fulfill(ctx context.Context, value dice.Value) (*chain.Receipt, error)
}

// ResultReader reads back the contract's last fulfilled roll. A contract that
// implements it has the on-chain result logged after each confirmation.
type ResultReader interface {
	LastResult(ctx context.Context) (*big.Int, error)
}

// Recorder receives loop metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordPoll(err error)
	RecordRequest()
	RecordRoll(source string)
	RecordFulfillment(outcome string, duration time.Duration)
	RecordCycleError(kind string)
	SetProcessing(processing bool)
}

// State is the loop state.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Cycle summarizes the most recent processing cycle.
type Cycle struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Dice     uint8     `json:"dice,omitempty"`
	Source   string    `json:"source,omitempty"`
	TxHash   string    `json:"tx_hash,omitempty"`
	Outcome  string    `json:"outcome"`
	ErrorMsg string    `json:"error,omitempty"`
}

// Config configures a Loop.
type Config struct {
	Contract     StateReader
	Entropy      RollSource
	Submitter    Fulfiller
	PollInterval time.Duration
	Logger       *logging.Logger
	Metrics      Recorder
}

// Loop is the single-request-at-a-time relay state machine.
type Loop struct {
	contract  StateReader
	entropy   RollSource
	submitter Fulfiller
	interval  time.Duration
	log       *logging.Logger
	metrics   Recorder

	state atomic.Int32

	mu   sync.RWMutex
	last *Cycle
}

// New creates a new relay loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Contract == nil {
		return nil, fmt.Errorf("relay: contract is required")
	}
	if cfg.Entropy == nil {
		return nil, fmt.Errorf("relay: entropy source is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("relay: submitter is required")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("relay")
	}
	var rec Recorder = nopRecorder{}
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	return &Loop{
		contract:  cfg.Contract,
		entropy:   cfg.Entropy,
		submitter: cfg.Submitter,
		interval:  interval,
		log:       log,
		metrics:   rec,
	}, nil
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// LastCycle returns a copy of the most recent processing cycle, if any.
func (l *Loop) LastCycle() (Cycle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return Cycle{}, false
	}
	return *l.last, true
}

// =============================================================================
// Loop
// =============================================================================

// Run polls until ctx is cancelled. Cancellation is honoured between cycles;
// a cycle in progress always runs to completion.
func (l *Loop) Run(ctx context.Context) error {
	l.log.WithContext(ctx).WithField("poll_interval", l.interval.String()).Info("oracle relay started")

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			l.log.WithContext(ctx).Info("oracle relay stopped")
			return nil
		}

		// Errors are already logged and counted by Tick.
		_ = l.Tick(context.WithoutCancel(ctx))

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			l.log.WithContext(ctx).Info("oracle relay stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs one poll and, if a request is pending, one processing cycle.
func (l *Loop) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.setState(StateIdle)
			err = &CycleError{Kind: KindPanic, Err: fmt.Errorf("%v", r)}
			l.report(ctx, err)
		}
	}()

	rolling, err := l.contract.IsRolling(ctx)
	l.metrics.RecordPoll(err)
	if err != nil {
		err = &CycleError{Kind: KindPoll, Err: err}
		l.report(ctx, err)
		return err
	}
	if !rolling {
		return nil
	}

	cycleCtx := logging.WithCycleID(ctx, uuid.NewString())
	if err := l.process(cycleCtx); err != nil {
		l.report(cycleCtx, err)
		return err
	}
	return nil
}

func (l *Loop) process(ctx context.Context) error {
	l.setState(StateProcessing)
	defer l.setState(StateIdle)

	l.metrics.RecordRequest()
	l.log.WithContext(ctx).Info("roll requested, processing")

	cycle := &Cycle{ID: logging.CycleID(ctx), At: time.Now()}
	defer l.remember(cycle)
	defer func() {
		if r := recover(); r != nil {
			cycle.Outcome = string(KindPanic)
			cycle.ErrorMsg = fmt.Sprintf("%v", r)
			panic(r)
		}
	}()

	roll, err := l.entropy.NextRoll(ctx)
	if err != nil {
		cycle.Outcome = string(KindEntropy)
		cycle.ErrorMsg = err.Error()
		return &CycleError{Kind: KindEntropy, Err: err}
	}
	l.metrics.RecordRoll(string(roll.Origin))
	cycle.Dice = uint8(roll.Value)
	cycle.Source = string(roll.Origin)

	start := time.Now()
	receipt, err := l.submitter.Fulfill(ctx, roll.Value)
	elapsed := time.Since(start)
	if receipt != nil {
		cycle.TxHash = receipt.TxHash.Hex()
	}
	if err != nil {
		cycle.ErrorMsg = err.Error()
		var revertErr *chain.RevertError
		if errors.As(err, &revertErr) {
			cycle.Outcome = metrics.OutcomeReverted
			l.metrics.RecordFulfillment(metrics.OutcomeReverted, elapsed)
			return &CycleError{Kind: KindRevert, Err: err}
		}
		cycle.Outcome = metrics.OutcomeFailed
		l.metrics.RecordFulfillment(metrics.OutcomeFailed, elapsed)
		return &CycleError{Kind: KindSubmission, Err: err}
	}

	cycle.Outcome = metrics.OutcomeSuccess
	l.metrics.RecordFulfillment(metrics.OutcomeSuccess, elapsed)
	l.log.WithContext(ctx).WithFields(map[string]any{
		"tx_hash": receipt.TxHash.Hex(),
		"block":   receipt.BlockNumber,
		"dice":    roll.Value,
		"source":  roll.Origin,
	}).Info("transaction confirmed, waiting for next request")

	l.logLastResult(ctx, roll.Value)
	return nil
}

// logLastResult reads the contract's stored result after a confirmed
// fulfillment. Failures are logged only; the cycle already succeeded.
func (l *Loop) logLastResult(ctx context.Context, submitted dice.Value) {
	reader, ok := l.contract.(ResultReader)
	if !ok {
		return
	}
	result, err := reader.LastResult(ctx)
	if err != nil {
		l.log.WithContext(ctx).WithError(err).Warn("could not read last result from contract")
		return
	}
	entry := l.log.WithContext(ctx).WithFields(map[string]any{
		"submitted":   submitted,
		"last_result": result.String(),
	})
	if result.Cmp(submitted.Big()) != 0 {
		entry.Warn("contract last result differs from submitted value")
		return
	}
	entry.Info("contract last result updated")
}

func (l *Loop) report(ctx context.Context, err error) {
	kind := KindPanic
	var cycleErr *CycleError
	if errors.As(err, &cycleErr) {
		kind = cycleErr.Kind
	}
	l.metrics.RecordCycleError(string(kind))

	entry := l.log.WithContext(ctx).WithError(err).WithField("kind", kind)

	var subErr *chain.SubmissionError
	var revertErr *chain.RevertError
	switch {
	case errors.As(err, &revertErr):
		entry.WithFields(map[string]any{
			"tx_hash": revertErr.TxHash.Hex(),
			"block":   revertErr.BlockNumber,
		}).Error("transaction failed on chain")
	case errors.As(err, &subErr):
		entry.WithField("stage", subErr.Stage).Error("fulfillment submission failed")
	case kind == KindPoll:
		entry.Error("contract poll failed")
	case kind == KindEntropy:
		entry.Error("local entropy unavailable")
	default:
		entry.Error("relay cycle failed")
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.metrics.SetProcessing(s == StateProcessing)
}

func (l *Loop) remember(c *Cycle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = c
}

type nopRecorder struct{}

func (nopRecorder) RecordPoll(error)                        {}
func (nopRecorder) RecordRequest()                          {}
func (nopRecorder) RecordRoll(string)                       {}
func (nopRecorder) RecordFulfillment(string, time.Duration) {}
func (nopRecorder) RecordCycleError(string)                 {}
func (nopRecorder) SetProcessing(bool)                      {}
