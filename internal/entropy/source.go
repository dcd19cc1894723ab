// Package entropy produces die values, preferring a remote quantum random
// number service and falling back to the local CSPRNG.
package entropy

import (
	"context"
	"errors"
	"io"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/dice-oracle/internal/dice"
	"github.com/R3E-Network/dice-oracle/internal/logging"
)

// Origin names where a roll's randomness came from.
type Origin string

const (
	OriginQRNG  Origin = "qrng"
	OriginLocal Origin = "local"
)

// Roll is a die value together with its provenance.
type Roll struct {
	Value  dice.Value
	Origin Origin
	// Raw is the byte returned by the remote service, or the [0, 6) draw of
	// the local generator.
	Raw byte
}

// RemoteFetcher fetches one byte of remote randomness.
type RemoteFetcher interface {
	FetchByte(ctx context.Context) (byte, error)
}

// FallbackRecorder observes remote failures.
type FallbackRecorder interface {
	RecordEntropyFallback(reason string)
}

// Config configures a Source.
type Config struct {
	// Remote is tried first. Nil means local randomness only.
	Remote RemoteFetcher
	// Local is the CSPRNG reader. Nil uses crypto/rand.
	Local io.Reader
	// Limiter throttles remote calls; a denied call goes straight to the
	// local generator. Nil disables throttling.
	Limiter *rate.Limiter
	Logger  *logging.Logger
	Metrics FallbackRecorder
}

// Source is the relay's entropy source.
type Source struct {
	remote  RemoteFetcher
	local   *LocalGenerator
	limiter *rate.Limiter
	log     *logging.Logger
	metrics FallbackRecorder
}

// NewSource creates a new entropy source.
func NewSource(cfg Config) *Source {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("entropy")
	}
	return &Source{
		remote:  cfg.Remote,
		local:   NewLocalGenerator(cfg.Local),
		limiter: cfg.Limiter,
		log:     log,
		metrics: cfg.Metrics,
	}
}

// NextRoll returns a die value. Remote failures are logged and absorbed; an
// error is returned only if the local reader fails.
func (s *Source) NextRoll(ctx context.Context) (Roll, error) {
	if s.remote != nil {
		raw, err := s.fetchRemote(ctx)
		if err == nil {
			roll := Roll{Value: dice.FromByte(raw), Origin: OriginQRNG, Raw: raw}
			s.log.WithContext(ctx).WithFields(map[string]any{
				"source": roll.Origin,
				"raw":    roll.Raw,
				"dice":   roll.Value,
			}).Info("quantum randomness received")
			return roll, nil
		}
		s.recordFallback(ctx, err)
	}

	value, raw, err := s.local.Roll()
	if err != nil {
		return Roll{}, err
	}
	roll := Roll{Value: value, Origin: OriginLocal, Raw: raw}
	s.log.WithContext(ctx).WithFields(map[string]any{
		"source": roll.Origin,
		"raw":    roll.Raw,
		"dice":   roll.Value,
	}).Info("secure local randomness used")
	return roll, nil
}

func (s *Source) fetchRemote(ctx context.Context) (byte, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return 0, &FetchError{Reason: ReasonRateLimited}
	}
	return s.remote.FetchByte(ctx)
}

func (s *Source) recordFallback(ctx context.Context, err error) {
	reason := string(ReasonTransport)
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		reason = string(fetchErr.Reason)
	}
	s.log.WithContext(ctx).WithError(err).WithField("reason", reason).
		Warn("quantum randomness unavailable, switching to local entropy")
	if s.metrics != nil {
		s.metrics.RecordEntropyFallback(reason)
	}
}
