package entropy

import "fmt"

// FetchReason classifies a failed remote fetch.
type FetchReason string

const (
	ReasonTransport    FetchReason = "transport"
	ReasonStatus       FetchReason = "status"
	ReasonPayload      FetchReason = "payload"
	ReasonUnsuccessful FetchReason = "unsuccessful"
	ReasonRateLimited  FetchReason = "rate_limited"
)

// FetchError is a failure to obtain randomness from the remote service.
// It never escapes Source.NextRoll; the local generator takes over instead.
type FetchError struct {
	Reason FetchReason
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("qrng fetch failed (%s)", e.Reason)
	}
	return fmt.Sprintf("qrng fetch failed (%s): %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
