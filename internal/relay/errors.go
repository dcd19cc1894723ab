package relay

import "fmt"

// ErrorKind classifies a failed relay cycle.
type ErrorKind string

const (
	KindPoll       ErrorKind = "poll"
	KindEntropy    ErrorKind = "entropy"
	KindSubmission ErrorKind = "submission"
	KindRevert     ErrorKind = "revert"
	KindPanic      ErrorKind = "panic"
)

// CycleError is a failed poll/process cycle. The loop logs it and continues.
type CycleError struct {
	Kind ErrorKind
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("relay cycle %s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
