package agent

import (
	"errors"
	"fmt"
)

// TurnErrorKind classifies the ways a whole turn can fail. Tool-level
// failures (bad arguments, tool errors) are not turn errors: they are
// recorded as failed tool results and the loop continues.
type TurnErrorKind string

const (
	// KindRegistryUnavailable: the tool registry snapshot could not be
	// fetched at the start of the turn.
	KindRegistryUnavailable TurnErrorKind = "registry_unavailable"

	// KindOracleUnavailable: the LLM call failed at the transport level.
	KindOracleUnavailable TurnErrorKind = "oracle_unavailable"

	// KindLoopExhausted: the oracle kept requesting tools past the
	// iteration bound without producing a final answer.
	KindLoopExhausted TurnErrorKind = "loop_exhausted"

	// KindCancelled: the caller's context was cancelled mid-turn.
	KindCancelled TurnErrorKind = "cancelled"
)

// TurnError is the single fatal error type ProcessMessage returns. Kind
// tells the caller which failure class occurred; Err carries the underlying
// cause when one exists.
type TurnError struct {
	Kind   TurnErrorKind
	Detail string
	Err    error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *TurnError) Unwrap() error { return e.Err }

func newTurnError(kind TurnErrorKind, detail string, err error) *TurnError {
	return &TurnError{Kind: kind, Detail: detail, Err: err}
}

// IsTurnError reports whether err is a TurnError of the given kind.
func IsTurnError(err error, kind TurnErrorKind) bool {
	var te *TurnError
	return errors.As(err, &te) && te.Kind == kind
}
