// Package apperrors provides the sentinel errors and behavioural kinds
// shared across the adapter, engine, and coordinator layers.
package apperrors

import "errors"

// Exchange-level sentinel errors. Adapters map venue-specific error codes
// onto these so the engine never has to know which venue it is talking to.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")

	// Engine/coordinator-level kinds (spec.md §7).
	ErrTimeout                  = errors.New("operation timed out")
	ErrLockContention           = errors.New("strategy lock held by another worker")
	ErrFatalAdapterConstruction = errors.New("fatal adapter construction error")
	ErrRolloverFailed           = errors.New("market rollover failed")
	ErrStreamDisconnected       = errors.New("stream disconnected")
)

// Kind is a behavioural error category used to decide retry/propagation
// policy without depending on a specific venue's wire format.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientNetwork
	KindTimeout
	KindOrderRejection
	KindLockContention
	KindFatalConstruction
	KindStreamDisconnect
	KindRolloverFailure
	KindSinkFailure
)

// Classify maps a sentinel error (or a wrapped one) to its behavioural Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrLockContention):
		return KindLockContention
	case errors.Is(err, ErrFatalAdapterConstruction):
		return KindFatalConstruction
	case errors.Is(err, ErrStreamDisconnected):
		return KindStreamDisconnect
	case errors.Is(err, ErrRolloverFailed):
		return KindRolloverFailure
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrRateLimitExceeded), errors.Is(err, ErrExchangeMaintenance), errors.Is(err, ErrSystemOverload):
		return KindTransientNetwork
	case errors.Is(err, ErrOrderRejected), errors.Is(err, ErrInvalidOrderParameter), errors.Is(err, ErrDuplicateOrder):
		return KindOrderRejection
	default:
		return KindUnknown
	}
}

// Retriable reports whether errors of this kind should be retried by the
// retry utility (pkg/retry).
func (k Kind) Retriable() bool {
	switch k {
	case KindTransientNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
