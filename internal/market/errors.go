package market

import (
	"errors"
	"fmt"
)

// The error taxonomy shared by every provider. All of these are plain
// values returned to the caller; total failure of every candidate is a
// reportable outcome, never a crash.

// TimeoutError reports that a provider request exceeded its deadline.
// Transient: the router advances to the next candidate.
type TimeoutError struct {
	Provider string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out", e.Provider)
}

// RateLimitedError reports that a provider's quota is exhausted.
// Transient: the router advances to the next candidate.
type RateLimitedError struct {
	Provider string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// ProviderError reports a vendor error status or malformed payload.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// SymbolNotFoundError reports that a vendor affirmatively has no data
// for the requested symbol. This is a soft outcome: the router prefers
// it over hard failures as the terminal error.
type SymbolNotFoundError struct {
	Message string
}

func (e *SymbolNotFoundError) Error() string { return e.Message }

// UnsupportedAssetTypeError reports an instrument kind the adapter
// cannot serve. Used during capability pre-filtering and defensively
// inside adapters.
type UnsupportedAssetTypeError struct {
	Message string
}

func (e *UnsupportedAssetTypeError) Error() string { return e.Message }

// ValidationError reports a mandatory field that failed numeric or
// shape validation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrNoDataForRange reports a historical query that produced zero
// usable rows after normalization.
var ErrNoDataForRange = errors.New("no data for requested range")

// ErrNoProviderAvailable reports that no registered provider matched
// the request at all.
var ErrNoProviderAvailable = errors.New("no provider available")

// IsTransient reports whether err is a timeout or rate-limit outcome,
// i.e. the provider may well answer the next request.
func IsTransient(err error) bool {
	var te *TimeoutError
	var re *RateLimitedError
	return errors.As(err, &te) || errors.As(err, &re)
}

// IsNotFound reports whether err means "this provider correctly
// answered that it has nothing" rather than a provider fault.
func IsNotFound(err error) bool {
	var se *SymbolNotFoundError
	var ue *UnsupportedAssetTypeError
	return errors.As(err, &se) || errors.As(err, &ue) || errors.Is(err, ErrNoDataForRange)
}
