package domain

import "errors"

var (
	// ErrInvalidMetadata is returned when registration input is malformed.
	// Nothing is persisted when it is returned.
	ErrInvalidMetadata = errors.New("invalid asset metadata")

	// ErrNotFound is returned when a symbol is not registered.
	ErrNotFound = errors.New("asset not found")

	// ErrRateLimited is returned by a source when the local call budget
	// denies the attempt. Soft: the aggregator falls through to the next
	// tier and never surfaces it to the caller.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidationRejected is returned when a fetched value fails the
	// bounds check. The sample is discarded, never cached.
	ErrValidationRejected = errors.New("price failed validation")

	// ErrNoData is returned when every tier of the fallback chain has
	// been exhausted. Callers decide their own policy from here.
	ErrNoData = errors.New("no price available from any source")
)
