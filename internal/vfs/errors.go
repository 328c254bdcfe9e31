package vfs

import (
	"errors"
	"fmt"
)

// ValidationError rejects a request before any I/O: empty or unsafe key,
// missing required field. Surfaced to the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError is a missing download target or copy source.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Key) }

// StoreUnavailableError wraps an object-store failure (bad credentials,
// network). The core never retries these; retry policy belongs to the
// client layer.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string { return fmt.Sprintf("object store unavailable: %v", e.Err) }
func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// KeyError is one failed key inside a batched operation.
type KeyError struct {
	Key string
	Err error
}

// PartialBatchError reports that some keys in a delete or copy batch
// failed. The walk stops paginating; keys already applied are not rolled
// back.
type PartialBatchError struct {
	Failed []KeyError
}

func (e *PartialBatchError) Error() string {
	if len(e.Failed) == 0 {
		return "batch operation failed"
	}
	f := e.Failed[0]
	return fmt.Sprintf("%d keys failed in batch, first %s: %v", len(e.Failed), f.Key, f.Err)
}

// CatalogDesyncError records a catalog write that failed after the store
// mutation had already succeeded. It is logged and flagged for
// reconciliation, never surfaced as the operation's own failure.
type CatalogDesyncError struct {
	Op  string
	Key string
	Err error
}

func (e *CatalogDesyncError) Error() string {
	return fmt.Sprintf("catalog out of sync after %s of %s: %v", e.Op, e.Key, e.Err)
}

func (e *CatalogDesyncError) Unwrap() error { return e.Err }

// IsValidation reports whether err classifies as a validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err classifies as a missing object.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStoreUnavailable reports whether err classifies as a store outage.
func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
