package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrBlockedTimeout     = errors.New("store open blocked: timed out waiting for other connections")
	ErrNetworkFailure     = errors.New("network failure")
	ErrMutationFailure    = errors.New("mutation failure")

	ErrSyncInProgress      = errors.New("sync already running for this account and folder")
	ErrUnknownTrigger      = errors.New("unknown trigger tag")
	ErrUnsupportedMutation = errors.New("unsupported mutation type")
	ErrInvalidInput        = errors.New("invalid input parameters")
)

// Kind classifies storage failures. Recoverable kinds are listed in recoverableKinds.
type Kind string

const (
	KindAbort          Kind = "abort"
	KindUnknown        Kind = "unknown"
	KindBlocked        Kind = "blocked"
	KindBlockedTimeout Kind = "blocked_timeout"
	KindQuota          Kind = "quota"
	KindVersion        Kind = "version"
	KindNotFound       Kind = "not_found"
	KindConstraint     Kind = "constraint"
	KindClosed         Kind = "closed"
	KindCancelled      Kind = "cancelled"
)

var recoverableKinds = map[Kind]bool{
	KindAbort:      true,
	KindUnknown:    true,
	KindNotFound:   true,
	KindConstraint: true,
}

func (k Kind) String() string {
	return string(k)
}

func (k Kind) Recoverable() bool {
	return recoverableKinds[k]
}

// Transient kinds are worth re-attempting an open for.
func (k Kind) Transient() bool {
	return k == KindAbort || k == KindUnknown
}

// StorageError is the StorageUnavailable family: a failed open or transaction.
type StorageError struct {
	Op   string
	Kind Kind
	Err  error
}

func NewStorageError(op string, kind Kind, err error) *StorageError {
	return &StorageError{Op: op, Kind: kind, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// SchemaMismatchError reports logical stores that are expected but absent.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: missing stores [%s]", strings.Join(e.Missing, ", "))
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// NetworkError is a failed call to the remote mail API. Status is 0 when no
// response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote responded %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

// MutationError wraps the failure of one replayed mutation.
type MutationError struct {
	MutationID string
	Type       string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation %s (%s) failed: %v", e.MutationID, e.Type, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

func (e *MutationError) Is(target error) bool {
	return target == ErrMutationFailure
}

// KindOf extracts the storage kind of err, KindNotFound for schema mismatches
// and KindUnknown for anything else.
func KindOf(err error) Kind {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Kind
	}
	var schemaErr *SchemaMismatchError
	if errors.As(err, &schemaErr) {
		return KindNotFound
	}
	return KindUnknown
}
