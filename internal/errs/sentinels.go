// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller does not own the record it tries to mutate.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input rejected before any crypto or storage work.
	ErrValidation = errors.New("validation")

	// ErrDecryption covers both a wrong password and a corrupted ciphertext.
	ErrDecryption = errors.New("wrong password or corrupted file")

	// ErrPolicyDenied indicates a zero-trust check failed.
	ErrPolicyDenied = errors.New("access denied")

	// ErrStorageUnavailable indicates the blob or record store did not respond. Retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAuditUnavailable indicates the audit sink rejected or failed an append. Retryable.
	ErrAuditUnavailable = errors.New("audit log unavailable")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field string
	Msg   string
}

// Validation builds a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return "validation: " + e.Field + ": " + e.Msg
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DeniedError carries the failed policy check and its reason.
type DeniedError struct {
	Check  string
	Reason string
}

func (e *DeniedError) Error() string { return "access denied: " + e.Reason }

// Is makes errors.Is(err, ErrPolicyDenied) hold.
func (e *DeniedError) Is(target error) bool { return target == ErrPolicyDenied }

// Retryable reports whether err is a transient storage or audit failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrAuditUnavailable)
}

// PublicMessage maps err to the text shown to an end user.
// Denials and decryption failures are deliberately generic.
func PublicMessage(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, ErrPolicyDenied):
		return "access denied"
	case errors.Is(err, ErrDecryption):
		return ErrDecryption.Error()
	case errors.Is(err, ErrNotFound):
		return "file not found"
	case errors.Is(err, ErrForbidden):
		return "only the file owner can do this"
	case errors.Is(err, ErrVersionConflict):
		return "policy was changed concurrently, reload and retry"
	case errors.Is(err, ErrUnauthorized):
		return "invalid username or password"
	case errors.Is(err, ErrRateLimited):
		return "too many failed attempts, try again later"
	case errors.Is(err, ErrAlreadyExists):
		return "already exists"
	case Retryable(err):
		return "service temporarily unavailable, retry later"
	default:
		return "internal error"
	}
}
