package rbac

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authorization domain. The HTTP layer maps these
// to status codes; they are never retried automatically.
var (
	// ErrPermissionDenied means the acting user lacks the required
	// permission or superadmin status.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDefaultRoleMissing is a fatal configuration error: the fallback
	// role is absent from the role table. It aborts startup, not requests.
	ErrDefaultRoleMissing = errors.New("default role missing from role table")
)

// ValidationError is a client-correctable rule violation, distinct from
// both permission failures and transport failures.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
