package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates no UserRecord matched the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyLinkedToOther indicates the target account is already linked to a
	// different GitHub identity. An admin must unlink first; the existing link is
	// never silently overwritten.
	ErrAlreadyLinkedToOther = errors.New("account is already linked to a different GitHub identity")

	// ErrSecondaryAlreadyClaimed indicates the GitHub identity is already linked
	// to another account.
	ErrSecondaryAlreadyClaimed = errors.New("GitHub identity is already linked to another account")
)

// ValidationError indicates malformed or policy-violating input, such as an
// e-mail outside the allowed organization domain.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
