package speecherr

import "errors"

// Error is a classified voice input failure.
type Error struct {
	Code Code
	Raw  string
	Err  error
}

// New builds a classified error for code with an optional raw diagnostic.
func New(code Code, raw string) *Error {
	return &Error{Code: code, Raw: raw}
}

// Wrap classifies err and keeps it as the cause. Wrap(nil) returns nil.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Code: FromError(err), Raw: err.Error(), Err: err}
}

// Error returns the user-facing message.
func (e *Error) Error() string {
	return Message(e.Code, e.Raw)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so callers can use errors.Is with New(code, "").
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf returns the Code carried by err, classifying it when needed.
func CodeOf(err error) Code {
	return FromError(err)
}
