package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies rejected actions so the broker can pick a message
// level for the actor. Every kind leaves game state untouched.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindNotFound
)

// ActionError is a rejected player action with a reason fit to show the
// actor directly.
type ActionError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ActionError) Error() string {
	return e.Msg
}

func Validationf(format string, args ...any) error {
	return &ActionError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authorizationf(format string, args ...any) error {
	return &ActionError{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &ActionError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a rejected action; ok is false for internal
// errors that should not be shown verbatim to players.
func KindOf(err error) (ErrorKind, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
