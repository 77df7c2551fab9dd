package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation. The split matters to callers: an
// Unauthenticated error terminates the session, a Forbidden one does not.
type Kind int

const (
	KindRemote Kind = iota
	KindUnauthenticated
	KindForbidden
	KindValidation
)

type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusCode satisfies httpx.HTTPStatusCoder.
func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

func Unauthenticated(detail string) *Error {
	if detail == "" {
		detail = "session is invalid or has expired"
	}
	return &Error{Kind: KindUnauthenticated, Status: 401, Detail: detail}
}

// Forbidden carries a fixed message: the session stays valid, the caller
// simply lacks privilege for the operation.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Status: 403, Detail: "insufficient privileges for this operation"}
}

func Remote(status int, detail string) *Error {
	if detail == "" {
		detail = fmt.Sprintf("request failed with HTTP %d", status)
	}
	return &Error{Kind: KindRemote, Status: status, Detail: detail}
}

func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

func Wrap(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind, true
	}
	return 0, false
}

func IsUnauthenticated(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthenticated
}

func IsForbidden(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindForbidden
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}
