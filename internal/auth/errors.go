package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindAccountInactive
	KindInvalidOrExpiredToken
	KindUserInactive
	KindInvalidCurrentPassword
	KindUnauthorized
	KindForbiddenSelfRevoke
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountLocked:
		return "account_locked"
	case KindAccountInactive:
		return "account_inactive"
	case KindInvalidOrExpiredToken:
		return "invalid_or_expired_token"
	case KindUserInactive:
		return "user_inactive"
	case KindInvalidCurrentPassword:
		return "invalid_current_password"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbiddenSelfRevoke:
		return "forbidden_self_revoke"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the result value of every failed auth operation. Two errors are
// equal under errors.Is when their kinds match.
type Error struct {
	Kind        ErrorKind
	Message     string
	LockedUntil time.Time
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
	ErrAccountLocked          = &Error{Kind: KindAccountLocked, Message: "Account is locked"}
	ErrAccountInactive        = &Error{Kind: KindAccountInactive, Message: "Account is inactive"}
	ErrInvalidOrExpiredToken  = &Error{Kind: KindInvalidOrExpiredToken, Message: "Invalid or expired token"}
	ErrUserInactive           = &Error{Kind: KindUserInactive, Message: "User is inactive"}
	ErrInvalidCurrentPassword = &Error{Kind: KindInvalidCurrentPassword, Message: "Current password is incorrect"}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized, Message: "Admin access required"}
	ErrForbiddenSelfRevoke    = &Error{Kind: KindForbiddenSelfRevoke, Message: "Cannot revoke your own sessions"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "Not found"}
)

// ErrRecordNotFound is returned by stores when a row does not exist.
var ErrRecordNotFound = errors.New("record not found")

func accountLocked(until, now time.Time) *Error {
	minutes := int(math.Ceil(until.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &Error{
		Kind:        KindAccountLocked,
		Message:     fmt.Sprintf("Account is locked. Try again in %d minutes.", minutes),
		LockedUntil: until,
	}
}

func notFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}
