package service

import "errors"

// Kind classifies a failure for the HTTP boundary. Internal detail stays
// in Err and never reaches a response.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal_failure"
	}
}

type Error struct {
	Kind Kind
	// Msg is safe to show to the caller.
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Msg: msg, Err: err}
}

func upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

var (
	ErrMissingCode  = errors.New("no code")
	ErrMissingField = errors.New("user and state are required")
)
