// Package errors holds the error type shared by the scheduler's plan steps,
// the run loop and the status server.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies what failed, so the run loop can report it and
// the status server can pick a response code.
type Kind uint8

const (
	// Unexpected is a defect that isn't otherwise classified: a template that
	// fails to render, a panic in a background task.
	Unexpected Kind = iota
	// Storage is a failure to reach or query the database.
	Storage
	// Transport is a failure to reach an RPC service, including timeouts.
	Transport
	// Service is an RPC service answering with a non-OK status, or a
	// service sending data that can't be understood.
	Service
	// HTTP is a failed call to the indexer, or a non-2xx answer from it.
	HTTP
	// Invalid is a bad request made to the status server.
	Invalid
	// NotFound is a lookup that came back empty on the status server.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Storage:
		return "storage"
	case Transport:
		return "transport"
	case Service:
		return "service"
	case HTTP:
		return "http"
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	default:
		return "unexpected"
	}
}

// ParseKind is the inverse of String. Unknown names are Unexpected.
func ParseKind(s string) Kind {
	for k := Unexpected; k <= NotFound; k++ {
		if k.String() == s {
			return k
		}
	}
	return Unexpected
}

// Status is the HTTP status the status server answers with for the kind.
func (k Kind) Status() int {
	switch k {
	case Invalid:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Transport, Service, HTTP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Op names the operation an error happened in, e.g. "plan.UpdateIndex".
type Op string

// Error is the classified error returned by every plan step.
type Error struct {
	Kind Kind
	Op   Op
	Err  error // The error this wraps
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}

	return json.Marshal(transport{
		Kind:    e.Kind.String(),
		Op:      string(e.Op),
		Message: msg,
	})
}

// E builds an error from its arguments, in any order:
// a Kind, an Op, an error to wrap, or a string that becomes the wrapped error.
//
// When wrapping another *Error without naming a Kind, the inner kind is kept.
func E(args ...any) *Error {
	ret := &Error{
		Kind: Unexpected,
	}

	kindSet := false
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			ret.Kind = arg
			kindSet = true
		case Op:
			ret.Op = arg
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		}
	}

	var inner *Error
	if !kindSet && errors.As(ret.Err, &inner) {
		ret.Kind = inner.Kind
	}

	return ret
}

// KindOf reports the kind of the first *Error in err's chain.
//
// Errors that were never classified are Unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unexpected
}

// Is reports whether err carries the given kind.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
