// Package apperrors classifies ingest failures so the HTTP boundary can tell
// caller mistakes apart from server faults.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names the stage family an error originated from.
type Kind string

const (
	KindFetch   Kind = "fetch"
	KindInput   Kind = "input"
	KindDecode  Kind = "decode"
	KindEncode  Kind = "encode"
	KindStorage Kind = "storage"
	KindConfig  Kind = "config"
)

// Error is the structured error used across the ingest pipeline.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientFault reports whether the caller's input caused the failure.
func (e *Error) ClientFault() bool {
	return e.Kind == KindFetch || e.Kind == KindInput
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, op, err)
}

func Fetch(op string, err error) error   { return Wrap(KindFetch, op, err) }
func Input(op string, err error) error   { return Wrap(KindInput, op, err) }
func Decode(op string, err error) error  { return Wrap(KindDecode, op, err) }
func Encode(op string, err error) error  { return Wrap(KindEncode, op, err) }
func Storage(op string, err error) error { return Wrap(KindStorage, op, err) }
func Config(op string, err error) error  { return Wrap(KindConfig, op, err) }

// KindOf returns the kind of the outermost classified error in the chain, or
// "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps err to the status the API answers with. Unclassified errors
// are server faults.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.ClientFault() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
