// Copyright 2024 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fault classifies the failures of the runtime layer.
//
// Every operation in this module reports failure as a returned error instead of
// a sentinel value. The Kind carried by the error keeps apart outcomes that a
// C runtime would collapse into the same NULL or -1, e.g. an allocation that
// failed because the request was invalid and one that failed because the
// backing region could not grow.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind uint8

const (
	// Unknown is reported for errors that were not produced by this module.
	Unknown Kind = iota
	// Exhausted means the backing region could not grow.
	Exhausted
	// InvalidArgument means the request was rejected before any effect,
	// e.g. a zero-size allocation or an operation on a nil stream.
	InvalidArgument
	// Boundary means a position or capacity limit would have been crossed.
	Boundary
	// Transfer means the raw read or write primitive failed.
	Transfer
	// EndOfData means the backing content is exhausted. It is not a failure of
	// the transfer itself.
	EndOfData
	// Malformed means a format template or its arguments could not be rendered.
	Malformed
)

var kindNames = [...]string{
	Unknown:         "unknown",
	Exhausted:       "resource exhausted",
	InvalidArgument: "invalid argument",
	Boundary:        "boundary violation",
	Transfer:        "transfer failure",
	EndOfData:       "end of data",
	Malformed:       "malformed input",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the error type returned by every package of this module.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "heap.Alloc"
	Err  error  // underlying cause, may be nil
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrExhausted       = &Error{Kind: Exhausted}
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrBoundary        = &Error{Kind: Boundary}
	ErrTransfer        = &Error{Kind: Transfer}
	ErrEndOfData       = &Error{Kind: EndOfData}
	ErrMalformed       = &Error{Kind: Malformed}
)

// New returns an error of kind k for op with a message.
func New(k Kind, op, msg string) error {
	return &Error{Kind: k, Op: op, Err: errors.New(msg)}
}

// Errorf is like New with a formatted message.
func Errorf(k Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err classified as k. A nil err yields nil.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Op + ": " + e.Kind.String()
	case e.Op == "":
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain,
// or Unknown if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
