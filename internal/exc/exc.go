// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exc implements the raise/propagate model of spec §4.J: exception
// instances with cause/context chaining, per-frame traceback links, and the
// saved-exception-state stack that lets a generator resume with its own
// in-flight exception rather than whatever the resumer happens to be
// handling (spec §8 scenario 6).
//
// Grounded on the teacher repository's error.go: a small closed set of
// sentinel conditions plus a wrapping struct (errParse) that implements
// Unwrap() error and a fmt.Sprintf-built Error() string, so it composes
// with stdlib errors.Is/errors.As. Exception follows the same shape: a
// concrete type satisfying the error interface, with Unwrap returning the
// chained cause the way errParse.Unwrap returns its wrapped cause.
package exc

import (
	"fmt"

	"github.com/pyro-lang/pyro/internal/code"
)

// tri is the three-state value spec §4.J describes for __cause__,
// __context__, and __traceback__: unset (None), explicitly cleared
// (Unbound), or holding a live value. Internal code sees all three states;
// public getters collapse triUnbound to triNone (spec §4.J "public getters
// collapse Unbound to None while internal paths see the raw value").
type tri struct {
	state triState
	value *Exception
}

type triState uint8

const (
	triNone triState = iota
	triUnbound
	triValue
)

// Traceback is one unwound frame's contribution to an exception's call
// stack, per spec §3 "Frame" and §4.J "each unwound frame appends a
// traceback node carrying the function reference and the last PC."
//
// Line number resolution is deliberately lazy: Line() is the only thing
// that consults Fn.Code.Lines, so raising and propagating an exception
// never pays for a line-table search unless something actually reads the
// traceback (spec §4.J "Lazy line-number resolution").
type Traceback struct {
	Next *Traceback
	Fn   *code.Function
	PC   int
}

// Line resolves this traceback entry's source line on demand.
func (tb *Traceback) Line() int {
	if tb == nil || tb.Fn == nil || tb.Fn.Code == nil {
		return 0
	}
	return tb.Fn.Code.LineAt(tb.PC)
}

// Push prepends a new traceback node for (fn, pc) atop tb, returning the
// new head. Called once per frame as an exception unwinds (spec §4.J).
func Push(tb *Traceback, fn *code.Function, pc int) *Traceback {
	return &Traceback{Next: tb, Fn: fn, PC: pc}
}

// Exception is a raised language-level exception instance (spec §3, §4.J).
//
// Name identifies the exception class informally (e.g. "ValueError"); this
// package does not depend on internal/classes for the exception's runtime
// type because Non-goal scope keeps the full exception class hierarchy out
// of this core (spec §1: "the built-in library... is out of scope"). An
// embedding that has a real *classes.Type stores it in the Type field.
type Exception struct {
	Name string
	Args []any

	Type any // Opaque *classes.Type, set by the embedding collaborator; nil for core-raised exceptions.

	cause, context  tri
	suppressContext bool

	Traceback *Traceback
}

// New creates an unraised exception named name carrying args, with no
// cause, no context, and no traceback. Raise attaches context and a
// traceback once it actually propagates.
func New(name string, args ...any) *Exception {
	return &Exception{Name: name, Args: args}
}

// Error implements the error interface, rendering the way an uncaught
// top-level exception's message line is printed (spec §7 "print a
// traceback... source text if available").
func (e *Exception) Error() string {
	if len(e.Args) == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Args[0])
}

// Unwrap exposes __cause__ (if explicitly set) or __context__ to stdlib
// errors.Is/errors.As chains, preferring cause the way Python's traceback
// printer prefers "the above exception was the direct cause" over "during
// handling of the above exception" when both are present.
func (e *Exception) Unwrap() error {
	if e.cause.state == triValue {
		return e.cause.value
	}
	if e.context.state == triValue && !e.suppressContext {
		return e.context.value
	}
	return nil
}

// Cause returns __cause__, collapsing the Unbound tri-state to nil (spec
// §4.J "public getters collapse Unbound to None").
func (e *Exception) Cause() *Exception { return e.cause.collapsed() }

// Context returns __context__, collapsed the same way.
func (e *Exception) Context() *Exception { return e.context.collapsed() }

// SuppressContext reports __suppress_context__.
func (e *Exception) SuppressContext() bool { return e.suppressContext }

// SetCause implements `raise ... from cause` / `exc.__cause__ = cause`:
// setting an explicit cause (even nil, meaning "from None") also sets
// __suppress_context__, per CPython's semantics that raise-from always
// suppresses the implicit chain (original_source/ behavior; spec.md is
// silent on this detail, resolved here per §3 of SPEC_FULL.md).
func (e *Exception) SetCause(cause *Exception) {
	if cause == nil {
		e.cause = tri{state: triUnbound}
	} else {
		e.cause = tri{state: triValue, value: cause}
	}
	e.suppressContext = true
}

// SetContext implements the implicit chaining spec §4.J describes: "linking
// its context to the currently handled exception."
func (e *Exception) SetContext(context *Exception) {
	if context == nil {
		e.context = tri{state: triNone}
		return
	}
	if context == e {
		// A handler re-raising the same exception it's handling must not
		// link an exception to itself.
		return
	}
	e.context = tri{state: triValue, value: context}
}

func (t tri) collapsed() *Exception {
	if t.state != triValue {
		return nil
	}
	return t.value
}

// Raise links context to whatever exception the calling goroutine's thread
// state currently has marked as "being handled" (spec §4.J "Raising...
// links its context to the currently handled exception"), per the rule
// that a newly raised exception implicitly chains to one already in
// flight. It does not by itself unwind frames; Unwind does that as the
// Go call stack actually returns the error.
func Raise(e *Exception) *Exception {
	if cur := Current(); cur != nil && cur != e {
		e.SetContext(cur)
	}
	return e
}

// Unwind appends a traceback node for (fn, pc) to e and returns e, called
// once per frame as a raised exception propagates out through it (spec
// §4.J "unwinds frames until a handler block covers the current PC...
// each unwound frame appends a traceback node").
func Unwind(e *Exception, fn *code.Function, pc int) *Exception {
	e.Traceback = Push(e.Traceback, fn, pc)
	return e
}

// As extracts an *Exception from any error in err's chain, the way a frame
// boundary decides whether a propagating Go error is a language-level
// exception it must attach a traceback to (spec §7 "only real exceptions
// cross [frame boundaries]").
func As(err error) (*Exception, bool) {
	for err != nil {
		if e, ok := err.(*Exception); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
