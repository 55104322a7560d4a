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

package code

import "github.com/pyro-lang/pyro/internal/ref"

// Cell is a closure cell: a boxed reference shared between a defining
// frame's cellvars and the nested function's freevars.
type Cell struct {
	Value ref.Ref
}

// BuiltinMarker is the sentinel stored in Function.StackSizeOrBuiltin for a
// native extension function, distinguishing it from an interpreted
// function's real stack size (spec §4.F "A function is created either from
// a code object plus a module... or as a native extension function").
const BuiltinMarker = -1

// EntryPoint is a call-site trampoline: one of a Function's three call
// protocol variants (spec §3 "three entry-point pointers"), or the single
// extended-call variant that handles arbitrary positional/keyword
// combinations. Installed by the interpreter package (internal/interp),
// never by this package, to avoid an import cycle between the callable
// representation and the thing that evaluates it.
type EntryPoint func(fn *Function, args []ref.Ref, kwargs map[string]ref.Ref) (ref.Ref, error)

// Function is a live callable: a Code plus the mutable runtime state the
// compiler cannot know about (spec §3 "Function").
type Function struct {
	Code   *Code
	Module ref.Ref

	Defaults   []ref.Ref
	KwDefaults map[string]ref.Ref
	Closure    []*Cell

	Annotations map[string]ref.Ref
	QualName    string

	// Three entry-point pointers selected by call-site protocol, plus an
	// assembly-only entry reserved for a JIT-compiled variant. No JIT
	// exists in this implementation (spec §1 Non-goals), so Assembly is
	// always nil; the field is kept so that a future tier has somewhere to
	// install itself without changing the Function shape.
	Positional EntryPoint
	Keyword    EntryPoint
	Extended   EntryPoint
	Assembly   EntryPoint

	// Rewritten and Caches hold, respectively, a *rewrite.Program and a
	// *inlinecache.Table once the bytecode rewriter (§4.G) has processed
	// this function's Code. They are typed as any here, rather than
	// imported directly, because rewrite and inlinecache both need to
	// refer back to *Function (e.g. a cache miss installing a new line
	// into this function's table) and Go forbids the resulting import
	// cycle; internal/interp, which imports all three packages, does the
	// type assertion.
	Rewritten any
	Caches    any

	// StackSizeOrBuiltin is the interpreted stack size, or BuiltinMarker
	// for a native-backed function with no bytecode to execute.
	StackSizeOrBuiltin int32
}

// New creates a function from code running under module, with entry points
// set to trampoline, matching spec §4.F: "The constructor derives totalArgs
// and totalVars from the code, initialises entry points to the generic
// interpreter trampoline."
func New(c *Code, module ref.Ref, trampoline EntryPoint) *Function {
	return &Function{
		Code:               c,
		Module:             module,
		QualName:           c.Name,
		Positional:         trampoline,
		Keyword:            trampoline,
		Extended:           trampoline,
		StackSizeOrBuiltin: int32(c.StackSize),
	}
}

// NewNative creates a function with no Code, backed instead by a Go-native
// call path supplied by the embedding collaborator (spec §4.F "without it,
// call sites dispatch to a C-ABI callback via the entry pointer").
func NewNative(qualName string, call EntryPoint) *Function {
	return &Function{
		QualName:           qualName,
		Positional:         call,
		Keyword:            call,
		Extended:           call,
		StackSizeOrBuiltin: BuiltinMarker,
	}
}

// IsNative reports whether this function has no interpreted Code.
func (f *Function) IsNative() bool {
	return f.StackSizeOrBuiltin == BuiltinMarker
}

// TotalVars returns the number of local variable slots: arguments plus
// additional locals introduced by the bytecode, excluding cells and free
// variables (spec §3 "local count").
func (f *Function) TotalVars() int {
	if f.Code == nil {
		return 0
	}
	return f.Code.NumLocals
}
