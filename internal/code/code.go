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

// Package code implements the immutable compiled unit (Code) and the live
// callable that wraps it (Function), per spec §4.F.
//
// Grounded on the teacher repository's top-level compiler.go and
// message_type.go: a hyperpb MessageType is an immutable compiled
// descriptor (like our Code) plus a family of lazily-built, mutable
// derived artifacts — parsers, profiles, a recompiled variant — cached off
// to the side (internal/tdp.Type.Aux). A Function here plays the same
// role: Code is the immutable input, and the rewritten bytecode / inline
// cache table / entry-point trampolines are mutable runtime state layered
// on top, exactly the way hyperpb layers a *tdp.TypeParser onto a *tdp.Type
// without mutating the type itself.
package code

import "fmt"

// Flags is Code's flag bitfield (spec §3 "Code").
type Flags uint32

const (
	OptimizedLocals Flags = 1 << iota
	NewLocals
	VarArgs
	VarKw
	Nested
	Generator
	Coroutine
	AsyncGenerator
	NoFree
	FutureAnnotations
)

// LineEntry is one row of a line-number delta table: bytecode offsets
// starting at Offset (up to the next entry's Offset) map to Line.
type LineEntry struct {
	Offset int
	Line   int
}

// Code is the compiler's immutable output: compact (opcode, arg) bytecode
// plus the static metadata needed to execute it. Per spec §1, the
// parser/compiler front end is an external collaborator — Code is taken as
// given, never produced by this repository.
type Code struct {
	PosArgs, PosOnlyArgs, KwOnlyArgs int
	NumLocals                       int
	StackSize                       int
	Flags                           Flags

	Bytecode []byte // Compact (opcode, arg[, EXTENDED_ARG...]) stream.

	Consts   []any // Constants; for code objects, immediates and nested *Code.
	Names    []string
	Varnames []string
	Freevars []string
	Cellvars []string

	Filename  string
	Name      string
	FirstLine int
	Lines     []LineEntry

	// Intrinsic is an optional native handler replacing bytecode
	// evaluation entirely; nil for ordinary interpreted code.
	Intrinsic func(args []any) (any, error)
}

// TotalArgs returns the number of arguments the calling convention must
// supply before *args/**kwargs collection (spec §3 "positional /
// positional-only / keyword-only / total argument counts").
func (c *Code) TotalArgs() int {
	n := c.PosArgs + c.KwOnlyArgs
	return n
}

// LineAt resolves the source line for a bytecode offset by binary-searching
// the delta table, performed lazily and only when a traceback is actually
// read (spec §4.J "Lazy line-number resolution").
func (c *Code) LineAt(offset int) int {
	if len(c.Lines) == 0 {
		return c.FirstLine
	}

	lo, hi := 0, len(c.Lines)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.Lines[mid].Offset <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return c.FirstLine
	}
	return c.Lines[lo-1].Line
}

// String implements [fmt.Stringer] with CPython-style repr, used by
// traceback rendering (spec §7 "print a traceback").
func (c *Code) String() string {
	return fmt.Sprintf("<code object %s, file %q, line %d>", c.Name, c.Filename, c.FirstLine)
}
