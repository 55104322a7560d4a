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

// Package rewrite turns a Code object's compact (opcode, arg) bytecode into
// a fixed-width cell stream with anamorphic opcodes and cache-slot indices
// installed at every site that can specialize itself at runtime (spec §4.G
// "Bytecode Rewriter").
//
// Grounded on the teacher's internal/tdp/compiler package: compile.go walks
// a schema's fields once and emits a specialized per-message parser program
// with thunk/cache slots resolved by a linker (archetype.go), the same shape
// as turning a generic opcode stream into a cache-augmented cell stream
// here. ir.go's single-pass IR-to-table lowering is the model for Rewrite's
// single forward pass over the bytecode.
package rewrite

// NoCache marks a cell with no inline cache slot allocated: either the
// opcode has no specializable site, or rewriting bailed out after exceeding
// the cache budget (spec §4.G "a hard per-function cache budget").
const NoCache uint16 = 0xFFFF

// MaxCacheSlots bounds the number of inline cache sites a single function's
// rewrite may allocate. Past this, Rewrite keeps producing correct cells
// but stops installing new cache slots, matching spec §4.G "quiet
// degradation, not compile failure, when a function is too large to fully
// specialize."
const MaxCacheSlots = 65536

// Cell is the fixed-width unit the interpreter dispatches on: one opcode
// byte, one argument byte, and a 16-bit cache slot index (spec §6 "4-byte
// cells: [opcode, arg, cache_index_lo, cache_index_hi]").
type Cell struct {
	Op       Op
	Arg      byte
	CacheIdx uint16
}

// Program is the rewritten form of a single Code's bytecode.
type Program struct {
	Cells []Cell

	// CacheSlots is the number of inline cache slots this program's cells
	// reference; internal/inlinecache allocates a table of this size per
	// Function instantiation.
	CacheSlots int

	// BlockMapDisabled is set when a legacy/unsupported opcode was seen
	// during rewriting, telling internal/interp not to attempt lazy
	// basic-block construction for this function (spec §4.G).
	BlockMapDisabled bool

	// CacheBudgetExceeded is set when MaxCacheSlots was reached mid-rewrite;
	// every site after that point shares NoCache rather than getting its
	// own slot.
	CacheBudgetExceeded bool

	// UncheckedFast is the set of Varnames indices the rewriter proved are
	// always bound at every LOAD_FAST site (no DELETE_FAST reaches them),
	// and so were rewritten to LOAD_FAST_REVERSE_UNCHECKED.
	UncheckedFast map[int]bool
}
