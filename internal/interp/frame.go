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

package interp

import (
	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/inlinecache"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/rewrite"
)

// Frame is one call's interpreter state: the value stack, the local
// variable slots, and a link to the caller, constructed contiguously above
// the caller's stack top on entry (spec §4.I "Call convention").
type Frame struct {
	Caller *Frame
	Fn     *code.Function
	Prog   *rewrite.Program
	Cache  *inlinecache.Table

	PC     int
	Stack  []ref.Ref
	SP     int
	Locals []ref.Ref
}

func newFrame(caller *Frame, fn *code.Function, prog *rewrite.Program, cache *inlinecache.Table, args []ref.Ref) *Frame {
	fr := &Frame{
		Caller: caller,
		Fn:     fn,
		Prog:   prog,
		Cache:  cache,
		Stack:  make([]ref.Ref, fn.Code.StackSize),
		Locals: make([]ref.Ref, fn.TotalVars()),
	}
	for i := range fr.Locals {
		fr.Locals[i] = ref.Unbound
	}
	copy(fr.Locals, args)
	return fr
}

func (fr *Frame) push(v ref.Ref) {
	fr.Stack[fr.SP] = v
	fr.SP++
}

func (fr *Frame) pop() ref.Ref {
	fr.SP--
	return fr.Stack[fr.SP]
}

func (fr *Frame) peek() ref.Ref {
	return fr.Stack[fr.SP-1]
}

// LastPC returns the program counter at which this frame is currently
// suspended (mid-call, or at the point an exception unwound it), which
// Machine.Call passes to exc.Unwind when it adds this frame's traceback
// node.
func (fr *Frame) LastPC() int { return fr.PC }
