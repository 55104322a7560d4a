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
	"github.com/timandy/routine"

	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/debug"
)

// Profiler holds the three callbacks spec §4.I names: thread creation, and
// per-call enter/leave. Any may be nil.
type Profiler struct {
	OnThreadStart func()
	OnCallEnter   func(fn *code.Function)
	OnCallLeave   func(fn *code.Function)
}

// threadState is the per-goroutine counting/profiling state, mirroring
// CPython's PyThreadState; kept in a routine.ThreadLocal the same way
// internal/strs caches its codepoint-offset iterator per goroutine.
type threadState struct {
	profiler *Profiler
	counting bool
	opcodes  int64
	excluded int // Depth of nested exclude() calls; >0 suspends counting.
}

var threadLocal = routine.NewThreadLocal[any]()

func currentThread() *threadState {
	v := threadLocal.Get()
	if v == nil {
		ts := &threadState{}
		threadLocal.Set(ts)
		return ts
	}
	return v.(*threadState)
}

// SetProfiler installs p for the calling goroutine, switching its dispatch
// to the opcode-counting variant (spec §4.I "The interpreter is switched
// to the counting variant when profiling is enabled"). Passing nil
// reverts to the normal dispatch mode.
func SetProfiler(p *Profiler) {
	ts := currentThread()
	ts.profiler = p
	ts.counting = p != nil
	if p != nil && p.OnThreadStart != nil {
		p.OnThreadStart()
	}
}

// OpcodeCount returns the calling goroutine's running opcode-dispatch
// count, meaningful only while profiling is enabled.
func OpcodeCount() int64 {
	return currentThread().opcodes
}

// Exclude runs fn with profiling temporarily suspended for the calling
// goroutine, then rewinds the opcode counter by exactly the slack spent
// inside fn (spec §4.I "An exclude operation temporarily disables
// profiling for the duration of a nested call and rewinds the opcode
// counter by the slack spent inside").
func Exclude(fn func() error) error {
	ts := currentThread()
	before := ts.opcodes
	ts.excluded++
	defer func() {
		ts.excluded--
		ts.opcodes = before
	}()
	return fn()
}

// warnProfilingCannotAffectOuterFrames logs that the outer frames of fn
// were already dispatched without counting when profiling was enabled.
// Nothing in this package calls it: SetProfiler works per goroutine and
// sees no Machine's frames, so switching profiling on mid-recursion logs
// no warning.
func warnProfilingCannotAffectOuterFrames(fn *code.Function) {
	debug.Log(nil, "interp.profile", "enabling profiling mid-recursion: outer frames of %s already dispatched without counting", fn.QualName)
}
