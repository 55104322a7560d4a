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

package exc

import "github.com/timandy/routine"

// State is a stack of exceptions "currently being handled" by the calling
// goroutine, mirroring CPython's per-thread exc_info stack. Entering an
// except block pushes the caught exception; leaving it pops that entry.
//
// Grounded on internal/interp's threadState (profile.go), which keeps
// per-goroutine dispatch bookkeeping in a routine.ThreadLocal the same way;
// this package keeps its own thread-local rather than importing
// internal/interp's, since interp already imports exc and Go forbids the
// cycle the other way.
var handling = routine.NewThreadLocal[any]()

func stack() []*Exception {
	v := handling.Get()
	if v == nil {
		return nil
	}
	return v.([]*Exception)
}

// Current returns the exception the calling goroutine is currently
// handling (the top of its except-block stack), or nil if none.
func Current() *Exception {
	s := stack()
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Enter pushes e as the currently handled exception, for the duration of
// the except block that caught it. Callers should defer Leave.
func Enter(e *Exception) {
	handling.Set(append(stack(), e))
}

// Leave pops the most recently entered exception.
func Leave() {
	s := stack()
	if len(s) == 0 {
		return
	}
	handling.Set(s[:len(s)-1])
}

// SavedState is a snapshot of a goroutine's exception-handling stack,
// captured when a generator or coroutine suspends mid-except-block (spec
// §4.J / §5 "Coroutines and generators carry an ExceptionState object
// forming a stack of saved exception states so that yielding from inside
// an except block preserves the in-flight exception correctly").
//
// A generator frame owns one of these; Suspend captures the calling
// goroutine's current stack into it, and Resume swaps it back in, so that
// resuming the generator from a context handling a *different* exception
// (spec §8 scenario 6) still sees the generator's own in-flight exception,
// not the resumer's.
type SavedState struct {
	stack []*Exception
}

// Suspend captures the calling goroutine's exception-handling stack into s,
// then clears it — the goroutine returns to its caller holding no
// in-flight exception of the generator's, the mirror image of Resume.
func Suspend() *SavedState {
	s := &SavedState{stack: stack()}
	handling.Set([]*Exception(nil))
	return s
}

// Resume restores a previously suspended generator's exception-handling
// stack, shadowing whatever the resuming context was handling for the
// duration of this activation.
func Resume(s *SavedState) {
	if s == nil {
		handling.Set([]*Exception(nil))
		return
	}
	handling.Set(append([]*Exception(nil), s.stack...))
}
