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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/code"
)

// TestRaiseChainsContextNotCause exercises spec §8 scenario 5: a ValueError
// raised inside the handling of... raising a TypeError inside its except
// block must chain __context__ to the ValueError, leave __cause__ nil, and
// leave __suppress_context__ false.
func TestRaiseChainsContextNotCause(t *testing.T) {
	v := New("ValueError", "a")
	Enter(v)
	defer Leave()

	ty := Raise(New("TypeError", "b"))

	require.NotNil(t, ty.Context())
	assert.Equal(t, v, ty.Context())
	assert.Nil(t, ty.Cause())
	assert.False(t, ty.SuppressContext())
}

func TestSetCauseSuppressesContext(t *testing.T) {
	v := New("ValueError", "a")
	Enter(v)
	defer Leave()

	ty := Raise(New("TypeError", "b"))
	ty.SetCause(nil)

	assert.Nil(t, ty.Cause())
	assert.True(t, ty.SuppressContext())
}

func TestRaiseDoesNotChainToSelf(t *testing.T) {
	e := New("RuntimeError")
	Enter(e)
	defer Leave()

	got := Raise(e)
	assert.Nil(t, got.Context())
}

func TestGeneratorResumeRestoresOwnHandledException(t *testing.T) {
	// Scenario 6: a generator handling E1 suspends; the resumer starts
	// handling a different exception E2; resuming the generator must see
	// E1, not E2, as Current().
	e1 := New("E1")
	Enter(e1)
	saved := Suspend()

	e2 := New("E2")
	Enter(e2)
	require.Same(t, e2, Current())

	Resume(saved)
	assert.Same(t, e1, Current())
}

func TestTracebackLineIsLazy(t *testing.T) {
	c := &code.Code{
		FirstLine: 10,
		Lines:     []code.LineEntry{{Offset: 0, Line: 10}, {Offset: 4, Line: 12}},
	}
	fn := &code.Function{Code: c}

	var tb *Traceback
	tb = Push(tb, fn, 4)

	assert.Equal(t, 12, tb.Line())
}

func TestAsUnwrapsThroughWrappedErrors(t *testing.T) {
	e := New("KeyError", "x")
	wrapped := errWrap{e}

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, e, got)
}

type errWrap struct{ err error }

func (w errWrap) Error() string { return "wrapped: " + w.err.Error() }
func (w errWrap) Unwrap() error { return w.err }

func TestExceptionSatisfiesStdlibErrorsAs(t *testing.T) {
	e := New("StopIteration")
	var target *Exception
	assert.True(t, errors.As(error(e), &target))
	assert.Same(t, e, target)
}
