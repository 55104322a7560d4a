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

package heap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/ref"
)

func TestWeakRefClearedWhenReferentDies(t *testing.T) {
	t.Parallel()

	h := New()
	r := h.Alloc(9, FormatData, 0, 8)
	w := h.NewWeakRef(r, ref.Unbound)

	err := h.Collect(context.Background(), nil, fixedTracer{size: 8})
	require.NoError(t, err)

	assert.True(t, ref.IsNone(w.Referent))
}

func TestWeakRefSurvivesWhenReferentRooted(t *testing.T) {
	t.Parallel()

	h := New()
	r := h.Alloc(9, FormatData, 0, 8)
	w := h.NewWeakRef(r, ref.Unbound)

	roots := []*ref.Ref{&r}
	err := h.Collect(context.Background(), roots, fixedTracer{size: 8})
	require.NoError(t, err)

	assert.False(t, ref.IsNone(w.Referent))
	assert.Equal(t, r, w.Referent)
}

func TestWeakRefCallbackQueuedOnDeath(t *testing.T) {
	t.Parallel()

	h := New()
	r := h.Alloc(9, FormatData, 0, 8)
	callback := ref.SmallInt(1)
	w := h.NewWeakRef(r, callback)

	err := h.Collect(context.Background(), nil, fixedTracer{size: 8})
	require.NoError(t, err)

	pending := h.PendingWeakRefCallbacks()
	require.Len(t, pending, 1)
	assert.Same(t, w, pending[0])
	assert.Equal(t, callback, pending[0].Callback)

	assert.Empty(t, h.PendingWeakRefCallbacks(), "draining clears the queue")
}

func TestWeakRefNoCallbackIsNotQueued(t *testing.T) {
	t.Parallel()

	h := New()
	r := h.Alloc(9, FormatData, 0, 8)
	h.NewWeakRef(r, ref.Unbound)

	err := h.Collect(context.Background(), nil, fixedTracer{size: 8})
	require.NoError(t, err)

	assert.Empty(t, h.PendingWeakRefCallbacks())
}
