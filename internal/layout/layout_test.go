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

package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAttributeShapeSharing exercises spec §8 scenario 2: two instances
// that add the same attributes in the same order end up sharing a layout.
func TestAttributeShapeSharing(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	root := reg.NewRoot(1)

	l1, err := reg.TransitionOnAdd(root, "x", AttributeInfo{Offset: 0})
	require.NoError(t, err)
	l1, err = reg.TransitionOnAdd(l1, "y", AttributeInfo{Offset: 1})
	require.NoError(t, err)

	l2, err := reg.TransitionOnAdd(root, "x", AttributeInfo{Offset: 0})
	require.NoError(t, err)
	l2, err = reg.TransitionOnAdd(l2, "y", AttributeInfo{Offset: 1})
	require.NoError(t, err)

	require.Equal(t, l1.ID(), l2.ID())

	xi, ok := Lookup(l1, "x")
	require.True(t, ok)
	yi, ok := Lookup(l2, "y")
	require.True(t, ok)
	require.EqualValues(t, 0, xi.Offset)
	require.EqualValues(t, 1, yi.Offset)
}

func TestTransitionOnAddIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	root := reg.NewRoot(1)

	a, err := reg.TransitionOnAdd(root, "x", AttributeInfo{Offset: 0})
	require.NoError(t, err)
	b, err := reg.TransitionOnAdd(root, "x", AttributeInfo{Offset: 0})
	require.NoError(t, err)
	require.Equal(t, a.ID(), b.ID())
}

func TestTransitionPreservesOffsets(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	root := reg.NewRoot(1)

	l, err := reg.TransitionOnAdd(root, "a", AttributeInfo{Offset: 0})
	require.NoError(t, err)
	l2, err := reg.TransitionOnAdd(l, "b", AttributeInfo{Offset: 1})
	require.NoError(t, err)

	ai, ok := Lookup(l2, "a")
	require.True(t, ok)
	require.EqualValues(t, 0, ai.Offset)
}

func TestSealedLayoutRejectsMutation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	slotted := reg.NewSlotted(1, "x", "y")

	_, err := reg.TransitionOnAdd(slotted, "z", AttributeInfo{Offset: 2})
	require.Error(t, err)
}

func TestDeleteMarksNotPhysical(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	root := reg.NewRoot(1)
	l, err := reg.TransitionOnAdd(root, "x", AttributeInfo{Offset: 0})
	require.NoError(t, err)

	l2, err := reg.TransitionOnDelete(l, "x")
	require.NoError(t, err)

	_, ok := Lookup(l2, "x")
	require.False(t, ok)

	// The original layout l is unaffected; other instances sharing it can
	// still look x up.
	_, ok = Lookup(l, "x")
	require.True(t, ok)
}
