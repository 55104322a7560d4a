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

package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
)

type fakeAttrs map[string]ref.Ref

func (f fakeAttrs) Get(name string) (ref.Ref, bool) { v, ok := f[name]; return v, ok }
func (f fakeAttrs) Set(name string, v ref.Ref) error { f[name] = v; return nil }
func (f fakeAttrs) Delete(name string) error         { delete(f, name); return nil }

func TestNewTypeDefaultsToObjectBase(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)

	p, err := reg.New("P", nil, nil, layouts.NewRoot(0))
	require.NoError(t, err)

	require.Len(t, p.MRO(), 2)
	assert.Equal(t, p, p.MRO()[0])
	assert.Equal(t, reg.Object, p.MRO()[1])
}

func TestCapabilityFlagsInheritUnlessOverridden(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)

	p, err := reg.New("P", nil, nil, layouts.NewRoot(0))
	require.NoError(t, err)
	assert.True(t, p.Flags.Has(HasObjectHash))
	assert.True(t, p.Flags.Has(HasObjectEq))

	custom, err := reg.New("Custom", nil, map[string]any{
		"__eq__": ref.SmallInt(1),
	}, layouts.NewRoot(0))
	require.NoError(t, err)
	assert.False(t, custom.Flags.Has(HasObjectEq))
}

func TestGetAttributeChecksInstanceBeforeNonDataDescriptor(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)

	calledGet := false
	p, err := reg.New("P", nil, map[string]any{
		"x": &Descriptor{Get: func(ref.Ref) (ref.Ref, error) {
			calledGet = true
			return ref.SmallInt(99), nil
		}},
	}, layouts.NewRoot(0))
	require.NoError(t, err)

	inst := fakeAttrs{"x": ref.SmallInt(1)}
	v, err := GetAttribute(p, ref.None, inst, "x")
	require.NoError(t, err)
	assert.Equal(t, ref.SmallInt(1), v)
	assert.False(t, calledGet, "non-data descriptor must not shadow an instance attribute")
}

func TestGetAttributeDataDescriptorWins(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)

	p, err := reg.New("P", nil, map[string]any{
		"x": &Descriptor{
			Get: func(ref.Ref) (ref.Ref, error) { return ref.SmallInt(42), nil },
			Set: func(ref.Ref, ref.Ref) error { return nil },
		},
	}, layouts.NewRoot(0))
	require.NoError(t, err)

	inst := fakeAttrs{"x": ref.SmallInt(1)}
	v, err := GetAttribute(p, ref.None, inst, "x")
	require.NoError(t, err)
	assert.Equal(t, ref.SmallInt(42), v)
}

func TestGetAttributeMissingRaises(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)
	p, err := reg.New("P", nil, nil, layouts.NewRoot(0))
	require.NoError(t, err)

	_, err = GetAttribute(p, ref.None, fakeAttrs{}, "missing")
	require.Error(t, err)
	var notFound *ErrNoAttribute
	require.ErrorAs(t, err, &notFound)
}

// TestDiamondMRO exercises the classic C3 diamond: D(B, C), B(A), C(A).
func TestDiamondMRO(t *testing.T) {
	t.Parallel()

	layouts := layout.NewRegistry()
	reg := NewRegistry(layouts)

	a, err := reg.New("A", nil, nil, layouts.NewRoot(0))
	require.NoError(t, err)
	b, err := reg.New("B", []*Type{a}, nil, layouts.NewRoot(0))
	require.NoError(t, err)
	c, err := reg.New("C", []*Type{a}, nil, layouts.NewRoot(0))
	require.NoError(t, err)
	d, err := reg.New("D", []*Type{b, c}, nil, layouts.NewRoot(0))
	require.NoError(t, err)

	var names []string
	for _, t := range d.MRO() {
		names = append(names, t.Name)
	}
	assert.Equal(t, []string{"D", "B", "C", "A", "object"}, names)
}
