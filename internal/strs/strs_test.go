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

package strs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
)

func newFixture() *Strings {
	return New(heap.New(), layout.NewRegistry())
}

func TestSmallStringRoundTrip(t *testing.T) {
	t.Parallel()

	s := newFixture()
	r := s.NewString("hi")
	assert.True(t, ref.IsSmallStr(r))
	assert.Equal(t, "hi", string(s.Bytes(r)))
	assert.Equal(t, 2, s.CodePointLen(r))
}

func TestLargeStringRoundTrip(t *testing.T) {
	t.Parallel()

	s := newFixture()
	long := strings.Repeat("abcdefgh", 64) // 512 bytes, definitely not small.
	r := s.NewString(long)
	assert.False(t, ref.IsSmallStr(r))
	assert.True(t, s.IsLargeAscii(r))
	assert.Equal(t, long, string(s.Bytes(r)))
	assert.Equal(t, len(long), s.CodePointLen(r))
}

func TestMultibyteCodePointLen(t *testing.T) {
	t.Parallel()

	s := newFixture()
	long := strings.Repeat("日本語テスト", 20) // multi-byte, large.
	r := s.NewString(long)
	assert.False(t, ref.IsSmallStr(r))
	assert.True(t, s.IsLargeUtf8(r))

	wantCPs := []rune(long)
	assert.Equal(t, len(wantCPs), s.CodePointLen(r))

	for i, want := range wantCPs {
		off := s.ByteOffsetOf(r, i)
		got, _ := CodePointAt(s.Bytes(r), off)
		assert.Equal(t, want, got)
	}
}

func TestPromoteBytesToString(t *testing.T) {
	t.Parallel()

	s := newFixture()
	raw := []byte(strings.Repeat("x", 300))
	b := s.NewBytes(raw)
	require.True(t, s.IsLargeBytes(b))

	str, ok := s.Promote(b)
	require.True(t, ok)
	assert.True(t, s.IsLargeAscii(str))
	assert.Equal(t, string(raw), string(s.Bytes(str)))
}

func TestPromoteSmallBytesToString(t *testing.T) {
	t.Parallel()

	s := newFixture()
	b, ok := SmallBytes([]byte{104, 105})
	require.True(t, ok)

	str, ok := s.Promote(b)
	require.True(t, ok)
	assert.True(t, ref.IsSmallStr(str))
	assert.Equal(t, "hi", string(s.Bytes(str)))
}

func TestCompareLexicographic(t *testing.T) {
	t.Parallel()

	s := newFixture()
	assert.Equal(t, -1, s.Compare(s.NewString("a"), s.NewString("b")))
	assert.Equal(t, 0, s.Compare(s.NewString("same"), s.NewString("same")))
	assert.Equal(t, 1, s.Compare(s.NewString("z"), s.NewString("a")))
}

func TestDecodeEncodeASCII(t *testing.T) {
	t.Parallel()

	str, ok := DecodeASCII([]byte("plain"))
	require.True(t, ok)
	assert.Equal(t, "plain", str)

	_, ok = DecodeASCII([]byte{0xff, 0x80})
	assert.False(t, ok)

	b, ok := EncodeASCII("plain")
	require.True(t, ok)
	assert.Equal(t, []byte("plain"), b)
}
