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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderPackUnpack(t *testing.T) {
	t.Parallel()

	h := MakeHeader(12345, FormatObject, 7)
	assert.Equal(t, uint32(12345), h.LayoutID())
	assert.Equal(t, FormatObject, h.Format())
	assert.Equal(t, 7, h.InlineCount())
	assert.False(t, h.Overflowed())
	assert.Equal(t, uint32(0), h.Hash())

	h2 := h.WithHash(0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), h2.Hash())
	// Hash mutation must not disturb the other fields.
	assert.Equal(t, uint32(12345), h2.LayoutID())
	assert.Equal(t, FormatObject, h2.Format())
	assert.Equal(t, 7, h2.InlineCount())
}

func TestHeaderCountOverflow(t *testing.T) {
	t.Parallel()

	h := MakeHeader(1, FormatData, 1000)
	assert.True(t, h.Overflowed())
	assert.Equal(t, CountOverflow, h.InlineCount())
}

func TestHeaderTooBigLayoutPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		MakeHeader(1<<20, FormatData, 0)
	})
}

func TestIsHeader(t *testing.T) {
	t.Parallel()

	h := MakeHeader(5, FormatData, 2)
	assert.True(t, IsHeader(uint64(h)))
	assert.False(t, IsHeader(0))
}
