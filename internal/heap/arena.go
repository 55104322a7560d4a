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
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/pyro-lang/pyro/internal/debug"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// space is one half of the semispace heap: a bump-pointer arena that only
// ever grows forward. Its chunk shape mirrors the teacher arena's trick of
// tying a block of raw bytes to an owning pointer via reflect.StructOf, so
// that any live pointer into the chunk's data keeps the space (and therefore
// every other chunk reachable from it) alive for Go's own collector.
type space struct {
	next, end xunsafe.Addr[byte]
	cap       int // Always a power of 2.

	blocks []*byte // Indexed by size log2.

	// gen counts which semispace flip this space belongs to; used by
	// Ref.IsForwarded-style checks during a collection.
	gen uint32
}

// pointerAlign is the alignment every heap allocation is rounded up to. The
// reference tagging scheme needs four clear low bits, so objects must be
// 16-byte aligned (spec invariant 1).
const pointerAlign = 16

// alloc hands out size bytes of zeroed memory from s, growing the space if
// necessary. Callers store an 8-byte header first and the object body right
// after it, so the returned pointer sits 8 bytes past a 16-byte boundary
// and the body that follows the header is 16-byte aligned.
func (s *space) alloc(size int) *byte {
	size = int(roundUp(size+8, pointerAlign))

	if s.next.Add(size) > s.end {
		s.grow(size)
	}

	p := s.next.Add(8).AssertValid()
	s.next = s.next.Add(size)
	return p
}

func roundUp(x, align int) int {
	return (x + align - 1) &^ (align - 1)
}

func (s *space) grow(size int) {
	n := 1 << suggestSizeLog(max(size, s.cap*2, 1<<16))
	p, got := allocChunk(n)
	s.next = xunsafe.AddrOf(p)
	s.end = s.next.Add(got)
	s.cap = got

	log := suggestSizeLog(got)
	if int(log) >= len(s.blocks) {
		s.blocks = append(s.blocks, make([]*byte, int(log+1)-len(s.blocks))...)
	}
	s.blocks[log] = p

	debug.Log(nil, "heap.grow", "gen=%d size=%d:%d", s.gen, size, got)
}

// reset discards all memory in s, allowing it to be reused for the next
// collection cycle. Anything allocated from s must not be referenced after
// this call; the collector only calls this on the from-space half after a
// successful promotion pass.
func (s *space) reset() {
	s.next, s.end, s.cap = 0, 0, 0
	for i, b := range s.blocks {
		if b != nil {
			clear(xunsafe.Slice(b, 1<<i))
		}
	}
	s.blocks = nil
}

func suggestSizeLog(n int) uint {
	return max(6, uint(bits.Len(uint(n)-1)))
}

// allocChunk allocates a GC-traceable chunk of n bytes. The chunk's shape is
// [n]byte followed by a pointer field; reflect.StructOf is used to build
// this one-off composite type, because Go provides no other way to request
// an allocation of a shape not known at compile time. Anything that holds a
// pointer into the returned *byte keeps the whole chunk, and anything the
// chunk's trailing field points to, alive.
func allocChunk(n int) (*byte, int) {
	shape := chunkShape(n)
	p := (*byte)(reflect.New(shape).UnsafePointer())
	return p, n
}

func chunkShape(size int) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Data", Type: reflect.ArrayOf(size, reflect.TypeFor[byte]())},
		{Name: "Owner", Type: reflect.TypeFor[unsafe.Pointer]()},
	})
}
