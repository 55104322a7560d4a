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

// Package strs implements the dual small/large string and bytes
// representation of spec §4.E.
//
// Small values are packed entirely inside a [ref.Ref] word, the same way
// the teacher repository's zc (zero-copy) type in zc.go packs an
// offset+length pair into a single uint64 instead of a real slice header:
// both are "avoid an allocation by repurposing the bits of a scalar we
// already have to carry around." Large values borrow the teacher's
// zero-copy idea directly: a string decoded from a byte buffer that is
// already valid UTF-8 is "promoted" by rewriting its heap header in place
// (internal/heap.Header.WithLayoutID), exactly as zc.utf8 reinterprets
// borrowed bytes as a string without copying.
package strs

import (
	"strings"
	"unicode/utf8"

	"github.com/timandy/routine"

	"github.com/pyro-lang/pyro/internal/heap"
	"github.com/pyro-lang/pyro/internal/layout"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// Strings is the per-interpreter-instance factory for string and bytes
// objects: it owns the heap and the three reserved layout ids that
// distinguish a large bytes object from an ASCII-only string from a
// general UTF-8 string (the latter distinction lets ASCII fast paths in
// concat/substring skip a UTF-8 scan entirely, per spec §4.E).
type Strings struct {
	heap *heap.Heap

	bytesLayout layout.ID
	asciiLayout layout.ID
	utf8Layout  layout.ID

	// iterCache is the per-goroutine cache of (string, code-point index,
	// byte offset), amortizing monotonic code-point iteration to O(1) per
	// step (spec §3 "per-thread state caches the most recent..."). This is
	// the direct Go analogue of CPython's PyThreadState-local cache;
	// grounded on the teacher's own use of timandy/routine for per-goroutine
	// bookkeeping.
	iterCache routine.ThreadLocal[any]
}

type iterState struct {
	r          ref.Ref
	cpIndex    int
	byteOffset int
}

// New creates a string/bytes factory backed by h, reserving three fresh
// layout ids from layouts for its large representations.
func New(h *heap.Heap, layouts *layout.Registry) *Strings {
	return &Strings{
		heap:        h,
		bytesLayout: layouts.NewRoot(0).ID(),
		asciiLayout: layouts.NewRoot(0).ID(),
		utf8Layout:  layouts.NewRoot(0).ID(),
		iterCache:   routine.NewThreadLocal[any](),
	}
}

// BytesLayout, AsciiLayout, Utf8Layout expose the reserved layout ids, for
// callers (e.g. the collector's Tracer, or type-dispatch in the
// interpreter) that need to recognize a string/bytes object by its header.
func (s *Strings) BytesLayout() layout.ID { return s.bytesLayout }
func (s *Strings) AsciiLayout() layout.ID { return s.asciiLayout }
func (s *Strings) Utf8Layout() layout.ID  { return s.utf8Layout }

// SmallBytes attempts to pack b as an inline small-bytes reference.
func SmallBytes(b []byte) (ref.Ref, bool) {
	return ref.MakeSmallBytes(b)
}

// SmallString attempts to pack s as an inline small-string reference.
func SmallString(s string) (ref.Ref, bool) {
	return ref.MakeSmallString(s)
}

// NewBytes builds a bytes object, choosing the small inline representation
// when it fits and otherwise allocating on the heap.
func (s *Strings) NewBytes(b []byte) ref.Ref {
	if r, ok := SmallBytes(b); ok {
		return r
	}
	return s.allocRaw(uint32(s.bytesLayout), b)
}

// NewString builds a string object from raw UTF-8 bytes, choosing the small
// inline representation when it fits, otherwise a large representation
// tagged ascii or utf8 according to whether every byte is 7-bit clean (spec
// §4.E "A string built from known-ASCII bytes records that fact in a header
// bit").
func (s *Strings) NewString(raw string) ref.Ref {
	if r, ok := SmallString(raw); ok {
		return r
	}

	layoutID := s.utf8Layout
	if isASCII(raw) {
		layoutID = s.asciiLayout
	}
	return s.allocRaw(uint32(layoutID), []byte(raw))
}

// Large strings/bytes are stored length-prefixed (spec §4.E "Strings are
// length-prefixed UTF-8"): an 8-byte content length followed by the raw
// bytes. This sidesteps the header's 8-bit inline count entirely, so large
// object size is never limited by it.
func (s *Strings) allocRaw(layoutID uint32, data []byte) ref.Ref {
	r := s.heap.Alloc(layoutID, heap.FormatData, len(data), 8+len(data))
	body := ref.AsHeap[byte](r)

	*xunsafe.Cast[uint64](body) = uint64(len(data))
	if len(data) > 0 {
		xunsafe.Copy(xunsafe.Add(body, 8), xunsafe.NoEscape(&data[0]), len(data))
	}
	return r
}

// IsLargeBytes, IsLargeAscii, IsLargeUtf8 classify a heap reference by its
// layout id.
func (s *Strings) IsLargeBytes(r ref.Ref) bool {
	return ref.IsHeap(r) && layout.ID(heap.LayoutIDOf(r)) == s.bytesLayout
}
func (s *Strings) IsLargeAscii(r ref.Ref) bool {
	return ref.IsHeap(r) && layout.ID(heap.LayoutIDOf(r)) == s.asciiLayout
}
func (s *Strings) IsLargeUtf8(r ref.Ref) bool {
	return ref.IsHeap(r) && layout.ID(heap.LayoutIDOf(r)) == s.utf8Layout
}

// IsString reports whether r is any string representation (small or large,
// ascii or not).
func (s *Strings) IsString(r ref.Ref) bool {
	return ref.IsSmallStr(r) || s.IsLargeAscii(r) || s.IsLargeUtf8(r)
}

// IsBytes reports whether r is any bytes representation.
func (s *Strings) IsBytes(r ref.Ref) bool {
	return ref.IsSmallBytes(r) || s.IsLargeBytes(r)
}

// Bytes returns the raw byte content of a string or bytes reference,
// regardless of representation.
func (s *Strings) Bytes(r ref.Ref) []byte {
	if ref.IsSmallStr(r) {
		return ref.SmallStringBytes(r)
	}
	if ref.IsSmallBytes(r) {
		return ref.SmallBytesBytes(r)
	}

	body := ref.AsHeap[byte](r)
	n := int(*xunsafe.Cast[uint64](body))
	if n == 0 {
		return nil
	}
	return xunsafe.Slice(xunsafe.Add(body, 8), n)
}

// ByteLen returns the number of raw bytes backing r.
func (s *Strings) ByteLen(r ref.Ref) int { return len(s.Bytes(r)) }

// CodePointLen returns the number of Unicode scalar values in the string r.
func (s *Strings) CodePointLen(r ref.Ref) int {
	if s.IsLargeAscii(r) || (ref.IsSmallStr(r) && isASCII(string(s.Bytes(r)))) {
		return s.ByteLen(r)
	}
	return utf8.RuneCount(s.Bytes(r))
}

// CodePointAt decodes the scalar value starting at byteOffset within data,
// returning the scalar and its width in bytes (spec §3
// `codePointAt(byte_index) -> (scalar, byte_width)`).
func CodePointAt(data []byte, byteOffset int) (rune, int) {
	return utf8.DecodeRune(data[byteOffset:])
}

// ByteOffsetOf returns the byte offset of the cpIndex'th code point of r,
// consulting and updating this goroutine's iteration cache so that
// monotonically increasing cpIndex values (the overwhelmingly common
// iteration pattern) are amortized O(1) rather than O(n) (spec §3).
func (s *Strings) ByteOffsetOf(r ref.Ref, cpIndex int) int {
	data := s.Bytes(r)

	start, startCP := 0, 0
	if cached, ok := s.iterCache.Get().(iterState); ok && cached.r == r && cached.cpIndex <= cpIndex {
		start, startCP = cached.byteOffset, cached.cpIndex
	}

	off := start
	for cp := startCP; cp < cpIndex; cp++ {
		_, width := CodePointAt(data, off)
		off += width
	}

	s.iterCache.Set(iterState{r, cpIndex, off})
	return off
}

// Compare returns -1, 0, or 1 according to lexicographic order over Unicode
// scalars. Because two valid UTF-8 byte sequences compare in scalar order
// iff their bytes compare in the ordinary sense, this reduces to a byte
// compare (spec §4.E "Comparison follows lexicographic order over Unicode
// scalars").
func (s *Strings) Compare(a, b ref.Ref) int {
	ab, bb := s.Bytes(a), s.Bytes(b)

	// Small strings holding the same bit pattern are equal without
	// touching memory (spec §4.E "equality between small and small
	// reduces to an integer compare").
	if ref.IsSmallStr(a) && ref.IsSmallStr(b) {
		switch {
		case a == b:
			return 0
		case string(ab) < string(bb):
			return -1
		default:
			return 1
		}
	}

	return strings.Compare(string(ab), string(bb))
}

// DecodeASCII decodes b as a string directly, with no codec dispatch,
// succeeding only when every byte is 7-bit clean (spec §4.E "a byte
// sequence with no high-bit byte decodes to a string of identical bytes").
func DecodeASCII(b []byte) (string, bool) {
	if !isASCII(string(b)) {
		return "", false
	}
	return string(b), true
}

// EncodeASCII is the inverse of DecodeASCII.
func EncodeASCII(s string) ([]byte, bool) {
	if !isASCII(s) {
		return nil, false
	}
	return []byte(s), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// View is a minimal read-only buffer-protocol stub (supplemented feature,
// SPEC_FULL.md §3): a native collaborator can borrow a bytes object's raw
// storage without copying, the way CPython's `Py_buffer` exposes a
// `bf_getbuffer` slot's bytes directly. Only bytes objects (never strings)
// support this, matching the original's restriction of the buffer protocol
// to bytes-like types.
//
// Grounded on the teacher's zc.go "zero copy" borrowed-bytes fields: View
// is exactly the teacher's zc idiom (a slice header over memory this
// package still owns) exposed one level up, for a caller outside the
// package rather than an internal field.
type View struct {
	data []byte
}

// Bytes returns the borrowed byte slice. The caller must not retain it past
// the owning Strings' next collection, since a moving GC cycle can relocate
// the backing storage (spec §5's moving-collector invariant applies to the
// object a View borrows from just as it does to any other heap reference).
func (v View) Bytes() []byte { return v.data }

// Len returns the borrowed view's length without copying.
func (v View) Len() int { return len(v.data) }

// ViewOf returns a zero-copy View over r's storage, or ok=false if r is not
// a bytes object (spec §3 "the built-in library's buffer protocol is out of
// scope" for anything beyond this minimal read path).
func (s *Strings) ViewOf(r ref.Ref) (View, bool) {
	if !s.IsBytes(r) {
		return View{}, false
	}
	return View{data: s.Bytes(r)}, true
}

// Promote reinterprets a large bytes object r as a string in place,
// rewriting its heap header's layout id from bytesLayout to ascii/utf8Layout
// with no copy, exactly as spec §3 describes ("via a header rewrite that
// avoids copying... only legal when the underlying bytes are already valid
// UTF-8"). Small bytes values are instead repacked as a small string, which
// is a pure bit-twiddle on the word itself.
func (s *Strings) Promote(r ref.Ref) (ref.Ref, bool) {
	if ref.IsSmallBytes(r) {
		raw := ref.SmallBytesBytes(r)
		if !utf8.Valid(raw) {
			return 0, false
		}
		out, ok := SmallString(string(raw))
		return out, ok
	}

	if !s.IsLargeBytes(r) {
		return 0, false
	}

	raw := s.Bytes(r)
	if !utf8.Valid(raw) {
		return 0, false
	}

	layoutID := s.utf8Layout
	if isASCII(string(raw)) {
		layoutID = s.asciiLayout
	}

	hdr := heap.HeaderOf(r)
	*hdr = hdr.WithLayoutID(uint32(layoutID))
	return r, true
}
