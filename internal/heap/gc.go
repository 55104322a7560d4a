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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pyro-lang/pyro/internal/debug"
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// forwardLayoutID is the sentinel layout id written into a from-space
// header once its object has been promoted to to-space. A forwarding
// reference is distinguished from a live header by its layout-id field
// being this sentinel, never a real layout id (spec invariant 1: "the word
// at offset -8 is either a header or a forwarding reference").
const forwardLayoutID = 1<<layoutBits - 1

// Tracer is supplied by the layout/type system (built on top of this
// package) to tell the collector which words of an object are themselves
// references that need to be promoted along with it, and how large the
// object's body is (which may depend on a variable-length overflow word
// rather than the header's inline count).
type Tracer interface {
	// Trace calls visit once for every reference-typed slot in the object
	// r points to, in layout order.
	Trace(r ref.Ref, visit func(slot *ref.Ref))

	// Size returns the body size in bytes of the object r points to, not
	// including the header word.
	Size(r ref.Ref) int
}

// promoter holds the state shared by the two goroutines a single Collect
// call starts: the from-addr -> to-ref memo table and the to-space bump
// pointer, both protected by mu since root-scan and handle-sweep touch them
// concurrently.
type promoter struct {
	heap      *Heap
	tracer    Tracer
	mu        sync.Mutex
	forwarded map[uintptr]ref.Ref
}

// Collect runs one promotion cycle: every reference reachable from roots
// (and transitively, via tracer) is copied into to-space, and the
// from-space header it used to live at is overwritten with a forwarding
// reference. Pinned handles (Heap.Pin) are scanned as additional roots so
// that an object on loan to native code survives the collection.
//
// Per spec §5, the mutator and the collector never run concurrently: the
// two goroutines started here are an internal pipelining of the
// collector's own work (root-scan+copy vs. the handle-table sweep), not
// concurrent mutation, and share state through p's mutex.
func (h *Heap) Collect(ctx context.Context, roots []*ref.Ref, tracer Tracer) error {
	debug.Log(nil, "heap.collect", "from=gen%d allocated=%d", h.from.gen, h.allocated)

	p := &promoter{heap: h, tracer: tracer, forwarded: make(map[uintptr]ref.Ref)}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.scanRoots(ctx, roots) })
	g.Go(func() error { return p.scanHandles(ctx) })

	if err := g.Wait(); err != nil {
		return err
	}

	// Both sweeps run here, after every reachable object has a forwarding
	// entry in p.forwarded but before from-space memory is reclaimed:
	// sweepFinalizable needs a dead instance's body still intact to hand to
	// its finalizer, and sweepWeakRefs needs p.forwarded to tell a survived
	// referent from a collected one.
	h.sweepFinalizable(p)
	h.sweepWeakRefs(p)

	h.from.reset()
	h.from, h.to = h.to, h.from
	h.from.gen, h.to.gen = h.to.gen, h.from.gen
	h.allocated = 0

	debug.Log(nil, "heap.collect", "done, live now gen%d", h.from.gen)
	return nil
}

func (p *promoter) scanRoots(ctx context.Context, roots []*ref.Ref) error {
	work := append([]*ref.Ref(nil), roots...)
	for len(work) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		slot := work[len(work)-1]
		work = work[:len(work)-1]

		r := *slot
		if !ref.IsHeap(r) {
			continue
		}

		// The object at the front of the worklist is about to have its
		// header and body read by promote; warm the cache line for it
		// while the slot/IsHeap bookkeeping above is still in flight.
		xunsafe.Ping(ref.AsHeap[byte](r))

		moved := p.promote(r)
		*slot = moved

		if p.tracer != nil {
			var nested []*ref.Ref
			p.tracer.Trace(moved, func(s *ref.Ref) { nested = append(nested, s) })
			work = append(work, nested...)
		}
	}
	return nil
}

func (p *promoter) scanHandles(ctx context.Context) error {
	for addr, r := range p.heap.handles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if ref.IsHeap(r) {
			p.heap.handles[addr] = p.promote(r)
		}
	}
	return nil
}

// promote copies the object r points to into to-space, if it has not
// already been copied, and returns the new reference. The from-space
// header is rewritten into a forwarding entry so a second root pointing at
// the same object reuses the copy instead of duplicating it.
func (p *promoter) promote(r ref.Ref) ref.Ref {
	body := ref.AsHeap[byte](r)
	addr := uintptr(xunsafe.AddrOf(body))

	p.mu.Lock()
	defer p.mu.Unlock()

	if already, ok := p.forwarded[addr]; ok {
		return already
	}

	hdr := HeaderOf(r)
	size := bodySize(*hdr)
	if size < 0 {
		size = p.tracer.Size(r)
	}

	src := xunsafe.ByteAdd[byte](body, -8)
	dst := p.heap.to.alloc(8 + size)
	xunsafe.Copy(dst, src, 8+size)

	newBody := xunsafe.ByteAdd[byte](dst, 8)
	moved := ref.FromHeap(newBody)

	p.forwarded[addr] = moved
	*hdr = hdr.withForward()

	return moved
}

// bodySize computes the body size in bytes implied by a header's inline
// count, assuming pointer-sized elements. This handles the common
// fixed-shape case; variable-length objects whose true size depends on an
// overflow word return -1, and the caller falls back to the Tracer's Size
// method.
func bodySize(h Header) int {
	if h.Overflowed() {
		return -1
	}
	return h.InlineCount() * 8
}

func (h Header) withForward() Header {
	return h&^layoutMask | Header(forwardLayoutID)<<layoutShift
}

// IsForwarded reports whether h is a forwarding marker left behind by a
// completed promotion, rather than a live object header.
func (h Header) IsForwarded() bool {
	return h.LayoutID() == forwardLayoutID
}
