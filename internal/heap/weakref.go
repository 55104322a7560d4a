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
	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// WeakRef is a weak reference to a heap object (spec §3 supplemented
// feature: "dependency links and cache-to-cell back-references are
// specified as weak"). It does not keep Referent alive; the collector
// clears Referent to ref.None the first time a collection runs without
// finding it reachable from any root, matching the original's RawWeakRef
// (referent/callback pair, clear-on-collect, optional dead-object
// callback), scaled down to a side-table record rather than a heap object
// type of its own — no WeakRef class is among this package's specified
// modules, so the boxed-object wrapper a real embedding API would add on
// top of this stays out of core, noted here rather than hand-waved.
type WeakRef struct {
	// Referent is the weakly-held object, or ref.None once cleared.
	Referent ref.Ref

	// Callback, if not ref.Unbound, is queued onto the owning Heap's
	// pending-callback list (drained via PendingWeakRefCallbacks) the
	// first time Referent is cleared. It is never invoked twice.
	Callback ref.Ref
}

// NewWeakRef registers a weak reference to referent. The returned *WeakRef
// is live bookkeeping, not a heap allocation: the caller (an embedding
// collaborator, spec §6) holds onto it directly and reads Referent after
// each collection to see whether it has been cleared.
func (h *Heap) NewWeakRef(referent ref.Ref, callback ref.Ref) *WeakRef {
	w := &WeakRef{Referent: referent, Callback: callback}
	h.weakrefs = append(h.weakrefs, w)
	return w
}

// PendingWeakRefCallbacks returns, and clears, every WeakRef whose Referent
// was cleared by the most recent Collect and which carries a Callback. The
// caller is responsible for invoking each one's Callback (typically via
// Machine.Call) outside of Collect itself, since a callback may run
// arbitrary interpreted code and Collect has no notion of calling
// conventions.
func (h *Heap) PendingWeakRefCallbacks() []*WeakRef {
	pending := h.pendingWeakRefs
	h.pendingWeakRefs = nil
	return pending
}

// sweepWeakRefs is called by Collect once promotion has finished (so
// p.forwarded reflects every surviving object) but before the from-space is
// reset. A referent address absent from p.forwarded did not survive.
func (h *Heap) sweepWeakRefs(p *promoter) {
	if len(h.weakrefs) == 0 {
		return
	}

	live := h.weakrefs[:0]
	for _, w := range h.weakrefs {
		if !ref.IsHeap(w.Referent) {
			continue // Already cleared in an earlier cycle; drop it.
		}

		addr := uintptr(xunsafe.AddrOf(ref.AsHeap[byte](w.Referent)))
		if moved, ok := p.forwarded[addr]; ok {
			w.Referent = moved
			live = append(live, w)
			continue
		}

		w.Referent = ref.None
		if !ref.IsUnbound(w.Callback) {
			h.pendingWeakRefs = append(h.pendingWeakRefs, w)
		}
	}
	h.weakrefs = live
}
