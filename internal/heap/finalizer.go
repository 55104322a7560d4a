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
	"log/slog"

	"github.com/pyro-lang/pyro/internal/ref"
	"github.com/pyro-lang/pyro/internal/xunsafe"
)

// Finalizer is the Go entry point a collaborator installs for a layout id
// via RegisterFinalizer (spec §3 "__del__"). It is called with the dying
// object's reference while the object's body is still intact (Collect runs
// finalizers before resetting from-space), and any error it returns is
// logged, never propagated (spec §5: "a finalizer that raises is logged
// via log/slog and the exception discarded, not propagated").
type Finalizer func(dead ref.Ref) error

// finalizable is one instance currently registered for finalization. The
// collector has no general way to enumerate from-space memory (it is a
// bump arena, not an object table), so finalizable instances are tracked
// explicitly rather than discovered during a sweep, the same trade-off
// WeakRef makes for weakly-held referents.
type finalizable struct {
	ref      ref.Ref
	layoutID uint32
}

// RegisterFinalizer installs fn as the finalizer every object allocated
// with layoutID runs if it does not survive a collection. Grounded on the
// original's per-type association of a finalizer (a class's __del__ is
// resolved once, at class-creation time, not re-looked-up per instance).
func (h *Heap) RegisterFinalizer(layoutID uint32, fn Finalizer) {
	if h.finalizers == nil {
		h.finalizers = make(map[uint32]Finalizer)
	}
	h.finalizers[layoutID] = fn
}

// TrackFinalizable registers r, an instance of a layout with an installed
// finalizer, to be checked at the next collection. The collaborator that
// constructs r (internal/interp, via the type's Ctor) calls this once, at
// allocation time, when r's type carries a finalizer.
func (h *Heap) TrackFinalizable(r ref.Ref) {
	h.finalizable = append(h.finalizable, finalizable{ref: r, layoutID: LayoutIDOf(r)})
}

// sweepFinalizable is called by Collect after promotion but before
// from-space is reset, so it can both tell which tracked instances died and
// still read their (about-to-be-reclaimed) bodies to run their finalizer.
// Surviving instances are re-tracked under their forwarded reference; dead
// ones are finalized immediately and dropped.
func (h *Heap) sweepFinalizable(p *promoter) {
	if len(h.finalizable) == 0 {
		return
	}

	live := h.finalizable[:0]
	for _, f := range h.finalizable {
		addr := uintptr(xunsafe.AddrOf(ref.AsHeap[byte](f.ref)))
		if moved, ok := p.forwarded[addr]; ok {
			live = append(live, finalizable{ref: moved, layoutID: f.layoutID})
			continue
		}

		fn := h.finalizers[f.layoutID]
		if fn == nil {
			continue
		}
		if err := fn(f.ref); err != nil {
			slog.Warn("pyro: finalizer raised, discarding", "layout", f.layoutID, "error", err)
		}
	}
	h.finalizable = live
}
