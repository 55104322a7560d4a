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

package rewrite

import (
	"fmt"

	"github.com/pyro-lang/pyro/internal/code"
)

type rawInstr struct {
	op     Op
	arg    int
	offset int // Offset of the opcode byte in the compact stream.
}

// decode collapses EXTENDED_ARG prefixes into a single wide argument per
// spec §6 "EXTENDED_ARG does not survive rewriting": a run of EXTENDED_ARG
// cells folds into the instruction that follows.
func decode(bytecode []byte) ([]rawInstr, error) {
	var out []rawInstr
	ext := 0
	for i := 0; i+1 < len(bytecode); i += 2 {
		op := Op(bytecode[i])
		arg := int(bytecode[i+1]) | ext

		if op == OpExtendedArg {
			ext = arg << 8
			continue
		}
		out = append(out, rawInstr{op: op, arg: arg, offset: i})
		ext = 0
	}
	if ext != 0 {
		return nil, fmt.Errorf("rewrite: dangling EXTENDED_ARG at end of bytecode")
	}
	return out, nil
}

// deletedFastVars returns the set of Varnames indices targeted by any
// DELETE_FAST in the function, used to decide LOAD_FAST_REVERSE_UNCHECKED
// eligibility (spec §4.G "a variable provably bound at every reaching
// definition, with no intervening DELETE_FAST").
func deletedFastVars(instrs []rawInstr) map[int]bool {
	deleted := make(map[int]bool)
	for _, in := range instrs {
		if in.op == OpDeleteFast {
			deleted[in.arg] = true
		}
	}
	return deleted
}

// rewriter holds the mutable state threaded through a single Rewrite call.
type rewriter struct {
	c       *code.Code
	cells   []Cell
	slots   int
	over    bool
	disable bool
}

func (rw *rewriter) allocSlot() uint16 {
	if rw.over || rw.slots >= MaxCacheSlots {
		rw.over = true
		return NoCache
	}
	idx := rw.slots
	rw.slots++
	return uint16(idx)
}

// Rewrite lowers c's compact bytecode into a cache-augmented cell program.
func Rewrite(c *code.Code) (*Program, error) {
	instrs, err := decode(c.Bytecode)
	if err != nil {
		return nil, err
	}
	deleted := deletedFastVars(instrs)

	rw := &rewriter{c: c}
	unchecked := make(map[int]bool)

	for _, in := range instrs {
		cell, isUnchecked := rw.lower(in, deleted)
		rw.cells = append(rw.cells, cell)
		if isUnchecked {
			unchecked[in.arg] = true
		}
	}

	return &Program{
		Cells:               rw.cells,
		CacheSlots:          rw.slots,
		BlockMapDisabled:    rw.disable,
		CacheBudgetExceeded: rw.over,
		UncheckedFast:       unchecked,
	}, nil
}

// lower rewrites a single decoded instruction into its output cell, and
// reports whether it installed a LOAD_FAST_REVERSE_UNCHECKED.
func (rw *rewriter) lower(in rawInstr, deleted map[int]bool) (Cell, bool) {
	if in.op.IsLegacy() {
		rw.disable = true
		return Cell{Op: in.op, Arg: byte(in.arg), CacheIdx: NoCache}, false
	}

	switch in.op {
	case OpLoadFast:
		if in.arg < rw.c.PosArgs && !deleted[in.arg] {
			return Cell{Op: OpLoadFastReverseUnchecked, Arg: byte(in.arg), CacheIdx: NoCache}, true
		}
		return Cell{Op: OpLoadFastReverse, Arg: byte(in.arg), CacheIdx: NoCache}, false

	case OpStoreFast:
		return Cell{Op: OpStoreFastReverse, Arg: byte(in.arg), CacheIdx: NoCache}, false

	case OpLoadConst:
		return rw.lowerLoadConst(in), false

	case OpCompareOp:
		if CompareOp(in.arg) == CmpIs {
			return Cell{Op: OpCompareIs, Arg: in.arg8(), CacheIdx: NoCache}, false
		}
		if CompareOp(in.arg) == CmpIsNot {
			return Cell{Op: OpCompareIsNot, Arg: in.arg8(), CacheIdx: NoCache}, false
		}
		return Cell{Op: OpCompareOpAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false

	case OpBinaryOp:
		return Cell{Op: OpBinaryOpAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpInplaceOp:
		return Cell{Op: OpInplaceOpAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpBinarySubscr:
		return Cell{Op: OpBinarySubscrAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpStoreSubscr:
		return Cell{Op: OpStoreSubscrAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpLoadAttr:
		return Cell{Op: OpLoadAttrAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpStoreAttr:
		return Cell{Op: OpStoreAttrAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpLoadMethod:
		return Cell{Op: OpLoadMethodAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpForIter:
		return Cell{Op: OpForIterAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false
	case OpCallFunction:
		return Cell{Op: OpCallFunctionAnamorphic, Arg: in.arg8(), CacheIdx: rw.allocSlot()}, false

	case OpLoadGlobal, OpStoreGlobal:
		// The fixed global-cache bank has one slot per name (spec §4.G "one
		// entry per name in the names table"), so the name index doubles as
		// the slot index; CacheIdx, not Arg, is the field the interpreter
		// reads, since a names table can exceed 256 entries where Arg alone
		// would truncate.
		return Cell{Op: in.op, Arg: in.arg8(), CacheIdx: wideOperand(in.arg)}, false

	default:
		// RETURN_VALUE, jumps, and anything else not specialized pass
		// through unchanged. A jump offset or other wide operand that
		// doesn't fit Arg is carried in CacheIdx instead, since these sites
		// never need a real cache slot.
		return Cell{Op: in.op, Arg: in.arg8(), CacheIdx: wideOperand(in.arg)}, false
	}
}

// wideOperand packs an operand that may exceed a single byte into the
// cell's 16-bit cache-index field. The rewritten cell format fixes arg at
// one byte (spec §6), which cannot losslessly carry an EXTENDED_ARG-widened
// 32-bit operand; sites that reach here never allocate a real inline
// cache, so the field is free to repurpose. Operands too wide even for 16
// bits (more than 65535) are a front-end compiler defect, not something
// this rewriter can represent.
func wideOperand(arg int) uint16 {
	if arg < 0 || arg == int(NoCache) {
		return NoCache
	}
	return uint16(arg)
}

// lowerLoadConst specializes LOAD_CONST per spec §4.G: booleans become
// LOAD_BOOL, small integer constants that fit the argument byte become
// LOAD_IMMEDIATE carrying the value directly, and anything else keeps
// indexing into Consts.
func (rw *rewriter) lowerLoadConst(in rawInstr) Cell {
	if in.arg < 0 || in.arg >= len(rw.c.Consts) {
		return Cell{Op: OpLoadConst, Arg: in.arg8(), CacheIdx: wideOperand(in.arg)}
	}
	switch v := rw.c.Consts[in.arg].(type) {
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return Cell{Op: OpLoadBool, Arg: b, CacheIdx: NoCache}
	case int:
		if v >= -128 && v <= 127 {
			return Cell{Op: OpLoadImmediate, Arg: byte(int8(v)), CacheIdx: NoCache}
		}
	}
	return Cell{Op: OpLoadConst, Arg: in.arg8(), CacheIdx: wideOperand(in.arg)}
}

func (in rawInstr) arg8() byte {
	return byte(in.arg)
}
