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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyro-lang/pyro/internal/code"
)

func instr(op Op, arg byte) []byte { return []byte{byte(op), arg} }

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestRewriteBinaryOpInstallsCacheSlot(t *testing.T) {
	t.Parallel()

	c := &code.Code{Bytecode: concat(instr(OpBinaryOp, byte(BinAdd)), instr(OpReturnValue, 0))}
	p, err := Rewrite(c)
	require.NoError(t, err)

	require.Len(t, p.Cells, 2)
	assert.Equal(t, OpBinaryOpAnamorphic, p.Cells[0].Op)
	assert.Equal(t, uint16(0), p.Cells[0].CacheIdx)
	assert.Equal(t, 1, p.CacheSlots)
	assert.False(t, p.CacheBudgetExceeded)
}

func TestRewriteCompareIsSkipsCache(t *testing.T) {
	t.Parallel()

	c := &code.Code{Bytecode: instr(OpCompareOp, byte(CmpIs))}
	p, err := Rewrite(c)
	require.NoError(t, err)

	assert.Equal(t, OpCompareIs, p.Cells[0].Op)
	assert.Equal(t, NoCache, p.Cells[0].CacheIdx)
	assert.Equal(t, 0, p.CacheSlots)
}

func TestRewriteLoadConstSpecializesBoolAndImmediate(t *testing.T) {
	t.Parallel()

	c := &code.Code{
		Consts:   []any{true, 42, "str"},
		Bytecode: concat(instr(OpLoadConst, 0), instr(OpLoadConst, 1), instr(OpLoadConst, 2)),
	}
	p, err := Rewrite(c)
	require.NoError(t, err)

	assert.Equal(t, OpLoadBool, p.Cells[0].Op)
	assert.Equal(t, byte(1), p.Cells[0].Arg)

	assert.Equal(t, OpLoadImmediate, p.Cells[1].Op)
	assert.Equal(t, byte(42), p.Cells[1].Arg)

	assert.Equal(t, OpLoadConst, p.Cells[2].Op)
	assert.Equal(t, uint16(2), p.Cells[2].CacheIdx)
}

func TestRewriteLoadFastUncheckedForPositionalArg(t *testing.T) {
	t.Parallel()

	c := &code.Code{PosArgs: 2, Bytecode: concat(instr(OpLoadFast, 0), instr(OpLoadFast, 5))}
	p, err := Rewrite(c)
	require.NoError(t, err)

	assert.Equal(t, OpLoadFastReverseUnchecked, p.Cells[0].Op)
	assert.True(t, p.UncheckedFast[0])

	assert.Equal(t, OpLoadFastReverse, p.Cells[1].Op)
	assert.False(t, p.UncheckedFast[5])
}

func TestRewriteDeleteFastDisqualifiesUnchecked(t *testing.T) {
	t.Parallel()

	c := &code.Code{
		PosArgs:  1,
		Bytecode: concat(instr(OpDeleteFast, 0), instr(OpLoadFast, 0)),
	}
	p, err := Rewrite(c)
	require.NoError(t, err)

	// DELETE_FAST itself passes through unchanged; the later LOAD_FAST on
	// the same slot must not be the unchecked variant.
	assert.Equal(t, OpDeleteFast, p.Cells[0].Op)
	assert.Equal(t, OpLoadFastReverse, p.Cells[1].Op)
	assert.False(t, p.UncheckedFast[0])
}

func TestRewriteCollapsesExtendedArg(t *testing.T) {
	t.Parallel()

	c := &code.Code{Bytecode: concat(instr(OpExtendedArg, 1), instr(OpLoadGlobal, 0x02))}
	p, err := Rewrite(c)
	require.NoError(t, err)

	require.Len(t, p.Cells, 1)
	assert.Equal(t, OpLoadGlobal, p.Cells[0].Op)
	assert.Equal(t, uint16(0x0102), p.Cells[0].CacheIdx)
}

func TestRewriteLegacyOpcodeDisablesBlockMap(t *testing.T) {
	t.Parallel()

	c := &code.Code{Bytecode: instr(OpSetupFinally, 3)}
	p, err := Rewrite(c)
	require.NoError(t, err)

	assert.True(t, p.BlockMapDisabled)
}

func TestRewriteCacheBudgetExhaustion(t *testing.T) {
	t.Parallel()

	var bc []byte
	for i := 0; i < MaxCacheSlots+5; i++ {
		bc = append(bc, instr(OpBinaryOp, byte(BinAdd))...)
	}
	p, err := Rewrite(&code.Code{Bytecode: bc})
	require.NoError(t, err)

	assert.True(t, p.CacheBudgetExceeded)
	assert.Equal(t, MaxCacheSlots, p.CacheSlots)
	assert.Equal(t, NoCache, p.Cells[len(p.Cells)-1].CacheIdx)
}

func TestRewriteDanglingExtendedArgErrors(t *testing.T) {
	t.Parallel()

	_, err := Rewrite(&code.Code{Bytecode: instr(OpExtendedArg, 1)})
	require.Error(t, err)
}
