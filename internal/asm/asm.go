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

// Package asm assembles a textual (YAML) description of a single compiled
// unit into a *code.Code, standing in for the parser/compiler front end
// spec §1 excludes from this repository's scope ("bytecode is taken as
// input"). cmd/pyro uses it to drive the interpreter end to end without
// writing a front end: a .pyroasm file names its constants, variable
// tables, and a mnemonic instruction stream, and Assemble lowers the
// mnemonics to the compact (opcode, arg) byte pairs internal/rewrite
// expects, collapsing any operand wider than a byte behind EXTENDED_ARG
// exactly as a real compiler would (spec §6 "arg is one byte plus optional
// extended-arg prefix").
//
// No file in the example pack ships a bytecode assembler — this package
// has no direct teacher grounding beyond the opcode table itself
// (internal/rewrite/opcodes.go, which mirrors spec §6's closed opcode
// set); it exists solely so cmd/pyro has something to feed the
// interpreter, and is documented as a stdlib-only CLI-support concern in
// DESIGN.md.
package asm

import (
	"fmt"

	"github.com/pyro-lang/pyro/internal/code"
	"github.com/pyro-lang/pyro/internal/rewrite"
)

// Instr is one mnemonic instruction: an opcode name (see opcodeNames) plus
// its integer argument. The argument's meaning depends on the opcode: a
// Consts/Names/Varnames index, a jump offset, or (for BINARY_OP/INPLACE_OP/
// COMPARE_OP) an operator selector — see BinaryOpNames/CompareOpNames.
type Instr struct {
	Op  string `yaml:"op"`
	Arg int    `yaml:"arg"`
}

// Source is the assembled unit's textual form, decoded directly from YAML
// (cmd/pyro's input file format).
type Source struct {
	Name        string   `yaml:"name"`
	Filename    string   `yaml:"filename"`
	PosArgs     int      `yaml:"pos_args"`
	PosOnlyArgs int      `yaml:"pos_only_args"`
	KwOnlyArgs  int      `yaml:"kw_only_args"`
	NumLocals   int      `yaml:"num_locals"`
	StackSize   int      `yaml:"stack_size"`
	FirstLine   int      `yaml:"first_line"`

	// Consts decodes straight from YAML scalars (string/int/bool/null),
	// which already match the Go types internal/interp.loadConst switches
	// on (spec §3 "Code... constants").
	Consts   []any    `yaml:"consts"`
	Names    []string `yaml:"names"`
	Varnames []string `yaml:"varnames"`
	Freevars []string `yaml:"freevars"`
	Cellvars []string `yaml:"cellvars"`

	Code []Instr `yaml:"code"`
}

var opcodeNames = map[string]rewrite.Op{
	"LOAD_CONST":       rewrite.OpLoadConst,
	"LOAD_FAST":        rewrite.OpLoadFast,
	"STORE_FAST":       rewrite.OpStoreFast,
	"DELETE_FAST":      rewrite.OpDeleteFast,
	"LOAD_GLOBAL":      rewrite.OpLoadGlobal,
	"STORE_GLOBAL":     rewrite.OpStoreGlobal,
	"BINARY_OP":        rewrite.OpBinaryOp,
	"INPLACE_OP":       rewrite.OpInplaceOp,
	"COMPARE_OP":       rewrite.OpCompareOp,
	"BINARY_SUBSCR":    rewrite.OpBinarySubscr,
	"STORE_SUBSCR":     rewrite.OpStoreSubscr,
	"LOAD_ATTR":        rewrite.OpLoadAttr,
	"STORE_ATTR":       rewrite.OpStoreAttr,
	"LOAD_METHOD":      rewrite.OpLoadMethod,
	"FOR_ITER":         rewrite.OpForIter,
	"CALL_FUNCTION":    rewrite.OpCallFunction,
	"RETURN_VALUE":     rewrite.OpReturnValue,
	"JUMP_FORWARD":     rewrite.OpJumpForward,
	"POP_JUMP_IF_FALSE": rewrite.OpPopJumpIfFalse,
	"SETUP_FINALLY":    rewrite.OpSetupFinally,
	"POP_EXCEPT":       rewrite.OpPopExcept,
}

// BinaryOpNames maps the mnemonic operator an assembly source names for a
// BINARY_OP/INPLACE_OP instruction's argument byte (spec §4.G "the
// argument byte encodes the specific operator").
var BinaryOpNames = map[string]rewrite.BinaryOp{
	"+": rewrite.BinAdd, "-": rewrite.BinSub, "*": rewrite.BinMul,
	"/": rewrite.BinDiv, "//": rewrite.BinFloorDiv, "%": rewrite.BinMod,
	"**": rewrite.BinPow, "<<": rewrite.BinLShift, ">>": rewrite.BinRShift,
	"&": rewrite.BinAnd, "|": rewrite.BinOr, "^": rewrite.BinXor,
	"@": rewrite.BinMatMul,
}

// CompareOpNames maps the mnemonic operator a COMPARE_OP instruction's
// argument byte names.
var CompareOpNames = map[string]rewrite.CompareOp{
	"==": rewrite.CmpEq, "!=": rewrite.CmpNe, "<": rewrite.CmpLt,
	"<=": rewrite.CmpLe, ">": rewrite.CmpGt, ">=": rewrite.CmpGe,
	"is": rewrite.CmpIs, "is not": rewrite.CmpIsNot,
}

// Assemble lowers src into a *code.Code ready for internal/rewrite.Rewrite.
func Assemble(src *Source) (*code.Code, error) {
	var bc []byte
	for i, in := range src.Code {
		op, ok := opcodeNames[in.Op]
		if !ok {
			return nil, fmt.Errorf("asm: instruction %d: unknown opcode %q", i, in.Op)
		}

		arg := in.Arg
		if arg < 0 || arg > 0xFFFF {
			return nil, fmt.Errorf("asm: instruction %d: argument %d out of EXTENDED_ARG range", i, arg)
		}
		if arg > 0xFF {
			bc = append(bc, byte(rewrite.OpExtendedArg), byte(arg>>8))
			arg &= 0xFF
		}
		bc = append(bc, byte(op), byte(arg))
	}

	firstLine := src.FirstLine
	if firstLine == 0 {
		firstLine = 1
	}

	return &code.Code{
		PosArgs:     src.PosArgs,
		PosOnlyArgs: src.PosOnlyArgs,
		KwOnlyArgs:  src.KwOnlyArgs,
		NumLocals:   src.NumLocals,
		StackSize:   src.StackSize,
		Bytecode:    bc,
		Consts:      src.Consts,
		Names:       src.Names,
		Varnames:    src.Varnames,
		Freevars:    src.Freevars,
		Cellvars:    src.Cellvars,
		Filename:    src.Filename,
		Name:        src.Name,
		FirstLine:   firstLine,
	}, nil
}

// ResolveOperator translates a BINARY_OP/INPLACE_OP/COMPARE_OP mnemonic
// argument (given as a small int in the source, e.g. the numeric value
// already assigned above) back to its byte form. Assembly sources name
// operators directly as the Arg integer matching rewrite.BinaryOp /
// rewrite.CompareOp's own iota ordering, so no separate translation step
// runs during Assemble; this helper is for tooling that wants to print the
// mnemonic operator back out.
func ResolveOperator(op rewrite.Op, arg byte) string {
	switch op {
	case rewrite.OpBinaryOp, rewrite.OpInplaceOp, rewrite.OpBinaryOpAnamorphic, rewrite.OpInplaceOpAnamorphic:
		for name, v := range BinaryOpNames {
			if byte(v) == arg {
				return name
			}
		}
	case rewrite.OpCompareOp, rewrite.OpCompareOpAnamorphic:
		for name, v := range CompareOpNames {
			if byte(v) == arg {
				return name
			}
		}
	}
	return fmt.Sprintf("0x%02x", arg)
}
