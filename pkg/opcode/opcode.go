// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package opcode defines the target machine's bytecode instruction set:
// fifty-two fixed mnemonics, a single OP_BYTE bit toggling every variant
// between a 2-byte and a 1-byte operand width, and one packed family of
// "variable access" opcodes that bit-fields {action, acc/stack, var class,
// indexed} onto a single mnemonic rather than enumerating one opcode per
// combination.
package opcode

import "fmt"

// Op is a single bytecode mnemonic, stored without its OP_BYTE bit (callers
// OR that in separately once the operand's size is known).
type Op uint8

// OPByte toggles an opcode's trailing operand from a 2-byte word to a single
// byte, when the value or displacement involved fits in 8 bits.
const OPByte Op = 0x01

// Fixed, non-packed opcodes occupy the even values below 0x80; the packed
// variable-access family (see VarAccess) owns 0x80 and up, so the two ranges
// can never collide. The low bit of every value stays clear for OPByte.
const (
	opBnt Op = (iota + 1) << 1
	opBt
	opJmp
	opLoadi
	opPush
	opPushi
	opToss
	opDup
	opLink
	opCall
	opCallk
	opCallb
	opCalle
	opRet
	opSend
	opSelf
	opSuper
	opSelfID
	opRest
	opLea
	opLofsa
	opClass
	opFileName
	opLineNum
	opPProc

	opPToa
	opATop
	opIPToa
	opDPToa

	opAdd
	opSub
	opMul
	opDiv
	opMod
	opShl
	opShr
	opAnd
	opOr
	opXor
	opBnot
	opNot
	opNeg

	opEq
	opNe
	opGt
	opGe
	opLt
	opLe
	opUgt
	opUge
	opUlt
	opUle
)

var mnemonics = map[Op]string{
	opBnt: "bnt", opBt: "bt", opJmp: "jmp", opLoadi: "loadi", opPush: "push",
	opPushi: "pushi", opToss: "toss", opDup: "dup", opLink: "link",
	opCall: "call", opCallk: "callk", opCallb: "callb", opCalle: "calle",
	opRet: "ret", opSend: "send", opSelf: "self", opSuper: "super",
	opSelfID: "selfID", opRest: "rest", opLea: "lea", opLofsa: "lofsa",
	opClass: "class", opFileName: "fileName", opLineNum: "lineNum",
	opPProc: "pprev", opPToa: "p->a", opATop: "a->p", opIPToa: "++p->a",
	opDPToa: "--p->a", opAdd: "add", opSub: "sub", opMul: "mul", opDiv: "div",
	opMod: "mod", opShl: "shl", opShr: "shr", opAnd: "and", opOr: "or",
	opXor: "xor", opBnot: "bnot", opNot: "not", opNeg: "neg", opEq: "eq",
	opNe: "ne", opGt: "gt", opGe: "ge", opLt: "lt", opLe: "le",
	opUgt: "ugt", opUge: "uge", opUlt: "ult", opUle: "ule",
}

var actionNames = [4]string{"l", "s", "+", "-"}
var classNames = [4]string{"g", "l", "t", "p"}

// String renders the opcode's mnemonic, without regard to its OPByte bit.
// A packed variable-access opcode decodes to the listing shorthand the
// disassembler uses: action, acc/stack target, variable class, and an
// optional indexed marker (e.g. "lag" = load accumulator global, "+sli" =
// increment, to stack, local, indexed).
func (o Op) String() string {
	base := o &^ OPByte
	if base >= opVarBase {
		v := base - opVarBase
		s := actionNames[(v&varActionMask)>>1]

		if v&varStackBit != 0 {
			s += "s"
		} else {
			s += "a"
		}

		s += classNames[(v&varClassMask)>>4]

		if v&varIndexedBit != 0 {
			s += "i"
		}

		return s
	}

	if name, ok := mnemonics[base]; ok {
		return name
	}

	return fmt.Sprintf("op%#x", uint8(o))
}

// Exported fixed-opcode names for the packages that emit or recognize a
// specific mnemonic rather than just sizing one generically. These alias the
// same internal constants the mnemonics table uses, so there is exactly one
// definition of each opcode's identity in this package.
const (
	Bnt      = opBnt
	Bt       = opBt
	Jmp      = opJmp
	Loadi    = opLoadi
	Push     = opPush
	Pushi    = opPushi
	Toss     = opToss
	Dup      = opDup
	Link     = opLink
	Call     = opCall
	Callk    = opCallk
	Callb    = opCallb
	Calle    = opCalle
	Ret      = opRet
	Send     = opSend
	Self     = opSelf
	Super    = opSuper
	SelfID   = opSelfID
	Rest     = opRest
	Lea      = opLea
	Lofsa    = opLofsa
	ClassOp  = opClass
	FileName = opFileName
	LineNum  = opLineNum
	PPrev    = opPProc

	Add  = opAdd
	Sub  = opSub
	Mul  = opMul
	Div  = opDiv
	Mod  = opMod
	Shl  = opShl
	Shr  = opShr
	And  = opAnd
	Or   = opOr
	Xor  = opXor
	Bnot = opBnot
	Not  = opNot
	Neg  = opNeg

	Eq  = opEq
	Ne  = opNe
	Gt  = opGt
	Ge  = opGe
	Lt  = opLt
	Le  = opLe
	Ugt = opUgt
	Uge = opUge
	Ult = opUlt
	Ule = opUle
)

// Short reports whether this opcode's OPByte bit is set.
func (o Op) Short() bool { return o&OPByte != 0 }

// WithShort returns o with its OPByte bit set or cleared according to short.
func (o Op) WithShort(short bool) Op {
	if short {
		return o | OPByte
	}

	return o &^ OPByte
}

// Size returns the total encoded size in bytes of this opcode plus an
// operand of operandWords 16-bit words (0, 1, or 2), honoring the OPByte
// bit: a 1-word operand costs 1 byte short-form or 2 bytes long-form, a
// 2-word operand costs 2 bytes short-form or 4 long-form.
func (o Op) Size(operandWords int) int {
	if operandWords == 0 {
		return 1
	}

	if o.Short() {
		return 1 + operandWords
	}

	return 1 + 2*operandWords
}

// Action classifies the action bits of the variable-access opcode family.
type Action int

const (
	Load Action = iota
	Store
	Inc
	Dec
)

// VarClass classifies which of the four variable classes a variable-access
// opcode targets.
type VarClass int

const (
	VarGlobal VarClass = iota
	VarLocal
	VarTmp
	VarParam
)

// The packed variable-access family sits above opVarBase, leaving the fixed
// opcodes' range untouched. The low bit remains OPByte.
const (
	opVarBase     Op = 0x80
	varActionMask Op = 0x06 // two bits: load/store/inc/dec
	varStackBit   Op = 0x08 // push to stack instead of accumulator
	varClassMask  Op = 0x30 // global/local/tmp/param
	varIndexedBit Op = 0x40
)

// VarAccess computes the single packed opcode for a non-property variable
// access, bit-fielding {action, accumulator-vs-stack, class, indexed} onto
// one mnemonic. toStack selects the "push to stack instead of accumulator"
// variant used when the loaded value is immediately consumed as a call or
// send argument.
func VarAccess(action Action, class VarClass, toStack, indexed bool) Op {
	op := opVarBase | (Op(action) << 1) | (Op(class) << 4)

	if toStack {
		op |= varStackBit
	}

	if indexed {
		op |= varIndexedBit
	}

	return op
}

// PropAccess returns the dedicated property-access opcode for the given
// action. Properties are always accumulator-relative and never indexed, so
// they get four fixed mnemonics instead of a slot in the packed family.
func PropAccess(action Action) Op {
	switch action {
	case Store:
		return opATop
	case Inc:
		return opIPToa
	case Dec:
		return opDPToa
	default:
		return opPToa
	}
}
