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
package anode

import (
	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/parsetree"
	"github.com/sci-compiler/scic/pkg/symtab"
)

var naryOpcode = map[string]opcode.Op{"+": opcode.Add, "*": opcode.Mul, "^": opcode.Xor, "|": opcode.Or, "&": opcode.And}
var binaryOpcode = map[string]opcode.Op{"-": opcode.Sub, "/": opcode.Div, "<<": opcode.Shl, ">>": opcode.Shr, "%": opcode.Mod}
var unaryOpcode = map[string]opcode.Op{"~": opcode.Bnot, "not": opcode.Not, "neg": opcode.Neg}
var compOpcode = map[string]opcode.Op{
	">": opcode.Gt, ">=": opcode.Ge, "<": opcode.Lt, "<=": opcode.Le,
	"==": opcode.Eq, "!=": opcode.Ne, "u>": opcode.Ugt, "u>=": opcode.Uge,
	"u<": opcode.Ult, "u<=": opcode.Ule,
}

func varClassFor(k symtab.Kind) opcode.VarClass {
	switch k {
	case symtab.KindLocal:
		return opcode.VarLocal
	case symtab.KindTmp:
		return opcode.VarTmp
	case symtab.KindParam:
		return opcode.VarParam
	default:
		return opcode.VarGlobal
	}
}

func fitsShort(v int32) bool { return v >= -128 && v <= 127 }

// loadImmediate emits a loadi of v, choosing the short (1-byte operand)
// form when the value fits a signed byte.
func (l *Lowering) loadImmediate(v int32) *Node {
	n := &Node{Kind: KindImm, Op: opcode.Loadi, Operand: v, OperandWords: 1, Short: fitsShort(v)}
	return l.emit(n)
}

// lowerExpr lowers pn, a value-producing expression, leaving its result in
// the accumulator.
func (l *Lowering) lowerExpr(pn *parsetree.PN) {
	switch pn.Kind {
	case parsetree.KindNum:
		l.loadImmediate(pn.Val)
	case parsetree.KindString:
		l.lowerStringLiteral(pn)
	case parsetree.KindSelf:
		// self in value position loads the receiving object's own id.
		l.emit(&Node{Kind: KindOpcode, Op: opcode.SelfID})
	case parsetree.KindSuper:
		l.loadImmediate(l.superClassNum())
	case parsetree.KindGlobal, parsetree.KindLocal, parsetree.KindTmp, parsetree.KindParam:
		l.lowerVarLoad(pn, false)
	case parsetree.KindIndex:
		l.lowerIndexLoad(pn)
	case parsetree.KindProperty:
		l.emit(&Node{Kind: KindPropAccess, Op: opcode.PropAccess(opcode.Load), Operand: pn.Val, OperandWords: 1})
	case parsetree.KindClass, parsetree.KindObject:
		l.lowerClassOrObjectRef(pn)
	case parsetree.KindProc, parsetree.KindExtern, parsetree.KindKernel:
		l.lowerCall(pn)
	case parsetree.KindSend:
		l.lowerSend(pn)
	case parsetree.KindNary:
		l.lowerNary(pn)
	case parsetree.KindBinary:
		l.lowerBinary(pn)
	case parsetree.KindUnary:
		l.lowerUnary(pn)
	case parsetree.KindComp:
		l.lowerCompChain(pn)
	case parsetree.KindAssign:
		l.lowerAssign(pn)
	case parsetree.KindIncDec:
		l.lowerIncDec(pn)
	case parsetree.KindReturn:
		l.lowerReturn(pn)
	case parsetree.KindBreak:
		l.lowerBreakContinue(pn, true)
	case parsetree.KindContinue:
		l.lowerBreakContinue(pn, false)
	case parsetree.KindIf:
		l.lowerIf(pn)
	case parsetree.KindCond:
		l.lowerCond(pn)
	case parsetree.KindSwitch, parsetree.KindSwitchTo:
		l.lowerSwitch(pn)
	case parsetree.KindWhile:
		l.lowerWhile(pn)
	case parsetree.KindRepeat:
		l.lowerRepeat(pn)
	case parsetree.KindFor:
		l.lowerFor(pn)
	case parsetree.KindElist:
		for _, c := range pn.Children {
			l.lowerExpr(c)
		}
	case parsetree.KindRest:
		l.lowerRest(pn)
	default:
		// KindMessage is only ever visited via lowerSend's own children walk,
		// never through the generic dispatcher.
	}
}

func (l *Lowering) lowerStringLiteral(pn *parsetree.PN) {
	rec := l.Prog.Text.Intern(pn.Text, l.Prog.Heap)
	n := &Node{Kind: KindEA, Op: opcode.Lofsa, OperandWords: 1, Target: rec, CrossStreamFixup: l.cur.Kind != Heap}
	l.emit(n)
}

func (l *Lowering) lowerVarLoad(pn *parsetree.PN, toStack bool) {
	class := varClassFor(pn.Sym.Kind)
	op := opcode.VarAccess(opcode.Load, class, toStack, false)
	n := &Node{Kind: KindVarAccess, Op: op, Operand: pn.Sym.Offset, OperandWords: 1, Short: pn.Sym.Offset < 256}
	l.emit(n)
}

func (l *Lowering) lowerIndexLoad(pn *parsetree.PN) {
	base, idx := pn.Children[0], pn.Children[1]

	l.lowerExpr(idx)
	l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})

	class := varClassFor(base.Sym.Kind)
	op := opcode.VarAccess(opcode.Load, class, false, true)
	l.emit(&Node{Kind: KindVarAccess, Op: op, Operand: base.Sym.Offset, OperandWords: 1, Short: base.Sym.Offset < 256})
}

// superClassNum returns the class number of the current class's superclass,
// or 0 when lowering outside any class body (a super send there is already a
// diagnosed parse error).
func (l *Lowering) superClassNum() int32 {
	if l.curClass == nil {
		return 0
	}

	return int32(l.curClass.Super)
}

// lowerRest emits the rest instruction: the callee-relative parameter index
// from which the caller's remaining arguments are forwarded. It always takes
// the byte form; a procedure never declares more than a byte's worth of
// parameters.
func (l *Lowering) lowerRest(pn *parsetree.PN) {
	l.emit(&Node{Kind: KindOpcode, Op: opcode.Rest.WithShort(true), Operand: pn.Val, OperandWords: 1, Short: true})
}

// lowerClassOrObjectRef loads a class or instance reference: a class loads
// through the class opcode by number, while an instance — which has no
// number of its own — loads the absolute heap address of its object
// template, resolved by backpatch and relocated by a fixup.
func (l *Lowering) lowerClassOrObjectRef(pn *parsetree.PN) {
	obj, _ := pn.Sym.Extra.(*classreg.Object)

	if obj != nil && obj.Num != classreg.ObjectNum {
		l.emit(&Node{Kind: KindImm, Op: opcode.ClassOp, Operand: int32(obj.Num), OperandWords: 1, Short: obj.Num < 256})
		return
	}

	n := &Node{Kind: KindEA, Op: opcode.Lofsa, OperandWords: 1, CrossStreamFixup: true}
	l.emit(n)
	Use(pn.Sym, n)
}

func (l *Lowering) lowerNary(pn *parsetree.PN) {
	if pn.Text == "and" || pn.Text == "or" {
		l.lowerShortCircuit(pn)
		return
	}

	op := naryOpcode[pn.Text]
	l.lowerLeftFold(op, pn.Children)
}

func (l *Lowering) lowerBinary(pn *parsetree.PN) {
	op := binaryOpcode[pn.Text]
	l.lowerLeftFold(op, pn.Children)
}

// lowerLeftFold compiles the first operand, then for each subsequent one
// pushes the prior accumulator, compiles the next, and emits the binop —
// left-folding an n-ary or binary operator's operand list through a single
// 2-operand opcode.
func (l *Lowering) lowerLeftFold(op opcode.Op, operands []*parsetree.PN) {
	l.lowerExpr(operands[0])

	for _, next := range operands[1:] {
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
		l.lowerExpr(next)
		l.emit(&Node{Kind: KindOpcode, Op: op})
	}
}

func (l *Lowering) lowerUnary(pn *parsetree.PN) {
	l.lowerExpr(pn.Children[0])
	l.emit(&Node{Kind: KindOpcode, Op: unaryOpcode[pn.Text]})
}

// lowerShortCircuit lowers `(and a b c)`/`(or a b c)`: compile the first
// operand; for each subsequent, branch to a shared end label on falsy (and)
// or truthy (or) before compiling the next. All branches share one
// backpatch chain through a synthetic end-label symbol.
func (l *Lowering) lowerShortCircuit(pn *parsetree.PN) {
	endSym := l.newLabelSym()

	l.lowerExpr(pn.Children[0])

	branchOp := opcode.Bnt
	if pn.Text == "or" {
		branchOp = opcode.Bt
	}

	for _, next := range pn.Children[1:] {
		l.branch(KindBranch, branchOp, endSym)
		l.lowerExpr(next)
	}

	MakeLabel(endSym, l.cur)
}

// lowerCompChain lowers `(< a b c)`, meaning a<b && b<c: compile the first
// two operands and compare; for each additional operand, an early-out
// branch plus pprev (push the previous comparison's right-hand value back
// for the next comparison) then compile the next operand and compare again.
func (l *Lowering) lowerCompChain(pn *parsetree.PN) {
	op := compOpcode[pn.Text]
	ops := pn.Children

	if len(ops) < 2 {
		l.lowerExpr(ops[0])
		return
	}

	endSym := l.newLabelSym()

	l.lowerExpr(ops[0])
	l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
	l.lowerExpr(ops[1])
	l.emit(&Node{Kind: KindOpcode, Op: op})

	for _, next := range ops[2:] {
		l.branch(KindBranch, opcode.Bnt, endSym)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.PPrev})
		l.lowerExpr(next)
		l.emit(&Node{Kind: KindOpcode, Op: op})
	}

	MakeLabel(endSym, l.cur)
}

func (l *Lowering) lowerAssign(pn *parsetree.PN) {
	target, value := pn.Children[0], pn.Children[1]

	if pn.Text != "=" {
		compoundOp := compoundOpcode(pn.Text)
		l.lowerLoadTarget(target)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
		l.lowerExpr(value)
		l.emit(&Node{Kind: KindOpcode, Op: compoundOp})
	} else {
		l.lowerExpr(value)
	}

	l.lowerStoreTarget(target)
}

func compoundOpcode(op string) opcode.Op {
	base := op[:len(op)-1] // strip trailing '='
	if o, ok := naryOpcode[base]; ok {
		return o
	}

	return binaryOpcode[base]
}

func (l *Lowering) lowerLoadTarget(target *parsetree.PN) {
	l.lowerExpr(target)
}

func (l *Lowering) lowerStoreTarget(target *parsetree.PN) {
	switch target.Kind {
	case parsetree.KindProperty:
		l.emit(&Node{Kind: KindPropAccess, Op: opcode.PropAccess(opcode.Store), Operand: target.Val, OperandWords: 1})
	case parsetree.KindIndex:
		base, idx := target.Children[0], target.Children[1]

		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push}) // save value
		l.lowerExpr(idx)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})

		class := varClassFor(base.Sym.Kind)
		op := opcode.VarAccess(opcode.Store, class, false, true)
		l.emit(&Node{Kind: KindVarAccess, Op: op, Operand: base.Sym.Offset, OperandWords: 1, Short: base.Sym.Offset < 256})
	default:
		class := varClassFor(target.Sym.Kind)
		op := opcode.VarAccess(opcode.Store, class, false, false)
		l.emit(&Node{Kind: KindVarAccess, Op: op, Operand: target.Sym.Offset, OperandWords: 1, Short: target.Sym.Offset < 256})
	}
}

// lowerIncDec emits the single packed inc/dec opcode for ++/--: the
// variable-access family folds load+store+increment into one instruction,
// rather than the three separate steps a compound assignment needs.
func (l *Lowering) lowerIncDec(pn *parsetree.PN) {
	target := pn.Children[0]
	action := opcode.Inc

	if pn.Text == "--" {
		action = opcode.Dec
	}

	if target.Kind == parsetree.KindProperty {
		l.emit(&Node{Kind: KindPropAccess, Op: opcode.PropAccess(action), Operand: target.Val, OperandWords: 1})
		return
	}

	class := varClassFor(target.Sym.Kind)
	op := opcode.VarAccess(action, class, false, false)
	l.emit(&Node{Kind: KindVarAccess, Op: op, Operand: target.Sym.Offset, OperandWords: 1, Short: target.Sym.Offset < 256})
}

func (l *Lowering) lowerReturn(pn *parsetree.PN) {
	if len(pn.Children) > 0 {
		l.lowerExpr(pn.Children[0])
	}

	l.emit(&Node{Kind: KindOpcode, Op: opcode.Ret})
}

// pushArgs compiles each argument expression in order, pushing its value,
// and returns the pushed byte count. A rest argument emits the rest
// instruction instead of a push: the machine forwards the caller's
// remaining parameters itself, so nothing lands on the stack here and
// nothing is added to the count.
func (l *Lowering) pushArgs(args []*parsetree.PN) int32 {
	bytes := int32(0)

	for _, arg := range args {
		if arg.Kind == parsetree.KindRest {
			l.lowerRest(arg)
			continue
		}

		l.lowerExpr(arg)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
		bytes += 2
	}

	return bytes
}

// lowerCall lowers a procedure or external-module call: a pushed
// argument-count placeholder, the arguments themselves, then a single
// backpatchable KindCall node whose trailing operand is the pushed byte
// count — the placeholder's final value, patched once the arguments have
// all been compiled. A local call backpatches to the callee's entry node
// through the ordinary Use/Define chain, exactly like a branch; a
// cross-module calle instead carries the callee's fixed script/entry pair,
// known at parse time from the extern declaration and never backpatched.
func (l *Lowering) lowerCall(pn *parsetree.PN) {
	placeholder := l.emit(&Node{Kind: KindImm, Op: opcode.Pushi, OperandWords: 1, Short: true})
	argBytes := l.pushArgs(pn.Children)
	placeholder.Operand = argBytes / 2

	if pn.Sym != nil && pn.Sym.Kind == symtab.KindExtern {
		pair, _ := pn.Sym.Extra.([2]int32)
		l.emit(&Node{
			Kind: KindCall, Op: opcode.Calle,
			Operand: (pair[0] << 16) | (pair[1] & 0xffff), OperandWords: 2,
			ArgSize: argBytes,
		})

		return
	}

	n := &Node{Kind: KindCall, Op: opcode.Call, ArgSize: argBytes}
	l.emit(n)

	if pn.Sym != nil {
		Use(pn.Sym, n)
	}
}

// lowerSend lowers a message send: the receiver is compiled once and
// pushed, then each message group pushes its selector number, an
// argument-count placeholder, and its arguments in turn, and a single
// KindSend node closes the whole send carrying the total pushed byte count —
// the machine walks that many bytes off the stack to find each message
// group. A self receiver skips the receiver load and closes with the self
// opcode; a super receiver closes with the super opcode carrying the
// superclass number.
func (l *Lowering) lowerSend(pn *parsetree.PN) {
	receiver := pn.Children[0]
	messages := pn.Children[1:]

	switch receiver.Kind {
	case parsetree.KindSelf, parsetree.KindSuper:
		// The machine supplies the receiver itself.
	default:
		l.lowerExpr(receiver)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
	}

	argBytes := int32(0)

	for _, msg := range messages {
		selNum := int32(0)
		if selSym := l.Env.Selectors.Lookup(msg.Text); selSym != nil {
			selNum = selSym.Num
		}

		l.loadImmediate(selNum)
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})
		argBytes += 2

		placeholder := l.emit(&Node{Kind: KindImm, Op: opcode.Pushi, OperandWords: 1, Short: true})
		argBytes += 2

		pushed := l.pushArgs(msg.Children)
		placeholder.Operand = pushed / 2
		argBytes += pushed
	}

	switch receiver.Kind {
	case parsetree.KindSelf:
		l.emit(&Node{Kind: KindSend, Op: opcode.Self, ArgSize: argBytes})
	case parsetree.KindSuper:
		num := l.superClassNum()
		l.emit(&Node{Kind: KindSend, Op: opcode.Super, Operand: num, OperandWords: 1, Short: num < 256, ArgSize: argBytes})
	default:
		l.emit(&Node{Kind: KindSend, Op: opcode.Send, ArgSize: argBytes})
	}
}
