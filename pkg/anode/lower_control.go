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
	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/parsetree"
)

// lowerBreakContinue walks the active-loop stack level-1 entries, branching
// unconditionally (or conditionally, for breakif/contif, whose optional
// test child was already parsed) to that loop's end label (break) or
// continue label (continue — a dedicated continue-label for `for` so its
// step still runs, otherwise the loop's own start label). The target label
// symbol may not be defined yet (an end label is always placed after the
// whole loop body) — Use/backpatch.go handles that exactly like any other
// forward reference.
func (l *Lowering) lowerBreakContinue(pn *parsetree.PN, isBreak bool) {
	level := uint(pn.Val)
	if level == 0 {
		level = 1
	}

	if l.loops.IsEmpty() {
		return
	}

	offset := level - 1
	if offset >= l.loops.Len() {
		offset = l.loops.Len() - 1
	}

	desc := l.loops.Peek(offset)

	target := desc.EndLabel
	if !isBreak {
		target = desc.ContinueLabel
	}

	op := opcode.Jmp
	if len(pn.Children) > 0 {
		l.lowerExpr(pn.Children[0])
		op = opcode.Bt
	}

	l.branch(KindBranch, op, target)
}

// lowerIf lowers `(if cond then [else])`.
func (l *Lowering) lowerIf(pn *parsetree.PN) {
	cond, then := pn.Children[0], pn.Children[1]

	elseSym := l.newLabelSym()

	l.lowerExpr(cond)
	l.branch(KindBranch, opcode.Bnt, elseSym)
	l.lowerExpr(then)

	if len(pn.Children) > 2 {
		doneSym := l.newLabelSym()
		l.branch(KindBranch, opcode.Jmp, doneSym)
		MakeLabel(elseSym, l.cur)
		l.lowerExpr(pn.Children[2])
		MakeLabel(doneSym, l.cur)
	} else {
		MakeLabel(elseSym, l.cur)
	}
}

// lowerCond lowers `(cond (test body*)* (else body*)?)`: per clause, compile
// the test, branch-if-false to the next clause's label, compile the body,
// jump to the done label, place the next-clause label. A trailing clause
// with a test but no body falls through with no branch emitted at all.
func (l *Lowering) lowerCond(pn *parsetree.PN) {
	doneSym := l.newLabelSym()
	clauses := pn.Children

	for i, clause := range clauses {
		isLast := i == len(clauses)-1

		if clause.Text == "else" {
			if len(clause.Children) > 0 {
				l.lowerExpr(clause.Children[0])
			}

			continue
		}

		test := clause.Children[0]
		hasBody := len(clause.Children) > 1

		if isLast && !hasBody {
			l.lowerExpr(test)
			continue
		}

		nextSym := l.newLabelSym()

		l.lowerExpr(test)
		l.branch(KindBranch, opcode.Bnt, nextSym)

		if hasBody {
			l.lowerExpr(clause.Children[1])
		}

		if !isLast {
			l.branch(KindBranch, opcode.Jmp, doneSym)
		}

		MakeLabel(nextSym, l.cur)
	}

	MakeLabel(doneSym, l.cur)
}

// lowerSwitch lowers `(switch value clause*)`: the value stays on the stack
// throughout; each clause duplicates it (`dup`), compiles its test value,
// compares (`eq`), branches, compiles the body, and the whole construct
// tosses the value at the end. The dup/toss discipline is part of the
// machine's calling convention and is kept even when a case is provably
// taken.
func (l *Lowering) lowerSwitch(pn *parsetree.PN) {
	value, clauses := pn.Children[0], pn.Children[1:]

	l.lowerExpr(value)
	l.emit(&Node{Kind: KindOpcode, Op: opcode.Push})

	doneSym := l.newLabelSym()

	for i, clause := range clauses {
		isLast := i == len(clauses)-1

		if clause.Text == "else" {
			l.lowerExpr(clause.Children[0])
			continue
		}

		nextSym := l.newLabelSym()

		l.emit(&Node{Kind: KindOpcode, Op: opcode.Dup})
		l.lowerExpr(clause.Children[0])
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Eq})
		l.branch(KindBranch, opcode.Bnt, nextSym)
		l.lowerExpr(clause.Children[1])

		if !isLast {
			l.branch(KindBranch, opcode.Jmp, doneSym)
		}

		MakeLabel(nextSym, l.cur)
	}

	MakeLabel(doneSym, l.cur)
	l.emit(&Node{Kind: KindOpcode, Op: opcode.Toss})
}

func (l *Lowering) pushLoop(desc LoopDescriptor) { l.loops.Push(desc) }
func (l *Lowering) popLoop()                     { l.loops.Pop() }

// lowerWhile lowers `(while cond body*)`.
func (l *Lowering) lowerWhile(pn *parsetree.PN) {
	startSym := l.newLabelSym()
	endSym := l.newLabelSym()

	MakeLabel(startSym, l.cur)

	l.lowerExpr(pn.Children[0])
	l.branch(KindBranch, opcode.Bnt, endSym)

	l.pushLoop(LoopDescriptor{StartLabel: startSym, ContinueLabel: startSym, EndLabel: endSym})

	for _, c := range pn.Children[1:] {
		l.lowerExpr(c)
	}

	l.popLoop()

	l.branch(KindBranch, opcode.Jmp, startSym)
	MakeLabel(endSym, l.cur)
}

// lowerRepeat lowers `(repeat body*)`, an unconditional loop exited only via
// break.
func (l *Lowering) lowerRepeat(pn *parsetree.PN) {
	startSym := l.newLabelSym()
	endSym := l.newLabelSym()

	MakeLabel(startSym, l.cur)

	l.pushLoop(LoopDescriptor{StartLabel: startSym, ContinueLabel: startSym, EndLabel: endSym})

	for _, c := range pn.Children {
		l.lowerExpr(c)
	}

	l.popLoop()

	l.branch(KindBranch, opcode.Jmp, startSym)
	MakeLabel(endSym, l.cur)
}

// lowerFor lowers `(for (init) cond (step) body*)`: compile init; start
// label; compile cond; bnt end; compile body; continue label; compile step;
// jmp start; end label. Continue inside a for's body targets the dedicated
// continue label so the step still runs.
func (l *Lowering) lowerFor(pn *parsetree.PN) {
	initN, cond, stepN, bodyN := pn.Children[0], pn.Children[1], pn.Children[2], pn.Children[3]

	for _, c := range initN.Children {
		l.lowerExpr(c)
	}

	startSym := l.newLabelSym()
	contSym := l.newLabelSym()
	endSym := l.newLabelSym()

	MakeLabel(startSym, l.cur)

	l.lowerExpr(cond)
	l.branch(KindBranch, opcode.Bnt, endSym)

	l.pushLoop(LoopDescriptor{StartLabel: startSym, ContinueLabel: contSym, EndLabel: endSym})

	for _, c := range bodyN.Children {
		l.lowerExpr(c)
	}

	l.popLoop()

	MakeLabel(contSym, l.cur)

	for _, c := range stepN.Children {
		l.lowerExpr(c)
	}

	l.branch(KindBranch, opcode.Jmp, startSym)
	MakeLabel(endSym, l.cur)
}
