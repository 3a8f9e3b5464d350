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

// This file lowers pkg/parsetree.PN trees into the node graph. Rather than a
// dynamic-scoped "current emission list" global, an explicit *Lowering
// context is threaded through every lowering call: emitting an object body
// temporarily points Lowering.cur at another stream, then restores it on
// return, the same shape as a scoped-guard pattern.
package anode

import (
	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/parsetree"
	"github.com/sci-compiler/scic/pkg/symtab"
	"github.com/sci-compiler/scic/pkg/util/collection/stack"
)

// LoopDescriptor is one entry of the active-loop stack break N/continue N
// walk: the labels a break/continue at this nesting level jumps to. Continue
// targets a dedicated ContinueLabel for `for` (so its step still runs) and
// the loop's own StartLabel otherwise.
type LoopDescriptor struct {
	StartLabel    *symtab.Symbol
	ContinueLabel *symtab.Symbol
	EndLabel      *symtab.Symbol
}

// Lowering is the explicit context threaded through every lowering
// function: which stream is currently being appended to, the program's two
// streams and text pool, the symbol environment and class registry, and the
// active-loop stack.
type Lowering struct {
	Prog *Program
	Env  *symtab.Environment
	Diag *diag.Bag
	File string

	cur   *Stream
	loops *stack.Stack[LoopDescriptor]

	// curClass is the class or instance whose methods are being lowered;
	// a super send reads its superclass number from here.
	curClass *classreg.Object

	// DebugLines mirrors the -d CLI flag: emit a KindLineNum record before
	// each body statement when true.
	DebugLines bool
}

// NewLowering constructs a lowering context writing into prog's hunk stream
// by default (bytecode is the common case; object-body lowering switches cur
// to the heap stream's object sub-table for its own duration).
func NewLowering(prog *Program, env *symtab.Environment, bag *diag.Bag, file string) *Lowering {
	return &Lowering{
		Prog:  prog,
		Env:   env,
		Diag:  bag,
		File:  file,
		cur:   prog.Hunk,
		loops: stack.NewStack[LoopDescriptor](),
	}
}

// withStream runs fn with cur temporarily switched to s, restoring the
// previous stream afterward — the scoped-guard replacement for the
// original's dynamically-scoped "current list" pointer.
func (l *Lowering) withStream(s *Stream, fn func()) {
	prev := l.cur
	l.cur = s
	fn()
	l.cur = prev
}

func (l *Lowering) emit(n *Node) *Node {
	return l.cur.Append(n)
}

func (l *Lowering) newLabelSym() *symtab.Symbol {
	scope := l.Env.CurrentScope()
	if scope == nil {
		scope = l.Env.Module
	}

	return NewLabelSymbol(scope, "L", 0)
}

// branch emits a backpatchable branch/call node of the given opcode whose
// target is sym (not yet necessarily defined), registering it on the
// pending chain via Use. Short starts false (long form); pkg/optimize flips
// it once a target is known to be in signed-8 range.
func (l *Lowering) branch(kind Kind, op opcode.Op, sym *symtab.Symbol) *Node {
	n := &Node{Kind: kind, Op: op}
	l.emit(n)
	Use(sym, n)

	return n
}

// LowerUnit lowers every top-level PN of one translation unit in order. The
// hunk's dispatch table is built first, before any procedure or class body,
// so it always lands at the very start of the hunk stream regardless of
// where in the source the `public` form that names its entries appeared.
func (l *Lowering) LowerUnit(units []*parsetree.PN) {
	l.buildDispatchTable(units)

	for _, u := range units {
		l.lowerTop(u)
	}
}

func (l *Lowering) lowerTop(pn *parsetree.PN) {
	switch pn.Kind {
	case parsetree.KindProcDef:
		l.lowerProc(pn)
	case parsetree.KindClassDef, parsetree.KindInstanceDef:
		l.lowerObject(pn)
	case parsetree.KindGlobalDef, parsetree.KindLocalDef:
		l.lowerVarDefs(pn)
	default:
		// script#, include, public, extern, globaldecl, define, enum carry no
		// code of their own; their effect was already applied to the symbol
		// environment / class registry during parsing.
	}
}

// lowerVarDefs records every declared slot's constant-folded initial value
// into the program's variables table; a declaration with no initializer, or
// one whose initializer didn't fold to a literal, leaves its slot at the
// default zero. A string initializer interns its text and marks the slot so
// the emitter writes the string's absolute heap address (and a fixup)
// instead of a plain word.
func (l *Lowering) lowerVarDefs(pn *parsetree.PN) {
	for _, entry := range pn.Children {
		if len(entry.Children) == 0 {
			l.Prog.SetVariable(entry.Val, 0)
			continue
		}

		switch init := entry.Children[0]; init.Kind {
		case parsetree.KindNum:
			l.Prog.SetVariable(entry.Val, init.Val)
		case parsetree.KindString:
			rec := l.Prog.Text.Intern(init.Text, l.Prog.Heap)
			l.Prog.SetVariableText(entry.Val, rec)
		}
	}
}

// buildDispatchTable emits the hunk-stream dispatch count word followed by
// the dispatch table itself, indexed by export number: the `public` form
// assigns each exported procedure an explicit slot, the table is sized to
// the highest declared slot plus one, and a slot no declaration claims is
// emitted as a zero word — a cross-module calle addresses the table by
// index, so compacting out gaps would misroute every export past one. Each
// claimed entry resolves through the ordinary Use/Define backpatch chain
// exactly like a branch, so it does not matter whether the named procedure
// is lowered before or after this point.
func (l *Lowering) buildDispatchTable(units []*parsetree.PN) {
	byIndex := map[int32]*parsetree.PN{}
	maxIndex := int32(-1)

	for _, u := range units {
		if u.Kind != parsetree.KindPublic {
			continue
		}

		for _, e := range u.Children {
			byIndex[e.Val] = e

			if e.Val > maxIndex {
				maxIndex = e.Val
			}
		}
	}

	l.emit(&Node{Kind: KindWord, Operand: maxIndex + 1, OperandWords: 1})

	for i := int32(0); i <= maxIndex; i++ {
		e, claimed := byIndex[i]
		if !claimed {
			l.emit(&Node{Kind: KindWord, OperandWords: 1})
			continue
		}

		n := &Node{Kind: KindDispatchEntry}
		l.emit(n)

		sym := l.Env.Module.Lookup(e.Text)
		if sym == nil {
			sym = l.Env.InstallModule(e.Text, symtab.KindProc, e.Line)
		}

		Use(sym, n)
	}
}
