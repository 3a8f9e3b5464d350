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
package parsetree

import (
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

var naryOps = map[string]bool{"+": true, "*": true, "^": true, "|": true, "&": true, "and": true, "or": true}
var binaryOps = map[string]bool{"-": true, "/": true, "<<": true, ">>": true, "%": true}
var unaryOps = map[string]bool{"~": true, "not": true, "neg": true}
var compOps = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
	"u>": true, "u>=": true, "u<": true, "u<=": true,
}
var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true,
	"<<=": true, ">>=": true, "&=": true, "|=": true, "^=": true,
}

// parseExpr parses one value-position expression form. Defined names are
// substituted (DefineTable) before being re-examined, so a `define`d symbol
// used in expression position behaves exactly as if its replacement text had
// appeared literally.
func (p *Parser) parseExpr(e sexp.SExp) *PN {
	line := e.Line()

	switch v := e.(type) {
	case *sexp.Number:
		n := NewPN(KindNum, line)
		n.Val = v.Value

		return n
	case *sexp.Char:
		n := NewPN(KindNum, line)
		n.Val = int32(v.Value)

		return n
	case *sexp.Str:
		n := NewPN(KindString, line)
		n.Text = v.Value

		return n
	case *sexp.Symbol:
		return p.parseAtomSymbol(v)
	case *sexp.List:
		if v.Bracket {
			return p.parseIndexedRef(v)
		}

		return p.parseFormList(v)
	}

	p.recover(line, diag.Error, "unrecognized expression")

	return nil
}

func (p *Parser) parseAtomSymbol(sym *sexp.Symbol) *PN {
	if body, ok := p.Defines.Lookup(sym.Value); ok && len(body) == 1 {
		return p.parseExpr(body[0])
	}

	switch sym.Value {
	case "self":
		return NewPN(KindSelf, sym.Line())
	case "super":
		return NewPN(KindSuper, sym.Line())
	}

	if cls := p.Env.Classes.Lookup(sym.Value); cls != nil {
		n := NewPN(kindForSymbol(cls.Kind), sym.Line())
		n.Sym = cls
		n.Text = sym.Value

		return n
	}

	// Inside a method body, a bare identifier naming one of the current
	// class's properties reads as that property, through its byte offset,
	// rather than as a variable.
	if p.CurClass != nil && p.Env.Lookup(sym.Value) == nil {
		if selSym := p.Env.Selectors.Lookup(sym.Value); selSym != nil {
			if sel := p.CurClass.FindSelector(uint16(selSym.Num)); sel != nil && sel.Tag.IsProperty() {
				n := NewPN(KindProperty, sym.Line())
				n.Text = sym.Value
				n.Val = sel.Offset

				return n
			}
		}
	}

	s := p.Env.Lookup(sym.Value)
	if s == nil {
		s = p.Env.InstallModule(sym.Value, symtab.KindLocal, sym.Line())
	}

	// An enum member or numeric define reads as the literal it stands for,
	// so constant folding sees through it.
	if s.Kind == symtab.KindDefine {
		n := NewPN(KindNum, sym.Line())
		n.Val = s.Num

		return n
	}

	n := NewPN(kindForSymbol(s.Kind), sym.Line())
	n.Sym = s
	n.Text = sym.Value

	return n
}

func kindForSymbol(k symtab.Kind) Kind {
	switch k {
	case symtab.KindGlobal:
		return KindGlobal
	case symtab.KindParam:
		return KindParam
	case symtab.KindTmp:
		return KindTmp
	case symtab.KindProc:
		return KindProc
	case symtab.KindExtern:
		return KindExtern
	case symtab.KindClass:
		return KindClass
	case symtab.KindObject:
		return KindObject
	case symtab.KindProperty:
		return KindProperty
	default:
		return KindLocal
	}
}

// parseIndexedRef parses `[var index]`.
func (p *Parser) parseIndexedRef(list *sexp.List) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Error, "[var index] requires a variable and an index")
	}

	base := p.parseExpr(list.Get(0))
	idx := p.parseExpr(list.Get(1))

	n := NewPN(KindIndex, list.Line())
	n.Add(base, idx)

	return n
}

func (p *Parser) parseFormList(list *sexp.List) *PN {
	if list.Len() == 0 {
		n := NewPN(KindElist, list.Line())
		return n
	}

	if head, ok := list.HeadSymbol(); ok {
		switch {
		case naryOps[head]:
			return p.parseOpForm(list, head, KindNary)
		case binaryOps[head]:
			return p.parseOpForm(list, head, KindBinary)
		case unaryOps[head]:
			return p.parseOpForm(list, head, KindUnary)
		case compOps[head]:
			return p.parseCompChain(list, head)
		case assignOps[head]:
			return p.parseAssign(list, head)
		case head == "++" || head == "--":
			return p.parseIncDec(list, head)
		case head == "return":
			return p.parseReturn(list)
		case head == "break", head == "breakif":
			return p.parseBreakContinue(list, head, KindBreak)
		case head == "continue", head == "contif":
			return p.parseBreakContinue(list, head, KindContinue)
		case head == "if":
			return p.parseIf(list)
		case head == "cond":
			return p.parseCond(list)
		case head == "switch", head == "switchto":
			return p.parseSwitch(list, head == "switchto")
		case head == "while":
			return p.parseWhile(list)
		case head == "repeat":
			return p.parseRepeat(list)
		case head == "for":
			return p.parseFor(list)
		case head == "rest":
			return p.parseRest(list)
		}
	}

	return p.parseCallOrSend(list)
}

func (p *Parser) parseOpForm(list *sexp.List, op string, kind Kind) *PN {
	var operands []*PN
	for _, e := range list.Rest(1) {
		operands = append(operands, p.parseExpr(e))
	}

	if folded := foldNary(op, list.Line(), operands, func() {
		p.recover(list.Line(), diag.Error, "division by zero in constant expression")
	}); folded != nil {
		return folded
	}

	n := NewPN(kind, list.Line())
	n.Text = op
	n.Add(operands...)

	return n
}

// parseCompChain parses the comparison-chain form `(< a b c)`, meaning
// a<b && b<c: every operand is parsed up front; lowering (pkg/anode) is
// responsible for the early-out / pprev expansion.
func (p *Parser) parseCompChain(list *sexp.List, op string) *PN {
	n := NewPN(KindComp, list.Line())
	n.Text = op

	for _, e := range list.Rest(1) {
		n.Add(p.parseExpr(e))
	}

	return n
}

func (p *Parser) parseAssign(list *sexp.List, op string) *PN {
	if list.Len() < 3 {
		p.recover(list.Line(), diag.Error, "%s requires a target and a value", op)
	}

	target := p.parseExpr(list.Get(1))
	value := p.parseExpr(list.Get(2))

	n := NewPN(KindAssign, list.Line())
	n.Text = op
	n.Add(target, value)

	return n
}

func (p *Parser) parseIncDec(list *sexp.List, op string) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Error, "%s requires a target", op)
	}

	n := NewPN(KindIncDec, list.Line())
	n.Text = op
	n.Add(p.parseExpr(list.Get(1)))

	return n
}

func (p *Parser) parseReturn(list *sexp.List) *PN {
	n := NewPN(KindReturn, list.Line())
	if list.Len() > 1 {
		n.Add(p.parseExpr(list.Get(1)))
	}

	return n
}

// parseBreakContinue parses break[if]/continue[if] with an optional level,
// saturating at the current loop-nesting depth and warning (never erroring)
// when the requested level exceeds it.
func (p *Parser) parseBreakContinue(list *sexp.List, head string, kind Kind) *PN {
	n := NewPN(kind, list.Line())
	n.Text = head

	rest := list.Rest(1)
	level := int32(1)
	argIdx := 0

	if len(rest) > 0 {
		if num := rest[0].AsNumber(); num != nil {
			level = num.Value
			argIdx = 1
		}
	}

	if int(level) > p.loopDepth && p.loopDepth > 0 {
		p.Diag.Warnf(p.File, list.Line(), "%s %d exceeds loop nesting depth %d, saturating", head, level, p.loopDepth)
		level = int32(p.loopDepth)
	}

	n.Val = level

	if head == "breakif" || head == "contif" {
		if argIdx < len(rest) {
			n.Add(p.parseExpr(rest[argIdx]))
		}
	}

	return n
}

func (p *Parser) parseRest(list *sexp.List) *PN {
	n := NewPN(KindRest, list.Line())
	if list.Len() > 1 {
		if num := list.Get(1).AsNumber(); num != nil {
			n.Val = num.Value
		}
	}

	return n
}

// parseCallOrSend disambiguates a plain `(head ...)` form: a head naming a
// known procedure or extern is a call; a head naming self, super, a class,
// or an object is a message send to that receiver; an unrecognized bare
// identifier head is treated as a not-yet-declared procedure, auto-installed
// at module scope and resolved by the backpatcher once its definition is
// lowered. A non-symbol head (a computed receiver expression) is always a
// send.
func (p *Parser) parseCallOrSend(list *sexp.List) *PN {
	headSym := list.Get(0).AsSymbol()
	if headSym == nil {
		return p.parseSend(list)
	}

	if body, ok := p.Defines.Lookup(headSym.Value); ok && len(body) > 1 {
		// A multi-token define used in head position re-lexes as if its
		// replacement text had appeared literally at the call site.
		expanded := append(append([]sexp.SExp{}, body...), list.Rest(1)...)
		return p.parseFormList(sexp.NewList(expanded, list.Line()))
	}

	if headSym.Value == "self" || headSym.Value == "super" {
		return p.parseSend(list)
	}

	if s := p.Env.Lookup(headSym.Value); s != nil {
		switch s.Kind {
		case symtab.KindProc:
			return p.parseCall(list, s, KindProc)
		case symtab.KindExtern:
			return p.parseCall(list, s, KindExtern)
		case symtab.KindObject, symtab.KindClass:
			return p.parseSend(list)
		case symtab.KindGlobal, symtab.KindLocal, symtab.KindTmp, symtab.KindParam:
			// A declared variable in head position holds the receiver of a
			// send; a bare parenthesized variable is just that variable.
			if list.Len() > 1 {
				return p.parseSend(list)
			}

			return p.parseExpr(list.Get(0))
		}
	}

	if p.Env.Classes.Lookup(headSym.Value) != nil {
		return p.parseSend(list)
	}

	s := p.Env.InstallModule(headSym.Value, symtab.KindProc, list.Line())

	return p.parseCall(list, s, KindProc)
}

func (p *Parser) parseCall(list *sexp.List, sym *symtab.Symbol, kind Kind) *PN {
	n := NewPN(kind, list.Line())
	n.Sym = sym
	n.Text = sym.Name

	for _, a := range list.Rest(1) {
		n.Add(p.parseExpr(a))
	}

	return n
}

// parseSend parses `(receiver sel arg* [, sel arg*]*)`: the elements after
// the receiver are flat, with a `,` token (the tokenizer emits it as a
// one-character symbol) closing each message group and starting the next.
// Within a group the first element names the selector and the rest are its
// arguments.
func (p *Parser) parseSend(list *sexp.List) *PN {
	receiver := p.parseExpr(list.Get(0))

	n := NewPN(KindSend, list.Line())
	n.Add(receiver)

	rest := list.Rest(1)
	for i := 0; i < len(rest); {
		selSym := rest[i].AsSymbol()
		if selSym != nil && selSym.Value == "," {
			i++
			continue
		}

		msg := NewPN(KindMessage, rest[i].Line())
		msg.Text = p.selectorName(selSym, rest[i].Line())
		i++

		for i < len(rest) {
			if s := rest[i].AsSymbol(); s != nil && s.Value == "," {
				i++
				break
			}

			msg.Add(p.parseExpr(rest[i]))
			i++
		}

		n.Add(msg)
	}

	return n
}

// selectorName resolves (auto-allocating if necessary, optionally warning
// per -s) the selector symbol used in a send's message group.
func (p *Parser) selectorName(sym *sexp.Symbol, line int) string {
	if sym == nil {
		p.recover(line, diag.Error, "expected a selector name")
		return ""
	}

	s := p.Env.Selectors.Lookup(sym.Value)
	if s == nil {
		num := p.Sel.Allocate()
		s = p.Env.InstallSelector(sym.Value, line)
		s.Num = int32(num)

		if p.WarnForwardSelectors {
			p.Diag.Warnf(p.File, line, "selector %q used before declaration, auto-allocated #%d", sym.Value, num)
		}
	}

	return sym.Value
}
