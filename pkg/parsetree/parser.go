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
	"fmt"

	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// Parser builds PN trees for one translation unit, consuming the sexp.SExp
// forms pkg/sexp has already tokenized, one top-level form at a time.
type Parser struct {
	File   string
	Env    *symtab.Environment
	Class  *classreg.Registry
	Sel    *classreg.SelectorTable
	Diag   *diag.Bag
	Script int // the current translation unit's script# (-1 until set)

	Defines *DefineTable

	// CurClass is the class or instance whose body is being parsed, nil at
	// top level. Property reads inside a method body resolve against it.
	CurClass *classreg.Object

	// loopDepth is the running loop-nesting counter break/breakif/continue/
	// contif levels are validated against.
	loopDepth int
	// WarnForwardSelectors mirrors the -s CLI flag: warn when a selector
	// used in a send is not yet known at the point of use.
	WarnForwardSelectors bool
	// NoAutoName mirrors the -n CLI flag: suppress the automatic "name"
	// property instances otherwise receive.
	NoAutoName bool
	// MaxVars mirrors the -g N CLI flag (default 750): global/local variable
	// slots must stay below it; parseGlobal and parseVarDecl report an Error
	// for a slot at or past it.
	MaxVars int32
}

// NewParser constructs a parser for one translation unit sharing the given
// program-wide environment and class/selector registry.
func NewParser(file string, env *symtab.Environment, class *classreg.Registry, sel *classreg.SelectorTable, bag *diag.Bag) *Parser {
	return &Parser{
		File:    file,
		Env:     env,
		Class:   class,
		Sel:     sel,
		Diag:    bag,
		Script:  -1,
		MaxVars: 750,
		Defines: NewDefineTable(),
	}
}

// ParseUnit parses every top-level form in forms, recovering independently
// after each: a *diag.RecoveryError raised while parsing one top-level form
// is caught here and parsing simply continues with the next.
func (p *Parser) ParseUnit(forms []sexp.SExp) (units []*PN) {
	for _, f := range forms {
		pn := p.parseTopFormRecovering(f)
		if pn != nil {
			units = append(units, pn)
		}
	}

	return units
}

func (p *Parser) parseTopFormRecovering(f sexp.SExp) (pn *PN) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*diag.RecoveryError); ok {
				pn = nil
				return
			}

			panic(r)
		}
	}()

	return p.parseTopForm(f)
}

// recover reports a diagnostic at the given severity and unwinds to
// parseTopFormRecovering via panic/recover, so the recursive-descent grammar
// doesn't need an error return threaded through every call.
func (p *Parser) recover(line int, severity diag.Severity, format string, args ...any) {
	d := diag.Diagnostic{Severity: severity, File: p.File, Line: line, Message: fmt.Sprintf(format, args...)}
	p.Diag.Report(d)
	panic(diag.NewRecovery(d))
}

func (p *Parser) parseTopForm(f sexp.SExp) *PN {
	list := f.AsList()
	if list == nil {
		p.recover(f.Line(), diag.Severe, "expected a top-level form, found %s", f.String())
	}

	head, ok := list.HeadSymbol()
	if !ok {
		p.recover(list.Line(), diag.Severe, "expected a keyword at the start of a top-level form")
	}

	switch head {
	case "script#":
		return p.parseScriptNum(list)
	case "include":
		return p.parseInclude(list)
	case "public":
		return p.parsePublic(list)
	case "extern":
		return p.parseExtern(list)
	case "globaldecl":
		return p.parseGlobalDecl(list)
	case "global":
		return p.parseGlobal(list)
	case "local":
		return p.parseLocal(list)
	case "define":
		return p.parseDefine(list)
	case "enum":
		return p.parseEnum(list)
	case "procedure":
		return p.parseProcedure(list)
	case "class":
		return p.parseClassOrInstance(list, true)
	case "instance":
		return p.parseClassOrInstance(list, false)
	case "classdef":
		return p.parseClassDef(list)
	default:
		p.recover(list.Line(), diag.Error, "unrecognized top-level form %q", head)
		return nil
	}
}

func (p *Parser) parseScriptNum(list *sexp.List) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "script# requires a number")
	}

	num := list.Get(1).AsNumber()
	if num == nil {
		p.recover(list.Line(), diag.Severe, "script# requires a number")
	}

	p.Script = int(num.Value)
	pn := NewPN(KindScriptNum, list.Line())
	pn.Val = num.Value

	return pn
}

func (p *Parser) parseInclude(list *sexp.List) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "include requires a filename")
	}

	str := list.Get(1).AsStr()
	pn := NewPN(KindInclude, list.Line())

	if str != nil {
		pn.Text = str.Value
	} else if sym := list.Get(1).AsSymbol(); sym != nil {
		pn.Text = sym.Value
	}

	return pn
}

func (p *Parser) parsePublic(list *sexp.List) *PN {
	pn := NewPN(KindPublic, list.Line())

	rest := list.Rest(1)
	for i := 0; i+1 < len(rest); i += 2 {
		sym := rest[i].AsSymbol()
		num := rest[i+1].AsNumber()

		if sym == nil || num == nil {
			p.recover(list.Line(), diag.Error, "public entries must be (name number) pairs")
		}

		entry := NewPN(KindProcDef, rest[i].Line())
		entry.Text = sym.Value
		entry.Val = num.Value
		pn.Add(entry)
	}

	return pn
}

func (p *Parser) parseExtern(list *sexp.List) *PN {
	pn := NewPN(KindExtDecl, list.Line())

	rest := list.Rest(1)
	for i := 0; i+2 < len(rest); i += 3 {
		sym := rest[i].AsSymbol()
		script := rest[i+1].AsNumber()
		entry := rest[i+2].AsNumber()

		if sym == nil || script == nil || entry == nil {
			p.recover(list.Line(), diag.Error, "extern entries must be (name script# entry#) triples")
		}

		e := NewPN(KindExtern, rest[i].Line())
		e.Text = sym.Value
		e.Children = []*PN{
			{Kind: KindNum, Val: script.Value},
			{Kind: KindNum, Val: entry.Value},
		}
		pn.Add(e)

		s := p.Env.InstallModule(sym.Value, symtab.KindExtern, rest[i].Line())
		s.Extra = [2]int32{script.Value, entry.Value}
	}

	return pn
}

func (p *Parser) parseGlobalDecl(list *sexp.List) *PN {
	return p.parseNumberedDeclList(list, KindGlobalDecl, symtab.KindGlobal)
}

func (p *Parser) parseNumberedDeclList(list *sexp.List, kind Kind, symKind symtab.Kind) *PN {
	pn := NewPN(kind, list.Line())

	rest := list.Rest(1)
	for i := 0; i+1 < len(rest); i += 2 {
		sym := rest[i].AsSymbol()
		num := rest[i+1].AsNumber()

		if sym == nil || num == nil {
			p.recover(list.Line(), diag.Error, "expected (name number) pairs")
		}

		s := p.Env.Globals.Lookup(sym.Value)
		if s == nil {
			s = p.Env.InstallGlobal(sym.Value, symKind, rest[i].Line())
		}

		s.Offset = num.Value

		entry := NewPN(KindGlobal, rest[i].Line())
		entry.Text = sym.Value
		entry.Sym = s
		entry.Val = num.Value
		pn.Add(entry)
	}

	return pn
}

// parseGlobal parses `global (sym n ['=' init])*`: a flat sequence of name,
// explicit variable number, and optional initializer, the same shape as
// globaldecl plus the initializer. The declared number is the variable's
// slot; declarations need not be contiguous or in order.
func (p *Parser) parseGlobal(list *sexp.List) *PN {
	pn := NewPN(KindGlobalDef, list.Line())

	rest := list.Rest(1)
	for i := 0; i < len(rest); {
		sym := rest[i].AsSymbol()
		if sym == nil {
			p.recover(rest[i].Line(), diag.Error, "expected a global variable name")
		}

		if i+1 >= len(rest) || rest[i+1].AsNumber() == nil {
			p.recover(rest[i].Line(), diag.Error, "global %q requires a variable number", sym.Value)
		}

		slot := rest[i+1].AsNumber().Value
		i += 2

		if p.MaxVars > 0 && slot >= p.MaxVars {
			p.Diag.Errorf(p.File, sym.Line(), "global variable number %d exceeds limit %d (-g to raise it)", slot, p.MaxVars)
		}

		s := p.Env.Globals.Lookup(sym.Value)
		if s == nil {
			s = p.Env.InstallGlobal(sym.Value, symtab.KindGlobal, sym.Line())
		}

		s.Offset = slot

		entry := NewPN(KindGlobal, sym.Line())
		entry.Text = sym.Value
		entry.Sym = s
		entry.Val = slot

		if i < len(rest) {
			if eq := rest[i].AsSymbol(); eq != nil && eq.Value == "=" {
				if i+1 >= len(rest) {
					p.recover(rest[i].Line(), diag.Error, "= requires an initializer for %q", sym.Value)
				}

				entry.Add(p.parseExpr(rest[i+1]))
				i += 2
			}
		}

		pn.Add(entry)
	}

	return pn
}

func (p *Parser) parseLocal(list *sexp.List) *PN {
	pn := NewPN(KindLocalDef, list.Line())

	slot := int32(0)
	for _, e := range list.Rest(1) {
		decl, next := p.parseVarDecl(e, symtab.KindLocal, slot)
		slot = next
		pn.Add(decl)
	}

	return pn
}

// parseVarDecl parses one "(sym [n])" or "(sym = init)" var-decl entry of a
// `local` declaration list, and installs the symbol at the given slot (or an
// explicit array size starting there). Slots number upward in declaration
// order; only `global` carries explicit per-name numbers.
func (p *Parser) parseVarDecl(e sexp.SExp, kind symtab.Kind, slot int32) (*PN, int32) {
	line := e.Line()
	width := int32(1)

	var name string

	var initExpr *PN

	if sub := e.AsList(); sub != nil && sub.Len() > 0 {
		sym := sub.Get(0).AsSymbol()
		if sym == nil {
			p.recover(line, diag.Error, "expected a variable name")
		}

		name = sym.Value

		if sub.Len() >= 3 {
			if eq := sub.Get(1).AsSymbol(); eq != nil && eq.Value == "=" {
				initExpr = p.parseExpr(sub.Get(2))
			} else if n := sub.Get(1).AsNumber(); n != nil {
				width = n.Value
			}
		} else if sub.Len() == 2 {
			if n := sub.Get(1).AsNumber(); n != nil {
				width = n.Value
			}
		}
	} else if sym := e.AsSymbol(); sym != nil {
		name = sym.Value
	} else {
		p.recover(line, diag.Error, "expected a variable declaration")
	}

	if p.MaxVars > 0 && slot+width > p.MaxVars {
		p.Diag.Errorf(p.File, line, "too many %s variables (limit %d, -g to raise it)", kind, p.MaxVars)
	}

	sym := p.Env.InstallModule(name, kind, line)
	sym.Offset = slot

	pn := NewPN(KindLocalDef, line)
	pn.Text = name
	pn.Sym = sym
	pn.Val = slot

	if initExpr != nil {
		pn.Add(initExpr)
	}

	return pn, slot + width
}

func (p *Parser) parseEnum(list *sexp.List) *PN {
	pn := NewPN(KindEnum, list.Line())

	rest := list.Rest(1)
	next := int32(0)

	// An optional leading bare number sets the starting value.
	if len(rest) > 0 {
		if n := rest[0].AsNumber(); n != nil {
			next = n.Value
			rest = rest[1:]
		}
	}

	for i := 0; i < len(rest); i++ {
		if eq := rest[i].AsSymbol(); eq != nil && eq.Value == "=" && i+1 < len(rest) {
			i++

			if n := rest[i].AsNumber(); n != nil {
				next = n.Value
			}

			continue
		}

		sym := rest[i].AsSymbol()
		if sym == nil {
			continue
		}

		s := p.Env.InstallModule(sym.Value, symtab.KindDefine, rest[i].Line())
		s.Num = next

		entry := NewPN(KindDefine, rest[i].Line())
		entry.Text = sym.Value
		entry.Val = next
		pn.Add(entry)
		next++
	}

	return pn
}
