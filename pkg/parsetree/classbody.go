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
	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// parseProcedure parses a top-level `(procedure (name param* [&tmp t*]) body*)`.
func (p *Parser) parseProcedure(list *sexp.List) *PN {
	return p.parseProcLike(list, KindProcDef)
}

// parseProcLike implements both a top-level procedure and a nested
// `(procedure ...)`/`(method ...)` inside a class body, sharing the
// call-def parsing and the pushed parameter/temp scope.
func (p *Parser) parseProcLike(list *sexp.List, kind Kind) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "expected (name param*) call definition")
	}

	callDef := list.Get(1).AsList()
	if callDef == nil || callDef.Len() == 0 {
		p.recover(list.Line(), diag.Severe, "expected (name param*) call definition")
	}

	nameSym := callDef.Get(0).AsSymbol()
	if nameSym == nil {
		p.recover(list.Line(), diag.Severe, "expected a procedure/method name")
	}

	symKind := symtab.KindProc
	if kind == KindMethodDef {
		symKind = symtab.KindMethod
	}

	sym := p.Env.Lookup(nameSym.Value)
	if sym == nil || sym.Kind != symKind {
		sym = p.Env.InstallModule(nameSym.Value, symKind, list.Line())
	}

	n := NewPN(kind, list.Line())
	n.Sym = sym
	n.Text = nameSym.Value

	p.Env.PushScope(false)
	defer p.Env.PopScope()

	params := NewPN(KindElist, callDef.Line())

	slot := int32(1) // slot 0 is the frame pointer / implicit receiver word

	inTmp := false

	for _, pe := range callDef.Rest(1) {
		if sym, ok := pe.(*sexp.Symbol); ok && sym.Value == "&tmp" {
			inTmp = true
			continue
		}

		pname := pe.AsSymbol()
		if pname == nil {
			continue
		}

		pk := symtab.KindParam
		if inTmp {
			pk = symtab.KindTmp
		}

		ps := p.Env.InstallLocal(pname.Value, pk, pe.Line())
		ps.Offset = slot
		slot++

		pn := NewPN(KindParam, pe.Line())
		pn.Sym = ps
		pn.Text = pname.Value
		params.Add(pn)
	}

	n.Add(params)

	body := NewPN(KindElist, list.Line())
	body.Add(p.parseBody(list.Rest(2))...)
	n.Add(body)

	return n
}

// parseClassOrInstance parses `(class Name of Super classBody*)` or
// `(instance Name of Class classBody*)`. A class duplicates its
// superclass's selectors (classreg.Registry.NewClass); an instance is
// additionally given the automatic "name" property unless -n suppresses it.
func (p *Parser) parseClassOrInstance(list *sexp.List, isClass bool) *PN {
	if list.Len() < 4 {
		p.recover(list.Line(), diag.Severe, "expected (name of super ...)")
	}

	nameSym := list.Get(1).AsSymbol()
	superSym := list.Get(3).AsSymbol()

	if nameSym == nil || superSym == nil {
		p.recover(list.Line(), diag.Severe, "expected (name of super ...)")
	}

	super := p.lookupClass(superSym.Value, list.Line())

	obj := p.Class.NewClass(nameSym.Value, super)
	obj.File = p.File
	obj.Script = p.Script

	switch {
	case !isClass:
		obj.Num = classreg.ObjectNum
	default:
		// A recompiled class keeps the number a prior job recorded for it;
		// only a genuinely new class claims a fresh slot.
		if prev := p.Class.FindClassByName(nameSym.Value); prev != nil {
			if err := p.Class.Redefine(prev, obj); err != nil {
				p.Diag.Fatalf(p.File, list.Line(), "%v", err)
			}

			// The -super- value fixed up by NewClass already names the same
			// superclass, or Redefine would have refused.
		} else {
			p.Class.AllocateClassNumber(obj)
		}
	}

	clsSym := p.Env.InstallClass(nameSym.Value, list.Line())
	clsSym.Extra = obj

	kind := KindClassDef
	if !isClass {
		kind = KindInstanceDef
	}

	n := NewPN(kind, list.Line())
	n.Text = nameSym.Value
	n.Sym = clsSym

	if !isClass && !p.NoAutoName {
		obj.AddSelector("name", p.allocateSelector("name", list.Line()), classreg.TagText).Str = nameSym.Value
	}

	prevClass := p.CurClass
	p.CurClass = obj

	p.Env.PushScope(false)

	defer func() {
		p.Env.PopScope()
		p.CurClass = prevClass
	}()

	for _, be := range list.Rest(4) {
		bl := be.AsList()
		if bl == nil || bl.Len() == 0 {
			continue
		}

		head, ok := bl.HeadSymbol()
		if !ok {
			continue
		}

		switch head {
		case "properties":
			n.Add(p.parseProperties(bl, obj))
		case "methods":
			n.Add(p.parseMethodsDecl(bl, obj))
		case "method":
			n.Add(p.parseMethodBody(bl, obj))
		case "procedure":
			n.Add(p.parseProcLike(bl, KindProcDef))
		}
	}

	return n
}

func (p *Parser) lookupClass(name string, line int) *classreg.Object {
	if name == "RootObj" {
		return p.Class.RootObj
	}

	sym := p.Env.Classes.Lookup(name)
	if sym == nil {
		p.recover(line, diag.Error, "unknown superclass %q", name)
		return p.Class.RootObj
	}

	return sym.Extra.(*classreg.Object)
}

func (p *Parser) allocateSelector(name string, line int) uint16 {
	sym := p.Env.Selectors.Lookup(name)
	if sym != nil {
		return uint16(sym.Num)
	}

	num := p.Sel.Allocate()
	s := p.Env.InstallSelector(name, line)
	s.Num = int32(num)

	return num
}

// parseProperties parses `(properties (sym [n | "text"])*)`, installing a
// selector (auto-numbered if new) and assigning the next property offset for
// each. A property already inherited from the superclass keeps its offset
// and only has its value overridden; a string-valued property is tagged
// TagText and carries the string for the lowering stage to intern.
func (p *Parser) parseProperties(list *sexp.List, obj *classreg.Object) *PN {
	n := NewPN(KindPropList, list.Line())

	rest := list.Rest(1)
	for i := 0; i < len(rest); i++ {
		pe := rest[i]

		var (
			name  string
			value int32
			text  string
			isStr bool
		)

		if pl := pe.AsList(); pl != nil && pl.Len() >= 1 {
			sym := pl.Get(0).AsSymbol()
			if sym == nil {
				continue
			}

			name = sym.Value

			if pl.Len() >= 2 {
				if num := pl.Get(1).AsNumber(); num != nil {
					value = num.Value
				} else if str := pl.Get(1).AsStr(); str != nil {
					text = str.Value
					isStr = true
				}
			}
		} else if sym := pe.AsSymbol(); sym != nil {
			// Flat pair form: a bare name, optionally followed by its value.
			name = sym.Value

			if i+1 < len(rest) {
				if num := rest[i+1].AsNumber(); num != nil {
					value = num.Value
					i++
				} else if str := rest[i+1].AsStr(); str != nil {
					text = str.Value
					isStr = true
					i++
				}
			}
		} else {
			continue
		}

		num := p.allocateSelector(name, pe.Line())

		sel := obj.FindSelector(num)
		if sel == nil || !sel.Tag.IsProperty() {
			tag := classreg.TagProp
			if isStr {
				tag = classreg.TagText
			}

			sel = obj.AddSelector(name, num, tag)
		}

		if isStr {
			sel.Tag = classreg.TagText
			sel.Str = text
		} else {
			sel.Value = value
		}

		entry := NewPN(KindPropList, pe.Line())
		entry.Text = name
		entry.Val = value
		n.Add(entry)
	}

	return n
}

// parseMethodsDecl parses `(methods sym*)`: a forward declaration of
// selector names this class will define methods for, with no bodies yet.
func (p *Parser) parseMethodsDecl(list *sexp.List, obj *classreg.Object) *PN {
	n := NewPN(KindMethodList, list.Line())

	for _, me := range list.Rest(1) {
		sym := me.AsSymbol()
		if sym == nil {
			continue
		}

		num := p.allocateSelector(sym.Value, me.Line())

		if obj.FindSelector(num) == nil {
			obj.AddSelector(sym.Value, num, classreg.TagLocal)
		}

		entry := NewPN(KindMethodList, me.Line())
		entry.Text = sym.Value
		n.Add(entry)
	}

	return n
}

// parseMethodBody parses `(method (sel param*) body*)`, installing (or
// reusing) a TagLocal selector entry and parsing the body in a pushed
// parameter scope exactly like a procedure.
func (p *Parser) parseMethodBody(list *sexp.List, obj *classreg.Object) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "expected (selector param*)")
	}

	callDef := list.Get(1).AsList()
	if callDef == nil || callDef.Len() == 0 {
		p.recover(list.Line(), diag.Severe, "expected (selector param*)")
	}

	selSym := callDef.Get(0).AsSymbol()
	if selSym == nil {
		p.recover(list.Line(), diag.Severe, "expected a selector name")
	}

	num := p.allocateSelector(selSym.Value, list.Line())

	// An inherited method redefined here, or a fresh selector, becomes a
	// local method; an entry appended twice would double-count in the
	// dictionaries, so an existing one is retagged in place.
	if sel := obj.FindSelector(num); sel != nil {
		sel.Tag = classreg.TagLocal
	} else {
		obj.AddSelector(selSym.Value, num, classreg.TagLocal)
	}

	return p.parseProcLike(list, KindMethodDef)
}

// parseClassDef parses a source-level `(classdef ...)` form exactly like a
// `class` body, reusing the same properties/methods sub-forms. The on-disk
// classdef manifest is not read through here: pkg/crossmod.LoadClassDef
// loads it at compile start.
func (p *Parser) parseClassDef(list *sexp.List) *PN {
	return p.parseClassOrInstance(list, true)
}
