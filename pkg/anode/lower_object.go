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
	"github.com/sci-compiler/scic/pkg/parsetree"
)

// lowerObject lowers a `(class ...)` or `(instance ...)` body: first every
// method and nested procedure it declares, each becoming its own
// KindProcEntry in the hunk stream; then, still on the hunk stream, the
// class's method dictionary (one KindMethodDictEntry per locally defined
// selector — an inherited selector's code lives in the superclass's own
// dictionary, never duplicated here) and property dictionary; finally, on
// the heap stream, the object template itself: one KindPropertyEntry per
// property-tagged selector in declaration order, with the two
// dictionary-offset slots and every text-valued slot relocated through the
// stream's fixup list.
func (l *Lowering) lowerObject(pn *parsetree.PN) {
	obj, _ := pn.Sym.Extra.(*classreg.Object)
	if obj == nil {
		return
	}

	prevClass := l.curClass
	l.curClass = obj

	defer func() { l.curClass = prevClass }()

	for _, child := range pn.Children {
		switch child.Kind {
		case parsetree.KindMethodDef:
			entry := l.lowerProc(child)

			if selSym := l.Env.Selectors.Lookup(child.Text); selSym != nil {
				if sel := obj.FindSelector(uint16(selSym.Num)); sel != nil {
					sel.MethodNode = entry
				}
			}
		case parsetree.KindProcDef:
			l.lowerProc(child)
		}
	}

	l.finalizeSelectors(obj)

	var methodDict, propDict *Node

	l.withStream(l.Prog.Hunk, func() {
		methodDict = &Node{Kind: KindTable}
		propDict = &Node{Kind: KindTable}

		for _, sel := range obj.Selectors() {
			if sel.Tag == classreg.TagLocal {
				entryNode, _ := sel.MethodNode.(*Node)
				methodDict.Children = append(methodDict.Children, &Node{
					Kind: KindMethodDictEntry, Operand: int32(sel.Number), OperandWords: 1, Target: entryNode,
				})
			}

			if sel.Tag.IsProperty() && sel.Tag != classreg.TagPropDict && sel.Tag != classreg.TagMethDict {
				propDict.Children = append(propDict.Children, &Node{
					Kind: KindPropDictEntry, Operand: int32(sel.Number), OperandWords: 1,
				})
			}
		}

		l.emit(methodDict)
		l.emit(propDict)
	})

	var objHeader *Node

	l.withStream(l.Prog.Heap, func() {
		objHeader = &Node{Kind: KindObjectHeader, Sym: pn.Sym, Operand: int32(obj.Num), OperandWords: 1}

		for _, sel := range obj.Selectors() {
			if !sel.Tag.IsProperty() {
				continue
			}

			entry := &Node{Kind: KindPropertyEntry, Operand: sel.Value, OperandWords: 1}

			switch sel.Tag {
			case classreg.TagPropDict:
				entry.Target = propDict
				entry.CrossStreamFixup = true
			case classreg.TagMethDict:
				entry.Target = methodDict
				entry.CrossStreamFixup = true
			case classreg.TagText:
				entry.Target = l.Prog.Text.Intern(sel.Str, l.Prog.Heap)
				entry.CrossStreamFixup = true
			}

			objHeader.Children = append(objHeader.Children, entry)
		}

		l.emit(objHeader)
	})

	Define(pn.Sym, objHeader)
}

// finalizeSelectors settles the well-known property values that depend on
// the finished selector list: -size- becomes the property count, -script-
// holds the class number until the interpreter overwrites it at load time,
// and an instance clears the class bit in its -info- word.
func (l *Lowering) finalizeSelectors(obj *classreg.Object) {
	if sel := obj.FindSelector(classreg.SelSize); sel != nil {
		sel.Value = int32(obj.NumProps)
	}

	if sel := obj.FindSelector(classreg.SelScript); sel != nil {
		sel.Value = int32(obj.Num)
	}

	if obj.Num == classreg.ObjectNum {
		if sel := obj.FindSelector(classreg.SelInfo); sel != nil {
			sel.Value &^= int32(classreg.ClassBit)
		}
	}
}
