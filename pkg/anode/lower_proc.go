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
	"strconv"

	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/parsetree"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// lowerProc lowers a top-level procedure or a class/instance method body: a
// KindProcEntry marker (the backpatch target for any call that names it), a
// link instruction reserving stack space for its &tmp locals when it
// declares any, its body statements in order, and a trailing ret — always
// present even when every control path already returns explicitly. Returns
// the entry node so lowerObject can bind a method's selector to it for the
// class's method dictionary.
func (l *Lowering) lowerProc(pn *parsetree.PN) *Node {
	entry := l.emit(&Node{Kind: KindProcEntry, Text: pn.Text, Sym: pn.Sym})
	Define(pn.Sym, entry)

	params := pn.Children[0]

	tmpCount := 0

	for _, p := range params.Children {
		if p.Sym != nil && p.Sym.Kind == symtab.KindTmp {
			tmpCount++
		}
	}

	if tmpCount > 0 {
		l.emit(&Node{Kind: KindOpcode, Op: opcode.Link, Operand: int32(tmpCount), OperandWords: 1, Short: tmpCount < 256})
	}

	body := pn.Children[1]
	for _, c := range body.Children {
		if l.DebugLines && c.Line > 0 {
			l.emit(&Node{Kind: KindLineNum, Op: opcode.LineNum, Operand: int32(c.Line), Text: strconv.Itoa(c.Line)})
		}

		l.lowerExpr(c)
	}

	l.emit(&Node{Kind: KindOpcode, Op: opcode.Ret})

	return entry
}
