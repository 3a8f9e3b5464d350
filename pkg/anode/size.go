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

import "github.com/sci-compiler/scic/pkg/opcode"

func widthOf(short bool) int {
	if short {
		return 1
	}

	return 2
}

// Size returns this node's current encoded length in bytes. For
// backpatchable nodes (branch/call) the length depends on Short, which the
// optimizer (pkg/optimize) flips between shrink-phase iterations; for
// everything else the length is fixed.
func (n *Node) Size() int {
	switch n.Kind {
	case KindLabel, KindProcEntry:
		return 0
	case KindOpcode, KindImm, KindVarAccess, KindPropAccess, KindEA:
		return n.Op.WithShort(n.Short).Size(n.OperandWords)
	case KindBranch:
		return 1 + widthOf(n.Short)
	case KindCall:
		switch n.Op &^ opcode.OPByte {
		case opcode.Calle:
			// script word + entry word + arg-size byte; no displacement.
			return 1 + 2*widthOf(n.Short) + 1
		case opcode.Callk, opcode.Callb:
			// kernel/entry number word + arg-size byte.
			return 1 + widthOf(n.Short) + 1
		default:
			// relative displacement + arg-size byte.
			return 1 + widthOf(n.Short) + 1
		}
	case KindSend:
		if n.Op&^opcode.OPByte == opcode.Super {
			// class number word + arg-size byte.
			return 1 + widthOf(n.Short) + 1
		}

		// send/self: opcode + arg-size byte.
		return 1 + 1
	case KindDispatchEntry:
		return 2
	case KindObjectHeader:
		return tableChildrenSize(n.Children) + 4 // object number word + symbol back-pointer word precede properties
	case KindPropertyEntry:
		return 2
	case KindMethodDictEntry:
		return 4 // selector word + method-offset word
	case KindPropDictEntry:
		return 2
	case KindTextRecord:
		return len(n.Text) + 1 // NUL-terminated
	case KindWord:
		return 2
	case KindByte:
		return 1
	case KindLineNum:
		return 3 // opcode + one word
	case KindTable:
		return tableChildrenSize(n.Children)
	default:
		return 0
	}
}

func tableChildrenSize(children []*Node) int {
	total := 0
	for _, c := range children {
		total += c.Size()
	}

	return total
}

// SetOffset assigns this node's final Offset to the given starting byte
// position and returns the offset immediately following it. Table-kind nodes
// additionally lay out their children in place, since their own Offset is
// simply their first child's.
func (n *Node) SetOffset(offset int32) int32 {
	n.Offset = offset

	switch n.Kind {
	case KindObjectHeader:
		o := offset + 4
		for _, c := range n.Children {
			o = c.SetOffset(o)
		}

		return o
	case KindTable:
		o := offset
		for _, c := range n.Children {
			o = c.SetOffset(o)
		}

		return o
	default:
		return offset + int32(n.Size())
	}
}

// List renders this single node in a disassembly-listing-friendly form. The
// `-l` listing writer composes these per-node strings; this package only
// owns the per-node text.
func (n *Node) List() string {
	switch n.Kind {
	case KindLabel:
		return n.Text + ":"
	case KindLineNum:
		return "; line " + n.Text
	case KindTextRecord:
		return "\"" + n.Text + "\""
	case KindOpcode, KindImm, KindVarAccess, KindPropAccess, KindEA, KindSend:
		return n.Op.String()
	case KindBranch, KindCall:
		name := n.Op.String()
		if n.Target != nil && n.Target.Sym != nil {
			return name + " " + n.Target.Sym.Name
		}

		return name + " ?"
	default:
		return ""
	}
}
