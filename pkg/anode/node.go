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

// Package anode implements the compiler's assembly-node IR: a doubly-linked
// list of emission records split across a heap stream (variable tables,
// object templates, string text) and a hunk stream (bytecode, dispatch
// table, class dictionaries), each node knowing its own size, final offset,
// and how to emit itself, plus the backpatch machinery that resolves forward
// references to procedures, objects, and branch labels.
//
// The node graph is cyclic (branches hold forward edges to nodes they don't
// yet know), so nodes never own one another: every *Node is individually
// heap-allocated, its lifetime is the translation unit's Program, and the
// backpatch chain is a plain linked list of those same pointers — stable
// because Node values are never moved by a slice reallocation.
package anode

import (
	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// Kind tags which of the node variants a Node is — one struct with a
// discriminant, the same tagged-variant approach pkg/parsetree and
// pkg/symtab already take.
type Kind int

const (
	// KindOpcode is a bare opcode with no operand (ret, toss, dup, pprev, …).
	KindOpcode Kind = iota
	// KindImm is a signed or unsigned immediate load (op_loadi/op_pushi),
	// 1- or 2-byte form chosen by Node.Short.
	KindImm
	// KindVarAccess is a packed variable load/store/inc/dec.
	KindVarAccess
	// KindPropAccess is one of the four dedicated property-access opcodes.
	KindPropAccess
	// KindEA loads an effective address (lea) rather than a value.
	KindEA
	// KindBranch is a conditional/unconditional jump within the hunk stream,
	// backpatchable to a Label.
	KindBranch
	// KindCall is a procedure call (call/callb/calle/callk), backpatchable to
	// a procedure's entry Node for local calls.
	KindCall
	// KindSend is a message send (self/super/send), carrying the aggregated
	// argument byte count.
	KindSend
	// KindLabel marks a branch target at the current position; it has size 0.
	KindLabel
	// KindProcEntry marks the start of a procedure or method body — the node
	// a KindCall backpatches to for a local target.
	KindProcEntry
	// KindDispatchEntry is one word of the hunk's public dispatch table,
	// backpatched to the corresponding exported procedure's KindProcEntry.
	KindDispatchEntry
	// KindObjectHeader starts an object template on the heap stream: object
	// number, back-pointer to its symbol, and its property entries as children.
	KindObjectHeader
	// KindPropertyEntry is one property slot of an object template; text-typed
	// properties register a heap fixup since their value (textStart+offset) is
	// only known post text-pool layout.
	KindPropertyEntry
	// KindMethodDictEntry is one (selector, method-offset) pair of a class's
	// method dictionary in the hunk stream; the offset half is backpatched to
	// the method's KindProcEntry.
	KindMethodDictEntry
	// KindPropDictEntry is one selector-number word of a class's property
	// dictionary.
	KindPropDictEntry
	// KindTextRecord is a unique string in the heap stream's text pool.
	KindTextRecord
	// KindWord is a raw 16-bit literal (used for counts, headers, table sizes).
	KindWord
	// KindByte is a raw 8-bit literal.
	KindByte
	// KindLineNum is an optional debug record (-d flag) carrying a source
	// line number.
	KindLineNum
	// KindTable is a nested grouping node (e.g. a class's whole method-dict
	// block) whose size is the sum of its children.
	KindTable
)

// Node is one record of the graph: allocated once, never copied, referenced
// everywhere else by pointer. Exactly the fields relevant to Node.Kind are
// meaningful, the same "one struct, tag picks the field" shape
// pkg/parsetree.PN and pkg/symtab.Symbol already use.
type Node struct {
	Kind Kind

	Op           opcode.Op
	Operand      int32 // immediate value, variable address, selector number, …
	OperandWords int   // 0, 1 or 2 sixteen-bit words, for Op.Size
	Short        bool  // branch/call/imm chose the OP_BYTE short form

	// ArgSize is a call or send's trailing argument-byte-count operand
	// (2 × the number of pushed argument words), emitted as a single byte
	// after the displacement or selector operands.
	ArgSize int32

	// Target is the resolved destination of a backpatchable node (branch,
	// call, dispatch entry, method-dict entry). Nil while still pending.
	Target *Node

	// Text carries a label's debug name, a text record's string body, or a
	// line-number record's rendered source location.
	Text string

	// Sym is the symbol a procedure entry or object header defines, or the
	// symbol a backpatchable use site refers to (set by Use); label nodes
	// carry none. Used by the backpatcher to find a symbol from a node and by
	// diagnostics to report an undefined reference's name.
	Sym *symtab.Symbol

	// Children holds a nested table's entries (object template's property
	// list, a class's method/property dict block).
	Children []*Node

	// CrossStreamFixup marks that this node's operand, once emitted, must be
	// registered in its stream's fixup list because it holds an absolute
	// address the loader must relocate.
	CrossStreamFixup bool

	// Offset is this node's final byte offset within its stream, assigned by
	// the optimizer's SetOffsets pass (pkg/optimize).
	Offset int32

	// nextPending links this node into the next-unresolved-use chain rooted
	// at a symtab.Symbol while this node is itself a backpatch site still
	// awaiting its own target (see backpatch.go). Distinct from Target: a
	// branch can simultaneously be "a pending use of label L" (nextPending
	// chains it to L's other pending uses) while never having a Target of its
	// own filled in until L is defined.
	nextPending *Node

	prev, next *Node // doubly-linked position within its owning Stream
}

var _ symtab.Node = (*Node)(nil)

// NextPending implements symtab.Node.
func (n *Node) NextPending() symtab.Node {
	if n.nextPending == nil {
		return nil
	}

	return n.nextPending
}

// SetNextPending implements symtab.Node.
func (n *Node) SetNextPending(next symtab.Node) {
	if next == nil {
		n.nextPending = nil
		return
	}

	n.nextPending = next.(*Node)
}
