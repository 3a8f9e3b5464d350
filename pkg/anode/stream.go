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

// StreamKind distinguishes the two output streams every translation unit is
// paired into.
type StreamKind int

const (
	// Heap holds variable tables, object templates, and string text.
	Heap StreamKind = iota
	// Hunk holds bytecode, the dispatch table, and class dictionaries.
	Hunk
)

func (k StreamKind) String() string {
	if k == Heap {
		return "heap"
	}

	return "hunk"
}

// Stream is one of the two node lists plus the fixup list the emitter will
// write out alongside it. Nodes are kept in a doubly-linked list
// (append-only during lowering; the optimizer walks it front-to-back
// repeatedly without ever reordering it).
type Stream struct {
	Kind StreamKind
	head *Node
	tail *Node
	len  int

	// Fixups collects, in emission order, the byte offsets within this
	// stream whose 2-byte slot holds an absolute address needing load-time
	// relocation. pkg/emit writes this out as a count followed by the
	// offsets.
	Fixups []int32
}

// NewStream constructs an empty stream of the given kind.
func NewStream(kind StreamKind) *Stream {
	return &Stream{Kind: kind}
}

// Append adds n to the end of this stream and returns it, for fluent
// construction during lowering.
func (s *Stream) Append(n *Node) *Node {
	if s.tail == nil {
		s.head = n
		s.tail = n
	} else {
		s.tail.next = n
		n.prev = s.tail
		s.tail = n
	}

	n.next = nil
	s.len++

	return n
}

// Head returns the first node of the stream, or nil if empty.
func (s *Stream) Head() *Node { return s.head }

// Len returns the number of nodes currently in the stream.
func (s *Stream) Len() int { return s.len }

// Nodes returns every node in this stream, in emission order. Used by
// pkg/optimize and pkg/emit, both of which need a stable, repeatable walk.
func (s *Stream) Nodes() []*Node {
	out := make([]*Node, 0, s.len)

	for n := s.head; n != nil; n = n.next {
		out = append(out, n)
	}

	return out
}

// AddFixup registers a byte offset in this stream's fixup list. Called by
// pkg/emit as each cross-stream-referencing node is written.
func (s *Stream) AddFixup(byteOffset int32) {
	s.Fixups = append(s.Fixups, byteOffset)
}

// TotalSize returns the sum of every node's current Size(), i.e. the
// stream's total length as of the last SetOffsets pass. The optimizer
// compares successive TotalSize() values to detect the shrink-phase and
// stabilize-phase fixpoints.
func (s *Stream) TotalSize() int {
	total := 0
	for n := s.head; n != nil; n = n.next {
		total += n.Size()
	}

	return total
}

// SetOffsets walks the stream assigning each node's final Offset in order,
// starting at start, and returns the offset immediately past the last node
// (i.e. the stream's total size). Run once per optimizer iteration and once
// more, finally, before emission.
func (s *Stream) SetOffsets(start int32) int32 {
	offset := start

	for n := s.head; n != nil; n = n.next {
		offset = n.SetOffset(offset)
	}

	return offset
}

// Program bundles the two streams for one translation unit together with
// the text pool; dropping the Program releases every node in both streams.
type Program struct {
	Heap *Stream
	Hunk *Stream
	Text *TextPool

	// Variables holds every global/local slot's constant-folded initial
	// value, indexed by slot number. A slot nobody ever declared with an
	// initializer reads back as 0.
	Variables []int32

	// VarTexts maps a variable slot to the interned text record whose
	// absolute heap address (and a fixup) the emitter writes in place of the
	// slot's plain word value.
	VarTexts map[int32]*Node
}

// NewProgram constructs an empty two-stream program ready for lowering.
func NewProgram() *Program {
	return &Program{
		Heap:     NewStream(Heap),
		Hunk:     NewStream(Hunk),
		Text:     NewTextPool(),
		VarTexts: make(map[int32]*Node),
	}
}

// SetVariable records v as the initial value of the given slot, growing
// Variables as needed. Gaps left by array-sized declarations stay zero.
func (p *Program) SetVariable(slot int32, v int32) {
	for int32(len(p.Variables)) <= slot {
		p.Variables = append(p.Variables, 0)
	}

	p.Variables[slot] = v
}

// SetVariableText records rec as the string initializer of the given slot.
func (p *Program) SetVariableText(slot int32, rec *Node) {
	p.SetVariable(slot, 0)
	p.VarTexts[slot] = rec
}
