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

// Package emit implements the two-stream binary emitter: once pkg/optimize
// has stabilized every node's final Offset, this package walks the heap and
// hunk streams in order and writes the corresponding bytes, tracking along
// the way which byte offsets hold an absolute address (as opposed to an
// opcode, an immediate, or a same-stream relative displacement) so each
// stream's fixup table can be emitted alongside it.
package emit

import (
	"bytes"
	"encoding/binary"

	"github.com/sci-compiler/scic/pkg/anode"
	"github.com/sci-compiler/scic/pkg/opcode"
)

// ResourceHeap and ResourceHunk are the fixed 2-byte markers that open every
// .hep/.scr resource.
const (
	ResourceHeap uint16 = 0x1ea7
	ResourceHunk uint16 = 0x8008
)

// Output bundles the two emitted binaries for one translation unit.
type Output struct {
	Heap []byte
	Hunk []byte
}

// byteOrder returns the encoding/binary.ByteOrder matching the -w CLI flag;
// little-endian is the default.
func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// writer accumulates one stream's output bytes plus the fixup offsets
// registered against it: a flat array of byte offsets within this stream
// whose 2-byte slot holds an absolute address the loader must relocate
// (a text pointer, or an object property pointing at a method/property
// dictionary in the other stream).
type writer struct {
	buf    bytes.Buffer
	order  binary.ByteOrder
	fixups []int32
}

func (w *writer) pos() int32 { return int32(w.buf.Len()) }

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) word16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) sbyte(v int32) { w.byte(byte(int8(v))) }

func (w *writer) sword16(v int32) { w.word16(uint16(int16(v))) }

// absolute writes a 2-byte absolute address and registers the slot it was
// written to in this stream's fixup list.
func (w *writer) absolute(v int32) {
	w.fixups = append(w.fixups, w.pos())
	w.word16(uint16(v))
}

// Emit serializes prog's heap and hunk streams into their final binary
// form:
//
//	heap: header, variables table, object templates and text records in
//	      lowering order, terminator, fixups
//	hunk: header, heap-offset word, far-text-flag word, dispatch count,
//	      dispatch table, dictionaries/procedures/methods in lowering
//	      order, fixups
//
// Object templates and interned text records share the heap stream in the
// order lowering appended them rather than as two strictly separate
// sections: reordering them at emit time would invalidate the Offset values
// pkg/optimize already stabilized (a hunk-side lofsa referencing an interned
// string reads that string's actual stabilized Offset). The terminator word
// is written once, after every heap node.
func Emit(prog *anode.Program, bigEndian bool) *Output {
	order := byteOrder(bigEndian)

	heapBase := heapPreambleSize(prog)
	hunkBase := int32(6) // header + heap-offset word + far-text flag word

	heapW := &writer{order: order}
	writeHeapHeader(heapW, prog, heapBase)
	writeHeapNodes(heapW, prog.Heap.Nodes(), heapBase, hunkBase)
	heapW.word16(0) // terminator

	hunkW := &writer{order: order}
	writeHunkHeader(hunkW, heapBase)
	writeHunkNodes(hunkW, prog.Hunk.Nodes(), heapBase, hunkBase)

	return &Output{
		Heap: finish(heapW),
		Hunk: finish(hunkW),
	}
}

// heapPreambleSize computes the byte width of the heap stream's fixed
// prefix (header word + variable count word + one word per declared
// variable slot) that precedes the first node-based offset — i.e. the base
// every heap node's absolute address is computed relative to.
func heapPreambleSize(prog *anode.Program) int32 {
	return 2 + 2 + int32(len(prog.Variables))*2
}

// writeHeapHeader writes the heap's resource marker and variables table. A
// slot initialized with a string writes the interned record's absolute heap
// address and registers the slot for relocation.
func writeHeapHeader(w *writer, prog *anode.Program, heapBase int32) {
	w.word16(ResourceHeap)
	w.word16(uint16(len(prog.Variables)))

	for slot, v := range prog.Variables {
		if rec, ok := prog.VarTexts[int32(slot)]; ok && rec != nil {
			w.absolute(heapBase + rec.Offset)
			continue
		}

		w.word16(uint16(v))
	}
}

// writeHunkHeader writes the hunk's fixed preamble: the resource marker, the
// heap-offset word (where the paired heap resource's node segment begins,
// i.e. the size of the heap's own fixed preamble) and the far-text flag
// word, always 0 since text is never split into a separate far segment.
func writeHunkHeader(w *writer, heapBase int32) {
	w.word16(ResourceHunk)
	w.word16(uint16(heapBase))
	w.word16(0)
}

// finish pads the payload to an even length, then appends the fixup table:
// a count word followed by one offset word per entry.
func finish(w *writer) []byte {
	if w.buf.Len()%2 != 0 {
		w.buf.WriteByte(0)
	}

	w.word16(uint16(len(w.fixups)))

	for _, off := range w.fixups {
		w.word16(uint16(off))
	}

	return w.buf.Bytes()
}

func writeHeapNodes(w *writer, nodes []*anode.Node, heapBase, hunkBase int32) {
	for _, n := range nodes {
		writeHeapNode(w, n, heapBase, hunkBase)
	}
}

func writeHeapNode(w *writer, n *anode.Node, heapBase, hunkBase int32) {
	switch n.Kind {
	case anode.KindObjectHeader:
		w.word16(uint16(n.Operand)) // object number
		w.word16(0)                 // back-pointer to symbol; resolved by a listing, not the machine

		for _, c := range n.Children {
			writeHeapNode(w, c, heapBase, hunkBase)
		}
	case anode.KindPropertyEntry:
		if n.CrossStreamFixup && n.Target != nil {
			base := hunkBase
			if n.Target.Kind == anode.KindTextRecord {
				base = heapBase
			}

			w.absolute(base + n.Target.Offset)
		} else {
			w.word16(uint16(n.Operand))
		}
	case anode.KindTextRecord:
		w.buf.WriteString(n.Text)
		w.byte(0)
	case anode.KindTable:
		for _, c := range n.Children {
			writeHeapNode(w, c, heapBase, hunkBase)
		}
	default:
		writeCommonNode(w, n, heapBase)
	}
}

func writeHunkNodes(w *writer, nodes []*anode.Node, heapBase, hunkBase int32) {
	for _, n := range nodes {
		writeHunkNode(w, n, heapBase, hunkBase)
	}
}

func writeHunkNode(w *writer, n *anode.Node, heapBase, hunkBase int32) {
	switch n.Kind {
	case anode.KindDispatchEntry:
		if n.Target != nil {
			w.word16(uint16(hunkBase + n.Target.Offset))
		} else {
			w.word16(0)
		}
	case anode.KindMethodDictEntry:
		w.word16(uint16(n.Operand)) // selector number

		if n.Target != nil {
			w.word16(uint16(hunkBase + n.Target.Offset))
		} else {
			w.word16(0)
		}
	case anode.KindPropDictEntry:
		w.word16(uint16(n.Operand))
	case anode.KindProcEntry, anode.KindLabel:
		// Zero-size markers; nothing to emit.
	case anode.KindTable:
		for _, c := range n.Children {
			writeHunkNode(w, c, heapBase, hunkBase)
		}
	case anode.KindBranch:
		w.byte(byte(n.Op.WithShort(n.Short)))
		writeDisplacement(w, n)
	case anode.KindCall:
		writeCall(w, n)
	case anode.KindSend:
		writeSend(w, n)
	default:
		writeCommonNode(w, n, heapBase)
	}
}

// writeCall writes one of the four call forms: a local call's relative
// displacement, a calle's script/entry word pair, or a callk/callb's entry
// number word — each followed by the argument-byte-count byte.
func writeCall(w *writer, n *anode.Node) {
	w.byte(byte(n.Op.WithShort(n.Short)))

	switch n.Op &^ opcode.OPByte {
	case opcode.Calle:
		writeOperandWords(w, n.Operand>>16, 1, n.Short)
		writeOperandWords(w, n.Operand&0xffff, 1, n.Short)
	case opcode.Callk, opcode.Callb:
		writeOperandWords(w, n.Operand, 1, n.Short)
	default:
		writeDisplacement(w, n)
	}

	w.byte(byte(n.ArgSize))
}

// writeSend writes a send/self/super opcode: super additionally carries its
// superclass number, and every form ends with the argument-byte-count byte.
func writeSend(w *writer, n *anode.Node) {
	w.byte(byte(n.Op.WithShort(n.Short)))

	if n.Op&^opcode.OPByte == opcode.Super {
		writeOperandWords(w, n.Operand, 1, n.Short)
	}

	w.byte(byte(n.ArgSize))
}

// writeCommonNode handles the node kinds shared between both streams:
// plain opcodes, immediates, variable/property accesses, effective-address
// loads, raw words/bytes, and debug line records.
func writeCommonNode(w *writer, n *anode.Node, heapBase int32) {
	switch n.Kind {
	case anode.KindOpcode:
		w.byte(byte(n.Op.WithShort(n.Short)))
		writeOperandWords(w, n.Operand, n.OperandWords, n.Short)
	case anode.KindImm, anode.KindVarAccess, anode.KindPropAccess:
		w.byte(byte(n.Op.WithShort(n.Short)))
		writeOperandWords(w, n.Operand, n.OperandWords, n.Short)
	case anode.KindEA:
		w.byte(byte(n.Op.WithShort(n.Short)))

		// An address load always resolves to the heap stream — a text record
		// or an object template — and an absolute address always needs
		// relocation, whichever stream the load instruction itself sits in.
		if n.Target != nil {
			w.absolute(heapBase + n.Target.Offset)
		} else {
			writeOperandWords(w, n.Operand, n.OperandWords, n.Short)
		}
	case anode.KindWord:
		w.word16(uint16(n.Operand))
	case anode.KindByte:
		w.byte(byte(n.Operand))
	case anode.KindLineNum:
		w.byte(byte(n.Op))
		w.word16(uint16(n.Operand))
	}
}

// writeDisplacement writes a branch or call's same-stream relative
// displacement (target offset minus this node's own end offset), in the
// width its Short flag selects. A missing target writes a zero placeholder
// of the same width.
func writeDisplacement(w *writer, n *anode.Node) {
	var delta int32

	if n.Target != nil {
		delta = n.Target.Offset - (n.Offset + int32(n.Size()))
	}

	if n.Short {
		w.sbyte(delta)
	} else {
		w.sword16(delta)
	}
}

// writeOperandWords writes v as operandWords 16-bit words, one byte each in
// short form or two bytes each in long form.
func writeOperandWords(w *writer, v int32, operandWords int, short bool) {
	for i := 0; i < operandWords; i++ {
		word := v
		if operandWords == 2 {
			if i == 0 {
				word = v >> 16
			} else {
				word = v & 0xffff
			}
		}

		if short {
			w.sbyte(word)
		} else {
			w.sword16(word)
		}
	}
}
