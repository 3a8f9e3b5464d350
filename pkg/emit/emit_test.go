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
package emit

import (
	"encoding/binary"
	"testing"

	"github.com/sci-compiler/scic/pkg/anode"
	"github.com/sci-compiler/scic/pkg/opcode"
)

// TestEmitMinimalScriptLayout: a script with
// no variables and a single procedure that loads an immediate and returns
// should produce a heap resource that is just header+count+terminator+empty
// fixups, and a hunk resource whose dispatch table is empty and whose body
// is exactly `ldi.b 42` followed by `ret`.
func TestEmitMinimalScriptLayout(t *testing.T) {
	prog := anode.NewProgram()

	prog.Hunk.Append(&anode.Node{Kind: anode.KindWord, Operand: 0, OperandWords: 1}) // dispatch count

	prog.Hunk.Append(&anode.Node{Kind: anode.KindProcEntry})
	prog.Hunk.Append(&anode.Node{Kind: anode.KindImm, Op: opcode.Loadi, Operand: 42, OperandWords: 1, Short: true})
	prog.Hunk.Append(&anode.Node{Kind: anode.KindOpcode, Op: opcode.Ret})

	prog.Heap.SetOffsets(0)
	prog.Hunk.SetOffsets(0)

	out := Emit(prog, false)

	if len(out.Heap) != 2+2+2+2 { // header + var count + terminator + fixup count
		t.Fatalf("expected minimal heap layout, got %d bytes: %x", len(out.Heap), out.Heap)
	}

	if binary.LittleEndian.Uint16(out.Heap[len(out.Heap)-2:]) != 0 {
		t.Fatalf("expected empty heap fixup table")
	}

	// hunk: header(2) + heapOffset(2) + farText(2) + dispatchCount(2) + ldi.b(2)
	// + ret(1) = 11 bytes, padded to 12 for fixup alignment, + fixupCount(2).
	want := 2 + 2 + 2 + 2 + 2 + 1 + 1 + 2
	if len(out.Hunk) != want {
		t.Fatalf("expected %d hunk bytes, got %d: %x", want, len(out.Hunk), out.Hunk)
	}
}

func TestEmitBigEndianHeader(t *testing.T) {
	prog := anode.NewProgram()
	prog.Heap.SetOffsets(0)
	prog.Hunk.SetOffsets(0)

	out := Emit(prog, true)

	if binary.BigEndian.Uint16(out.Heap[:2]) != ResourceHeap {
		t.Fatalf("expected big-endian heap resource header")
	}

	if binary.BigEndian.Uint16(out.Hunk[:2]) != ResourceHunk {
		t.Fatalf("expected big-endian hunk resource header")
	}
}

// TestEmitCrossStreamFixupRegistered: a lofsa
// load of an interned string registers its absolute heap address in the
// hunk stream's fixup list.
func TestEmitCrossStreamFixupRegistered(t *testing.T) {
	prog := anode.NewProgram()

	rec := prog.Text.Intern("hi", prog.Heap)
	prog.Hunk.Append(&anode.Node{Kind: anode.KindEA, Op: opcode.Lofsa, OperandWords: 1, Target: rec, CrossStreamFixup: true})

	prog.Heap.SetOffsets(0)
	prog.Hunk.SetOffsets(0)

	out := Emit(prog, false)

	// header(2) + heapOffset(2) + farText(2) + EA opcode(1) + absolute addr(2)
	// = 9 bytes, padded to 10, then a 1-entry fixup table (count + offset).
	fixupCount := binary.LittleEndian.Uint16(out.Hunk[10:12])
	if fixupCount != 1 {
		t.Fatalf("expected exactly one hunk fixup, got %d (hunk=%x)", fixupCount, out.Hunk)
	}

	fixupOffset := binary.LittleEndian.Uint16(out.Hunk[12:14])
	if fixupOffset != 7 { // byte position of the 2-byte absolute slot within the hunk stream
		t.Fatalf("expected fixup offset 7, got %d", fixupOffset)
	}
}
