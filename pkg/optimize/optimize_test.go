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
package optimize

import (
	"testing"

	"github.com/sci-compiler/scic/pkg/anode"
	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/symtab"
)

func buildShortCircuitHunk() *anode.Program {
	prog := anode.NewProgram()
	env := symtab.NewEnvironment()

	endSym := anode.NewLabelSymbol(env.Module, "L", 0)

	branches := make([]*anode.Node, 0, 3)

	for i := 0; i < 3; i++ {
		n := &anode.Node{Kind: anode.KindBranch, Op: opcode.Bnt}
		prog.Hunk.Append(n)
		anode.Use(endSym, n)
		branches = append(branches, n)
	}

	anode.MakeLabel(endSym, prog.Hunk)

	return prog
}

func TestShrinkPassFlipsReachableBranchesToShort(t *testing.T) {
	prog := buildShortCircuitHunk()

	before := prog.Hunk.TotalSize()

	Run(prog, true)

	for i, n := range prog.Hunk.Nodes() {
		if n.Kind != anode.KindBranch {
			continue
		}

		if !n.Short {
			t.Fatalf("branch %d: expected short form after stabilization", i)
		}
	}

	after := prog.Hunk.TotalSize()
	if after >= before {
		t.Fatalf("expected stabilization to shrink total hunk size: before=%d after=%d", before, after)
	}
}

func TestRunWithShrinkDisabledLeavesLongForm(t *testing.T) {
	prog := buildShortCircuitHunk()

	Run(prog, false)

	for _, n := range prog.Hunk.Nodes() {
		if n.Kind == anode.KindBranch && n.Short {
			t.Fatalf("expected branch to remain long form when shrink phase is disabled")
		}
	}
}

func TestRunRecomputesHeapOffsetsAfterHunk(t *testing.T) {
	prog := anode.NewProgram()
	prog.Hunk.Append(&anode.Node{Kind: anode.KindOpcode, Op: opcode.Ret})
	rec := prog.Heap.Append(&anode.Node{Kind: anode.KindTextRecord, Text: "hi"})

	Run(prog, true)

	if rec.Offset != 0 {
		t.Fatalf("expected first heap node to sit at offset 0, got %d", rec.Offset)
	}
}

func TestCalleCallNeverShrinksWithoutATarget(t *testing.T) {
	prog := anode.NewProgram()
	n := &anode.Node{Kind: anode.KindCall, Op: opcode.Calle, Operand: 0, OperandWords: 2}
	prog.Hunk.Append(n)

	Run(prog, true)

	if n.Short {
		t.Fatalf("calle call has no backpatch Target and must never claim the short form")
	}
}
