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
	"testing"

	"github.com/sci-compiler/scic/pkg/opcode"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// TestForwardCallResolvesOnDefine checks that a call
// compiled before its target procedure is lowered stays pending until the
// target's KindProcEntry is Defined, at which point Target resolves without
// the call site needing to know anything happened.
func TestForwardCallResolvesOnDefine(t *testing.T) {
	env := symtab.NewEnvironment()
	bSym := env.InstallModule("b", symtab.KindProc, 1)

	prog := NewProgram()

	call := &Node{Kind: KindCall, Op: opcode.Call}
	prog.Hunk.Append(call)
	Use(bSym, call)

	if call.Target != nil {
		t.Fatalf("expected an unresolved call to have a nil Target before Define")
	}

	if !bSym.IsPending() {
		t.Fatalf("expected b to be pending after a forward Use")
	}

	entry := &Node{Kind: KindProcEntry}
	prog.Hunk.Append(entry)
	Define(bSym, entry)

	if call.Target != entry {
		t.Fatalf("expected the call's Target to resolve to b's entry node after Define")
	}

	if bSym.IsPending() {
		t.Fatalf("expected b's pending chain to be empty after Define")
	}

	if !bSym.IsDefined() || bSym.Resolved() != symtab.Node(entry) {
		t.Fatalf("expected b to be Defined pointing at its entry node")
	}
}

// TestUseOnAlreadyDefinedSymbolResolvesImmediately covers the "backward
// reference" case: Use against a symbol that is already Defined must not
// go through the pending chain at all.
func TestUseOnAlreadyDefinedSymbolResolvesImmediately(t *testing.T) {
	env := symtab.NewEnvironment()
	aSym := env.InstallModule("a", symtab.KindProc, 1)

	prog := NewProgram()
	entry := prog.Hunk.Append(&Node{Kind: KindProcEntry})
	Define(aSym, entry)

	call := &Node{Kind: KindCall, Op: opcode.Call}
	prog.Hunk.Append(call)
	Use(aSym, call)

	if call.Target != entry {
		t.Fatalf("expected an immediate resolution against an already-defined symbol")
	}
}

// TestBackpatchResolvesEveryPendingUse exercises a chain of several pending
// uses of the same forward-referenced label: the whole chain resolves when
// the label lands, not just its head.
func TestBackpatchResolvesEveryPendingUse(t *testing.T) {
	env := symtab.NewEnvironment()
	labelSym := NewLabelSymbol(env.Module, "L", 0)

	prog := NewProgram()

	var branches []*Node

	for i := 0; i < 4; i++ {
		n := &Node{Kind: KindBranch, Op: opcode.Jmp}
		prog.Hunk.Append(n)
		Use(labelSym, n)
		branches = append(branches, n)
	}

	lbl := MakeLabel(labelSym, prog.Hunk)

	for i, b := range branches {
		if b.Target != lbl {
			t.Fatalf("branch %d: expected Target to resolve to the label node", i)
		}
	}
}

// TestLabelCanBeRePendingAcrossControlConstructs checks that labels can go
// pending again across successive control constructs: a fresh anonymous label symbol is independent of any
// earlier one even though both share a naming scope, so resolving one does
// not affect a second, later label's own pending chain.
func TestLabelCanBeRePendingAcrossControlConstructs(t *testing.T) {
	env := symtab.NewEnvironment()
	prog := NewProgram()

	firstLabel := NewLabelSymbol(env.Module, "L", 0)
	firstBranch := &Node{Kind: KindBranch, Op: opcode.Jmp}
	prog.Hunk.Append(firstBranch)
	Use(firstLabel, firstBranch)
	MakeLabel(firstLabel, prog.Hunk)

	secondLabel := NewLabelSymbol(env.Module, "L", 0)
	secondBranch := &Node{Kind: KindBranch, Op: opcode.Jmp}
	prog.Hunk.Append(secondBranch)
	Use(secondLabel, secondBranch)

	if secondBranch.Target != nil {
		t.Fatalf("expected the second branch to remain unresolved until its own label is placed")
	}

	secondLbl := MakeLabel(secondLabel, prog.Hunk)

	if secondBranch.Target != secondLbl {
		t.Fatalf("expected the second branch to resolve to the second label, not the first")
	}

	if firstBranch.Target == secondLbl {
		t.Fatalf("expected the first branch's resolution to be unaffected by the second label")
	}
}
