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
package anode_test

import (
	"testing"

	"github.com/sci-compiler/scic/pkg/anode"
	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/optimize"
	"github.com/sci-compiler/scic/pkg/parsetree"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
	"github.com/sci-compiler/scic/pkg/util/assert"
)

type fixture struct {
	env  *symtab.Environment
	reg  *classreg.Registry
	bag  *diag.Bag
	prog *anode.Program
}

func lowerSource(t *testing.T, src string) *fixture {
	t.Helper()

	env := symtab.NewEnvironment()
	reg := classreg.NewRegistry()
	sel := classreg.NewSelectorTable()
	bag := diag.NewBag()

	r := sexp.NewReader("t.sc", src)

	forms, errs := r.ReadAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected reader errors: %v", errs)
	}

	parser := parsetree.NewParser("t.sc", env, reg, sel, bag)
	units := parser.ParseUnit(forms)

	if bag.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", bag.Items())
	}

	prog := anode.NewProgram()
	lowering := anode.NewLowering(prog, env, bag, "t.sc")
	lowering.LowerUnit(units)

	return &fixture{env: env, reg: reg, bag: bag, prog: prog}
}

func TestLowerMinimalProcedure(t *testing.T) {
	fx := lowerSource(t, "(script# 0) (procedure (main) (return 42))")

	nodes := fx.prog.Hunk.Nodes()

	assert.Equal(t, anode.KindWord, nodes[0].Kind, "hunk must open with the dispatch count")
	assert.Equal(t, int32(0), nodes[0].Operand, "no public declarations means a 0-entry dispatch table")

	var sawEntry, sawImm bool

	for _, n := range nodes {
		switch n.Kind {
		case anode.KindProcEntry:
			sawEntry = true
		case anode.KindImm:
			if n.Operand == 42 {
				sawImm = true
				assert.True(t, n.Short, "42 fits a signed byte and must take the short form")
			}
		}
	}

	assert.True(t, sawEntry, "procedure body must start with an entry marker")
	assert.True(t, sawImm, "return 42 must load its value as an immediate")
}

func TestDispatchEntryResolvesToPublicProcedure(t *testing.T) {
	fx := lowerSource(t, "(script# 0) (public main 0) (procedure (main) (return))")

	nodes := fx.prog.Hunk.Nodes()

	assert.Equal(t, anode.KindWord, nodes[0].Kind)
	assert.Equal(t, int32(1), nodes[0].Operand)
	assert.Equal(t, anode.KindDispatchEntry, nodes[1].Kind)

	if nodes[1].Target == nil || nodes[1].Target.Kind != anode.KindProcEntry {
		t.Fatalf("expected the dispatch entry to resolve to main's entry node")
	}
}

// TestDispatchTableKeepsDeclarationGaps: export numbers index the dispatch
// table directly, so a non-contiguous `public` declaration produces a table
// sized past the highest number with unclaimed slots left as zero words —
// never compacted, or every cross-module call past a gap would land on the
// wrong export.
func TestDispatchTableKeepsDeclarationGaps(t *testing.T) {
	fx := lowerSource(t,
		"(script# 0) (public foo 0 bar 2) (procedure (foo) (return)) (procedure (bar) (return))")

	nodes := fx.prog.Hunk.Nodes()

	assert.Equal(t, anode.KindWord, nodes[0].Kind)
	assert.Equal(t, int32(3), nodes[0].Operand, "table is sized to the highest export number plus one")

	assert.Equal(t, anode.KindDispatchEntry, nodes[1].Kind)
	assert.Equal(t, "foo", nodes[1].Sym.Name)

	assert.Equal(t, anode.KindWord, nodes[2].Kind, "the unclaimed slot stays an empty word")
	assert.Equal(t, int32(0), nodes[2].Operand)

	assert.Equal(t, anode.KindDispatchEntry, nodes[3].Kind)
	assert.Equal(t, "bar", nodes[3].Sym.Name)

	if nodes[1].Target == nil || nodes[3].Target == nil {
		t.Fatalf("expected both claimed entries to resolve to their procedures")
	}
}

// TestForwardCallThenShrink checks that a call emitted before its callee
// resolves through backpatching and, being close by, claims the short form
// once offsets stabilize.
func TestForwardCallThenShrink(t *testing.T) {
	fx := lowerSource(t, "(script# 1) (procedure (a) (b)) (procedure (b) (return))")

	if fx.bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", fx.bag.Items())
	}

	optimize.Run(fx.prog, true)

	var call *anode.Node

	for _, n := range fx.prog.Hunk.Nodes() {
		if n.Kind == anode.KindCall {
			call = n
		}
	}

	if call == nil {
		t.Fatalf("expected a call node in the hunk")
	}

	if call.Target == nil || call.Target.Kind != anode.KindProcEntry {
		t.Fatalf("expected the forward call to resolve to b's entry node")
	}

	assert.True(t, call.Short, "a displacement this small must take the short form")

	if anode.UnresolvedReferences(fx.prog) != nil {
		t.Fatalf("expected no unresolved references")
	}
}

// TestShortCircuitShrinksEveryBranch lowers a conjunction inside an if and
// checks that stabilization leaves every branch in the short form with a
// strictly smaller hunk than the all-long starting point.
func TestShortCircuitShrinksEveryBranch(t *testing.T) {
	fx := lowerSource(t,
		"(script# 4) (procedure (doit) (return)) (procedure (p a b c) (if (and a b c) (doit)))")

	before := fx.prog.Hunk.TotalSize()

	optimize.Run(fx.prog, true)

	branches := 0

	for _, n := range fx.prog.Hunk.Nodes() {
		if n.Kind != anode.KindBranch {
			continue
		}

		branches++

		assert.True(t, n.Short, "every displacement here fits signed-8")
	}

	assert.Equal(t, 3, branches, "two and-branches plus the if's own bnt")
	assert.True(t, fx.prog.Hunk.TotalSize() < before, "shrinking must strictly reduce the hunk size")
}

func TestSendAggregatesArgBytes(t *testing.T) {
	fx := lowerSource(t, "(script# 6) (procedure (p &tmp obj) (obj frobnicate 1 2))")

	var send *anode.Node

	for _, n := range fx.prog.Hunk.Nodes() {
		if n.Kind == anode.KindSend {
			send = n
		}
	}

	if send == nil {
		t.Fatalf("expected a send node in the hunk")
	}

	// selector word + arg count word + two argument words.
	assert.Equal(t, int32(8), send.ArgSize)

	sel := fx.env.Selectors.Lookup("frobnicate")
	if sel == nil {
		t.Fatalf("expected frobnicate to be auto-installed as a selector")
	}
}

// TestObjectLoweringSplitsStreams checks the stream split for a class body:
// the template and its text land on the heap, the dictionaries on the hunk,
// and the template's dictionary slots are relocated cross-stream.
func TestObjectLoweringSplitsStreams(t *testing.T) {
	fx := lowerSource(t,
		"(script# 5) (class C of RootObj (properties x 1 y 2) (method (doit) (return)))")

	var header *anode.Node

	for _, n := range fx.prog.Heap.Nodes() {
		if n.Kind == anode.KindObjectHeader {
			header = n
		}
	}

	if header == nil {
		t.Fatalf("expected the object template on the heap stream")
	}

	fixups := 0

	for _, c := range header.Children {
		assert.Equal(t, anode.KindPropertyEntry, c.Kind)

		if c.CrossStreamFixup {
			fixups++
		}
	}

	assert.Equal(t, 2, fixups, "exactly the property-dict and method-dict slots relocate")

	c := fx.reg.FindClass(0)
	if c == nil || c.Name != "C" {
		t.Fatalf("expected C to take class number 0")
	}

	x := c.FindSelector(uint16(fx.env.Selectors.Lookup("x").Num))
	assert.Equal(t, int32(16), x.Offset, "x follows the eight root properties")

	y := c.FindSelector(uint16(fx.env.Selectors.Lookup("y").Num))
	assert.Equal(t, int32(18), y.Offset, "y takes the next word slot")

	size := c.FindSelector(classreg.SelSize)
	assert.Equal(t, int32(c.NumProps), size.Value, "-size- settles to the property count")
}

// TestInstanceClearsClassBit checks -info- handling: an instance clears the
// class bit its class's template keeps.
func TestInstanceClearsClassBit(t *testing.T) {
	fx := lowerSource(t,
		"(script# 5) (class C of RootObj (properties x 1)) (instance i of C (properties x 9))")

	sym := fx.env.Classes.Lookup("i")
	if sym == nil {
		t.Fatalf("expected instance i to be installed")
	}

	obj := sym.Extra.(*classreg.Object)
	assert.Equal(t, classreg.ObjectNum, obj.Num)

	info := obj.FindSelector(classreg.SelInfo)
	assert.Equal(t, int32(0), info.Value&int32(classreg.ClassBit), "an instance clears the class bit")

	cls := fx.env.Classes.Lookup("C").Extra.(*classreg.Object)
	infoC := cls.FindSelector(classreg.SelInfo)
	assert.True(t, infoC.Value&int32(classreg.ClassBit) != 0, "a class keeps the class bit")
}

// TestBreakLevelSaturates lowers a break whose level exceeds the nesting
// depth: the compile succeeds with a warning and the branch targets the
// outermost loop's end label.
func TestBreakLevelSaturates(t *testing.T) {
	fx := lowerSource(t, "(script# 2) (procedure (p) (while 1 (break 5)))")

	assert.Equal(t, uint(1), fx.bag.TotalWarnings(), "an over-deep break warns, never errors")
	assert.False(t, fx.bag.HasErrors())

	for _, n := range fx.prog.Hunk.Nodes() {
		if n.Kind == anode.KindBranch && n.Target == nil {
			t.Fatalf("every branch must have resolved by end of lowering")
		}
	}
}
