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
package parsetree

import (
	"testing"

	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

func newTestParser(t *testing.T) (*Parser, *diag.Bag) {
	t.Helper()

	bag := diag.NewBag()
	env := symtab.NewEnvironment()
	class := classreg.NewRegistry()
	sel := classreg.NewSelectorTable()

	return NewParser("test.sc", env, class, sel, bag), bag
}

func parseSingleExpr(t *testing.T, p *Parser, src string) *PN {
	t.Helper()

	r := sexp.NewReader("test.sc", src)

	forms, errs := r.ReadAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected tokenizer errors: %v", errs)
	}

	if len(forms) != 1 {
		t.Fatalf("expected exactly one form, got %d", len(forms))
	}

	return p.parseExpr(forms[0])
}

// TestConstantFoldingNestedArithmetic: "(+ 1 2 (* 3 4) 5)" folds to a
// single literal 20 at parse time, entirely independent of lowering.
func TestConstantFoldingNestedArithmetic(t *testing.T) {
	p, bag := newTestParser(t)

	pn := parseSingleExpr(t, p, "(+ 1 2 (* 3 4) 5)")

	if pn.Kind != KindNum {
		t.Fatalf("expected a folded KindNum, got kind %v", pn.Kind)
	}

	if pn.Val != 20 {
		t.Fatalf("expected folded value 20, got %d", pn.Val)
	}

	if bag.HasErrors() {
		t.Fatalf("unexpected errors folding a pure-constant expression")
	}
}

// TestConstantFoldingStopsAtNonLiteral ensures a mixed constant/variable
// operand list is left as an operator node rather than partially folded —
// foldNary requires every operand to already be a KindNum.
func TestConstantFoldingStopsAtNonLiteral(t *testing.T) {
	p, _ := newTestParser(t)

	pn := parseSingleExpr(t, p, "(+ 1 x)")

	if pn.Kind != KindNary {
		t.Fatalf("expected an unfolded KindNary node, got kind %v", pn.Kind)
	}

	if len(pn.Children) != 2 {
		t.Fatalf("expected 2 operands preserved, got %d", len(pn.Children))
	}
}

// TestConstantFoldingDivisionByZeroReportsNotFolds: division by zero is
// reported, not folded — the parser unwinds via its top-level recovery
// mechanism and the bag records an Error.
func TestConstantFoldingDivisionByZeroReportsNotFolds(t *testing.T) {
	p, bag := newTestParser(t)

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(*diag.RecoveryError); !ok {
					t.Fatalf("expected a *diag.RecoveryError panic, got %v", r)
				}
			}
		}()

		parseSingleExpr(t, p, "(/ 1 0)")
	}()

	if !bag.HasErrors() {
		t.Fatalf("expected division by zero to be reported as an error")
	}
}

// TestParseUnitRecoversAfterTopLevelError: a malformed form does not
// prevent the next well-formed top-level form from parsing.
func TestParseUnitRecoversAfterTopLevelError(t *testing.T) {
	p, bag := newTestParser(t)

	r := sexp.NewReader("test.sc", `(globaldecl 1 2) (script# 7)`)

	forms, errs := r.ReadAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected tokenizer errors: %v", errs)
	}

	units := p.ParseUnit(forms)

	if !bag.HasErrors() {
		t.Fatalf("expected the malformed globaldecl to report an error")
	}

	if p.Script != 7 {
		t.Fatalf("expected script# 7 to still be parsed after recovery, got %d", p.Script)
	}

	foundScriptNum := false

	for _, u := range units {
		if u.Kind == KindScriptNum {
			foundScriptNum = true
		}
	}

	if !foundScriptNum {
		t.Fatalf("expected the script# unit to survive recovery")
	}
}

// TestParseGlobalHonorsExplicitNumbers: a `global` declaration is a flat
// name/number sequence whose explicit number is the variable's slot, with an
// optional `= init` following it — the declared numbers survive verbatim,
// even when non-contiguous.
func TestParseGlobalHonorsExplicitNumbers(t *testing.T) {
	p, bag := newTestParser(t)

	r := sexp.NewReader("test.sc", "(global ego 10 speed 20 = 5)")

	forms, errs := r.ReadAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected tokenizer errors: %v", errs)
	}

	units := p.ParseUnit(forms)

	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}

	if len(units) != 1 || len(units[0].Children) != 2 {
		t.Fatalf("expected one global form with two entries, got %#v", units)
	}

	ego, speed := units[0].Children[0], units[0].Children[1]

	if ego.Val != 10 || speed.Val != 20 {
		t.Fatalf("expected declared variable numbers 10 and 20, got %d and %d", ego.Val, speed.Val)
	}

	if len(speed.Children) != 1 || speed.Children[0].Kind != KindNum || speed.Children[0].Val != 5 {
		t.Fatalf("expected speed's initializer to parse as the literal 5, got %#v", speed.Children)
	}

	sym := p.Env.Globals.Lookup("ego")
	if sym == nil || sym.Offset != 10 {
		t.Fatalf("expected ego installed in the global scope at slot 10, got %#v", sym)
	}
}

// TestSelectorAutoAllocation: an unknown selector name used in message
// position is auto-allocated at the lowest clear bit of the selector bitmap
// and installed in the environment.
func TestSelectorAutoAllocation(t *testing.T) {
	p, _ := newTestParser(t)

	if p.Env.Selectors.Lookup("frobnicate") != nil {
		t.Fatalf("frobnicate should not be pre-registered")
	}

	r := sexp.NewReader("test.sc", "frobnicate")

	forms, _ := r.ReadAll()

	got := p.selectorName(forms[0].AsSymbol(), 1)
	if got != "frobnicate" {
		t.Fatalf("expected selectorName to return the selector's own name, got %q", got)
	}

	installed := p.Env.Selectors.Lookup("frobnicate")
	if installed == nil {
		t.Fatalf("expected frobnicate to be auto-installed in the selector scope")
	}

	if installed.Kind != symtab.KindSelector {
		t.Fatalf("expected a selector-kind symbol, got %v", installed.Kind)
	}

	if installed.Num != 0 {
		t.Fatalf("expected the lowest clear bit 0 to be claimed on a fresh table, got %d", installed.Num)
	}
}
