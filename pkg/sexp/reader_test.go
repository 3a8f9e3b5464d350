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
package sexp

import "testing"

func readAllOK(t *testing.T, src string) []SExp {
	t.Helper()

	r := NewReader("t.sc", src)

	forms, errs := r.ReadAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	return forms
}

func TestReadSimpleList(t *testing.T) {
	forms := readAllOK(t, "(foo bar 1 2)")
	if len(forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(forms))
	}

	list := forms[0].AsList()
	if list == nil {
		t.Fatalf("expected a list")
	}

	if list.Len() != 4 {
		t.Fatalf("expected 4 elements, got %d", list.Len())
	}

	if list.Bracket {
		t.Fatalf("expected a parenthesized list")
	}

	if sym, ok := list.HeadSymbol(); !ok || sym != "foo" {
		t.Fatalf("expected head symbol 'foo', got %q (ok=%v)", sym, ok)
	}

	if list.Get(2).AsNumber().Value != 1 {
		t.Fatalf("expected element 2 to be 1")
	}
}

func TestReadBracketList(t *testing.T) {
	forms := readAllOK(t, "[local 3]")

	list := forms[0].AsList()
	if list == nil || !list.Bracket {
		t.Fatalf("expected a bracketed list")
	}

	if list.String() != "[local 3]" {
		t.Fatalf("unexpected rendering: %s", list.String())
	}
}

func TestMismatchedBracketIsError(t *testing.T) {
	r := NewReader("t.sc", "(foo]")

	_, errs := r.ReadAll()
	if len(errs) == 0 {
		t.Fatalf("expected a mismatched-bracket error")
	}
}

func TestReadNumbers(t *testing.T) {
	forms := readAllOK(t, "(10 -5 %101 $ff)")
	list := forms[0].AsList()

	want := []int32{10, -5, 5, 255}
	for i, w := range want {
		n := list.Get(i).AsNumber()
		if n == nil {
			t.Fatalf("element %d is not a number", i)
		}

		if n.Value != w {
			t.Fatalf("element %d: expected %d, got %d", i, w, n.Value)
		}
	}
}

func TestReadStringEscapesAndFolding(t *testing.T) {
	forms := readAllOK(t, `("a_b\nc  d" )`)
	str := forms[0].AsList().Get(0).AsStr()

	if str == nil {
		t.Fatalf("expected a string")
	}

	if str.Value != "a b\nc d" {
		t.Fatalf("unexpected string value: %q", str.Value)
	}
}

func TestReadBraceString(t *testing.T) {
	forms := readAllOK(t, "({hello})")

	str := forms[0].AsList().Get(0).AsStr()
	if str == nil || str.Value != "hello" {
		t.Fatalf("expected brace-delimited string 'hello', got %#v", str)
	}
}

func TestReadCharConstants(t *testing.T) {
	forms := readAllOK(t, "(`^A `a)")
	list := forms[0].AsList()

	ctrl := list.Get(0).AsNumber()
	if ctrl == nil || ctrl.Value != 1 {
		t.Fatalf("expected control-A to be 1, got %#v", ctrl)
	}

	lit := list.Get(1).AsNumber()
	if lit == nil || lit.Value != int32('a') {
		t.Fatalf("expected literal char 'a' to be %d, got %#v", int32('a'), lit)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	forms := readAllOK(t, "; a comment\n(foo) ; trailing\n(bar)")
	if len(forms) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(forms))
	}
}

func TestMultipleTopLevelForms(t *testing.T) {
	forms := readAllOK(t, "(define FOO 1)\n(define BAR 2)")
	if len(forms) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(forms))
	}
}

func TestRecoveryContinuesAfterSyntaxError(t *testing.T) {
	r := NewReader("t.sc", "(foo]\n(bar baz)")

	forms, errs := r.ReadAll()
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error, got %d: %v", len(errs), errs)
	}

	if len(forms) != 1 {
		t.Fatalf("expected to recover and parse 1 form, got %d", len(forms))
	}

	if sym, ok := forms[0].AsList().HeadSymbol(); !ok || sym != "bar" {
		t.Fatalf("expected recovered form to be (bar baz), got %s", forms[0].String())
	}
}

func TestLineNumbersTrackNewlines(t *testing.T) {
	forms := readAllOK(t, "(foo)\n\n(bar)")
	if forms[1].Line() != 3 {
		t.Fatalf("expected second form on line 3, got %d", forms[1].Line())
	}
}
