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
package classreg

import "testing"

func TestSelectorAllocateLowestClearBit(t *testing.T) {
	st := NewSelectorTable()
	st.Claim(0)
	st.Claim(1)

	n := st.Allocate()
	if n != 2 {
		t.Fatalf("expected lowest clear bit 2, got %d", n)
	}

	if st.Max() != 2 {
		t.Fatalf("expected max selector 2, got %d", st.Max())
	}
}

func TestSelectorAllocateFillsGap(t *testing.T) {
	st := NewSelectorTable()
	for i := uint16(0); i < 5; i++ {
		st.Claim(i)
	}

	st.bits.Clear(3)

	n := st.Allocate()
	if n != 3 {
		t.Fatalf("expected to reclaim freed bit 3, got %d", n)
	}
}

func TestNewRegistryRootObjHasWellKnownSelectors(t *testing.T) {
	r := NewRegistry()

	info := r.RootObj.FindSelector(SelInfo)
	if info == nil {
		t.Fatalf("expected RootObj to have -info- selector")
	}

	if info.Value != int32(ClassBit) {
		t.Fatalf("expected -info- to carry CLASSBIT, got %#x", info.Value)
	}

	if r.RootObj.NumProps != 8 {
		t.Fatalf("expected all 8 well-known root selectors to count as properties, got %d", r.RootObj.NumProps)
	}
}

func TestDupSelectorsDemotesLocalToMethod(t *testing.T) {
	r := NewRegistry()

	base := r.NewClass("Base", r.RootObj)
	base.AddSelector("doit", 100, TagLocal)

	derived := r.NewClass("Derived", base)

	sel := derived.FindSelector(100)
	if sel == nil {
		t.Fatalf("expected derived class to inherit 'doit'")
	}

	if sel.Tag != TagMethod {
		t.Fatalf("expected inherited local method to be demoted to TagMethod, got %v", sel.Tag)
	}

	if base.FindSelector(100).Tag != TagLocal {
		t.Fatalf("expected base class's own selector to remain TagLocal")
	}
}

func TestAllocateClassNumberFillsLowestFreeSlot(t *testing.T) {
	r := NewRegistry()
	a := r.NewClass("A", r.RootObj)
	b := r.NewClass("B", r.RootObj)

	if got := r.AllocateClassNumber(a); got != 0 {
		t.Fatalf("expected first class number 0, got %d", got)
	}

	if err := r.DefineClass(b, 0); err == nil {
		t.Fatalf("expected collision error when defining at an occupied slot")
	}

	if got := r.AllocateClassNumber(b); got != 1 {
		t.Fatalf("expected second class number 1, got %d", got)
	}
}

func TestSelectorDiffersTracksOverriddenPropertyValue(t *testing.T) {
	r := NewRegistry()
	base := r.NewClass("Base", r.RootObj)
	base.AddSelector("amount", 200, TagProp).Value = 5

	derived := r.NewClass("Derived", base)
	derived.FindSelector(200).Value = 9

	baseSel := base.FindSelector(200)
	if !derived.SelectorDiffers(baseSel) {
		t.Fatalf("expected overridden property value to differ from superclass")
	}

	unchanged := r.NewClass("Unchanged", base)
	if unchanged.SelectorDiffers(baseSel) {
		t.Fatalf("expected unmodified inherited property to not differ from superclass")
	}
}

func TestPropTagBitClassifiesCorrectly(t *testing.T) {
	if !TagProp.IsProperty() || TagProp.IsMethod() {
		t.Fatalf("TagProp should be a property, not a method")
	}

	if TagMethod.IsProperty() || !TagMethod.IsMethod() {
		t.Fatalf("TagMethod should be a method, not a property")
	}

	if !TagMethDict.IsProperty() {
		t.Fatalf("TagMethDict carries the PROPERTY bit (its value is an offset)")
	}
}
