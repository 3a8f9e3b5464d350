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

import "fmt"

// MaxClasses is the size of the persistent class table.
const MaxClasses = 512

// ObjectNum is the class number recorded for a plain object instance, which
// has no class number of its own.
const ObjectNum = -1

// Object is a class or object instance: a name, its selector list in
// declaration order, and the bookkeeping the emitter and cross-module
// writer need (script/module number, file name, property count).
type Object struct {
	Name      string
	Num       int // class number, or ObjectNum for a plain instance
	Super     int // superclass number, or -1 for RootObj
	Script    int // module number this was defined in
	File      string
	NumProps  int
	selectors []*Selector
	byNumber  map[uint16]*Selector
}

func newObject(name string) *Object {
	return &Object{Name: name, Super: -1, byNumber: make(map[uint16]*Selector)}
}

// FindSelector returns the selector entry for the given selector number, or
// nil.
func (o *Object) FindSelector(number uint16) *Selector {
	return o.byNumber[number]
}

// Selectors returns this object's selector list in declaration order.
func (o *Object) Selectors() []*Selector { return o.selectors }

// AddSelector appends a new selector entry with the given tag,
// special-casing the two dictionary-offset selectors to their fixed tags
// regardless of what the caller asked for, and assigning the next property
// offset when the tag denotes a property.
func (o *Object) AddSelector(name string, number uint16, tag Tag) *Selector {
	switch number {
	case SelMethDict:
		tag = TagMethDict
	case SelPropDict:
		tag = TagPropDict
	}

	sn := &Selector{Name: name, Number: number, Tag: tag}

	if tag.IsProperty() {
		sn.Offset = int32(2 * o.NumProps)
		o.NumProps++
	}

	o.selectors = append(o.selectors, sn)
	o.byNumber[number] = sn

	return sn
}

// DupSelectors copies every selector of super into o, demoting any locally-
// defined method (TagLocal) to an inherited one (TagMethod) since the
// method body itself is not copied — only the dispatch entry is.
func (o *Object) DupSelectors(super *Object) {
	for _, sn := range super.selectors {
		dup := *sn
		if dup.Tag == TagLocal {
			dup.Tag = TagMethod
		}

		o.selectors = append(o.selectors, &dup)
		o.byNumber[dup.Number] = &dup
	}

	o.NumProps = super.NumProps
}

// SelectorDiffers reports whether tp is absent from o's selector list, is a
// locally defined method (TagLocal), or is a property whose value differs
// from o's own copy. Classdef serialization
// (pkg/crossmod) calls this on the superclass with each subclass selector to
// write out only what changed.
func (o *Object) SelectorDiffers(tp *Selector) bool {
	stp := o.FindSelector(tp.Number)
	if stp == nil {
		return true
	}

	if tp.Tag == TagLocal {
		return true
	}

	if tp.Tag.IsProperty() && tp.Value != stp.Value {
		return true
	}

	return false
}

// Registry is the program-wide class table: a 512-slot array indexed by
// class number.
type Registry struct {
	classes     [MaxClasses]*Object
	maxClassNum int
	RootObj     *Object

	// Dirty records that a class was added or changed this job: pkg/driver
	// checks it at job end to decide whether the classtbl/classdef/classes
	// manifests need regenerating. Reloading a class from an existing
	// classdef file (DefineClass, via pkg/crossmod's loader) does not set it;
	// allocating a fresh class number (AllocateClassNumber) or replacing a
	// loaded class with a recompiled one (Redefine) during this job does.
	Dirty bool
}

// NewRegistry constructs a registry with RootObj installed as the hierarchy
// root and the eight well-known selectors added to it.
func NewRegistry() *Registry {
	r := &Registry{maxClassNum: -1}

	root := newObject("RootObj")
	root.Num = -1
	root.Script = -1

	root.AddSelector("-objID-", SelObjID, TagProp).Value = 0x1234
	root.AddSelector("-size-", SelSize, TagProp)
	root.AddSelector("-propDict-", SelPropDict, TagPropDict)
	root.AddSelector("-methDict-", SelMethDict, TagMethDict)
	root.AddSelector("-classScript-", SelClassScript, TagProp).Value = 0
	root.AddSelector("-script-", SelScript, TagProp)
	root.AddSelector("-super-", SelSuper, TagProp).Value = -1
	root.AddSelector("-info-", SelInfo, TagProp).Value = int32(ClassBit)

	r.RootObj = root

	return r
}

// NewClass allocates a fresh class as a child of super, duplicating super's
// selectors verbatim, then fixing up the two fields that must name *this*
// superclass rather than whatever DupSelectors copied from it: the
// Object-level Super bookkeeping field, and the inherited `-super-`
// selector's value, which must hold super's own class number rather than the
// value DupSelectors copied verbatim (super's *own* superclass number).
func (r *Registry) NewClass(name string, super *Object) *Object {
	c := newObject(name)
	c.DupSelectors(super)
	c.Super = super.Num

	if sel := c.FindSelector(SelSuper); sel != nil {
		sel.Value = int32(super.Num)
	}

	return c
}

// DefineClass registers class at the given, already-known class number — the
// path the classdef loader takes to re-create a prior job's exact numbering.
// Returns an error if the slot is already occupied.
func (r *Registry) DefineClass(class *Object, num int) error {
	if num < 0 || num >= MaxClasses {
		return fmt.Errorf("class number %d out of range", num)
	}

	if r.classes[num] != nil {
		return fmt.Errorf("%s is already class #%d", r.classes[num].Name, num)
	}

	class.Num = num
	r.classes[num] = class

	if num > r.maxClassNum {
		r.maxClassNum = num
	}

	return nil
}

// AllocateClassNumber reserves the first free class number for class,
// panicking once the table is exhausted.
func (r *Registry) AllocateClassNumber(class *Object) int {
	for i := 0; i < MaxClasses; i++ {
		if r.classes[i] == nil {
			r.classes[i] = class
			class.Num = i

			if i > r.maxClassNum {
				r.maxClassNum = i
			}

			r.Dirty = true

			return i
		}
	}

	panic(fmt.Sprintf("classreg: out of class numbers (max is %d)", MaxClasses))
}

// FindClassByName returns the registered class with the given name, or nil.
func (r *Registry) FindClassByName(name string) *Object {
	for _, c := range r.classes {
		if c != nil && c.Name == name {
			return c
		}
	}

	return nil
}

// Redefine replaces prev's registration with class, keeping prev's class
// number — the path a recompiled class takes so its number survives across
// jobs. A superclass change invalidates every persisted subclass layout, so
// it is an error the caller must treat as fatal.
func (r *Registry) Redefine(prev, class *Object) error {
	if prev.Super != class.Super {
		return fmt.Errorf("%s: superclass changed from #%d to #%d; class database must be rebuilt",
			class.Name, prev.Super, class.Super)
	}

	class.Num = prev.Num
	r.classes[prev.Num] = class
	r.Dirty = true

	return nil
}

// FindClass returns the class registered under class number n, or nil.
func (r *Registry) FindClass(n int) *Object {
	if n < 0 || n >= MaxClasses {
		return nil
	}

	return r.classes[n]
}

// MaxClassNum returns the highest class number allocated so far, or -1 if
// none has been.
func (r *Registry) MaxClassNum() int { return r.maxClassNum }

// Classes returns every registered class in ascending class-number order,
// skipping empty slots.
func (r *Registry) Classes() []*Object {
	var out []*Object

	for _, c := range r.classes {
		if c != nil {
			out = append(out, c)
		}
	}

	return out
}
