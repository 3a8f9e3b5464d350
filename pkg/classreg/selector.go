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

// Package classreg implements the class and selector registry: an 8192-entry
// selector-number bitmap with lowest-clear-bit allocation, a 512-slot
// persistent class table, selector inheritance by shallow copy with
// local-method demotion, property-offset assignment, and differential
// classdef serialization (only what differs from the superclass is written
// out).
package classreg

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MaxSelector is one past the highest legal selector number, i.e. the
// bitmap's size.
const MaxSelector = 8192

// Well-known root selector numbers every class inherits from RootObj.
const (
	SelObjID       = 0x1000
	SelSize        = 0x1001
	SelPropDict    = 0x1002
	SelMethDict    = 0x1003
	SelClassScript = 0x1004
	SelScript      = 0x1005
	SelSuper       = 0x1006
	SelInfo        = 0x1007
)

// ClassBit marks the -info- word of a class (as opposed to an instance,
// which clears it).
const ClassBit uint16 = 0x8000

// SelectorTable is the program-wide selector-number bitmap: allocated
// selector numbers have their bit set.
type SelectorTable struct {
	bits *bitset.BitSet
	max  uint

	// Dirty records that a new selector name was observed this job: set only
	// by Allocate, the on-demand path a previously-unknown selector name
	// takes, never by Claim, which is how a fresh table is seeded from an
	// existing on-disk selector file.
	Dirty bool
}

// NewSelectorTable constructs an empty selector-number bitmap.
func NewSelectorTable() *SelectorTable {
	return &SelectorTable{bits: bitset.New(MaxSelector)}
}

// Claim marks selector number n as allocated. It panics if n is out of
// range; a selector file naming a number past the bitmap is corrupt beyond
// recovery.
func (t *SelectorTable) Claim(n uint16) {
	if uint(n) >= MaxSelector {
		panic(fmt.Sprintf("classreg: attempt to claim illegal selector %d", n))
	}

	t.bits.Set(uint(n))

	if uint(n) > t.max {
		t.max = uint(n)
	}
}

// Allocate claims and returns the lowest unclaimed selector number — the
// on-demand path taken when an identifier used as a selector has never been
// seen before. Panics once the bitmap is exhausted.
func (t *SelectorTable) Allocate() uint16 {
	n, ok := t.bits.NextClear(0)
	if !ok || n >= MaxSelector {
		panic("classreg: out of selector numbers")
	}

	t.bits.Set(n)

	if n > t.max {
		t.max = n
	}

	t.Dirty = true

	return uint16(n)
}

// Max returns the highest selector number claimed so far.
func (t *SelectorTable) Max() uint16 { return uint16(t.max) }

// Tag classifies a Selector entry: the low bits name a kind, and the
// property bit (0x80) marks anything whose value lives inline in the object
// template rather than as code.
type Tag uint8

const tagProperty Tag = 0x80

const (
	TagProp     Tag = 0 | tagProperty // value is the property's initial value
	TagText     Tag = 1 | tagProperty // value is an offset into the string pool
	TagLocal    Tag = 2               // method defined by this object itself
	TagMethod   Tag = 3               // inherited (non-local) method
	TagMeta     Tag = 4 | tagProperty
	TagPropDict Tag = 5 | tagProperty
	TagMethDict Tag = 6 | tagProperty
)

// IsProperty reports whether this tag denotes a property (its value is
// data, not method code).
func (t Tag) IsProperty() bool { return t&tagProperty != 0 }

// IsMethod reports whether this tag denotes a method.
func (t Tag) IsMethod() bool { return !t.IsProperty() }

// Selector is one entry of an object or class's selector list: a (name,
// number, value, tag) tuple, plus either a property offset or a pointer to
// the method's IR node. MethodNode is an opaque `any` so this package has no
// dependency on pkg/anode; the lowering stage is what actually stores a node
// there. Str carries a text-tagged property's initial string, interned into
// the translation unit's text pool at lowering time.
type Selector struct {
	Name       string
	Number     uint16
	Value      int32
	Tag        Tag
	Offset     int32  // valid when Tag.IsProperty()
	Str        string // valid when Tag == TagText
	MethodNode any    // valid when Tag == TagLocal
}
