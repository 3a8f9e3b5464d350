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
package symtab

// Table is a flat collection of Symbols, keyed by name: install-or-fetch,
// lookup, remove, and iteration in insertion order (needed so a listing or a
// classdef walk sees symbols in the order they were declared).
type Table struct {
	byName map[string]*Symbol
	order  []*Symbol
	// Keep marks this table as needed for a listing even after it goes out
	// of scope.
	Keep bool
}

// NewTable constructs an empty symbol table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Install adds a new Symbol of the given name/kind to this table and returns
// it. If a symbol of that name already exists, it is replaced (callers are
// expected to check Lookup first when redeclaration should be diagnosed).
func (t *Table) Install(name string, kind Kind, line int) *Symbol {
	sym := &Symbol{Name: name, Kind: kind, Line: line}
	if old, exists := t.byName[name]; exists {
		for i, s := range t.order {
			if s == old {
				t.order[i] = sym
				break
			}
		}
	} else {
		t.order = append(t.order, sym)
	}

	t.byName[name] = sym

	return sym
}

// Lookup returns the symbol with the given name, or nil if none exists in
// this table.
func (t *Table) Lookup(name string) *Symbol {
	return t.byName[name]
}

// Remove removes and returns the symbol with the given name, or nil if none
// exists.
func (t *Table) Remove(name string) *Symbol {
	sym, ok := t.byName[name]
	if !ok {
		return nil
	}

	delete(t.byName, name)

	for i, s := range t.order {
		if s == sym {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	return sym
}

// Delete removes the symbol with the given name, reporting whether it was
// present.
func (t *Table) Delete(name string) bool {
	return t.Remove(name) != nil
}

// Symbols returns every symbol in this table, in declaration order.
func (t *Table) Symbols() []*Symbol {
	return t.order
}

// ClearNodePointers clears the resolved/pending node pointers on every
// symbol in this table.
func (t *Table) ClearNodePointers() {
	for _, s := range t.order {
		s.ClearNodePointers()
	}
}
