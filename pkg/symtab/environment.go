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

import "github.com/sci-compiler/scic/pkg/util/collection/stack"

// Environment is the compiler's whole symbol environment: the four
// well-known root scopes (Selectors, Classes, Globals, Module) plus a LIFO
// stack of transient scopes pushed for each procedure/method body.
type Environment struct {
	Selectors *Table
	Classes   *Table
	Globals   *Table
	Module    *Table

	active   *stack.Stack[*Table]
	inactive []*Table
}

// NewEnvironment constructs a fresh environment with empty root scopes and no
// transient scopes pushed.
func NewEnvironment() *Environment {
	return &Environment{
		Selectors: NewTable(),
		Classes:   NewTable(),
		Globals:   NewTable(),
		Module:    NewTable(),
		active:    stack.NewStack[*Table](),
	}
}

// PushScope pushes a new transient scope (e.g. a procedure or method body)
// onto the active scope stack. If retain is true the scope is kept around
// (inactive, but not discarded) after PopScope for use in a listing.
func (e *Environment) PushScope(retain bool) *Table {
	t := NewTable()
	t.Keep = retain
	e.active.Push(t)

	return t
}

// PopScope pops the innermost transient scope. If it is marked Keep, it is
// moved to the inactive list (and its node pointers cleared, since the IR it
// pointed into is about to be discarded); otherwise it is simply dropped.
func (e *Environment) PopScope() *Table {
	t := e.active.Pop()

	if t.Keep {
		t.ClearNodePointers()
		e.inactive = append(e.inactive, t)
	}

	return t
}

// CurrentScope returns the innermost transient scope, or nil if none is
// pushed.
func (e *Environment) CurrentScope() *Table {
	if e.active.IsEmpty() {
		return nil
	}

	return e.active.Peek(0)
}

// InstallLocal installs a symbol into the innermost transient scope,
// panicking if no scope is pushed — callers only ever install a local while
// compiling a procedure or method body.
func (e *Environment) InstallLocal(name string, kind Kind, line int) *Symbol {
	scope := e.CurrentScope()
	if scope == nil {
		panic("symtab: InstallLocal with no active scope")
	}

	return scope.Install(name, kind, line)
}

// InstallModule installs a symbol into the per-module root scope.
func (e *Environment) InstallModule(name string, kind Kind, line int) *Symbol {
	return e.Module.Install(name, kind, line)
}

// InstallGlobal installs a symbol into the program-wide global scope.
func (e *Environment) InstallGlobal(name string, kind Kind, line int) *Symbol {
	return e.Globals.Install(name, kind, line)
}

// InstallClass installs a symbol into the class registry's name table.
func (e *Environment) InstallClass(name string, line int) *Symbol {
	return e.Classes.Install(name, KindClass, line)
}

// InstallSelector installs a symbol into the selector name table.
func (e *Environment) InstallSelector(name string, line int) *Symbol {
	return e.Selectors.Install(name, KindSelector, line)
}

// Lookup searches, innermost scope first, the active transient scopes, then
// falls through to Module and Globals. Selectors and Classes are
// deliberately not part of this fallthrough: a bare identifier never
// implicitly resolves to a class or selector name; those two roots are only
// consulted by pkg/parsetree when a use is already known, from grammar
// context, to denote a class or selector.
func (e *Environment) Lookup(name string) *Symbol {
	for i := uint(0); i < e.active.Len(); i++ {
		if sym := e.active.Peek(i).Lookup(name); sym != nil {
			return sym
		}
	}

	if sym := e.Module.Lookup(name); sym != nil {
		return sym
	}

	return e.Globals.Lookup(name)
}

// Remove removes the named symbol from whichever active scope holds it,
// innermost first.
func (e *Environment) Remove(name string) *Symbol {
	for i := uint(0); i < e.active.Len(); i++ {
		if sym := e.active.Peek(i).Remove(name); sym != nil {
			return sym
		}
	}

	if sym := e.Module.Remove(name); sym != nil {
		return sym
	}

	return e.Globals.Remove(name)
}

// ClearAllNodePointers clears resolved/pending node pointers on every
// retained inactive scope plus every root scope. Called as each translation
// unit's IR is freed, so that symbols surviving only for a listing don't
// dangle-reference it.
func (e *Environment) ClearAllNodePointers() {
	e.Selectors.ClearNodePointers()
	e.Classes.ClearNodePointers()
	e.Globals.ClearNodePointers()
	e.Module.ClearNodePointers()

	for _, t := range e.inactive {
		t.ClearNodePointers()
	}
}

// ResetModule discards the per-module root scope and any inactive retained
// scopes, preparing the environment for the next translation unit while
// keeping the program-wide Globals, Classes, and Selectors tables intact.
func (e *Environment) ResetModule() {
	e.Module = NewTable()
	e.inactive = nil
}
