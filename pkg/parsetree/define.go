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
	"strconv"

	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// DefineTable implements the `define` top-level form and the `-D NAME[=VAL]`
// command-line flag: a name bound to the rest of its source form,
// substituted wherever that name is later used as an identifier. Every body
// is kept here, numeric or not. A `define` form whose body is a single
// number additionally installs a KindDefine symbol, so lookups that go
// through the environment resolve it too; a `-D` define lives only in this
// table.
type DefineTable struct {
	byName map[string][]sexp.SExp
}

// NewDefineTable constructs an empty define table.
func NewDefineTable() *DefineTable {
	return &DefineTable{byName: make(map[string][]sexp.SExp)}
}

// Bind installs name as a macro expanding to body (the list of tokens
// remaining on the `define` line, or a single synthesized Number or Symbol
// for a `-D NAME[=VAL]` command-line define).
func (d *DefineTable) Bind(name string, body []sexp.SExp) {
	d.byName[name] = body
}

// BindCommandLine parses a `-D NAME[=VAL]` flag body: a bare NAME defines a
// macro expanding to `1`, the usual preprocessor convention, while NAME=VAL
// defines VAL verbatim (re-lexed as a number if it parses as one, else as a
// symbol).
func (d *DefineTable) BindCommandLine(spec string) {
	name, val, hasVal := cut(spec, '=')
	if !hasVal {
		d.Bind(name, []sexp.SExp{sexp.NewNumber(1, "1", 0)})
		return
	}

	if n, err := strconv.ParseInt(val, 0, 32); err == nil {
		d.Bind(name, []sexp.SExp{sexp.NewNumber(int32(n), val, 0)})
		return
	}

	d.Bind(name, []sexp.SExp{sexp.NewSymbol(val, 0)})
}

func cut(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}

	return s, "", false
}

// Lookup returns the replacement token list bound to name, and whether it
// is bound at all.
func (d *DefineTable) Lookup(name string) ([]sexp.SExp, bool) {
	body, ok := d.byName[name]
	return body, ok
}

func (p *Parser) parseDefine(list *sexp.List) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "define requires a name")
	}

	sym := list.Get(1).AsSymbol()
	if sym == nil {
		p.recover(list.Line(), diag.Severe, "define requires a name")
	}

	body := list.Rest(2)
	p.Defines.Bind(sym.Value, body)

	pn := NewPN(KindDefine, list.Line())
	pn.Text = sym.Value

	// A single-number body additionally gets a fast-path symbol so plain
	// identifier lookups resolve it without text substitution.
	if len(body) == 1 {
		if n := body[0].AsNumber(); n != nil {
			s := p.Env.InstallModule(sym.Value, symtab.KindDefine, list.Line())
			s.Num = n.Value
			pn.Val = n.Value
		}
	}

	return pn
}
