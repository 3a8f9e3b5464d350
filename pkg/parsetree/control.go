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
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/sexp"
)

func (p *Parser) parseBody(forms []sexp.SExp) []*PN {
	out := make([]*PN, 0, len(forms))
	for _, f := range forms {
		out = append(out, p.parseExpr(f))
	}

	return out
}

// parseIf parses `(if cond then [else])`.
func (p *Parser) parseIf(list *sexp.List) *PN {
	if list.Len() < 3 {
		p.recover(list.Line(), diag.Severe, "if requires a condition and a consequent")
	}

	n := NewPN(KindIf, list.Line())
	n.Add(p.parseExpr(list.Get(1)))
	n.Add(p.parseExpr(list.Get(2)))

	if list.Len() > 3 {
		n.Add(p.parseExpr(list.Get(3)))
	}

	return n
}

// parseCond parses `(cond (test body*)* (else body*)?)`, preserving the
// exact test/[body] interleaving: a clause with a test but no body —
// including a final bodyless clause, which lowering emits specially — is
// represented distinctly from one with a body, rather than defaulting a
// missing body to a synthetic empty Elist that would erase the distinction
// lowering (pkg/anode) needs.
func (p *Parser) parseCond(list *sexp.List) *PN {
	n := NewPN(KindCond, list.Line())

	for _, clauseExp := range list.Rest(1) {
		clauseList := clauseExp.AsList()
		if clauseList == nil || clauseList.Len() == 0 {
			continue
		}

		clause := NewPN(KindElist, clauseList.Line())

		if symNode := clauseList.Get(0).AsSymbol(); symNode != nil && symNode.Value == "else" {
			clause.Text = "else"
		} else {
			clause.Add(p.parseExpr(clauseList.Get(0)))
		}

		if clauseList.Len() > 1 {
			body := NewPN(KindElist, clauseList.Line())
			body.Add(p.parseBody(clauseList.Rest(1))...)
			clause.Add(body)
		}

		n.Add(clause)
	}

	return n
}

// parseSwitch parses `(switch value clause*)`, each clause `(test body*)` or
// `(else body*)`, and `(switchto value clause*)`, whose clauses are plain
// bodies tested against their own 0-based position.
func (p *Parser) parseSwitch(list *sexp.List, to bool) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "switch requires a value")
	}

	kind := KindSwitch
	if to {
		kind = KindSwitchTo
	}

	n := NewPN(kind, list.Line())
	n.Add(p.parseExpr(list.Get(1)))

	for i, clauseExp := range list.Rest(2) {
		clauseList := clauseExp.AsList()
		if clauseList == nil || clauseList.Len() == 0 {
			continue
		}

		clause := NewPN(KindElist, clauseList.Line())

		switch {
		case to:
			test := NewPN(KindNum, clauseList.Line())
			test.Val = int32(i)
			clause.Add(test)
		default:
			if symNode := clauseList.Get(0).AsSymbol(); symNode != nil && symNode.Value == "else" {
				clause.Text = "else"
			} else {
				clause.Add(p.parseExpr(clauseList.Get(0)))
			}
		}

		body := NewPN(KindElist, clauseList.Line())

		if to {
			body.Add(p.parseBody(clauseList.Elements)...)
		} else {
			body.Add(p.parseBody(clauseList.Rest(1))...)
		}

		clause.Add(body)
		n.Add(clause)
	}

	return n
}

func (p *Parser) parseWhile(list *sexp.List) *PN {
	if list.Len() < 2 {
		p.recover(list.Line(), diag.Severe, "while requires a condition")
	}

	n := NewPN(KindWhile, list.Line())
	n.Add(p.parseExpr(list.Get(1)))

	p.loopDepth++
	n.Add(p.parseBody(list.Rest(2))...)
	p.loopDepth--

	return n
}

func (p *Parser) parseRepeat(list *sexp.List) *PN {
	n := NewPN(KindRepeat, list.Line())

	p.loopDepth++
	n.Add(p.parseBody(list.Rest(1))...)
	p.loopDepth--

	return n
}

// parseFor parses `(for (init) cond (step) body*)`.
func (p *Parser) parseFor(list *sexp.List) *PN {
	if list.Len() < 4 {
		p.recover(list.Line(), diag.Severe, "for requires (init) cond (step)")
	}

	initList := list.Get(1).AsList()
	stepList := list.Get(3).AsList()

	if initList == nil || stepList == nil {
		p.recover(list.Line(), diag.Severe, "for requires parenthesized init and step lists")
	}

	n := NewPN(KindFor, list.Line())

	init := NewPN(KindElist, initList.Line())
	init.Add(p.parseBody(initList.Elements)...)
	n.Add(init)

	n.Add(p.parseExpr(list.Get(2)))

	step := NewPN(KindElist, stepList.Line())
	step.Add(p.parseBody(stepList.Elements)...)
	n.Add(step)

	p.loopDepth++
	body := NewPN(KindElist, list.Line())
	body.Add(p.parseBody(list.Rest(4))...)
	n.Add(body)
	p.loopDepth--

	return n
}
