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

// This file implements the backpatch engine: every backpatchable node
// (branch, call, dispatch/method-dict entry) holds either a resolved Target
// or, until one exists, is linked onto the head of its target symbol's
// forward-reference chain (symtab.Symbol.pending). When the symbol is
// finally defined, Backpatch walks that chain once, pointing each waiting
// node's Target at the definition and following the chain's next link — an
// in-place pointer swing, reusing the chain's own storage rather than
// building a second structure.
package anode

import "github.com/sci-compiler/scic/pkg/symtab"

// Use registers n as a forward reference to sym: if sym is already defined,
// n.Target is resolved immediately; otherwise n is linked onto sym's pending
// chain to be resolved later by Backpatch. Either way the referenced symbol
// is recorded on the node, so a reference still unresolved at emit time can
// be reported by name.
func Use(sym *symtab.Symbol, n *Node) {
	if n.Sym == nil {
		n.Sym = sym
	}

	if sym.IsDefined() {
		n.Target = sym.Resolved().(*Node)
		return
	}

	sym.AddPending(n)
}

// Define installs target as sym's definition and backpatches every node
// that was waiting on it.
func Define(sym *symtab.Symbol, target *Node) {
	chain := sym.Define(target)
	Backpatch(target, chain)
}

// Backpatch walks the forward-reference chain rooted at chain (as returned
// by symtab.Symbol.Define), setting each node's Target to target. The chain
// is consumed in place: nextPending links are not cleared since the nodes
// themselves are never reused as chain members again once resolved.
func Backpatch(target *Node, chain symtab.Node) {
	for chain != nil {
		n := chain.(*Node)
		n.Target = target
		chain = n.NextPending()
	}
}

// MakeLabel emits a KindLabel node at the current end of stream, binds it as
// sym's definition, backpatches every pending use, and returns the label
// node. Synthetic, anonymous label symbols used for branch targets follow
// the identical protocol real procedure/object symbols do.
func MakeLabel(sym *symtab.Symbol, stream *Stream) *Node {
	lbl := stream.Append(&Node{Kind: KindLabel, Text: sym.Name})
	Define(sym, lbl)

	return lbl
}

// NewLabelSymbol installs a fresh, anonymous label symbol in the given
// table — used for the synthetic end/start/continue labels that short
// circuit evaluation, loops, and conditionals all need, none of which the
// source program ever names directly.
func NewLabelSymbol(scope *symtab.Table, hint string, line int) *symtab.Symbol {
	// Anonymous labels never collide by name since each gets a distinct
	// scope-local counter suffix; the label's Name is cosmetic (used only by
	// List()/diagnostics), never looked up by the parser.
	name := hint
	for i := 0; scope.Lookup(name) != nil; i++ {
		name = hint + itoa(i)
	}

	return scope.Install(name, symtab.KindLabel, line)
}

// UnresolvedReferences returns every node in prog whose reference never
// resolved: a call to a procedure never defined, a dispatch entry naming a
// missing export, an address load of an object never lowered. An undefined
// reference is not an error until now — forward references are the normal
// state of affairs all the way through lowering — so this is checked only
// once offsets are final, just before emission.
func UnresolvedReferences(prog *Program) []*Node {
	var out []*Node

	for _, s := range []*Stream{prog.Heap, prog.Hunk} {
		for _, n := range s.Nodes() {
			if n.Target != nil {
				continue
			}

			switch n.Kind {
			case KindBranch, KindDispatchEntry:
				out = append(out, n)
			case KindCall, KindEA:
				// A calle is self-contained and a string-literal address load
				// resolves at creation; only a node that went through Use has
				// a referenced symbol to be missing.
				if n.Sym != nil {
					out = append(out, n)
				}
			}
		}
	}

	return out
}

func itoa(i int) string {
	if i == 0 {
		return "#0"
	}

	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}

	return "#" + string(digits)
}
