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

// Package sexp implements the lexical tokenizer and S-expression reader for
// the compiler's source language: free-form, parenthesized text with
// symbols, numbers (optionally "%"-binary or "$"-hex prefixed), strings
// (delimited by '"' or braces), character literals (introduced by a
// backtick), and ';'-to-end-of-line comments.
package sexp

import "fmt"

// SExp is a single node of the reader's output tree: either a List of zero or
// more SExp, or one of the terminal atom kinds (Symbol, Number, Str, Char).
type SExp interface {
	// AsList returns this node as a *List if it is one, else nil.
	AsList() *List
	// AsSymbol returns this node as a *Symbol if it is one, else nil.
	AsSymbol() *Symbol
	// AsNumber returns this node as a *Number if it is one, else nil.
	AsNumber() *Number
	// AsStr returns this node as a *Str if it is one, else nil.
	AsStr() *Str
	// AsChar returns this node as a *Char if it is one, else nil.
	AsChar() *Char
	// Line returns the 1-based source line on which this node begins.
	Line() int
	// String renders this node back into (roughly) its surface syntax.
	String() string
}

// ===================================================================
// List
// ===================================================================

// List is a parenthesized (or bracketed) sequence of zero or more
// S-expressions. Bracket is true for a "[...]" form (the indexed
// variable-reference syntax "[var index]") and false for an ordinary
// "(...)" form.
type List struct {
	Elements []SExp
	Bracket  bool
	line     int
}

var _ SExp = (*List)(nil)

// NewList constructs a parenthesized list from its elements and starting line.
func NewList(elements []SExp, line int) *List {
	return &List{elements, false, line}
}

// NewBracketList constructs a bracketed "[...]" list from its elements and
// starting line.
func NewBracketList(elements []SExp, line int) *List {
	return &List{elements, true, line}
}

// AsList returns this list.
func (l *List) AsList() *List { return l }

// AsSymbol always returns nil for a list.
func (l *List) AsSymbol() *Symbol { return nil }

// AsNumber always returns nil for a list.
func (l *List) AsNumber() *Number { return nil }

// AsStr always returns nil for a list.
func (l *List) AsStr() *Str { return nil }

// AsChar always returns nil for a list.
func (l *List) AsChar() *Char { return nil }

// Line returns the line on which the list's opening parenthesis appears.
func (l *List) Line() int { return l.line }

// Len returns the number of elements in this list.
func (l *List) Len() int { return len(l.Elements) }

// Get returns the ith element of this list.
func (l *List) Get(i int) SExp { return l.Elements[i] }

// Rest returns the elements of this list following the first n.
func (l *List) Rest(n int) []SExp {
	if n >= len(l.Elements) {
		return nil
	}

	return l.Elements[n:]
}

func (l *List) String() string {
	open, close := "(", ")"
	if l.Bracket {
		open, close = "[", "]"
	}

	s := open

	for i, e := range l.Elements {
		if i != 0 {
			s += " "
		}

		s += e.String()
	}

	return s + close
}

// MatchSymbols checks whether this list has at least n elements, of which the
// first len(symbols) are symbols equal to the given strings, in order. This
// is the primary dispatch mechanism used by pkg/parsetree to recognise
// top-level forms and expression heads.
func (l *List) MatchSymbols(n int, symbols ...string) bool {
	if len(l.Elements) < n || len(symbols) > n {
		return false
	}

	for i, want := range symbols {
		sym := l.Elements[i].AsSymbol()
		if sym == nil || sym.Value != want {
			return false
		}
	}

	return true
}

// HeadSymbol returns the value of the first element if it is a symbol, and ok
// = true; otherwise ok = false.
func (l *List) HeadSymbol() (value string, ok bool) {
	if len(l.Elements) == 0 {
		return "", false
	}

	sym := l.Elements[0].AsSymbol()
	if sym == nil {
		return "", false
	}

	return sym.Value, true
}

// ===================================================================
// Symbol
// ===================================================================

// Symbol is an unquoted token: an identifier, keyword, or operator.
type Symbol struct {
	Value string
	line  int
}

var _ SExp = (*Symbol)(nil)

// NewSymbol constructs a symbol atom.
func NewSymbol(value string, line int) *Symbol {
	return &Symbol{value, line}
}

// AsList always returns nil for a symbol.
func (s *Symbol) AsList() *List { return nil }

// AsSymbol returns this symbol.
func (s *Symbol) AsSymbol() *Symbol { return s }

// AsNumber always returns nil for a symbol.
func (s *Symbol) AsNumber() *Number { return nil }

// AsStr always returns nil for a symbol.
func (s *Symbol) AsStr() *Str { return nil }

// AsChar always returns nil for a symbol.
func (s *Symbol) AsChar() *Char { return nil }

// Line returns the source line of this symbol.
func (s *Symbol) Line() int { return s.line }

func (s *Symbol) String() string { return s.Value }

// ===================================================================
// Number
// ===================================================================

// Number is a numeric literal, optionally introduced by a "%" (binary) or "$"
// (hexadecimal) prefix; otherwise decimal. Values are stored as a signed
// 32-bit host quantity, which is more than enough to hold the compiler's
// 16-bit target words while folding constant expressions at full precision.
type Number struct {
	Value int32
	Text  string
	line  int
}

var _ SExp = (*Number)(nil)

// NewNumber constructs a numeric literal atom.
func NewNumber(value int32, text string, line int) *Number {
	return &Number{value, text, line}
}

// AsList always returns nil for a number.
func (n *Number) AsList() *List { return nil }

// AsSymbol always returns nil for a number.
func (n *Number) AsSymbol() *Symbol { return nil }

// AsNumber returns this number.
func (n *Number) AsNumber() *Number { return n }

// AsStr always returns nil for a number.
func (n *Number) AsStr() *Str { return nil }

// AsChar always returns nil for a number.
func (n *Number) AsChar() *Char { return nil }

// Line returns the source line of this number.
func (n *Number) Line() int { return n.line }

func (n *Number) String() string { return n.Text }

// ===================================================================
// Str
// ===================================================================

// Str is a string literal, after escape processing (see reader.go for the
// escape rules: "_"→space, "\n \t \r \\", "\HH" hex byte, and folding of
// whitespace runs spanning a newline).
type Str struct {
	Value string
	line  int
}

var _ SExp = (*Str)(nil)

// NewStr constructs a string literal atom.
func NewStr(value string, line int) *Str {
	return &Str{value, line}
}

// AsList always returns nil for a string.
func (s *Str) AsList() *List { return nil }

// AsSymbol always returns nil for a string.
func (s *Str) AsSymbol() *Symbol { return nil }

// AsNumber always returns nil for a string.
func (s *Str) AsNumber() *Number { return nil }

// AsStr returns this string.
func (s *Str) AsStr() *Str { return s }

// AsChar always returns nil for a string.
func (s *Str) AsChar() *Char { return nil }

// Line returns the source line of this string.
func (s *Str) Line() int { return s.line }

func (s *Str) String() string { return fmt.Sprintf("%q", s.Value) }

// ===================================================================
// Char
// ===================================================================

// Char is a single-byte character atom. The reader never produces one:
// backtick character constants are read as Number atoms (see readKey).
type Char struct {
	Value byte
	line  int
}

var _ SExp = (*Char)(nil)

// NewChar constructs a character literal atom.
func NewChar(value byte, line int) *Char {
	return &Char{value, line}
}

// AsList always returns nil for a char.
func (c *Char) AsList() *List { return nil }

// AsSymbol always returns nil for a char.
func (c *Char) AsSymbol() *Symbol { return nil }

// AsNumber always returns nil for a char.
func (c *Char) AsNumber() *Number { return nil }

// AsStr always returns nil for a char.
func (c *Char) AsStr() *Str { return nil }

// AsChar returns this char.
func (c *Char) AsChar() *Char { return c }

// Line returns the source line of this char.
func (c *Char) Line() int { return c.line }

func (c *Char) String() string { return fmt.Sprintf("`%d", c.Value) }
