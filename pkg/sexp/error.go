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

import "fmt"

// Span represents a contiguous slice of the original source file, as rune
// offsets rather than a substring, so that line numbers can be recovered
// cheaply on demand.
type Span struct {
	start int
	end   int
}

// NewSpan constructs a span, checking start <= end.
func NewSpan(start, end int) Span {
	if start > end {
		panic("invalid span")
	}

	return Span{start, end}
}

// Start returns the first rune offset covered by this span.
func (s Span) Start() int { return s.start }

// End returns one past the last rune offset covered by this span.
func (s Span) End() int { return s.end }

// SyntaxError is a lexical/structural error produced while reading source
// text into an SExp tree, tagged with the file and line at which it arose.
type SyntaxError struct {
	File string
	Line int
	Span Span
	Msg  string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}
