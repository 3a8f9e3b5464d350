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

// Package diag implements the five-severity diagnostic policy described for
// the compiler: Info, Warning, Error, Severe and Fatal/Panic.  It tracks the
// running error count that gates whether the cross-module class/selector
// database is allowed to be rewritten at job end.
package diag

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Severity is one of the five diagnostic levels.
type Severity int

const (
	// Info is emitted to output/listing but never aborts and never counts
	// toward the warning or error totals.
	Info Severity = iota
	// Warning is counted but never aborts; the first one in a job beeps.
	Warning
	// Error skips to the next top-level closing parenthesis, then resumes.
	Error
	// Severe is identical to Error but reserved for parser expectation failures.
	Severe
	// Fatal releases the database lock, closes the listing and exits with code 3.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Severe:
		return "severe"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is a single reported condition, tied to a source line.
type Diagnostic struct {
	Severity Severity
	File     string
	Line     int
	Message  string
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}

	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Severity, d.Message)
}

// Bag collects diagnostics for a single compile job, across all translation
// units, and decides the job's exit status.
type Bag struct {
	items      []Diagnostic
	totalInfo  uint
	totalWarn  uint
	totalError uint
	beeped     bool
	// Verbose enables Info-level logging to logrus; Warning/Error/Severe/Fatal
	// are always logged regardless.
	Verbose bool
}

// NewBag constructs an empty diagnostic bag.
func NewBag() *Bag {
	return &Bag{}
}

// Report records a diagnostic and logs it immediately. Report itself never
// unwinds, even for Fatal; Fatalf is the entry point that does.
func (b *Bag) Report(d Diagnostic) {
	b.items = append(b.items, d)

	switch d.Severity {
	case Info:
		b.totalInfo++

		if b.Verbose {
			log.WithFields(log.Fields{"file": d.File, "line": d.Line}).Info(d.Message)
		}
	case Warning:
		b.totalWarn++

		if !b.beeped {
			b.beeped = true
			fmt.Fprint(os.Stderr, "\a")
		}

		log.WithFields(log.Fields{"file": d.File, "line": d.Line}).Warn(d.Message)
	case Error, Severe:
		b.totalError++
		log.WithFields(log.Fields{"file": d.File, "line": d.Line}).Error(d.Message)
	case Fatal:
		log.WithFields(log.Fields{"file": d.File, "line": d.Line}).Error(d.Message)
	}
}

// Infof reports an Info diagnostic.
func (b *Bag) Infof(file string, line int, format string, args ...any) {
	b.Report(Diagnostic{Info, file, line, fmt.Sprintf(format, args...)})
}

// Warnf reports a Warning diagnostic.
func (b *Bag) Warnf(file string, line int, format string, args ...any) {
	b.Report(Diagnostic{Warning, file, line, fmt.Sprintf(format, args...)})
}

// Errorf reports an Error diagnostic.
func (b *Bag) Errorf(file string, line int, format string, args ...any) {
	b.Report(Diagnostic{Error, file, line, fmt.Sprintf(format, args...)})
}

// Severef reports a Severe diagnostic (parser expectation failure).
func (b *Bag) Severef(file string, line int, format string, args ...any) {
	b.Report(Diagnostic{Severe, file, line, fmt.Sprintf(format, args...)})
}

// TotalErrors returns the number of Error/Severe diagnostics reported so far.
// A non-zero count both fails the job's exit status and suppresses the
// cross-module database rewrite.
func (b *Bag) TotalErrors() uint {
	return b.totalError
}

// TotalWarnings returns the number of Warning diagnostics reported so far.
func (b *Bag) TotalWarnings() uint {
	return b.totalWarn
}

// Items returns every diagnostic reported so far, in report order.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// HasErrors is a convenience check used to gate the cross-module writer and
// determine the process exit code.
func (b *Bag) HasErrors() bool {
	return b.totalError > 0
}

// PanicError is raised by Fatal reports that must propagate via panic/recover
// so deferred cleanup (lock release, listing close) still runs. See
// pkg/driver for the top-level recover() that turns this into exit code 3.
type PanicError struct {
	Diagnostic Diagnostic
}

func (e *PanicError) Error() string {
	return e.Diagnostic.String()
}

// Fatalf reports a Fatal diagnostic and panics with a *PanicError so that
// deferred cleanup along the call stack still executes before the process
// exits. Callers at the top of the job (pkg/driver) recover it.
func (b *Bag) Fatalf(file string, line int, format string, args ...any) {
	d := Diagnostic{Fatal, file, line, fmt.Sprintf(format, args...)}
	b.Report(d)
	panic(&PanicError{d})
}
