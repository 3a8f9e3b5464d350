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

// Package driver implements the per-job orchestration: a sequential loop
// over translation units sharing one symbol environment and class/selector
// registry, each unit independently tokenized, parsed, lowered, optimized
// and emitted, followed by a cross-module write at job end (suppressed if
// any unit reported an Error/Severe diagnostic).
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/sci-compiler/scic/pkg/anode"
	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/crossmod"
	"github.com/sci-compiler/scic/pkg/diag"
	"github.com/sci-compiler/scic/pkg/emit"
	"github.com/sci-compiler/scic/pkg/optimize"
	"github.com/sci-compiler/scic/pkg/parsetree"
	"github.com/sci-compiler/scic/pkg/sexp"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitErrors  = 1
	ExitFatal   = 3
)

// Cross-module database filenames, shared across jobs via the directory
// lock.
const (
	selectorFile = "selector"
	classdefFile = "classdef"
	classesFile  = "classes"
	classtblFile = "CLASSTBL.voc"
	selectorVoc  = "SELECTOR.voc"
	propofsVoc   = "PROPOFS.voc"
)

// Config bundles every CLI flag that shapes job behavior.
type Config struct {
	AbortOnLock          bool     // -a
	DebugLines           bool     // -d
	Defines              []string // -D NAME[=VAL], repeatable
	MaxVars              int      // -g N, default 750
	EmitListing          bool     // -l
	NoAutoName           bool     // -n
	OutDir               string   // -o DIR
	EmitOffsetsVocab     bool     // -O
	WarnForwardSelectors bool     // -s
	SkipLocking          bool     // -u
	Verbose              bool     // -v
	BigEndian            bool     // -w
	NoShrink             bool     // -z
}

// DefaultConfig returns the CLI flag defaults.
func DefaultConfig() Config {
	return Config{MaxVars: 750, OutDir: "."}
}

// Job is one invocation of the compiler: a shared symbol environment,
// class/selector registry and diagnostic bag spanning every translation
// unit named on the command line, plus the cross-module database lock held
// for the job's duration.
type Job struct {
	Cfg   Config
	Env   *symtab.Environment
	Class *classreg.Registry
	Sel   *classreg.SelectorTable
	Diag  *diag.Bag

	lock *DatabaseLock
}

// NewJob constructs a job, seeding the class/selector registry from the
// on-disk database in cfg.OutDir if one exists.
func NewJob(cfg Config) (*Job, error) {
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}

	j := &Job{
		Cfg:   cfg,
		Env:   symtab.NewEnvironment(),
		Class: classreg.NewRegistry(),
		Sel:   classreg.NewSelectorTable(),
		Diag:  diag.NewBag(),
	}
	j.Diag.Verbose = cfg.Verbose

	if err := j.loadDatabase(); err != nil {
		return nil, err
	}

	// A freshly loaded database is not itself a reason to rewrite it; only
	// new allocations made *during* this job should trip the dirty flags.
	j.Sel.Dirty = false
	j.Class.Dirty = false

	return j, nil
}

func (j *Job) loadDatabase() error {
	selPath := filepath.Join(j.Cfg.OutDir, selectorFile)
	if data, err := os.ReadFile(selPath); err == nil {
		if err := crossmod.LoadSelectorSource(string(data), j.Env, j.Sel); err != nil {
			return fmt.Errorf("driver: loading %s: %w", selPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("driver: reading %s: %w", selPath, err)
	}

	defPath := filepath.Join(j.Cfg.OutDir, classdefFile)
	if data, err := os.ReadFile(defPath); err == nil {
		if err := crossmod.LoadClassDef(string(data), j.Class, j.Env); err != nil {
			return fmt.Errorf("driver: loading %s: %w", defPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("driver: reading %s: %w", defPath, err)
	}

	// Classes reloaded from the database become visible to the parser as
	// superclass names, exactly as if their defining unit had already been
	// compiled this job.
	for _, c := range j.Class.Classes() {
		sym := j.Env.InstallClass(c.Name, 0)
		sym.Extra = c
	}

	return nil
}

// readSource loads one translation unit's text. A missing or unreadable
// file is an Error against the job, not a Fatal: remaining units still
// compile.
func (j *Job) readSource(file string) (string, bool) {
	data, err := os.ReadFile(file)
	if err != nil {
		j.Diag.Errorf(file, 0, "cannot open: %v", err)
		return "", false
	}

	return string(data), true
}

// Run compiles every named file in command-line order, sharing this job's
// environment and registries, then writes the cross-module database if
// warranted. It recovers a *diag.PanicError raised by any Fatal diagnostic,
// releasing the lock before translating it into exit code 3.
func (j *Job) Run(files []string) (code int) {
	lock, err := AcquireLock(j.Cfg.OutDir, j.Cfg.AbortOnLock, j.Cfg.SkipLocking)
	if err != nil {
		log.Errorf("driver: %v", err)
		return ExitFatal
	}

	j.lock = lock

	defer func() {
		if r := recover(); r != nil {
			j.lock.Release()

			if _, ok := r.(*diag.PanicError); ok {
				code = ExitFatal
				return
			}

			panic(r)
		}
	}()

	for _, file := range files {
		if j.Cfg.Verbose {
			j.progress(file)
		}

		j.compileUnit(file)
	}

	j.writeDatabaseIfDirty()

	j.lock.Release()

	if j.Diag.HasErrors() {
		return ExitErrors
	}

	return ExitSuccess
}

// progress writes a one-line "compiling <file>" note to stderr when -v is
// set, padding to the terminal width when stderr is a real TTY so successive
// lines overwrite cleanly (golang.org/x/term's IsTerminal, not a full raw-mode
// session — driver output is ordinary line-buffered logging, not a TUI).
func (j *Job) progress(file string) {
	msg := "compiling " + file
	if term.IsTerminal(int(os.Stderr.Fd())) {
		if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > len(msg) {
			msg += strings.Repeat(" ", w-len(msg))
		}
	}

	fmt.Fprintln(os.Stderr, msg)
}

// compileUnit runs one translation unit through the full pipeline: tokenize,
// parse, lower, optimize, emit, write. A Fatal diagnostic anywhere in this
// call unwinds via panic to Run's recover; anything less severe is recorded
// in j.Diag and compilation of this unit proceeds as far as it can.
func (j *Job) compileUnit(file string) {
	src, ok := j.readSource(file)
	if !ok {
		return
	}

	reader := sexp.NewReader(file, src)

	forms, errs := reader.ReadAll()
	for _, e := range errs {
		j.Diag.Errorf(file, 0, "%v", e)
	}

	parser := parsetree.NewParser(file, j.Env, j.Class, j.Sel, j.Diag)
	parser.WarnForwardSelectors = j.Cfg.WarnForwardSelectors
	parser.NoAutoName = j.Cfg.NoAutoName

	if j.Cfg.MaxVars > 0 {
		parser.MaxVars = int32(j.Cfg.MaxVars)
	}

	for _, d := range j.Cfg.Defines {
		parser.Defines.BindCommandLine(d)
	}

	units := parser.ParseUnit(forms)

	prog := anode.NewProgram()
	lowering := anode.NewLowering(prog, j.Env, j.Diag, file)
	lowering.DebugLines = j.Cfg.DebugLines

	lowering.LowerUnit(units)

	optimize.Run(prog, !j.Cfg.NoShrink)

	// A reference still unresolved now will never resolve; report each by
	// name before the emitter writes its zero placeholder.
	for _, n := range anode.UnresolvedReferences(prog) {
		name := "?"
		if n.Sym != nil {
			name = n.Sym.Name
		}

		j.Diag.Errorf(file, 0, "undefined reference to %q", name)
	}

	out := emit.Emit(prog, j.Cfg.BigEndian)

	script := parser.Script
	if script < 0 {
		script = 0
	}

	j.writeUnitOutputs(script, file, out, prog)

	j.Env.ClearAllNodePointers()
	j.Env.ResetModule()
}

func (j *Job) writeUnitOutputs(script int, file string, out *emit.Output, prog *anode.Program) {
	base := filepath.Join(j.Cfg.OutDir, fmt.Sprintf("%d", script))

	if err := os.WriteFile(base+".hep", out.Heap, 0o644); err != nil {
		j.Diag.Errorf(file, 0, "writing %s.hep: %v", base, err)
	}

	if err := os.WriteFile(base+".scr", out.Hunk, 0o644); err != nil {
		j.Diag.Errorf(file, 0, "writing %s.scr: %v", base, err)
	}

	if err := os.WriteFile(base+".inf", []byte(file+"\n"), 0o644); err != nil {
		j.Diag.Errorf(file, 0, "writing %s.inf: %v", base, err)
	}

	if j.Cfg.EmitListing {
		listing := renderListing(file, prog)
		if err := os.WriteFile(base+".sl", []byte(listing), 0o644); err != nil {
			j.Diag.Errorf(file, 0, "writing %s.sl: %v", base, err)
		}
	}
}

// renderListing composes the `-l` human-readable listing out of each node's
// List() rendering: the minimal composition of per-node text, offset first,
// heap then hunk.
func renderListing(file string, prog *anode.Program) string {
	var b strings.Builder

	fmt.Fprintf(&b, "; %s\n\n; --- heap ---\n", file)

	for _, n := range prog.Heap.Nodes() {
		fmt.Fprintf(&b, "%6d  %s\n", n.Offset, n.List())
	}

	b.WriteString("\n; --- hunk ---\n")

	for _, n := range prog.Hunk.Nodes() {
		fmt.Fprintf(&b, "%6d  %s\n", n.Offset, n.List())
	}

	return b.String()
}

// writeDatabaseIfDirty regenerates the cross-module manifests and vocab
// resources, but only when something was actually added or changed this job
// and no unit reported an Error/Severe — a partial build must not corrupt
// the shared class/selector state.
func (j *Job) writeDatabaseIfDirty() {
	if j.Diag.HasErrors() {
		return
	}

	if !j.Sel.Dirty && !j.Class.Dirty {
		return
	}

	selPath := filepath.Join(j.Cfg.OutDir, selectorFile)
	if err := os.WriteFile(selPath, []byte(crossmod.WriteSelectorSource(j.Env)), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", selPath, err)
	}

	defPath := filepath.Join(j.Cfg.OutDir, classdefFile)
	if err := os.WriteFile(defPath, []byte(crossmod.WriteClassDef(j.Class)), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", defPath, err)
	}

	classesPath := filepath.Join(j.Cfg.OutDir, classesFile)
	if err := os.WriteFile(classesPath, []byte(crossmod.WriteClasses(j.Class)), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", classesPath, err)
	}

	tblPath := filepath.Join(j.Cfg.OutDir, classtblFile)
	if err := os.WriteFile(tblPath, crossmod.WriteClassTbl(j.Class, j.Cfg.BigEndian), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", tblPath, err)
	}

	vocPath := filepath.Join(j.Cfg.OutDir, selectorVoc)
	if err := os.WriteFile(vocPath, crossmod.WriteSelectorVocab(j.Env, j.Sel, j.Cfg.BigEndian), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", vocPath, err)
	}

	if j.Cfg.EmitOffsetsVocab {
		j.writeOffsetsVocab()
	}
}

func (j *Job) writeOffsetsVocab() {
	offsetsPath := filepath.Join(j.Cfg.OutDir, "offsets.txt")

	data, err := os.ReadFile(offsetsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			j.Diag.Errorf("", 0, "reading %s: %v", offsetsPath, err)
		}

		return
	}

	offsets, err := crossmod.ParseOffsetsText(string(data), j.Class)
	if err != nil {
		j.Diag.Errorf("", 0, "%v", err)
		return
	}

	vocPath := filepath.Join(j.Cfg.OutDir, propofsVoc)
	if err := os.WriteFile(vocPath, offsets.WriteOffsetsVocab(j.Cfg.BigEndian), 0o644); err != nil {
		j.Diag.Errorf("", 0, "writing %s: %v", vocPath, err)
	}
}
