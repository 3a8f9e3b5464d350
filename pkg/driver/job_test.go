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
package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/crossmod"
	"github.com/sci-compiler/scic/pkg/util/assert"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}

	return path
}

func newTestJob(t *testing.T, dir string) *Job {
	t.Helper()

	cfg := DefaultConfig()
	cfg.OutDir = dir

	job, err := NewJob(cfg)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	return job
}

// TestCompileMinimalScript drives the whole pipeline over the smallest
// useful unit: a heap that is nothing but header, zero variables, the
// terminator and an empty fixup table, alongside a hunk with an empty
// dispatch table and one tiny procedure.
func TestCompileMinimalScript(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "min.sc", "(script# 0)\n(procedure (main) (return 42))\n")

	job := newTestJob(t, dir)

	assert.Equal(t, ExitSuccess, job.Run([]string{file}))

	hep, err := os.ReadFile(filepath.Join(dir, "0.hep"))
	if err != nil {
		t.Fatalf("reading heap resource: %v", err)
	}

	// header + variable count + terminator + fixup count, two bytes each.
	assert.Equal(t, 8, len(hep), "minimal heap is exactly four words")

	if _, err := os.Stat(filepath.Join(dir, "0.scr")); err != nil {
		t.Fatalf("expected a hunk resource: %v", err)
	}

	inf, err := os.ReadFile(filepath.Join(dir, "0.inf"))
	if err != nil {
		t.Fatalf("reading info file: %v", err)
	}

	assert.Equal(t, file+"\n", string(inf))

	if _, err := os.Stat(filepath.Join(dir, lockFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected the database lock to be released after the job")
	}
}

// TestForwardCallAcrossProcedures compiles a call that appears before its
// callee's definition: clean exit, no diagnostics.
func TestForwardCallAcrossProcedures(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "fwd.sc",
		"(script# 1)\n(procedure (a) (b))\n(procedure (b) (return))\n")

	job := newTestJob(t, dir)

	assert.Equal(t, ExitSuccess, job.Run([]string{file}))
	assert.Equal(t, uint(0), job.Diag.TotalErrors())
}

// TestUndefinedProcedureFailsAndSuppressesDatabase compiles a call whose
// target never appears: the job exits non-zero and, crucially, does not
// touch the shared class/selector database even though this unit also made
// it dirty.
func TestUndefinedProcedureFailsAndSuppressesDatabase(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "bad.sc",
		"(script# 2)\n(class C of RootObj (properties x 1))\n(procedure (a) (missing))\n")

	job := newTestJob(t, dir)

	assert.Equal(t, ExitErrors, job.Run([]string{file}))
	assert.True(t, job.Diag.TotalErrors() > 0)

	if _, err := os.Stat(filepath.Join(dir, selectorFile)); !os.IsNotExist(err) {
		t.Fatalf("a failing job must not rewrite the selector database")
	}
}

// TestClassInheritanceDifferentialClassdef compiles a two-level hierarchy
// and checks the regenerated classdef lists, for the subclass, only what
// changed from its superclass — plus that the subclass's -super- slot holds
// the superclass's number.
func TestClassInheritanceDifferentialClassdef(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "cls.sc",
		"(script# 5)\n(class C of RootObj (properties x 1 y 2))\n(class D of C (properties y 2 z 3))\n")

	job := newTestJob(t, dir)

	assert.Equal(t, ExitSuccess, job.Run([]string{file}))

	c := job.Class.FindClass(0)
	d := job.Class.FindClass(1)

	if c == nil || c.Name != "C" || d == nil || d.Name != "D" {
		t.Fatalf("expected C and D at class numbers 0 and 1")
	}

	assert.Equal(t, int32(c.Num), d.FindSelector(classreg.SelSuper).Value)

	data, err := os.ReadFile(filepath.Join(dir, classdefFile))
	if err != nil {
		t.Fatalf("reading classdef: %v", err)
	}

	text := string(data)

	idx := strings.Index(text, "(classdef D of C")
	if idx < 0 {
		t.Fatalf("expected D's classdef entry to name C:\n%s", text)
	}

	dSection := text[idx:]

	if !strings.Contains(dSection, "z 128 3") {
		t.Fatalf("expected D to list its new property z:\n%s", dSection)
	}

	if strings.Contains(dSection, " x ") || strings.Contains(dSection, " y ") {
		t.Fatalf("expected D to omit properties unchanged from C:\n%s", dSection)
	}
}

// TestDatabaseRoundTripIsFixpoint reloads a job's regenerated database into
// a fresh job and regenerates it again: both files must come back
// byte-identical.
func TestDatabaseRoundTripIsFixpoint(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "cls.sc",
		"(script# 5)\n(class C of RootObj (properties x 1 y 2))\n(class D of C (properties y 2 z 3))\n")

	job := newTestJob(t, dir)
	assert.Equal(t, ExitSuccess, job.Run([]string{file}))

	firstSel, err := os.ReadFile(filepath.Join(dir, selectorFile))
	if err != nil {
		t.Fatalf("reading selector manifest: %v", err)
	}

	firstDef, err := os.ReadFile(filepath.Join(dir, classdefFile))
	if err != nil {
		t.Fatalf("reading classdef manifest: %v", err)
	}

	reloaded := newTestJob(t, dir)

	assert.Equal(t, string(firstSel), crossmod.WriteSelectorSource(reloaded.Env))
	assert.Equal(t, string(firstDef), crossmod.WriteClassDef(reloaded.Class))

	assert.False(t, reloaded.Sel.Dirty, "loading the database must not mark it dirty")
	assert.False(t, reloaded.Class.Dirty)
}

// TestSelectorAutoAllocationRegeneratesDatabase sends a never-seen selector:
// the job claims a fresh number and rewrites the selector manifest and
// vocabulary resource to include it.
func TestSelectorAutoAllocationRegeneratesDatabase(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "sel.sc",
		"(script# 6)\n(procedure (p &tmp obj) (obj frobnicate))\n")

	job := newTestJob(t, dir)

	assert.Equal(t, ExitSuccess, job.Run([]string{file}))

	sel, err := os.ReadFile(filepath.Join(dir, selectorFile))
	if err != nil {
		t.Fatalf("reading selector manifest: %v", err)
	}

	if !strings.Contains(string(sel), "(frobnicate 0)") {
		t.Fatalf("expected frobnicate at the lowest clear selector number:\n%s", sel)
	}

	voc, err := os.ReadFile(filepath.Join(dir, selectorVoc))
	if err != nil {
		t.Fatalf("reading selector vocabulary: %v", err)
	}

	if !strings.Contains(string(voc), "frobnicate\x00") {
		t.Fatalf("expected the vocabulary resource to carry the new name")
	}
}

// TestAbortOnHeldLock pre-creates the lock file with -a behavior requested:
// the job must refuse to run at all.
func TestAbortOnHeldLock(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "x.sc", "(script# 0)\n")

	if err := os.WriteFile(filepath.Join(dir, lockFileName), nil, 0o644); err != nil {
		t.Fatalf("pre-creating lock: %v", err)
	}

	cfg := DefaultConfig()
	cfg.OutDir = dir
	cfg.AbortOnLock = true

	job, err := NewJob(cfg)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	assert.Equal(t, ExitFatal, job.Run([]string{file}))
}

// TestSkipLockingIgnoresHeldLock: -u compiles straight through a held lock.
func TestSkipLockingIgnoresHeldLock(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, "x.sc", "(script# 0)\n(procedure (main) (return))\n")

	if err := os.WriteFile(filepath.Join(dir, lockFileName), nil, 0o644); err != nil {
		t.Fatalf("pre-creating lock: %v", err)
	}

	cfg := DefaultConfig()
	cfg.OutDir = dir
	cfg.SkipLocking = true

	job, err := NewJob(cfg)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	assert.Equal(t, ExitSuccess, job.Run([]string{file}))
}
