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

// Package cmd wires the compiler's flat CLI surface (`scic <file>+
// [flags]`, no subcommands) onto pkg/driver's job orchestration.
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sci-compiler/scic/pkg/driver"
)

// Version is filled when building with make, but *not* when installing via
// "go install".
var Version string

var rootCmd = &cobra.Command{
	Use:   "scic <file>+",
	Short: "A compiler for the class-based adventure-game scripting language.",
	Long: `scic compiles one or more translation units of the class-based, Lisp-like
scripting language into paired heap/hunk binary images, maintaining the
shared cross-module class and selector database as it goes.`,
	Args: cobra.ArbitraryArgs,
	Run:  runCompile,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolP("version", "V", false, "print version information and exit")
	flags.BoolP("abort-locked", "a", false, "abort immediately if the class/selector database is locked")
	flags.BoolP("debug-lines", "d", false, "include line-number debug records in the hunk")
	flags.StringArrayP("define", "D", nil, "install a compile-time define, NAME[=VAL]")
	flags.IntP("max-vars", "g", 750, "maximum global/local variable count")
	flags.BoolP("listing", "l", false, "emit a human-readable .sl listing per file")
	flags.BoolP("no-auto-name", "n", false, "disable the automatic \"name\" property for instances")
	flags.StringP("out-dir", "o", ".", "output directory")
	flags.BoolP("offsets-vocab", "O", false, "also emit the optional property-offset vocabulary")
	flags.BoolP("warn-forward-selectors", "s", false, "warn on forward-referenced selectors")
	flags.BoolP("skip-lock", "u", false, "skip database locking entirely")
	flags.BoolP("verbose", "v", false, "verbose progress output")
	flags.BoolP("big-endian", "w", false, "emit words big-endian")
	flags.BoolP("no-shrink", "z", false, "disable the branch/call short-form shrink phase")
}

func runCompile(cmd *cobra.Command, args []string) {
	if GetFlag(cmd, "version") {
		printVersion()
		return
	}

	files, err := expandResponseFiles(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(driver.ExitFatal)
	}

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "scic: no input files")
		os.Exit(driver.ExitErrors)
	}

	cfg := driver.Config{
		AbortOnLock:          GetFlag(cmd, "abort-locked"),
		DebugLines:           GetFlag(cmd, "debug-lines"),
		Defines:              GetStringArray(cmd, "define"),
		MaxVars:              GetInt(cmd, "max-vars"),
		EmitListing:          GetFlag(cmd, "listing"),
		NoAutoName:           GetFlag(cmd, "no-auto-name"),
		OutDir:               GetString(cmd, "out-dir"),
		EmitOffsetsVocab:     GetFlag(cmd, "offsets-vocab"),
		WarnForwardSelectors: GetFlag(cmd, "warn-forward-selectors"),
		SkipLocking:          GetFlag(cmd, "skip-lock"),
		Verbose:              GetFlag(cmd, "verbose"),
		BigEndian:            GetFlag(cmd, "big-endian"),
		NoShrink:             GetFlag(cmd, "no-shrink"),
	}

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	// SINCLUDE names the include-search path. pkg/parsetree's `include`
	// form records the reference without itself walking the filesystem, so
	// the path is only surfaced for the operator's benefit.
	if inc := os.Getenv("SINCLUDE"); inc != "" && cfg.Verbose {
		log.Debugf("SINCLUDE=%s", inc)
	}

	job, err := driver.NewJob(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(driver.ExitFatal)
	}

	os.Exit(job.Run(files))
}

func printVersion() {
	fmt.Print("scic ")

	switch {
	case Version != "":
		fmt.Printf("%s", Version)
	default:
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("%s", info.Main.Version)
		} else {
			fmt.Printf("(unknown version)")
		}
	}

	fmt.Println()
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by cmd/scic's main once per process.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
