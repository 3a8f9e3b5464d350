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

// Package crossmod implements the cross-module writer: the
// `classtbl`/`selector`/`classdef`/`classes` resources and text manifests a
// compile job regenerates whenever it adds or changes a class or selector,
// plus the reader half that seeds a fresh job's registry from whatever a
// previous job last wrote. Writer output loaded back through the reader
// regenerates byte-identically — the manifests are the serializer's
// fixpoint.
package crossmod

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sci-compiler/scic/pkg/classreg"
	"github.com/sci-compiler/scic/pkg/symtab"
)

// badSelectorName is the sentinel string every unclaimed selector-vocab slot
// resolves to.
const badSelectorName = "BAD SELECTOR"

// WriteClassTbl renders the classtbl resource: an array indexed by class
// number, each entry `{ reserved u16; scriptNumber u16 }`, one per slot from
// 0 up to the highest class number ever allocated.
func WriteClassTbl(reg *classreg.Registry, bigEndian bool) []byte {
	order := byteOrder(bigEndian)
	max := reg.MaxClassNum()

	buf := make([]byte, 0, (max+1)*4)

	for n := 0; n <= max; n++ {
		script := uint16(0)
		if c := reg.FindClass(n); c != nil {
			script = uint16(c.Script)
		}

		buf = appendU16(buf, order, 0) // reserved
		buf = appendU16(buf, order, script)
	}

	return buf
}

// WriteSelectorSource renders the `selector` text manifest: an
// S-expression listing of every known selector name with its number, sorted
// by number so the output is deterministic and round-trips byte-identically.
func WriteSelectorSource(env *symtab.Environment) string {
	type entry struct {
		name string
		num  int32
	}

	var entries []entry

	for _, sym := range env.Selectors.Symbols() {
		entries = append(entries, entry{sym.Name, sym.Num})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].num < entries[j].num })

	var b strings.Builder

	b.WriteString("(selectors\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "  (%s %d)\n", e.name, e.num)
	}

	b.WriteString(")\n")

	return b.String()
}

// LoadSelectorSource parses a `selector` text manifest previously written by
// WriteSelectorSource, installing each name into env.Selectors and claiming
// its number in sel.
func LoadSelectorSource(src string, env *symtab.Environment, sel *classreg.SelectorTable) error {
	sc := bufio.NewScanner(strings.NewReader(src))

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "(")
		line = strings.TrimSuffix(line, ")")

		if line == "" || line == "selectors" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}

		num, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("crossmod: malformed selector entry %q: %w", line, err)
		}

		sym := env.Selectors.Lookup(fields[0])
		if sym == nil {
			sym = env.InstallSelector(fields[0], 0)
		}

		sym.Num = int32(num)
		sel.Claim(uint16(num))
	}

	return sc.Err()
}

// WriteSelectorVocab renders the selector vocabulary resource: a u16
// high-watermark, a u16 offset table indexed by selector number, then the
// null-terminated names; an unused slot's offset table entry points at the
// shared "BAD SELECTOR" sentinel string rather than at an empty string, so a
// disassembler reading a stale or out-of-range selector number still gets a
// recognizable name.
func WriteSelectorVocab(env *symtab.Environment, sel *classreg.SelectorTable, bigEndian bool) []byte {
	order := byteOrder(bigEndian)
	max := int(sel.Max())

	names := make([]string, max+1)

	for _, sym := range env.Selectors.Symbols() {
		if n := int(sym.Num); n >= 0 && n <= max {
			names[n] = sym.Name
		}
	}

	var body []byte

	offsets := make([]uint16, max+1)
	badOffset := uint16(0)

	{
		// Sentinel string goes first so every unused slot can share it.
		badOffset = uint16(len(body))
		body = append(body, []byte(badSelectorName)...)
		body = append(body, 0)
	}

	for i, name := range names {
		if name == "" {
			offsets[i] = badOffset
			continue
		}

		offsets[i] = uint16(len(body))
		body = append(body, []byte(name)...)
		body = append(body, 0)
	}

	out := make([]byte, 0, 2+2*(max+1)+len(body))
	out = appendU16(out, order, uint16(max))

	for _, o := range offsets {
		out = appendU16(out, order, o)
	}

	out = append(out, body...)

	return out
}

// WriteClassDef renders the `classdef` database manifest: one `classdef`
// entry per class, each containing only the properties and methods that
// differ from its superclass, in class-number order so output is
// deterministic. The header is keyed by class *number* rather than name so
// LoadClassDef can re-create the exact same class-number assignment a prior
// job made; a bare name reference can't survive renumbering and would
// silently scramble a persisted class hierarchy across jobs.
func WriteClassDef(reg *classreg.Registry) string {
	var b strings.Builder

	for _, c := range reg.Classes() {
		super := superOf(reg, c)

		var props, methods []string

		for _, sel := range c.Selectors() {
			if !super.SelectorDiffers(sel) {
				continue
			}

			switch {
			case sel.Tag.IsProperty():
				props = append(props, fmt.Sprintf("%s %d %d", sel.Name, sel.Tag, sel.Value))
			case sel.Tag == classreg.TagLocal:
				methods = append(methods, sel.Name)
			}
		}

		fmt.Fprintf(&b, "(classdef %s of %s script# %d class# %d super# %d file# %q\n",
			c.Name, super.Name, c.Script, c.Num, c.Super, c.File)

		if len(props) > 0 {
			fmt.Fprintf(&b, "  (properties %s)\n", strings.Join(props, " "))
		}

		if len(methods) > 0 {
			fmt.Fprintf(&b, "  (methods %s)\n", strings.Join(methods, " "))
		}

		b.WriteString(")\n")
	}

	return b.String()
}

// LoadClassDef parses a `classdef` database manifest previously written by
// WriteClassDef, reconstructing reg's class hierarchy in class-number order.
// env resolves property/method names to their real selector numbers — the
// selector manifest loads first, so every name in a well-formed database is
// already known. This does not go through pkg/parsetree: the classdef
// manifest is cross-job bookkeeping data, not compiler input source, so it
// is scanned directly the same way the selector manifest is.
func LoadClassDef(src string, reg *classreg.Registry, env *symtab.Environment) error {
	sc := bufio.NewScanner(strings.NewReader(src))

	var cur *classreg.Object

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.HasPrefix(line, "(classdef "):
			c, err := parseClassDefHeader(line, reg)
			if err != nil {
				return err
			}

			cur = c
		case strings.HasPrefix(line, "(properties "):
			if err := loadProperties(line, cur, env); err != nil {
				return err
			}
		case strings.HasPrefix(line, "(methods "):
			loadMethods(line, cur, env)
		}
	}

	return sc.Err()
}

func parseClassDefHeader(line string, reg *classreg.Registry) (*classreg.Object, error) {
	line = strings.TrimPrefix(line, "(classdef ")
	line = strings.TrimSuffix(line, ")")

	fields := strings.Fields(line)
	if len(fields) < 10 || fields[1] != "of" {
		return nil, fmt.Errorf("crossmod: malformed classdef header %q", line)
	}

	name := fields[0]
	vals := map[string]string{}

	// fields[1] is "of" and fields[2] the superclass name; the keyed
	// `script# N class# N super# N file# "..."` pairs start after those.
	for i := 3; i+1 < len(fields); i += 2 {
		vals[strings.TrimSuffix(fields[i], "#")] = fields[i+1]
	}

	script, err := strconv.Atoi(vals["script"])
	if err != nil {
		return nil, fmt.Errorf("crossmod: malformed classdef script# in %q: %w", line, err)
	}

	classNum, err := strconv.Atoi(vals["class"])
	if err != nil {
		return nil, fmt.Errorf("crossmod: malformed classdef class# in %q: %w", line, err)
	}

	superNum, err := strconv.Atoi(vals["super"])
	if err != nil {
		return nil, fmt.Errorf("crossmod: malformed classdef super# in %q: %w", line, err)
	}

	file, _ := strconv.Unquote(vals["file"])

	super := reg.RootObj
	if superNum >= 0 {
		if s := reg.FindClass(superNum); s != nil {
			super = s
		} else {
			return nil, fmt.Errorf("crossmod: classdef %q names unknown superclass #%d", name, superNum)
		}
	}

	c := reg.NewClass(name, super)
	c.Script = script
	c.File = file

	if err := reg.DefineClass(c, classNum); err != nil {
		return nil, err
	}

	return c, nil
}

func loadProperties(line string, c *classreg.Object, env *symtab.Environment) error {
	line = strings.TrimPrefix(line, "(properties ")
	line = strings.TrimSuffix(line, ")")

	fields := strings.Fields(line)
	if len(fields)%3 != 0 {
		return fmt.Errorf("crossmod: malformed classdef properties list %q", line)
	}

	for i := 0; i+3 <= len(fields); i += 3 {
		name, tagStr, valStr := fields[i], fields[i+1], fields[i+2]

		tag, err := strconv.Atoi(tagStr)
		if err != nil {
			return fmt.Errorf("crossmod: malformed property tag in %q: %w", line, err)
		}

		val, err := strconv.Atoi(valStr)
		if err != nil {
			return fmt.Errorf("crossmod: malformed property value in %q: %w", line, err)
		}

		setProperty(c, name, classreg.Tag(tag), int32(val), env)
	}

	return nil
}

func setProperty(c *classreg.Object, name string, tag classreg.Tag, val int32, env *symtab.Environment) {
	for _, sel := range c.Selectors() {
		if sel.Name == name {
			sel.Tag = tag
			sel.Value = val

			return
		}
	}

	c.AddSelector(name, selectorNumberFor(c, name, env), tag).Value = val
}

func loadMethods(line string, c *classreg.Object, env *symtab.Environment) {
	line = strings.TrimPrefix(line, "(methods ")
	line = strings.TrimSuffix(line, ")")

	for _, name := range strings.Fields(line) {
		found := false

		for _, sel := range c.Selectors() {
			if sel.Name == name {
				sel.Tag = classreg.TagLocal
				found = true

				break
			}
		}

		if !found {
			c.AddSelector(name, selectorNumberFor(c, name, env), classreg.TagLocal)
		}
	}
}

// selectorNumberFor resolves a classdef property/method name to its real
// selector number via the already-loaded selector table. A name the
// selector manifest never mentioned means the two database files are out of
// step; the entry is kept under a number outside the real selector space
// rather than turning a data problem into a crash.
func selectorNumberFor(c *classreg.Object, name string, env *symtab.Environment) uint16 {
	if env != nil {
		if sym := env.Selectors.Lookup(name); sym != nil {
			return uint16(sym.Num)
		}
	}

	n := uint16(0xF000)
	for c.FindSelector(n) != nil {
		n++
	}

	return n
}

func superOf(reg *classreg.Registry, c *classreg.Object) *classreg.Object {
	if c.Super < 0 {
		return reg.RootObj
	}

	if s := reg.FindClass(c.Super); s != nil {
		return s
	}

	return reg.RootObj
}

// WriteClasses renders the `classes` textual hierarchy listing: an indented
// subclass tree rooted at RootObj.
func WriteClasses(reg *classreg.Registry) string {
	var b strings.Builder

	children := map[int][]*classreg.Object{}

	for _, c := range reg.Classes() {
		children[c.Super] = append(children[c.Super], c)
	}

	for k := range children {
		sort.Slice(children[k], func(i, j int) bool {
			return children[k][i].Num < children[k][j].Num
		})
	}

	b.WriteString("RootObj\n")
	writeChildren(&b, children, -1, 1)

	return b.String()
}

func writeChildren(b *strings.Builder, children map[int][]*classreg.Object, parent, depth int) {
	for _, c := range children[parent] {
		fmt.Fprintf(b, "%s%s (#%d)\n", strings.Repeat("  ", depth), c.Name, c.Num)
		writeChildren(b, children, c.Num, depth+1)
	}
}

// Offsets is the optional `(class, selector) -> property word offset`
// vocabulary the `-O` flag additionally requests, read from a
// user-supplied offsets.txt of "ClassName SelectorName" lines.
type Offsets struct {
	entries []offsetEntry
}

type offsetEntry struct {
	class, selector string
	offset          int32
}

// ParseOffsetsText parses an offsets.txt: one "ClassName SelectorName" pair
// per line, resolved against reg to the selector's property offset.
func ParseOffsetsText(text string, reg *classreg.Registry) (*Offsets, error) {
	out := &Offsets{}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("crossmod: malformed offsets.txt line %q", line)
		}

		class := reg.FindClassByName(fields[0])
		if class == nil {
			return nil, fmt.Errorf("crossmod: offsets.txt names unknown class %q", fields[0])
		}

		var found *int32

		for _, sel := range class.Selectors() {
			if sel.Name == fields[1] {
				off := sel.Offset
				found = &off

				break
			}
		}

		if found == nil {
			return nil, fmt.Errorf("crossmod: offsets.txt names unknown selector %q on %q", fields[1], fields[0])
		}

		out.entries = append(out.entries, offsetEntry{fields[0], fields[1], *found})
	}

	return out, sc.Err()
}

// WriteOffsetsVocab renders the optional PROPOFS vocabulary resource: a u16
// count followed by, for each entry, a null-terminated "Class.Selector" name
// and a u16 property offset.
func (o *Offsets) WriteOffsetsVocab(bigEndian bool) []byte {
	order := byteOrder(bigEndian)

	out := appendU16(nil, order, uint16(len(o.entries)))

	for _, e := range o.entries {
		out = append(out, []byte(e.class+"."+e.selector)...)
		out = append(out, 0)
		out = appendU16(out, order, uint16(e.offset))
	}

	return out
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func appendU16(buf []byte, order binary.ByteOrder, v uint16) []byte {
	var b [2]byte
	order.PutUint16(b[:], v)

	return append(buf, b[:]...)
}
