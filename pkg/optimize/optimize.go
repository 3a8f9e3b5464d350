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

// Package optimize implements the offset-stabilization optimizer: a shrink
// phase that flips branch/call nodes from the long (16-bit
// displacement) to the short (signed-8) encoding wherever their resolved
// target now fits, repeated until the hunk stream's total size stops
// decreasing, followed by a stabilize phase that just keeps reassigning
// offsets until a fixed point, and a final heap-offset recompute so object
// property slots that hold cross-stream code offsets (method/property
// dictionary pointers) see their final values.
package optimize

import "github.com/sci-compiler/scic/pkg/anode"

// maxIterations guards against a pathological non-terminating oscillation;
// the shrink relaxation is monotonically non-increasing in total size so in
// practice it converges in a handful of passes, and the stabilize phase in
// one or two.
const maxIterations = 1000

// Run stabilizes prog's hunk stream offsets and then recomputes the heap
// stream's. allowShrink mirrors the -z CLI flag: when false, every branch/call keeps whatever Short value
// lowering already gave it (skipping the shrink phase entirely) and only the
// stabilize phase and the heap-offset recompute run.
func Run(prog *anode.Program, allowShrink bool) {
	if allowShrink {
		shrinkToFixpoint(prog.Hunk)
	}

	stabilize(prog.Hunk)

	// Heap-list offsets depend on nothing the shrink/stabilize passes touch
	// (the heap stream holds no branch/call nodes), but they must be assigned
	// only after the hunk stream's offsets are final, since a heap-side
	// KindPropertyEntry's CrossStreamFixup target lives in the hunk stream
	// and pkg/emit reads Target.Offset once writing its slot.
	prog.Heap.SetOffsets(0)
}

// shrinkToFixpoint repeats "assign offsets from 0, then flip whichever
// branch/call nodes now fit the short form" until a pass flips nothing.
// Each flip can only shrink the stream (never grow it), so the
// total size is monotonically non-increasing and the loop terminates.
func shrinkToFixpoint(hunk *anode.Stream) {
	hunk.SetOffsets(0)

	for i := 0; i < maxIterations; i++ {
		if !shrinkPass(hunk) {
			return
		}

		hunk.SetOffsets(0)
	}
}

// shrinkPass walks every node once, flipping a not-yet-short branch/call to
// its short form when its target is already resolved and the displacement
// from just past this node to the target fits in a signed 8-bit byte. A call
// node with no Target (an external/calle call, whose script/entry pair is
// packed directly into its operand and never backpatched) is left alone —
// it has no displacement to shrink.
func shrinkPass(hunk *anode.Stream) bool {
	changed := false

	for _, n := range hunk.Nodes() {
		if n.Short || n.Target == nil {
			continue
		}

		if n.Kind != anode.KindBranch && n.Kind != anode.KindCall {
			continue
		}

		end := n.Offset + int32(n.Size())
		delta := n.Target.Offset - end

		if delta >= -128 && delta <= 127 {
			n.Short = true
			changed = true
		}
	}

	return changed
}

// stabilize repeats the offset assignment without flipping anything further
// until the stream's total size stops changing. After
// shrinkToFixpoint this is typically already a no-op on its first call, but
// it is kept as its own explicit pass since nothing but the shrink phase is
// permitted to change a node's Short flag from here on.
func stabilize(hunk *anode.Stream) {
	prev := hunk.SetOffsets(0)

	for i := 0; i < maxIterations; i++ {
		next := hunk.SetOffsets(0)
		if next == prev {
			return
		}

		prev = next
	}
}
