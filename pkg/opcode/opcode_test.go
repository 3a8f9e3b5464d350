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
package opcode

import "testing"

func TestWithShortTogglesSizeNotMnemonic(t *testing.T) {
	op := opJmp
	if op.String() != "jmp" {
		t.Fatalf("expected mnemonic 'jmp', got %q", op.String())
	}

	short := op.WithShort(true)
	if short.String() != "jmp" {
		t.Fatalf("expected WithShort to preserve mnemonic, got %q", short.String())
	}

	if !short.Short() {
		t.Fatalf("expected Short() true after WithShort(true)")
	}

	if short.Size(1) != 2 {
		t.Fatalf("expected short form with 1-word operand to be 2 bytes, got %d", short.Size(1))
	}

	long := op.WithShort(false)
	if long.Size(1) != 3 {
		t.Fatalf("expected long form with 1-word operand to be 3 bytes, got %d", long.Size(1))
	}
}

func TestVarAccessDistinctForEachCombination(t *testing.T) {
	seen := map[Op]bool{}

	for _, action := range []Action{Load, Store, Inc, Dec} {
		for _, class := range []VarClass{VarGlobal, VarLocal, VarTmp, VarParam} {
			for _, indexed := range []bool{false, true} {
				op := VarAccess(action, class, false, indexed)
				if seen[op] {
					t.Fatalf("duplicate opcode for action=%v class=%v indexed=%v: %#x", action, class, indexed, op)
				}

				seen[op] = true
			}
		}
	}
}

func TestPropAccessOpcodesAreFixedAndDistinct(t *testing.T) {
	ops := map[Op]bool{
		PropAccess(Load):  true,
		PropAccess(Store): true,
		PropAccess(Inc):   true,
		PropAccess(Dec):   true,
	}

	if len(ops) != 4 {
		t.Fatalf("expected 4 distinct property-access opcodes, got %d", len(ops))
	}
}

func TestZeroOperandOpcodeIsOneByte(t *testing.T) {
	if opRet.Size(0) != 1 {
		t.Fatalf("expected a 0-operand opcode to be 1 byte")
	}
}
