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
package diag

import "testing"

func TestBagCountsErrorsNotWarnings(t *testing.T) {
	bag := NewBag()
	bag.Warnf("a.sc", 1, "break level %d exceeds nesting, saturating", 3)
	bag.Errorf("a.sc", 2, "undefined procedure %q", "foo")

	if bag.TotalWarnings() != 1 {
		t.Fatalf("expected 1 warning, got %d", bag.TotalWarnings())
	}

	if bag.TotalErrors() != 1 {
		t.Fatalf("expected 1 error, got %d", bag.TotalErrors())
	}

	if !bag.HasErrors() {
		t.Fatalf("expected HasErrors() to be true")
	}
}

func TestBagFatalPanicsWithPanicError(t *testing.T) {
	bag := NewBag()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}

		if _, ok := r.(*PanicError); !ok {
			t.Fatalf("expected *PanicError, got %T", r)
		}
	}()

	bag.Fatalf("a.sc", 1, "out of memory")
}

func TestInfoDoesNotCountAsError(t *testing.T) {
	bag := NewBag()
	bag.Infof("a.sc", 1, "compiling %s", "a.sc")

	if bag.HasErrors() {
		t.Fatalf("info should never count as an error")
	}
}
