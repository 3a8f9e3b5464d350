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

// RecoveryError is the unwind signal raised once an Error/Severe diagnostic
// has been reported and the parser wants to get back to the nearest
// top-level recovery anchor. The anchor is the loop that reads successive
// top-level forms: on seeing a *RecoveryError it simply discards the
// remainder of the current top-level form (by consuming runes until the
// matching closing parenthesis, via the token stream's "eat rest" helper)
// and continues with the next one.
type RecoveryError struct {
	// Cause is the diagnostic which triggered the unwind.
	Cause Diagnostic
}

func (e *RecoveryError) Error() string {
	return e.Cause.String()
}

// NewRecovery wraps a diagnostic as a recovery signal.
func NewRecovery(d Diagnostic) *RecoveryError {
	return &RecoveryError{d}
}
