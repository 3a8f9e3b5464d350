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
	"errors"
	"fmt"
	"os"
	"time"
)

// lockFileName is the well-known cooperative lock file guarding the shared
// cross-module class/selector database, sitting alongside the database
// itself in the output directory.
const lockFileName = ".scic.lock"

// lockPollInterval and lockPollAttempts bound how long a non-aborting job
// waits for a contended lock before giving up, so an abandoned lock from a
// crashed process cannot hang a build forever.
const (
	lockPollInterval = 50 * time.Millisecond
	lockPollAttempts = 100
)

// DatabaseLock is a single cooperative file lock: the compiler attempts to
// exclusively create a well-known lock file; on failure it either aborts or
// polls for a bounded number of attempts (see AcquireLock). Released on every exit path,
// including fatal errors (pkg/driver's top-level recover calls Release from
// a defer before propagating the panic).
type DatabaseLock struct {
	path string
	file *os.File
}

// ErrLocked is returned by AcquireLock when the lock file already exists and
// either abortOnContention is set or every polling attempt found it held.
var ErrLocked = errors.New("driver: class/selector database is locked by another job")

// AcquireLock attempts to exclusively create the lock file under dir. When
// abortOnContention is true (the -a flag) a held lock fails immediately with
// ErrLocked; otherwise it polls up to lockPollAttempts times before giving up.
// skipLocking (the -u flag) bypasses the lock entirely, returning a no-op
// lock whose Release is a harmless no-op.
func AcquireLock(dir string, abortOnContention, skipLocking bool) (*DatabaseLock, error) {
	if skipLocking {
		return &DatabaseLock{}, nil
	}

	path := dir + string(os.PathSeparator) + lockFileName

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return &DatabaseLock{path: path, file: f}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("driver: creating lock file %s: %w", path, err)
		}

		if abortOnContention || attempt >= lockPollAttempts {
			return nil, ErrLocked
		}

		time.Sleep(lockPollInterval)
	}
}

// Release removes the lock file, if one was actually acquired. Safe to call
// more than once and safe to call on a no-op (-u) lock.
func (l *DatabaseLock) Release() {
	if l == nil || l.file == nil {
		return
	}

	l.file.Close()
	os.Remove(l.path)
	l.file = nil
}
