// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package sandbox

import (
	"fmt"

	"github.com/shoenig/go-landlock"
)

// LockProcess applies a process-wide Landlock restriction limiting the
// worker itself (not the bwrap-sandboxed child tools, which get their own
// isolation from bwrap) to the directories it legitimately needs: read
// access under templateRoot's cached bundles, and read-write access under
// tempRoot's scratch directories.
//
// This is applied exactly once, at startup, before the accept loop
// begins. Landlock rules are process-wide and cannot be lifted or scoped
// to a single goroutine, so locking per-job (as a naive per-request
// sandbox would attempt) is both unnecessary and impossible: once this
// call succeeds every goroutine the process ever spawns is bound by it.
func LockProcess(tempRoot, templateRoot string) error {
	locker := landlock.New(
		landlock.RWDirs(tempRoot),
		landlock.RODirs(templateRoot),
	)
	if err := locker.Lock(landlock.OnlySupported()); err != nil {
		return fmt.Errorf("applying landlock restriction: %w", err)
	}
	return nil
}
