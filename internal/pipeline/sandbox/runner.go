// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Output is the captured result of running a sandboxed command.
type Output struct {
	Stdout string
	Stderr string
}

// String matches the original source's "<tool> ran. stdout: ..., stderr:
// ..." log line format, reused as the RenderingError's Log field.
func (o Output) String() string {
	return fmt.Sprintf("stdout: %q, stderr: %q", o.Stdout, o.Stderr)
}

// Runner invokes bwrap with the given arguments. It is an interface
// purely as a test seam: production code always uses BwrapRunner, tests
// substitute a fake that never shells out to a real bwrap/vivliostyle/
// pandoc binary.
type Runner interface {
	Run(ctx context.Context, args []string) (Output, error)
}

// BwrapRunner shells out to the real bwrap binary on PATH.
type BwrapRunner struct{}

func (BwrapRunner) Run(ctx context.Context, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, "bwrap", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		return out, fmt.Errorf("running bwrap: %w", runErr)
	}
	return out, nil
}
