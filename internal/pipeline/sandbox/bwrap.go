// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package sandbox builds the bubblewrap (bwrap) invocations the Pipeline
// Executor uses to run the Vivliostyle and Pandoc steps, and applies a
// process-wide Landlock restriction at worker startup. Both invocations
// give the tool the same sandbox: every namespace unshared, a tmpfs at
// /tmp, read-only binds of the system library roots and of the font
// directories that exist on the host, the scratch directory bound
// read-write at /data, and the tool's environment root bound read-only at
// /env. Every bind precedes the sandboxed command, so bwrap (not the tool)
// receives it.
package sandbox

import (
	"fmt"
	"os"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
)

// systemFontDir and localFontDir are checked at invocation time, not build time, since the
// presence of these directories is a property of the host the worker runs
// on, not of the step being rendered.
const (
	systemFontDir = "/usr/share/fonts"
	localFontDir  = "/usr/local/share/fonts"
)

// VivliostyleArgs builds the bwrap argument list for a VivliostyleStep,
// binding tempDir at /data and envRoot (the tool's prepared runtime
// environment, e.g. "rendering-envs/vivliostyle") at /env.
func VivliostyleArgs(step exportformat.VivliostyleStep, tempDir, envRoot string) []string {
	args := []string{
		"--unshare-all",
		"--tmpfs", "/tmp",
		"--ro-bind", "/lib", "/lib",
		"--ro-bind", "/lib64", "/lib64",
		"--ro-bind", "/usr/lib", "/usr/lib",
		"--proc", "/proc",
		"--dev", "/dev",
	}

	if dirExists(systemFontDir) {
		args = append(args, "--ro-bind", systemFontDir, systemFontDir)
	}
	if dirExists(localFontDir) {
		args = append(args, "--ro-bind", localFontDir, systemFontDir+"/more")
	}

	args = append(args,
		"--bind", tempDir, "/data",
		"--ro-bind", envRoot, "/env",
		"/env/node", "/env/node_modules/.bin/vivliostyle", "build",
		fmt.Sprintf("/data/%s", step.InputFile),
	)

	if step.PressReady {
		args = append(args, "-p")
	}

	args = append(args,
		"-o", fmt.Sprintf("/data/%s", step.OutputFile),
		"--executable-browser", "/env/chromium/chrome",
	)

	return args
}

// PandocArgs builds the bwrap argument list for a PandocStep, binding
// tempDir at /data and envRoot (e.g. "rendering-envs/pandoc") at /env.
func PandocArgs(step exportformat.PandocStep, tempDir, envRoot string) []string {
	args := []string{
		"--unshare-all",
		"--tmpfs", "/tmp",
		"--ro-bind", "/lib", "/lib",
		"--ro-bind", "/lib64", "/lib64",
		"--ro-bind", "/usr/lib", "/usr/lib",
		"--proc", "/proc",
		"--dev", "/dev",
	}

	if dirExists(systemFontDir) {
		args = append(args, "--ro-bind", systemFontDir, systemFontDir)
	}
	if dirExists(localFontDir) {
		args = append(args, "--ro-bind", localFontDir, systemFontDir+"/more")
	}

	args = append(args,
		"--bind", tempDir, "/data",
		"--ro-bind", envRoot, "/env",
		"/env/pandoc",
	)

	args = append(args,
		"-o", fmt.Sprintf("/data/%s", step.OutputFile),
		"-t", step.OutputFormat,
		"-f", step.InputFormat,
	)

	if step.ShiftHeadingLevelBy != nil {
		args = append(args, fmt.Sprintf("--shift-heading-level-by=%d", *step.ShiftHeadingLevelBy))
	}
	if step.MetadataFile != nil {
		args = append(args, fmt.Sprintf("--metadata-file=%s", *step.MetadataFile))
	}
	if step.EPUBCoverImagePath != nil {
		args = append(args, fmt.Sprintf("--epub-cover-image=%s", *step.EPUBCoverImagePath))
	}
	if step.EPUBTitlePage != nil {
		args = append(args, fmt.Sprintf("--epub-title-page=%t", *step.EPUBTitlePage))
	}
	if step.EPUBMetadataFile != nil {
		args = append(args, fmt.Sprintf("--epub-metadata=%s", *step.EPUBMetadataFile))
	}
	for _, font := range step.EPUBEmbedFonts {
		args = append(args, fmt.Sprintf("--epub-embed-font=%s", font))
	}

	args = append(args, fmt.Sprintf("data/%s", step.InputFile))

	return args
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
