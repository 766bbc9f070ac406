// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package pipeline is the Pipeline Executor: given one export format, it
// runs each of its steps in its own scratch directory, carrying forward
// the files an earlier step declared worth keeping, and dispatching each
// step to the Raw templating engine or a bwrap-sandboxed Vivliostyle/
// Pandoc subprocess.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/copystructure"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline/sandbox"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// Result is what RenderExportFormat hands back to the scheduler: the
// files the final step produced, and every scratch directory created
// along the way, for the caller to clean up once it has read the files.
type Result struct {
	FilesToTransfer []string
	ScratchDirs     []string
}

// Executor runs export formats against a template's on-disk bundle.
type Executor struct {
	log       hclog.Logger
	tempRoot  string
	runner    sandbox.Runner
}

// New constructs an Executor rooted at tempRoot (where scratch
// directories are created) using runner to invoke sandboxed subprocess
// steps.
func New(log hclog.Logger, tempRoot string, runner sandbox.Runner) *Executor {
	return &Executor{log: log.Named("pipeline"), tempRoot: tempRoot, runner: runner}
}

// RenderExportFormat runs every step of format in order, returning the
// set of files the last step produced. format is deep-copied before use
// with copystructure, since its Kind field is an interface shared with
// the cache's in-memory entry and this executor may run concurrently
// with other goroutines rendering other formats from the same template.
func (e *Executor) RenderExportFormat(ctx context.Context, bundleDir string, project projects.PreparedProject, uploads projects.Uploads, format exportformat.ExportFormat) (Result, render.Error) {
	formatCopy, err := copystructure.Copy(format)
	if err != nil {
		return Result{}, render.ErrOther{Detail: fmt.Sprintf("couldn't copy export format: %s", err)}
	}
	format = formatCopy.(exportformat.ExportFormat)

	var (
		scratchDirs   []string
		carryForward  []string
	)

	for _, step := range format.Steps {
		e.log.Debug("starting export step", "export_format", format.Slug, "step", step.Name)

		scratchDir, prepErr := prepareScratchDir(e.tempRoot, bundleDir, format.Slug, uploads)
		if prepErr != nil {
			return Result{}, render.ErrOther{Detail: fmt.Sprintf("couldn't prepare temp directory: %s", prepErr)}
		}
		scratchDirs = append(scratchDirs, scratchDir)

		for _, src := range carryForward {
			if copyErr := copyFile(src, filepath.Join(scratchDir, filepath.Base(src))); copyErr != nil {
				return Result{ScratchDirs: scratchDirs}, render.ErrMissingExpectedFileToKeep{
					Name: filepath.Base(src),
					Log:  fmt.Sprintf("couldn't copy file to keep to new export step temp directory: %s", copyErr),
				}
			}
		}

		if stepErr := e.dispatch(ctx, step, scratchDir, project); stepErr != nil {
			return Result{ScratchDirs: scratchDirs}, stepErr
		}

		next := make([]string, 0, len(step.FilesToKeep))
		for _, name := range step.FilesToKeep {
			path := filepath.Join(scratchDir, name)
			if _, statErr := os.Stat(path); statErr != nil {
				return Result{ScratchDirs: scratchDirs}, render.ErrMissingExpectedFileToKeep{Name: name}
			}
			next = append(next, path)
		}
		carryForward = next
	}

	return Result{FilesToTransfer: carryForward, ScratchDirs: scratchDirs}, nil
}

func (e *Executor) dispatch(ctx context.Context, step exportformat.ExportStep, scratchDir string, project projects.PreparedProject) render.Error {
	switch kind := step.Kind.(type) {
	case exportformat.RawStep:
		return renderRawStep(kind, scratchDir, project)
	case exportformat.VivliostyleStep:
		return renderVivliostyleStep(ctx, e.runner, kind, scratchDir)
	case exportformat.PandocStep:
		return renderPandocStep(ctx, e.runner, kind, scratchDir)
	default:
		return render.ErrOther{Detail: fmt.Sprintf("unknown export step kind %T", kind)}
	}
}
