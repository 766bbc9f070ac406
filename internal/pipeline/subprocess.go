// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"context"
	"strings"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline/sandbox"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)


// vivliostyleEnvRoot and pandocEnvRoot are the per-tool prepared runtime
// environments bwrap binds read-only at /env, matching the original
// source's "rendering-envs/<tool>" convention.
const (
	vivliostyleEnvRoot = "rendering-envs/vivliostyle"
	pandocEnvRoot      = "rendering-envs/pandoc"
)

func renderVivliostyleStep(ctx context.Context, runner sandbox.Runner, step exportformat.VivliostyleStep, scratchDir string) render.Error {
	args := sandbox.VivliostyleArgs(step, scratchDir, vivliostyleEnvRoot)
	out, err := runner.Run(ctx, args)
	if err != nil {
		return render.ErrVivliostyleRenderingFailed{Log: "couldn't run vivliostyle: " + err.Error()}
	}
	if !strings.Contains(out.String(), "Built successfully") {
		return render.ErrVivliostyleRenderingFailed{Log: out.String()}
	}
	return nil
}

func renderPandocStep(ctx context.Context, runner sandbox.Runner, step exportformat.PandocStep, scratchDir string) render.Error {
	args := sandbox.PandocArgs(step, scratchDir, pandocEnvRoot)
	if _, err := runner.Run(ctx, args); err != nil {
		return render.ErrPandocConversionFailed{Log: "couldn't start pandoc: " + err.Error()}
	}
	return nil
}
