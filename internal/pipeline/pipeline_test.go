// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline/sandbox"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// fakeRunner never shells out to a real bwrap/vivliostyle/pandoc binary;
// it simulates a successful Vivliostyle build and writes the declared
// output file, the seam spec.md's testability notes call for.
type fakeRunner struct {
	vivliostyleStdout string
}

func (f fakeRunner) Run(_ context.Context, args []string) (sandbox.Output, error) {
	// Both tool invocations pass the output path as the argument after "-o".
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			outPath := args[i+1]
			// outPath is "/data/<file>"; the caller binds --bind <scratch> /data.
			scratch := bindTarget(args)
			_ = os.WriteFile(filepath.Join(scratch, filepath.Base(outPath)), []byte("built"), 0o644)
		}
	}
	return sandbox.Output{Stdout: f.vivliostyleStdout}, nil
}

func bindTarget(args []string) string {
	for i, a := range args {
		if a == "--bind" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestExecutor_RenderExportFormat_RawThenVivliostyle(t *testing.T) {
	tempRoot := t.TempDir()
	bundleDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "assets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "formats", "pdf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "formats", "pdf", "main.hbs.html"), []byte("<h1>{{.title}}</h1>"), 0o644))

	format := exportformat.ExportFormat{
		Slug: "pdf",
		Steps: []exportformat.ExportStep{
			{
				Name:        "render",
				Kind:        exportformat.RawStep{EntryPoint: "main.hbs.html", OutputFile: "main.html"},
				FilesToKeep: []string{"main.html"},
			},
			{
				Name:        "layout",
				Kind:        exportformat.VivliostyleStep{InputFile: "main.html", OutputFile: "main.pdf"},
				FilesToKeep: []string{"main.pdf"},
			},
		},
	}

	runner := fakeRunner{vivliostyleStdout: "Built successfully"}
	exec := New(hclog.NewNullLogger(), tempRoot, runner)

	project := projects.NewPreparedProject([]byte(`{"title":"Hello"}`))
	result, err := exec.RenderExportFormat(context.Background(), bundleDir, project, projects.DiskUploads{}, format)
	require.Nil(t, err)

	require.Len(t, result.FilesToTransfer, 1)
	require.Equal(t, "main.pdf", filepath.Base(result.FilesToTransfer[0]))
	require.Len(t, result.ScratchDirs, 2)
}

func TestExecutor_RenderExportFormat_MissingFileToKeepFails(t *testing.T) {
	tempRoot := t.TempDir()
	bundleDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "assets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "formats", "pdf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "formats", "pdf", "main.hbs.html"), []byte("<h1>ok</h1>"), 0o644))

	format := exportformat.ExportFormat{
		Slug: "pdf",
		Steps: []exportformat.ExportStep{
			{
				Name:        "render",
				Kind:        exportformat.RawStep{EntryPoint: "main.hbs.html", OutputFile: "main.html"},
				FilesToKeep: []string{"never-written.html"},
			},
		},
	}

	exec := New(hclog.NewNullLogger(), tempRoot, fakeRunner{})
	project := projects.NewPreparedProject([]byte(`{}`))

	_, err := exec.RenderExportFormat(context.Background(), bundleDir, project, projects.DiskUploads{}, format)
	require.NotNil(t, err)
	require.IsType(t, render.ErrMissingExpectedFileToKeep{}, err)
}
