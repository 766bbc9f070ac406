// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
)

func TestVivliostyleArgs_PressReadyAppendsFlag(t *testing.T) {
	step := exportformat.VivliostyleStep{InputFile: "main.html", OutputFile: "main.pdf", PressReady: true}
	args := VivliostyleArgs(step, "/scratch/job-1", "rendering-envs/vivliostyle")

	require.Contains(t, args, "-p")
	require.Contains(t, args, "/data/main.html")
	require.Contains(t, args, "/data/main.pdf")
	require.Contains(t, args, "--executable-browser")

	// The bind of the scratch dir at /data and the env root at /env must
	// both be present regardless of press-ready.
	require.Subset(t, args, []string{"--bind", "/scratch/job-1", "/data"})
	require.Subset(t, args, []string{"--ro-bind", "rendering-envs/vivliostyle", "/env"})
}

func TestVivliostyleArgs_WithoutPressReadyOmitsFlag(t *testing.T) {
	step := exportformat.VivliostyleStep{InputFile: "main.html", OutputFile: "main.pdf"}
	args := VivliostyleArgs(step, "/scratch/job-1", "rendering-envs/vivliostyle")

	require.NotContains(t, args, "-p")
}

func TestPandocArgs_OptionalFlags(t *testing.T) {
	shift := 2
	titlePage := true
	step := exportformat.PandocStep{
		InputFile:     "main.html",
		OutputFile:    "main.epub",
		InputFormat:   "html",
		OutputFormat:  "epub3",
		ShiftHeadingLevelBy: &shift,
		EPUBTitlePage: &titlePage,
		EPUBEmbedFonts: []string{"Inter.ttf", "Inter-Bold.ttf"},
	}

	args := PandocArgs(step, "/scratch/job-2", "rendering-envs/pandoc")

	require.Contains(t, args, "--shift-heading-level-by=2")
	require.Contains(t, args, "--epub-title-page=true")
	require.Contains(t, args, "--epub-embed-font=Inter.ttf")
	require.Contains(t, args, "--epub-embed-font=Inter-Bold.ttf")
	require.Equal(t, "data/main.html", args[len(args)-1], "input file must be the final positional argument")
}

func TestPandocArgs_OmitsUnsetOptionalFlags(t *testing.T) {
	step := exportformat.PandocStep{InputFile: "main.html", OutputFile: "main.epub", InputFormat: "html", OutputFormat: "epub3"}
	args := PandocArgs(step, "/scratch/job-2", "rendering-envs/pandoc")

	for _, a := range args {
		require.NotContains(t, a, "--shift-heading-level-by")
		require.NotContains(t, a, "--epub-title-page")
	}
}
