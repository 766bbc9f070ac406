// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

func TestSendReadMessage_RenderingRequestRoundTrip(t *testing.T) {
	req := &render.Request{
		RequestID:         "req-1",
		TemplateID:        "tpl-1",
		TemplateVersionID: "v1",
		ExportFormats:     []string{"pdf", "epub"},
		PreparedProject:   projects.NewPreparedProject([]byte(`{"title":"hello"}`)),
		ProjectUploadedFiles: projects.MemoryUploads{
			Tree: projects.FileTree{Files: map[string][]byte{"a.txt": []byte("hi")}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, SendMessage(&buf, RenderingRequest(req)))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeRenderingRequest, got.Type)

	roundTripped := got.RenderingRequest.ToRequest()
	require.Equal(t, req.RequestID, roundTripped.RequestID)
	require.Equal(t, req.TemplateID, roundTripped.TemplateID)
	require.Equal(t, req.ExportFormats, roundTripped.ExportFormats)

	data, err := roundTripped.PreparedProject.Data()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"title": "hello"}, data)

	mem, ok := roundTripped.ProjectUploadedFiles.(projects.MemoryUploads)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), mem.Tree.Files["a.txt"])
}

func TestSendReadMessage_StatusRoundTripPreservesError(t *testing.T) {
	status := render.Failed(render.ErrMissingExpectedFileToKeep{Name: "book.pdf", Log: "not found"})

	var buf bytes.Buffer
	require.NoError(t, SendMessage(&buf, RenderingRequestStatus("req-1", status)))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)

	roundTripped := got.RenderingRequestStatus.ToStatus()
	require.Equal(t, render.StatusFailed, roundTripped.Kind)

	missing, ok := roundTripped.Err.(render.ErrMissingExpectedFileToKeep)
	require.True(t, ok)
	require.Equal(t, "book.pdf", missing.Name)
}

func TestExportFormat_WireConversionRoundTrip(t *testing.T) {
	shift := 1
	format := exportformat.ExportFormat{
		Slug: "pdf",
		Steps: []exportformat.ExportStep{
			{Name: "render", Kind: exportformat.RawStep{EntryPoint: "main.hbs.html", OutputFile: "main.html"}, FilesToKeep: []string{"main.html"}},
			{Name: "convert", Kind: exportformat.PandocStep{
				InputFile: "main.html", OutputFile: "main.pdf",
				InputFormat: "html", OutputFormat: "pdf",
				ShiftHeadingLevelBy: &shift,
			}},
		},
	}

	formats := map[string]exportformat.ExportFormat{"pdf": format}
	msgFormats := TemplateDataResultFromFormats("tpl-1", "v1", formats)

	result := &TemplateDataResultMsg{TemplateID: "tpl-1", TemplateVersionID: "v1", ExportFormats: msgFormats}
	back := result.ToExportFormats()

	require.Equal(t, format, back["pdf"])
}
