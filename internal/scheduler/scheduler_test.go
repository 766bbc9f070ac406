// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/queue"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

type fakeLookup struct {
	formats map[string]exportformat.ExportFormat
}

func (f fakeLookup) Lookup(templateID string) (string, map[string]exportformat.ExportFormat, bool) {
	return "v1", f.formats, true
}

type fakeBundles struct{ dir string }

func (f fakeBundles) BundleDir(templateID string) (string, bool) { return f.dir, true }

type fakeExecutor struct {
	result pipeline.Result
	err    render.Error
}

func (f fakeExecutor) RenderExportFormat(_ context.Context, _ string, _ projects.PreparedProject, _ projects.Uploads, _ exportformat.ExportFormat) (pipeline.Result, render.Error) {
	return f.result, f.err
}

func waitForStatus(t *testing.T, statuses *queue.StatusMap, requestID string, want render.StatusKind) render.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, ok := statuses.Get(requestID); ok && status.Kind == want {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never reached %s", want)
	return render.Status{}
}

func TestScheduler_RunJobFinishesOnSuccess(t *testing.T) {
	tempDir := t.TempDir()
	outputFile := filepath.Join(tempDir, "book.pdf")
	require.NoError(t, os.WriteFile(outputFile, []byte("pdf bytes"), 0o644))

	q := queue.NewQueue()
	statuses := queue.NewStatusMap()
	lookup := fakeLookup{formats: map[string]exportformat.ExportFormat{"pdf": {Slug: "pdf"}}}
	bundles := fakeBundles{dir: tempDir}
	executor := fakeExecutor{result: pipeline.Result{FilesToTransfer: []string{outputFile}}}

	sched := New(hclog.NewNullLogger(), q, statuses, lookup, bundles, executor, 4)

	req := &render.Request{RequestID: "req-1", TemplateID: "tpl-1", ExportFormats: []string{"pdf"}, ProjectUploadedFiles: projects.DiskUploads{}}
	require.NoError(t, statuses.SetIfAbsent(req.RequestID, render.SentToWorker()))
	q.PushFront(req)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	status := waitForStatus(t, statuses, "req-1", render.StatusFinished)
	require.Len(t, status.Result.Files, 1)
	require.Equal(t, "book.pdf", status.Result.Files[0].Name)
}

func TestScheduler_RunJobFailsWhenExportFormatErrors(t *testing.T) {
	tempDir := t.TempDir()

	q := queue.NewQueue()
	statuses := queue.NewStatusMap()
	lookup := fakeLookup{formats: map[string]exportformat.ExportFormat{"pdf": {Slug: "pdf"}}}
	bundles := fakeBundles{dir: tempDir}
	executor := fakeExecutor{err: render.ErrVivliostyleRenderingFailed{Log: "boom"}}

	sched := New(hclog.NewNullLogger(), q, statuses, lookup, bundles, executor, 4)

	req := &render.Request{RequestID: "req-2", TemplateID: "tpl-1", ExportFormats: []string{"pdf"}, ProjectUploadedFiles: projects.DiskUploads{}}
	require.NoError(t, statuses.SetIfAbsent(req.RequestID, render.SentToWorker()))
	q.PushFront(req)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	status := waitForStatus(t, statuses, "req-2", render.StatusFailed)
	require.IsType(t, render.ErrVivliostyleRenderingFailed{}, status.Err)
}

func TestScheduler_UnknownTemplateFails(t *testing.T) {
	q := queue.NewQueue()
	statuses := queue.NewStatusMap()
	lookup := unknownLookup{}
	bundles := fakeBundles{dir: t.TempDir()}
	executor := fakeExecutor{}

	sched := New(hclog.NewNullLogger(), q, statuses, lookup, bundles, executor, 4)

	req := &render.Request{RequestID: "req-3", TemplateID: "missing", ProjectUploadedFiles: projects.DiskUploads{}}
	require.NoError(t, statuses.SetIfAbsent(req.RequestID, render.SentToWorker()))
	q.PushFront(req)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	status := waitForStatus(t, statuses, "req-3", render.StatusFailed)
	require.IsType(t, render.ErrTemplateNotFound{}, status.Err)
}

type unknownLookup struct{}

func (unknownLookup) Lookup(templateID string) (string, map[string]exportformat.ExportFormat, bool) {
	return "", nil, false
}
