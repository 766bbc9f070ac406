// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package scheduler is the Rendering Scheduler: a single background
// goroutine that pops jobs off the queue and fans each one out across a
// per-export-format worker goroutine, bounded by an atomic ceiling on the
// number of concurrently rendering jobs. Grounded on the original
// source's rendering_worker loop.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/queue"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// pollInterval matches the original source's 500ms scheduler tick.
const pollInterval = 500 * time.Millisecond

// BundleDirLookup resolves a template id's on-disk bundle directory,
// implemented by internal/cache.
type BundleDirLookup interface {
	BundleDir(templateID string) (string, bool)
}

// Executor runs one export format's pipeline. Implemented by
// internal/pipeline.Executor; declared as an interface here so tests can
// substitute a fake that never touches the filesystem or a real bwrap
// binary.
type Executor interface {
	RenderExportFormat(ctx context.Context, bundleDir string, project projects.PreparedProject, uploads projects.Uploads, format exportformat.ExportFormat) (pipeline.Result, render.Error)
}

// Scheduler runs the background rendering loop.
type Scheduler struct {
	log hclog.Logger

	queue    *queue.Queue
	statuses *queue.StatusMap
	lookup   render.ExportFormatLookup
	bundles  BundleDirLookup
	executor Executor

	maxConcurrent int64
	live          atomic.Int64
}

// New constructs a Scheduler. maxConcurrent is the configured
// max_rendering_threads ceiling.
func New(log hclog.Logger, q *queue.Queue, statuses *queue.StatusMap, lookup render.ExportFormatLookup, bundles BundleDirLookup, executor Executor, maxConcurrent int) *Scheduler {
	return &Scheduler{
		log:           log.Named("scheduler"),
		queue:         q,
		statuses:      statuses,
		lookup:        lookup,
		bundles:       bundles,
		executor:      executor,
		maxConcurrent: int64(maxConcurrent),
	}
}

// Run blocks, dequeuing and dispatching jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.live.Load() >= s.maxConcurrent {
			s.log.Debug("too many running subthreads, waiting for one to end")
			continue
		}

		job := s.queue.PopFront()
		if job == nil {
			continue
		}

		s.live.Add(1)
		go s.runJob(ctx, job.Clone())
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *render.Request) {
	defer s.live.Add(-1)

	log := s.log.With("request_id", job.RequestID)
	log.Debug("found rendering request")

	if err := s.statuses.Transition(job.RequestID, render.Running()); err != nil {
		log.Warn("couldn't transition to running", "error", err)
		return
	}

	_, formats, ok := s.lookup.Lookup(job.TemplateID)
	if !ok {
		s.fail(log, job, render.ErrTemplateNotFound{})
		return
	}
	bundleDir, ok := s.bundles.BundleDir(job.TemplateID)
	if !ok {
		s.fail(log, job, render.ErrTemplateNotFound{})
		return
	}

	type formatResult struct {
		res pipeline.Result
		err render.Error
	}

	results := make([]formatResult, len(job.ExportFormats))
	var wg sync.WaitGroup
	for i, slug := range job.ExportFormats {
		format, ok := formats[slug]
		if !ok {
			results[i] = formatResult{err: render.ErrTemplateNotFound{}}
			continue
		}

		wg.Add(1)
		i, format := i, format
		go func() {
			defer wg.Done()
			log.Debug("started rendering export format", "export_format", format.Slug)
			res, err := s.executor.RenderExportFormat(ctx, bundleDir, job.PreparedProject, job.ProjectUploadedFiles, format)
			results[i] = formatResult{res: res, err: err}
		}()
	}
	wg.Wait()

	var allDirs []string
	for _, r := range results {
		allDirs = append(allDirs, r.res.ScratchDirs...)
	}

	var files []render.NamedFile
	for _, r := range results {
		if r.err != nil {
			log.Error("export format failed rendering", "error", r.err)
			cleanupDirs(log, allDirs)
			cleanupUploads(log, job.ProjectUploadedFiles)
			s.fail(log, job, r.err)
			return
		}
		for _, path := range r.res.FilesToTransfer {
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				log.Error("failed to read result file", "path", path, "error", readErr)
				continue
			}
			files = append(files, render.NamedFile{Name: filepath.Base(path), Content: content})
		}
	}

	cleanupDirs(log, allDirs)
	cleanupUploads(log, job.ProjectUploadedFiles)

	if err := s.statuses.Transition(job.RequestID, render.Finished(files)); err != nil {
		log.Warn("couldn't transition to finished", "error", err)
	}
}

func (s *Scheduler) fail(log hclog.Logger, job *render.Request, err render.Error) {
	if tErr := s.statuses.Transition(job.RequestID, render.Failed(err)); tErr != nil {
		log.Warn("couldn't transition to failed", "error", tErr)
	}
}

// cleanupDirs removes every scratch directory, joining any removal failures
// into a single error so one busy/locked directory doesn't hide the others
// from the log.
func cleanupDirs(log hclog.Logger, dirs []string) {
	var result *multierror.Error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", dir, err))
		}
	}
	if result != nil {
		log.Warn("couldn't delete some temp dirs, keeping them for now", "error", result)
	}
}

func cleanupUploads(log hclog.Logger, uploads projects.Uploads) {
	disk, ok := uploads.(projects.DiskUploads)
	if !ok || disk.Path == "" {
		return
	}
	if err := os.RemoveAll(disk.Path); err != nil {
		log.Warn("couldn't delete project uploads dir", "path", disk.Path, "error", err)
	}
}
