// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package render holds the data model shared by the connection handler,
// the template cache, the job queue, and the pipeline executor: rendering
// requests, rendering status, and the closed set of rendering errors
// surfaced to the peer.
package render

import (
	"fmt"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
)

// Request is a rendering request as received from the peer, normalized
// in place by the connection handler (its ProjectUploadedFiles field is
// rewritten from Memory to Disk before the request is queued).
type Request struct {
	RequestID            string
	TemplateID           string
	TemplateVersionID    string
	ExportFormats        []string
	PreparedProject      projects.PreparedProject
	ProjectUploadedFiles projects.Uploads
}

// Clone returns a shallow copy of the request with its own ExportFormats
// slice, so the worker goroutine it is handed to owns its own request
// value. PreparedProject and ProjectUploadedFiles are shared with the
// original, not deep-copied.
func (r *Request) Clone() *Request {
	cp := *r
	cp.ExportFormats = append([]string(nil), r.ExportFormats...)
	return &cp
}

// NamedFile is one output file returned to the peer as part of a
// Finished status.
type NamedFile struct {
	Name    string
	Content []byte
}

// Result is the payload of a Finished status.
type Result struct {
	Files []NamedFile
}

// StatusKind enumerates the states a Status can be in. Ordering matters:
// it is used to enforce the monotonic forward-progress rule.
type StatusKind int

const (
	StatusSentToWorker StatusKind = iota
	StatusRequestingTemplate
	StatusQueued
	StatusRunning
	StatusFinished
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusSentToWorker:
		return "SentToWorker"
	case StatusRequestingTemplate:
		return "RequestingTemplate"
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Running"
	case StatusFinished:
		return "Finished"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Terminal reports whether the status kind is a terminal state.
func (k StatusKind) Terminal() bool {
	return k == StatusFinished || k == StatusFailed
}

// Status is a rendering status, as streamed to the peer throughout the
// lifetime of a request.
type Status struct {
	Kind   StatusKind
	Result Result // valid when Kind == StatusFinished
	Err    Error  // valid when Kind == StatusFailed
}

func SentToWorker() Status            { return Status{Kind: StatusSentToWorker} }
func RequestingTemplate() Status      { return Status{Kind: StatusRequestingTemplate} }
func Queued() Status                  { return Status{Kind: StatusQueued} }
func Running() Status                 { return Status{Kind: StatusRunning} }
func Finished(files []NamedFile) Status {
	return Status{Kind: StatusFinished, Result: Result{Files: files}}
}
func Failed(err Error) Status { return Status{Kind: StatusFailed, Err: err} }

// ExportFormatLookup resolves a template id into its cached version id and
// its export formats keyed by slug. Implemented by internal/cache.
type ExportFormatLookup interface {
	Lookup(templateID string) (versionID string, formats map[string]exportformat.ExportFormat, ok bool)
}
