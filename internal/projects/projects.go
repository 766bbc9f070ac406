// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package projects holds the opaque, document-model-agnostic values that
// flow between the main server and the rendering worker: the prepared
// project handed to the templating step, and the project upload tree
// staged onto disk before a job enters the queue.
//
// Neither type's internal schema is specified by the system; only the
// shapes fixed by the wire protocol (a JSON blob, and a file tree that is
// either already resident in memory or already materialized on disk) are
// modeled here.
package projects

import (
	"encoding/json"
	"fmt"
)

// PreparedProject is the opaque document-model value consumed by the
// templating step. Its schema is owned by the main server; the worker
// only needs to hand it to the template engine as structured data.
type PreparedProject struct {
	raw json.RawMessage
}

// NewPreparedProject wraps an already-encoded JSON document.
func NewPreparedProject(raw []byte) PreparedProject {
	return PreparedProject{raw: append([]byte(nil), raw...)}
}

// Data decodes the prepared project into a generic value suitable for use
// as template context.
func (p PreparedProject) Data() (any, error) {
	if len(p.raw) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(p.raw, &v); err != nil {
		return nil, fmt.Errorf("decoding prepared project: %w", err)
	}
	return v, nil
}

// MarshalJSON/UnmarshalJSON expose the raw JSON document; internal/wire
// calls them to carry the prepared project as a byte payload inside its
// msgpack-encoded messages.
func (p PreparedProject) MarshalJSON() ([]byte, error) {
	if p.raw == nil {
		return []byte("null"), nil
	}
	return p.raw, nil
}

func (p *PreparedProject) UnmarshalJSON(data []byte) error {
	p.raw = append([]byte(nil), data...)
	return nil
}

// FileTree is a recursive, in-memory directory tree: leaf files keyed by
// name, and subdirectories keyed by name holding further trees. It mirrors
// the shape implied by the original source's recursive directory writer
// without inventing any additional structure.
type FileTree struct {
	Files map[string][]byte  `codec:"files"`
	Dirs  map[string]FileTree `codec:"dirs"`
}

// Uploads is the tagged variant of where a job's project uploads live:
// still in memory (freshly received over the wire) or already staged to
// a directory on the worker's local disk.
type Uploads interface {
	isUploads()
}

// MemoryUploads carries an upload tree that has not yet been written to
// disk. The connection handler normalizes every MemoryUploads into a
// DiskUploads before a job is allowed to enter the queue.
type MemoryUploads struct {
	Tree FileTree
}

func (MemoryUploads) isUploads() {}

// DiskUploads carries the path to a directory already materialized on
// disk. Every job the scheduler pops off the queue carries this variant.
type DiskUploads struct {
	Path string
}

func (DiskUploads) isUploads() {}
