// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package conn implements the Connection Handler (spec §4.C): the
// per-accepted-peer state machine that negotiates missing template data,
// stages uploads, enqueues the job, and streams status back to the peer
// until it reaches a terminal state.
package conn

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/queue"
	"github.com/hashicorp/nomad-render-worker/internal/render"
	"github.com/hashicorp/nomad-render-worker/internal/wire"
)

// statusPollInterval matches the original source's 500ms status-streaming
// tick.
const statusPollInterval = 500 * time.Millisecond

// Cache is the subset of internal/cache.Cache the handler needs.
type Cache interface {
	render.ExportFormatLookup
	HasVersion(templateID, versionID string) bool
	Install(templateID, versionID string, contents projects.FileTree, formats map[string]exportformat.ExportFormat) error
}

// Handler runs one accepted connection through the state machine.
type Handler struct {
	log      hclog.Logger
	cache    Cache
	queue    *queue.Queue
	statuses *queue.StatusMap
	tempRoot string
}

// New constructs a Handler sharing the process-wide cache, queue, and
// status map.
func New(log hclog.Logger, cache Cache, q *queue.Queue, statuses *queue.StatusMap, tempRoot string) *Handler {
	return &Handler{log: log.Named("conn"), cache: cache, queue: q, statuses: statuses, tempRoot: tempRoot}
}

// Handle drives conn through the full connection protocol state machine
// until the peer disconnects or a terminal status has been streamed.
func (h *Handler) Handle(nc net.Conn) {
	defer nc.Close()

	msg, err := wire.ReadMessage(nc)
	if err != nil {
		h.log.Debug("failed reading initial message, closing", "error", err)
		return
	}
	if msg.Type != wire.TypeRenderingRequest || msg.RenderingRequest == nil {
		h.sendCommErr(nc, render.ErrUnexpectedMessageType)
		return
	}

	req := msg.RenderingRequest.ToRequest()
	log := h.log.With("request_id", req.RequestID)

	if err := h.statuses.SetIfAbsent(req.RequestID, render.SentToWorker()); err != nil {
		log.Warn("rejecting duplicate request id", "error", err)
		h.sendCommErr(nc, render.ErrUnexpectedMessageType)
		return
	}
	defer h.statuses.Remove(req.RequestID)

	if ok := h.ensureTemplateCached(nc, log, req); !ok {
		return
	}

	if err := h.stageUploads(req); err != nil {
		log.Warn("couldn't stage uploads", "error", err)
		_ = h.statuses.Transition(req.RequestID, render.Failed(render.ErrOther{Detail: fmt.Sprintf("IO Error saving uploads: %s", err)}))
	} else {
		if err := h.statuses.Transition(req.RequestID, render.Queued()); err != nil {
			log.Warn("couldn't transition to queued", "error", err)
		}
		h.queue.PushFront(req)
	}

	h.streamStatus(nc, log, req.RequestID)
}

func (h *Handler) ensureTemplateCached(nc net.Conn, log hclog.Logger, req *render.Request) bool {
	if h.cache.HasVersion(req.TemplateID, req.TemplateVersionID) {
		return true
	}

	if err := h.statuses.Transition(req.RequestID, render.RequestingTemplate()); err != nil {
		log.Warn("couldn't transition to requesting template", "error", err)
		return false
	}

	if err := wire.SendMessage(nc, wire.TemplateDataRequest(req.TemplateID, req.TemplateVersionID)); err != nil {
		log.Debug("failed sending template data request, closing", "error", err)
		return false
	}

	reply, err := wire.ReadMessage(nc)
	if err != nil {
		log.Debug("failed reading template data result, closing", "error", err)
		return false
	}
	if reply.Type != wire.TypeTemplateDataResult || reply.TemplateDataResult == nil {
		h.sendCommErr(nc, render.ErrUnexpectedMessageType)
		return false
	}

	result := reply.TemplateDataResult
	if result.TemplateID != req.TemplateID || result.TemplateVersionID != req.TemplateVersionID {
		h.sendCommErr(nc, render.ErrWrongTemplateDataSend)
		return false
	}

	if err := h.cache.Install(req.TemplateID, req.TemplateVersionID, result.ContentsTree(), result.ToExportFormats()); err != nil {
		log.Debug("failed installing template bundle, closing", "error", err)
		return false
	}

	return true
}

// stageUploads rewrites req's ProjectUploadedFiles from Memory to Disk,
// leaving Disk uploads (and the zero value) untouched. Grounded on
// spec.md §4.C step 4.
func (h *Handler) stageUploads(req *render.Request) error {
	mem, ok := req.ProjectUploadedFiles.(projects.MemoryUploads)
	if !ok {
		return nil
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("generating uploads directory id: %w", err)
	}
	dir := filepath.Join(h.tempRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating uploads directory: %w", err)
	}
	if err := mem.Tree.WriteToDisk(dir); err != nil {
		return fmt.Errorf("writing uploads to disk: %w", err)
	}

	req.ProjectUploadedFiles = projects.DiskUploads{Path: dir}
	return nil
}

func (h *Handler) streamStatus(nc net.Conn, log hclog.Logger, requestID string) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		status, ok := h.statuses.Get(requestID)
		if !ok {
			status = render.Failed(render.ErrOther{Detail: "Not Found"})
		}

		if err := wire.SendMessage(nc, wire.RenderingRequestStatus(requestID, status)); err != nil {
			log.Debug("failed streaming status, closing", "error", err)
			return
		}

		if !ok || status.Kind.Terminal() {
			return
		}
	}
}

func (h *Handler) sendCommErr(nc net.Conn, kind render.CommunicationError) {
	if err := wire.SendMessage(nc, wire.CommunicationErrorMessage(kind)); err != nil {
		h.log.Debug("failed sending communication error", "error", err)
	}
}
