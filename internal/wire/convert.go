// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package wire

import (
	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// RenderingRequest builds the Message wrapping a fresh job submission.
// Only used by tests and by peers emulating the main server; the worker
// itself only ever decodes this variant.
func RenderingRequest(req *render.Request) Message {
	raw, _ := req.PreparedProject.MarshalJSON()
	return Message{
		Type: TypeRenderingRequest,
		RenderingRequest: &RenderingRequestMsg{
			RequestID:            req.RequestID,
			TemplateID:           req.TemplateID,
			TemplateVersionID:    req.TemplateVersionID,
			ExportFormats:        req.ExportFormats,
			PreparedProject:      raw,
			ProjectUploadedFiles: uploadsToWire(req.ProjectUploadedFiles),
		},
	}
}

// ToRequest converts a decoded RenderingRequestMsg into the internal
// render.Request the rest of the worker operates on.
func (m *RenderingRequestMsg) ToRequest() *render.Request {
	req := &render.Request{
		RequestID:            m.RequestID,
		TemplateID:           m.TemplateID,
		TemplateVersionID:    m.TemplateVersionID,
		ExportFormats:        m.ExportFormats,
		ProjectUploadedFiles: uploadsFromWire(m.ProjectUploadedFiles),
	}
	req.PreparedProject.UnmarshalJSON(m.PreparedProject)
	return req
}

// TemplateDataRequest builds the message the worker sends to ask the peer
// for a template bundle it does not yet have cached.
func TemplateDataRequest(templateID, versionID string) Message {
	return Message{
		Type: TypeTemplateDataRequest,
		TemplateDataRequest: &TemplateDataRequestMsg{
			TemplateID:        templateID,
			TemplateVersionID: versionID,
		},
	}
}

// TemplateDataResultFromFormats converts the cache's export-format map
// into its wire shape, for use in tests emulating the peer's answer.
func TemplateDataResultFromFormats(templateID, versionID string, formats map[string]exportformat.ExportFormat) map[string]ExportFormatMsg {
	out := make(map[string]ExportFormatMsg, len(formats))
	for slug, f := range formats {
		out[slug] = exportFormatToWire(f)
	}
	return out
}

// ContentsTree converts the decoded TemplateDataResultMsg's raw file tree
// into the internal representation the cache writes to disk.
func (m *TemplateDataResultMsg) ContentsTree() projects.FileTree {
	return fileTreeFromWire(m.Contents)
}

// ToExportFormats converts a decoded TemplateDataResultMsg's formats back
// into the internal representation the cache stores.
func (m *TemplateDataResultMsg) ToExportFormats() map[string]exportformat.ExportFormat {
	out := make(map[string]exportformat.ExportFormat, len(m.ExportFormats))
	for slug, f := range m.ExportFormats {
		out[slug] = exportFormatFromWire(f)
	}
	return out
}

// RenderingRequestStatus builds the status-update message the connection
// handler streams to the peer.
func RenderingRequestStatus(requestID string, status render.Status) Message {
	return Message{
		Type: TypeRenderingRequestStatus,
		RenderingRequestStatus: &RenderingRequestStatusMsg{
			RequestID: requestID,
			Status:    statusToWire(status),
		},
	}
}

// ToStatus converts a decoded RenderingRequestStatusMsg into the internal
// status representation.
func (m *RenderingRequestStatusMsg) ToStatus() render.Status {
	return statusFromWire(m.Status)
}

// CommunicationErrorMessage builds the protocol-error message sent just
// before closing a connection.
func CommunicationErrorMessage(kind render.CommunicationError) Message {
	return Message{
		Type:               TypeCommunicationError,
		CommunicationError: &CommunicationErrorMsg{Kind: uint8(kind)},
	}
}
