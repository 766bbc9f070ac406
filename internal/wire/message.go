// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package wire implements the length-delimited framed message codec and
// the Message tagged union described by spec.md §6 as an external
// collaborator. It is the concrete stand-in for the original source's
// send_message/read_message pair.
package wire

import (
	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// MessageType tags which variant of Message is populated.
type MessageType uint8

const (
	TypeRenderingRequest MessageType = iota
	TypeTemplateDataRequest
	TypeTemplateDataResult
	TypeRenderingRequestStatus
	TypeCommunicationError
)

// Message is the tagged union of every message the worker and the main
// server exchange. Exactly one of the payload fields is populated,
// selected by Type; this mirrors how the teacher's own RPC argument
// structs carry a discriminant plus a single populated payload rather
// than using reflection-heavy interface marshaling over the wire.
type Message struct {
	Type                   MessageType
	RenderingRequest       *RenderingRequestMsg       `codec:",omitempty"`
	TemplateDataRequest    *TemplateDataRequestMsg    `codec:",omitempty"`
	TemplateDataResult     *TemplateDataResultMsg     `codec:",omitempty"`
	RenderingRequestStatus *RenderingRequestStatusMsg `codec:",omitempty"`
	CommunicationError     *CommunicationErrorMsg     `codec:",omitempty"`
}

// RenderingRequestMsg is the peer's initial job submission.
type RenderingRequestMsg struct {
	RequestID            string
	TemplateID           string
	TemplateVersionID    string
	ExportFormats        []string
	PreparedProject      []byte // raw JSON, see projects.PreparedProject
	ProjectUploadedFiles UploadsMsg
}

// UploadsMsg is the wire shape of projects.Uploads: exactly one of Tree
// (Memory variant) or Path (Disk variant) is set.
type UploadsMsg struct {
	IsDisk bool
	Tree   FileTreeMsg
	Path   string
}

// FileTreeMsg is the wire shape of projects.FileTree.
type FileTreeMsg struct {
	Files map[string][]byte
	Dirs  map[string]FileTreeMsg
}

// TemplateDataRequestMsg asks the peer for a template bundle.
type TemplateDataRequestMsg struct {
	TemplateID        string
	TemplateVersionID string
}

// TemplateDataResultMsg is the peer's answer to a TemplateDataRequestMsg.
type TemplateDataResultMsg struct {
	TemplateID        string
	TemplateVersionID string
	Contents          FileTreeMsg
	ExportFormats     map[string]ExportFormatMsg
}

// RenderingRequestStatusMsg streams the current status of a request.
type RenderingRequestStatusMsg struct {
	RequestID string
	Status    StatusMsg
}

// CommunicationErrorMsg reports a protocol-level violation.
type CommunicationErrorMsg struct {
	Kind uint8
}

// ExportFormatMsg / ExportStepMsg are the wire shapes of
// exportformat.ExportFormat / exportformat.ExportStep. ExportStepMsg
// flattens the StepKind tagged union into a discriminant plus three
// optional payloads, the same pattern Message itself uses.
type ExportFormatMsg struct {
	Slug  string
	Steps []ExportStepMsg
}

type StepKindTag uint8

const (
	StepKindRaw StepKindTag = iota
	StepKindVivliostyle
	StepKindPandoc
)

type ExportStepMsg struct {
	Name        string
	Kind        StepKindTag
	FilesToKeep []string
	Raw         *RawStepMsg         `codec:",omitempty"`
	Vivliostyle *VivliostyleStepMsg `codec:",omitempty"`
	Pandoc      *PandocStepMsg      `codec:",omitempty"`
}

type RawStepMsg struct {
	EntryPoint string
	OutputFile string
}

type VivliostyleStepMsg struct {
	InputFile  string
	OutputFile string
	PressReady bool
}

type PandocStepMsg struct {
	InputFile           string
	OutputFile          string
	InputFormat         string
	OutputFormat        string
	ShiftHeadingLevelBy *int
	MetadataFile        *string
	EPUBCoverImagePath  *string
	EPUBTitlePage       *bool
	EPUBMetadataFile    *string
	EPUBEmbedFonts      []string
}

// StatusMsg is the wire shape of render.Status.
type StatusMsg struct {
	Kind  uint8
	Files []NamedFileMsg
	Err   *RenderingErrorMsg
}

type NamedFileMsg struct {
	Name    string
	Content []byte
}

type RenderingErrorTag uint8

const (
	ErrTagTemplateNotFound RenderingErrorTag = iota
	ErrTagCouldntLoadHandlebarTemplates
	ErrTagHandlebarsRenderingFailed
	ErrTagVivliostyleRenderingFailed
	ErrTagPandocConversionFailed
	ErrTagMissingExpectedFileToKeep
	ErrTagOther
)

type RenderingErrorMsg struct {
	Tag    RenderingErrorTag
	Detail string // generic message/log payload
	Name   string // only for MissingExpectedFileToKeep
}

// --- conversions between wire shapes and internal domain types ---

func fileTreeToWire(t projects.FileTree) FileTreeMsg {
	m := FileTreeMsg{Files: t.Files, Dirs: make(map[string]FileTreeMsg, len(t.Dirs))}
	for name, sub := range t.Dirs {
		m.Dirs[name] = fileTreeToWire(sub)
	}
	return m
}

func fileTreeFromWire(m FileTreeMsg) projects.FileTree {
	t := projects.FileTree{Files: m.Files, Dirs: make(map[string]projects.FileTree, len(m.Dirs))}
	for name, sub := range m.Dirs {
		t.Dirs[name] = fileTreeFromWire(sub)
	}
	return t
}

func uploadsToWire(u projects.Uploads) UploadsMsg {
	switch v := u.(type) {
	case projects.DiskUploads:
		return UploadsMsg{IsDisk: true, Path: v.Path}
	case projects.MemoryUploads:
		return UploadsMsg{IsDisk: false, Tree: fileTreeToWire(v.Tree)}
	default:
		return UploadsMsg{}
	}
}

func uploadsFromWire(m UploadsMsg) projects.Uploads {
	if m.IsDisk {
		return projects.DiskUploads{Path: m.Path}
	}
	return projects.MemoryUploads{Tree: fileTreeFromWire(m.Tree)}
}

func exportStepToWire(s exportformat.ExportStep) ExportStepMsg {
	out := ExportStepMsg{Name: s.Name, FilesToKeep: s.FilesToKeep}
	switch k := s.Kind.(type) {
	case exportformat.RawStep:
		out.Kind = StepKindRaw
		out.Raw = &RawStepMsg{EntryPoint: k.EntryPoint, OutputFile: k.OutputFile}
	case exportformat.VivliostyleStep:
		out.Kind = StepKindVivliostyle
		out.Vivliostyle = &VivliostyleStepMsg{InputFile: k.InputFile, OutputFile: k.OutputFile, PressReady: k.PressReady}
	case exportformat.PandocStep:
		out.Kind = StepKindPandoc
		out.Pandoc = &PandocStepMsg{
			InputFile:           k.InputFile,
			OutputFile:          k.OutputFile,
			InputFormat:         k.InputFormat,
			OutputFormat:        k.OutputFormat,
			ShiftHeadingLevelBy: k.ShiftHeadingLevelBy,
			MetadataFile:        k.MetadataFile,
			EPUBCoverImagePath:  k.EPUBCoverImagePath,
			EPUBTitlePage:       k.EPUBTitlePage,
			EPUBMetadataFile:    k.EPUBMetadataFile,
			EPUBEmbedFonts:      k.EPUBEmbedFonts,
		}
	}
	return out
}

func exportStepFromWire(m ExportStepMsg) exportformat.ExportStep {
	step := exportformat.ExportStep{Name: m.Name, FilesToKeep: m.FilesToKeep}
	switch m.Kind {
	case StepKindRaw:
		if m.Raw != nil {
			step.Kind = exportformat.RawStep{EntryPoint: m.Raw.EntryPoint, OutputFile: m.Raw.OutputFile}
		}
	case StepKindVivliostyle:
		if m.Vivliostyle != nil {
			step.Kind = exportformat.VivliostyleStep{
				InputFile:  m.Vivliostyle.InputFile,
				OutputFile: m.Vivliostyle.OutputFile,
				PressReady: m.Vivliostyle.PressReady,
			}
		}
	case StepKindPandoc:
		if m.Pandoc != nil {
			step.Kind = exportformat.PandocStep{
				InputFile:           m.Pandoc.InputFile,
				OutputFile:          m.Pandoc.OutputFile,
				InputFormat:         m.Pandoc.InputFormat,
				OutputFormat:        m.Pandoc.OutputFormat,
				ShiftHeadingLevelBy: m.Pandoc.ShiftHeadingLevelBy,
				MetadataFile:        m.Pandoc.MetadataFile,
				EPUBCoverImagePath:  m.Pandoc.EPUBCoverImagePath,
				EPUBTitlePage:       m.Pandoc.EPUBTitlePage,
				EPUBMetadataFile:    m.Pandoc.EPUBMetadataFile,
				EPUBEmbedFonts:      m.Pandoc.EPUBEmbedFonts,
			}
		}
	}
	return step
}

func exportFormatToWire(f exportformat.ExportFormat) ExportFormatMsg {
	out := ExportFormatMsg{Slug: f.Slug, Steps: make([]ExportStepMsg, len(f.Steps))}
	for i, s := range f.Steps {
		out.Steps[i] = exportStepToWire(s)
	}
	return out
}

func exportFormatFromWire(m ExportFormatMsg) exportformat.ExportFormat {
	out := exportformat.ExportFormat{Slug: m.Slug, Steps: make([]exportformat.ExportStep, len(m.Steps))}
	for i, s := range m.Steps {
		out.Steps[i] = exportStepFromWire(s)
	}
	return out
}

func statusToWire(s render.Status) StatusMsg {
	m := StatusMsg{Kind: uint8(s.Kind)}
	if s.Kind == render.StatusFinished {
		m.Files = make([]NamedFileMsg, len(s.Result.Files))
		for i, f := range s.Result.Files {
			m.Files[i] = NamedFileMsg{Name: f.Name, Content: f.Content}
		}
	}
	if s.Kind == render.StatusFailed && s.Err != nil {
		m.Err = renderingErrorToWire(s.Err)
	}
	return m
}

func statusFromWire(m StatusMsg) render.Status {
	s := render.Status{Kind: render.StatusKind(m.Kind)}
	if s.Kind == render.StatusFinished {
		files := make([]render.NamedFile, len(m.Files))
		for i, f := range m.Files {
			files[i] = render.NamedFile{Name: f.Name, Content: f.Content}
		}
		s.Result = render.Result{Files: files}
	}
	if s.Kind == render.StatusFailed && m.Err != nil {
		s.Err = renderingErrorFromWire(m.Err)
	}
	return s
}

func renderingErrorToWire(e render.Error) *RenderingErrorMsg {
	switch v := e.(type) {
	case render.ErrTemplateNotFound:
		return &RenderingErrorMsg{Tag: ErrTagTemplateNotFound}
	case render.ErrCouldntLoadHandlebarTemplates:
		return &RenderingErrorMsg{Tag: ErrTagCouldntLoadHandlebarTemplates, Detail: v.Detail}
	case render.ErrHandlebarsRenderingFailed:
		return &RenderingErrorMsg{Tag: ErrTagHandlebarsRenderingFailed, Detail: v.Log}
	case render.ErrVivliostyleRenderingFailed:
		return &RenderingErrorMsg{Tag: ErrTagVivliostyleRenderingFailed, Detail: v.Log}
	case render.ErrPandocConversionFailed:
		return &RenderingErrorMsg{Tag: ErrTagPandocConversionFailed, Detail: v.Log}
	case render.ErrMissingExpectedFileToKeep:
		return &RenderingErrorMsg{Tag: ErrTagMissingExpectedFileToKeep, Detail: v.Log, Name: v.Name}
	case render.ErrOther:
		return &RenderingErrorMsg{Tag: ErrTagOther, Detail: v.Detail}
	default:
		return &RenderingErrorMsg{Tag: ErrTagOther, Detail: e.Error()}
	}
}

func renderingErrorFromWire(m *RenderingErrorMsg) render.Error {
	switch m.Tag {
	case ErrTagTemplateNotFound:
		return render.ErrTemplateNotFound{}
	case ErrTagCouldntLoadHandlebarTemplates:
		return render.ErrCouldntLoadHandlebarTemplates{Detail: m.Detail}
	case ErrTagHandlebarsRenderingFailed:
		return render.ErrHandlebarsRenderingFailed{Log: m.Detail}
	case ErrTagVivliostyleRenderingFailed:
		return render.ErrVivliostyleRenderingFailed{Log: m.Detail}
	case ErrTagPandocConversionFailed:
		return render.ErrPandocConversionFailed{Log: m.Detail}
	case ErrTagMissingExpectedFileToKeep:
		return render.ErrMissingExpectedFileToKeep{Name: m.Name, Log: m.Detail}
	default:
		return render.ErrOther{Detail: m.Detail}
	}
}
