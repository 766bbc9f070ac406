// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package exportformat describes a template bundle's export formats: the
// named, ordered pipeline of export steps that together produce one
// deliverable (a PDF, an EPUB, ...).
package exportformat

// ExportFormat is a named, ordered pipeline of export steps.
type ExportFormat struct {
	Slug  string       `codec:"slug"`
	Steps []ExportStep `codec:"steps"`
}

// ExportStep is one stage of an export format's pipeline.
type ExportStep struct {
	Name        string   `codec:"name"`
	Kind        StepKind `codec:"-"`
	FilesToKeep []string `codec:"files_to_keep"`
}

// StepKind is the tagged union of the three step implementations a
// pipeline can dispatch: templating, print layout, and document
// conversion. It is deliberately a closed set, matching the teacher's own
// pattern of closed, marker-method tagged unions for driver-specific
// configuration (e.g. drivers.Resources' per-driver fields).
type StepKind interface {
	stepKind()
}

// RawStep renders a Handlebars-family template against the prepared
// project.
type RawStep struct {
	EntryPoint string `codec:"entry_point"`
	OutputFile string `codec:"output_file"`
}

func (RawStep) stepKind() {}

// VivliostyleStep builds a print-ready document from an HTML input using
// the Vivliostyle CLI.
type VivliostyleStep struct {
	InputFile  string `codec:"input_file"`
	OutputFile string `codec:"output_file"`
	PressReady bool   `codec:"press_ready"`
}

func (VivliostyleStep) stepKind() {}

// PandocStep converts a document from one format to another via Pandoc.
type PandocStep struct {
	InputFile            string   `codec:"input_file"`
	OutputFile           string   `codec:"output_file"`
	InputFormat          string   `codec:"input_format"`
	OutputFormat         string   `codec:"output_format"`
	ShiftHeadingLevelBy  *int     `codec:"shift_heading_level_by,omitempty"`
	MetadataFile         *string  `codec:"metadata_file,omitempty"`
	EPUBCoverImagePath   *string  `codec:"epub_cover_image_path,omitempty"`
	EPUBTitlePage        *bool    `codec:"epub_title_page,omitempty"`
	EPUBMetadataFile     *string  `codec:"epub_metadata_file,omitempty"`
	EPUBEmbedFonts       []string `codec:"epub_embed_fonts,omitempty"`
}

func (PandocStep) stepKind() {}
