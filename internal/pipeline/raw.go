// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ryanuber/go-glob"
	"github.com/skip2/go-qrcode"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
	"github.com/hashicorp/nomad-render-worker/internal/render"
)

const hbsExtension = ".hbs.html"

// renderRawStep renders step.EntryPoint against the prepared project's
// data and writes the result to step.OutputFile inside scratchDir.
//
// The original source's Raw step is Handlebars-based (register_templates_directory
// + a custom "qrcode" helper). aymerick/raymond, the closest Handlebars
// port, is not part of the dependency surface this worker draws on, so
// this renders with Go's own text/template family instead, scanning for
// the same *.hbs.html convention with ryanuber/go-glob and exposing the
// same "qrcode" helper through template.FuncMap.
func renderRawStep(step exportformat.RawStep, scratchDir string, project projects.PreparedProject) (err render.Error) {
	data, decodeErr := project.Data()
	if decodeErr != nil {
		return render.ErrCouldntLoadHandlebarTemplates{Detail: decodeErr.Error()}
	}

	tmpl := template.New("root").Funcs(template.FuncMap{"qrcode": qrcodeHelper})

	walkErr := filepath.WalkDir(scratchDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !glob.Glob("*"+hbsExtension, d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(scratchDir, path)
		if relErr != nil {
			return relErr
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), hbsExtension)

		contents, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		_, parseErr := tmpl.New(name).Parse(string(contents))
		return parseErr
	})
	if walkErr != nil {
		return render.ErrCouldntLoadHandlebarTemplates{Detail: walkErr.Error()}
	}

	entryName := strings.TrimSuffix(step.EntryPoint, hbsExtension)
	var buf bytes.Buffer
	if execErr := tmpl.ExecuteTemplate(&buf, entryName, data); execErr != nil {
		return render.ErrHandlebarsRenderingFailed{Log: execErr.Error()}
	}

	if writeErr := os.WriteFile(filepath.Join(scratchDir, step.OutputFile), buf.Bytes(), 0o644); writeErr != nil {
		return render.ErrHandlebarsRenderingFailed{Log: fmt.Sprintf("couldn't write rendered template: %s", writeErr)}
	}

	return nil
}

// qrcodeHelper is the "qrcode" template helper, matching the original's
// handlebars_qrcode_helper: it encodes val as a QR code and returns an
// <img> tag with the code embedded as a base64 JPEG.
func qrcodeHelper(val string) (string, error) {
	qr, err := qrcode.New(val, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("couldn't create qr code: %w", err)
	}

	img := qr.Image(256)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return "", fmt.Errorf("couldn't write qr code to buffer: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return fmt.Sprintf(`<img class="qrcode" src="data:image/jpeg;base64,%s" alt="QR Code" />`, encoded), nil
}
