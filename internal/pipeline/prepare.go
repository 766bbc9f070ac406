// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-uuid"

	"github.com/hashicorp/nomad-render-worker/internal/projects"
)

// prepareScratchDir creates a fresh temp/<uuid> directory under tempRoot
// and populates it with the template's global assets, the export format's
// format-specific assets, and (when the request's uploads were staged to
// disk) the project's uploaded files. Grounded on the original source's
// prepare_temp_directory.
func prepareScratchDir(tempRoot, bundleDir, formatSlug string, uploads projects.Uploads) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("generating scratch directory id: %w", err)
	}

	scratchDir := filepath.Join(tempRoot, id)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}

	assetsDir := filepath.Join(bundleDir, "assets")
	if err := copyDirAll(assetsDir, filepath.Join(scratchDir, "global_assets")); err != nil {
		return "", fmt.Errorf("copying global assets: %w", err)
	}

	if disk, ok := uploads.(projects.DiskUploads); ok && disk.Path != "" {
		if err := copyDirAll(disk.Path, filepath.Join(scratchDir, "uploads")); err != nil {
			return "", fmt.Errorf("copying project uploads: %w", err)
		}
	}

	formatAssetsDir := filepath.Join(bundleDir, "formats", formatSlug)
	entries, err := os.ReadDir(formatAssetsDir)
	if err != nil {
		return "", fmt.Errorf("reading format assets directory: %w", err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(formatAssetsDir, entry.Name())
		if entry.IsDir() {
			if err := copyDirAll(srcPath, scratchDir); err != nil {
				return "", fmt.Errorf("copying format asset directory %s: %w", entry.Name(), err)
			}
			continue
		}
		if err := copyFile(srcPath, filepath.Join(scratchDir, entry.Name())); err != nil {
			return "", fmt.Errorf("copying format asset %s: %w", entry.Name(), err)
		}
	}

	return scratchDir, nil
}
