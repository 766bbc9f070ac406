// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
)

func newTestCache(t *testing.T, maxEntries int) *Cache {
	t.Helper()
	c, err := New(hclog.NewNullLogger(), t.TempDir(), maxEntries)
	require.NoError(t, err)
	return c
}

func TestCache_InstallAndLookup(t *testing.T) {
	c := newTestCache(t, 10)

	formats := map[string]exportformat.ExportFormat{
		"pdf": {Slug: "pdf", Steps: []exportformat.ExportStep{{Name: "render", Kind: exportformat.RawStep{EntryPoint: "main.hbs.html", OutputFile: "main.html"}}}},
	}
	tree := projects.FileTree{Dirs: map[string]projects.FileTree{
		"assets": {Files: map[string][]byte{"logo.png": []byte("fake")}},
	}}

	require.NoError(t, c.Install("tpl-1", "v1", tree, formats))

	version, got, ok := c.Lookup("tpl-1")
	require.True(t, ok)
	require.Equal(t, "v1", version)
	require.Equal(t, formats, got)
	require.True(t, c.HasVersion("tpl-1", "v1"))
	require.False(t, c.HasVersion("tpl-1", "v2"))

	bundleDir, ok := c.BundleDir("tpl-1")
	require.True(t, ok)
	require.Equal(t, filepath.Join(c.dir, "v1"), bundleDir, "bundles are keyed purely by version id, not template id")
	require.FileExists(t, filepath.Join(bundleDir, "assets", "logo.png"))
}

func TestCache_InstallNewVersionRemovesOldBundle(t *testing.T) {
	c := newTestCache(t, 10)
	formats := map[string]exportformat.ExportFormat{}

	require.NoError(t, c.Install("tpl-1", "v1", projects.FileTree{}, formats))
	oldDir, _ := c.BundleDir("tpl-1")

	require.NoError(t, c.Install("tpl-1", "v2", projects.FileTree{}, formats))
	_, err := os.Stat(oldDir)
	require.True(t, os.IsNotExist(err))
	require.True(t, c.HasVersion("tpl-1", "v2"))
}

func TestCache_EvictsLeastRecentlyInstalledBeyondCapacity(t *testing.T) {
	c := newTestCache(t, 2)
	formats := map[string]exportformat.ExportFormat{}

	require.NoError(t, c.Install("tpl-1", "v1", projects.FileTree{}, formats))
	require.NoError(t, c.Install("tpl-2", "v2", projects.FileTree{}, formats))
	require.NoError(t, c.Install("tpl-3", "v3", projects.FileTree{}, formats))

	_, _, ok := c.Lookup("tpl-1")
	require.False(t, ok, "least recently installed template should have been evicted")

	_, _, ok = c.Lookup("tpl-3")
	require.True(t, ok)
}

func TestCache_InstallCollapsesConcurrentCallsForSameVersion(t *testing.T) {
	c := newTestCache(t, 10)
	formats := map[string]exportformat.ExportFormat{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Install("tpl-1", "v1", projects.FileTree{}, formats))
		}()
	}
	wg.Wait()

	_, _, ok := c.Lookup("tpl-1")
	require.True(t, ok)
}
