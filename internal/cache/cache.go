// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package cache is the Template Cache: a version-keyed, in-memory index of
// a template's export formats backed by an on-disk bundle directory per
// version, bounded by an LRU so a long-running worker cannot accumulate an
// unbounded number of template bundles on disk. Concurrent Install calls
// for the same template+version are collapsed with singleflight, matching
// the original source's installation guard without needing the original's
// coarse single mutex over the whole cache.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	goversion "github.com/hashicorp/go-version"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/nomad-render-worker/internal/exportformat"
	"github.com/hashicorp/nomad-render-worker/internal/projects"
)

// entry is one cached template version.
type entry struct {
	versionID     string
	exportFormats map[string]exportformat.ExportFormat
	bundleDir     string
}

// Cache is safe for concurrent use. It implements render.ExportFormatLookup.
type Cache struct {
	log hclog.Logger
	dir string // root directory under which per-version bundle dirs live

	mu      sync.RWMutex
	entries map[string]*entry // templateID -> entry

	lru   *lru.Cache[string, struct{}] // templateID recency index
	group singleflight.Group
}

// New creates a Cache rooted at dir, evicting the least recently used
// template (by Install or Lookup) once more than maxEntries distinct
// templates are cached.
func New(log hclog.Logger, dir string, maxEntries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", dir, err)
	}

	c := &Cache{
		log:     log.Named("cache"),
		dir:     dir,
		entries: make(map[string]*entry),
	}

	evict, err := lru.NewWithEvict(maxEntries, func(templateID string, _ struct{}) {
		c.evict(templateID)
	})
	if err != nil {
		return nil, fmt.Errorf("constructing LRU index: %w", err)
	}
	c.lru = evict

	return c, nil
}

// Lookup implements render.ExportFormatLookup. It reports whether
// templateID is cached at all, returning its currently cached version and
// export formats.
func (c *Cache) Lookup(templateID string) (versionID string, formats map[string]exportformat.ExportFormat, ok bool) {
	c.mu.RLock()
	e, found := c.entries[templateID]
	c.mu.RUnlock()
	if !found {
		return "", nil, false
	}
	c.lru.Get(templateID) // bump recency without changing cached contents
	return e.versionID, e.exportFormats, true
}

// HasVersion reports whether templateID is cached at exactly versionID, so
// the connection handler can skip a redundant TemplateDataRequest
// round-trip when a concurrent Install already delivered the same version.
func (c *Cache) HasVersion(templateID, versionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[templateID]
	return ok && e.versionID == versionID
}

// Install records templateID's versionID and export formats, writing
// contents to the template's on-disk bundle directory. Concurrent Install
// calls for the same templateID+versionID pair are collapsed into one
// filesystem write.
func (c *Cache) Install(templateID, versionID string, contents projects.FileTree, formats map[string]exportformat.ExportFormat) error {
	key := templateID + ":" + versionID
	_, err, _ := c.group.Do(key, func() (any, error) {
		bundleDir := c.bundleDir(versionID)
		if err := os.MkdirAll(bundleDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating bundle dir %s: %w", bundleDir, err)
		}
		if err := contents.WriteToDisk(bundleDir); err != nil {
			return nil, fmt.Errorf("writing template bundle: %w", err)
		}

		c.mu.Lock()
		old := c.entries[templateID]
		c.entries[templateID] = &entry{versionID: versionID, exportFormats: formats, bundleDir: bundleDir}
		c.mu.Unlock()

		if old != nil && old.versionID != versionID {
			logVersionTransition(c.log, templateID, old.versionID, versionID)
			if rmErr := os.RemoveAll(old.bundleDir); rmErr != nil {
				c.log.Warn("failed removing superseded template bundle", "template_id", templateID, "dir", old.bundleDir, "error", rmErr)
			}
		}

		c.lru.Add(templateID, struct{}{})
		c.log.Debug("installed template bundle", "template_id", templateID, "version_id", versionID)
		return nil, nil
	})
	return err
}

// BundleDir returns the on-disk directory holding templateID's cached
// bundle, for the pipeline to copy format-specific assets out of.
func (c *Cache) BundleDir(templateID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[templateID]
	if !ok {
		return "", false
	}
	return e.bundleDir, true
}

func (c *Cache) bundleDir(versionID string) string {
	return filepath.Join(c.dir, versionID)
}

// logVersionTransition notes whether an install moves a template backward,
// forward, or sideways relative to its previously cached version, when both
// version ids happen to parse as semver. Template version ids are opaque
// strings in general (spec §9), so a parse failure is not an error, just a
// plain replacement with no ordering logged.
func logVersionTransition(log hclog.Logger, templateID, oldVersionID, newVersionID string) {
	oldVer, err := goversion.NewVersion(oldVersionID)
	if err != nil {
		return
	}
	newVer, err := goversion.NewVersion(newVersionID)
	if err != nil {
		return
	}

	switch {
	case newVer.GreaterThan(oldVer):
		log.Debug("template version advanced", "template_id", templateID, "from", oldVersionID, "to", newVersionID)
	case newVer.LessThan(oldVer):
		log.Warn("template version moved backward", "template_id", templateID, "from", oldVersionID, "to", newVersionID)
	default:
		log.Debug("template version replaced by an equal-ordered version", "template_id", templateID, "from", oldVersionID, "to", newVersionID)
	}
}

// evict is invoked by the LRU's OnEvict callback, already running without
// any Cache lock held.
func (c *Cache) evict(templateID string) {
	c.mu.Lock()
	e, ok := c.entries[templateID]
	if ok {
		delete(c.entries, templateID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := os.RemoveAll(e.bundleDir); err != nil {
		c.log.Warn("failed removing evicted template bundle", "template_id", templateID, "dir", e.bundleDir, "error", err)
	}
	c.log.Debug("evicted template bundle", "template_id", templateID)
}

// ClearAll removes every cached template, both in memory and on disk,
// including the cache root directory itself. The worker's startup sequence
// does not call it; it clears the template directory on its own.
func (c *Cache) ClearAll() error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	for _, id := range ids {
		c.lru.Remove(id)
	}
	return os.RemoveAll(c.dir)
}
