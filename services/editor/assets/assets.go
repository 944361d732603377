// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assets maintains an index of reusable media files.
//
// The editor can be pointed at a local directory of reference images
// and clips. A watcher keeps an in-memory index of that directory so
// the API can list assets without walking the disk per request. The
// library is optional: a server with no asset directory configured
// simply has no watcher.
package assets

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultExtensions lists the file extensions indexed by default,
// lowercase with the leading dot.
var DefaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp",
	".mp4", ".webm", ".mov",
}

// Asset is one indexed media file.
type Asset struct {
	// Name is the file name without directories.
	Name string `json:"name"`

	// Path is the absolute path on disk.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"modTime"`
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait after a change before
	// rescanning. Default: 200ms.
	DebounceWindow time.Duration

	// Extensions are the file extensions to index, lowercase with
	// the leading dot. Default: DefaultExtensions.
	Extensions []string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 200 * time.Millisecond,
		Extensions:     DefaultExtensions,
	}
}

// Watcher indexes media files under one directory.
//
// # Description
//
// Watches the directory recursively and keeps an in-memory index of
// image and video files. Filesystem events are debounced into a full
// rescan, so a burst of copies or an unpacked archive costs one walk
// instead of one update per file.
//
// # Thread Safety
//
// Safe for concurrent use. List may be called from any goroutine.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	exts     map[string]struct{}

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	index    map[string]Asset
	watching bool
}

// New creates a watcher for the given directory.
//
// # Inputs
//
//   - dir: Path to the asset directory. Must exist.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *Watcher: Ready-to-use watcher (call Start to begin watching).
//   - error: Non-nil if dir is not a directory or the watcher could
//     not be created.
func New(dir string, opts *Options) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.DebounceWindow
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Watcher{
		dir:      dir,
		watcher:  fsw,
		debounce: debounce,
		exts:     exts,
		done:     make(chan struct{}),
		index:    make(map[string]Asset),
	}, nil
}

// Start scans the directory and begins watching it.
//
// # Description
//
// Runs one synchronous scan so List is populated when Start returns,
// then watches for changes in the background until Stop is called or
// the context is cancelled. Calling Start on a running watcher is a
// no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.rescan(); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// List returns the indexed assets sorted by name.
//
// A nil receiver reads as an empty library, so callers can leave the
// watcher unconfigured and still serve the endpoint.
func (w *Watcher) List() []Asset {
	if w == nil {
		return []Asset{}
	}

	w.mu.RLock()
	assets := make([]Asset, 0, len(w.index))
	for _, a := range w.index {
		assets = append(assets, a)
	}
	w.mu.RUnlock()

	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Name != assets[j].Name {
			return assets[i].Name < assets[j].Name
		}
		return assets[i].Path < assets[j].Path
	})
	return assets
}

// run watches for events and debounces them into rescans.
func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	kick := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// A created subdirectory gets its watch immediately,
			// before the debounced rescan, so events inside it are
			// not lost to the window.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watcher.Add(event.Name)
				}
			}
			kick()

		case <-timerC:
			if err := w.rescan(); err != nil {
				slog.Warn("Asset rescan failed",
					"dir", w.dir,
					"error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Asset watcher error",
				"dir", w.dir,
				"error", err)
		}
	}
}

// relevant reports whether an event can change the index. Writes to
// non-asset files are the only noise worth filtering; create, remove,
// and rename may involve directories, which carry no extension.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	return event.Has(fsnotify.Write) && w.isAsset(event.Name)
}

// isAsset reports whether the path has an indexed extension.
func (w *Watcher) isAsset(path string) bool {
	_, ok := w.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// rescan walks the directory and replaces the index. Directories found
// during the walk are added to the fsnotify watch list; re-adding an
// already watched directory is harmless.
func (w *Watcher) rescan() error {
	index := make(map[string]Asset)

	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.dir {
				return err
			}
			// An entry that vanished mid-walk is picked up by the
			// rescan its removal triggers.
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && path != w.dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				slog.Debug("Failed to watch asset subdirectory",
					"path", path,
					"error", err)
			}
			return nil
		}

		if !w.isAsset(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		index[path] = Asset{
			Name:    name,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.index = index
	w.mu.Unlock()

	slog.Debug("Asset library rescanned",
		"dir", w.dir,
		"count", len(index))
	return nil
}
