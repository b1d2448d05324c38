// Package loader turns files in a folder into documents, dispatching on extension.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"ragchat/internal/domain"
)

// Registry maps lower-cased file extensions to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]domain.Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]domain.Loader)}
}

// DefaultRegistry knows .txt and .pdf.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".txt", NewTextLoader())
	r.Register(".pdf", NewPDFLoader())
	return r
}

// Register adds or replaces the loader for ext (with or without the leading dot).
func (r *Registry) Register(ext string, l domain.Loader) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[ext] = l
}

// Lookup returns the loader registered for the extension of name.
func (r *Registry) Lookup(name string) (domain.Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[strings.ToLower(filepath.Ext(name))]
	return l, ok
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Result is what a folder load produced.
type Result struct {
	Documents []domain.Document
	Files     int
	Skipped   []string
}

// FolderLoader reads every file directly under a folder.
type FolderLoader struct {
	registry *Registry
	log      *slog.Logger
}

// NewFolderLoader creates a folder loader over the given registry.
func NewFolderLoader(registry *Registry, logger *slog.Logger) *FolderLoader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FolderLoader{registry: registry, log: logger}
}

// Load reads the folder non-recursively. Unsupported files are skipped with a
// warning; a missing folder or unreadable file is a malformed-input error.
func (f *FolderLoader) Load(ctx context.Context, dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedInput, "load folder", err)
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.KindMalformedInput, "load folder", fmt.Errorf("%s is not a directory", dir))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedInput, "load folder", err)
	}

	res := &Result{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Files++
		name := entry.Name()
		l, ok := f.registry.Lookup(name)
		if !ok {
			f.log.Warn("Unsupported file format", slog.String("file", name))
			res.Skipped = append(res.Skipped, name)
			continue
		}
		path := filepath.Join(dir, name)
		docs, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		f.log.Debug("Loaded file", slog.String("file", name), slog.Int("documents", len(docs)))
		res.Documents = append(res.Documents, docs...)
	}
	return res, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
