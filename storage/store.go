// Package storage persists pushed application files under one directory
// per application, with a resources/ subdirectory for resource-prefixed
// names. All writes happen from the main-loop context; the link callback
// context never reaches this package.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ResourcePrefix routes a pushed file into the app's resources directory.
const ResourcePrefix = "resources/"

// legacyName is the historical single-file push name. It is renamed to
// <owner>.<ext> during persistence so multiple apps can coexist.
const legacyName = "app"

// Store writes application files beneath a base directory.
type Store struct {
	base string
	log  *zap.Logger
}

// NewStore creates a store rooted at base. The directory is created lazily
// on first write.
func NewStore(base string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{base: base, log: log}
}

// Base returns the store's root directory.
func (s *Store) Base() string {
	return s.base
}

// AppDir returns the directory for an application display name.
func (s *Store) AppDir(owner string) string {
	return filepath.Join(s.base, Slug(owner))
}

// SaveAppFile persists one file for an application. The owner display name
// is slugged into the directory name. Names prefixed "resources/" land in
// a resources subdirectory; the legacy single-file name is renamed to
// <slug>.<ext>. Path escapes are rejected.
func (s *Store) SaveAppFile(owner, name string, data []byte) error {
	slug := Slug(owner)
	name = s.normalizeName(slug, name)
	if name == "" || strings.Contains(name, "..") {
		return fmt.Errorf("storage: unsafe file name %q", name)
	}

	dir := filepath.Join(s.base, slug)
	rel := name
	if strings.HasPrefix(name, ResourcePrefix) {
		dir = filepath.Join(dir, "resources")
		rel = strings.TrimPrefix(name, ResourcePrefix)
		if rel == "" {
			return fmt.Errorf("storage: empty resource name")
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, rel)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	s.log.Debug("saved app file",
		zap.String("app", slug),
		zap.String("file", rel),
		zap.Int("bytes", len(data)))
	return nil
}

// normalizeName applies the legacy rename: a push named "app.<ext>" (or
// bare "app") becomes "<slug>.<ext>" so the file is attributable.
func (s *Store) normalizeName(slug, name string) string {
	base := name
	ext := ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base = name[:idx]
		ext = name[idx:]
	}
	if base == legacyName {
		return slug + ext
	}
	return name
}

// ReadAppFile reads one previously saved file.
func (s *Store) ReadAppFile(owner, name string) ([]byte, error) {
	slug := Slug(owner)
	name = s.normalizeName(slug, name)
	dir := filepath.Join(s.base, slug)
	if strings.HasPrefix(name, ResourcePrefix) {
		dir = filepath.Join(dir, "resources")
		name = strings.TrimPrefix(name, ResourcePrefix)
	}
	return os.ReadFile(filepath.Join(dir, name))
}

// ListApps returns the slugs of every application with a directory under
// the store root, sorted by the filesystem's ReadDir order.
func (s *Store) ListApps() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list apps: %w", err)
	}
	var apps []string
	for _, e := range entries {
		if e.IsDir() {
			apps = append(apps, e.Name())
		}
	}
	return apps, nil
}

// RemoveApp deletes an application's directory tree.
func (s *Store) RemoveApp(owner string) error {
	dir := s.AppDir(owner)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("storage: remove %s: %w", dir, err)
	}
	return nil
}
