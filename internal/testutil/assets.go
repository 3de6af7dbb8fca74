// Package testutil provides testing utilities for the combiner and response cache.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anupambasak/webutilities/pkg/resource"
)

// BaseTime is the default modification time for files written by AssetTree.
var BaseTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// AssetTree is a temporary asset directory with controllable modification times.
type AssetTree struct {
	t    *testing.T
	Root string
}

// NewAssetTree creates an empty asset tree under t.TempDir().
func NewAssetTree(t *testing.T) *AssetTree {
	t.Helper()
	return &AssetTree{t: t, Root: t.TempDir()}
}

// Write creates or replaces the file at the slash-separated id with content
// and stamps it with BaseTime.
func (a *AssetTree) Write(id, content string) *AssetTree {
	a.t.Helper()
	return a.WriteAt(id, content, BaseTime)
}

// WriteAt creates or replaces the file at id and sets its modification time.
func (a *AssetTree) WriteAt(id, content string, mtime time.Time) *AssetTree {
	a.t.Helper()

	full := a.Path(id)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		a.t.Fatalf("Failed to create asset dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		a.t.Fatalf("Failed to write asset %s: %v", id, err)
	}
	a.Touch(id, mtime)
	return a
}

// Touch sets the modification time of id.
func (a *AssetTree) Touch(id string, mtime time.Time) {
	a.t.Helper()
	if err := os.Chtimes(a.Path(id), mtime, mtime); err != nil {
		a.t.Fatalf("Failed to touch asset %s: %v", id, err)
	}
}

// Remove deletes id from the tree.
func (a *AssetTree) Remove(id string) {
	a.t.Helper()
	if err := os.Remove(a.Path(id)); err != nil {
		a.t.Fatalf("Failed to remove asset %s: %v", id, err)
	}
}

// Path returns the filesystem path of id.
func (a *AssetTree) Path(id string) string {
	return filepath.Join(a.Root, filepath.FromSlash(id))
}

// Provider returns a resource provider over the tree.
func (a *AssetTree) Provider() *resource.DirProvider {
	a.t.Helper()
	p, err := resource.NewDirProvider(a.Root)
	if err != nil {
		a.t.Fatalf("Failed to create provider: %v", err)
	}
	return p
}
