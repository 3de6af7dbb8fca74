// Package resource defines the backing store that asset groups are read from.
package resource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotExist indicates the requested resource is not present in the provider.
var ErrNotExist = errors.New("resource does not exist")

// Metadata is the freshness-relevant state of a single resource.
type Metadata struct {
	// ID is the slash-separated resource identifier (e.g. "/js/app.js").
	ID string

	// LastModified is the modification time as reported by the provider.
	LastModified time.Time

	// Size is the resource length in bytes.
	Size int64
}

// Provider gives read access to resources by identifier.
// Implementations must be safe for concurrent use and must never cache
// metadata between calls.
type Provider interface {
	Exists(id string) bool
	LastModified(id string) (time.Time, error)
	Size(id string) (int64, error)
	Open(id string) (io.ReadCloser, error)

	// RealPath maps an identifier to its physical location. It is used as the
	// stable key when recording stylesheet references.
	RealPath(id string) string

	// Stat returns all metadata in a single lookup.
	Stat(id string) (Metadata, error)
}

// DirProvider serves resources from a directory on the local filesystem.
type DirProvider struct {
	root string
}

// NewDirProvider creates a provider rooted at dir.
func NewDirProvider(dir string) (*DirProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat asset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", abs)
	}
	return &DirProvider{root: abs}, nil
}

// Root returns the absolute directory the provider reads from.
func (p *DirProvider) Root() string {
	return p.root
}

// RealPath returns the absolute file path for id, or "" when id is empty.
// Identifiers are cleaned as rooted paths, so ".." can never escape the root.
func (p *DirProvider) RealPath(id string) string {
	if strings.TrimSpace(id) == "" {
		return ""
	}
	clean := path.Clean("/" + id)
	return filepath.Join(p.root, filepath.FromSlash(clean))
}

// Stat returns the metadata for id. Directories are reported as not existing.
func (p *DirProvider) Stat(id string) (Metadata, error) {
	full := p.RealPath(id)
	if full == "" {
		return Metadata{}, fmt.Errorf("%w: empty identifier", ErrNotExist)
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrNotExist, id)
		}
		return Metadata{}, fmt.Errorf("stat %s: %w", id, err)
	}
	if info.IsDir() {
		return Metadata{}, fmt.Errorf("%w: %s is a directory", ErrNotExist, id)
	}
	return Metadata{
		ID:           id,
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}, nil
}

// Exists reports whether id names a regular file under the root.
func (p *DirProvider) Exists(id string) bool {
	_, err := p.Stat(id)
	return err == nil
}

// LastModified returns the modification time of id.
func (p *DirProvider) LastModified(id string) (time.Time, error) {
	meta, err := p.Stat(id)
	if err != nil {
		return time.Time{}, err
	}
	return meta.LastModified, nil
}

// Size returns the byte length of id.
func (p *DirProvider) Size(id string) (int64, error) {
	meta, err := p.Stat(id)
	if err != nil {
		return 0, err
	}
	return meta.Size, nil
}

// Open opens id for reading. The caller must close the returned reader.
func (p *DirProvider) Open(id string) (io.ReadCloser, error) {
	if _, err := p.Stat(id); err != nil {
		return nil, err
	}
	f, err := os.Open(p.RealPath(id))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return f, nil
}
