package resource

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestNewDirProvider_Validation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "x", time.Now())

	tests := []struct {
		name        string
		dir         string
		expectError bool
	}{
		{name: "valid directory", dir: root, expectError: false},
		{name: "missing directory", dir: filepath.Join(root, "nope"), expectError: true},
		{name: "regular file", dir: filepath.Join(root, "file.txt"), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirProvider(tt.dir)
			if (err != nil) != tt.expectError {
				t.Errorf("NewDirProvider() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestDirProvider_Stat(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, root, "js/app.js", "console.log(1);", mtime)

	p, err := NewDirProvider(root)
	if err != nil {
		t.Fatalf("NewDirProvider() error = %v", err)
	}

	meta, err := p.Stat("/js/app.js")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if meta.ID != "/js/app.js" {
		t.Errorf("ID = %q, want /js/app.js", meta.ID)
	}
	if meta.Size != int64(len("console.log(1);")) {
		t.Errorf("Size = %d, want %d", meta.Size, len("console.log(1);"))
	}
	if !meta.LastModified.Equal(mtime) {
		t.Errorf("LastModified = %v, want %v", meta.LastModified, mtime)
	}

	for _, id := range []string{"", "/js", "/js/missing.js"} {
		if _, err := p.Stat(id); !errors.Is(err, ErrNotExist) {
			t.Errorf("Stat(%q) error = %v, want ErrNotExist", id, err)
		}
		if p.Exists(id) {
			t.Errorf("Exists(%q) = true, want false", id)
		}
	}
}

func TestDirProvider_RealPathStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	p, err := NewDirProvider(root)
	if err != nil {
		t.Fatalf("NewDirProvider() error = %v", err)
	}

	got := p.RealPath("/../../etc/passwd")
	want := filepath.Join(p.Root(), "etc", "passwd")
	if got != want {
		t.Errorf("RealPath() = %q, want %q", got, want)
	}
}

func TestDirProvider_Open(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "css/site.css", "body{}", time.Now())

	p, err := NewDirProvider(root)
	if err != nil {
		t.Fatalf("NewDirProvider() error = %v", err)
	}

	rc, err := p.Open("/css/site.css")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "body{}" {
		t.Errorf("content = %q, want body{}", string(data))
	}

	if _, err := p.Open("/css/none.css"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want ErrNotExist", err)
	}
}
