package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anupambasak/webutilities/pkg/resource"
)

func TestToken(t *testing.T) {
	base := resource.Metadata{
		ID:           "/img/a.png",
		LastModified: time.Unix(1700000000, 0),
		Size:         42,
	}

	token := Token(base)
	if len(token) != TokenLength {
		t.Fatalf("len(Token()) = %d, want %d", len(token), TokenLength)
	}

	tests := []struct {
		name       string
		meta       resource.Metadata
		wantChange bool
	}{
		{
			name:       "same state",
			meta:       base,
			wantChange: false,
		},
		{
			name:       "different id same state",
			meta:       resource.Metadata{ID: "/img/b.png", LastModified: base.LastModified, Size: base.Size},
			wantChange: false,
		},
		{
			name:       "mtime changed",
			meta:       resource.Metadata{ID: base.ID, LastModified: base.LastModified.Add(time.Second), Size: base.Size},
			wantChange: true,
		},
		{
			name:       "size changed",
			meta:       resource.Metadata{ID: base.ID, LastModified: base.LastModified, Size: 43},
			wantChange: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := Token(tt.meta) != token
			if changed != tt.wantChange {
				t.Errorf("token changed = %v, want %v", changed, tt.wantChange)
			}
		})
	}
}

func TestEncodeStrip(t *testing.T) {
	token := "0123456789abcdef"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "with extension", in: "/img/logo.png", want: "/img/logo_wu_0123456789abcdef.png"},
		{name: "without extension", in: "/img/logo", want: "/img/logo_wu_0123456789abcdef"},
		{name: "grouped path", in: "/js/a,b.js", want: "/js/a,b_wu_0123456789abcdef.js"},
		{name: "dotted name", in: "/lib/jquery.min.js", want: "/lib/jquery.min_wu_0123456789abcdef.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.in, token)
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
			if back := Strip(got); back != tt.in {
				t.Errorf("Strip(Encode()) = %q, want %q", back, tt.in)
			}
		})
	}
}

func TestEncode_EmptyToken(t *testing.T) {
	if got := Encode("/img/a.png", ""); got != "/img/a.png" {
		t.Errorf("Encode() = %q, want unchanged", got)
	}
}

func TestStrip_LeavesOtherPathsAlone(t *testing.T) {
	for _, p := range []string{"/img/a.png", "/img/a_wu_.png", "/img/a_wu_XYZ.png"} {
		if got := Strip(p); got != p {
			t.Errorf("Strip(%q) = %q, want unchanged", p, got)
		}
	}
}

func TestApply(t *testing.T) {
	root := t.TempDir()
	full := filepath.Join(root, "img", "a.png")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := resource.NewDirProvider(root)
	if err != nil {
		t.Fatalf("NewDirProvider() error = %v", err)
	}

	got := Apply(p, "/img/a.png")
	if got == "/img/a.png" {
		t.Error("Apply() on existing resource should add a fingerprint")
	}
	if Strip(got) != "/img/a.png" {
		t.Errorf("Strip(Apply()) = %q, want /img/a.png", Strip(got))
	}

	if got := Apply(p, "/img/missing.png"); got != "/img/missing.png" {
		t.Errorf("Apply(missing) = %q, want unchanged", got)
	}
}
