package merge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anupambasak/webutilities/internal/testutil"
	"github.com/anupambasak/webutilities/pkg/fingerprint"
	"github.com/anupambasak/webutilities/pkg/group"
	"github.com/anupambasak/webutilities/pkg/resource"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

// failingProvider fails Open for selected members.
type failingProvider struct {
	resource.Provider
	fail map[string]bool
}

func (p failingProvider) Open(id string) (io.ReadCloser, error) {
	if p.fail[id] {
		return io.NopCloser(&errReader{}), nil
	}
	return p.Provider.Open(id)
}

type errReader struct{ done bool }

func (r *errReader) Read(b []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(b, "partial"), nil
	}
	return 0, errors.New("disk on fire")
}

func merge(t *testing.T, e *Engine, path, contextPath string) (string, Result) {
	t.Helper()

	var out bytes.Buffer
	res, err := e.Merge(context.Background(), group.Resolve(path), contextPath, &out)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.BytesWritten != int64(out.Len()) {
		t.Errorf("BytesWritten = %d, want %d", res.BytesWritten, out.Len())
	}
	return out.String(), res
}

func TestMerge_Scripts(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		path        string
		want        string
		wantMissing int
	}{
		{
			name:  "separator prevents comment swallowing",
			files: map[string]string{"/js/a.js": "x//", "/js/b.js": "y();"},
			path:  "/js/a,b.js",
			want:  "x//\ny();",
		},
		{
			name:  "single member copied verbatim",
			files: map[string]string{"/js/a.js": "var a = 1;\n"},
			path:  "/js/a.js",
			want:  "var a = 1;\n",
		},
		{
			name:  "three members in request order",
			files: map[string]string{"/js/a.js": "A", "/js/b.js": "B", "/js/c.js": "C"},
			path:  "/js/c,a,b.js",
			want:  "C\nA\nB",
		},
		{
			name:        "missing leader leaves lone survivor without separator",
			files:       map[string]string{"/js/present.js": "present();"},
			path:        "/js/missing,present.js",
			want:        "present();",
			wantMissing: 1,
		},
		{
			name:        "missing middle member",
			files:       map[string]string{"/js/a.js": "A", "/js/c.js": "C"},
			path:        "/js/a,b,c.js",
			want:        "A\nC",
			wantMissing: 1,
		},
		{
			name:        "trailing comma counts empty member as missing",
			files:       map[string]string{"/js/a.js": "A"},
			path:        "/js/a,.js",
			want:        "A",
			wantMissing: 1,
		},
		{
			name:        "all missing",
			files:       map[string]string{},
			path:        "/js/a,b.js",
			want:        "",
			wantMissing: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := testutil.NewAssetTree(t)
			for id, content := range tt.files {
				tree.Write(id, content)
			}
			e := NewEngine(tree.Provider(), nil, DefaultOptions(), testLogger)

			got, res := merge(t, e, tt.path, "")
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if res.Missing != tt.wantMissing {
				t.Errorf("Missing = %d, want %d", res.Missing, tt.wantMissing)
			}
		})
	}
}

func TestMerge_CSSRewrite(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/css/img.png", "png")
	tree.Write("/img/logo.png", "logo")
	tree.Write("/css/site.css", strings.Join([]string{
		"body{background:url(img.png)}",
		"a{background:url(http://cdn/x.png)}",
		`h1{background:url("../img/logo.png") no-repeat} h2{background:url('/img/logo.png?v=2#top')}`,
		"i{background:url(data:image/png;base64,AAAA)}",
		"",
	}, "\n"))

	p := tree.Provider()
	refs := NewReferenceMap()
	e := NewEngine(p, refs, DefaultOptions(), testLogger)

	got, res := merge(t, e, "/css/site.css", "/static")
	if res.Missing != 0 {
		t.Fatalf("Missing = %d, want 0", res.Missing)
	}

	imgToken, _ := fingerprint.Build(p, "/css/img.png")
	logoToken, _ := fingerprint.Build(p, "/img/logo.png")

	want := strings.Join([]string{
		"body{background:url(/static" + fingerprint.Encode("/css/img.png", imgToken) + ")}",
		"a{background:url(http://cdn/x.png)}",
		`h1{background:url("/static` + fingerprint.Encode("/img/logo.png", logoToken) + `") no-repeat} h2{background:url('/static` + fingerprint.Encode("/img/logo.png", logoToken) + `?v=2#top')}`,
		"i{background:url(data:image/png;base64,AAAA)}",
		"",
	}, "\n")

	if got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}

	deps := refs.DependenciesOf(p.RealPath("/css/site.css"))
	if len(deps) != 2 {
		t.Errorf("DependenciesOf() = %v, want 2 entries", deps)
	}
}

func TestMerge_CSSWithoutFingerprinting(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/css/site.css", "a{background:url(img.png)}")

	opts := DefaultOptions()
	opts.Fingerprinting = false
	e := NewEngine(tree.Provider(), nil, opts, testLogger)

	got, _ := merge(t, e, "/css/site.css", "/ctx/")
	if got != "a{background:url(/ctx/css/img.png)}\n" {
		t.Errorf("output = %q", got)
	}
}

func TestMerge_CSSRewriteDisabled(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/css/a.css", "a{background:url(img.png)}")
	tree.Write("/css/b.css", "b{}")

	opts := DefaultOptions()
	opts.RewriteCSSURLs = false
	e := NewEngine(tree.Provider(), nil, opts, testLogger)

	got, _ := merge(t, e, "/css/a,b.css", "/ctx")
	if got != "a{background:url(img.png)}\nb{}" {
		t.Errorf("output = %q", got)
	}
}

func TestMerge_GroupedStylesheets(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/css/a.css", "a{}")
	tree.Write("/css/b.css", "b{}\n")

	e := NewEngine(tree.Provider(), nil, DefaultOptions(), testLogger)

	got, _ := merge(t, e, "/css/a,b.css", "")
	if got != "a{}\nb{}\n" {
		t.Errorf("output = %q, want %q", got, "a{}\nb{}\n")
	}
}

func TestMerge_ReadFailure(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/js/a.js", "A")
	tree.Write("/js/b.js", "B")
	tree.Write("/js/c.js", "C")
	p := failingProvider{Provider: tree.Provider(), fail: map[string]bool{"/js/b.js": true}}

	t.Run("lenient skips failing member", func(t *testing.T) {
		e := NewEngine(p, nil, DefaultOptions(), testLogger)

		got, res := merge(t, e, "/js/a,b,c.js", "")
		if got != "A\nC" {
			t.Errorf("output = %q, want %q", got, "A\nC")
		}
		if res.Missing != 1 {
			t.Errorf("Missing = %d, want 1", res.Missing)
		}
		if len(res.Failed) != 1 || res.Failed[0] != "/js/b.js" {
			t.Errorf("Failed = %v, want [/js/b.js]", res.Failed)
		}
	})

	t.Run("strict aborts", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Policy = PolicyStrict
		e := NewEngine(p, nil, opts, testLogger)

		var out bytes.Buffer
		_, err := e.Merge(context.Background(), group.Resolve("/js/a,b,c.js"), "", &out)
		if !errors.Is(err, ErrReadFailure) {
			t.Fatalf("Merge() error = %v, want ErrReadFailure", err)
		}
		var memberErr *MemberError
		if !errors.As(err, &memberErr) || memberErr.ID != "/js/b.js" {
			t.Errorf("MemberError = %+v, want ID /js/b.js", memberErr)
		}
		if strings.Contains(out.String(), "partial") {
			t.Error("partial member output leaked into sink")
		}
	})
}

func TestMerge_ContextCancelled(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/js/a.js", "A")

	e := NewEngine(tree.Provider(), nil, DefaultOptions(), testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if _, err := e.Merge(ctx, group.Resolve("/js/a.js"), "", &out); !errors.Is(err, context.Canceled) {
		t.Errorf("Merge() error = %v, want context.Canceled", err)
	}
}

func TestMerge_ReferencesReplacedOnRemerge(t *testing.T) {
	tree := testutil.NewAssetTree(t)
	tree.Write("/css/site.css", "a{background:url(one.png)}")

	p := tree.Provider()
	refs := NewReferenceMap()
	e := NewEngine(p, refs, DefaultOptions(), testLogger)
	merge(t, e, "/css/site.css", "")

	tree.WriteAt("/css/site.css", "a{}", time.Now())
	merge(t, e, "/css/site.css", "")

	if deps := refs.DependenciesOf(p.RealPath("/css/site.css")); len(deps) != 0 {
		t.Errorf("DependenciesOf() = %v, want none after references removed", deps)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in          string
		want        Policy
		expectError bool
	}{
		{in: "", want: PolicyLenient},
		{in: "lenient", want: PolicyLenient},
		{in: "STRICT", want: PolicyStrict},
		{in: "yolo", want: PolicyLenient, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.expectError {
				t.Fatalf("ParsePolicy() error = %v, expectError %v", err, tt.expectError)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy() = %v, want %v", got, tt.want)
			}
		})
	}
}
