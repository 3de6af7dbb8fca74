package cache

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/anupambasak/webutilities/pkg/fingerprint"
)

// Key identifies one cached artifact: the request path (including any group
// encoding) plus the query parameters that are not control signals.
type Key struct {
	// Path is the request path with any fingerprint removed
	Path string

	// Query holds the remaining query parameters
	Query url.Values
}

// KeyFromRequest derives the cache key for r. Parameters named in ignored
// (control signals such as expire/reset/skip/debug) do not participate, and a
// fingerprint embedded in the path is stripped.
func KeyFromRequest(r *http.Request, ignored ...string) Key {
	q := r.URL.Query()
	for _, name := range ignored {
		q.Del(name)
	}
	return Key{
		Path:  fingerprint.Strip(r.URL.Path),
		Query: q,
	}
}

// String generates a deterministic cache key string.
// Format: path?a=1&b=2 with query keys sorted.
//
// Example:
//
//	/static/js/a,b.js?lang=en
func (k Key) String() string {
	p := k.Path
	if p == "" {
		p = "/"
	}
	if len(k.Query) == 0 {
		return p
	}
	encoded := k.Query.Encode()
	if encoded == "" {
		return p
	}
	var b strings.Builder
	b.Grow(len(p) + 1 + len(encoded))
	b.WriteString(p)
	b.WriteByte('?')
	b.WriteString(encoded)
	return b.String()
}
