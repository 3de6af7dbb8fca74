package respcache

import (
	"net/url"
)

// Signals names the query parameters that control the cache for one request.
// Only presence matters; the value is ignored.
type Signals struct {
	// Expire invalidates the requested key.
	Expire string `yaml:"expire"`

	// Reset invalidates every key and restarts the reset clock.
	Reset string `yaml:"reset"`

	// Skip bypasses the cache for this request.
	Skip string `yaml:"skip"`

	// Debug bypasses the cache like Skip.
	Debug string `yaml:"debug"`
}

// DefaultSignals returns the parameter names the combiner recognizes by default.
func DefaultSignals() Signals {
	return Signals{
		Expire: "_expirecache_",
		Reset:  "_resetcache_",
		Skip:   "_skipcache_",
		Debug:  "_dbg_",
	}
}

// Names returns the configured parameter names, skipping empty ones. These
// never take part in cache keys.
func (s Signals) Names() []string {
	names := make([]string, 0, 4)
	for _, n := range []string{s.Expire, s.Reset, s.Skip, s.Debug} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// requestSignals is what one request asked for.
type requestSignals struct {
	expire bool
	reset  bool
	skip   bool
}

func (s Signals) parse(q url.Values) requestSignals {
	return requestSignals{
		expire: has(q, s.Expire),
		reset:  has(q, s.Reset),
		skip:   has(q, s.Skip) || has(q, s.Debug),
	}
}

func has(q url.Values, name string) bool {
	if name == "" {
		return false
	}
	_, ok := q[name]
	return ok
}
