package respcache

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
)

// FilterConfig holds the acceptance patterns as written in configuration.
// Each pattern must match the whole value. An empty pattern is not applied.
type FilterConfig struct {
	AcceptURL       string `yaml:"accept_url"`
	IgnoreURL       string `yaml:"ignore_url"`
	AcceptQuery     string `yaml:"accept_query"`
	IgnoreQuery     string `yaml:"ignore_query"`
	AcceptUserAgent string `yaml:"accept_user_agent"`
	IgnoreUserAgent string `yaml:"ignore_user_agent"`

	// AcceptMIME lists media types whose responses may be stored.
	// Empty accepts every type.
	AcceptMIME []string `yaml:"accept_mime"`
}

// DefaultMIMETypes are the media types produced for scripts, stylesheets and JSON.
var DefaultMIMETypes = []string{
	"text/javascript",
	"application/javascript",
	"application/x-javascript",
	"text/css",
	"application/json",
}

// Filter decides which requests are in scope for caching and which captured
// responses may be stored.
type Filter struct {
	acceptURL, ignoreURL             *regexp.Regexp
	acceptQuery, ignoreQuery         *regexp.Regexp
	acceptUserAgent, ignoreUserAgent *regexp.Regexp
	acceptMIME                       map[string]bool
}

// NewFilter compiles cfg.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	f := &Filter{}
	patterns := []struct {
		name string
		src  string
		dst  **regexp.Regexp
	}{
		{"accept_url", cfg.AcceptURL, &f.acceptURL},
		{"ignore_url", cfg.IgnoreURL, &f.ignoreURL},
		{"accept_query", cfg.AcceptQuery, &f.acceptQuery},
		{"ignore_query", cfg.IgnoreQuery, &f.ignoreQuery},
		{"accept_user_agent", cfg.AcceptUserAgent, &f.acceptUserAgent},
		{"ignore_user_agent", cfg.IgnoreUserAgent, &f.ignoreUserAgent},
	}
	for _, p := range patterns {
		if p.src == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + p.src + `)$`)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern: %w", p.name, err)
		}
		*p.dst = re
	}

	if len(cfg.AcceptMIME) > 0 {
		f.acceptMIME = make(map[string]bool, len(cfg.AcceptMIME))
		for _, t := range cfg.AcceptMIME {
			f.acceptMIME[strings.ToLower(strings.TrimSpace(t))] = true
		}
	}
	return f, nil
}

// AcceptAll returns a filter that accepts every request and content type.
func AcceptAll() *Filter {
	return &Filter{}
}

// URLAccepted reports whether the request path is in scope.
func (f *Filter) URLAccepted(urlPath string) bool {
	return accepted(urlPath, f.acceptURL, f.ignoreURL)
}

// QueryAccepted reports whether the raw query string is in scope. A request
// without a query string is always accepted.
func (f *Filter) QueryAccepted(rawQuery string) bool {
	if rawQuery == "" {
		return true
	}
	return accepted(rawQuery, f.acceptQuery, f.ignoreQuery)
}

// UserAgentAccepted reports whether the user agent is in scope.
func (f *Filter) UserAgentAccepted(ua string) bool {
	return accepted(ua, f.acceptUserAgent, f.ignoreUserAgent)
}

// MIMEAccepted reports whether a response with this Content-Type may be
// stored. Parameters such as charset are ignored.
func (f *Filter) MIMEAccepted(contentType string) bool {
	if f.acceptMIME == nil {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return f.acceptMIME[mediaType]
}

func accepted(v string, accept, ignore *regexp.Regexp) bool {
	if ignore != nil && ignore.MatchString(v) {
		return false
	}
	return accept == nil || accept.MatchString(v)
}
