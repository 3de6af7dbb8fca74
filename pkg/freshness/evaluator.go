// Package freshness decides whether combined artifacts are still valid
// relative to the resources they were built from.
//
// All metadata is read from the provider on every call. Nothing here caches
// a verdict across requests: staleness detection depends on the provider's
// current state.
package freshness

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anupambasak/webutilities/pkg/group"
	"github.com/anupambasak/webutilities/pkg/resource"
)

// Dependencies reports additional resources a member depends on, such as
// images referenced from a stylesheet.
type Dependencies interface {
	DependenciesOf(realPath string) []string
}

// Combined is the aggregate freshness of a resource group.
type Combined struct {
	// LastModified is the latest modification time among existing members.
	LastModified time.Time

	// ETag is a quoted entity tag over all existing members, or "" when no
	// member exists.
	ETag string

	// Members holds the metadata of members that exist, in group order.
	Members []resource.Metadata

	// Missing lists members that do not exist.
	Missing []string
}

// AllMissing reports whether no member of the group exists.
func (c Combined) AllMissing() bool {
	return len(c.Members) == 0
}

// Verdict is the outcome of a conditional-request evaluation.
type Verdict struct {
	// Fresh is true when the client copy is still valid.
	Fresh bool

	// ETag is the freshly computed entity tag.
	ETag string

	// Combined is the freshness snapshot the verdict was computed from.
	Combined Combined
}

// Evaluator computes freshness over resource groups.
type Evaluator struct {
	provider resource.Provider
	deps     Dependencies
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReferences extends staleness checks to the dependencies reported by d.
func WithReferences(d Dependencies) Option {
	return func(e *Evaluator) {
		e.deps = d
	}
}

// NewEvaluator creates an evaluator reading from provider.
func NewEvaluator(provider resource.Provider, opts ...Option) *Evaluator {
	if provider == nil {
		panic("resource provider cannot be nil")
	}
	e := &Evaluator{provider: provider}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Combined reads metadata for every member of g. Missing members are
// recorded rather than failing the computation.
func (e *Evaluator) Combined(g group.Group) Combined {
	c := Combined{
		Members: make([]resource.Metadata, 0, len(g.Members)),
	}
	for _, id := range g.Members {
		meta, err := e.provider.Stat(id)
		if err != nil {
			c.Missing = append(c.Missing, id)
			continue
		}
		c.Members = append(c.Members, meta)
		if meta.LastModified.After(c.LastModified) {
			c.LastModified = meta.LastModified
		}
	}
	c.ETag = ETag(c.Members)
	return c
}

// IsConditionallyFresh evaluates client validators against the current state
// of g. A zero ifModifiedSince and an empty ifNoneMatch mean "absent".
// If-Modified-Since is checked first; no member content is read.
func (e *Evaluator) IsConditionallyFresh(g group.Group, ifModifiedSince time.Time, ifNoneMatch string) Verdict {
	c := e.Combined(g)
	v := Verdict{ETag: c.ETag, Combined: c}

	if c.AllMissing() {
		return v
	}

	if !ifModifiedSince.IsZero() && !modifiedSince(c.Members, ifModifiedSince) {
		v.Fresh = true
		return v
	}

	if ifNoneMatch != "" && matchesETag(ifNoneMatch, c.ETag) {
		v.Fresh = true
	}
	return v
}

// IsStaleRelativeTo reports whether any member of g, or any registered
// dependency of a member, was modified after ts.
func (e *Evaluator) IsStaleRelativeTo(g group.Group, ts time.Time) bool {
	for _, id := range g.Members {
		meta, err := e.provider.Stat(id)
		if err != nil {
			continue
		}
		if meta.LastModified.After(ts) {
			return true
		}
		if e.deps == nil {
			continue
		}
		for _, dep := range e.deps.DependenciesOf(e.provider.RealPath(id)) {
			if depModifiedAfter(dep, ts) {
				return true
			}
		}
	}
	return false
}

// LastModified returns the latest modification time among the existing
// members of g and their registered dependencies. An artifact built now is
// valid as of this instant.
func (e *Evaluator) LastModified(g group.Group) time.Time {
	latest := e.DependenciesLastModified(g)
	for _, id := range g.Members {
		if meta, err := e.provider.Stat(id); err == nil && meta.LastModified.After(latest) {
			latest = meta.LastModified
		}
	}
	return latest
}

// DependenciesLastModified returns the latest modification time among the
// registered dependencies of the members of g, or the zero time when none
// are known. Dependencies are registered by a merge, so this may grow once
// a stylesheet has been rendered for the first time.
func (e *Evaluator) DependenciesLastModified(g group.Group) time.Time {
	var latest time.Time
	if e.deps == nil {
		return latest
	}
	for _, id := range g.Members {
		if !e.provider.Exists(id) {
			continue
		}
		for _, dep := range e.deps.DependenciesOf(e.provider.RealPath(id)) {
			if info, err := os.Stat(dep); err == nil && info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
	}
	return latest
}

// ETag computes the quoted entity tag over members in order.
func ETag(members []resource.Metadata) string {
	if len(members) == 0 {
		return ""
	}
	h := sha256.New()
	for _, m := range members {
		h.Write([]byte(m.ID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(m.LastModified.UnixNano(), 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(m.Size, 10)))
		h.Write([]byte{'\n'})
	}
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// ParseConditional extracts If-Modified-Since and If-None-Match from h.
// An unparsable date is treated as absent.
func ParseConditional(h http.Header) (time.Time, string) {
	var ims time.Time
	if raw := h.Get("If-Modified-Since"); raw != "" {
		if t, err := http.ParseTime(raw); err == nil {
			ims = t
		}
	}
	return ims, strings.TrimSpace(h.Get("If-None-Match"))
}

// modifiedSince compares at whole-second precision, the resolution of HTTP dates.
func modifiedSince(members []resource.Metadata, since time.Time) bool {
	since = since.Truncate(time.Second)
	for _, m := range members {
		if m.LastModified.Truncate(time.Second).After(since) {
			return true
		}
	}
	return false
}

func matchesETag(header, etag string) bool {
	if etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}

func depModifiedAfter(realPath string, ts time.Time) bool {
	info, err := os.Stat(realPath)
	if err != nil {
		return false
	}
	return info.ModTime().After(ts)
}
