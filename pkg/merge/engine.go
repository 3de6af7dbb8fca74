// Package merge concatenates resource groups into a single response body and
// serves them over HTTP.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anupambasak/webutilities/pkg/group"
	"github.com/anupambasak/webutilities/pkg/resource"
)

// Policy controls how read failures on individual members are handled.
type Policy int

const (
	// PolicyLenient logs a failing member, counts it as missing and keeps
	// merging the rest of the group.
	PolicyLenient Policy = iota

	// PolicyStrict aborts the merge on the first member that fails to read.
	PolicyStrict
)

// String returns the policy name.
func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "lenient"
}

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return PolicyLenient, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyLenient, fmt.Errorf("unknown merge policy %q", s)
	}
}

var separator = []byte("\n")

// Options configures an Engine.
type Options struct {
	// Policy selects lenient or strict handling of read failures.
	Policy Policy

	// RewriteCSSURLs enables the stylesheet url(...) rewrite pass. When
	// disabled, stylesheets are copied verbatim like any other member.
	RewriteCSSURLs bool

	// Fingerprinting embeds a fingerprint into rewritten stylesheet URLs.
	Fingerprinting bool
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		Policy:         PolicyLenient,
		RewriteCSSURLs: true,
		Fingerprinting: true,
	}
}

// Result summarizes a merge.
type Result struct {
	// BytesWritten is the number of bytes written to the sink.
	BytesWritten int64

	// Missing counts members that produced no output, including members
	// that failed to read under the lenient policy.
	Missing int

	// MissingIDs lists members that did not exist.
	MissingIDs []string

	// Failed lists members that existed but could not be read.
	Failed []string

	// Emitted counts members that produced output.
	Emitted int
}

// Engine merges resource groups.
type Engine struct {
	provider resource.Provider
	refs     *ReferenceMap
	opts     Options
	logger   zerolog.Logger
}

// NewEngine creates a merge engine. refs may be nil when reference tracking
// is not needed.
func NewEngine(provider resource.Provider, refs *ReferenceMap, opts Options, logger zerolog.Logger) *Engine {
	if provider == nil {
		panic("resource provider cannot be nil")
	}
	return &Engine{
		provider: provider,
		refs:     refs,
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Merge writes every member of g to sink in order.
//
// Each member is rendered into memory first, so a member that fails halfway
// contributes no bytes. Non-stylesheet members are separated by a single
// newline; the first emitted member never gets one, even when earlier members
// were missing.
func (e *Engine) Merge(ctx context.Context, g group.Group, contextPath string, sink io.Writer) (Result, error) {
	start := time.Now()
	defer func() {
		Duration.Observe(time.Since(start).Seconds())
	}()

	var (
		res        Result
		buf        bytes.Buffer
		anyRaw     bool
		lastWasRaw bool
	)

	for _, id := range g.Members {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if !e.provider.Exists(id) {
			res.Missing++
			res.MissingIDs = append(res.MissingIDs, id)
			MembersTotal.WithLabelValues("missing").Inc()
			e.logger.Debug().Str("member", id).Str("path", g.Path).Msg("Group member not found")
			continue
		}

		rewrite := e.opts.RewriteCSSURLs && isStylesheet(id)

		buf.Reset()
		if err := e.render(&buf, id, rewrite, contextPath); err != nil {
			MembersTotal.WithLabelValues("failed").Inc()
			if e.opts.Policy == PolicyStrict {
				e.logger.Error().Err(err).Str("member", id).Str("path", g.Path).Msg("Failed to read group member")
				return res, &MemberError{ID: id, Err: err}
			}
			e.logger.Warn().Err(err).Str("member", id).Str("path", g.Path).Msg("Failed to read group member, skipping")
			res.Missing++
			res.Failed = append(res.Failed, id)
			continue
		}

		// Rewritten stylesheets end every line with a newline, so they only
		// need a separator after a raw member.
		needSep := anyRaw
		if rewrite {
			needSep = lastWasRaw
		}
		if needSep {
			n, err := sink.Write(separator)
			res.BytesWritten += int64(n)
			if err != nil {
				return res, fmt.Errorf("write separator: %w", err)
			}
		}

		n, err := sink.Write(buf.Bytes())
		res.BytesWritten += int64(n)
		if err != nil {
			return res, fmt.Errorf("write %s: %w", id, err)
		}

		res.Emitted++
		MembersTotal.WithLabelValues("emitted").Inc()
		lastWasRaw = !rewrite
		if !rewrite {
			anyRaw = true
		}
	}

	BytesTotal.Add(float64(res.BytesWritten))
	return res, nil
}

func (e *Engine) render(dst *bytes.Buffer, id string, rewrite bool, contextPath string) error {
	rc, err := e.provider.Open(id)
	if err != nil {
		return err
	}
	defer rc.Close()

	if rewrite {
		return e.rewriteCSS(dst, id, contextPath, rc)
	}
	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("read %s: %w", id, err)
	}
	return nil
}

func isStylesheet(id string) bool {
	return strings.EqualFold(path.Ext(id), ".css")
}
