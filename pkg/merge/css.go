package merge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/anupambasak/webutilities/pkg/fingerprint"
)

// cssURLPattern matches url(...) with optional quotes. Group 1 is the reference.
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

// protocolPattern matches absolute URLs such as http://, https:// or ftp://.
var protocolPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// rewriteCSS copies a stylesheet line by line, rewriting relative url(...)
// references. Every output line is terminated by "\n".
func (e *Engine) rewriteCSS(dst *bytes.Buffer, cssID, contextPath string, r io.Reader) error {
	br := bufio.NewReader(r)
	var targets []string

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			dst.WriteString(e.rewriteLine(line, cssID, contextPath, &targets))
			dst.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", cssID, err)
		}
	}

	e.refs.Replace(e.provider.RealPath(cssID), targets)
	return nil
}

// rewriteLine replaces only the reference inside each url(...) match and
// keeps every other byte of the line.
func (e *Engine) rewriteLine(line, cssID, contextPath string, targets *[]string) string {
	matches := cssURLPattern.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return line
	}

	var b strings.Builder
	b.Grow(len(line) + 32*len(matches))
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		ref := line[start:end]

		replacement, resolved, ok := e.resolveReference(cssID, contextPath, ref)
		if !ok {
			continue
		}
		*targets = append(*targets, e.provider.RealPath(resolved))

		b.WriteString(line[last:start])
		b.WriteString(replacement)
		last = end
	}
	b.WriteString(line[last:])
	return b.String()
}

// resolveReference returns the rewritten reference and the resolved resource
// path. ok is false for references that must be left untouched.
func (e *Engine) resolveReference(cssID, contextPath, ref string) (string, string, bool) {
	if isExternalReference(ref) {
		return "", "", false
	}

	p, suffix := splitSuffix(ref)
	if p == "" {
		return "", "", false
	}

	resolved := p
	if !strings.HasPrefix(p, "/") {
		resolved = path.Join(path.Dir(cssID), p)
	}

	target := resolved
	if e.opts.Fingerprinting {
		target = fingerprint.Apply(e.provider, resolved)
	}

	e.logger.Trace().
		Str("stylesheet", cssID).
		Str("reference", ref).
		Str("resolved", target).
		Msg("Rewrote stylesheet reference")

	return strings.TrimSuffix(contextPath, "/") + target + suffix, resolved, true
}

func isExternalReference(ref string) bool {
	lower := strings.ToLower(ref)
	return protocolPattern.MatchString(ref) ||
		strings.HasPrefix(ref, "//") ||
		strings.HasPrefix(ref, "#") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "about:")
}

// splitSuffix separates a query string or fragment from a reference.
func splitSuffix(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}
