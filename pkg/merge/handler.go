package merge

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anupambasak/webutilities/pkg/fingerprint"
	"github.com/anupambasak/webutilities/pkg/freshness"
	"github.com/anupambasak/webutilities/pkg/group"
)

const (
	// DefaultExpiresMinutes is seven days.
	DefaultExpiresMinutes = 7 * 24 * 60

	// DefaultCacheControl is sent when no Cache-Control value is configured.
	DefaultCacheControl = "public"
)

// CacheHeaders holds the caching headers sent with combined responses.
type CacheHeaders struct {
	// ExpiresMinutes sets Expires to now plus this many minutes.
	ExpiresMinutes int

	// CacheControl is sent verbatim. Empty disables the header.
	CacheControl string
}

// DefaultCacheHeaders returns seven-day public caching.
func DefaultCacheHeaders() CacheHeaders {
	return CacheHeaders{
		ExpiresMinutes: DefaultExpiresMinutes,
		CacheControl:   DefaultCacheControl,
	}
}

// Apply sets Expires and Cache-Control on h.
func (c CacheHeaders) Apply(h http.Header, now time.Time) {
	h.Set("Expires", now.Add(time.Duration(c.ExpiresMinutes)*time.Minute).UTC().Format(http.TimeFormat))
	if c.CacheControl != "" {
		h.Set("Cache-Control", c.CacheControl)
	}
}

// ContentType returns the MIME type for an extension, defaulting to
// application/octet-stream.
func ContentType(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// WriteNotModified sends a 304 with validators and caching headers and no body.
func WriteNotModified(w http.ResponseWriter, ext, etag string, lastModified time.Time, ch CacheHeaders, now time.Time) {
	h := w.Header()
	h.Set("Content-Type", ContentType(ext))
	ch.Apply(h, now)
	if !lastModified.IsZero() {
		h.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	if etag != "" {
		h.Set("ETag", etag)
	}
	w.WriteHeader(http.StatusNotModified)
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// ContextPath is the mount prefix stripped from request paths and
	// prepended to rewritten stylesheet URLs.
	ContextPath string

	// CSSContextPath overrides ContextPath for rewritten stylesheet URLs,
	// e.g. when assets are served from a CDN prefix.
	CSSContextPath string

	// Cache sets Expires and Cache-Control.
	Cache CacheHeaders

	// DisableETag turns off ETag generation and If-None-Match validation.
	DisableETag bool

	// Now overrides the clock for Expires; nil uses time.Now.
	Now func() time.Time
}

// Handler serves combined resource groups.
type Handler struct {
	engine    *Engine
	evaluator *freshness.Evaluator
	opts      HandlerOptions
	logger    zerolog.Logger
}

// NewHandler creates a handler merging with engine and validating with evaluator.
func NewHandler(engine *Engine, evaluator *freshness.Evaluator, opts HandlerOptions, logger zerolog.Logger) *Handler {
	if engine == nil || evaluator == nil {
		panic("merge engine and freshness evaluator cannot be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.ContextPath = strings.TrimSuffix(opts.ContextPath, "/")
	return &Handler{
		engine:    engine,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger,
	}
}

// ResourcePath maps a request URL path to the unfingerprinted resource path.
func (h *Handler) ResourcePath(urlPath string) string {
	p := strings.TrimPrefix(urlPath, h.opts.ContextPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return fingerprint.Strip(p)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	now := h.opts.Now()
	g := group.Resolve(h.ResourcePath(r.URL.Path))

	// Step 1: Client validators against the current state of the group
	ims, inm := freshness.ParseConditional(r.Header)
	if h.opts.DisableETag {
		inm = ""
	}
	verdict := h.evaluator.IsConditionallyFresh(g, ims, inm)
	etag := verdict.ETag
	if h.opts.DisableETag {
		etag = ""
	}
	if verdict.Fresh {
		NotModifiedResponses.WithLabelValues("handler").Inc()
		h.logger.Debug().Str("path", g.Path).Str("etag", etag).Msg("Resources not modified")
		WriteNotModified(w, g.Extension(), etag, verdict.Combined.LastModified, h.opts.Cache, now)
		return
	}

	// Step 2: Merge into memory so the status and length are known up front
	cssContext := h.opts.CSSContextPath
	if cssContext == "" {
		cssContext = h.opts.ContextPath
	}
	var body bytes.Buffer
	res, err := h.engine.Merge(r.Context(), g, cssContext, &body)
	if err != nil {
		if errors.Is(err, ErrReadFailure) {
			h.logger.Error().Err(err).Str("path", g.Path).Msg("Strict merge failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.logger.Warn().Err(err).Str("path", g.Path).Msg("Merge aborted")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	if res.Emitted == 0 {
		h.logger.Warn().Str("path", g.Path).Int("members", g.Len()).Msg("All resources are missing, sending 404")
		http.NotFound(w, r)
		return
	}

	// Step 3: Headers and body
	hdr := w.Header()
	hdr.Set("Content-Type", ContentType(g.Extension()))
	h.opts.Cache.Apply(hdr, now)
	if !verdict.Combined.LastModified.IsZero() {
		hdr.Set("Last-Modified", verdict.Combined.LastModified.UTC().Format(http.TimeFormat))
	}
	if etag != "" {
		hdr.Set("ETag", etag)
	}
	hdr.Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		h.logger.Debug().Err(err).Str("path", g.Path).Msg("Failed to write response")
		return
	}

	h.logger.Debug().
		Str("path", g.Path).
		Int("members", g.Len()).
		Int("missing", res.Missing).
		Int64("bytes", res.BytesWritten).
		Msg("Served combined resources")
}
