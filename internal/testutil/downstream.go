package testutil

import (
	"net/http"
	"sync"
	"time"
)

// DownstreamResponse defines the behavior for a mock downstream response.
type DownstreamResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Downstream is a configurable handler that counts how often it runs.
// It stands in for the handler wrapped by the response cache.
type Downstream struct {
	mu        sync.RWMutex
	responses map[string]DownstreamResponse
	fallback  http.Handler

	// Tracking
	requestCount int
	lastPath     string
}

// NewDownstream creates a downstream that answers unknown paths with fallback.
// A nil fallback answers 404.
func NewDownstream(fallback http.Handler) *Downstream {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return &Downstream{
		responses: make(map[string]DownstreamResponse),
		fallback:  fallback,
	}
}

// SetResponse configures a fixed response for a path.
func (d *Downstream) SetResponse(path string, resp DownstreamResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[path] = resp
}

// ServeHTTP implements http.Handler.
func (d *Downstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requestCount++
	d.lastPath = r.URL.Path
	resp, ok := d.responses[r.URL.Path]
	d.mu.Unlock()

	if !ok {
		d.fallback.ServeHTTP(w, r)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	// StatusCode 0 leaves the status unset, like handlers that never call WriteHeader.
	if resp.StatusCode != 0 {
		w.WriteHeader(resp.StatusCode)
	}
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// RequestCount returns the number of requests served.
func (d *Downstream) RequestCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.requestCount
}

// LastPath returns the path of the most recent request.
func (d *Downstream) LastPath() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPath
}

// Reset clears all tracking counters.
func (d *Downstream) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestCount = 0
	d.lastPath = ""
}

// NewScriptResponse creates a 200 OK javascript response.
func NewScriptResponse(body string) DownstreamResponse {
	return DownstreamResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/javascript; charset=utf-8",
		},
	}
}

// NewErrorResponse creates a response with the given status and a plain body.
func NewErrorResponse(status int) DownstreamResponse {
	return DownstreamResponse{
		StatusCode: status,
		Body:       http.StatusText(status),
		Headers: map[string]string{
			"Content-Type": "text/plain; charset=utf-8",
		},
	}
}
