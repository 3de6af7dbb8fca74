package respcache

import (
	"bytes"
	"net/http"
	"sync"
)

// Recorder captures a downstream response so it can be inspected, stored
// and then forwarded once.
type Recorder struct {
	mu          sync.Mutex
	status      int
	header      http.Header
	body        bytes.Buffer
	maxBytes    int64
	overLimit   bool
	wroteHeader bool
}

// NewRecorder creates a recorder. Bodies larger than maxBodyBytes are still
// captured in full but marked as over the limit; zero means no limit.
func NewRecorder(maxBodyBytes int64) *Recorder {
	return &Recorder{
		header:   make(http.Header),
		maxBytes: maxBodyBytes,
	}
}

// Header implements http.ResponseWriter
func (r *Recorder) Header() http.Header {
	return r.header
}

// Write implements http.ResponseWriter
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wroteHeader = true
	n, err := r.body.Write(p)
	if r.maxBytes > 0 && int64(r.body.Len()) > r.maxBytes {
		r.overLimit = true
	}
	return n, err
}

// WriteHeader implements http.ResponseWriter. Only the first call counts.
func (r *Recorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

// StatusCode returns the captured status, or 0 when the handler never set one.
func (r *Recorder) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Body returns the recorded body bytes.
func (r *Recorder) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Bytes()
}

// OverLimit reports whether the body exceeded the size limit.
func (r *Recorder) OverLimit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overLimit
}

// captured is an immutable snapshot of a recorded response.
type captured struct {
	status    int
	header    http.Header
	body      []byte
	overLimit bool
	stored    bool
}

// snapshot copies the recorded response, normalizing a missing status to 200.
func (r *Recorder) snapshot() *captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &captured{
		status:    status,
		header:    r.header.Clone(),
		body:      append([]byte(nil), r.body.Bytes()...),
		overLimit: r.overLimit,
	}
}

// writeTo forwards the snapshot to the client.
func (c *captured) writeTo(w http.ResponseWriter, includeBody bool) {
	dst := w.Header()
	for k, vv := range c.header {
		if k == HeaderOutcome {
			continue
		}
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	if includeBody && len(c.body) > 0 {
		_, _ = w.Write(c.body)
	}
}
