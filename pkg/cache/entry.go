package cache

import (
	"net/http"
	"time"
)

// Entry represents a captured HTTP response.
// It is immutable once stored; replacing it means storing a new Entry.
type Entry struct {
	// Key is the cache key the entry was stored under
	Key string `json:"key"`

	// Status is the HTTP status code of the captured response
	Status int `json:"status"`

	// Header holds the response headers. Values keep their order per name.
	Header http.Header `json:"header"`

	// Body is the response body
	Body []byte `json:"body"`

	// CapturedAt is when the response was captured
	CapturedAt time.Time `json:"captured_at"`

	// ContentType is the captured Content-Type header
	ContentType string `json:"content_type"`

	// SourceModified is the latest modification time of the resources the
	// response was built from, when known.
	SourceModified time.Time `json:"source_modified"`
}

// ValidAsOf returns the instant the entry reflects: the source modification
// time when recorded, otherwise the capture time. Any resource modified after
// this instant makes the entry stale.
func (e *Entry) ValidAsOf() time.Time {
	if !e.SourceModified.IsZero() {
		return e.SourceModified
	}
	return e.CapturedAt
}

// Size returns the approximate memory footprint in bytes.
func (e *Entry) Size() int64 {
	size := int64(len(e.Body) + len(e.Key) + len(e.ContentType) + 64)
	for k, vv := range e.Header {
		size += int64(len(k))
		for _, v := range vv {
			size += int64(len(v))
		}
	}
	return size
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}
