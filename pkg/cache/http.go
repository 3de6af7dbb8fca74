package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// hopHeaders are never stored or replayed.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
}

// NewEntry builds an entry from a captured status, header set and body.
// The header is cloned and hop-by-hop headers are dropped.
func NewEntry(key string, status int, header http.Header, body []byte, capturedAt time.Time) (*Entry, error) {
	if status < 100 || status > 999 {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidEntry, status)
	}

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}

	return &Entry{
		Key:         key,
		Status:      status,
		Header:      h,
		Body:        append([]byte(nil), body...),
		CapturedAt:  capturedAt,
		ContentType: h.Get("Content-Type"),
	}, nil
}

// WriteTo replays the entry onto w: headers, status and body, verbatim.
// Content-Length is set from the stored body.
func (e *Entry) WriteTo(w http.ResponseWriter, includeBody bool) error {
	dst := w.Header()
	for k, vv := range e.Header {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	dst.Set("Content-Length", strconv.Itoa(len(e.Body)))

	w.WriteHeader(e.Status)
	if !includeBody || len(e.Body) == 0 {
		return nil
	}
	if _, err := w.Write(e.Body); err != nil {
		return fmt.Errorf("write cached body: %w", err)
	}
	return nil
}
