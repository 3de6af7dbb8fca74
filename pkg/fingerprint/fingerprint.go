// Package fingerprint embeds cache-busting tokens into resource URLs.
//
// A token is derived from a resource's own modification state, so a URL
// changes whenever the file it points at changes:
//
//	/img/logo.png  ->  /img/logo_wu_3f1c9a0b2d4e6f70.png
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"path"
	"regexp"
	"strings"

	"github.com/anupambasak/webutilities/pkg/resource"
)

// Marker precedes the token inside a fingerprinted file name.
const Marker = "_wu_"

// TokenLength is the number of hex characters in a token.
const TokenLength = 16

var tokenPattern = regexp.MustCompile(Marker + `[0-9a-f]{16}`)

// Token returns the fingerprint for the given metadata. Only the
// modification time and size participate.
func Token(meta resource.Metadata) string {
	h := fnv.New64a()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(meta.LastModified.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], uint64(meta.Size))
	_, _ = h.Write(buf[:])
	return fmt.Sprintf("%016x", h.Sum64())
}

// Build returns the token for id, or false when the resource does not exist.
func Build(p resource.Provider, id string) (string, bool) {
	meta, err := p.Stat(id)
	if err != nil {
		return "", false
	}
	return Token(meta), true
}

// Encode inserts token into the file name of p, before its extension.
// An empty token returns p unchanged.
func Encode(p, token string) string {
	if token == "" {
		return p
	}
	dir, file := path.Split(p)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	return dir + stem + Marker + token + ext
}

// Strip removes every fingerprint token from p. It is the inverse of Encode.
func Strip(p string) string {
	if !strings.Contains(p, Marker) {
		return p
	}
	return tokenPattern.ReplaceAllString(p, "")
}

// Apply fingerprints id using the provider's current metadata. Missing
// resources are returned unchanged.
func Apply(p resource.Provider, id string) string {
	token, ok := Build(p, id)
	if !ok {
		return id
	}
	return Encode(id, token)
}
