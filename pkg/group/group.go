// Package group resolves combined-asset request paths into ordered resource groups.
//
// A request such as /js/a,b,c.js names three members of the /js directory
// that are served concatenated in that order: /js/a.js, /js/b.js, /js/c.js.
// Resolution is pure string manipulation; whether members exist is decided
// later by the merge and freshness layers.
package group

import (
	"path"
	"strings"
)

// Separator delimits member names inside a grouped request path.
const Separator = ","

// groupable lists the extensions whose requests may name several members.
var groupable = map[string]bool{
	".js":   true,
	".css":  true,
	".json": true,
}

// Group is an ordered list of resource identifiers sharing one parent directory.
// It is immutable after Resolve returns it.
type Group struct {
	// Path is the request path the group was resolved from.
	Path string

	// Dir is the shared parent directory of all members.
	Dir string

	// Ext is the shared extension including the leading dot, or "" for
	// non-groupable requests.
	Ext string

	// Members are the resource identifiers in concatenation order.
	Members []string
}

// IsGroupable reports whether ext (with leading dot) supports member lists.
func IsGroupable(ext string) bool {
	return groupable[strings.ToLower(ext)]
}

// Resolve parses requestPath into a Group.
//
// Empty names (from "/js/.js" or trailing commas) produce an empty-string
// member so that malformed input surfaces as a missing resource.
func Resolve(requestPath string) Group {
	dir, base := path.Split(requestPath)
	ext := path.Ext(base)

	if !IsGroupable(ext) {
		return Group{
			Path:    requestPath,
			Dir:     strings.TrimSuffix(dir, "/"),
			Members: []string{requestPath},
		}
	}

	names := strings.Split(strings.TrimSuffix(base, ext), Separator)
	members := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			members = append(members, "")
			continue
		}
		members = append(members, dir+name+ext)
	}

	return Group{
		Path:    requestPath,
		Dir:     strings.TrimSuffix(dir, "/"),
		Ext:     ext,
		Members: members,
	}
}

// Len returns the number of members.
func (g Group) Len() int {
	return len(g.Members)
}

// IsCombined reports whether the request named more than one member.
func (g Group) IsCombined() bool {
	return len(g.Members) > 1
}

// Extension returns the extension used for MIME selection: the shared group
// extension, or the extension of the literal path for non-groupable requests.
func (g Group) Extension() string {
	if g.Ext != "" {
		return g.Ext
	}
	return path.Ext(g.Path)
}
