package chunkstore

import "strings"

// EntityPath identifies one logical logged object as an ordered sequence of
// path parts, e.g. "world/car/wheel". Paths are hierarchical: queries may
// walk ancestors to resolve inherited data. The canonical form carries no
// leading, trailing or repeated separators, so values are comparable and
// totally ordered by ordinary string comparison.
type EntityPath string

// RootEntityPath is the ancestor of every entity path.
const RootEntityPath EntityPath = ""

// NewEntityPath canonicalizes s into an EntityPath. Empty parts produced by
// leading, trailing or doubled separators are dropped.
func NewEntityPath(s string) EntityPath {
	if s == "" || s == "/" {
		return RootEntityPath
	}

	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return EntityPath(strings.Join(kept, "/"))
}

// EntityPathFromParts joins parts into an EntityPath.
func EntityPathFromParts(parts ...string) EntityPath {
	return NewEntityPath(strings.Join(parts, "/"))
}

// String renders the path with a leading separator, e.g. "/world/car".
func (p EntityPath) String() string {
	return "/" + string(p)
}

// Parts returns the ordered path components. The root path has none.
func (p EntityPath) Parts() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p), "/")
}

// IsRoot reports whether p is the root path.
func (p EntityPath) IsRoot() bool { return p == RootEntityPath }

// Parent returns the path one level up and false once p is the root.
func (p EntityPath) Parent() (EntityPath, bool) {
	if p.IsRoot() {
		return RootEntityPath, false
	}
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return RootEntityPath, true
	}
	return p[:i], true
}

// Child returns p extended by one part.
func (p EntityPath) Child(part string) EntityPath {
	if p.IsRoot() {
		return NewEntityPath(part)
	}
	return NewEntityPath(string(p) + "/" + part)
}

// IsAncestorOf reports whether p is a strict ancestor of other. The root
// path is an ancestor of everything but itself.
func (p EntityPath) IsAncestorOf(other EntityPath) bool {
	if p == other {
		return false
	}
	if p.IsRoot() {
		return true
	}
	return strings.HasPrefix(string(other), string(p)+"/")
}
