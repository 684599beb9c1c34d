// Package lsid parses and formats Life Science Identifiers of the form
// urn:lsid:<authority>:<namespace>:<objectId>[:<version>].
//
// Every segment is percent-decoded on parse and re-encoded on format.
// Malformed input parses to an invalid Lsid whose String is the original
// text, so identifiers can always be displayed; write paths call Check.
package lsid

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

var pattern = regexp.MustCompile(`^(?i:urn:lsid):([^:]+):([^:]+):([^:]+)(?::([^:]+))?$`)

// DefaultAuthority is used when none is configured.
const DefaultAuthority = "localhost"

var defaultAuthority atomic.Value

// SetDefaultAuthority sets the process-wide authority used by New and by
// builders started from an empty Lsid.
func SetDefaultAuthority(authority string) {
	defaultAuthority.Store(strings.ToLower(authority))
}

// Authority returns the process-wide default authority.
func Authority() string {
	if v, ok := defaultAuthority.Load().(string); ok && v != "" {
		return v
	}
	return DefaultAuthority
}

// Lsid is an immutable parsed identifier.
type Lsid struct {
	src       string
	authority string
	namespace string
	objectID  string
	version   string
	valid     bool
}

// Parse parses s. It never fails; check Valid before using the result on a
// write path.
func Parse(s string) Lsid {
	l := Lsid{src: s}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return l
	}
	parts := make([]string, 4)
	for i := range parts {
		d, err := url.PathUnescape(m[i+1])
		if err != nil {
			return l
		}
		parts[i] = d
	}
	l.authority = strings.ToLower(parts[0])
	l.namespace = parts[1]
	l.objectID = parts[2]
	l.version = parts[3]
	l.valid = true
	return l
}

// Check parses s and returns an error when it is malformed.
func Check(s string) (Lsid, error) {
	l := Parse(s)
	if !l.valid {
		return l, fmt.Errorf("%w: %q", types.ErrInvalidLsid, s)
	}
	return l, nil
}

// New builds an identifier with the default authority.
func New(namespace, objectID string) Lsid {
	return Lsid{authority: Authority(), namespace: namespace, objectID: objectID, valid: true}
}

// Valid reports whether the source text was well formed.
func (l Lsid) Valid() bool { return l.valid }

func (l Lsid) Authority() string { return l.authority }
func (l Lsid) Namespace() string { return l.namespace }
func (l Lsid) ObjectID() string  { return l.objectID }
func (l Lsid) Version() string   { return l.version }

// NamespacePrefix returns the namespace up to the first dot.
func (l Lsid) NamespacePrefix() string {
	prefix, _, _ := strings.Cut(l.namespace, ".")
	return prefix
}

// NamespaceSuffix returns everything after the first dot of the namespace,
// or "" when there is none.
func (l Lsid) NamespaceSuffix() string {
	_, suffix, _ := strings.Cut(l.namespace, ".")
	return suffix
}

// String formats the identifier. Invalid identifiers return their source text.
func (l Lsid) String() string {
	if !l.valid {
		return l.src
	}
	var b strings.Builder
	b.WriteString("urn:lsid:")
	b.WriteString(encodePart(strings.ToLower(l.authority)))
	b.WriteByte(':')
	b.WriteString(encodePart(l.namespace))
	b.WriteByte(':')
	if id, ok := strings.CutSuffix(l.objectID, "#"); ok {
		b.WriteString(encodePart(id))
		b.WriteByte('#')
	} else {
		b.WriteString(encodePart(l.objectID))
	}
	if l.version != "" {
		b.WriteByte(':')
		b.WriteString(encodePart(l.version))
	}
	return b.String()
}

// Equal compares decoded parts when both are valid and the raw text otherwise.
func (l Lsid) Equal(o Lsid) bool {
	if l.valid && o.valid {
		return l.authority == o.authority && l.namespace == o.namespace &&
			l.objectID == o.objectID && l.version == o.version
	}
	return l.valid == o.valid && l.src == o.src
}

const upperhex = "0123456789ABCDEF"

// encodePart percent-encodes every byte outside the unreserved set and the
// handful of sub-delimiters that are unambiguous inside a segment.
func encodePart(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '!', '*', '\'', '(', ')', '@', '$', '+', ',', ';', '=':
		return true
	}
	return false
}
