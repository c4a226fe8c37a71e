package httpcache

import (
	"encoding/hex"
	"net/url"
	"strings"

	"lukechampine.com/blake3"
)

// Well-known key attribute names. Attributes are free-form name/value pairs;
// these constants cover the attributes the driver derives from a request.
const (
	AttrURL     = "url"
	AttrMethod  = "method"
	AttrRefresh = "refresh"
	AttrOwner   = "owner"
	AttrViewer  = "viewer"
)

// RefreshForce is the AttrRefresh value that makes Add overwrite a live entry.
const RefreshForce = "force"

// Attr is a single named cache key attribute.
type Attr struct {
	Name  string
	Value string
}

// Key identifies a cached response. A key is an ordered list of string
// attributes; two keys are equal iff every attribute pair matches. Keys are
// immutable once built.
type Key struct {
	attrs     []Attr
	canonical string
}

// KeyBuilder accumulates attributes for a Key. The zero value is ready to use.
type KeyBuilder struct {
	attrs []Attr
}

// Set appends an attribute, returning the builder for chaining.
func (b *KeyBuilder) Set(name, value string) *KeyBuilder {
	b.attrs = append(b.attrs, Attr{Name: name, Value: value})
	return b
}

// Build constructs the immutable Key. The builder may be reused afterwards
// without affecting the built key.
//
// The refresh policy attribute is carried by the key but excluded from its
// identity: a force-refresh request must address the same cache entry as an
// ordinary one, or it could never replace it.
func (b *KeyBuilder) Build() Key {
	attrs := make([]Attr, len(b.attrs))
	copy(attrs, b.attrs)

	var sb strings.Builder
	first := true
	for _, a := range attrs {
		if a.Name == AttrRefresh {
			continue
		}
		if !first {
			sb.WriteByte('&')
		}
		first = false
		sb.WriteString(url.QueryEscape(a.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(a.Value))
	}

	return Key{attrs: attrs, canonical: sb.String()}
}

// String returns the canonical form of the key: the escaped attribute pairs
// in construction order.
func (k Key) String() string {
	return k.canonical
}

// Equal reports whether both keys carry identical attribute pairs.
func (k Key) Equal(other Key) bool {
	return k.canonical == other.canonical
}

// Digest returns a fixed-length storage key derived from the canonical form.
func (k Key) Digest() string {
	sum := blake3.Sum256([]byte(k.canonical))
	return hex.EncodeToString(sum[:])
}

// Attr returns the value of the first attribute with the given name.
func (k Key) Attr(name string) (string, bool) {
	for _, a := range k.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ForceRefresh reports whether the key's refresh policy attribute requires
// Add to overwrite a live entry.
func (k Key) ForceRefresh() bool {
	v, ok := k.Attr(AttrRefresh)
	return ok && v == RefreshForce
}
