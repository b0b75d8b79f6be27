// Package mimetype implements the two-part content-type identifier used for
// converter negotiation, including the in-process struct hint carried as a
// type parameter.
package mimetype

import (
	"fmt"
	"sort"
	"strings"
)

// Type is a parsed MIME-like content type: type/subtype plus parameters.
// The zero value means "no content type configured".
type Type struct {
	Primary string
	Subtype string
	params  map[string]string
}

// Common content types handled by the built-in converters.
var (
	JSON        = New("application", "json")
	TextPlain   = New("text", "plain")
	OctetStream = New("application", "octet-stream")

	// GoBinary marks gob-encoded payloads (opaque binary round-trip).
	GoBinary = New("application", "x-go-binary")
)

// The primary/subtype pair carrying an in-process struct payload; the
// bound type tag travels in the "type" parameter.
const (
	structPrimary = "application"
	structSubtype = "x-go-struct"
)

// New builds a content type without parameters.
func New(primary, subtype string) Type {
	return Type{Primary: primary, Subtype: subtype}
}

// Struct builds the in-process struct content type bound to a registered
// type tag, e.g. application/x-go-struct;type=Order.
func Struct(tag string) Type {
	t := New(structPrimary, structSubtype)
	t.params = map[string]string{"type": tag}
	return t
}

// Parse parses "type/subtype;key=value;...". Bare tag names (no slash) are
// treated as in-process struct types, preserving "bind a channel to a
// specific in-process type" without loading anything by name.
func Parse(raw string) (Type, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Type{}, fmt.Errorf("empty content type")
	}
	if !strings.Contains(raw, "/") {
		return Struct(raw), nil
	}
	parts := strings.Split(raw, ";")
	primary, subtype, ok := strings.Cut(strings.TrimSpace(parts[0]), "/")
	if !ok || primary == "" || subtype == "" {
		return Type{}, fmt.Errorf("malformed content type %q", raw)
	}
	t := New(strings.ToLower(primary), strings.ToLower(subtype))
	for _, p := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || key == "" {
			return Type{}, fmt.Errorf("malformed content type parameter %q in %q", p, raw)
		}
		if t.params == nil {
			t.params = map[string]string{}
		}
		t.params[strings.ToLower(key)] = strings.Trim(value, `"`)
	}
	return t, nil
}

// IsZero reports whether no content type is set.
func (t Type) IsZero() bool {
	return t.Primary == "" && t.Subtype == ""
}

// Param returns one parameter value.
func (t Type) Param(key string) string {
	return t.params[strings.ToLower(key)]
}

// IsStruct reports whether the type carries an in-process struct payload.
func (t Type) IsStruct() bool {
	return t.Primary == structPrimary && t.Subtype == structSubtype
}

// StructTag returns the bound type tag for struct content types.
func (t Type) StructTag() string {
	return t.Param("type")
}

// Includes reports whether t is compatible with other, honoring wildcards:
// */* includes everything, application/* includes application/json, and a
// concrete type includes itself regardless of parameters.
func (t Type) Includes(other Type) bool {
	if t.IsZero() || other.IsZero() {
		return false
	}
	if t.Primary == "*" {
		return true
	}
	if !strings.EqualFold(t.Primary, other.Primary) {
		return false
	}
	return t.Subtype == "*" || strings.EqualFold(t.Subtype, other.Subtype)
}

// Equals reports type/subtype equality ignoring parameters.
func (t Type) Equals(other Type) bool {
	return strings.EqualFold(t.Primary, other.Primary) && strings.EqualFold(t.Subtype, other.Subtype)
}

// String renders the canonical form including parameters in stable order.
func (t Type) String() string {
	if t.IsZero() {
		return ""
	}
	if len(t.params) == 0 {
		return t.Primary + "/" + t.Subtype
	}
	keys := make([]string, 0, len(t.params))
	for k := range t.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(t.Primary)
	sb.WriteString("/")
	sb.WriteString(t.Subtype)
	for _, k := range keys {
		sb.WriteString(";")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(t.params[k])
	}
	return sb.String()
}
