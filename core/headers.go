package core

import (
	"strings"
)

// sensitiveHeaders are redacted to "██" by Headers.String so that dumping a
// request or response for logging never leaks credentials.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"proxy-authorization": true,
	"set-cookie":          true,
}

// isTokenTable mirrors RFC 7230's tchar grammar for header field names.
var isTokenTable = [127]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true,
	'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
	'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
	'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
	'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
	'Y': true, 'Z': true,
	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true, '*': true, '+': true,
	'-': true, '.': true, '^': true, '_': true, '`': true, '|': true, '~': true,
}

// ValidHeaderName reports whether name is a legal RFC 7230 token.
func ValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if int(b) >= len(isTokenTable) || !isTokenTable[b] {
			return false
		}
	}
	return true
}

// ValidHeaderValue reports whether value contains no CR, LF or NUL bytes.
// A bare tab is allowed, per spec.md §6.
func ValidHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\r', '\n', 0:
			return false
		}
	}
	return true
}

// CanonicalHeaderName title-cases name the way "content-type" becomes
// "Content-Type", matching the wire form most servers emit. Unlike
// net/textproto's MIMEHeader, Headers never uses this as a map key — it is
// cosmetic only, used when writing the wire form and in String().
func CanonicalHeaderName(name string) string {
	buf := []byte(name)
	upper := true
	for i, c := range buf {
		switch {
		case upper && 'a' <= c && c <= 'z':
			buf[i] = c - ('a' - 'A')
		case !upper && 'A' <= c && c <= 'Z':
			buf[i] = c + ('a' - 'A')
		}
		upper = buf[i] == '-'
	}
	return string(buf)
}

type headerField struct {
	name  string // as supplied by the caller, canonicalized on Add/Set
	value string
}

// Headers is an ordered multimap of (name, value) pairs. Lookup is
// case-insensitive; iteration (Names, ForEach) preserves insertion order,
// per spec.md §3 "Headers".
type Headers struct {
	fields []headerField
}

// NewHeaders returns an empty, ready-to-use Headers.
func NewHeaders() *Headers {
	return &Headers{}
}

// Add appends a (name, value) pair, preserving any existing values for name.
func (h *Headers) Add(name, value string) *Headers {
	h.fields = append(h.fields, headerField{name: CanonicalHeaderName(name), value: value})
	return h
}

// Set replaces all existing values for name with a single value.
func (h *Headers) Set(name, value string) *Headers {
	h.RemoveAll(name)
	return h.Add(name, value)
}

// Get returns the first value for name, or "" if absent.
func (h *Headers) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// Values returns every value stored for name, in insertion order.
func (h *Headers) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// RemoveAll deletes every value stored for name.
func (h *Headers) RemoveAll(name string) *Headers {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
	return h
}

// Len returns the number of (name, value) pairs, counting repeats.
func (h *Headers) Len() int { return len(h.fields) }

// Name returns the name of the i'th pair in insertion order.
func (h *Headers) Name(i int) string { return h.fields[i].name }

// Value returns the value of the i'th pair in insertion order.
func (h *Headers) Value(i int) string { return h.fields[i].value }

// ForEach visits every (name, value) pair in insertion order.
func (h *Headers) ForEach(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.name, f.value)
	}
}

// Clone returns a deep copy safe for independent mutation.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return NewHeaders()
	}
	out := &Headers{fields: make([]headerField, len(h.fields))}
	copy(out.fields, h.fields)
	return out
}

// String renders the headers one per line, redacting sensitive values.
// Used by request/response String() and by the logging interceptor — never
// for the wire form, which codecs write directly from ForEach.
func (h *Headers) String() string {
	var b strings.Builder
	for _, f := range h.fields {
		b.WriteString(f.name)
		b.WriteString(": ")
		if sensitiveHeaders[strings.ToLower(f.name)] {
			b.WriteString("██")
		} else {
			b.WriteString(f.value)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
