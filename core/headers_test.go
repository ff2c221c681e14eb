package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersAddPreservesInsertionOrder(t *testing.T) {
	h := NewHeaders()
	h.Add("X-B", "2").Add("X-A", "1").Add("X-B", "3")

	var names []string
	var values []string
	h.ForEach(func(name, value string) {
		names = append(names, name)
		values = append(values, value)
	})

	assert.Equal(t, []string{"X-B", "X-A", "X-B"}, names)
	assert.Equal(t, []string{"2", "1", "3"}, values)
}

func TestHeadersGetIsCaseInsensitiveAndFirstWins(t *testing.T) {
	h := NewHeaders()
	h.Add("content-type", "text/plain").Add("Content-Type", "application/json")

	assert.Equal(t, "text/plain", h.Get("CONTENT-TYPE"))
	assert.Equal(t, []string{"text/plain", "application/json"}, h.Values("Content-Type"))
}

func TestHeadersSetReplacesAllExistingValues(t *testing.T) {
	h := NewHeaders()
	h.Add("Accept", "a").Add("Accept", "b")
	h.Set("Accept", "c")

	assert.Equal(t, []string{"c"}, h.Values("Accept"))
}

func TestHeadersRemoveAllLeavesOtherNamesIntact(t *testing.T) {
	h := NewHeaders()
	h.Add("X-A", "1").Add("X-B", "2").Add("X-A", "3")
	h.RemoveAll("X-A")

	assert.Empty(t, h.Values("X-A"))
	assert.Equal(t, []string{"2"}, h.Values("X-B"))
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	h := NewHeaders()
	h.Add("X-A", "1")
	clone := h.Clone()
	clone.Add("X-A", "2")

	assert.Equal(t, []string{"1"}, h.Values("X-A"))
	assert.Equal(t, []string{"1", "2"}, clone.Values("X-A"))
}

func TestHeadersCloneOfNilReturnsEmptyHeaders(t *testing.T) {
	var h *Headers
	clone := h.Clone()
	assert.NotNil(t, clone)
	assert.Equal(t, 0, clone.Len())
}

func TestHeadersStringRedactsSensitiveValues(t *testing.T) {
	h := NewHeaders()
	h.Add("Authorization", "Bearer secret").Add("Accept", "*/*")

	s := h.String()
	assert.Contains(t, s, "Authorization: ██")
	assert.Contains(t, s, "Accept: */*")
	assert.NotContains(t, s, "secret")
}

func TestCanonicalHeaderName(t *testing.T) {
	assert.Equal(t, "Content-Type", CanonicalHeaderName("content-type"))
	assert.Equal(t, "Etag", CanonicalHeaderName("ETAG"))
	assert.Equal(t, "X-Forwarded-For", CanonicalHeaderName("x-forwarded-for"))
}

func TestValidHeaderName(t *testing.T) {
	assert.True(t, ValidHeaderName("X-Custom-Header"))
	assert.False(t, ValidHeaderName(""))
	assert.False(t, ValidHeaderName("bad header"))
	assert.False(t, ValidHeaderName("bad:header"))
}

func TestValidHeaderValue(t *testing.T) {
	assert.True(t, ValidHeaderValue("plain value"))
	assert.True(t, ValidHeaderValue("value\twith tab"))
	assert.False(t, ValidHeaderValue("value\r\nwith crlf"))
	assert.False(t, ValidHeaderValue("value\x00with nul"))
}
