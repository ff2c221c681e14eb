package core

import "io"

// BodySource produces the bytes of a request body. Restartable sources
// (e.g. a []byte or a file) can be read more than once, which
// RetryAndFollowUp relies on to safely retry a request after a transport
// failure (spec.md §4.1, §7).
type BodySource interface {
	// NewReader returns a fresh reader over the body content. Restartable
	// sources must support calling NewReader more than once; one-shot
	// sources (e.g. wrapping an io.Reader directly) return an error on the
	// second call.
	NewReader() (io.ReadCloser, error)

	// ContentLength returns the body length, or -1 if unknown (in which case
	// the HTTP/1 codec falls back to chunked framing).
	ContentLength() int64

	// Restartable reports whether NewReader can be called more than once.
	Restartable() bool

	// ContentType returns the declared MIME type, or "" if none.
	ContentType() string
}

// BytesBody is a Restartable BodySource backed by an in-memory byte slice.
type BytesBody struct {
	Data        []byte
	contentType string
}

// NewBytesBody wraps data as a restartable body source.
func NewBytesBody(contentType string, data []byte) *BytesBody {
	return &BytesBody{Data: data, contentType: contentType}
}

func (b *BytesBody) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(newByteReader(b.Data)), nil
}
func (b *BytesBody) ContentLength() int64 { return int64(len(b.Data)) }
func (b *BytesBody) Restartable() bool    { return true }
func (b *BytesBody) ContentType() string  { return b.contentType }

// OneShotBody adapts an io.ReadCloser that can only be consumed once, e.g. a
// streaming upload. Calling NewReader a second time returns an error, which
// RetryAndFollowUp must treat as "body not restartable" per spec.md §4.1.
type OneShotBody struct {
	r           io.ReadCloser
	used        bool
	length      int64
	contentType string
}

// NewOneShotBody wraps r, which must not be read from concurrently with
// other calls into the request.
func NewOneShotBody(contentType string, length int64, r io.ReadCloser) *OneShotBody {
	return &OneShotBody{r: r, length: length, contentType: contentType}
}

func (b *OneShotBody) NewReader() (io.ReadCloser, error) {
	if b.used {
		return nil, ErrBodyNotRestartable
	}
	b.used = true
	return b.r, nil
}
func (b *OneShotBody) ContentLength() int64 { return b.length }
func (b *OneShotBody) Restartable() bool    { return false }
func (b *OneShotBody) ContentType() string  { return b.contentType }

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// ResponseBody is the lazy, one-shot stream attached to a Response
// (spec.md §3 "body (lazy stream with known-or-unknown length and content
// type)"). Trailers become available only once the stream is fully drained,
// per spec.md §4.6.
type ResponseBody struct {
	Source        io.ReadCloser
	Length        int64 // -1 if unknown
	ContentType   string
	TrailerSource func() *Headers // nil until drained, or always nil if no trailers
}

func (b *ResponseBody) Read(p []byte) (int, error) { return b.Source.Read(p) }
func (b *ResponseBody) Close() error                { return b.Source.Close() }

// Trailers returns the trailers observed after the body was fully consumed,
// or nil if the body hasn't been drained or the exchange carried none.
func (b *ResponseBody) Trailers() *Headers {
	if b.TrailerSource == nil {
		return nil
	}
	return b.TrailerSource()
}
