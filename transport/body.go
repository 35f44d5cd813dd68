package transport

import (
	"bytes"
	"io"
	"net/url"
	"strings"
)

// Large byte bodies are streamed in fixed-size chunks instead of being handed
// to the HTTP layer as one contiguous buffer.
const (
	largeBodyThreshold = 10 * 1024 * 1024
	streamChunkSize    = 64 * 1024
)

// BodyKind tags the variant held by a Body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyBytes
	BodyJSON
	BodyStream
	BodyForm
)

// Body is the tagged variant of request payloads: text, raw bytes, a value to
// be JSON-encoded, a byte stream with optional declared length, or form
// pairs. Construct one with the *Body functions; the zero value means no
// body.
type Body struct {
	kind   BodyKind
	text   string
	data   []byte
	value  interface{}
	reader io.Reader
	length int64
}

// TextBody sends s verbatim.
func TextBody(s string) *Body {
	return &Body{kind: BodyText, text: s}
}

// BytesBody sends data as-is. Buffers larger than 10 MiB are adapted to a
// chunked stream at dispatch time.
func BytesBody(data []byte) *Body {
	return &Body{kind: BodyBytes, data: data}
}

// JSONBody encodes value as JSON; Content-Type defaults to application/json
// unless the caller set one.
func JSONBody(value interface{}) *Body {
	return &Body{kind: BodyJSON, value: value}
}

// StreamBody sends from r. length declares the byte count, or 0 when unknown.
func StreamBody(r io.Reader, length int64) *Body {
	return &Body{kind: BodyStream, reader: r, length: length}
}

// FormBody sends values URL-encoded.
func FormBody(values url.Values) *Body {
	return &Body{kind: BodyForm, value: values}
}

// Kind returns the variant tag.
func (b *Body) Kind() BodyKind {
	if b == nil {
		return BodyNone
	}
	return b.kind
}

// Size returns the progress total for the body: the byte length where it is
// knowable, 0 (unknown) for form payloads and undeclared streams.
func (b *Body) Size() int64 {
	if b == nil {
		return 0
	}
	switch b.kind {
	case BodyText:
		return int64(len(b.text))
	case BodyBytes:
		return int64(len(b.data))
	case BodyStream:
		return b.length
	default:
		return 0
	}
}

// reader returns the byte stream for the body and its content length
// (-1 when unknown). encoded is the pre-rendered payload for JSON and form
// bodies, produced at dispatch time.
func (b *Body) bodyReader(encoded []byte) (io.Reader, int64) {
	switch b.kind {
	case BodyText:
		return strings.NewReader(b.text), int64(len(b.text))
	case BodyBytes:
		if len(b.data) > largeBodyThreshold {
			// Memory cap: pump the buffer through in 64 KiB chunks.
			return newChunkedReader(bytes.NewReader(b.data), streamChunkSize), int64(len(b.data))
		}
		return bytes.NewReader(b.data), int64(len(b.data))
	case BodyJSON, BodyForm:
		return bytes.NewReader(encoded), int64(len(encoded))
	case BodyStream:
		if b.length > 0 {
			return b.reader, b.length
		}
		return b.reader, -1
	default:
		return nil, 0
	}
}

// chunkedReader caps every Read at a fixed chunk size so large buffers are
// never moved in a single frame.
type chunkedReader struct {
	r     io.Reader
	chunk int
}

func newChunkedReader(r io.Reader, chunk int) *chunkedReader {
	return &chunkedReader{r: r, chunk: chunk}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	return c.r.Read(p)
}
