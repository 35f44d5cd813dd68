// Package checksum computes the hex-encoded SHA-1 digests the B2 API uses
// for upload integrity headers and download verification.
//
// The cryptographic primitive is injected at construction so alternative
// implementations (e.g. hardware-backed) can be swapped in; SHA1 is the
// package-level default used everywhere in this library.
package checksum

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"strings"
)

// HexLength is the length of a hex-encoded SHA-1 digest.
const HexLength = 40

// Hasher computes hex-encoded digests using an injected hash constructor.
type Hasher struct {
	newHash func() hash.Hash
}

// New returns a Hasher backed by the given hash constructor.
func New(newHash func() hash.Hash) Hasher {
	return Hasher{newHash: newHash}
}

// SHA1 is the default hasher used for B2 content integrity.
var SHA1 = New(sha1.New)

// Sum returns the hex-encoded digest of data.
func (h Hasher) Sum(data []byte) string {
	digest := h.newHash()
	digest.Write(data)
	return hex.EncodeToString(digest.Sum(nil))
}

// SumString returns the hex-encoded digest of the UTF-8 bytes of s.
func (h Hasher) SumString(s string) string {
	return h.Sum([]byte(s))
}

// SumReader consumes r and returns the hex-encoded digest of its contents.
func (h Hasher) SumReader(r io.Reader) (string, error) {
	digest := h.newHash()
	if _, err := io.Copy(digest, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// Verify reports whether the digest of data equals expected. Hex digits are
// compared case-insensitively.
func (h Hasher) Verify(data []byte, expected string) bool {
	return strings.EqualFold(h.Sum(data), expected)
}

// NewBuilder returns a streaming digest builder.
func (h Hasher) NewBuilder() *Builder {
	return &Builder{digest: h.newHash()}
}

// Builder accumulates chunks and produces a hex digest on demand.
type Builder struct {
	digest hash.Hash
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	return b.digest.Write(p)
}

// WriteString adds the UTF-8 bytes of s to the digest.
func (b *Builder) WriteString(s string) (int, error) {
	return b.digest.Write([]byte(s))
}

// SumHex returns the hex-encoded digest of everything written so far.
func (b *Builder) SumHex() string {
	return hex.EncodeToString(b.digest.Sum(nil))
}

// Sum returns the hex-encoded SHA-1 of data.
func Sum(data []byte) string {
	return SHA1.Sum(data)
}

// Verify reports whether the SHA-1 of data equals expected, ignoring hex case.
func Verify(data []byte, expected string) bool {
	return SHA1.Verify(data, expected)
}

// IsValidHex reports whether s looks like a hex-encoded SHA-1 digest.
func IsValidHex(s string) bool {
	if len(s) != HexLength {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
