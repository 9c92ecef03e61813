// Package ids mints the opaque device/file tokens and the human-typeable
// session codes used throughout the hub (C1 in the design).
package ids

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// codeAlphabet excludes 0/O/1/I so a human reading a session code off a
// screen can always type it back unambiguously. 32 symbols, ~30 bits of
// entropy for a 6-character code.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// NewDeviceID mints an opaque, globally-fresh device id. A UUIDv4 gives a
// negligible collision probability for the lifetime of a connection.
func NewDeviceID() string {
	return uuid.New().String()
}

// NewFileID mints an opaque, globally-unique file id. Its textual encoding
// (uuid.String()) is exactly 36 characters, which is what lets it serve as a
// fixed-width ASCII prefix on binary data frames (§5/§6 of the wire format).
func NewFileID() string {
	return uuid.New().String()
}

// NewSessionCode draws codeLength characters from codeAlphabet using a
// cryptographically strong source. Uniqueness against other live sessions is
// the caller's (registry's) responsibility — it retries on collision.
func NewSessionCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read on the standard reader does not fail in practice;
		// degrade to a fixed filler rather than panic so a session can still
		// be minted and retried by the registry on collision.
		for i := range b {
			b[i] = 0
		}
	}
	var sb strings.Builder
	sb.Grow(codeLength)
	for _, v := range b {
		sb.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return sb.String()
}

// NormalizeCode upper-cases a user-supplied session code, since join_session
// lookups are case-insensitive (§4.2).
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
