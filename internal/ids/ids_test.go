package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFileIDIsExactly36Bytes(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewFileID()
		require.Len(t, id, 36, "file id must be exactly 36 bytes to serve as a fixed-width frame prefix")
	}
}

func TestNewDeviceIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewDeviceID()
		require.False(t, seen[id], "device id collision")
		seen[id] = true
	}
}

func TestNewSessionCodeAlphabetAndLength(t *testing.T) {
	for i := 0; i < 500; i++ {
		code := NewSessionCode()
		require.Len(t, code, codeLength)
		for _, c := range code {
			require.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected rune %q in session code", c)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "ABC123", NormalizeCode(" abc123 "))
	require.Equal(t, "ABC123", NormalizeCode("ABC123"))
}
