package qrcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProducesDataURL(t *testing.T) {
	result, err := Generate(3000, "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.QRCode, "data:image/png;base64,"))
	require.Contains(t, result.URL, ":3000")
	require.NotContains(t, result.URL, "?session=")
}

func TestGenerateScopesURLToSession(t *testing.T) {
	result, err := Generate(3000, "ABC234")
	require.NoError(t, err)
	require.Contains(t, result.URL, "?session=ABC234")
}
