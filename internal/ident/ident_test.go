package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromURL_Normalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Recipes", "https://example.com/Recipes"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps non-default port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"keeps root slash", "https://example.com", "https://example.com/"},
		{"root with slash unchanged", "https://example.com/", "https://example.com/"},
		{"drops fragment", "https://example.com/a#step-3", "https://example.com/a"},
		{"sorts query params", "https://example.com/a?z=1&b=2&a=3", "https://example.com/a?a=3&b=2&z=1"},
		{"trims whitespace", "  https://example.com/a  ", "https://example.com/a"},
		{"keeps ipv6 brackets when stripping default port", "https://[::1]:443/a", "https://[::1]/a"},
		{"keeps ipv6 brackets with non-default port", "https://[2001:db8::1]:8443/a", "https://[2001:db8::1]:8443/a"},
		{"ipv6 without port unchanged", "https://[::1]/a", "https://[::1]/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, CanonicalKey(tt.want), got)
		})
	}
}

func TestFromURL_EquivalentSpellingsCollapse(t *testing.T) {
	a, err := FromURL("https://Example.com/A/")
	require.NoError(t, err)
	b, err := FromURL("https://example.com/A")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFromURL_Rejects(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/a", "not a url at all ://", "/relative/path", "mailto:a@b.com"} {
		_, err := FromURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestFromBytes(t *testing.T) {
	k1 := FromBytes([]byte("flour, water, salt"))
	k2 := FromBytes([]byte("flour, water, salt"))
	k3 := FromBytes([]byte("flour, water, yeast"))

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.True(t, k1.IsUpload())
	assert.Contains(t, string(k1), "sha256:")
}

func TestHashContent_Deterministic(t *testing.T) {
	h1 := HashContent([]byte("<html>page</html>"))
	h2 := HashContent([]byte("<html>page</html>"))
	h3 := HashContent([]byte("<html>changed</html>"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestIsUpload(t *testing.T) {
	k, err := FromURL("https://example.com/a")
	require.NoError(t, err)
	assert.False(t, k.IsUpload())
}
