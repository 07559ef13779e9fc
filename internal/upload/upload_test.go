package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DetectsTypes(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		filename string
		wantMime string
		wantKind Kind
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "dinner.jpg", "image/jpeg", KindImage},
		{"jpeg with .jpeg extension", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}, "dinner.jpeg", "image/jpeg", KindImage},
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "card.png", "image/png", KindImage},
		{"gif", []byte("GIF89a...."), "anim.gif", "image/gif", KindImage},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "photo.webp", "image/webp", KindImage},
		{"pdf", []byte("%PDF-1.7 rest"), "cookbook.pdf", "application/pdf", KindDocument},
		{"plain text", []byte("Grandma's stew\n1 lb beef"), "stew.txt", "text/plain", KindDocument},
		{"markdown", []byte("# Stew\n\n- beef"), "stew.md", "text/markdown", KindDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Validate(tt.content, tt.filename, DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, f.MimeType)
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.content, f.Content)
		})
	}
}

func TestValidate_DocxRequiresWordMarker(t *testing.T) {
	valid := append([]byte("PK\x03\x04............"), []byte("word/document.xml")...)
	f, err := Validate(valid, "recipe.docx", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, KindDocument, f.Kind)

	_, err = Validate([]byte("PK\x03\x04 just a zip"), "recipe.docx", DefaultLimits())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid DOCX")

	_, err = Validate([]byte("PK\x03\x04...."), "archive.pdf", DefaultLimits())
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		filename string
	}{
		{"empty file", nil, "empty.jpg"},
		{"missing filename", []byte{0xFF, 0xD8, 0xFF}, ""},
		{"unsupported extension", []byte("hello"), "notes.rtf"},
		{"extension mismatch", []byte{0xFF, 0xD8, 0xFF, 0x00}, "actually-jpeg.png"},
		{"no known signature", []byte{0x00, 0x01, 0x02, 0x03}, "junk.jpg"},
		{"invalid utf8 text", []byte{0xFF, 0xFE, 0x00}, "broken.txt"},
		{"bad webp container", []byte("RIFFxxxxNOPE"), "photo.webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.content, tt.filename, DefaultLimits())
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidate_SizeLimits(t *testing.T) {
	limits := Limits{MaxImageBytes: 16, MaxDocumentBytes: 32}

	big := append([]byte{0xFF, 0xD8, 0xFF}, make([]byte, 32)...)
	_, err := Validate(big, "big.jpg", limits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	small := []byte{0xFF, 0xD8, 0xFF, 0x00}
	_, err = Validate(small, "small.jpg", limits)
	assert.NoError(t, err)
}
