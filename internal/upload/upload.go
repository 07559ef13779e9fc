// Package upload validates uploaded source files by magic bytes before they
// enter the extraction pipeline. Only the content hash of the bytes is
// persisted; the bytes themselves live for the duration of the request.
package upload

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind classifies a validated upload.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// File is a validated upload ready for identification and extraction.
type File struct {
	Content   []byte
	MimeType  string
	Extension string
	Kind      Kind
}

// ValidationError reports why an upload was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "upload: " + e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bounds upload sizes per kind.
type Limits struct {
	MaxImageBytes    int64
	MaxDocumentBytes int64
}

// DefaultLimits returns the standard size limits.
func DefaultLimits() Limits {
	return Limits{
		MaxImageBytes:    10 << 20,
		MaxDocumentBytes: 20 << 20,
	}
}

type signature struct {
	magic     []byte
	mimeType  string
	extension string
	kind      Kind
}

var signatures = []signature{
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg", ".jpg", KindImage},
	{[]byte("\x89PNG\r\n\x1a\n"), "image/png", ".png", KindImage},
	{[]byte("GIF87a"), "image/gif", ".gif", KindImage},
	{[]byte("GIF89a"), "image/gif", ".gif", KindImage},
	{[]byte("%PDF"), "application/pdf", ".pdf", KindDocument},
	// DOCX is a ZIP archive; checked further below.
	{[]byte("PK\x03\x04"), "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx", KindDocument},
}

var textExtensions = map[string]string{
	".txt": "text/plain",
	".md":  "text/markdown",
}

var allExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".docx": true, ".txt": true, ".md": true,
}

// Validate checks an upload's extension, magic bytes, and size. The detected
// content type must agree with the filename extension; a mismatch is
// rejected rather than trusted either way.
func Validate(content []byte, filename string, limits Limits) (*File, error) {
	if filename == "" {
		return nil, invalid("filename is required")
	}
	if len(content) == 0 {
		return nil, invalid("file is empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allExtensions[ext] {
		return nil, invalid("unsupported file extension %q", ext)
	}

	f, err := detect(content, ext, filename)
	if err != nil {
		return nil, err
	}

	maxBytes := limits.MaxDocumentBytes
	if f.Kind == KindImage {
		maxBytes = limits.MaxImageBytes
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, invalid("file size %.1fMB exceeds %dMB limit for %ss",
			float64(len(content))/(1<<20), maxBytes>>20, f.Kind)
	}
	return f, nil
}

func detect(content []byte, ext, filename string) (*File, error) {
	// Text files carry no magic bytes; require valid UTF-8 instead.
	if mime, ok := textExtensions[ext]; ok {
		if !utf8.Valid(content) {
			return nil, invalid("file %s is not valid UTF-8 text", filename)
		}
		return &File{Content: content, MimeType: mime, Extension: ext, Kind: KindDocument}, nil
	}

	// WEBP rides inside a RIFF container: "RIFF" then "WEBP" within the
	// first 12 bytes.
	if ext == ".webp" {
		if bytes.HasPrefix(content, []byte("RIFF")) && len(content) >= 12 && bytes.Contains(content[:12], []byte("WEBP")) {
			return &File{Content: content, MimeType: "image/webp", Extension: ext, Kind: KindImage}, nil
		}
		return nil, invalid("file content does not match .webp format")
	}

	for _, sig := range signatures {
		if !bytes.HasPrefix(content, sig.magic) {
			continue
		}
		if sig.extension == ".docx" {
			if ext != ".docx" {
				return nil, invalid("ZIP file detected but extension is %s, not .docx", ext)
			}
			head := content
			if len(head) > 10000 {
				head = head[:10000]
			}
			if !bytes.Contains(head, []byte("word/")) {
				return nil, invalid("file appears to be a ZIP archive but not a valid DOCX")
			}
			return &File{Content: content, MimeType: sig.mimeType, Extension: ext, Kind: sig.kind}, nil
		}

		if ext != sig.extension && !(sig.extension == ".jpg" && ext == ".jpeg") {
			return nil, invalid("file extension %s does not match detected content type %s", ext, sig.mimeType)
		}
		return &File{Content: content, MimeType: sig.mimeType, Extension: ext, Kind: sig.kind}, nil
	}

	return nil, invalid("could not verify file content for %s", filename)
}
