// Package ident computes canonical identities for extraction sources.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// CanonicalKey is the normalized identity of a source: a normalized URL for
// web sources, "sha256:<hex>" for uploaded bytes.
type CanonicalKey string

// defaultPorts maps schemes to the port that normalization strips.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// FromURL normalizes a URL so trivially different spellings of the same
// resource collapse to one key: scheme and host are case-folded, default
// ports and fragments are dropped, a trailing slash on a non-root path is
// removed, and query parameters are re-encoded in sorted order.
func FromURL(raw string) (CanonicalKey, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", eris.Wrapf(err, "ident: parse url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("ident: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.Errorf("ident: url missing host: %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); port != "" && port == defaultPorts[u.Scheme] {
		host := u.Hostname()
		// Hostname strips the brackets from IPv6 literals; restore them.
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		u.Host = host
	}

	u.Fragment = ""
	u.User = nil

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		u.RawQuery = sortQuery(u.RawQuery)
	}

	return CanonicalKey(u.String()), nil
}

// FromBytes hashes uploaded content. Identical uploads always collapse to
// the same key regardless of filename.
func FromBytes(content []byte) CanonicalKey {
	sum := sha256.Sum256(content)
	return CanonicalKey("sha256:" + hex.EncodeToString(sum[:]))
}

// HashContent returns the bare SHA-256 hex digest of content, used as the
// input content hash on parse results for staleness detection.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsUpload reports whether the key identifies uploaded bytes rather than a
// fetchable URL.
func (k CanonicalKey) IsUpload() bool {
	return strings.HasPrefix(string(k), "sha256:")
}

func sortQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable query strings are kept verbatim; they still produce a
		// deterministic key.
		return rawQuery
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
