package model

import "time"

// Method identifies how a recipe was extracted. The set is closed: adding a
// method means adding an extractor, not a plugin.
type Method string

const (
	MethodDeterministic Method = "deterministic"
	MethodAI            Method = "ai"
)

// Valid reports whether m is a known extraction method.
func (m Method) Valid() bool {
	return m == MethodDeterministic || m == MethodAI
}

// SourceKind distinguishes fetchable URLs from one-shot uploads.
type SourceKind string

const (
	SourceKindURL    SourceKind = "url"
	SourceKindUpload SourceKind = "upload"
)

// SourceRecord is a registered extraction source, deduplicated by canonical
// key. Created at most once per key; never deleted while parse results or
// forks reference it.
type SourceRecord struct {
	ID           string     `json:"id"`
	CanonicalKey string     `json:"canonical_key"`
	Kind         SourceKind `json:"kind"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// Replayable reports whether the source can be re-fetched for re-extraction.
// Upload sources keep only the content hash, so they cannot be replayed.
func (s SourceRecord) Replayable() bool {
	return s.Kind == SourceKindURL
}

// ParseResult is one extraction attempt for a (source, method) pair.
// Rows are append-only: re-extraction inserts a new row, never mutates.
type ParseResult struct {
	ID               string    `json:"id"`
	SourceID         string    `json:"source_id"`
	Method           Method    `json:"method"`
	Payload          *Recipe   `json:"payload,omitempty"`
	InputContentHash string    `json:"input_content_hash,omitempty"`
	Success          bool      `json:"success"`
	ErrorDetail      string    `json:"error_detail,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Stale reports whether the cached result no longer matches the current
// source content. An empty recorded hash is treated as stale since there is
// nothing to compare against.
func (p *ParseResult) Stale(currentHash string) bool {
	if p == nil || p.InputContentHash == "" {
		return true
	}
	return p.InputContentHash != currentHash
}

// ExtractOutcome is the pipeline's answer to an extraction request.
type ExtractOutcome struct {
	Result *ParseResult `json:"result"`
	Source SourceRecord `json:"source"`

	// FromCache is true when no backend ran for this request.
	FromCache bool `json:"from_cache"`

	// ContentChanged is set when a prior cached result existed and the
	// freshly fetched content hash differs from its recorded hash. Nil when
	// there was nothing to compare.
	ContentChanged *bool `json:"content_changed,omitempty"`
}
