package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the SHA-256 hex digest of the normalized text. Two
// ingestions of textually identical content hash the same regardless of
// source (file, crawl, or direct text).
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether a re-ingestion carries unchanged content. The
// dedup decision is keyed per source identifier; callers compare hashes only
// within one identifier's record.
func IsDuplicate(existingHash, newHash string) bool {
	return existingHash != "" && existingHash == newHash
}
