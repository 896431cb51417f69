// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// NormalizeQuery canonicalizes query text for cache keying: trimmed and
// lowercased, so "  What is GDPR?  " and "what is gdpr?" key identically.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// CacheKey derives the deterministic exact-cache key for a query.
// The key covers everything that changes the response shape: the
// normalized query text, topK, and the response mode.
func CacheKey(query string, topK int, mode string) string {
	material := fmt.Sprintf("%s|%d|%s", NormalizeQuery(query), topK, mode)
	return SHA256String(material)
}

// DocumentID generates a deterministic document ID from a tenant namespace
// and content hash.
func DocumentID(namespace, contentHash string) string {
	return SHA256Short([]byte(namespace+":"+contentHash), 16)
}
