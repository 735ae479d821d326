package index

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"

	"github.com/54b3r/docqa-go/internal/rag"
)

// metaContentHash is the document metadata key holding the raw-bytes hash.
const metaContentHash = "content_sha256"

// Key identifies one document version for fingerprinting.
type Key struct {
	// DocumentID is the source path; it is cleaned before hashing.
	DocumentID string
	// ContentSHA256 is the hash of the raw source file.
	ContentSHA256 string
}

// Fingerprint returns the fingerprint of a document set. Documents without a
// content hash in their metadata are hashed by body.
func Fingerprint(docs []rag.Document) string {
	return FingerprintKeys(Keys(docs))
}

// Keys extracts the fingerprint keys of docs.
func Keys(docs []rag.Document) []Key {
	keys := make([]Key, len(docs))
	for i, d := range docs {
		h := d.Metadata[metaContentHash]
		if h == "" {
			sum := sha256.Sum256([]byte(d.Body))
			h = hex.EncodeToString(sum[:])
		}
		keys[i] = Key{DocumentID: d.ID, ContentSHA256: h}
	}
	return keys
}

// FingerprintKeys returns the SHA-256 over the sorted (document ID, content
// hash) pairs. The result does not depend on input order, and document IDs
// are compared as cleaned paths so "./data/a.md" and "data/a.md" agree.
func FingerprintKeys(keys []Key) string {
	sorted := make([]Key, len(keys))
	for i, k := range keys {
		sorted[i] = Key{DocumentID: filepath.ToSlash(filepath.Clean(k.DocumentID)), ContentSHA256: k.ContentSHA256}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DocumentID != sorted[j].DocumentID {
			return sorted[i].DocumentID < sorted[j].DocumentID
		}
		return sorted[i].ContentSHA256 < sorted[j].ContentSHA256
	})

	h := sha256.New()
	for _, k := range sorted {
		h.Write([]byte(k.DocumentID))
		h.Write([]byte{0})
		h.Write([]byte(k.ContentSHA256))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
