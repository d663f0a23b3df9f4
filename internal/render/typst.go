package render

import (
	"crypto/sha256"
	"encoding/hex"
)

// TypstPayload describes a rendering request for a future typst
// backend. Only the document source is carried; layout lives in the
// document itself.
//
// No executor exists for this payload yet; it pins down the queue and
// worker staying generic over payload kinds.
type TypstPayload struct {
	Content string `json:"content"`
}

// Identity derives a stable deduplication key from the document source.
func (p *TypstPayload) Identity() string {
	sum := sha256.Sum256([]byte(p.Content))
	return hex.EncodeToString(sum[:16])
}
