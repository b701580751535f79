package knowledge

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"regexp"
	"strings"
)

// Dimensions of the hash embedding. Matches the width of common hosted
// embedding models so stored vectors stay compatible.
const Dimensions = 1536

var tokenRe = regexp.MustCompile(`[a-z0-9_]{2,}`)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(text string) []float32
}

// HashEmbedder is a deterministic bag-of-tokens embedding: every token is
// hashed into one signed bucket and the vector is L2-normalized.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder creates a HashEmbedder with Dimensions buckets.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: Dimensions}
}

// Embed implements Embedder. Text with no tokens yields a zero vector.
func (h *HashEmbedder) Embed(text string) []float32 {
	dim := h.Dim
	if dim <= 0 {
		dim = Dimensions
	}
	acc := make([]float64, dim)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		sum := sha256.Sum256([]byte(tok))
		idx := int(binary.BigEndian.Uint16(sum[:2])) % dim
		if sum[2]%2 == 0 {
			acc[idx]++
		} else {
			acc[idx]--
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	if norm == 0 {
		return out
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}
