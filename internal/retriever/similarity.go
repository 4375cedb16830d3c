package retriever

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length are compared on their common prefix, and an
// empty or zero-norm vector scores exactly 0.
func CosineSimilarity(a, b Vector) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scored pairs a document with its similarity to a query.
type Scored struct {
	Document *Document
	Score    float64
}

// Rank scores every document against query by brute force and returns the
// best k, highest score first. Equal scores keep newer documents first, then
// order by ID. Documents without an embedding, or whose score is NaN, are
// ignored.
func Rank(query Vector, docs []*Document, k int) []Scored {
	scored := make([]Scored, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(query, doc.Embedding)
		if math.IsNaN(score) {
			continue
		}
		scored = append(scored, Scored{Document: doc, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		a, b := scored[i].Document, scored[j].Document
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

// ParseVector decodes a stored embedding. It accepts a bare JSON array of
// numbers or an object wrapping one under "embedding". Empty input and JSON
// null decode to a nil vector.
func ParseVector(raw []byte) (Vector, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var values []float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVector, err)
		}
		vec := make(Vector, len(values))
		for i, v := range values {
			f := float32(v)
			if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
				return nil, fmt.Errorf("%w: element %d is not a finite float32", ErrInvalidVector, i)
			}
			vec[i] = f
		}
		return vec, nil

	case '{':
		var wrapped struct {
			Embedding json.RawMessage `json:"embedding"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVector, err)
		}
		inner := bytes.TrimSpace(wrapped.Embedding)
		if len(inner) == 0 || inner[0] != '[' {
			return nil, fmt.Errorf("%w: object has no embedding array", ErrInvalidVector)
		}
		return ParseVector(inner)

	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidVector, raw[0])
	}
}

// MarshalVector encodes v as a bare JSON array for storage.
func MarshalVector(v Vector) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// CollectionName maps a company identifier to its collection namespace.
func CollectionName(companyID string) string {
	if companyID != "" {
		return "company-" + companyID
	}
	return "global"
}
