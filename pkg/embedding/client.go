package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Client maps texts to fixed-dimension vectors. One vector is returned per
// input text, in input order.
type Client interface {
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Error classifies an embedding failure. Retryable errors (timeouts, model
// unavailable) may be retried; permanent ones (malformed input) must not.
type Error struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("embedding: %s: %s error: %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is an embedding error worth retrying.
// Unclassified errors are treated as retryable.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the vectors differ in length or either has zero norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
