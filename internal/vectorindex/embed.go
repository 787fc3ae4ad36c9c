package vectorindex

import (
	"fmt"
	"math"
	"time"

	"github.com/orbitx-dev/orbitx/internal/embedding"
	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// EmbedClient wraps an embedding.Embedder with spec.md §4.7's retry policy:
// up to 3 attempts with exponential backoff, except for fatal
// classifications (model-not-embedding, model-not-found, decrypt failure)
// which short-circuit immediately since retrying cannot succeed.
type EmbedClient struct {
	embedder   embedding.Embedder
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration)
}

// NewEmbedClient wraps embedder with the default retry policy.
func NewEmbedClient(embedder embedding.Embedder) *EmbedClient {
	return &EmbedClient{
		embedder:   embedder,
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
		sleep:      time.Sleep,
	}
}

// EmbedBatch embeds texts, normalizing every returned vector to unit length
// (spec.md §3's invariant that stored/query vectors are always L2-normalized).
func (c *EmbedClient) EmbedBatch(texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vecs, err := c.embedder.Embed(texts)
		if err == nil {
			for i := range vecs {
				normalize(vecs[i])
			}
			return vecs, nil
		}
		lastErr = err
		if isFatalEmbedError(err) {
			return nil, fmt.Errorf("vectorindex.EmbedClient.EmbedBatch: %w", err)
		}
		if attempt < c.maxRetries-1 {
			c.sleep(c.baseDelay << attempt)
		}
	}
	return nil, fmt.Errorf("vectorindex.EmbedClient.EmbedBatch: %d attempts: %w", c.maxRetries, lastErr)
}

// Dims reports the wrapped embedder's vector dimensionality.
func (c *EmbedClient) Dims() int { return c.embedder.Dims() }

// Name reports the wrapped embedder's cache key.
func (c *EmbedClient) Name() string { return c.embedder.Name() }

// isFatalEmbedError reports whether err belongs to spec.md §4.7's fatal
// set — conditions where a retry cannot possibly succeed.
func isFatalEmbedError(err error) bool {
	kind, ok := orbiterr.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case orbiterr.KindInvalidEmbeddingModel, orbiterr.KindModelNotFound, orbiterr.KindDecryptFailed:
		return true
	}
	return false
}

func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
