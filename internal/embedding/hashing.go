// Package embedding ships the gateway's default Embedding Service and ANN
// Index collaborators (§4.A): a deterministic hashing embedder and an
// in-memory brute-force nearest-centroid index. Neither claims semantic
// meaning — they exist so the pipeline runs standalone without a real
// embedding microservice or vector database, and are swappable behind
// pkg/contracts.
package embedding

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultDimensions is the fixed vector length the hashing embedder
// produces, matching the nominal D from §3.
const DefaultDimensions = 384

// HashingEmbedder is a stable, cheap, no-network embedder: each output
// dimension is derived from an FNV hash of the text salted by the
// dimension index, folded into [-1, 1]. It is good enough to drive cluster
// assignment and cache-key semantics, not claimed to be semantically
// meaningful.
type HashingEmbedder struct {
	dims int

	mu    sync.Mutex
	cache *lruCache
}

// NewHashingEmbedder creates an embedder with the default dimensionality
// and an LRU cache of the given capacity (per §4.A, capacity >= 1000).
func NewHashingEmbedder(cacheCapacity int) *HashingEmbedder {
	if cacheCapacity < 1 {
		cacheCapacity = 1000
	}
	return &HashingEmbedder{
		dims:  DefaultDimensions,
		cache: newLRUCache(cacheCapacity),
	}
}

func (e *HashingEmbedder) Dimensions() int { return e.dims }

// Embed returns one vector per input text, consulting the content-hash
// keyed LRU cache before computing.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		key := contentHash(t)

		e.mu.Lock()
		if v, ok := e.cache.get(key); ok {
			e.mu.Unlock()
			out[i] = v
			continue
		}
		e.mu.Unlock()

		v := hashEmbed(t, e.dims)

		e.mu.Lock()
		e.cache.put(key, v)
		e.mu.Unlock()

		out[i] = v
	}
	return out, nil
}

func contentHash(text string) string {
	h := fnv.New128a()
	h.Write([]byte(text))
	return string(h.Sum(nil))
}

// hashEmbed derives one float per dimension from FNV-1a hashes of the text
// salted by the dimension index, folded into [-1, 1].
func hashEmbed(text string, dims int) []float64 {
	v := make([]float64, dims)
	buf := make([]byte, 8)
	for d := 0; d < dims; d++ {
		h := fnv.New64a()
		h.Write([]byte(text))
		binary.LittleEndian.PutUint64(buf, uint64(d))
		h.Write(buf)
		sum := h.Sum64()
		// Fold the 64-bit hash into [-1, 1].
		v[d] = (float64(sum%2000001) / 1000000.0) - 1.0
	}
	return v
}

// lruCache is a small fixed-capacity least-recently-used cache keyed by
// content hash. Not safe for concurrent use on its own; HashingEmbedder
// guards it with a mutex.
type lruCache struct {
	capacity int
	order    []string
	values   map[string][]float64
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		values:   make(map[string][]float64, capacity),
	}
}

func (c *lruCache) get(key string) ([]float64, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	c.touch(key)
	return v, true
}

func (c *lruCache) put(key string, v []float64) {
	if _, exists := c.values[key]; !exists && len(c.values) >= c.capacity {
		c.evictOldest()
	}
	c.values[key] = v
	c.touch(key)
}

func (c *lruCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

func (c *lruCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.values, oldest)
	log.Debug().Msg("embedding cache evicted oldest entry")
}
