// Package vectorindex defines the similarity index that stores the
// deduplicated documents of a collection together with their vectors.
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/embedcache"
)

// Errors returned by index implementations.
var (
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUnsupportedVersion = errors.New("unsupported index version")
	ErrClosed             = errors.New("index closed")
)

// Index is a per-collection vector index.
type Index interface {
	// Add inserts items. Items whose key is already indexed are ignored.
	Add(ctx context.Context, items []embedcache.Embedded) error

	// Search returns up to k documents ordered by descending cosine
	// similarity to query.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Missing returns the keys, in input order, that are not indexed.
	Missing(ctx context.Context, keys []cachekey.Key) ([]cachekey.Key, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the vector dimensionality, or 0 for an empty
	// index without a configured dimension.
	Dimensions() int

	// Drop deletes every document of the collection.
	Drop(ctx context.Context) error

	// Close releases resources held by the index.
	Close() error
}

// Result is a document found by similarity search.
type Result struct {
	Key        cachekey.Key      `json:"key"`
	Document   document.Document `json:"document"`
	Similarity float32           `json:"similarity"`
}

// Collection summarizes one indexed collection.
type Collection struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

// NewCollection builds a Collection with its display name.
func NewCollection(namespace string, count int) Collection {
	return Collection{Namespace: namespace, Name: cachekey.DisplayName(namespace), Count: count}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// SortResults orders results by similarity, highest first, keeping the
// relative order of ties, and truncates to k when k > 0.
func SortResults(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
