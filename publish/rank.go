// Package publish turns enriched documents into a dated digest: HackerNews
// entries by score, arXiv papers by novelty against the batch they arrived
// in, written to disk and optionally uploaded to S3-compatible storage.
package publish

import (
	"context"
	"sort"

	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/gateway"
)

// Ranked is a document with its novelty score.
type Ranked struct {
	*gateway.Document
	Novelty float64
}

// Distancer measures cosine distances from a query vector to documents.
// *gateway.DocumentGateway computes them in SQL with sqlite-vec.
type Distancer interface {
	CosineDistances(ctx context.Context, vector []float32, docs []*gateway.Document) (map[string]float64, error)
}

// Centroid returns the component-wise mean of vectors, or nil when there
// are none. Vectors of a different length than the first are ignored.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

// RankByNovelty orders docs by cosine distance from their centroid, most
// novel first, and keeps the top k. k <= 0 keeps all. Ties keep input
// order. Documents the distancer does not score count as distance 1.
func RankByNovelty(ctx context.Context, distancer Distancer, docs []*gateway.Document, k int) ([]Ranked, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		vectors[i] = d.Vector
	}

	dist, err := distancer.CosineDistances(ctx, Centroid(vectors), docs)
	if err != nil {
		return nil, errors.Wrap(err, "rank by novelty")
	}

	ranked := make([]Ranked, len(docs))
	for i, d := range docs {
		novelty, ok := dist[d.ID]
		if !ok {
			novelty = 1
		}
		ranked[i] = Ranked{Document: d, Novelty: novelty}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Novelty > ranked[j].Novelty
	})

	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}
