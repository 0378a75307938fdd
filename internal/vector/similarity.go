package vector

import "sort"

// InnerProduct returns the inner product of two vectors of equal length.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// CosineDistance returns 1 - cosine similarity for unit-length vectors. The result is in [0, 2].
func CosineDistance(a, b []float32) float64 {
	d := 1 - InnerProduct(a, b)
	if d < 0 {
		return 0
	}
	return d
}

type scored struct {
	rec  *record
	dist float64
}

// closer orders by distance, then by insertion order.
func closer(a, b scored) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.rec.seq < b.rec.seq
}

func topK(candidates []scored, k int) []Hit {
	sort.Slice(candidates, func(i, j int) bool { return closer(candidates[i], candidates[j]) })
	if k > len(candidates) {
		k = len(candidates)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = candidates[i].rec.hit(candidates[i].dist)
	}
	return hits
}

// exactSearch scores every qualifying record.
func exactSearch(records []*record, q []float32, k int, filter Filter) []Hit {
	candidates := make([]scored, 0, len(records))
	for _, r := range records {
		if filter != nil && !filter(r.metadata) {
			continue
		}
		candidates = append(candidates, scored{rec: r, dist: CosineDistance(q, r.unit)})
	}
	return topK(candidates, k)
}
