package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// CosineDistance returns 1 - cos(a, b), clamped to [0, 2]. Zero vectors
// sit at distance 1.
func CosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch{Expected: len(a), Got: len(b)}
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return float32(min(max(d, 0), 2)), nil
}

// rankByCosine scores every candidate against query and keeps the k closest.
func rankByCosine(query []float32, ids []string, vecs [][]float32, k int) ([]*VectorResult, error) {
	results := make([]*VectorResult, 0, len(ids))
	for i, id := range ids {
		d, err := CosineDistance(query, vecs[i])
		if err != nil {
			return nil, err
		}
		results = append(results, &VectorResult{ID: id, Distance: d, Score: distanceToScore(d, "cos")})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
