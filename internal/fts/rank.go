package fts

import (
	"encoding/binary"
	"fmt"

	"github.com/starford/zotindex/internal/apperr"
)

// Ranker scores FTS4 matchinfo buffers (default "pcx" format) with one
// weight per indexed column. A zero weight ignores the column.
type Ranker struct {
	weights []float64
}

// NewRanker returns a Ranker using weights in index column order.
func NewRanker(weights []float64) *Ranker {
	w := make([]float64, len(weights))
	copy(w, weights)
	return &Ranker{weights: w}
}

func (r *Ranker) weight(col int) float64 {
	if col < len(r.weights) {
		return r.weights[col]
	}
	return 0
}

// Score sums hits_this_row * weight / hits_all_rows over every
// phrase/column triple. Triples with no hits across the index contribute
// nothing. Buffers whose size does not match their header fail with
// apperr.ErrMalformedMatchInfo.
func (r *Ranker) Score(matchinfo []byte) (float64, error) {
	if len(matchinfo)%4 != 0 || len(matchinfo) < 8 {
		return 0, fmt.Errorf("fts: %d bytes: %w", len(matchinfo), apperr.ErrMalformedMatchInfo)
	}
	u32 := func(i int) uint32 {
		return binary.NativeEndian.Uint32(matchinfo[i*4:])
	}

	phrases, cols := u32(0), u32(1)
	words := uint64(len(matchinfo) / 4)
	if words != 2+3*uint64(phrases)*uint64(cols) {
		return 0, fmt.Errorf("fts: %d words for %d phrases x %d columns: %w",
			words, phrases, cols, apperr.ErrMalformedMatchInfo)
	}

	var score float64
	for i := 0; i < int(phrases)*int(cols); i++ {
		hitsRow, hitsAll := u32(2+3*i), u32(2+3*i+1)
		if hitsAll == 0 {
			continue
		}
		w := r.weight(i % int(cols))
		if w == 0 {
			continue
		}
		score += float64(hitsRow) * w / float64(hitsAll)
	}
	return score, nil
}
