package encoder

import (
	"math"
	"math/rand"

	"github.com/Intent-Gate/Intentgate/internal/vector"
)

// Fixed projection seeds, one per semantic slot. Changing a seed
// invalidates every stored anchor payload.
var slotSeeds = [4]int64{42, 43, 44, 45}

// projectionMatrix is one slot's 32x384 sparse random projection.
type projectionMatrix [vector.SlotDim][EmbedDim]float32

// newProjectionMatrix draws entries from {+sqrt(s), 0, -sqrt(s)} with
// probabilities {1/2s, 1-1/s, 1/2s} at s = 3, seeded deterministically
// so encodings reproduce across runs and hosts. Row-major draw order
// is part of the encoding contract.
func newProjectionMatrix(seed int64) *projectionMatrix {
	rng := rand.New(rand.NewSource(seed))
	scale := float32(math.Sqrt(3))

	var m projectionMatrix
	for i := 0; i < vector.SlotDim; i++ {
		for j := 0; j < EmbedDim; j++ {
			switch draw := rng.Float64(); {
			case draw < 1.0/6.0:
				m[i][j] = scale
			case draw < 2.0/6.0:
				m[i][j] = -scale
			}
		}
	}
	return &m
}

// projections holds the four slot matrices, created once per process.
type projections [4]*projectionMatrix

func newProjections() *projections {
	var p projections
	for slot, seed := range slotSeeds {
		p[slot] = newProjectionMatrix(seed)
	}
	return &p
}

// project maps a 384-d embedding into the slot's 32-d space and
// L2-normalises it. A zero projection stays zero.
func (p *projections) project(slot int, embedding []float32) vector.Slot {
	m := p[slot]
	var out vector.Slot
	for i := 0; i < vector.SlotDim; i++ {
		var sum float32
		row := &m[i]
		for j := 0; j < EmbedDim; j++ {
			if row[j] != 0 {
				sum += row[j] * embedding[j]
			}
		}
		out[i] = sum
	}
	vector.Normalize(&out)
	return out
}
