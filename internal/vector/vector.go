// Package vector provides fixed-size vector math for the semantic
// decision pipeline. All similarity math operates on float32 to match
// the persisted anchor payload layout.
package vector

import "math"

// SlotDim is the dimensionality of one semantic slot vector.
const SlotDim = 32

// IntentDim is the dimensionality of a full intent vector (4 slots).
const IntentDim = 4 * SlotDim

// MaxAnchors is the per-slice anchor row cap in a rule vector.
const MaxAnchors = 16

// Slot is one 32-dimensional slot vector.
type Slot [SlotDim]float32

// Intent is a 128-dimensional intent vector: the four slot vectors
// concatenated in fixed order (action, resource, data, risk).
type Intent [IntentDim]float32

// AnchorMatrix holds the encoded anchors of one slice, zero-padded
// beyond the declared count.
type AnchorMatrix [MaxAnchors]Slot

// Slot extracts slot vector i (0..3) from an intent vector.
func (v *Intent) Slot(i int) Slot {
	var s Slot
	copy(s[:], v[i*SlotDim:(i+1)*SlotDim])
	return s
}

// Dot returns the dot product of two slot vectors.
func Dot(a, b Slot) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// DotIntent returns the dot product of two intent vectors. For
// per-slot-normalised vectors this equals the sum of slot cosines.
func DotIntent(a, b Intent) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of a slot vector.
func Norm(a Slot) float32 {
	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Normalize scales a slot vector to unit L2 norm in place.
// A zero vector stays zero.
func Normalize(a *Slot) {
	n := Norm(*a)
	if n == 0 {
		return
	}
	for i := range a {
		a[i] /= n
	}
}

// Cosine returns the cosine similarity of two slot vectors, clamped to
// [-1, 1]. Vectors with near-zero norm yield 0, never NaN.
func Cosine(a, b Slot) float32 {
	const eps = 1e-8
	na, nb := Norm(a), Norm(b)
	if na < eps || nb < eps {
		return 0
	}
	sim := Dot(a, b) / (na * nb)
	if math.IsNaN(float64(sim)) {
		return 0
	}
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// MaxAnchorSimilarity returns the maximum cosine similarity between a
// slot vector and the first count rows of an anchor matrix. An empty
// anchor set is a wildcard and always scores 1. Negative cosines floor
// at 0 so slice similarities stay in [0, 1].
func MaxAnchorSimilarity(slot Slot, anchors *AnchorMatrix, count int) float32 {
	if count <= 0 {
		return 1
	}
	if count > MaxAnchors {
		count = MaxAnchors
	}
	var best float32
	for i := 0; i < count; i++ {
		if sim := Cosine(slot, anchors[i]); sim > best {
			best = sim
		}
	}
	return best
}
