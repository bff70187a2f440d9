package vector

import (
	"math"
	"testing"
)

func TestNormalizeUnitNorm(t *testing.T) {
	t.Parallel()

	var s Slot
	for i := range s {
		s[i] = float32(i + 1)
	}
	Normalize(&s)

	if n := Norm(s); math.Abs(float64(n)-1.0) > 1e-6 {
		t.Errorf("Norm after Normalize = %v, want 1.0", n)
	}
}

func TestNormalizeZeroStaysZero(t *testing.T) {
	t.Parallel()

	var s Slot
	Normalize(&s)

	for i, x := range s {
		if x != 0 {
			t.Fatalf("component %d = %v, want 0", i, x)
		}
	}
}

func TestCosineIdentical(t *testing.T) {
	t.Parallel()

	var s Slot
	for i := range s {
		s[i] = 0.5
	}
	if sim := Cosine(s, s); math.Abs(float64(sim)-1.0) > 1e-5 {
		t.Errorf("Cosine(s, s) = %v, want ~1.0", sim)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	t.Parallel()

	var a, b Slot
	for i := 0; i < 16; i++ {
		a[i] = 1
		b[16+i] = 1
	}
	if sim := Cosine(a, b); math.Abs(float64(sim)) > 1e-6 {
		t.Errorf("Cosine orthogonal = %v, want 0", sim)
	}
}

func TestCosineZeroNormGuard(t *testing.T) {
	t.Parallel()

	var zero, one Slot
	for i := range one {
		one[i] = 1
	}
	if sim := Cosine(zero, one); sim != 0 {
		t.Errorf("Cosine with zero vector = %v, want 0", sim)
	}
}

func TestMaxAnchorSimilarityPicksBest(t *testing.T) {
	t.Parallel()

	var intent Slot
	intent[0] = 1

	var anchors AnchorMatrix
	anchors[0][1] = 1 // orthogonal
	anchors[1][0] = 1 // identical
	anchors[2][2] = 1 // orthogonal

	sim := MaxAnchorSimilarity(intent, &anchors, 3)
	if math.Abs(float64(sim)-1.0) > 1e-6 {
		t.Errorf("MaxAnchorSimilarity = %v, want ~1.0", sim)
	}
}

func TestMaxAnchorSimilarityEmptyIsWildcard(t *testing.T) {
	t.Parallel()

	var intent Slot
	intent[0] = 1
	var anchors AnchorMatrix

	if sim := MaxAnchorSimilarity(intent, &anchors, 0); sim != 1 {
		t.Errorf("empty anchor set similarity = %v, want 1 (wildcard)", sim)
	}
}

func TestMaxAnchorSimilarityIgnoresPaddingRows(t *testing.T) {
	t.Parallel()

	var intent Slot
	intent[0] = 1

	var anchors AnchorMatrix
	anchors[0][5] = 1
	// Row 1 would match perfectly but is beyond the declared count.
	anchors[1][0] = 1

	sim := MaxAnchorSimilarity(intent, &anchors, 1)
	if sim > 0.01 {
		t.Errorf("similarity = %v, want ~0 (padding row must be excluded)", sim)
	}
}

func TestMaxAnchorSimilarityMonotoneUnderAddedAnchor(t *testing.T) {
	t.Parallel()

	var intent Slot
	intent[0] = 0.8
	intent[3] = 0.6

	var anchors AnchorMatrix
	anchors[0][7] = 1

	before := MaxAnchorSimilarity(intent, &anchors, 1)
	anchors[1][0] = 1
	after := MaxAnchorSimilarity(intent, &anchors, 2)

	if after < before {
		t.Errorf("adding an anchor decreased similarity: %v -> %v", before, after)
	}
}

func TestIntentSlotExtraction(t *testing.T) {
	t.Parallel()

	var v Intent
	for i := range v {
		v[i] = float32(i)
	}

	for slot := 0; slot < 4; slot++ {
		s := v.Slot(slot)
		for i := range s {
			want := float32(slot*SlotDim + i)
			if s[i] != want {
				t.Fatalf("slot %d component %d = %v, want %v", slot, i, s[i], want)
			}
		}
	}
}
