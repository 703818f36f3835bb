package pipeline

import "image"

// stabilizer suppresses frame-to-frame flicker with an exponential moving
// average over the quantized color layer:
//
//	state = (1-s)*frame + s*state
//
// s = 0 leaves frames independent; values near 1 adapt slowly. State is
// seeded with the first frame of a run and discarded with the stabilizer,
// so nothing leaks between videos.
type stabilizer struct {
	s     float64
	state []float32
}

func newStabilizer(s float64) *stabilizer {
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return &stabilizer{s: s}
}

func (t *stabilizer) blend(img *image.NRGBA) *image.NRGBA {
	if t.s == 0 {
		// Independent frames: bypass the float roundtrip so the output is
		// bit-identical to the input.
		return img
	}

	n := len(img.Pix)
	if t.state == nil {
		t.state = make([]float32, n)
		for i := 0; i < n; i++ {
			t.state[i] = float32(img.Pix[i])
		}
		return img
	}

	out := image.NewNRGBA(img.Rect)
	s := float32(t.s)
	for i := 0; i < n; i++ {
		v := (1-s)*float32(img.Pix[i]) + s*t.state[i]
		t.state[i] = v
		out.Pix[i] = uint8(v + 0.5)
	}
	return out
}
