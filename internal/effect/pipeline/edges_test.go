package pipeline

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
)

func edgeMapWithPoint(w, h, x, y int, v float32) *port.EdgeMap {
	em := &port.EdgeMap{Width: w, Height: h, V: make([]float32, w*h)}
	em.V[y*w+x] = v
	return em
}

func TestDilateEdgesWidensOutline(t *testing.T) {
	em := edgeMapWithPoint(9, 9, 4, 4, 1.0)

	out := dilateEdges(em, 1)

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			assert.Equal(t, float32(1.0), out.At(4+dx, 4+dy))
		}
	}
	assert.Equal(t, float32(0), out.At(4, 2))
	assert.Equal(t, float32(0), out.At(0, 0))
}

func TestDilateEdgesDropsWeakResponses(t *testing.T) {
	em := edgeMapWithPoint(5, 5, 2, 2, 0.1) // below threshold

	out := dilateEdges(em, 1)
	for _, v := range out.V {
		assert.Equal(t, float32(0), v)
	}
}

func TestDilateEdgesZeroRadius(t *testing.T) {
	em := edgeMapWithPoint(5, 5, 2, 2, 0.9)

	out := dilateEdges(em, 0)
	assert.Equal(t, float32(0.9), out.At(2, 2))
	assert.Equal(t, float32(0), out.At(1, 2))
}

func TestCompositeEdgesDrawsOutline(t *testing.T) {
	img := solidFrame(5, 5, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	em := edgeMapWithPoint(5, 5, 2, 2, 1.0)

	out := compositeEdges(img, em, 1.0, 0)

	// full-strength edge pixel takes the outline color
	got := out.NRGBAAt(2, 2)
	assert.Equal(t, outlineColor[0], got.R)
	assert.Equal(t, outlineColor[1], got.G)
	assert.Equal(t, outlineColor[2], got.B)

	// untouched pixels keep the base color
	assert.Equal(t, uint8(200), out.NRGBAAt(0, 0).R)

	// the input frame is not mutated
	assert.Equal(t, uint8(200), img.NRGBAAt(2, 2).R)
}

func TestCompositeEdgesPartialAlpha(t *testing.T) {
	img := solidFrame(3, 3, color.NRGBA{R: 208, G: 208, B: 208, A: 255})
	em := edgeMapWithPoint(3, 3, 1, 1, 1.0)

	out := compositeEdges(img, em, 0.5, 0)

	// 0.5*208 + 0.5*8 = 108
	assert.Equal(t, uint8(108), out.NRGBAAt(1, 1).R)
}

func TestCompositeEdgesNoOpCases(t *testing.T) {
	img := solidFrame(4, 4, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	em := edgeMapWithPoint(4, 4, 1, 1, 1.0)

	assert.Same(t, img, compositeEdges(img, em, 0, 2))
	assert.Same(t, img, compositeEdges(img, nil, 0.8, 2))
}
