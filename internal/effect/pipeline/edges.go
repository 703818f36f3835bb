package pipeline

import (
	"image"
	"math"

	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
)

// Edges are composited over the color layer as near-black outlines. The
// original look uses hard black; a hair above black keeps outlines from
// merging with crushed shadows.
var outlineColor = [3]uint8{8, 8, 8}

// edgeThreshold matches the binary threshold the rotoscoping look was tuned
// with: map values below it are not treated as outline material.
const edgeThreshold = 0.2

// dilateEdges widens the thresholded edge map by radius pixels with a square
// structuring element. radius 0 returns the thresholded map unchanged.
func dilateEdges(em *port.EdgeMap, radius int) *port.EdgeMap {
	out := &port.EdgeMap{Width: em.Width, Height: em.Height, V: make([]float32, len(em.V))}
	for y := 0; y < em.Height; y++ {
		for x := 0; x < em.Width; x++ {
			var max float32
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= em.Height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= em.Width {
						continue
					}
					if v := em.At(nx, ny); v > max {
						max = v
					}
				}
			}
			if max < edgeThreshold {
				max = 0
			}
			out.V[y*em.Width+x] = max
		}
	}
	return out
}

// compositeEdges blends the dilated edge map over img as outlines with
// per-pixel alpha = strength * edge value. strength 0 is a no-op and the
// edge stage is skipped entirely upstream.
func compositeEdges(img *image.NRGBA, em *port.EdgeMap, strength, thickness float64) *image.NRGBA {
	if strength <= 0 || em == nil {
		return img
	}
	dilated := dilateEdges(em, int(math.Round(thickness)))

	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := strength * float64(dilated.At(x, y))
			if a <= 0 {
				continue
			}
			if a > 1 {
				a = 1
			}
			o := out.Pix[(y*w+x)*4:]
			o[0] = uint8((1-a)*float64(o[0]) + a*float64(outlineColor[0]))
			o[1] = uint8((1-a)*float64(o[1]) + a*float64(outlineColor[1]))
			o[2] = uint8((1-a)*float64(o[2]) + a*float64(outlineColor[2]))
		}
	}
	return out
}
