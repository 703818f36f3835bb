package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: uint8(((x + y) * 255) / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func solidFrame(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func distinctColors(img *image.NRGBA) int {
	seen := map[[3]uint8]bool{}
	n := img.Rect.Dx() * img.Rect.Dy()
	for i := 0; i < n; i++ {
		p := img.Pix[i*4:]
		seen[[3]uint8{p[0], p[1], p[2]}] = true
	}
	return len(seen)
}

func TestQuantizeRespectsColorBudget(t *testing.T) {
	img := testFrame(64, 48)

	for _, method := range []string{MethodKMeans, MethodBilateral, MethodPosterize} {
		for _, numColors := range []int{2, 3, 8, 16} {
			t.Run(fmt.Sprintf("%s_%d", method, numColors), func(t *testing.T) {
				out := quantize(img, method, numColors, 0)
				require.Equal(t, img.Rect, out.Rect)
				assert.LessOrEqual(t, distinctColors(out), numColors)
			})
		}
	}
}

func TestQuantizeSolidFrame(t *testing.T) {
	img := solidFrame(32, 32, color.NRGBA{R: 120, G: 80, B: 40, A: 255})

	for _, method := range []string{MethodKMeans, MethodBilateral, MethodPosterize} {
		t.Run(method, func(t *testing.T) {
			out := quantize(img, method, 8, 0)
			assert.LessOrEqual(t, distinctColors(out), 8)
		})
	}
}

func TestQuantizeTwoColorsSharedAcrossMethods(t *testing.T) {
	img := testFrame(32, 32)

	km := quantize(img, MethodKMeans, 2, 0)
	bi := quantize(img, MethodBilateral, 2, 0)
	po := quantize(img, MethodPosterize, 2, 0)

	// below three colors all methods route through the same two-tone
	// split, so kmeans and posterize agree exactly; bilateral differs
	// only by its pre-smoothing pass, disabled here
	assert.Equal(t, km.Pix, po.Pix)
	assert.Equal(t, km.Pix, bi.Pix)
	assert.LessOrEqual(t, distinctColors(km), 2)
}

func TestQuantizeRaisesTinyColorCount(t *testing.T) {
	img := testFrame(16, 16)
	out := quantize(img, MethodPosterize, 1, 0)
	assert.LessOrEqual(t, distinctColors(out), 2)
}

func TestQuantizeDeterministic(t *testing.T) {
	img := testFrame(48, 36)

	for _, method := range []string{MethodKMeans, MethodBilateral, MethodPosterize} {
		t.Run(method, func(t *testing.T) {
			a := quantize(img, method, 6, 0.4)
			b := quantize(img, method, 6, 0.4)
			assert.Equal(t, a.Pix, b.Pix)
		})
	}
}

func TestQuantizePreservesAlpha(t *testing.T) {
	img := testFrame(16, 16)
	img.SetNRGBA(3, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	out := quantize(img, MethodPosterize, 4, 0)
	assert.Equal(t, uint8(128), out.NRGBAAt(3, 3).A)
}

func TestBilateralFilterPreservesDimensions(t *testing.T) {
	img := testFrame(20, 14)
	out := bilateralFilter(img, 0.8)
	assert.Equal(t, img.Rect, out.Rect)

	// zero smoothing is the identity
	assert.Same(t, img, bilateralFilter(img, 0))
}
