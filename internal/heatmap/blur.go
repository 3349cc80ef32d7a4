package heatmap

import (
	"image"
	"math"
)

// GaussianKernel returns a normalized 1D kernel for the given sigma.
// The kernel spans 3 sigma on each side. sigma <= 0 yields the identity.
func GaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}
	half := int(math.Ceil(sigma * 3))
	size := half*2 + 1
	kernel := make([]float32, size)
	twoSigmaSq := 2 * sigma * sigma
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - half)
		v := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(v)
		sum += v
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

// Blur applies a separable Gaussian blur to a premultiplied image in place.
// Pixels outside the image are transparent, so edges fade out.
func Blur(img *image.RGBA, sigma float64) {
	if img == nil || sigma <= 0 {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	kernel := GaussianKernel(sigma)
	half := len(kernel) / 2
	temp := make([]float32, w*h*4)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			var acc [4]float32
			for k, weight := range kernel {
				sx := x + k - half
				if sx < 0 || sx >= w {
					continue
				}
				p := row[sx*4 : sx*4+4]
				acc[0] += float32(p[0]) * weight
				acc[1] += float32(p[1]) * weight
				acc[2] += float32(p[2]) * weight
				acc[3] += float32(p[3]) * weight
			}
			copy(temp[(y*w+x)*4:], acc[:])
		}
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			var acc [4]float32
			for k, weight := range kernel {
				sy := y + k - half
				if sy < 0 || sy >= h {
					continue
				}
				i := (sy*w + x) * 4
				acc[0] += temp[i] * weight
				acc[1] += temp[i+1] * weight
				acc[2] += temp[i+2] * weight
				acc[3] += temp[i+3] * weight
			}
			p := row[x*4 : x*4+4]
			a := clampUint8(acc[3])
			p[3] = a
			// Keep the image validly premultiplied after rounding.
			p[0] = minUint8(clampUint8(acc[0]), a)
			p[1] = minUint8(clampUint8(acc[1]), a)
			p[2] = minUint8(clampUint8(acc[2]), a)
		}
	}
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func minUint8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
