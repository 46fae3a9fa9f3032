package filter

import "edgedetect/raster"

// KernelSize is the width and height of the Laplacian kernel.
const KernelSize = 3

// Laplacian holds the fixed edge-detection coefficients, indexed [dy][dx].
var Laplacian = [KernelSize][KernelSize]int{
	{-1, -1, -1},
	{-1, 8, -1},
	{-1, -1, -1},
}

// Convolve computes the filtered pixel at (x, y) of src. Neighbor
// coordinates wrap around the image edges, so border pixels sample the
// opposite side. Each channel is clamped to [0, 255].
func Convolve(src *raster.Buffer, x, y int) raster.Pixel {
	w, h := src.Width(), src.Height()
	pix := src.Pixels()

	var red, green, blue int
	for dy := 0; dy < KernelSize; dy++ {
		ny := (y - KernelSize/2 + dy + h) % h
		row := ny * w
		for dx := 0; dx < KernelSize; dx++ {
			nx := (x - KernelSize/2 + dx + w) % w
			k := Laplacian[dy][dx]
			p := pix[row+nx]
			red += int(p.R) * k
			green += int(p.G) * k
			blue += int(p.B) * k
		}
	}

	return raster.Pixel{R: clamp(red), G: clamp(green), B: clamp(blue)}
}

// clamp truncates v into the uint8 range.
func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// convolveBand fills rows [band.Start, band.Start+band.Rows) of dst.
func convolveBand(src, dst *raster.Buffer, band Band) {
	w := src.Width()
	for y := band.Start; y < band.End(); y++ {
		out := dst.Row(y)
		for x := 0; x < w; x++ {
			out[x] = Convolve(src, x, y)
		}
	}
}
