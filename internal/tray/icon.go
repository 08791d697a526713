package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// iconBytes is a 22x22 template icon: a play triangle inside a funnel rim
var iconBytes = renderIcon(22)

func renderIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	ink := color.NRGBA{A: 0xff}

	// Rim
	for x := 2; x < size-2; x++ {
		img.Set(x, 3, ink)
		img.Set(x, 4, ink)
	}
	// Triangle pointing right, narrowing like a funnel
	top, bottom := 7, size-3
	for x := 6; x < size-5; x++ {
		span := (bottom - top) * (size - 5 - x) / (size - 11)
		mid := (top + bottom) / 2
		for y := mid - span/2; y <= mid+span/2; y++ {
			img.Set(x, y, ink)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err) // in-memory encode of a fixed image
	}
	return buf.Bytes()
}
