package imagecache

import (
	"image"
	"image/color"
	"image/draw"
)

var (
	placeholderFill   = color.RGBA{R: 0x2b, G: 0x2b, B: 0x33, A: 0xff}
	placeholderBorder = color.RGBA{R: 0x55, G: 0x55, B: 0x66, A: 0xff}
)

// newPlaceholder produces an off-screen bitmap of the requested size with
// a constant body, used for instant fallback when an image is missing or
// failed. Same size in, same pixels out.
func newPlaceholder(width, height int) image.Image {
	if width <= 0 {
		width = 100
	}
	if height <= 0 {
		height = 145
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderFill}, image.Point{}, draw.Src)

	for x := 0; x < width; x++ {
		img.Set(x, 0, placeholderBorder)
		img.Set(x, height-1, placeholderBorder)
	}
	for y := 0; y < height; y++ {
		img.Set(0, y, placeholderBorder)
		img.Set(width-1, y, placeholderBorder)
	}

	// A diagonal cross marks the body so a placeholder is never mistaken
	// for a blank card.
	for x := 0; x < width; x++ {
		y := x * (height - 1) / max(width-1, 1)
		img.Set(x, y, placeholderBorder)
		img.Set(x, height-1-y, placeholderBorder)
	}

	return img
}
