package postprocess

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// CropAndCenter crops to the bounding box of visible pixels, scales it to
// fillRatio of a size×size canvas and centers it.
func CropAndCenter(img *image.NRGBA, size int, fillRatio float64) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, size, size))
	r, ok := opaqueBounds(img)
	if !ok {
		return canvas
	}

	scale := float64(size) * fillRatio / math.Max(float64(r.Dx()), float64(r.Dy()))
	w := max(int(float64(r.Dx())*scale+0.5), 1)
	h := max(int(float64(r.Dy())*scale+0.5), 1)
	off := image.Pt((size-w)/2, (size-h)/2)

	draw.CatmullRom.Scale(canvas, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, img, r, draw.Src, nil)
	return canvas
}

// opaqueBounds returns the smallest rectangle holding every pixel with
// nonzero alpha.
func opaqueBounds(img *image.NRGBA) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)+3] == 0 {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
