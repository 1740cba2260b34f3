package raster

import "image"

// SampleTexture performs bilinear filtering with UV wrapping and returns
// straight-alpha RGBA in [0,255].
func SampleTexture(tex *image.NRGBA, u, v float64) [4]float64 {
	w := tex.Rect.Dx()
	h := tex.Rect.Dy()

	u -= float64(int(u))
	if u < 0 {
		u += 1.0
	}
	v -= float64(int(v))
	if v < 0 {
		v += 1.0
	}

	fx := u * float64(w-1)
	fy := v * float64(h-1)
	x0 := int(fx)
	y0 := int(fy)
	x1 := (x0 + 1) % w
	y1 := (y0 + 1) % h
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	ox, oy := tex.Rect.Min.X, tex.Rect.Min.Y
	i00 := tex.PixOffset(ox+x0, oy+y0)
	i10 := tex.PixOffset(ox+x1, oy+y0)
	i01 := tex.PixOffset(ox+x0, oy+y1)
	i11 := tex.PixOffset(ox+x1, oy+y1)

	w00 := (1 - dx) * (1 - dy)
	w10 := dx * (1 - dy)
	w01 := (1 - dx) * dy
	w11 := dx * dy

	pix := tex.Pix
	var out [4]float64
	for c := 0; c < 4; c++ {
		out[c] = float64(pix[i00+c])*w00 + float64(pix[i10+c])*w10 + float64(pix[i01+c])*w01 + float64(pix[i11+c])*w11
	}
	return out
}
