package raster

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"
)

// Corner is one projected triangle vertex: screen X and Y, depth in Z.
type Corner struct {
	Pos r3.Vec
	UV  mgl32.Vec2
}

// Surface is what a triangle is painted with. Color multiplies the texel,
// or stands alone when Tex is nil. Colors are in [0,1]; Shininess is the
// PMX specularity exponent.
type Surface struct {
	Tex       *image.NRGBA
	Color     [4]float64
	Ambient   [3]float64
	Specular  [3]float64
	Shininess float64
}

// RasterizeTriangle fills one triangle with texture mapping, z-buffer,
// sRGB color space, flat per-material lighting and ACES tone mapping.
//
// This is the hot path; it does not allocate.
func RasterizeTriangle(fb *FrameBuffer, c [3]Corner, s *Surface, lc *LightConfig) {
	p0, p1, p2 := c[0].Pos, c[1].Pos, c[2].Pos

	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	nl := r3.Norm(n)
	if nl < 1e-8 {
		return
	}
	shade := lc.ShadeFace(r3.Scale(1/nl, n), s)

	minX := max(int(math.Min(math.Min(p0.X, p1.X), p2.X)), 0)
	maxX := min(int(math.Max(math.Max(p0.X, p1.X), p2.X))+1, fb.Width-1)
	minY := max(int(math.Min(math.Min(p0.Y, p1.Y), p2.Y)), 0)
	maxY := min(int(math.Max(math.Max(p0.Y, p1.Y), p2.Y))+1, fb.Height-1)
	if minX > maxX || minY > maxY {
		return
	}

	det := (p1.Y-p2.Y)*(p0.X-p2.X) + (p2.X-p1.X)*(p0.Y-p2.Y)
	if det > -1e-8 && det < 1e-8 {
		return
	}
	invDet := 1.0 / det

	dy12 := p1.Y - p2.Y
	dx21 := p2.X - p1.X
	dy20 := p2.Y - p0.Y
	dx02 := p0.X - p2.X

	invGamma := lc.InvGamma
	flat := [4]float64{255 * s.Color[0], 255 * s.Color[1], 255 * s.Color[2], 255 * s.Color[3]}

	for sy := minY; sy <= maxY; sy++ {
		dsy := float64(sy) - p2.Y
		rowOff := sy * fb.Width
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) - p2.X
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1.0 - w0 - w1
			if w0 < -0.001 || w1 < -0.001 || w2 < -0.001 {
				continue
			}

			z := w0*p0.Z + w1*p1.Z + w2*p2.Z
			zIdx := rowOff + sx
			if z <= fb.ZBuf[zIdx] {
				continue
			}

			col := flat
			if s.Tex != nil {
				u := w0*float64(c[0].UV[0]) + w1*float64(c[1].UV[0]) + w2*float64(c[2].UV[0])
				v := w0*float64(c[0].UV[1]) + w1*float64(c[1].UV[1]) + w2*float64(c[2].UV[1])
				t := SampleTexture(s.Tex, u, v)
				for k := range col {
					col[k] = t[k] * s.Color[k]
				}
			}

			// skip transparent texels
			if col[3] < 8 {
				continue
			}
			fb.ZBuf[zIdx] = z

			pxIdx := zIdx * 4
			for k := 0; k < 3; k++ {
				lin := srgbToLinear[clamp255(col[k])]*shade.Diffuse[k] + shade.Specular[k]
				fb.Color[pxIdx+k] = clamp255(math.Pow(ACESTonemap(lin), invGamma) * 255)
			}
			fb.Color[pxIdx+3] = clamp255(col[3])
		}
	}
}

func clamp255(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
