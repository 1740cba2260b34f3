package morph

import (
	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/pmx"
)

// Color is the effective material state after morphs.
type Color struct {
	Diffuse     mgl32.Vec4
	Specular    mgl32.Vec3
	Specularity float32
	Ambient     mgl32.Vec3
	EdgeColor   mgl32.Vec4
	EdgeSize    float32
	TextureTint mgl32.Vec4
	SphereTint  mgl32.Vec4
	ToonTint    mgl32.Vec4
}

type materialCache struct {
	gen   uint64
	valid bool
	color Color
}

var one4 = mgl32.Vec4{1, 1, 1, 1}

// accum holds one value of every material field, used once as the product of
// multiplicative offsets and once as the sum of additive ones.
type accum Color

func unitAccum() accum {
	return accum{
		Diffuse:     one4,
		Specular:    mgl32.Vec3{1, 1, 1},
		Specularity: 1,
		Ambient:     mgl32.Vec3{1, 1, 1},
		EdgeColor:   one4,
		EdgeSize:    1,
		TextureTint: one4,
		SphereTint:  one4,
		ToonTint:    one4,
	}
}

func lerp4(v mgl32.Vec4, w float32) mgl32.Vec4 {
	return one4.Add(v.Sub(one4).Mul(w))
}

func lerp3(v mgl32.Vec3, w float32) mgl32.Vec3 {
	u := mgl32.Vec3{1, 1, 1}
	return u.Add(v.Sub(u).Mul(w))
}

func mul4(a, b mgl32.Vec4) mgl32.Vec4 {
	return mgl32.Vec4{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
}

func mul3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// multiply folds a multiplicative offset in at weight w; weight 0 leaves the
// product unchanged and weight 1 applies the full factor.
func (a *accum) multiply(o pmx.MaterialOffset, w float32) {
	a.Diffuse = mul4(a.Diffuse, lerp4(o.Diffuse, w))
	a.Specular = mul3(a.Specular, lerp3(o.Specular, w))
	a.Specularity *= 1 + (o.Specularity-1)*w
	a.Ambient = mul3(a.Ambient, lerp3(o.Ambient, w))
	a.EdgeColor = mul4(a.EdgeColor, lerp4(o.EdgeColor, w))
	a.EdgeSize *= 1 + (o.EdgeSize-1)*w
	a.TextureTint = mul4(a.TextureTint, lerp4(o.TextureTint, w))
	a.SphereTint = mul4(a.SphereTint, lerp4(o.SphereTint, w))
	a.ToonTint = mul4(a.ToonTint, lerp4(o.ToonTint, w))
}

func (a *accum) add(o pmx.MaterialOffset, w float32) {
	a.Diffuse = a.Diffuse.Add(o.Diffuse.Mul(w))
	a.Specular = a.Specular.Add(o.Specular.Mul(w))
	a.Specularity += o.Specularity * w
	a.Ambient = a.Ambient.Add(o.Ambient.Mul(w))
	a.EdgeColor = a.EdgeColor.Add(o.EdgeColor.Mul(w))
	a.EdgeSize += o.EdgeSize * w
	a.TextureTint = a.TextureTint.Add(o.TextureTint.Mul(w))
	a.SphereTint = a.SphereTint.Add(o.SphereTint.Mul(w))
	a.ToonTint = a.ToonTint.Add(o.ToonTint.Mul(w))
}

// MaterialColor returns the morphed state of material i: base * product of
// multiplicative offsets + sum of additive offsets. Texture tints start
// from white. The result is cached until a morph touching i changes.
func (e *Engine) MaterialColor(i pmx.Index) Color {
	if !i.Valid(len(e.m.Materials)) {
		return Color{}
	}
	c := &e.matCache[i]
	if c.valid && c.gen == e.matGen[i] {
		return c.color
	}

	mat := &e.m.Materials[i]
	base := Color{
		Diffuse:     mat.Diffuse,
		Specular:    mat.Specular,
		Specularity: mat.Specularity,
		Ambient:     mat.Ambient,
		EdgeColor:   mat.EdgeColor,
		EdgeSize:    mat.EdgeSize,
		TextureTint: one4,
		SphereTint:  one4,
		ToonTint:    one4,
	}
	mul := unitAccum()
	var sum accum
	for _, en := range e.material[i] {
		o := en.offset.(pmx.MaterialOffset)
		if o.Op == pmx.MaterialMultiply {
			mul.multiply(o, en.weight)
		} else {
			sum.add(o, en.weight)
		}
	}

	c.color = Color{
		Diffuse:     mul4(base.Diffuse, mul.Diffuse).Add(sum.Diffuse),
		Specular:    mul3(base.Specular, mul.Specular).Add(sum.Specular),
		Specularity: base.Specularity*mul.Specularity + sum.Specularity,
		Ambient:     mul3(base.Ambient, mul.Ambient).Add(sum.Ambient),
		EdgeColor:   mul4(base.EdgeColor, mul.EdgeColor).Add(sum.EdgeColor),
		EdgeSize:    base.EdgeSize*mul.EdgeSize + sum.EdgeSize,
		TextureTint: mul4(base.TextureTint, mul.TextureTint).Add(sum.TextureTint),
		SphereTint:  mul4(base.SphereTint, mul.SphereTint).Add(sum.SphereTint),
		ToonTint:    mul4(base.ToonTint, mul.ToonTint).Add(sum.ToonTint),
	}
	c.gen = e.matGen[i]
	c.valid = true
	e.recomputes++
	return c.color
}

// Recomputes returns how many times a material color was recalculated.
func (e *Engine) Recomputes() int { return e.recomputes }

func (e *Engine) bumpMaterials(lists ...[]pmx.Index) {
	seen := make(map[pmx.Index]bool)
	for _, list := range lists {
		for _, m := range list {
			if !seen[m] && m.Valid(len(e.matGen)) {
				seen[m] = true
				e.matGen[m]++
			}
		}
	}
}
