package raster

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// LightConfig is the fixed preview rig: a key light from the upper right,
// a rim light from behind the model and a hemisphere fill. PMX models face
// -Z, so the key and view directions point toward -Z.
type LightConfig struct {
	Key  r3.Vec
	Rim  r3.Vec
	View r3.Vec
	Half r3.Vec // key/view half vector

	KeyPower  float64
	RimPower  float64
	FillPower float64

	// AmbientBase is added to each material's own ambient color.
	AmbientBase float64
	// SpecPower scales the material specular color.
	SpecPower float64

	Exposure float64
	InvGamma float64
}

// Shade is the light reaching one face, split per RGB channel into a factor
// on the diffuse color and an additive specular term, both linear.
type Shade struct {
	Diffuse  [3]float64
	Specular [3]float64
}

// DefaultLightConfig returns the rig used for every preview.
func DefaultLightConfig() LightConfig {
	key := r3.Unit(r3.Vec{X: 0.45, Y: 0.65, Z: -0.6})
	rim := r3.Unit(r3.Vec{X: -0.4, Y: 0.3, Z: 0.85})
	view := r3.Vec{X: 0, Y: 0, Z: -1}

	return LightConfig{
		Key:         key,
		Rim:         rim,
		View:        view,
		Half:        r3.Unit(r3.Add(key, view)),
		KeyPower:    1.2,
		RimPower:    0.5,
		FillPower:   0.45,
		AmbientBase: 0.35,
		SpecPower:   0.6,
		Exposure:    1.0,
		InvGamma:    1.0 / 2.2,
	}
}

// ShadeFace lights a face with unit normal n painted with s. Faces are lit
// from both sides. A material with zero specularity gets no highlight.
func (lc *LightConfig) ShadeFace(n r3.Vec, s *Surface) Shade {
	fill := (1-math.Abs(n.Y))*0.5 + 0.5
	direct := math.Abs(r3.Dot(n, lc.Key))*lc.KeyPower +
		math.Abs(r3.Dot(n, lc.Rim))*lc.RimPower +
		fill*lc.FillPower

	var spec float64
	if s.Shininess > 0 {
		spec = math.Pow(math.Abs(r3.Dot(n, lc.Half)), s.Shininess) * lc.SpecPower
	}

	var sh Shade
	for c := 0; c < 3; c++ {
		sh.Diffuse[c] = (lc.AmbientBase + s.Ambient[c] + direct) * lc.Exposure
		sh.Specular[c] = spec * s.Specular[c]
	}
	return sh
}

// sRGB-to-linear lookup for 8-bit channels.
var srgbToLinear [256]float64

func init() {
	for i := 0; i < 256; i++ {
		srgbToLinear[i] = math.Pow(float64(i)/255.0, 2.2)
	}
}

// ACESTonemap applies the ACES filmic curve to a linear value.
func ACESTonemap(x float64) float64 {
	return (x * (2.51*x + 0.03)) / (x*(2.43*x+0.59) + 0.14)
}
