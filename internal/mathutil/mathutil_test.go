package mathutil

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEulerXYZRoundTrip(t *testing.T) {
	tests := []mgl32.Vec3{
		{0, 0, 0},
		{0.3, -0.2, 0.1},
		{-1.2, 0.7, 2.5},
		{math.Pi / 2 * 0.9, 0, -0.4},
	}
	for _, e := range tests {
		q := QuatXYZ(e)
		got := EulerXYZ(q)
		if !QuatXYZ(got).OrientationEqualThreshold(q, 1e-5) {
			t.Errorf("EulerXYZ(QuatXYZ(%v)) = %v, orientation differs", e, got)
		}
	}
}

func TestQuatXYZOrder(t *testing.T) {
	e := mgl32.Vec3{0.4, 0.5, 0.6}
	want := mgl32.QuatRotate(e[0], mgl32.Vec3{1, 0, 0}).
		Mul(mgl32.QuatRotate(e[1], mgl32.Vec3{0, 1, 0})).
		Mul(mgl32.QuatRotate(e[2], mgl32.Vec3{0, 0, 1}))
	if got := QuatXYZ(e); !got.ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("QuatXYZ = %v, want %v", got, want)
	}
	wantYXZ := mgl32.QuatRotate(e[1], mgl32.Vec3{0, 1, 0}).
		Mul(mgl32.QuatRotate(e[0], mgl32.Vec3{1, 0, 0})).
		Mul(mgl32.QuatRotate(e[2], mgl32.Vec3{0, 0, 1}))
	if got := QuatYXZ(e); !got.ApproxEqualThreshold(wantYXZ, 1e-6) {
		t.Errorf("QuatYXZ = %v, want %v", got, wantYXZ)
	}
}

func TestClampVec3(t *testing.T) {
	got := ClampVec3(mgl32.Vec3{-4, 0.5, 9}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{1, 1, 2})
	if got != (mgl32.Vec3{-1, 0.5, 2}) {
		t.Errorf("ClampVec3 = %v", got)
	}
	swapped := ClampVec3(mgl32.Vec3{5, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{-1, 0, 0})
	if swapped[0] != 1 {
		t.Errorf("ClampVec3 with swapped bounds = %v", swapped)
	}
}

func TestScaleRotation(t *testing.T) {
	q := mgl32.QuatRotate(1, mgl32.Vec3{0, 0, 1})
	tests := []struct {
		rate float32
		want mgl32.Quat
	}{
		{0, mgl32.QuatIdent()},
		{1, q},
		{0.5, mgl32.QuatRotate(0.5, mgl32.Vec3{0, 0, 1})},
		{-0.5, mgl32.QuatRotate(-0.5, mgl32.Vec3{0, 0, 1})},
	}
	for _, tt := range tests {
		if got := ScaleRotation(q, tt.rate); !got.OrientationEqualThreshold(tt.want, 1e-5) {
			t.Errorf("ScaleRotation(rate %v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestAffineInverse(t *testing.T) {
	q := mgl32.QuatRotate(0.7, mgl32.Vec3{1, 2, 3}.Normalize())
	m := Affine(q, mgl32.Vec3{4, -5, 6})
	if got := m.Mul4(InverseRigid(m)); !got.ApproxEqualThreshold(mgl32.Ident4(), 1e-5) {
		t.Errorf("m * InverseRigid(m) = %v", got)
	}
	if got := Rotation(m); !got.OrientationEqualThreshold(q, 1e-5) {
		t.Errorf("Rotation = %v, want %v", got, q)
	}
	if got := Translation(WithTranslation(m, mgl32.Vec3{1, 2, 3})); got != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("Translation = %v", got)
	}
}

func TestYawPitch(t *testing.T) {
	got := YawPitch(r3.Vec{Z: 1}, math.Pi/2, 0)
	if math.Abs(got.X-1) > 1e-9 || math.Abs(got.Z) > 1e-9 {
		t.Errorf("YawPitch(z, 90°, 0) = %v, want x", got)
	}
}

func TestBounds(t *testing.T) {
	b := Bounds([]mgl32.Vec3{{1, 2, 3}, {-1, 5, 0}})
	if b.Min != (r3.Vec{X: -1, Y: 2, Z: 0}) || b.Max != (r3.Vec{X: 1, Y: 5, Z: 3}) {
		t.Errorf("Bounds = %+v", b)
	}
}
