package mathutil

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// QuatXYZ builds the rotation Rx(v.X)·Ry(v.Y)·Rz(v.Z) from Euler radians.
func QuatXYZ(v mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(v[0], v[1], v[2], mgl32.XYZ)
}

// QuatYXZ builds Ry(v.Y)·Rx(v.X)·Rz(v.Z), the order rigid-body rotations are stored in.
func QuatYXZ(v mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(v[1], v[0], v[2], mgl32.YXZ)
}

// EulerXYZ is the inverse of QuatXYZ. At the poles of Y the Z angle is
// folded into X.
func EulerXYZ(q mgl32.Quat) mgl32.Vec3 {
	m := q.Normalize().Mat4()
	sy := mgl32.Clamp(m.At(0, 2), -1, 1)
	y := float32(math.Asin(float64(sy)))
	if mgl32.Abs(sy) > 0.99999 {
		x := float32(math.Atan2(float64(m.At(2, 1)), float64(m.At(1, 1))))
		return mgl32.Vec3{x, y, 0}
	}
	x := float32(math.Atan2(float64(-m.At(1, 2)), float64(m.At(2, 2))))
	z := float32(math.Atan2(float64(-m.At(0, 1)), float64(m.At(0, 0))))
	return mgl32.Vec3{x, y, z}
}

// ClampVec3 clamps each component of v to [lo, hi].
func ClampVec3(v, lo, hi mgl32.Vec3) mgl32.Vec3 {
	for i := range v {
		l, h := lo[i], hi[i]
		if l > h {
			l, h = h, l
		}
		v[i] = mgl32.Clamp(v[i], l, h)
	}
	return v
}

// ScaleRotation returns the rotation q scaled by rate via slerp from identity.
// Negative rates rotate the other way.
func ScaleRotation(q mgl32.Quat, rate float32) mgl32.Quat {
	switch rate {
	case 0:
		return mgl32.QuatIdent()
	case 1:
		return q
	}
	if rate < 0 {
		return mgl32.QuatSlerp(mgl32.QuatIdent(), q.Inverse(), -rate)
	}
	return mgl32.QuatSlerp(mgl32.QuatIdent(), q, rate)
}
