package mathutil

import "github.com/go-gl/mathgl/mgl32"

// Affine builds T(t)·R(q).
func Affine(q mgl32.Quat, t mgl32.Vec3) mgl32.Mat4 {
	m := q.Mat4()
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// Translation returns the translation column of an affine matrix.
func Translation(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{m[12], m[13], m[14]}
}

// WithTranslation returns m with its translation column replaced.
func WithTranslation(m mgl32.Mat4, t mgl32.Vec3) mgl32.Mat4 {
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// Rotation extracts the rotation of an affine matrix with uniform scale.
func Rotation(m mgl32.Mat4) mgl32.Quat {
	sx, sy, sz := mgl32.Extract3DScale(m)
	r := mgl32.Ident4()
	for c, s := range []float32{sx, sy, sz} {
		if s == 0 {
			continue
		}
		for row := 0; row < 3; row++ {
			r[c*4+row] = m[c*4+row] / s
		}
	}
	return mgl32.Mat4ToQuat(r).Normalize()
}

// InverseRigid inverts a rotation+translation matrix without a general
// 4x4 inverse.
func InverseRigid(m mgl32.Mat4) mgl32.Mat4 {
	r := m.Mat3().Transpose()
	t := r.Mul3x1(Translation(m)).Mul(-1)
	out := r.Mat4()
	out[12], out[13], out[14] = t[0], t[1], t[2]
	return out
}
