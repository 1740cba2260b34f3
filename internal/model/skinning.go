package model

import (
	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
)

// skinMatrices returns the skin matrix of a bone index; None and out of
// range indices yield identity.
type skinMatrices func(pmx.Index) mgl32.Mat4

// skin deforms p (already morphed) by the vertex's weighting scheme.
func skin(v *pmx.Vertex, p mgl32.Vec3, mats skinMatrices) mgl32.Vec3 {
	switch v.Weighting {
	case pmx.BDEF1:
		return mgl32.TransformCoordinate(p, mats(v.Bones[0]))
	case pmx.BDEF2:
		return linearBlend(v, p, mats, 2)
	case pmx.SDEF:
		return sphericalBlend(v, p, mats)
	case pmx.QDEF:
		return dualQuatBlend(v, p, mats)
	default:
		return linearBlend(v, p, mats, 4)
	}
}

// normalizedWeights returns the first n weights scaled to sum to one. A zero
// total falls back to the first bone alone.
func normalizedWeights(v *pmx.Vertex, n int) [4]float32 {
	var w [4]float32
	var sum float32
	for k := 0; k < n; k++ {
		if v.Bones[k] == pmx.None || v.Weights[k] <= 0 {
			continue
		}
		w[k] = v.Weights[k]
		sum += w[k]
	}
	if sum <= 0 {
		return [4]float32{1}
	}
	if sum != 1 {
		for k := range w {
			w[k] /= sum
		}
	}
	return w
}

func linearBlend(v *pmx.Vertex, p mgl32.Vec3, mats skinMatrices, n int) mgl32.Vec3 {
	w := normalizedWeights(v, n)
	var out mgl32.Vec3
	for k := 0; k < n; k++ {
		if w[k] == 0 {
			continue
		}
		out = out.Add(mgl32.TransformCoordinate(p, mats(v.Bones[k])).Mul(w[k]))
	}
	return out
}

// sphericalBlend rotates around the SDEF center by the slerp of both bone
// rotations and blends the transformed corrected rotation centers.
func sphericalBlend(v *pmx.Vertex, p mgl32.Vec3, mats skinMatrices) mgl32.Vec3 {
	w0, w1 := v.Weights[0], v.Weights[1]
	m0, m1 := mats(v.Bones[0]), mats(v.Bones[1])

	rw := v.SDEFR0.Mul(w0).Add(v.SDEFR1.Mul(w1))
	r0 := v.SDEFC.Add(v.SDEFR0).Sub(rw)
	r1 := v.SDEFC.Add(v.SDEFR1).Sub(rw)
	cr0 := v.SDEFC.Add(r0).Mul(0.5)
	cr1 := v.SDEFC.Add(r1).Mul(0.5)

	q0, q1 := mathutil.Rotation(m0), mathutil.Rotation(m1)
	if q0.Dot(q1) < 0 {
		q1 = q1.Scale(-1)
	}
	q := mgl32.QuatSlerp(q0, q1, w1).Normalize()

	out := q.Rotate(p.Sub(v.SDEFC))
	out = out.Add(mgl32.TransformCoordinate(cr0, m0).Mul(w0))
	return out.Add(mgl32.TransformCoordinate(cr1, m1).Mul(w1))
}

// dualQuatBlend blends the bones as unit dual quaternions.
func dualQuatBlend(v *pmx.Vertex, p mgl32.Vec3, mats skinMatrices) mgl32.Vec3 {
	w := normalizedWeights(v, 4)
	var rq, dq mgl32.Quat
	var pivot mgl32.Quat
	first := true
	for k := 0; k < 4; k++ {
		if w[k] == 0 {
			continue
		}
		m := mats(v.Bones[k])
		q := mathutil.Rotation(m)
		d := mgl32.Quat{V: mathutil.Translation(m)}.Mul(q).Scale(0.5)
		if first {
			pivot, first = q, false
		} else if pivot.Dot(q) < 0 {
			q, d = q.Scale(-1), d.Scale(-1)
		}
		rq = rq.Add(q.Scale(w[k]))
		dq = dq.Add(d.Scale(w[k]))
	}
	n := rq.Len()
	if n == 0 {
		return p
	}
	rq, dq = rq.Scale(1/n), dq.Scale(1/n)
	t := dq.Mul(rq.Conjugate()).Scale(2).V
	return rq.Rotate(p).Add(t)
}
