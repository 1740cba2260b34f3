package skeleton

import (
	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
)

// SetRootTransform sets the whole-model transform applied above every
// parentless bone. It takes effect on the next Update.
func (g *Graph) SetRootTransform(m mgl32.Mat4) { g.root = m }


// SetUserTranslation replaces the user translation of bone i.
func (g *Graph) SetUserTranslation(i pmx.Index, t mgl32.Vec3) {
	g.state[i].userT = t
}

// Translate adds t to the user translation of bone i.
func (g *Graph) Translate(i pmx.Index, t mgl32.Vec3) {
	s := &g.state[i]
	s.userT = s.userT.Add(t)
}

// SetUserRotation replaces the user rotation of bone i.
func (g *Graph) SetUserRotation(i pmx.Index, q mgl32.Quat) {
	g.state[i].userR = q.Normalize()
}

// SetMorphTransform replaces the morph-driven component of bone i.
func (g *Graph) SetMorphTransform(i pmx.Index, t mgl32.Vec3, q mgl32.Quat) {
	s := &g.state[i]
	s.morphT, s.morphR = t, q
}

// ResetMorphTransforms clears every bone's morph component.
func (g *Graph) ResetMorphTransforms() {
	for i := range g.state {
		g.state[i].morphT = mgl32.Vec3{}
		g.state[i].morphR = mgl32.QuatIdent()
	}
}

// MorphTransform returns the morph component of bone i.
func (g *Graph) MorphTransform(i pmx.Index) (mgl32.Vec3, mgl32.Quat) {
	s := &g.state[i]
	return s.morphT, s.morphR
}

// ResetPose clears user, morph and IK state of every bone.
func (g *Graph) ResetPose() {
	for i := range g.state {
		s := &g.state[i]
		s.userT, s.morphT = mgl32.Vec3{}, mgl32.Vec3{}
		s.userR, s.morphR, s.ikR = mgl32.QuatIdent(), mgl32.QuatIdent(), mgl32.QuatIdent()
	}
}

// World returns the model-space transform of bone i from the last update.
func (g *Graph) World(i pmx.Index) mgl32.Mat4 { return g.state[i].world }

// Position returns the model-space position of bone i.
func (g *Graph) Position(i pmx.Index) mgl32.Vec3 {
	return mathutil.Translation(g.state[i].world)
}

// RestPosition returns the bind-pose position of bone i.
func (g *Graph) RestPosition(i pmx.Index) mgl32.Vec3 { return g.state[i].rest }

// Local returns the composed local transform of bone i relative to its parent.
func (g *Graph) Local(i pmx.Index) mgl32.Mat4 {
	s := &g.state[i]
	return mathutil.Affine(s.localR, s.localT)
}

// LocalRotation returns the composed local rotation of bone i.
func (g *Graph) LocalRotation(i pmx.Index) mgl32.Quat { return g.state[i].localR }

// IKRotation returns the IK component of bone i.
func (g *Graph) IKRotation(i pmx.Index) mgl32.Quat { return g.state[i].ikR }

// SkinMatrix maps a bind-pose vertex into the current pose of bone i.
func (g *Graph) SkinMatrix(i pmx.Index) mgl32.Mat4 {
	s := &g.state[i]
	r := s.rest
	return s.world.Mul4(mgl32.Translate3D(-r[0], -r[1], -r[2]))
}

// Update recomputes every bone evaluated before physics, solving IK inline
// when an IK bone is reached.
func (g *Graph) Update() {
	for i := range g.state {
		g.state[i].physics = false
	}
	for _, i := range g.order {
		if g.bones[i].Has(pmx.BoneAfterPhysics) {
			continue
		}
		g.evaluate(i)
	}
}

// UpdateAfterPhysics recomputes after-physics bones and every bone below a
// physics-driven bone, keeping the worlds that physics wrote.
func (g *Graph) UpdateAfterPhysics() {
	stale := make([]bool, len(g.bones))
	for _, i := range g.order {
		s := &g.state[i]
		p := g.bones[i].Parent
		below := p != pmx.None && (g.state[p].physics || stale[p])
		if s.physics {
			continue
		}
		if g.bones[i].Has(pmx.BoneAfterPhysics) || below {
			stale[i] = true
			g.evaluate(i)
		}
	}
}

func (g *Graph) evaluate(i pmx.Index) {
	g.updateLocal(i)
	g.updateWorld(i)
	if g.bones[i].IK != nil && g.bones[i].Has(pmx.BoneIK) && !g.state[i].ikDisabled {
		g.solveIK(i)
	}
}

// updateLocal composes translation = offset + inherit + user + morph and
// rotation = ik * morph * user * inherit.
func (g *Graph) updateLocal(i pmx.Index) {
	b := &g.bones[i]
	s := &g.state[i]
	s.inheritT = mgl32.Vec3{}
	s.inheritR = mgl32.QuatIdent()
	if b.Has(pmx.BoneInheritRotation) || b.Has(pmx.BoneInheritTranslation) {
		g.inherit(i)
	}
	s.localT = s.offset.Add(s.inheritT).Add(s.userT).Add(s.morphT)
	s.localR = s.ikR.Mul(s.morphR).Mul(s.userR).Mul(s.inheritR).Normalize()
}

func (g *Graph) inherit(i pmx.Index) {
	b := &g.bones[i]
	s := &g.state[i]
	src := b.Inherit.Bone
	if src == pmx.None && b.Has(pmx.BoneLocalInherit) {
		src = b.Parent
	}
	if src == pmx.None || src == i {
		return
	}
	rate := b.Inherit.Rate

	var t mgl32.Vec3
	var q mgl32.Quat
	if b.Has(pmx.BoneLocalInherit) {
		t, q = g.localDelta(src)
	} else {
		ss := &g.state[src]
		t = ss.inheritT.Add(ss.userT).Add(ss.morphT)
		q = ss.ikR.Mul(ss.morphR).Mul(ss.userR).Mul(ss.inheritR)
	}
	if b.Has(pmx.BoneInheritRotation) {
		s.inheritR = mathutil.ScaleRotation(q.Normalize(), rate)
	}
	if b.Has(pmx.BoneInheritTranslation) {
		s.inheritT = t.Mul(rate)
	}
}

// localDelta is the source bone's composed local transform relative to its
// rest offset. Motion of the source's parents is not included.
func (g *Graph) localDelta(src pmx.Index) (mgl32.Vec3, mgl32.Quat) {
	ss := &g.state[src]
	return ss.localT.Sub(ss.offset), ss.localR
}

func (g *Graph) parentWorld(i pmx.Index) mgl32.Mat4 {
	if p := g.bones[i].Parent; p != pmx.None {
		return g.state[p].world
	}
	return g.root
}

func (g *Graph) updateWorld(i pmx.Index) {
	s := &g.state[i]
	s.world = g.parentWorld(i).Mul4(mathutil.Affine(s.localR, s.localT))
}

// refreshSubtree recomputes worlds below i (inclusive) for bones already
// evaluated this pass.
func (g *Graph) refreshSubtree(i pmx.Index, limit int) {
	g.updateWorld(i)
	for _, k := range g.kids[i] {
		if g.pos[k] <= limit {
			g.refreshSubtree(k, limit)
		}
	}
}

// setPhysicsWorld overwrites the world of bone i for the rest of the frame.
func (g *Graph) setPhysicsWorld(i pmx.Index, m mgl32.Mat4) {
	s := &g.state[i]
	s.world = m
	s.physics = true
}
