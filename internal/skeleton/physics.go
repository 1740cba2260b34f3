package skeleton

import (
	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
)

// BoneTransformProvider supplies the pose a kinematic body should take.
type BoneTransformProvider interface {
	BodyTransform() mgl32.Mat4
}

// BoneTransformSink receives the simulated pose of a dynamic body.
type BoneTransformSink interface {
	SetBodyTransform(m mgl32.Mat4)
}

// Simulator is the rigid-body engine the bridge exchanges transforms with.
// Bodies are addressed by their index in the model.
type Simulator interface {
	SetKinematicTransform(body pmx.Index, m mgl32.Mat4) error
	Step(dt float32) error
	BodyTransform(body pmx.Index) (mgl32.Mat4, error)
	ApplyImpulse(body pmx.Index, velocity, torque mgl32.Vec3, local bool) error
}

// bodyOffset is inverse(bone rest) * body rest; the body's pose in the
// bone's rest frame.
func bodyOffset(rb *pmx.RigidBody, bones []pmx.Bone) mgl32.Mat4 {
	rest := mathutil.Affine(mathutil.QuatYXZ(rb.Rotation), rb.Position)
	if rb.Bone == pmx.None {
		return rest
	}
	p := bones[rb.Bone].Position
	return mgl32.Translate3D(-p[0], -p[1], -p[2]).Mul4(rest)
}

// KinematicBody follows its bone: world * offset.
type KinematicBody struct {
	g      *Graph
	bone   pmx.Index
	offset mgl32.Mat4
}

func (k *KinematicBody) BodyTransform() mgl32.Mat4 {
	if k.bone == pmx.None {
		return k.g.root.Mul4(k.offset)
	}
	return k.g.World(k.bone).Mul4(k.offset)
}

// DynamicBody drives its bone: world = body * inverse(offset).
type DynamicBody struct {
	g    *Graph
	bone pmx.Index
	inv  mgl32.Mat4
}

func (d *DynamicBody) SetBodyTransform(m mgl32.Mat4) {
	d.g.setPhysicsWorld(d.bone, m.Mul4(d.inv))
}

// AlignedBody takes its bone's position from the body and keeps the
// animated rotation.
type AlignedBody struct {
	g    *Graph
	bone pmx.Index
	inv  mgl32.Mat4
}

func (a *AlignedBody) SetBodyTransform(m mgl32.Mat4) {
	animated := a.g.parentWorld(a.bone).Mul4(a.g.Local(a.bone))
	pos := mathutil.Translation(m.Mul4(a.inv))
	a.g.setPhysicsWorld(a.bone, mathutil.WithTranslation(animated, pos))
}

type binding struct {
	body     pmx.Index
	mode     pmx.PhysicsMode
	provider BoneTransformProvider
	sink     BoneTransformSink
}

type impulse struct {
	body             pmx.Index
	velocity, torque mgl32.Vec3
	local            bool
}

// Bridge couples rigid bodies to bones. Each body's mode is fixed at
// construction.
type Bridge struct {
	g        *Graph
	bodies   []binding
	impulses []impulse
}

// NewBridge creates one provider or sink per rigid body of m.
func NewBridge(g *Graph, m *pmx.Model) *Bridge {
	b := &Bridge{g: g}
	for i := range m.RigidBodies {
		rb := &m.RigidBodies[i]
		off := bodyOffset(rb, m.Bones)
		bd := binding{body: pmx.Index(i), mode: rb.Mode}
		switch {
		case rb.Mode == pmx.PhysicsKinematic || rb.Bone == pmx.None:
			bd.provider = &KinematicBody{g: g, bone: rb.Bone, offset: off}
		case rb.Mode == pmx.PhysicsDynamic:
			bd.sink = &DynamicBody{g: g, bone: rb.Bone, inv: mathutil.InverseRigid(off)}
		default:
			bd.sink = &AlignedBody{g: g, bone: rb.Bone, inv: mathutil.InverseRigid(off)}
		}
		b.bodies = append(b.bodies, bd)
	}
	return b
}

// Provider returns the transform provider of body i, or nil for dynamic bodies.
func (b *Bridge) Provider(i pmx.Index) BoneTransformProvider { return b.bodies[i].provider }

// Sink returns the transform sink of body i, or nil for kinematic bodies.
func (b *Bridge) Sink(i pmx.Index) BoneTransformSink { return b.bodies[i].sink }

// Kinematic reports whether body i is driven by the skeleton. Bodies of any
// mode without a bone are kinematic too.
func (b *Bridge) Kinematic(i pmx.Index) bool {
	return i.Valid(len(b.bodies)) && b.bodies[i].provider != nil
}

// QueueImpulse schedules a one-shot impulse for the next Exchange.
func (b *Bridge) QueueImpulse(body pmx.Index, velocity, torque mgl32.Vec3, local bool) {
	b.impulses = append(b.impulses, impulse{body: body, velocity: velocity, torque: torque, local: local})
}

// DiscardImpulses drops queued impulses without applying them.
func (b *Bridge) DiscardImpulses() { b.impulses = b.impulses[:0] }

// Pending returns the number of queued impulses.
func (b *Bridge) Pending() int { return len(b.impulses) }

// Exchange pushes kinematic poses and queued impulses to sim, steps it by
// dt, and writes dynamic poses back to their bones. A body whose exchange
// fails is logged and its bone keeps the animated transform. Only a failed
// step is returned.
func (b *Bridge) Exchange(sim Simulator, dt float32) error {
	for _, bd := range b.bodies {
		if bd.provider == nil {
			continue
		}
		if err := sim.SetKinematicTransform(bd.body, bd.provider.BodyTransform()); err != nil {
			logging.Warn("physics: kinematic update failed", "body", bd.body, "err", err)
		}
	}
	for _, im := range b.impulses {
		if err := sim.ApplyImpulse(im.body, im.velocity, im.torque, im.local); err != nil {
			logging.Warn("physics: impulse failed", "body", im.body, "err", err)
		}
	}
	b.impulses = b.impulses[:0]

	if err := sim.Step(dt); err != nil {
		return err
	}

	for _, bd := range b.bodies {
		if bd.sink == nil {
			continue
		}
		m, err := sim.BodyTransform(bd.body)
		if err != nil {
			logging.Warn("physics: body read failed", "body", bd.body, "mode", bd.mode, "err", err)
			continue
		}
		bd.sink.SetBodyTransform(m)
	}
	return nil
}
