package skeleton

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/pmx/pmxtest"
)

type fakeSim struct {
	kinematic map[pmx.Index]mgl32.Mat4
	bodies    map[pmx.Index]mgl32.Mat4
	readErr   map[pmx.Index]error
	stepErr   error
	steps     []float32
	impulses  []pmx.Index
}

func newFakeSim() *fakeSim {
	return &fakeSim{
		kinematic: make(map[pmx.Index]mgl32.Mat4),
		bodies:    make(map[pmx.Index]mgl32.Mat4),
		readErr:   make(map[pmx.Index]error),
	}
}

func (s *fakeSim) SetKinematicTransform(body pmx.Index, m mgl32.Mat4) error {
	s.kinematic[body] = m
	return nil
}

func (s *fakeSim) Step(dt float32) error {
	if s.stepErr != nil {
		return s.stepErr
	}
	s.steps = append(s.steps, dt)
	return nil
}

func (s *fakeSim) BodyTransform(body pmx.Index) (mgl32.Mat4, error) {
	if err := s.readErr[body]; err != nil {
		return mgl32.Mat4{}, err
	}
	return s.bodies[body], nil
}

func (s *fakeSim) ApplyImpulse(body pmx.Index, velocity, torque mgl32.Vec3, local bool) error {
	s.impulses = append(s.impulses, body)
	return nil
}

func TestBridgeModes(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)

	if b.Provider(0) == nil || b.Sink(0) != nil {
		t.Error("body 0 should be kinematic")
	}
	if b.Provider(1) != nil || b.Sink(1) == nil {
		t.Error("body 1 should be dynamic")
	}
	if !b.Kinematic(0) || b.Kinematic(1) || b.Kinematic(7) {
		t.Error("Kinematic reports wrong modes")
	}
}

func TestBridgeKinematicFollowsBone(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	sim.bodies[1] = mathutil.Affine(mgl32.QuatIdent(), m.RigidBodies[1].Position)

	g.Translate(pmxtest.RigCenter, mgl32.Vec3{3, 0, 0})
	g.Update()
	if err := b.Exchange(sim, 1.0/60); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	got := mathutil.Translation(sim.kinematic[0])
	want := m.RigidBodies[0].Position.Add(mgl32.Vec3{3, 0, 0})
	if !got.ApproxEqualThreshold(want, 1e-5) {
		t.Errorf("kinematic body at %v, want %v", got, want)
	}
	if len(sim.steps) != 1 || sim.steps[0] != float32(1.0/60) {
		t.Errorf("steps = %v", sim.steps)
	}
}

func TestBridgeDynamicDrivesBone(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	sim.bodies[1] = mathutil.Affine(mgl32.QuatIdent(), m.RigidBodies[1].Position.Add(mgl32.Vec3{1, 0, 0}))

	g.Update()
	if err := b.Exchange(sim, 1.0/60); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	g.UpdateAfterPhysics()

	if got := g.Position(pmxtest.RigNeck); !got.ApproxEqualThreshold(mgl32.Vec3{1, 15, 0}, 1e-5) {
		t.Errorf("neck = %v, want (1,15,0)", got)
	}
	if got := g.Position(pmxtest.RigHead); !got.ApproxEqualThreshold(mgl32.Vec3{1, 16, 0}, 1e-5) {
		t.Errorf("head = %v, want (1,16,0) after refresh", got)
	}

	// the next frame starts from the animated pose again
	g.Update()
	if got := g.Position(pmxtest.RigNeck); got != m.Bones[pmxtest.RigNeck].Position {
		t.Errorf("neck = %v after a fresh update", got)
	}
}

func TestBridgeAlignedKeepsRotation(t *testing.T) {
	m := pmxtest.MorphRig()
	m.RigidBodies[1].Mode = pmx.PhysicsAligned
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	// the simulated body is both moved and spun
	spin := mgl32.QuatRotate(1, mgl32.Vec3{0, 1, 0})
	sim.bodies[1] = mathutil.Affine(spin, m.RigidBodies[1].Position.Add(mgl32.Vec3{0, 0, 2}))

	tilt := mgl32.QuatRotate(0.5, mgl32.Vec3{1, 0, 0})
	g.SetUserRotation(pmxtest.RigNeck, tilt)
	g.Update()
	if err := b.Exchange(sim, 1.0/60); err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	w := g.World(pmxtest.RigNeck)
	if got := mathutil.Rotation(w); !got.OrientationEqualThreshold(tilt, 1e-5) {
		t.Errorf("neck rotation = %v, want animated %v", got, tilt)
	}
	// inverse(offset) is a pure translation, so the body's spin moves the
	// derived bone origin; compare against the same construction.
	off := bodyOffset(&m.RigidBodies[1], m.Bones)
	want := mathutil.Translation(sim.bodies[1].Mul4(off.Inv()))
	if got := mathutil.Translation(w); !got.ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("neck position = %v, want %v", got, want)
	}
}

func TestBridgeBodyErrorKeepsAnimation(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	sim.readErr[1] = errors.New("body removed")

	g.Translate(pmxtest.RigNeck, mgl32.Vec3{0, 0, 1})
	g.Update()
	if err := b.Exchange(sim, 1.0/60); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	g.UpdateAfterPhysics()
	if got := g.Position(pmxtest.RigNeck); got != (mgl32.Vec3{0, 15, 1}) {
		t.Errorf("neck = %v, want animated (0,15,1)", got)
	}
}

func TestBridgeStepError(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	sim.stepErr = errors.New("solver exploded")
	if err := b.Exchange(sim, 1.0/60); !errors.Is(err, sim.stepErr) {
		t.Fatalf("err = %v, want step error", err)
	}
}

func TestBridgeImpulses(t *testing.T) {
	m := pmxtest.MorphRig()
	g := newGraph(t, m)
	b := NewBridge(g, m)
	sim := newFakeSim()
	sim.bodies[1] = mathutil.Affine(mgl32.QuatIdent(), m.RigidBodies[1].Position)

	b.QueueImpulse(1, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{}, false)
	if b.Pending() != 1 {
		t.Fatalf("Pending = %d", b.Pending())
	}
	if err := b.Exchange(sim, 1.0/60); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if b.Pending() != 0 || len(sim.impulses) != 1 || sim.impulses[0] != 1 {
		t.Errorf("pending %d, applied %v", b.Pending(), sim.impulses)
	}
}

func TestBridgeBodyWithoutBoneIsKinematic(t *testing.T) {
	m := pmxtest.MorphRig()
	m.RigidBodies[1].Bone = pmx.None
	g := newGraph(t, m)
	b := NewBridge(g, m)
	if b.Provider(1) == nil || b.Sink(1) != nil {
		t.Fatal("boneless dynamic body not driven as kinematic")
	}
	if !b.Kinematic(1) {
		t.Error("Kinematic(1) = false for a boneless body")
	}
}

func TestBridgeDiscardImpulses(t *testing.T) {
	m := pmxtest.MorphRig()
	b := NewBridge(newGraph(t, m), m)
	b.QueueImpulse(1, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{}, false)
	b.DiscardImpulses()
	if b.Pending() != 0 {
		t.Errorf("Pending = %d", b.Pending())
	}
}
