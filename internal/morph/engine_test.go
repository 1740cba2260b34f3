package morph

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/pmx/pmxtest"
	"pmx-pose-renderer/internal/skeleton"
)

type boneRecorder struct {
	t map[pmx.Index]mgl32.Vec3
	q map[pmx.Index]mgl32.Quat
}

func newBoneRecorder() *boneRecorder {
	return &boneRecorder{t: make(map[pmx.Index]mgl32.Vec3), q: make(map[pmx.Index]mgl32.Quat)}
}

func (r *boneRecorder) SetMorphTransform(i pmx.Index, t mgl32.Vec3, q mgl32.Quat) {
	r.t[i], r.q[i] = t, q
}

func TestBoneMorphRestoresExactly(t *testing.T) {
	m := pmxtest.MorphRig()
	g, err := skeleton.New(m)
	if err != nil {
		t.Fatalf("skeleton.New: %v", err)
	}
	e := New(m, g, nil)

	if err := e.Apply(pmxtest.MorphNod, 1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	g.Update()
	if got := g.Position(pmxtest.RigHead); got != (mgl32.Vec3{0, 16, 1}) {
		t.Errorf("head = %v with nod applied", got)
	}

	if err := e.Apply(pmxtest.MorphNod, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	g.Update()
	tr, q := g.MorphTransform(pmxtest.RigHead)
	if tr != (mgl32.Vec3{}) || q != mgl32.QuatIdent() {
		t.Errorf("morph transform = %v %v, want exact identity", tr, q)
	}
	if got := g.Position(pmxtest.RigHead); got != m.Bones[pmxtest.RigHead].Position {
		t.Errorf("head = %v after removing nod", got)
	}
}

func TestApplyWeights(t *testing.T) {
	e := New(pmxtest.MorphRig(), nil, nil)
	tests := []struct {
		in, want float32
	}{
		{0.5, 0.5},
		{2, 1},
		{-1, 0},
		{0.25, 0.25},
	}
	for _, tt := range tests {
		if err := e.Apply(pmxtest.MorphSmile, tt.in); err != nil {
			t.Fatalf("Apply(%v): %v", tt.in, err)
		}
		if got := e.Weight(pmxtest.MorphSmile); got != tt.want {
			t.Errorf("Apply(%v): weight = %v, want %v", tt.in, got, tt.want)
		}
		if got := e.VertexOffset(2); got != (mgl32.Vec3{0, tt.want, 0}) {
			t.Errorf("Apply(%v): vertex offset = %v", tt.in, got)
		}
	}
	if err := e.Apply(99, 1); !errors.Is(err, ErrUnknownMorph) {
		t.Errorf("err = %v, want ErrUnknownMorph", err)
	}
}

func TestVertexMorphRemoved(t *testing.T) {
	e := New(pmxtest.MorphRig(), nil, nil)
	_ = e.Apply(pmxtest.MorphSmile, 1)
	if len(e.MorphedVertices()) != 1 {
		t.Fatalf("morphed vertices = %v", e.MorphedVertices())
	}
	_ = e.Apply(pmxtest.MorphSmile, 0)
	if got := e.VertexOffset(2); got != (mgl32.Vec3{}) {
		t.Errorf("offset = %v after removal", got)
	}
	if len(e.MorphedVertices()) != 0 {
		t.Errorf("morphed vertices = %v after removal", e.MorphedVertices())
	}
}

func TestGroupMorph(t *testing.T) {
	bones := newBoneRecorder()
	e := New(pmxtest.MorphRig(), bones, nil)

	if err := e.Apply(pmxtest.MorphCombo, 1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := e.VertexOffset(2); got != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("vertex offset = %v", got)
	}
	if got := bones.t[pmxtest.RigHead]; got != (mgl32.Vec3{0, 0, 0.5}) {
		t.Errorf("head translation = %v, want half the nod", got)
	}

	// a direct application stacks with the group's contribution
	_ = e.Apply(pmxtest.MorphSmile, 1)
	if got := e.VertexOffset(2); got != (mgl32.Vec3{0, 2, 0}) {
		t.Errorf("vertex offset = %v with both applied", got)
	}
	_ = e.Apply(pmxtest.MorphCombo, 0)
	if got := e.VertexOffset(2); got != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("vertex offset = %v after removing the group", got)
	}
	if got := bones.q[pmxtest.RigHead]; got != mgl32.QuatIdent() {
		t.Errorf("head rotation = %v after removing the group", got)
	}
}

func TestGroupCycleTerminates(t *testing.T) {
	e := New(pmxtest.MorphRig(), nil, nil)
	if err := e.Apply(pmxtest.MorphLoop, 1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(e.MorphedVertices()) != 0 {
		t.Errorf("self-referencing group produced offsets")
	}
}

func TestFlipIndex(t *testing.T) {
	tests := []struct {
		n    int
		w    float32
		want int
	}{
		{2, 0, -1},
		{2, 0.33, -1},
		{2, 0.34, 0},
		{2, 0.5, 0},
		{2, 0.67, 1},
		{2, 1, 1},
		{3, 0.5, 1},
		{0, 1, -1},
	}
	for _, tt := range tests {
		if got := FlipIndex(tt.n, tt.w); got != tt.want {
			t.Errorf("FlipIndex(%d, %v) = %d, want %d", tt.n, tt.w, got, tt.want)
		}
	}
}

func TestFlipMorph(t *testing.T) {
	bones := newBoneRecorder()
	e := New(pmxtest.MorphRig(), bones, nil)

	_ = e.Apply(pmxtest.MorphFlipPick, 0.5)
	if got := e.VertexOffset(2); got != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("first child: vertex offset = %v", got)
	}

	_ = e.Apply(pmxtest.MorphFlipPick, 1)
	if got := e.VertexOffset(2); got != (mgl32.Vec3{}) {
		t.Errorf("second child: vertex offset = %v", got)
	}
	if got := bones.t[pmxtest.RigHead]; got != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("second child: head translation = %v", got)
	}
}

func TestMaterialMorph(t *testing.T) {
	e := New(pmxtest.MorphRig(), nil, nil)

	_ = e.Apply(pmxtest.MorphBlush, 0.5)
	c := e.MaterialColor(0)
	if want := (mgl32.Vec4{1, 0.75, 0.75, 1}); !c.Diffuse.ApproxEqual(want) {
		t.Errorf("diffuse = %v, want %v", c.Diffuse, want)
	}
	if e.Recomputes() != 1 {
		t.Fatalf("recomputes = %d", e.Recomputes())
	}

	// the same weight again changes nothing
	_ = e.Apply(pmxtest.MorphBlush, 0.5)
	_ = e.MaterialColor(0)
	if e.Recomputes() != 1 {
		t.Errorf("recomputes = %d after re-applying the same weight", e.Recomputes())
	}

	_ = e.Apply(pmxtest.MorphBlush, 1)
	_ = e.Apply(pmxtest.MorphBlushAll, 1)
	if got := e.MaterialColor(0).Diffuse; !got.ApproxEqual(mgl32.Vec4{1.2, 0.5, 0.5, 1}) {
		t.Errorf("material 0 diffuse = %v", got)
	}
	if got := e.MaterialColor(1).Diffuse; !got.ApproxEqual(mgl32.Vec4{1.2, 1, 1, 1}) {
		t.Errorf("material 1 diffuse = %v", got)
	}
	if got := e.MaterialColor(1).TextureTint; got != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Errorf("texture tint = %v", got)
	}

	e.Reset()
	if got := e.MaterialColor(0).Diffuse; got != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Errorf("diffuse after reset = %v", got)
	}
}

func TestUVMorph(t *testing.T) {
	e := New(pmxtest.MorphRig(), nil, nil)
	_ = e.Apply(pmxtest.MorphUVShift, 1)
	if got := e.UVOffset(0, 0); got != (mgl32.Vec4{0.5, 0, 0, 0}) {
		t.Errorf("uv offset = %v", got)
	}
	if got := e.UVOffset(0, 1); got != (mgl32.Vec4{}) {
		t.Errorf("extra channel offset = %v", got)
	}
	if got := e.UVOffset(0, 9); got != (mgl32.Vec4{}) {
		t.Errorf("bad channel offset = %v", got)
	}
}

func TestImpulseMorph(t *testing.T) {
	m := pmxtest.MorphRig()
	g, err := skeleton.New(m)
	if err != nil {
		t.Fatalf("skeleton.New: %v", err)
	}
	bridge := skeleton.NewBridge(g, m)
	e := New(m, g, bridge)

	if err := e.Apply(pmxtest.MorphPush, 1); !errors.Is(err, ErrKinematicImpulse) {
		t.Fatalf("err = %v, want ErrKinematicImpulse", err)
	}
	if e.Weight(pmxtest.MorphPush) != 0 || bridge.Pending() != 0 {
		t.Errorf("failed impulse changed state: weight %v, pending %d", e.Weight(pmxtest.MorphPush), bridge.Pending())
	}

	m.Morphs[pmxtest.MorphPush].Offsets[0] = pmx.ImpulseOffset{Body: 1, Velocity: mgl32.Vec3{0, 0, 1}}
	if err := e.Apply(pmxtest.MorphPush, 1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if bridge.Pending() != 1 {
		t.Errorf("pending = %d", bridge.Pending())
	}
}
