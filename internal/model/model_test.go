package model

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/morph"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/pmx/pmxtest"
)

func loadRig(t *testing.T) *Model {
	t.Helper()
	m, err := LoadModel(pmxtest.Encode(pmxtest.MorphRig()))
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	return m
}

func skinnedAt(t *testing.T, m *Model, v int) mgl32.Vec3 {
	t.Helper()
	x, y, z, err := m.GetSkinnedPosition(v)
	if err != nil {
		t.Fatalf("GetSkinnedPosition(%d): %v", v, err)
	}
	return mgl32.Vec3{x, y, z}
}

func TestTranslateNeckTwice(t *testing.T) {
	m := loadRig(t)
	neck, err := m.GetBoneByName("Neck")
	if err != nil {
		t.Fatalf("GetBoneByName: %v", err)
	}
	start := neck.Position()

	neck.Translate(mgl32.Vec3{10, 0, 0})
	m.Update(1.0 / 60)
	neck.Translate(mgl32.Vec3{0, 10, 0})
	m.Update(1.0 / 60)

	if got, want := neck.Position(), start.Add(mgl32.Vec3{10, 10, 0}); got != want {
		t.Errorf("neck = %v, want %v", got, want)
	}
	if got := skinnedAt(t, m, 0); got != (mgl32.Vec3{9, 26, 0}) {
		t.Errorf("head vertex = %v", got)
	}
	if got := skinnedAt(t, m, 3); got != (mgl32.Vec3{0, 8, 0}) {
		t.Errorf("body vertex moved: %v", got)
	}
}

func TestBoneHandle(t *testing.T) {
	m := loadRig(t)
	head, err := m.GetBoneByName("頭")
	if err != nil {
		t.Fatalf("GetBoneByName: %v", err)
	}
	if head.Index() != pmxtest.RigHead || head.Name() != "頭" {
		t.Errorf("handle = %d %q", head.Index(), head.Name())
	}
	head.SetTranslation(mgl32.Vec3{0, 0, 3})
	head.SetRotation(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}))
	m.Update(0)
	if got := head.Position(); got != (mgl32.Vec3{0, 16, 3}) {
		t.Errorf("head = %v", got)
	}
	// (0,17,0) is one unit above the head; the quarter turn swings it to -X.
	if got := skinnedAt(t, m, 2); !got.ApproxEqualThreshold(mgl32.Vec3{-1, 16, 3}, 1e-5) {
		t.Errorf("vertex = %v", got)
	}

	if _, err := m.GetBoneByName("尻尾"); !errors.Is(err, ErrUnknownBone) {
		t.Errorf("err = %v, want ErrUnknownBone", err)
	}
}

func TestApplyMorphQueued(t *testing.T) {
	m := loadRig(t)
	if err := m.ApplyMorph("smile", 1); err != nil {
		t.Fatalf("ApplyMorph: %v", err)
	}
	if got := skinnedAt(t, m, 2); got != (mgl32.Vec3{0, 17, 0}) {
		t.Errorf("morph took effect before Update: %v", got)
	}
	m.Update(1.0 / 60)
	if got := skinnedAt(t, m, 2); got != (mgl32.Vec3{0, 18, 0}) {
		t.Errorf("vertex = %v after Update", got)
	}

	_ = m.ApplyMorph("笑い", 0.2)
	_ = m.ApplyMorph("笑い", 5)
	m.Update(1.0 / 60)
	if w := m.Morphs().Weight(pmxtest.MorphSmile); w != 1 {
		t.Errorf("weight = %v, want the last queued value clamped", w)
	}
}

func TestApplyMorphErrors(t *testing.T) {
	m := loadRig(t)
	tests := []struct {
		name   string
		morph  string
		weight float32
		want   error
	}{
		{"unknown name", "wink", 1, ErrUnknownMorph},
		{"kinematic impulse", "push", 1, morph.ErrKinematicImpulse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.ApplyMorph(tt.morph, tt.weight); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if err := m.ApplyMorph("push", 0); err != nil {
		t.Errorf("clearing an impulse morph: %v", err)
	}
}

func TestMaterialColorAfterUpdate(t *testing.T) {
	m := loadRig(t)
	_ = m.ApplyMorph("blush", 1)
	m.Update(1.0 / 60)
	if got := m.MaterialColor(0).Diffuse; !got.ApproxEqual(mgl32.Vec4{1, 0.5, 0.5, 1}) {
		t.Errorf("diffuse = %v", got)
	}
	if got := m.MaterialColor(1).Diffuse; got != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Errorf("untouched material diffuse = %v", got)
	}
}

func TestUVMorphFacade(t *testing.T) {
	m := loadRig(t)
	_ = m.ApplyMorph("uv shift", 1)
	m.Update(0)
	if got := m.UV(0); got != (mgl32.Vec2{0.5, 0}) {
		t.Errorf("uv = %v", got)
	}
}

func TestVertexRange(t *testing.T) {
	m := loadRig(t)
	for _, v := range []int{-1, 6, 100} {
		if _, _, _, err := m.GetSkinnedPosition(v); !errors.Is(err, ErrVertexRange) {
			t.Errorf("vertex %d: err = %v", v, err)
		}
	}
}

func TestSkinnedPositionsMatchSingle(t *testing.T) {
	m := loadRig(t)
	neck, _ := m.GetBoneByName("Neck")
	neck.SetRotation(mgl32.QuatRotate(0.3, mgl32.Vec3{1, 0, 0}))
	_ = m.ApplyMorph("smile", 0.5)
	m.Update(1.0 / 60)
	all := m.SkinnedPositions()
	for v := range all {
		if got := skinnedAt(t, m, v); got != all[v] {
			t.Errorf("vertex %d: %v vs %v", v, got, all[v])
		}
	}
}

func TestResetPose(t *testing.T) {
	m := loadRig(t)
	neck, _ := m.GetBoneByName("Neck")
	neck.Translate(mgl32.Vec3{1, 0, 0})
	_ = m.ApplyMorph("smile", 1)
	m.Update(0)
	m.ResetPose()
	m.Update(0)
	for v, vx := range m.Data().Vertices {
		if got := skinnedAt(t, m, v); got != vx.Position {
			t.Errorf("vertex %d = %v after reset", v, got)
		}
	}
}

type stepCounter struct {
	steps []float32
}

func (s *stepCounter) SetKinematicTransform(pmx.Index, mgl32.Mat4) error { return nil }
func (s *stepCounter) Step(dt float32) error                          { s.steps = append(s.steps, dt); return nil }
func (s *stepCounter) BodyTransform(pmx.Index) (mgl32.Mat4, error) {
	return mgl32.Mat4{}, errors.New("not simulated")
}
func (s *stepCounter) ApplyImpulse(pmx.Index, mgl32.Vec3, mgl32.Vec3, bool) error { return nil }

func TestUpdateStepsPhysics(t *testing.T) {
	m := loadRig(t)
	sim := &stepCounter{}
	m.Update(0.5)
	m.AttachPhysics(sim)
	m.Update(0.25)
	m.Update(0.25)
	if len(sim.steps) != 2 || sim.steps[0] != 0.25 {
		t.Errorf("steps = %v", sim.steps)
	}
	// unreadable dynamic bodies leave the animated pose
	if got := skinnedAt(t, m, 0); got != (mgl32.Vec3{-1, 16, 0}) {
		t.Errorf("vertex = %v", got)
	}
}

func identityMats(pmx.Index) mgl32.Mat4 { return mgl32.Ident4() }

func TestSkinWeighting(t *testing.T) {
	shift := mgl32.Translate3D(2, 0, 0)
	turn := mgl32.HomogRotate3DZ(mgl32.DegToRad(90))
	mats := func(i pmx.Index) mgl32.Mat4 {
		switch i {
		case 1:
			return shift
		case 2:
			return turn
		case 3:
			return mgl32.Translate3D(1, 0, 0).Mul4(turn)
		}
		return mgl32.Ident4()
	}
	p := mgl32.Vec3{1, 0, 0}

	tests := []struct {
		name string
		v    pmx.Vertex
		want mgl32.Vec3
	}{
		{
			name: "BDEF1",
			v:    pmx.Vertex{Weighting: pmx.BDEF1, Bones: [4]pmx.Index{1, pmx.None, pmx.None, pmx.None}},
			want: mgl32.Vec3{3, 0, 0},
		},
		{
			name: "BDEF2 half",
			v:    pmx.Vertex{Weighting: pmx.BDEF2, Bones: [4]pmx.Index{0, 1, pmx.None, pmx.None}, Weights: [4]float32{0.5, 0.5}},
			want: mgl32.Vec3{2, 0, 0},
		},
		{
			name: "BDEF4 unnormalized",
			v:    pmx.Vertex{Weighting: pmx.BDEF4, Bones: [4]pmx.Index{0, 1, 0, 0}, Weights: [4]float32{1, 1}},
			want: mgl32.Vec3{2, 0, 0},
		},
		{
			name: "SDEF single bone",
			v: pmx.Vertex{Weighting: pmx.SDEF, Bones: [4]pmx.Index{2, 0, pmx.None, pmx.None}, Weights: [4]float32{1, 0},
				SDEFC: mgl32.Vec3{0.5, 0, 0}, SDEFR0: mgl32.Vec3{0.5, 1, 0}, SDEFR1: mgl32.Vec3{0.5, -1, 0}},
			want: mgl32.Vec3{0, 1, 0},
		},
		{
			name: "SDEF common translation",
			v: pmx.Vertex{Weighting: pmx.SDEF, Bones: [4]pmx.Index{1, 1, pmx.None, pmx.None}, Weights: [4]float32{0.3, 0.7},
				SDEFC: mgl32.Vec3{0, 0, 0}, SDEFR0: mgl32.Vec3{0, 1, 0}, SDEFR1: mgl32.Vec3{0, -1, 0}},
			want: mgl32.Vec3{3, 0, 0},
		},
		{
			name: "QDEF rigid",
			v:    pmx.Vertex{Weighting: pmx.QDEF, Bones: [4]pmx.Index{3, pmx.None, pmx.None, pmx.None}, Weights: [4]float32{1}},
			want: mgl32.Vec3{1, 1, 0},
		},
		{
			name: "QDEF common translation",
			v:    pmx.Vertex{Weighting: pmx.QDEF, Bones: [4]pmx.Index{1, 1, pmx.None, pmx.None}, Weights: [4]float32{0.5, 0.5}},
			want: mgl32.Vec3{3, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := skin(&tt.v, p, mats); !got.ApproxEqualThreshold(tt.want, 1e-5) {
				t.Errorf("skin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkinAtRest(t *testing.T) {
	v := pmx.Vertex{Weighting: pmx.SDEF, Bones: [4]pmx.Index{0, 1, pmx.None, pmx.None}, Weights: [4]float32{0.4, 0.6},
		SDEFC: mgl32.Vec3{0, 1, 0}, SDEFR0: mgl32.Vec3{0, 1, 1}, SDEFR1: mgl32.Vec3{0, 1, -1}}
	p := mgl32.Vec3{0.5, 1.5, 0.25}
	for _, w := range []pmx.Weighting{pmx.BDEF2, pmx.BDEF4, pmx.SDEF, pmx.QDEF} {
		v.Weighting = w
		if got := skin(&v, p, identityMats); !got.ApproxEqualThreshold(p, 1e-5) {
			t.Errorf("%s at rest = %v, want %v", w, got, p)
		}
	}
}

func pushRig(t *testing.T, target pmx.Index, bone pmx.Index) *Model {
	t.Helper()
	data := pmxtest.MorphRig()
	data.RigidBodies[1].Bone = bone
	for i := range data.Morphs {
		if data.Morphs[i].NameEN == "push" {
			data.Morphs[i].Offsets = []pmx.MorphOffset{pmx.ImpulseOffset{Body: target, Velocity: mgl32.Vec3{0, 0, 1}}}
		}
	}
	m, err := New(data)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestImpulsesDroppedWithoutSimulator(t *testing.T) {
	m := pushRig(t, 1, pmxtest.RigNeck)
	for i := 0; i < 3; i++ {
		if err := m.ApplyMorph("push", 1); err != nil {
			t.Fatal(err)
		}
		m.Update(1.0 / 30)
		if n := m.Bridge().Pending(); n != 0 {
			t.Fatalf("frame %d: %d impulses pending", i, n)
		}
	}

	sim := &stepCounter{}
	m.AttachPhysics(sim)
	if err := m.ApplyMorph("push", 1); err != nil {
		t.Fatal(err)
	}
	m.Update(1.0 / 30)
	if n := m.Bridge().Pending(); n != 0 {
		t.Errorf("%d impulses pending after a simulated step", n)
	}
}

func TestImpulseOnBonelessBodyRejected(t *testing.T) {
	m := pushRig(t, 1, pmx.None)
	if err := m.ApplyMorph("push", 1); !errors.Is(err, morph.ErrKinematicImpulse) {
		t.Errorf("err = %v, want %v", err, morph.ErrKinematicImpulse)
	}
}
