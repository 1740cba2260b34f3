package pmxtest

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/pmx"
)

const standardBone = pmx.BoneRotatable | pmx.BoneTranslatable | pmx.BoneVisible | pmx.BoneEnabled

// Bone returns an enabled, rotatable, translatable bone with no tail.
func Bone(name string, pos mgl32.Vec3, parent pmx.Index) pmx.Bone {
	return pmx.Bone{
		Name:     name,
		Position: pos,
		Parent:   parent,
		Flags:    standardBone,
		TailBone: pmx.None,
		Inherit:  pmx.Inherit{Bone: pmx.None},
	}
}

// Vertex returns a BDEF1 vertex bound to bone.
func Vertex(pos mgl32.Vec3, bone pmx.Index) pmx.Vertex {
	return pmx.Vertex{
		Position:  pos,
		Normal:    mgl32.Vec3{0, 0, 1},
		Weighting: pmx.BDEF1,
		Bones:     [4]pmx.Index{bone, pmx.None, pmx.None, pmx.None},
		Weights:   [4]float32{1, 0, 0, 0},
		EdgeScale: 1,
	}
}

// Material returns a white material covering faces face indices.
func Material(name string, faces int32) pmx.Material {
	return pmx.Material{
		Name:        name,
		Diffuse:     mgl32.Vec4{1, 1, 1, 1},
		Specular:    mgl32.Vec3{0.5, 0.5, 0.5},
		Specularity: 5,
		Ambient:     mgl32.Vec3{0.5, 0.5, 0.5},
		EdgeColor:   mgl32.Vec4{0, 0, 0, 1},
		EdgeSize:    1,
		Texture:     pmx.None,
		Sphere:      pmx.None,
		SharedToon:  true,
		Toon:        0,
		FaceCount:   faces,
	}
}

// Bones of ArmRig.
const (
	ArmUpper pmx.Index = iota
	ArmLower
	ArmTip
	ArmIK
)

// ArmRig is a two-link chain along +Y (upper at the origin, lower at y=1,
// tip at y=2) with an IK bone at (1,1,0) targeting the tip. The IK bone has
// no parent, so the goal stays where it is placed.
func ArmRig() *pmx.Model {
	m := &pmx.Model{
		Header: pmx.Header{Magic: "PMX ", Version: 2.0, Sizes: DefaultSizes},
		Name:   "arm",
	}
	m.Bones = []pmx.Bone{
		Bone("upper", mgl32.Vec3{0, 0, 0}, pmx.None),
		Bone("lower", mgl32.Vec3{0, 1, 0}, ArmUpper),
		Bone("tip", mgl32.Vec3{0, 2, 0}, ArmLower),
		Bone("arm IK", mgl32.Vec3{1, 1, 0}, pmx.None),
	}
	ik := &m.Bones[ArmIK]
	ik.Flags |= pmx.BoneIK
	ik.IK = &pmx.IK{
		Target:     ArmTip,
		Loops:      50,
		AngleLimit: math.Pi,
		Links: []pmx.IKLink{
			{Bone: ArmLower},
			{Bone: ArmUpper},
		},
	}
	m.Vertices = []pmx.Vertex{
		Vertex(mgl32.Vec3{0, 0, 0}, ArmUpper),
		Vertex(mgl32.Vec3{0, 1, 0}, ArmLower),
		Vertex(mgl32.Vec3{0, 2, 0}, ArmTip),
	}
	m.Faces = []pmx.Index{0, 1, 2}
	m.Materials = []pmx.Material{Material("skin", 3)}
	return m
}

// Bones, morphs and bodies of MorphRig.
const (
	RigCenter pmx.Index = iota
	RigNeck
	RigHead
)

const (
	MorphNod pmx.Index = iota
	MorphSmile
	MorphBlush
	MorphBlushAll
	MorphCombo
	MorphLoop
	MorphFlipPick
	MorphPush
	MorphUVShift
)

// MorphRig is a small head rig with one morph of every kind. Its rigid body
// 0 is kinematic and body 1 is dynamic.
func MorphRig() *pmx.Model {
	m := &pmx.Model{
		Header: pmx.Header{Magic: "PMX ", Version: 2.1, Sizes: DefaultSizes},
		Name:   "morph rig",
	}
	m.Bones = []pmx.Bone{
		Bone("センター", mgl32.Vec3{0, 8, 0}, pmx.None),
		Bone("首", mgl32.Vec3{0, 15, 0}, RigCenter),
		Bone("頭", mgl32.Vec3{0, 16, 0}, RigNeck),
	}
	m.Bones[RigCenter].NameEN = "center"
	m.Bones[RigNeck].NameEN = "Neck"
	m.Bones[RigHead].NameEN = "Head"

	m.Vertices = []pmx.Vertex{
		Vertex(mgl32.Vec3{-1, 16, 0}, RigHead),
		Vertex(mgl32.Vec3{1, 16, 0}, RigHead),
		Vertex(mgl32.Vec3{0, 17, 0}, RigHead),
		Vertex(mgl32.Vec3{0, 8, 0}, RigCenter),
		Vertex(mgl32.Vec3{1, 8, 0}, RigCenter),
		Vertex(mgl32.Vec3{0, 9, 0}, RigCenter),
	}
	m.Faces = []pmx.Index{0, 1, 2, 3, 4, 5}
	m.Materials = []pmx.Material{Material("face", 3), Material("body", 3)}

	m.Morphs = []pmx.Morph{
		{Name: "うなずき", NameEN: "nod", Panel: pmx.PanelOther, Kind: pmx.MorphBone, Offsets: []pmx.MorphOffset{
			pmx.BoneOffset{Bone: RigHead, Translation: mgl32.Vec3{0, 0, 1}, Rotation: mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{1, 0, 0})},
		}},
		{Name: "笑い", NameEN: "smile", Panel: pmx.PanelEye, Kind: pmx.MorphVertex, Offsets: []pmx.MorphOffset{
			pmx.VertexOffset{Vertex: 2, Offset: mgl32.Vec3{0, 1, 0}},
		}},
		{Name: "照れ", NameEN: "blush", Panel: pmx.PanelOther, Kind: pmx.MorphMaterial, Offsets: []pmx.MorphOffset{
			pmx.MaterialOffset{Material: 0, Op: pmx.MaterialMultiply, Diffuse: mgl32.Vec4{1, 0.5, 0.5, 1}, Specular: mgl32.Vec3{1, 1, 1}, Specularity: 1, Ambient: mgl32.Vec3{1, 1, 1}, EdgeColor: mgl32.Vec4{1, 1, 1, 1}, EdgeSize: 1, TextureTint: mgl32.Vec4{1, 1, 1, 1}, SphereTint: mgl32.Vec4{1, 1, 1, 1}, ToonTint: mgl32.Vec4{1, 1, 1, 1}},
		}},
		{Name: "全体照れ", NameEN: "blush all", Panel: pmx.PanelOther, Kind: pmx.MorphMaterial, Offsets: []pmx.MorphOffset{
			pmx.MaterialOffset{Material: pmx.None, Op: pmx.MaterialAdd, Diffuse: mgl32.Vec4{0.2, 0, 0, 0}},
		}},
		{Name: "コンボ", NameEN: "combo", Panel: pmx.PanelOther, Kind: pmx.MorphGroup, Offsets: []pmx.MorphOffset{
			pmx.GroupOffset{Morph: MorphNod, Rate: 0.5},
			pmx.GroupOffset{Morph: MorphSmile, Rate: 1},
		}},
		{Name: "ループ", NameEN: "loop", Panel: pmx.PanelOther, Kind: pmx.MorphGroup, Offsets: []pmx.MorphOffset{
			pmx.GroupOffset{Morph: MorphLoop, Rate: 1},
		}},
		{Name: "切替", NameEN: "flip", Panel: pmx.PanelOther, Kind: pmx.MorphFlip, Offsets: []pmx.MorphOffset{
			pmx.FlipOffset{Morph: MorphSmile, Rate: 1},
			pmx.FlipOffset{Morph: MorphNod, Rate: 1},
		}},
		{Name: "押す", NameEN: "push", Panel: pmx.PanelOther, Kind: pmx.MorphImpulse, Offsets: []pmx.MorphOffset{
			pmx.ImpulseOffset{Body: 0, Velocity: mgl32.Vec3{0, 0, 1}},
		}},
		{Name: "UV", NameEN: "uv shift", Panel: pmx.PanelOther, Kind: pmx.MorphUV, Offsets: []pmx.MorphOffset{
			pmx.UVOffset{Vertex: 0, Offset: mgl32.Vec4{0.5, 0, 0, 0}},
		}},
	}

	m.DisplayFrames = []pmx.DisplayFrame{
		{Name: "Root", Special: true, Elements: []pmx.FrameElement{{Target: pmx.FrameBone, Index: RigCenter}}},
		{Name: "表情", NameEN: "Exp", Special: true, Elements: []pmx.FrameElement{{Target: pmx.FrameMorph, Index: MorphSmile}}},
	}

	m.RigidBodies = []pmx.RigidBody{
		{Name: "頭", Bone: RigHead, Shape: pmx.ShapeSphere, Size: mgl32.Vec3{1, 0, 0}, Position: mgl32.Vec3{0, 17, 0}, Mass: 1, Mode: pmx.PhysicsKinematic},
		{Name: "髪", Bone: RigNeck, Shape: pmx.ShapeCapsule, Size: mgl32.Vec3{0.5, 1, 0}, Position: mgl32.Vec3{0, 15, -1}, Mass: 1, Mode: pmx.PhysicsDynamic},
	}
	m.Joints = []pmx.Joint{
		{Name: "髪", Kind: pmx.JointSpring6DOF, BodyA: 0, BodyB: 1, Position: mgl32.Vec3{0, 16, -1}},
	}
	return m
}
