package pmx

import "github.com/go-gl/mathgl/mgl32"

// Index addresses an entity inside one of the model's ordered sections.
// None marks an absent reference.
type Index int32

// None is the decoded form of the all-ones index of any width.
const None Index = -1

// Valid reports whether i refers to an entity in a section of length n.
func (i Index) Valid(n int) bool {
	return i >= 0 && int(i) < n
}

// TextEncoding selects how length-prefixed strings are stored.
type TextEncoding uint8

const (
	UTF16LE TextEncoding = 0
	UTF8    TextEncoding = 1
)

// SizeInfo is the per-file table of text encoding and index widths.
type SizeInfo struct {
	Encoding      TextEncoding
	ExtraUVs      uint8
	VertexIndex   uint8
	TextureIndex  uint8
	MaterialIndex uint8
	BoneIndex     uint8
	MorphIndex    uint8
	RigidIndex    uint8
}

// Header holds the magic, version and size table.
type Header struct {
	Magic   string
	Version float32
	Sizes   SizeInfo
}

// AtLeast21 reports whether version-2.1 features are permitted.
func (h Header) AtLeast21() bool {
	return h.Version >= 2.1-1e-4
}

// Weighting is the vertex skinning scheme.
type Weighting uint8

const (
	BDEF1 Weighting = iota
	BDEF2
	BDEF4
	SDEF
	QDEF // 2.1, same layout as BDEF4
)

func (w Weighting) String() string {
	switch w {
	case BDEF1:
		return "BDEF1"
	case BDEF2:
		return "BDEF2"
	case BDEF4:
		return "BDEF4"
	case SDEF:
		return "SDEF"
	case QDEF:
		return "QDEF"
	}
	return "unknown"
}

// Vertex is one skinned mesh vertex.
// For BDEF2 and SDEF, Weights holds {w, 1-w, 0, 0}.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	ExtraUV  [4]mgl32.Vec4

	Weighting Weighting
	Bones     [4]Index
	Weights   [4]float32

	SDEFC  mgl32.Vec3
	SDEFR0 mgl32.Vec3
	SDEFR1 mgl32.Vec3

	EdgeScale float32
}

type MaterialFlags uint8

const (
	MaterialDoubleSided MaterialFlags = 1 << iota
	MaterialGroundShadow
	MaterialCastShadow
	MaterialReceiveShadow
	MaterialEdge
	MaterialVertexColor // 2.1
	MaterialPoint       // 2.1
	MaterialLine        // 2.1
)

// SphereMode selects how the sphere map is blended.
type SphereMode uint8

const (
	SphereOff SphereMode = iota
	SphereMultiply
	SphereAdd
	SphereSubTexture
)

// Material is a render material covering FaceCount consecutive face indices.
type Material struct {
	Name   string
	NameEN string

	Diffuse     mgl32.Vec4
	Specular    mgl32.Vec3
	Specularity float32
	Ambient     mgl32.Vec3
	Flags       MaterialFlags
	EdgeColor   mgl32.Vec4
	EdgeSize    float32

	Texture    Index
	Sphere     Index
	SphereMode SphereMode

	// SharedToon selects one of the ten built-in toon textures (Toon is 0-9);
	// otherwise Toon is a texture index.
	SharedToon bool
	Toon       Index

	Memo      string
	FaceCount int32
}

type BoneFlags uint16

const (
	BoneTailIsBone BoneFlags = 1 << iota
	BoneRotatable
	BoneTranslatable
	BoneVisible
	BoneEnabled
	BoneIK
	_
	BoneLocalInherit
	BoneInheritRotation
	BoneInheritTranslation
	BoneFixedAxis
	BoneLocalAxis
	BoneAfterPhysics
	BoneExternalParent
)

// AngleLimit is an Euler-XYZ box in radians.
type AngleLimit struct {
	Lower mgl32.Vec3
	Upper mgl32.Vec3
}

// IKLink is one chain member; Limit is nil when unconstrained.
type IKLink struct {
	Bone  Index
	Limit *AngleLimit
}

// IK describes the chain solved for an IK-flagged bone.
// Links are ordered tip-most first.
type IK struct {
	Target     Index
	Loops      int32
	AngleLimit float32
	Links      []IKLink
}

// Inherit is the "grant" relation: a bone copies part of another bone's motion.
type Inherit struct {
	Bone Index
	Rate float32
}

type Bone struct {
	Name   string
	NameEN string

	Position mgl32.Vec3
	Parent   Index
	Layer    int32
	Flags    BoneFlags

	TailBone   Index
	TailOffset mgl32.Vec3

	Inherit Inherit

	FixedAxis  mgl32.Vec3
	LocalAxisX mgl32.Vec3
	LocalAxisZ mgl32.Vec3

	ExternalParent int32

	IK *IK
}

func (b *Bone) Has(f BoneFlags) bool {
	return b.Flags&f != 0
}

// MorphPanel is the editor panel a morph is shown in.
type MorphPanel uint8

const (
	PanelSystem MorphPanel = iota
	PanelEyebrow
	PanelEye
	PanelMouth
	PanelOther
)

type MorphKind uint8

const (
	MorphGroup MorphKind = iota
	MorphVertex
	MorphBone
	MorphUV
	MorphUV1
	MorphUV2
	MorphUV3
	MorphUV4
	MorphMaterial
	MorphFlip    // 2.1
	MorphImpulse // 2.1
)

func (k MorphKind) String() string {
	switch k {
	case MorphGroup:
		return "group"
	case MorphVertex:
		return "vertex"
	case MorphBone:
		return "bone"
	case MorphUV:
		return "uv"
	case MorphUV1, MorphUV2, MorphUV3, MorphUV4:
		return "extra-uv"
	case MorphMaterial:
		return "material"
	case MorphFlip:
		return "flip"
	case MorphImpulse:
		return "impulse"
	}
	return "unknown"
}

// UVChannel returns 0 for the base UV and 1-4 for extra channels.
func (k MorphKind) UVChannel() (int, bool) {
	if k < MorphUV || k > MorphUV4 {
		return 0, false
	}
	return int(k - MorphUV), true
}

// MorphOffset is one payload entry of a morph. The set of implementations is
// closed; use a type switch.
type MorphOffset interface {
	Kind() MorphKind
	morphOffset()
}

type VertexOffset struct {
	Vertex Index
	Offset mgl32.Vec3
}

// UVOffset applies to the channel of its morph kind.
type UVOffset struct {
	Vertex  Index
	Offset  mgl32.Vec4
	Channel uint8
}

type BoneOffset struct {
	Bone        Index
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
}

// MaterialOp selects how a material offset combines with the base value.
type MaterialOp uint8

const (
	MaterialMultiply MaterialOp = iota
	MaterialAdd
)

// MaterialOffset targets every material when Material is None.
type MaterialOffset struct {
	Material    Index
	Op          MaterialOp
	Diffuse     mgl32.Vec4
	Specular    mgl32.Vec3
	Specularity float32
	Ambient     mgl32.Vec3
	EdgeColor   mgl32.Vec4
	EdgeSize    float32
	TextureTint mgl32.Vec4
	SphereTint  mgl32.Vec4
	ToonTint    mgl32.Vec4
}

type GroupOffset struct {
	Morph Index
	Rate  float32
}

type FlipOffset struct {
	Morph Index
	Rate  float32
}

type ImpulseOffset struct {
	Body     Index
	Local    bool
	Velocity mgl32.Vec3
	Torque   mgl32.Vec3
}

func (VertexOffset) Kind() MorphKind   { return MorphVertex }
func (o UVOffset) Kind() MorphKind     { return MorphUV + MorphKind(o.Channel) }
func (BoneOffset) Kind() MorphKind     { return MorphBone }
func (MaterialOffset) Kind() MorphKind { return MorphMaterial }
func (GroupOffset) Kind() MorphKind    { return MorphGroup }
func (FlipOffset) Kind() MorphKind     { return MorphFlip }
func (ImpulseOffset) Kind() MorphKind  { return MorphImpulse }

func (VertexOffset) morphOffset()   {}
func (UVOffset) morphOffset()       {}
func (BoneOffset) morphOffset()     {}
func (MaterialOffset) morphOffset() {}
func (GroupOffset) morphOffset()    {}
func (FlipOffset) morphOffset()     {}
func (ImpulseOffset) morphOffset()  {}

type Morph struct {
	Name    string
	NameEN  string
	Panel   MorphPanel
	Kind    MorphKind
	Offsets []MorphOffset
}

// FrameTarget is a display-frame entry kind.
type FrameTarget uint8

const (
	FrameBone FrameTarget = iota
	FrameMorph
)

type FrameElement struct {
	Target FrameTarget
	Index  Index
}

// DisplayFrame groups bones and morphs for editor UIs.
type DisplayFrame struct {
	Name     string
	NameEN   string
	Special  bool
	Elements []FrameElement
}

type RigidShape uint8

const (
	ShapeSphere RigidShape = iota
	ShapeBox
	ShapeCapsule
)

// PhysicsMode decides who drives whom between a bone and its rigid body.
type PhysicsMode uint8

const (
	// PhysicsKinematic bodies follow their bone.
	PhysicsKinematic PhysicsMode = iota
	// PhysicsDynamic bodies are simulated and drive their bone.
	PhysicsDynamic
	// PhysicsAligned bodies drive the bone position only.
	PhysicsAligned
)

func (m PhysicsMode) String() string {
	switch m {
	case PhysicsKinematic:
		return "kinematic"
	case PhysicsDynamic:
		return "dynamic"
	case PhysicsAligned:
		return "aligned-dynamic"
	}
	return "unknown"
}

type RigidBody struct {
	Name   string
	NameEN string

	Bone           Index
	Group          uint8
	NoCollideMask  uint16
	Shape          RigidShape
	Size           mgl32.Vec3
	Position       mgl32.Vec3
	Rotation       mgl32.Vec3 // Euler radians
	Mass           float32
	LinearDamping  float32
	AngularDamping float32
	Restitution    float32
	Friction       float32
	Mode           PhysicsMode
}

type JointKind uint8

const (
	JointSpring6DOF JointKind = iota
	Joint6DOF                 // 2.1
	JointP2P                  // 2.1
	JointConeTwist            // 2.1
	JointSlider               // 2.1
	JointHinge                // 2.1
)

type Joint struct {
	Name   string
	NameEN string
	Kind   JointKind

	BodyA Index
	BodyB Index

	Position    mgl32.Vec3
	Rotation    mgl32.Vec3
	MinPosition mgl32.Vec3
	MaxPosition mgl32.Vec3
	MinRotation mgl32.Vec3
	MaxRotation mgl32.Vec3
	SpringPos   mgl32.Vec3
	SpringRot   mgl32.Vec3
}

type SoftBodyShape uint8

const (
	SoftTriMesh SoftBodyShape = iota
	SoftRope
)

type SoftAnchor struct {
	Body     Index
	Vertex   Index
	NearMode bool
}

// SoftBody is only present in version 2.1 files. The solver coefficient
// blocks are kept as read.
type SoftBody struct {
	Name   string
	NameEN string

	Shape           SoftBodyShape
	Material        Index
	Group           uint8
	NoCollideMask   uint16
	Flags           uint8
	BLinkDistance   int32
	Clusters        int32
	TotalMass       float32
	CollisionMargin float32
	AeroModel       int32

	Config     [12]float32
	Cluster    [6]float32
	Iterations [4]int32
	Stiffness  [3]float32

	Anchors []SoftAnchor
	Pins    []Index
}

// Model is the immutable parse result.
type Model struct {
	Header Header

	Name          string
	NameEN        string
	Comment       string
	CommentEN     string
	Vertices      []Vertex
	Faces         []Index // three per triangle
	Textures      []string
	Materials     []Material
	Bones         []Bone
	Morphs        []Morph
	DisplayFrames []DisplayFrame
	RigidBodies   []RigidBody
	Joints        []Joint
	SoftBodies    []SoftBody
}

// BoneIndex returns the first bone whose Japanese or English name matches.
func (m *Model) BoneIndex(name string) (Index, bool) {
	for i := range m.Bones {
		if m.Bones[i].Name == name {
			return Index(i), true
		}
	}
	for i := range m.Bones {
		if m.Bones[i].NameEN != "" && m.Bones[i].NameEN == name {
			return Index(i), true
		}
	}
	return None, false
}

// MorphIndex returns the first morph whose Japanese or English name matches.
func (m *Model) MorphIndex(name string) (Index, bool) {
	for i := range m.Morphs {
		if m.Morphs[i].Name == name {
			return Index(i), true
		}
	}
	for i := range m.Morphs {
		if m.Morphs[i].NameEN != "" && m.Morphs[i].NameEN == name {
			return Index(i), true
		}
	}
	return None, false
}
