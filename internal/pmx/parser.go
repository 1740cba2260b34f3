// Package pmx decodes PMX 1.0, 2.0 and 2.1 character models into an
// immutable entity graph.
package pmx

import (
	"context"
	"fmt"
	"math"
)

const (
	magic       = "PMX "
	legacyMagic = "Pmx "
)

// Load parses a whole PMX file. On error the returned model is always nil.
func Load(data []byte) (*Model, error) {
	return LoadContext(context.Background(), data)
}

// LoadContext is Load with cancellation checked between sections.
func LoadContext(ctx context.Context, data []byte) (*Model, error) {
	d := &decoder{r: reader{data: data}, m: new(Model)}

	if err := d.header(); err != nil {
		return nil, err
	}

	sections := []struct {
		name string
		fn   func()
	}{
		{"text info", d.textInfo},
		{"vertices", d.vertices},
		{"faces", d.faces},
		{"textures", d.textures},
		{"materials", d.materials},
		{"bones", d.bones},
		{"morphs", d.morphs},
		{"display frames", d.displayFrames},
		{"rigid bodies", d.rigidBodies},
		{"joints", d.joints},
	}
	if d.m.Header.AtLeast21() {
		sections = append(sections, struct {
			name string
			fn   func()
		}{"soft bodies", d.softBodies})
	}

	for _, s := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.fn()
		if d.r.err != nil {
			return nil, fmt.Errorf("pmx: decoding %s: %w", s.name, d.r.err)
		}
	}

	if err := validate(d.m); err != nil {
		return nil, err
	}
	return d.m, nil
}

type decoder struct {
	r reader
	m *Model
}

func (d *decoder) sizes() SizeInfo {
	return d.m.Header.Sizes
}

func validVersion(v float32) bool {
	for _, ok := range []float32{1.0, 2.0, 2.1} {
		if math.Abs(float64(v-ok)) < 1e-4 {
			return true
		}
	}
	return false
}

func validWidth(n uint8) bool {
	return n == 1 || n == 2 || n == 4
}

func (d *decoder) header() error {
	r := &d.r
	h := &d.m.Header

	m := r.take(4)
	if r.err != nil {
		return r.err
	}
	h.Magic = string(m)
	if h.Magic != magic && h.Magic != legacyMagic {
		return &FormatError{Field: "magic", Reason: fmt.Sprintf("%q is not a PMX file", h.Magic)}
	}
	h.Version = r.f32()
	if r.err != nil {
		return r.err
	}
	if !validVersion(h.Version) {
		return &FormatError{Field: "version", Reason: fmt.Sprintf("unsupported version %g", h.Version)}
	}

	n := int(r.u8())
	if r.err == nil && n < 8 {
		return &FormatError{Field: "size info", Reason: fmt.Sprintf("%d entries, want at least 8", n)}
	}
	info := r.take(n)
	if r.err != nil {
		return r.err
	}
	h.Sizes = SizeInfo{
		Encoding:      TextEncoding(info[0]),
		ExtraUVs:      info[1],
		VertexIndex:   info[2],
		TextureIndex:  info[3],
		MaterialIndex: info[4],
		BoneIndex:     info[5],
		MorphIndex:    info[6],
		RigidIndex:    info[7],
	}
	s := h.Sizes
	if s.Encoding > UTF8 {
		return &FormatError{Field: "text encoding", Reason: fmt.Sprintf("unknown encoding %d", s.Encoding)}
	}
	if s.ExtraUVs > 4 {
		return &FormatError{Field: "extra uv count", Reason: fmt.Sprintf("%d exceeds 4", s.ExtraUVs)}
	}
	for _, w := range []struct {
		name  string
		width uint8
	}{
		{"vertex index size", s.VertexIndex},
		{"texture index size", s.TextureIndex},
		{"material index size", s.MaterialIndex},
		{"bone index size", s.BoneIndex},
		{"morph index size", s.MorphIndex},
		{"rigid body index size", s.RigidIndex},
	} {
		if !validWidth(w.width) {
			return &FormatError{Field: w.name, Reason: fmt.Sprintf("%d, want 1, 2 or 4", w.width)}
		}
	}
	r.enc = s.Encoding
	return nil
}

func (d *decoder) require21(feature string) {
	if !d.m.Header.AtLeast21() {
		d.r.fail(&UnsupportedFeatureError{Feature: feature, MinVersion: 2.1, Version: d.m.Header.Version})
	}
}

func (d *decoder) textInfo() {
	d.m.Name = d.r.text()
	d.m.NameEN = d.r.text()
	d.m.Comment = d.r.text()
	d.m.CommentEN = d.r.text()
}

func (d *decoder) vertices() {
	r, s := &d.r, d.sizes()
	minSize := 8*4 + 16*int(s.ExtraUVs) + 1 + int(s.BoneIndex) + 4
	n := r.count("vertex count", minSize)
	if n == 0 {
		return
	}
	d.m.Vertices = make([]Vertex, n)
	for i := range d.m.Vertices {
		v := &d.m.Vertices[i]
		v.Bones = [4]Index{None, None, None, None}
		v.Position = r.vec3()
		v.Normal = r.vec3()
		v.UV = r.vec2()
		for k := 0; k < int(s.ExtraUVs); k++ {
			v.ExtraUV[k] = r.vec4()
		}
		v.Weighting = Weighting(r.u8())
		switch v.Weighting {
		case BDEF1:
			v.Bones[0] = r.index(s.BoneIndex)
			v.Weights[0] = 1
		case BDEF2, SDEF:
			v.Bones[0] = r.index(s.BoneIndex)
			v.Bones[1] = r.index(s.BoneIndex)
			w := r.f32()
			v.Weights[0], v.Weights[1] = w, 1-w
			if v.Weighting == SDEF {
				v.SDEFC = r.vec3()
				v.SDEFR0 = r.vec3()
				v.SDEFR1 = r.vec3()
			}
		case BDEF4, QDEF:
			if v.Weighting == QDEF {
				d.require21("QDEF vertex weighting")
			}
			for k := 0; k < 4; k++ {
				v.Bones[k] = r.index(s.BoneIndex)
			}
			for k := 0; k < 4; k++ {
				v.Weights[k] = r.f32()
			}
		default:
			r.fail(&FormatError{Field: "vertex weighting", Reason: fmt.Sprintf("unknown method %d at vertex %d", v.Weighting, i)})
		}
		v.EdgeScale = r.f32()
		if r.err != nil {
			return
		}
	}
}

func (d *decoder) faces() {
	r, s := &d.r, d.sizes()
	n := r.count("face index count", int(s.VertexIndex))
	if n == 0 {
		return
	}
	if n%3 != 0 {
		r.fail(&FormatError{Field: "face index count", Reason: fmt.Sprintf("%d is not a multiple of 3", n)})
		return
	}
	d.m.Faces = make([]Index, n)
	for i := range d.m.Faces {
		d.m.Faces[i] = r.index(s.VertexIndex)
	}
}

func (d *decoder) textures() {
	r := &d.r
	n := r.count("texture count", 4)
	if n == 0 {
		return
	}
	d.m.Textures = make([]string, n)
	for i := range d.m.Textures {
		d.m.Textures[i] = r.text()
	}
}

func (d *decoder) materials() {
	r, s := &d.r, d.sizes()
	minSize := 4 + 4 + 16 + 12 + 4 + 12 + 1 + 16 + 4 + 2*int(s.TextureIndex) + 3 + 4 + 4
	n := r.count("material count", minSize)
	if n == 0 {
		return
	}
	d.m.Materials = make([]Material, n)
	for i := range d.m.Materials {
		m := &d.m.Materials[i]
		m.Name = r.text()
		m.NameEN = r.text()
		m.Diffuse = r.vec4()
		m.Specular = r.vec3()
		m.Specularity = r.f32()
		m.Ambient = r.vec3()
		m.Flags = MaterialFlags(r.u8())
		m.EdgeColor = r.vec4()
		m.EdgeSize = r.f32()
		m.Texture = r.index(s.TextureIndex)
		m.Sphere = r.index(s.TextureIndex)
		m.SphereMode = SphereMode(r.u8())
		m.SharedToon = r.u8() != 0
		if m.SharedToon {
			m.Toon = Index(r.u8())
		} else {
			m.Toon = r.index(s.TextureIndex)
		}
		m.Memo = r.text()
		m.FaceCount = r.i32()
		if r.err != nil {
			return
		}
		if m.FaceCount < 0 || m.FaceCount%3 != 0 {
			r.fail(&FormatError{Field: "material face count", Reason: fmt.Sprintf("material %d has %d", i, m.FaceCount)})
			return
		}
	}
}

func (d *decoder) bones() {
	r, s := &d.r, d.sizes()
	minSize := 4 + 4 + 12 + 2*int(s.BoneIndex) + 4 + 2
	n := r.count("bone count", minSize)
	if n == 0 {
		return
	}
	d.m.Bones = make([]Bone, n)
	for i := range d.m.Bones {
		b := &d.m.Bones[i]
		b.TailBone = None
		b.Inherit.Bone = None
		b.Name = r.text()
		b.NameEN = r.text()
		b.Position = r.vec3()
		b.Parent = r.index(s.BoneIndex)
		b.Layer = r.i32()
		b.Flags = BoneFlags(r.u16())

		if b.Has(BoneTailIsBone) {
			b.TailBone = r.index(s.BoneIndex)
		} else {
			b.TailOffset = r.vec3()
		}
		if b.Has(BoneInheritRotation) || b.Has(BoneInheritTranslation) {
			b.Inherit.Bone = r.index(s.BoneIndex)
			b.Inherit.Rate = r.f32()
		}
		if b.Has(BoneFixedAxis) {
			b.FixedAxis = r.vec3()
		}
		if b.Has(BoneLocalAxis) {
			b.LocalAxisX = r.vec3()
			b.LocalAxisZ = r.vec3()
		}
		if b.Has(BoneExternalParent) {
			b.ExternalParent = r.i32()
		}
		if b.Has(BoneIK) {
			ik := &IK{}
			ik.Target = r.index(s.BoneIndex)
			ik.Loops = r.i32()
			ik.AngleLimit = r.f32()
			links := r.count("ik link count", int(s.BoneIndex)+1)
			if links > 0 {
				ik.Links = make([]IKLink, links)
			}
			for j := range ik.Links {
				ik.Links[j].Bone = r.index(s.BoneIndex)
				if r.u8() != 0 {
					ik.Links[j].Limit = &AngleLimit{Lower: r.vec3(), Upper: r.vec3()}
				}
			}
			b.IK = ik
		}
		if r.err != nil {
			return
		}
	}
}

func (d *decoder) morphs() {
	r, s := &d.r, d.sizes()
	n := r.count("morph count", 4+4+1+1+4)
	if n == 0 {
		return
	}
	d.m.Morphs = make([]Morph, n)
	for i := range d.m.Morphs {
		m := &d.m.Morphs[i]
		m.Name = r.text()
		m.NameEN = r.text()
		m.Panel = MorphPanel(r.u8())
		m.Kind = MorphKind(r.u8())
		if r.err != nil {
			return
		}
		switch m.Kind {
		case MorphFlip:
			d.require21("flip morph")
		case MorphImpulse:
			d.require21("impulse morph")
		}
		if m.Kind > MorphImpulse {
			r.fail(&FormatError{Field: "morph kind", Reason: fmt.Sprintf("unknown kind %d at morph %d", m.Kind, i)})
			return
		}
		k := r.count("morph offset count", 1)
		if k > 0 {
			m.Offsets = make([]MorphOffset, k)
		}
		for j := range m.Offsets {
			m.Offsets[j] = d.morphOffset(m.Kind, s)
		}
		if r.err != nil {
			return
		}
	}
}

func (d *decoder) morphOffset(kind MorphKind, s SizeInfo) MorphOffset {
	r := &d.r
	switch kind {
	case MorphGroup:
		return GroupOffset{Morph: r.index(s.MorphIndex), Rate: r.f32()}
	case MorphFlip:
		return FlipOffset{Morph: r.index(s.MorphIndex), Rate: r.f32()}
	case MorphVertex:
		return VertexOffset{Vertex: r.index(s.VertexIndex), Offset: r.vec3()}
	case MorphBone:
		return BoneOffset{Bone: r.index(s.BoneIndex), Translation: r.vec3(), Rotation: r.quat()}
	case MorphUV, MorphUV1, MorphUV2, MorphUV3, MorphUV4:
		ch, _ := kind.UVChannel()
		return UVOffset{Vertex: r.index(s.VertexIndex), Offset: r.vec4(), Channel: uint8(ch)}
	case MorphMaterial:
		return MaterialOffset{
			Material:    r.index(s.MaterialIndex),
			Op:          MaterialOp(r.u8()),
			Diffuse:     r.vec4(),
			Specular:    r.vec3(),
			Specularity: r.f32(),
			Ambient:     r.vec3(),
			EdgeColor:   r.vec4(),
			EdgeSize:    r.f32(),
			TextureTint: r.vec4(),
			SphereTint:  r.vec4(),
			ToonTint:    r.vec4(),
		}
	case MorphImpulse:
		return ImpulseOffset{
			Body:     r.index(s.RigidIndex),
			Local:    r.u8() != 0,
			Velocity: r.vec3(),
			Torque:   r.vec3(),
		}
	}
	return nil
}

func (d *decoder) displayFrames() {
	r, s := &d.r, d.sizes()
	n := r.count("display frame count", 4+4+1+4)
	if n == 0 {
		return
	}
	d.m.DisplayFrames = make([]DisplayFrame, n)
	for i := range d.m.DisplayFrames {
		f := &d.m.DisplayFrames[i]
		f.Name = r.text()
		f.NameEN = r.text()
		f.Special = r.u8() != 0
		k := r.count("display frame element count", 2)
		if k > 0 {
			f.Elements = make([]FrameElement, k)
		}
		for j := range f.Elements {
			e := &f.Elements[j]
			e.Target = FrameTarget(r.u8())
			switch e.Target {
			case FrameBone:
				e.Index = r.index(s.BoneIndex)
			case FrameMorph:
				e.Index = r.index(s.MorphIndex)
			default:
				r.fail(&FormatError{Field: "display frame element", Reason: fmt.Sprintf("unknown target %d", e.Target)})
			}
		}
		if r.err != nil {
			return
		}
	}
}

func (d *decoder) rigidBodies() {
	r, s := &d.r, d.sizes()
	n := r.count("rigid body count", 4+4+int(s.BoneIndex)+1+2+1+36+20+1)
	if n == 0 {
		return
	}
	d.m.RigidBodies = make([]RigidBody, n)
	for i := range d.m.RigidBodies {
		b := &d.m.RigidBodies[i]
		b.Name = r.text()
		b.NameEN = r.text()
		b.Bone = r.index(s.BoneIndex)
		b.Group = r.u8()
		b.NoCollideMask = r.u16()
		b.Shape = RigidShape(r.u8())
		b.Size = r.vec3()
		b.Position = r.vec3()
		b.Rotation = r.vec3()
		b.Mass = r.f32()
		b.LinearDamping = r.f32()
		b.AngularDamping = r.f32()
		b.Restitution = r.f32()
		b.Friction = r.f32()
		b.Mode = PhysicsMode(r.u8())
		if r.err != nil {
			return
		}
		if b.Mode > PhysicsAligned {
			r.fail(&FormatError{Field: "rigid body mode", Reason: fmt.Sprintf("unknown mode %d at body %d", b.Mode, i)})
			return
		}
	}
}

func (d *decoder) joints() {
	r, s := &d.r, d.sizes()
	n := r.count("joint count", 4+4+1+2*int(s.RigidIndex)+96)
	if n == 0 {
		return
	}
	d.m.Joints = make([]Joint, n)
	for i := range d.m.Joints {
		j := &d.m.Joints[i]
		j.Name = r.text()
		j.NameEN = r.text()
		j.Kind = JointKind(r.u8())
		if r.err != nil {
			return
		}
		if j.Kind > JointHinge {
			r.fail(&FormatError{Field: "joint kind", Reason: fmt.Sprintf("unknown kind %d at joint %d", j.Kind, i)})
			return
		}
		if j.Kind != JointSpring6DOF {
			d.require21("non-spring joint")
		}
		j.BodyA = r.index(s.RigidIndex)
		j.BodyB = r.index(s.RigidIndex)
		j.Position = r.vec3()
		j.Rotation = r.vec3()
		j.MinPosition = r.vec3()
		j.MaxPosition = r.vec3()
		j.MinRotation = r.vec3()
		j.MaxRotation = r.vec3()
		j.SpringPos = r.vec3()
		j.SpringRot = r.vec3()
		if r.err != nil {
			return
		}
	}
}

func (d *decoder) softBodies() {
	r, s := &d.r, d.sizes()
	n := r.count("soft body count", 4+4+1+int(s.MaterialIndex)+1+2+1+4*6+4*12+4*6+4*4+4*3+4+4)
	if n == 0 {
		return
	}
	d.m.SoftBodies = make([]SoftBody, n)
	for i := range d.m.SoftBodies {
		b := &d.m.SoftBodies[i]
		b.Name = r.text()
		b.NameEN = r.text()
		b.Shape = SoftBodyShape(r.u8())
		b.Material = r.index(s.MaterialIndex)
		b.Group = r.u8()
		b.NoCollideMask = r.u16()
		b.Flags = r.u8()
		b.BLinkDistance = r.i32()
		b.Clusters = r.i32()
		b.TotalMass = r.f32()
		b.CollisionMargin = r.f32()
		b.AeroModel = r.i32()
		for k := range b.Config {
			b.Config[k] = r.f32()
		}
		for k := range b.Cluster {
			b.Cluster[k] = r.f32()
		}
		for k := range b.Iterations {
			b.Iterations[k] = r.i32()
		}
		for k := range b.Stiffness {
			b.Stiffness[k] = r.f32()
		}
		anchors := r.count("soft body anchor count", int(s.RigidIndex)+int(s.VertexIndex)+1)
		if anchors > 0 {
			b.Anchors = make([]SoftAnchor, anchors)
		}
		for k := range b.Anchors {
			b.Anchors[k] = SoftAnchor{
				Body:     r.index(s.RigidIndex),
				Vertex:   r.index(s.VertexIndex),
				NearMode: r.u8() != 0,
			}
		}
		pins := r.count("soft body pin count", int(s.VertexIndex))
		if pins > 0 {
			b.Pins = make([]Index, pins)
		}
		for k := range b.Pins {
			b.Pins[k] = r.index(s.VertexIndex)
		}
		if r.err != nil {
			return
		}
	}
}
