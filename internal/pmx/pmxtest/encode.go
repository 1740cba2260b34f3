// Package pmxtest serializes in-code models to PMX bytes and provides
// small fixture rigs for tests.
package pmxtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/pmx"
)

// DefaultSizes is a UTF-16 file with 2-byte vertex and 1-byte other indices.
var DefaultSizes = pmx.SizeInfo{
	Encoding:      pmx.UTF16LE,
	VertexIndex:   2,
	TextureIndex:  1,
	MaterialIndex: 1,
	BoneIndex:     1,
	MorphIndex:    1,
	RigidIndex:    1,
}

type writer struct {
	buf bytes.Buffer
	s   pmx.SizeInfo
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) i32(v int32)  { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) f32(v float32) {
	_ = binary.Write(&w.buf, binary.LittleEndian, math.Float32bits(v))
}

func (w *writer) vec2(v mgl32.Vec2) { w.f32(v[0]); w.f32(v[1]) }
func (w *writer) vec3(v mgl32.Vec3) { w.f32(v[0]); w.f32(v[1]); w.f32(v[2]) }
func (w *writer) vec4(v mgl32.Vec4) {
	for _, f := range v {
		w.f32(f)
	}
}

func (w *writer) bool(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) index(i pmx.Index, width uint8) {
	raw := uint32(i)
	switch width {
	case 1:
		w.u8(uint8(raw))
	case 2:
		w.u16(uint16(raw))
	default:
		_ = binary.Write(&w.buf, binary.LittleEndian, raw)
	}
}

func (w *writer) text(s string) {
	if w.s.Encoding == pmx.UTF8 {
		w.i32(int32(len(s)))
		w.buf.WriteString(s)
		return
	}
	units := utf16.Encode([]rune(s))
	w.i32(int32(2 * len(units)))
	for _, u := range units {
		w.u16(u)
	}
}

// Encode writes m using m.Header. An empty magic becomes "PMX " and a zero
// version becomes 2.0.
func Encode(m *pmx.Model) []byte {
	h := m.Header
	if h.Magic == "" {
		h.Magic = "PMX "
	}
	if h.Version == 0 {
		h.Version = 2.0
	}
	w := &writer{s: h.Sizes}
	s := h.Sizes

	w.buf.WriteString(h.Magic)
	w.f32(h.Version)
	w.u8(8)
	w.u8(uint8(s.Encoding))
	w.u8(s.ExtraUVs)
	w.u8(s.VertexIndex)
	w.u8(s.TextureIndex)
	w.u8(s.MaterialIndex)
	w.u8(s.BoneIndex)
	w.u8(s.MorphIndex)
	w.u8(s.RigidIndex)

	w.text(m.Name)
	w.text(m.NameEN)
	w.text(m.Comment)
	w.text(m.CommentEN)

	w.i32(int32(len(m.Vertices)))
	for i := range m.Vertices {
		v := &m.Vertices[i]
		w.vec3(v.Position)
		w.vec3(v.Normal)
		w.vec2(v.UV)
		for k := 0; k < int(s.ExtraUVs) && k < len(v.ExtraUV); k++ {
			w.vec4(v.ExtraUV[k])
		}
		w.u8(uint8(v.Weighting))
		switch v.Weighting {
		case pmx.BDEF1:
			w.index(v.Bones[0], s.BoneIndex)
		case pmx.BDEF2, pmx.SDEF:
			w.index(v.Bones[0], s.BoneIndex)
			w.index(v.Bones[1], s.BoneIndex)
			w.f32(v.Weights[0])
			if v.Weighting == pmx.SDEF {
				w.vec3(v.SDEFC)
				w.vec3(v.SDEFR0)
				w.vec3(v.SDEFR1)
			}
		default:
			for k := 0; k < 4; k++ {
				w.index(v.Bones[k], s.BoneIndex)
			}
			for k := 0; k < 4; k++ {
				w.f32(v.Weights[k])
			}
		}
		w.f32(v.EdgeScale)
	}

	w.i32(int32(len(m.Faces)))
	for _, f := range m.Faces {
		w.index(f, s.VertexIndex)
	}

	w.i32(int32(len(m.Textures)))
	for _, t := range m.Textures {
		w.text(t)
	}

	w.i32(int32(len(m.Materials)))
	for i := range m.Materials {
		mat := &m.Materials[i]
		w.text(mat.Name)
		w.text(mat.NameEN)
		w.vec4(mat.Diffuse)
		w.vec3(mat.Specular)
		w.f32(mat.Specularity)
		w.vec3(mat.Ambient)
		w.u8(uint8(mat.Flags))
		w.vec4(mat.EdgeColor)
		w.f32(mat.EdgeSize)
		w.index(mat.Texture, s.TextureIndex)
		w.index(mat.Sphere, s.TextureIndex)
		w.u8(uint8(mat.SphereMode))
		w.bool(mat.SharedToon)
		if mat.SharedToon {
			w.u8(uint8(mat.Toon))
		} else {
			w.index(mat.Toon, s.TextureIndex)
		}
		w.text(mat.Memo)
		w.i32(mat.FaceCount)
	}

	w.i32(int32(len(m.Bones)))
	for i := range m.Bones {
		b := &m.Bones[i]
		w.text(b.Name)
		w.text(b.NameEN)
		w.vec3(b.Position)
		w.index(b.Parent, s.BoneIndex)
		w.i32(b.Layer)
		w.u16(uint16(b.Flags))
		if b.Has(pmx.BoneTailIsBone) {
			w.index(b.TailBone, s.BoneIndex)
		} else {
			w.vec3(b.TailOffset)
		}
		if b.Has(pmx.BoneInheritRotation) || b.Has(pmx.BoneInheritTranslation) {
			w.index(b.Inherit.Bone, s.BoneIndex)
			w.f32(b.Inherit.Rate)
		}
		if b.Has(pmx.BoneFixedAxis) {
			w.vec3(b.FixedAxis)
		}
		if b.Has(pmx.BoneLocalAxis) {
			w.vec3(b.LocalAxisX)
			w.vec3(b.LocalAxisZ)
		}
		if b.Has(pmx.BoneExternalParent) {
			w.i32(b.ExternalParent)
		}
		if b.Has(pmx.BoneIK) && b.IK != nil {
			w.index(b.IK.Target, s.BoneIndex)
			w.i32(b.IK.Loops)
			w.f32(b.IK.AngleLimit)
			w.i32(int32(len(b.IK.Links)))
			for _, l := range b.IK.Links {
				w.index(l.Bone, s.BoneIndex)
				w.bool(l.Limit != nil)
				if l.Limit != nil {
					w.vec3(l.Limit.Lower)
					w.vec3(l.Limit.Upper)
				}
			}
		}
	}

	w.i32(int32(len(m.Morphs)))
	for i := range m.Morphs {
		mo := &m.Morphs[i]
		w.text(mo.Name)
		w.text(mo.NameEN)
		w.u8(uint8(mo.Panel))
		w.u8(uint8(mo.Kind))
		w.i32(int32(len(mo.Offsets)))
		for _, off := range mo.Offsets {
			w.morphOffset(off)
		}
	}

	w.i32(int32(len(m.DisplayFrames)))
	for i := range m.DisplayFrames {
		f := &m.DisplayFrames[i]
		w.text(f.Name)
		w.text(f.NameEN)
		w.bool(f.Special)
		w.i32(int32(len(f.Elements)))
		for _, e := range f.Elements {
			w.u8(uint8(e.Target))
			if e.Target == pmx.FrameBone {
				w.index(e.Index, s.BoneIndex)
			} else {
				w.index(e.Index, s.MorphIndex)
			}
		}
	}

	w.i32(int32(len(m.RigidBodies)))
	for i := range m.RigidBodies {
		b := &m.RigidBodies[i]
		w.text(b.Name)
		w.text(b.NameEN)
		w.index(b.Bone, s.BoneIndex)
		w.u8(b.Group)
		w.u16(b.NoCollideMask)
		w.u8(uint8(b.Shape))
		w.vec3(b.Size)
		w.vec3(b.Position)
		w.vec3(b.Rotation)
		w.f32(b.Mass)
		w.f32(b.LinearDamping)
		w.f32(b.AngularDamping)
		w.f32(b.Restitution)
		w.f32(b.Friction)
		w.u8(uint8(b.Mode))
	}

	w.i32(int32(len(m.Joints)))
	for i := range m.Joints {
		j := &m.Joints[i]
		w.text(j.Name)
		w.text(j.NameEN)
		w.u8(uint8(j.Kind))
		w.index(j.BodyA, s.RigidIndex)
		w.index(j.BodyB, s.RigidIndex)
		for _, v := range []mgl32.Vec3{j.Position, j.Rotation, j.MinPosition, j.MaxPosition, j.MinRotation, j.MaxRotation, j.SpringPos, j.SpringRot} {
			w.vec3(v)
		}
	}

	if h.Version >= 2.1-1e-4 {
		w.i32(int32(len(m.SoftBodies)))
		for i := range m.SoftBodies {
			w.softBody(&m.SoftBodies[i])
		}
	}

	return w.buf.Bytes()
}

func (w *writer) morphOffset(off pmx.MorphOffset) {
	s := w.s
	switch o := off.(type) {
	case pmx.GroupOffset:
		w.index(o.Morph, s.MorphIndex)
		w.f32(o.Rate)
	case pmx.FlipOffset:
		w.index(o.Morph, s.MorphIndex)
		w.f32(o.Rate)
	case pmx.VertexOffset:
		w.index(o.Vertex, s.VertexIndex)
		w.vec3(o.Offset)
	case pmx.BoneOffset:
		w.index(o.Bone, s.BoneIndex)
		w.vec3(o.Translation)
		w.vec3(o.Rotation.V)
		w.f32(o.Rotation.W)
	case pmx.UVOffset:
		w.index(o.Vertex, s.VertexIndex)
		w.vec4(o.Offset)
	case pmx.MaterialOffset:
		w.index(o.Material, s.MaterialIndex)
		w.u8(uint8(o.Op))
		w.vec4(o.Diffuse)
		w.vec3(o.Specular)
		w.f32(o.Specularity)
		w.vec3(o.Ambient)
		w.vec4(o.EdgeColor)
		w.f32(o.EdgeSize)
		w.vec4(o.TextureTint)
		w.vec4(o.SphereTint)
		w.vec4(o.ToonTint)
	case pmx.ImpulseOffset:
		w.index(o.Body, s.RigidIndex)
		w.bool(o.Local)
		w.vec3(o.Velocity)
		w.vec3(o.Torque)
	}
}

func (w *writer) softBody(b *pmx.SoftBody) {
	s := w.s
	w.text(b.Name)
	w.text(b.NameEN)
	w.u8(uint8(b.Shape))
	w.index(b.Material, s.MaterialIndex)
	w.u8(b.Group)
	w.u16(b.NoCollideMask)
	w.u8(b.Flags)
	w.i32(b.BLinkDistance)
	w.i32(b.Clusters)
	w.f32(b.TotalMass)
	w.f32(b.CollisionMargin)
	w.i32(b.AeroModel)
	for _, f := range b.Config {
		w.f32(f)
	}
	for _, f := range b.Cluster {
		w.f32(f)
	}
	for _, n := range b.Iterations {
		w.i32(n)
	}
	for _, f := range b.Stiffness {
		w.f32(f)
	}
	w.i32(int32(len(b.Anchors)))
	for _, a := range b.Anchors {
		w.index(a.Body, s.RigidIndex)
		w.index(a.Vertex, s.VertexIndex)
		w.bool(a.NearMode)
	}
	w.i32(int32(len(b.Pins)))
	for _, p := range b.Pins {
		w.index(p, s.VertexIndex)
	}
}
