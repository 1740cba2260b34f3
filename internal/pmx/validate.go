package pmx

import "fmt"

// validate checks every cross-section reference and the bone-parent tree.
func validate(m *Model) error {
	nv, nt, nm := len(m.Vertices), len(m.Textures), len(m.Materials)
	nb, nmo, nr := len(m.Bones), len(m.Morphs), len(m.RigidBodies)

	ref := func(section string, item int, field string, idx Index, n int, optional bool) error {
		if idx == None && optional {
			return nil
		}
		if !idx.Valid(n) {
			return &ReferenceError{Section: section, Item: item, Field: field, Index: idx, Len: n}
		}
		return nil
	}

	for i := range m.Vertices {
		v := &m.Vertices[i]
		for k, b := range v.Bones {
			if err := ref("vertex", i, fmt.Sprintf("bone[%d]", k), b, nb, true); err != nil {
				return err
			}
		}
	}

	for i, f := range m.Faces {
		if err := ref("face", i/3, "vertex", f, nv, false); err != nil {
			return err
		}
	}

	var faceTotal int64
	for i := range m.Materials {
		mat := &m.Materials[i]
		if err := ref("material", i, "texture", mat.Texture, nt, true); err != nil {
			return err
		}
		if err := ref("material", i, "sphere", mat.Sphere, nt, true); err != nil {
			return err
		}
		if !mat.SharedToon {
			if err := ref("material", i, "toon", mat.Toon, nt, true); err != nil {
				return err
			}
		}
		faceTotal += int64(mat.FaceCount)
	}
	if len(m.Materials) > 0 && faceTotal != int64(len(m.Faces)) {
		return &FormatError{Field: "material face counts", Reason: fmt.Sprintf("sum %d, face indices %d", faceTotal, len(m.Faces))}
	}

	for i := range m.Bones {
		b := &m.Bones[i]
		if err := ref("bone", i, "parent", b.Parent, nb, true); err != nil {
			return err
		}
		if b.Has(BoneTailIsBone) {
			if err := ref("bone", i, "tail", b.TailBone, nb, true); err != nil {
				return err
			}
		}
		if b.Has(BoneInheritRotation) || b.Has(BoneInheritTranslation) {
			if err := ref("bone", i, "inherit", b.Inherit.Bone, nb, true); err != nil {
				return err
			}
		}
		if b.IK != nil {
			if err := ref("bone", i, "ik.target", b.IK.Target, nb, true); err != nil {
				return err
			}
			for j, l := range b.IK.Links {
				if err := ref("bone", i, fmt.Sprintf("ik.links[%d]", j), l.Bone, nb, true); err != nil {
					return err
				}
			}
		}
	}

	for i := range m.Morphs {
		mo := &m.Morphs[i]
		for j, off := range mo.Offsets {
			if off == nil || off.Kind() != mo.Kind {
				return &FormatError{Field: "morph offset", Reason: fmt.Sprintf("morph %d offset %d does not match kind %s", i, j, mo.Kind)}
			}
			var err error
			switch o := off.(type) {
			case VertexOffset:
				err = ref("morph", i, "vertex", o.Vertex, nv, false)
			case UVOffset:
				err = ref("morph", i, "vertex", o.Vertex, nv, false)
			case BoneOffset:
				err = ref("morph", i, "bone", o.Bone, nb, false)
			case MaterialOffset:
				err = ref("morph", i, "material", o.Material, nm, true)
			case GroupOffset:
				err = ref("morph", i, "group", o.Morph, nmo, true)
			case FlipOffset:
				err = ref("morph", i, "flip", o.Morph, nmo, true)
			case ImpulseOffset:
				err = ref("morph", i, "rigid body", o.Body, nr, false)
			}
			if err != nil {
				return err
			}
		}
	}

	for i := range m.DisplayFrames {
		for _, e := range m.DisplayFrames[i].Elements {
			n := nb
			field := "bone"
			if e.Target == FrameMorph {
				n, field = nmo, "morph"
			}
			if err := ref("display frame", i, field, e.Index, n, true); err != nil {
				return err
			}
		}
	}

	for i := range m.RigidBodies {
		if err := ref("rigid body", i, "bone", m.RigidBodies[i].Bone, nb, true); err != nil {
			return err
		}
	}

	for i := range m.Joints {
		j := &m.Joints[i]
		if err := ref("joint", i, "body a", j.BodyA, nr, true); err != nil {
			return err
		}
		if err := ref("joint", i, "body b", j.BodyB, nr, true); err != nil {
			return err
		}
	}

	for i := range m.SoftBodies {
		sb := &m.SoftBodies[i]
		if err := ref("soft body", i, "material", sb.Material, nm, true); err != nil {
			return err
		}
		for _, a := range sb.Anchors {
			if err := ref("soft body", i, "anchor body", a.Body, nr, false); err != nil {
				return err
			}
			if err := ref("soft body", i, "anchor vertex", a.Vertex, nv, false); err != nil {
				return err
			}
		}
		for _, p := range sb.Pins {
			if err := ref("soft body", i, "pin", p, nv, false); err != nil {
				return err
			}
		}
	}

	return checkBoneCycles(m.Bones)
}

// checkBoneCycles follows parent links from every bone; a chain longer than
// the bone count can only be a loop.
func checkBoneCycles(bones []Bone) error {
	const (
		unvisited = iota
		active
		done
	)
	state := make([]uint8, len(bones))
	for start := range bones {
		if state[start] != unvisited {
			continue
		}
		var path []Index
		i := Index(start)
		for i != None && state[i] == unvisited {
			state[i] = active
			path = append(path, i)
			i = bones[i].Parent
		}
		if i != None && state[i] == active {
			for k, p := range path {
				if p == i {
					return &CycleError{Kind: "bone parent", Path: append(path[k:], i)}
				}
			}
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

// Validate runs the post-parse consistency checks on a model built in code.
func Validate(m *Model) error {
	return validate(m)
}
