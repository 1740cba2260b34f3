// Package morph blends weighted morphs of a PMX model into per-vertex,
// per-bone, per-material and per-UV offsets.
package morph

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
)

var (
	ErrUnknownMorph     = errors.New("morph: unknown morph")
	ErrKinematicImpulse = errors.New("morph: impulse targets a kinematic body")
)

// BoneSink receives the summed morph transform of a bone.
type BoneSink interface {
	SetMorphTransform(i pmx.Index, t mgl32.Vec3, q mgl32.Quat)
}

// ImpulseSink queues one-shot rigid-body impulses.
type ImpulseSink interface {
	Kinematic(body pmx.Index) bool
	QueueImpulse(body pmx.Index, velocity, torque mgl32.Vec3, local bool)
}

// leaf is a non-group morph reached from a root morph, with its effective
// weight after group rates and flip selection.
type leaf struct {
	morph  pmx.Index
	weight float32
}

type entry struct {
	origin pmx.Index
	leaf   pmx.Index
	weight float32
	offset pmx.MorphOffset
}

type touched struct {
	vertices  []pmx.Index
	uvs       [5][]pmx.Index
	bones     []pmx.Index
	materials []pmx.Index
}

// Engine holds the applied morph state of one model. It is not safe for
// concurrent use.
type Engine struct {
	m        *pmx.Model
	bones    BoneSink
	impulses ImpulseSink

	weights []float32
	touched map[pmx.Index]*touched

	vertex   map[pmx.Index][]entry
	uv       [5]map[pmx.Index][]entry
	bone     map[pmx.Index][]entry
	material map[pmx.Index][]entry

	matGen     []uint64
	matCache   []materialCache
	recomputes int
}

// New creates an engine for m. bones and impulses may be nil.
func New(m *pmx.Model, bones BoneSink, impulses ImpulseSink) *Engine {
	e := &Engine{
		m:        m,
		bones:    bones,
		impulses: impulses,
		weights:  make([]float32, len(m.Morphs)),
		touched:  make(map[pmx.Index]*touched),
		vertex:   make(map[pmx.Index][]entry),
		bone:     make(map[pmx.Index][]entry),
		material: make(map[pmx.Index][]entry),
		matGen:   make([]uint64, len(m.Materials)),
		matCache: make([]materialCache, len(m.Materials)),
	}
	for c := range e.uv {
		e.uv[c] = make(map[pmx.Index][]entry)
	}
	return e
}

// Len returns the number of morphs.
func (e *Engine) Len() int { return len(e.weights) }

// Weight returns the weight last applied to morph i.
func (e *Engine) Weight(i pmx.Index) float32 {
	if !i.Valid(len(e.weights)) {
		return 0
	}
	return e.weights[i]
}

// Apply sets the weight of morph i, clamped to [0,1]. Every offset the morph
// contributed before is replaced; weight 0 removes them. Re-applying the
// current weight does nothing.
func (e *Engine) Apply(i pmx.Index, weight float32) error {
	if !i.Valid(len(e.weights)) {
		return fmt.Errorf("%w: index %d", ErrUnknownMorph, i)
	}
	if weight != weight || weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	if weight == e.weights[i] {
		return nil
	}

	var leaves []leaf
	if weight > 0 {
		leaves = e.expand(i, weight)
		if e.m.Morphs[i].Kind == pmx.MorphImpulse {
			if err := e.checkImpulse(i); err != nil {
				return err
			}
		}
	}

	old := e.clear(i)
	e.weights[i] = weight
	t := &touched{}
	for _, l := range leaves {
		e.add(i, l, t)
	}
	e.touched[i] = t

	e.pushBones(old.bones, t.bones)
	e.bumpMaterials(old.materials, t.materials)
	return nil
}

// Reset removes every applied morph.
func (e *Engine) Reset() {
	for i := range e.weights {
		if e.weights[i] != 0 {
			_ = e.Apply(pmx.Index(i), 0)
		}
	}
}

// Check reports whether morph i can be applied at a positive weight.
func (e *Engine) Check(i pmx.Index) error {
	if !i.Valid(len(e.weights)) {
		return fmt.Errorf("%w: index %d", ErrUnknownMorph, i)
	}
	if e.m.Morphs[i].Kind == pmx.MorphImpulse {
		return e.checkImpulse(i)
	}
	return nil
}

func (e *Engine) checkImpulse(i pmx.Index) error {
	if e.impulses == nil {
		return nil
	}
	for _, off := range e.m.Morphs[i].Offsets {
		o, ok := off.(pmx.ImpulseOffset)
		if ok && e.impulses.Kinematic(o.Body) {
			return fmt.Errorf("%w: morph %q body %d", ErrKinematicImpulse, e.m.Morphs[i].Name, o.Body)
		}
	}
	return nil
}

// expand flattens group and flip morphs below root into weighted leaves.
// A morph already on the expansion stack is skipped, which bounds
// self-referencing and mutually recursive groups.
func (e *Engine) expand(root pmx.Index, weight float32) []leaf {
	var out []leaf
	var stack []pmx.Index
	var walk func(i pmx.Index, w float32)
	walk = func(i pmx.Index, w float32) {
		if !i.Valid(len(e.m.Morphs)) {
			return
		}
		for _, s := range stack {
			if s == i {
				logging.Debug("morph: group cycle skipped", "morph", e.m.Morphs[root].Name, "repeat", e.m.Morphs[i].Name)
				return
			}
		}
		mo := &e.m.Morphs[i]
		switch mo.Kind {
		case pmx.MorphGroup:
			stack = append(stack, i)
			for _, off := range mo.Offsets {
				if g, ok := off.(pmx.GroupOffset); ok {
					walk(g.Morph, w*g.Rate)
				}
			}
			stack = stack[:len(stack)-1]
		case pmx.MorphFlip:
			k := FlipIndex(len(mo.Offsets), w)
			if k < 0 {
				return
			}
			f, ok := mo.Offsets[k].(pmx.FlipOffset)
			if !ok {
				return
			}
			stack = append(stack, i)
			walk(f.Morph, f.Rate)
			stack = stack[:len(stack)-1]
		default:
			for n := range out {
				if out[n].morph == i {
					out[n].weight += w
					return
				}
			}
			out = append(out, leaf{morph: i, weight: w})
		}
	}
	walk(root, weight)
	return out
}

// FlipIndex selects the child of an n-way flip morph at weight w, or -1 for
// none: floor((n+1)w)-1 clamped to n-1.
func FlipIndex(n int, w float32) int {
	if n == 0 {
		return -1
	}
	k := int(math.Floor(float64(float32(n+1)*w))) - 1
	if k >= n {
		k = n - 1
	}
	return k
}

func (e *Engine) add(origin pmx.Index, l leaf, t *touched) {
	mo := &e.m.Morphs[l.morph]
	for _, off := range mo.Offsets {
		en := entry{origin: origin, leaf: l.morph, weight: l.weight, offset: off}
		switch o := off.(type) {
		case pmx.VertexOffset:
			e.vertex[o.Vertex] = append(e.vertex[o.Vertex], en)
			t.vertices = append(t.vertices, o.Vertex)
		case pmx.UVOffset:
			c := o.Channel
			if int(c) >= len(e.uv) {
				continue
			}
			e.uv[c][o.Vertex] = append(e.uv[c][o.Vertex], en)
			t.uvs[c] = append(t.uvs[c], o.Vertex)
		case pmx.BoneOffset:
			e.bone[o.Bone] = append(e.bone[o.Bone], en)
			t.bones = append(t.bones, o.Bone)
		case pmx.MaterialOffset:
			if o.Material == pmx.None {
				for k := range e.m.Materials {
					e.material[pmx.Index(k)] = append(e.material[pmx.Index(k)], en)
					t.materials = append(t.materials, pmx.Index(k))
				}
				continue
			}
			e.material[o.Material] = append(e.material[o.Material], en)
			t.materials = append(t.materials, o.Material)
		case pmx.ImpulseOffset:
			e.impulse(origin, l, o)
		}
	}
}

func (e *Engine) impulse(origin pmx.Index, l leaf, o pmx.ImpulseOffset) {
	if e.impulses == nil {
		return
	}
	if e.impulses.Kinematic(o.Body) {
		logging.Warn("morph: impulse on kinematic body skipped", "morph", e.m.Morphs[origin].Name, "body", o.Body)
		return
	}
	e.impulses.QueueImpulse(o.Body, o.Velocity.Mul(l.weight), o.Torque.Mul(l.weight), o.Local)
}

// clear removes every entry contributed by origin and returns what it touched.
func (e *Engine) clear(origin pmx.Index) *touched {
	t := e.touched[origin]
	if t == nil {
		return &touched{}
	}
	delete(e.touched, origin)
	for _, v := range t.vertices {
		drop(e.vertex, v, origin)
	}
	for c := range t.uvs {
		for _, v := range t.uvs[c] {
			drop(e.uv[c], v, origin)
		}
	}
	for _, b := range t.bones {
		drop(e.bone, b, origin)
	}
	for _, m := range t.materials {
		drop(e.material, m, origin)
	}
	return t
}

func drop(lists map[pmx.Index][]entry, k, origin pmx.Index) {
	list := lists[k]
	kept := list[:0]
	for _, en := range list {
		if en.origin != origin {
			kept = append(kept, en)
		}
	}
	if len(kept) == 0 {
		delete(lists, k)
		return
	}
	lists[k] = kept
}

// VertexOffset returns the summed position offset of vertex v.
func (e *Engine) VertexOffset(v pmx.Index) mgl32.Vec3 {
	var sum mgl32.Vec3
	for _, en := range e.vertex[v] {
		sum = sum.Add(en.offset.(pmx.VertexOffset).Offset.Mul(en.weight))
	}
	return sum
}

// MorphedVertices returns the vertices that currently carry a position offset.
func (e *Engine) MorphedVertices() []pmx.Index {
	out := make([]pmx.Index, 0, len(e.vertex))
	for v := range e.vertex {
		out = append(out, v)
	}
	return out
}

// UVOffset returns the summed offset of vertex v on UV channel c (0 is the
// base UV, 1-4 the extra channels).
func (e *Engine) UVOffset(v pmx.Index, c int) mgl32.Vec4 {
	var sum mgl32.Vec4
	if c < 0 || c >= len(e.uv) {
		return sum
	}
	for _, en := range e.uv[c][v] {
		sum = sum.Add(en.offset.(pmx.UVOffset).Offset.Mul(en.weight))
	}
	return sum
}

// BoneTransform returns the summed translation and chained rotation of bone b.
func (e *Engine) BoneTransform(b pmx.Index) (mgl32.Vec3, mgl32.Quat) {
	var t mgl32.Vec3
	q := mgl32.QuatIdent()
	for _, en := range e.bone[b] {
		o := en.offset.(pmx.BoneOffset)
		t = t.Add(o.Translation.Mul(en.weight))
		q = q.Mul(mathutil.ScaleRotation(o.Rotation.Normalize(), en.weight))
	}
	return t, q
}

func (e *Engine) pushBones(lists ...[]pmx.Index) {
	if e.bones == nil {
		return
	}
	seen := make(map[pmx.Index]bool)
	for _, list := range lists {
		for _, b := range list {
			if seen[b] {
				continue
			}
			seen[b] = true
			if len(e.bone[b]) == 0 {
				e.bones.SetMorphTransform(b, mgl32.Vec3{}, mgl32.QuatIdent())
				continue
			}
			t, q := e.BoneTransform(b)
			e.bones.SetMorphTransform(b, t, q)
		}
	}
}
