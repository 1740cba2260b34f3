// Package model ties a parsed PMX file to its pose state: skeleton, morphs
// and an optional physics simulator, advanced one frame at a time.
package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/morph"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/skeleton"
)

var (
	ErrUnknownBone  = errors.New("model: unknown bone")
	ErrUnknownMorph = morph.ErrUnknownMorph
	ErrVertexRange  = errors.New("model: vertex out of range")
)

type options struct {
	skeleton []skeleton.Option
}

// Option configures a Model.
type Option func(*options)

// WithIKOverrides replaces the default IK link limits by bone name. A nil
// map disables them.
func WithIKOverrides(overrides map[string]pmx.AngleLimit) Option {
	return func(o *options) {
		o.skeleton = append(o.skeleton, skeleton.WithIKOverrides(overrides))
	}
}

type queuedMorph struct {
	index  pmx.Index
	weight float32
}

// Model is the posable state of one PMX model. The parse result it wraps is
// shared and never modified. A Model is not safe for concurrent use.
type Model struct {
	data   *pmx.Model
	graph  *skeleton.Graph
	morphs *morph.Engine
	bridge *skeleton.Bridge
	sim    skeleton.Simulator
	queue  []queuedMorph
}

// LoadModel parses a PMX file and builds its pose state.
func LoadModel(data []byte, opts ...Option) (*Model, error) {
	m, err := pmx.Load(data)
	if err != nil {
		return nil, err
	}
	return New(m, opts...)
}

// New builds pose state over an already parsed model.
func New(m *pmx.Model, opts ...Option) (*Model, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	g, err := skeleton.New(m, o.skeleton...)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}
	bridge := skeleton.NewBridge(g, m)
	return &Model{
		data:   m,
		graph:  g,
		morphs: morph.New(m, g, bridge),
		bridge: bridge,
	}, nil
}

func (m *Model) Data() *pmx.Model         { return m.data }
func (m *Model) Graph() *skeleton.Graph   { return m.graph }
func (m *Model) Morphs() *morph.Engine    { return m.morphs }
func (m *Model) Bridge() *skeleton.Bridge { return m.bridge }

// AttachPhysics sets the simulator stepped by Update. nil detaches it.
func (m *Model) AttachPhysics(sim skeleton.Simulator) { m.sim = sim }

// Bone is a handle to one bone of a Model.
type Bone struct {
	m     *Model
	index pmx.Index
}

// GetBoneByName finds a bone by its Japanese or English name.
func (m *Model) GetBoneByName(name string) (Bone, error) {
	i, ok := m.data.BoneIndex(name)
	if !ok {
		return Bone{}, fmt.Errorf("%w: %q", ErrUnknownBone, name)
	}
	return Bone{m: m, index: i}, nil
}

func (b Bone) Index() pmx.Index { return b.index }
func (b Bone) Name() string     { return b.m.data.Bones[b.index].Name }

// Position is the bone's world position as of the last Update.
func (b Bone) Position() mgl32.Vec3 { return b.m.graph.Position(b.index) }

func (b Bone) World() mgl32.Mat4 { return b.m.graph.World(b.index) }

// Translate adds v to the bone's user translation.
func (b Bone) Translate(v mgl32.Vec3) { b.m.graph.Translate(b.index, v) }

func (b Bone) SetTranslation(v mgl32.Vec3) { b.m.graph.SetUserTranslation(b.index, v) }

func (b Bone) SetRotation(q mgl32.Quat) { b.m.graph.SetUserRotation(b.index, q) }

// ApplyMorph queues a morph weight by name for the next Update. The weight is
// clamped to [0,1]; a later call for the same morph replaces the queued one.
func (m *Model) ApplyMorph(name string, weight float32) error {
	i, ok := m.data.MorphIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMorph, name)
	}
	return m.ApplyMorphIndex(i, weight)
}

// ApplyMorphIndex is ApplyMorph by index.
func (m *Model) ApplyMorphIndex(i pmx.Index, weight float32) error {
	weight = mgl32.Clamp(weight, 0, 1)
	if weight > 0 {
		if err := m.morphs.Check(i); err != nil {
			return err
		}
	} else if !i.Valid(m.morphs.Len()) {
		return fmt.Errorf("%w: index %d", ErrUnknownMorph, i)
	}
	for k := range m.queue {
		if m.queue[k].index == i {
			m.queue[k].weight = weight
			return nil
		}
	}
	m.queue = append(m.queue, queuedMorph{index: i, weight: weight})
	return nil
}

// Update advances one frame: queued morphs, bones with inline IK, physics
// when attached, then bones evaluated after physics. Failures inside a frame
// are logged and never stop it.
func (m *Model) Update(dt float32) {
	for _, q := range m.queue {
		if err := m.morphs.Apply(q.index, q.weight); err != nil {
			logging.Warn("morph apply failed", "morph", m.data.Morphs[q.index].Name, "err", err)
		}
	}
	m.queue = m.queue[:0]

	m.graph.Update()
	if m.sim != nil {
		if err := m.bridge.Exchange(m.sim, dt); err != nil {
			logging.Warn("physics step failed", "model", m.data.Name, "err", err)
		}
	} else {
		m.bridge.DiscardImpulses()
	}
	m.graph.UpdateAfterPhysics()
}

// ResetPose clears user transforms, applied morphs and queued morphs.
func (m *Model) ResetPose() {
	m.queue = m.queue[:0]
	m.morphs.Reset()
	m.graph.ResetPose()
}

func (m *Model) skinMatrix(i pmx.Index) mgl32.Mat4 {
	if !i.Valid(m.graph.Len()) {
		return mgl32.Ident4()
	}
	return m.graph.SkinMatrix(i)
}

// GetSkinnedPosition returns vertex v after morph offsets and skinning.
func (m *Model) GetSkinnedPosition(v int) (x, y, z float32, err error) {
	if v < 0 || v >= len(m.data.Vertices) {
		return 0, 0, 0, fmt.Errorf("%w: %d of %d", ErrVertexRange, v, len(m.data.Vertices))
	}
	p := m.skinned(v, m.skinMatrix)
	return p[0], p[1], p[2], nil
}

func (m *Model) skinned(v int, mats skinMatrices) mgl32.Vec3 {
	vx := &m.data.Vertices[v]
	return skin(vx, vx.Position.Add(m.morphs.VertexOffset(pmx.Index(v))), mats)
}

// SkinnedPositions returns every vertex after morph offsets and skinning.
func (m *Model) SkinnedPositions() []mgl32.Vec3 {
	cache := make([]mgl32.Mat4, m.graph.Len())
	for i := range cache {
		cache[i] = m.graph.SkinMatrix(pmx.Index(i))
	}
	mats := func(i pmx.Index) mgl32.Mat4 {
		if !i.Valid(len(cache)) {
			return mgl32.Ident4()
		}
		return cache[i]
	}
	out := make([]mgl32.Vec3, len(m.data.Vertices))
	for v := range out {
		out[v] = m.skinned(v, mats)
	}
	return out
}

// UV returns the base texture coordinate of vertex v with UV morphs applied.
func (m *Model) UV(v int) mgl32.Vec2 {
	off := m.morphs.UVOffset(pmx.Index(v), 0)
	return m.data.Vertices[v].UV.Add(mgl32.Vec2{off[0], off[1]})
}

// MaterialColor returns material i after material morphs.
func (m *Model) MaterialColor(i int) morph.Color {
	return m.morphs.MaterialColor(pmx.Index(i))
}
