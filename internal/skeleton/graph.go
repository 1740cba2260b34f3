// Package skeleton evaluates the bone hierarchy of a PMX model: user and
// morph transforms, inheritance, inline IK and physics feedback.
package skeleton

import (
	"container/heap"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/pmx"
)

// Option configures a Graph.
type Option func(*Graph)

// WithIKOverrides replaces the angle limit of any IK link whose bone name
// appears in overrides. A nil map disables overrides.
func WithIKOverrides(overrides map[string]pmx.AngleLimit) Option {
	return func(g *Graph) {
		g.overrides = overrides
	}
}

// Graph is the mutable pose state of one model's bones. It is not safe for
// concurrent use.
type Graph struct {
	bones []pmx.Bone
	state []boneState
	order []pmx.Index
	pos   []int // position of each bone in order
	kids  [][]pmx.Index

	root      mgl32.Mat4
	overrides map[string]pmx.AngleLimit
	ikLimits  map[pmx.Index][]*pmx.AngleLimit
}

type boneState struct {
	offset mgl32.Vec3 // rest position relative to the parent's rest position
	rest   mgl32.Vec3

	userT  mgl32.Vec3
	userR  mgl32.Quat
	morphT mgl32.Vec3
	morphR mgl32.Quat
	ikR    mgl32.Quat

	inheritT mgl32.Vec3
	inheritR mgl32.Quat

	localT mgl32.Vec3
	localR mgl32.Quat
	world  mgl32.Mat4

	ikDisabled bool
	physics    bool // world was written by a physics sink this frame
}

// New builds the pose graph for m. Bones start at their rest pose.
func New(m *pmx.Model, opts ...Option) (*Graph, error) {
	g := &Graph{
		bones:     m.Bones,
		state:     make([]boneState, len(m.Bones)),
		kids:      make([][]pmx.Index, len(m.Bones)),
		root:      mgl32.Ident4(),
		overrides: DefaultIKOverrides(),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i := range g.bones {
		b := &g.bones[i]
		if b.Parent != pmx.None {
			if !b.Parent.Valid(len(g.bones)) {
				return nil, &pmx.ReferenceError{Section: "bone", Item: i, Field: "parent", Index: b.Parent, Len: len(g.bones)}
			}
			g.kids[b.Parent] = append(g.kids[b.Parent], pmx.Index(i))
		}
		s := &g.state[i]
		s.rest = b.Position
		s.offset = b.Position
		if b.Parent != pmx.None {
			s.offset = b.Position.Sub(g.bones[b.Parent].Position)
		}
		s.userR, s.morphR, s.ikR, s.inheritR = mgl32.QuatIdent(), mgl32.QuatIdent(), mgl32.QuatIdent(), mgl32.QuatIdent()
	}

	order, err := evaluationOrder(g.bones)
	if err != nil {
		return nil, err
	}
	g.order = order
	g.pos = make([]int, len(order))
	for p, i := range order {
		g.pos[i] = p
	}
	g.resolveIKLimits()

	for _, i := range g.order {
		g.updateLocal(i)
		g.updateWorld(i)
	}
	return g, nil
}

// Len returns the number of bones.
func (g *Graph) Len() int { return len(g.bones) }

// Bone returns the immutable definition of bone i.
func (g *Graph) Bone(i pmx.Index) *pmx.Bone { return &g.bones[i] }

// Order returns the evaluation order. The slice must not be modified.
func (g *Graph) Order() []pmx.Index { return g.order }

// priority is the tie-break among bones whose parents are already placed.
func priority(bones []pmx.Bone, i pmx.Index) (bool, int32, pmx.Index) {
	b := &bones[i]
	return b.Has(pmx.BoneAfterPhysics), b.Layer, i
}

type readyQueue struct {
	bones []pmx.Bone
	items []pmx.Index
}

func (q *readyQueue) Len() int { return len(q.items) }
func (q *readyQueue) Less(a, b int) bool {
	pa, la, ia := priority(q.bones, q.items[a])
	pb, lb, ib := priority(q.bones, q.items[b])
	if pa != pb {
		return !pa
	}
	if la != lb {
		return la < lb
	}
	return ia < ib
}
func (q *readyQueue) Swap(a, b int) { q.items[a], q.items[b] = q.items[b], q.items[a] }
func (q *readyQueue) Push(x any)   { q.items = append(q.items, x.(pmx.Index)) }
func (q *readyQueue) Pop() any {
	n := len(q.items)
	x := q.items[n-1]
	q.items = q.items[:n-1]
	return x
}

// evaluationOrder sorts bones topologically on parent links, taking the
// lowest (after-physics, layer, index) among ready bones first.
func evaluationOrder(bones []pmx.Bone) ([]pmx.Index, error) {
	n := len(bones)
	pending := make([]int, n)
	kids := make([][]pmx.Index, n)
	q := &readyQueue{bones: bones}
	for i := range bones {
		p := bones[i].Parent
		if p == pmx.None || p == pmx.Index(i) {
			if p == pmx.Index(i) {
				return nil, &pmx.CycleError{Kind: "bone parent", Path: []pmx.Index{p, p}}
			}
			q.items = append(q.items, pmx.Index(i))
			continue
		}
		pending[i] = 1
		kids[p] = append(kids[p], pmx.Index(i))
	}
	heap.Init(q)

	order := make([]pmx.Index, 0, n)
	for q.Len() > 0 {
		i := heap.Pop(q).(pmx.Index)
		order = append(order, i)
		for _, k := range kids[i] {
			pending[k]--
			if pending[k] == 0 {
				heap.Push(q, k)
			}
		}
	}
	if len(order) != n {
		for i := range pending {
			if pending[i] > 0 {
				return nil, &pmx.CycleError{Kind: "bone parent", Path: parentLoop(bones, pmx.Index(i))}
			}
		}
		return nil, fmt.Errorf("skeleton: %d of %d bones unordered", n-len(order), n)
	}
	return order, nil
}

func parentLoop(bones []pmx.Bone, start pmx.Index) []pmx.Index {
	seen := make(map[pmx.Index]int)
	var path []pmx.Index
	for i := start; i != pmx.None; i = bones[i].Parent {
		if at, ok := seen[i]; ok {
			return append(path[at:], i)
		}
		seen[i] = len(path)
		path = append(path, i)
	}
	return path
}
