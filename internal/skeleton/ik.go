package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
)

// ikEpsilon is the squared tip-to-goal distance that ends a solve.
const ikEpsilon = 1e-4

// Knee bone labels used by most MMD models.
const (
	KneeLeft  = "左ひざ"
	KneeRight = "右ひざ"
)

// DefaultIKOverrides restricts knees to bend one way about X, which many
// models rely on without declaring a limit.
func DefaultIKOverrides() map[string]pmx.AngleLimit {
	knee := pmx.AngleLimit{
		Lower: mgl32.Vec3{-math.Pi, 0, 0},
		Upper: mgl32.Vec3{mgl32.DegToRad(-0.5), 0, 0},
	}
	return map[string]pmx.AngleLimit{
		KneeLeft:  knee,
		KneeRight: knee,
	}
}

func (g *Graph) resolveIKLimits() {
	g.ikLimits = make(map[pmx.Index][]*pmx.AngleLimit)
	for i := range g.bones {
		ik := g.bones[i].IK
		if ik == nil {
			continue
		}
		limits := make([]*pmx.AngleLimit, len(ik.Links))
		for j, l := range ik.Links {
			limits[j] = l.Limit
			if !l.Bone.Valid(len(g.bones)) {
				continue
			}
			if o, ok := g.overrides[g.bones[l.Bone].Name]; ok {
				limits[j] = &o
			}
		}
		g.ikLimits[pmx.Index(i)] = limits
	}
}

// SetIKEnabled switches the solve of IK bone i on or off. Switching it off
// clears the IK rotation of its links so the chain falls back to its
// forward pose on the next Update.
func (g *Graph) SetIKEnabled(i pmx.Index, on bool) {
	g.state[i].ikDisabled = !on
	if on || g.bones[i].IK == nil {
		return
	}
	for _, l := range g.bones[i].IK.Links {
		if l.Bone.Valid(len(g.bones)) {
			g.state[l.Bone].ikR = mgl32.QuatIdent()
		}
	}
}

// IKEnabled reports whether IK bone i is solved during Update.
func (g *Graph) IKEnabled(i pmx.Index) bool {
	return g.bones[i].IK != nil && !g.state[i].ikDisabled
}

// IKLimit returns the effective angle limit of link j of IK bone i after
// overrides, or nil when the link is unconstrained.
func (g *Graph) IKLimit(i pmx.Index, j int) *pmx.AngleLimit {
	limits := g.ikLimits[i]
	if j < 0 || j >= len(limits) {
		return nil
	}
	return limits[j]
}

// solveIK runs cyclic coordinate descent for IK bone i, moving its target
// toward the IK bone's own position by rotating each link in turn.
func (g *Graph) solveIK(i pmx.Index) {
	b := &g.bones[i]
	ik := b.IK
	n := len(g.bones)
	if !ik.Target.Valid(n) || len(ik.Links) == 0 {
		logging.Debug("ik skipped", "bone", b.Name, "reason", "no target or links")
		return
	}
	for _, l := range ik.Links {
		if !l.Bone.Valid(n) {
			logging.Debug("ik skipped", "bone", b.Name, "reason", "missing link")
			return
		}
	}

	// Bones on the target's path that sort after the IK bone have not been
	// evaluated yet this pass.
	limit := g.pos[i]
	var path []pmx.Index
	for p := ik.Target; p != pmx.None; p = g.bones[p].Parent {
		path = append(path, p)
	}
	for k := len(path) - 1; k >= 0; k-- {
		p := path[k]
		if g.pos[p] > g.pos[i] {
			g.updateLocal(p)
			g.updateWorld(p)
		}
		if g.pos[p] > limit {
			limit = g.pos[p]
		}
	}

	for _, l := range ik.Links {
		g.state[l.Bone].ikR = mgl32.QuatIdent()
	}
	for _, l := range g.linksByOrder(ik.Links) {
		g.refreshLink(l, limit)
	}

	limits := g.ikLimits[i]
	goal := g.Position(i)
	for iter := int32(0); iter < ik.Loops; iter++ {
		for j, l := range ik.Links {
			tip := g.Position(ik.Target)
			if tip.Sub(goal).LenSqr() <= ikEpsilon {
				return
			}
			g.rotateLink(l.Bone, tip, goal, ik.AngleLimit, limits[j])
			g.refreshLink(l.Bone, limit)
		}
	}
}

// rotateLink turns link so that tip moves toward goal, both in model space.
func (g *Graph) rotateLink(link pmx.Index, tip, goal mgl32.Vec3, maxAngle float32, limit *pmx.AngleLimit) {
	s := &g.state[link]
	inv := s.world.Inv()
	lt := mgl32.TransformCoordinate(tip, inv)
	lg := mgl32.TransformCoordinate(goal, inv)
	if lt.Len() < 1e-6 || lg.Len() < 1e-6 {
		return
	}
	lt, lg = lt.Normalize(), lg.Normalize()

	axis := lt.Cross(lg)
	if axis.Len() < 1e-6 {
		return
	}
	axis = axis.Normalize()
	angle := float32(math.Acos(float64(mgl32.Clamp(lt.Dot(lg), -1, 1))))
	if maxAngle > 0 && angle > maxAngle {
		angle = maxAngle
	}

	other := s.morphR.Mul(s.userR).Mul(s.inheritR)
	total := s.localR.Mul(mgl32.QuatRotate(angle, axis))
	if limit != nil {
		e := mathutil.ClampVec3(mathutil.EulerXYZ(total), limit.Lower, limit.Upper)
		total = mathutil.QuatXYZ(e)
	}
	s.ikR = total.Mul(other.Inverse()).Normalize()
}

func (g *Graph) refreshLink(l pmx.Index, limit int) {
	g.updateLocal(l)
	g.refreshSubtree(l, limit)
}

// linksByOrder returns the link bones sorted by evaluation position.
func (g *Graph) linksByOrder(links []pmx.IKLink) []pmx.Index {
	out := make([]pmx.Index, 0, len(links))
	for _, l := range links {
		out = append(out, l.Bone)
	}
	for a := 1; a < len(out); a++ {
		for b := a; b > 0 && g.pos[out[b]] < g.pos[out[b-1]]; b-- {
			out[b], out[b-1] = out[b-1], out[b]
		}
	}
	return out
}
