// Package viewmatrix frames a posed model for an orthographic preview.
package viewmatrix

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"

	"pmx-pose-renderer/internal/mathutil"
)

// DefaultYaw and DefaultPitch show the model from slightly above its front.
// PMX models face -Z, so the camera looks along +Z.
const (
	DefaultYaw   = 0.0
	DefaultPitch = -10.0
)

// Camera is an orthographic view: rotate by yaw then pitch, subtract
// Center, and fit Span into the viewport.
type Camera struct {
	Yaw, Pitch float64 // radians
	Center     r3.Vec  // in rotated space
	Span       float64 // largest of the rotated X and Y extents
}

// Frame computes the camera that fits positions. Angles are in degrees.
func Frame(positions []mgl32.Vec3, yawDeg, pitchDeg float64) Camera {
	cam := Camera{Yaw: mathutil.Deg2Rad(yawDeg), Pitch: mathutil.Deg2Rad(pitchDeg)}
	if len(positions) == 0 {
		cam.Span = 1
		return cam
	}
	rotated := make([]mgl32.Vec3, len(positions))
	for i, p := range positions {
		rotated[i] = mathutil.Vec32(cam.Rotate(p))
	}
	box := mathutil.Bounds(rotated)
	cam.Center = box.Center()
	size := box.Size()
	cam.Span = math.Max(size.X, size.Y)
	if cam.Span < 0.001 {
		cam.Span = 0.001
	}
	return cam
}

// Rotate applies the camera orientation to a model-space point.
func (c Camera) Rotate(p mgl32.Vec3) r3.Vec {
	return mathutil.YawPitch(mathutil.R3(p), c.Yaw, c.Pitch)
}

// ProjectVertices maps positions to screen space for a square target of
// renderSize pixels with margin pixels of padding. X grows right, Y grows
// down, and Z grows toward the viewer for the z-buffer.
func ProjectVertices(positions []mgl32.Vec3, c Camera, renderSize, margin int) []r3.Vec {
	half := float64(renderSize) / 2
	scale := float64(renderSize-2*margin) / c.Span
	out := make([]r3.Vec, len(positions))
	for i, p := range positions {
		t := r3.Sub(c.Rotate(p), c.Center)
		out[i] = r3.Vec{
			X: t.X*scale + half,
			Y: -t.Y*scale + half,
			Z: -t.Z,
		}
	}
	return out
}
