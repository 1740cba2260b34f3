package mathutil

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	AxisX = r3.Vec{X: 1}
	AxisY = r3.Vec{Y: 1}
	AxisZ = r3.Vec{Z: 1}
)

// YawPitch rotates p about Y by yaw, then about X by pitch. Angles in radians.
func YawPitch(p r3.Vec, yaw, pitch float64) r3.Vec {
	return r3.Rotate(r3.Rotate(p, yaw, AxisY), pitch, AxisX)
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 {
	return d * math.Pi / 180
}
