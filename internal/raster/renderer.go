package raster

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/model"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/viewmatrix"
)

// Material covers the next FaceCount face indices of a Scene.
type Material struct {
	Name      string
	FaceCount int
	Surface   Surface
}

// Scene is a posed mesh ready to draw.
type Scene struct {
	Positions  []mgl32.Vec3
	UVs        []mgl32.Vec2
	Faces      []pmx.Index // three per triangle
	Materials  []Material
	Yaw, Pitch float64 // degrees
}

// BuildScene snapshots the current pose of m. textures is indexed like the
// model's texture table; missing entries draw untextured.
func BuildScene(m *model.Model, textures []*image.NRGBA, yaw, pitch float64) *Scene {
	data := m.Data()
	s := &Scene{
		Positions: m.SkinnedPositions(),
		UVs:       make([]mgl32.Vec2, len(data.Vertices)),
		Faces:     data.Faces,
		Yaw:       yaw,
		Pitch:     pitch,
	}
	for v := range s.UVs {
		s.UVs[v] = m.UV(v)
	}
	for i := range data.Materials {
		mat := &data.Materials[i]
		c := m.MaterialColor(i)
		var tex *image.NRGBA
		if mat.Texture.Valid(len(textures)) {
			tex = textures[mat.Texture]
		}
		s.Materials = append(s.Materials, Material{
			Name:      mat.Name,
			FaceCount: int(mat.FaceCount),
			Surface: Surface{
				Tex: tex,
				Color: [4]float64{
					clampUnit(c.Diffuse[0] * c.TextureTint[0]),
					clampUnit(c.Diffuse[1] * c.TextureTint[1]),
					clampUnit(c.Diffuse[2] * c.TextureTint[2]),
					clampUnit(c.Diffuse[3] * c.TextureTint[3]),
				},
				Ambient:   [3]float64{clampUnit(c.Ambient[0]), clampUnit(c.Ambient[1]), clampUnit(c.Ambient[2])},
				Specular:  [3]float64{clampUnit(c.Specular[0]), clampUnit(c.Specular[1]), clampUnit(c.Specular[2])},
				Shininess: float64(max(c.Specularity, 0)),
			},
		})
	}
	return s
}

func clampUnit(v float32) float64 {
	return float64(mgl32.Clamp(v, 0, 1))
}

// RenderModel draws s into a square image of size*supersample pixels.
func RenderModel(s *Scene, size, supersample int) *image.NRGBA {
	if supersample < 1 {
		supersample = 1
	}
	renderSize := size * supersample
	fb := NewFrameBuffer(renderSize, renderSize)
	if len(s.Positions) == 0 || len(s.Faces) < 3 {
		return fb.Image()
	}

	cam := viewmatrix.Frame(s.Positions, s.Yaw, s.Pitch)
	screen := viewmatrix.ProjectVertices(s.Positions, cam, renderSize, 16*supersample)
	lc := DefaultLightConfig()

	corner := func(i pmx.Index) (Corner, bool) {
		if !i.Valid(len(screen)) {
			return Corner{}, false
		}
		c := Corner{Pos: screen[i]}
		if int(i) < len(s.UVs) {
			c.UV = s.UVs[i]
		}
		return c, true
	}

	face := 0
	for mi := range s.Materials {
		mat := &s.Materials[mi]
		end := min(face+mat.FaceCount, len(s.Faces))
		for ; face+2 < end; face += 3 {
			var tri [3]Corner
			ok := true
			for k := 0; k < 3 && ok; k++ {
				tri[k], ok = corner(s.Faces[face+k])
			}
			if ok {
				RasterizeTriangle(fb, tri, &mat.Surface, &lc)
			}
		}
		face = end
	}
	return fb.Image()
}
