// Command inspect prints a summary of a PMX model.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"pmx-pose-renderer/internal/model"
	"pmx-pose-renderer/internal/pmx"
)

var CLI struct {
	Model  string `arg:"" help:"PMX file (.pmx or .pmx.xz)" type:"existingfile"`
	Bones  bool   `name:"bones" short:"b" help:"List bones"`
	Morphs bool   `name:"morphs" short:"m" help:"List morphs"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("inspect"),
		kong.Description("Print header, counts, bones and morphs of a PMX model"),
		kong.UsageOnError(),
	)

	raw, err := model.ReadFile(CLI.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	data, err := model.NewLoader().Parse(context.Background(), raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSummary(os.Stdout, data)
	if CLI.Bones {
		m, err := model.New(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		m.Update(0)
		printBones(os.Stdout, m)
	}
	if CLI.Morphs {
		printMorphs(os.Stdout, data)
	}
}

func printSummary(w io.Writer, m *pmx.Model) {
	enc := "UTF-16LE"
	if m.Header.Sizes.Encoding == pmx.UTF8 {
		enc = "UTF-8"
	}
	fmt.Fprintf(w, "%s (%s)  PMX %.1f, %s, %d extra UV\n", m.Name, m.NameEN, m.Header.Version, enc, m.Header.Sizes.ExtraUVs)
	fmt.Fprintf(w, "Vertices: %d, Faces: %d, Textures: %d, Materials: %d\n",
		len(m.Vertices), len(m.Faces)/3, len(m.Textures), len(m.Materials))
	fmt.Fprintf(w, "Bones: %d, Morphs: %d, Frames: %d, Bodies: %d, Joints: %d, Soft bodies: %d\n",
		len(m.Bones), len(m.Morphs), len(m.DisplayFrames), len(m.RigidBodies), len(m.Joints), len(m.SoftBodies))
}

// printBones lists bones in evaluation order with their rest position and
// the position after one update of the default pose (IK applied).
func printBones(w io.Writer, mdl *model.Model) {
	m, g := mdl.Data(), mdl.Graph()
	fmt.Fprintln(w, "--- Bones (evaluation order) ---")
	for step, i := range g.Order() {
		b := &m.Bones[i]
		parent := "-"
		if b.Parent.Valid(len(m.Bones)) {
			parent = m.Bones[b.Parent].Name
		}
		var tags []string
		if b.Has(pmx.BoneIK) && b.IK != nil {
			tags = append(tags, fmt.Sprintf("ik(%d links)", len(b.IK.Links)))
		}
		if b.Has(pmx.BoneInheritRotation | pmx.BoneInheritTranslation) {
			tags = append(tags, fmt.Sprintf("inherit %d×%.2f", b.Inherit.Bone, b.Inherit.Rate))
		}
		if b.Has(pmx.BoneLocalInherit) {
			tags = append(tags, "local")
		}
		if b.Has(pmx.BoneAfterPhysics) {
			tags = append(tags, "after-physics")
		}
		rest, posed := g.RestPosition(i), g.Position(i)
		fmt.Fprintf(w, "  %3d [%3d] %-16s %-16s parent=%-12s layer=%d rest=(%.2f,%.2f,%.2f)",
			step, i, b.Name, b.NameEN, parent, b.Layer, rest[0], rest[1], rest[2])
		if !posed.ApproxEqualThreshold(rest, 1e-4) {
			fmt.Fprintf(w, " posed=(%.2f,%.2f,%.2f)", posed[0], posed[1], posed[2])
		}
		fmt.Fprintf(w, " %s\n", strings.Join(tags, " "))
	}
}

func printMorphs(w io.Writer, m *pmx.Model) {
	fmt.Fprintln(w, "--- Morphs ---")
	for i := range m.Morphs {
		mo := &m.Morphs[i]
		fmt.Fprintf(w, "  [%3d] %-16s %-16s %-8s panel=%d offsets=%d\n",
			i, mo.Name, mo.NameEN, mo.Kind, mo.Panel, len(mo.Offsets))
	}
}
