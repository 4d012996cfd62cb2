package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/meshio"
	"go.viam.com/meshproc/segmentation"
	"go.viam.com/meshproc/service"
)

var (
	headerColor = color.New(color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

func printStatus(w io.Writer, format string, args ...interface{}) {
	okColor.Fprintf(w, format+"\n", args...) //nolint:errcheck
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", v.X, v.Y, v.Z)
}

func printInfo(w io.Writer, path string, res meshio.Result) {
	if !res.IsMesh() {
		headerColor.Fprintf(w, "%s: point cloud\n", path) //nolint:errcheck
		fmt.Fprintf(w, "  points:      %d\n", res.Cloud.Size())
		if res.Cloud.Size() > 0 {
			b := res.Cloud.MetaData().Bounds()
			fmt.Fprintf(w, "  bounds:      %s - %s\n", formatVector(b.Min), formatVector(b.Max))
		}
		return
	}

	m := res.Mesh
	s := mesh.Summarize(m)
	sizes := lo.Map(segmentation.FindConnectedComponents(mesh.BuildAdjacency(m.Triangles)),
		func(c []int, _ int) int { return len(c) })
	headerColor.Fprintf(w, "%s: triangle mesh\n", path) //nolint:errcheck
	fmt.Fprintf(w, "  vertices:    %d\n", s.Vertices)
	fmt.Fprintf(w, "  triangles:   %d\n", s.Triangles)
	fmt.Fprintf(w, "  edges:       %d (%d boundary)\n", s.Edges, s.BoundaryEdges)
	fmt.Fprintf(w, "  components:  %d (largest %d vertices)\n", len(sizes), lo.Max(sizes))
	fmt.Fprintf(w, "  edge length: mean %.4g std %.4g\n", s.MeanEdgeLength, s.StdEdgeLength)
	if s.Vertices > 0 {
		fmt.Fprintf(w, "  bounds:      %s - %s\n", formatVector(s.Bounds.Min), formatVector(s.Bounds.Max))
	}
}

func printOutcomes(w io.Writer, input string, outcomes []service.Outcome) {
	headerColor.Fprintf(w, "%s\n", input) //nolint:errcheck
	for _, o := range outcomes {
		status := okColor.Sprint("ok")
		switch {
		case o.Reverted:
			status = warnColor.Sprint("empty, reverted")
		case o.Empty:
			status = warnColor.Sprint("empty")
		}
		fmt.Fprintf(w, "  %-22s %-13s vertices=%-8d triangles=%-8d %8s  %s\n",
			o.Op, o.Kind, o.Vertices, o.Triangles, o.Duration.Round(time.Millisecond), status)
	}
}
