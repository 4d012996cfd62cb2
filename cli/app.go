// Package cli contains the meshproc command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"

	flagOutput    = "output"
	flagOutputDir = "output-dir"
	flagFormat    = "format"
	flagBinary    = "binary"
	flagParallel  = "parallel"

	flagVoxelSize        = "voxel-size"
	flagIsoLevel         = "iso-level"
	flagMinComponentSize = "min-component-size"
	flagLargest          = "largest"
	flagLaplacian        = "laplacian"
	flagLaplacianLambda  = "laplacian-lambda"
	flagBoundaries       = "boundaries"
	flagBoundaryFactor   = "boundary-factor"
	flagKeepPrior        = "keep-prior"

	flagSize   = "size"
	flagPoints = "points"
)

// pipelineFlags override or build a pipeline for the process and batch commands.
var pipelineFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  flagBinary,
		Usage: "write binary stl, ply or pcd output",
	},
	&cli.Float64Flag{
		Name:  flagVoxelSize,
		Usage: "reconstruct point cloud input with this voxel size",
	},
	&cli.Float64Flag{
		Name:  flagIsoLevel,
		Usage: "iso level for reconstruction",
	},
	&cli.IntFlag{
		Name:  flagMinComponentSize,
		Usage: "remove components with fewer vertices than this (or 1% of all vertices)",
	},
	&cli.BoolFlag{
		Name:  flagLargest,
		Usage: "keep only the largest connected component",
	},
	&cli.IntFlag{
		Name:  flagLaplacian,
		Usage: "number of laplacian smoothing iterations",
	},
	&cli.Float64Flag{
		Name:  flagLaplacianLambda,
		Usage: "laplacian smoothing blend factor",
	},
	&cli.IntFlag{
		Name:  flagBoundaries,
		Usage: "number of boundary smoothing iterations",
	},
	&cli.Float64Flag{
		Name:  flagBoundaryFactor,
		Usage: "boundary smoothing blend factor",
	},
	&cli.BoolFlag{
		Name:  flagKeepPrior,
		Usage: "keep the previous model when a step leaves nothing behind",
	},
}

var app = &cli.App{
	Name:            "meshproc",
	Usage:           "clean, smooth and reconstruct triangle meshes and point clouds",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load pipeline configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "info",
			Usage:     "print statistics about mesh or point cloud files",
			ArgsUsage: "<file> [file...]",
			Action:    InfoAction,
		},
		{
			Name:      "process",
			Usage:     "run a processing pipeline over one file",
			ArgsUsage: "<input>",
			Flags: append([]cli.Flag{
				&cli.PathFlag{
					Name:    flagOutput,
					Aliases: []string{"o"},
					Usage:   "write the result to `FILE`, format chosen by extension",
				},
			}, pipelineFlags...),
			Action: ProcessAction,
		},
		{
			Name:      "batch",
			Usage:     "run the same processing pipeline over many files concurrently",
			ArgsUsage: "<input> [input...]",
			Flags: append([]cli.Flag{
				&cli.PathFlag{
					Name:     flagOutputDir,
					Required: true,
					Usage:    "directory for results",
				},
				&cli.StringFlag{
					Name:  flagFormat,
					Value: "ply",
					Usage: "output format: stl, ply, obj, pcd or las",
				},
				&cli.IntFlag{
					Name:  flagParallel,
					Value: 4,
					Usage: "number of files processed at once",
				},
			}, pipelineFlags...),
			Action: BatchAction,
		},
		{
			Name:      "generate",
			Usage:     "write a test model: cube, grid or sphere (a point cloud)",
			ArgsUsage: "<cube|grid|sphere> <output>",
			Flags: []cli.Flag{
				&cli.Float64Flag{
					Name:  flagSize,
					Value: 1,
					Usage: "cube edge length, grid cell count or sphere radius",
				},
				&cli.IntFlag{
					Name:  flagPoints,
					Value: 4000,
					Usage: "number of sphere samples",
				},
				&cli.BoolFlag{
					Name:  flagBinary,
					Usage: "write binary output",
				},
			},
			Action: GenerateAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
