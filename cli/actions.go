package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/meshproc/config"
	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/meshio"
	"go.viam.com/meshproc/pointcloud"
	"go.viam.com/meshproc/reconstruction"
	"go.viam.com/meshproc/service"
	"go.viam.com/meshproc/spatialmath"
)

// newLogger logs to the app's error writer. --debug wins over a configured level.
func newLogger(c *cli.Context, name, configured string) logging.Logger {
	level := logging.INFO
	if configured != "" {
		if lvl, err := logging.LevelFromString(configured); err == nil {
			level = lvl
		}
	}
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	return logging.NewWriterLogger(name, level, c.App.ErrWriter)
}

// pipelineFromContext starts from --config when given and applies command line overrides.
func pipelineFromContext(c *cli.Context, input, output string) (*config.Pipeline, error) {
	p := &config.Pipeline{}
	if path := c.String(flagConfig); path != "" {
		var err error
		if p, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	p.Input = input
	if output != "" {
		p.Output = output
	}
	if c.IsSet(flagBinary) {
		p.BinaryOutput = c.Bool(flagBinary)
	}
	if c.IsSet(flagVoxelSize) || c.IsSet(flagIsoLevel) {
		if p.Reconstruct == nil {
			p.Reconstruct = &config.Reconstruction{}
		}
		if c.IsSet(flagVoxelSize) {
			p.Reconstruct.VoxelSize = c.Float64(flagVoxelSize)
		}
		if c.IsSet(flagIsoLevel) {
			p.Reconstruct.IsoLevel = c.Float64(flagIsoLevel)
		}
	}
	if c.IsSet(flagMinComponentSize) {
		p.RemoveNoise = &config.Noise{MinComponentSize: c.Int(flagMinComponentSize)}
	}
	if c.Bool(flagLargest) {
		p.LargestComponent = true
	}
	p.Laplacian = smoothingOverride(c, p.Laplacian, flagLaplacianLambda, flagLaplacian)
	p.Boundaries = smoothingOverride(c, p.Boundaries, flagBoundaryFactor, flagBoundaries)
	if c.Bool(flagKeepPrior) {
		p.KeepPriorOnEmpty = true
	}
	p.ApplyDefaults()
	if err := p.Validate("pipeline"); err != nil {
		return nil, err
	}
	return p, nil
}

func smoothingOverride(c *cli.Context, s *config.Smoothing, factorFlag, iterationsFlag string) *config.Smoothing {
	if !c.IsSet(factorFlag) && !c.IsSet(iterationsFlag) {
		return s
	}
	if s == nil {
		s = &config.Smoothing{}
	}
	if c.IsSet(factorFlag) {
		s.Factor = c.Float64(factorFlag)
	}
	if c.IsSet(iterationsFlag) {
		s.Iterations = c.Int(iterationsFlag)
	}
	return s
}

// InfoAction prints statistics about each file argument.
func InfoAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("info needs at least one file")
	}
	logger := newLogger(c, "info", "")
	for _, path := range c.Args().Slice() {
		res, err := meshio.Import(path, logger)
		if err != nil {
			return err
		}
		printInfo(c.App.Writer, path, res)
	}
	return nil
}

// ProcessAction runs a pipeline over a single input.
func ProcessAction(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("process needs exactly one input file")
	}
	p, err := pipelineFromContext(c, c.Args().First(), c.Path(flagOutput))
	if err != nil {
		return err
	}
	svc := service.New(newLogger(c, "meshproc", p.LogLevel), service.Options{})
	defer func() {
		err = multierr.Combine(err, svc.Close())
	}()
	outcomes, err := svc.Run(c.Context, p)
	printOutcomes(c.App.Writer, p.Input, outcomes)
	return err
}

// BatchAction runs the same pipeline over every input, --parallel files at a time. Each file
// gets its own service; the first failure cancels files not yet finished.
func BatchAction(c *cli.Context) error {
	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		return errors.New("batch needs at least one input file")
	}
	dir := c.Path(flagOutputDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	format := strings.TrimPrefix(strings.ToLower(c.String(flagFormat)), ".")
	outputs := lo.Map(inputs, func(input string, _ int) string {
		base := filepath.Base(input)
		return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"."+format)
	})
	if dups := lo.FindDuplicates(outputs); len(dups) > 0 {
		return errors.Errorf("inputs would overwrite each other's output: %v", dups)
	}

	base, err := pipelineFromContext(c, inputs[0], outputs[0])
	if err != nil {
		return err
	}
	logger := newLogger(c, "batch", base.LogLevel)

	results := make([][]service.Outcome, len(inputs))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(1, c.Int(flagParallel)))
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			p := *base
			p.Input, p.Output = input, outputs[i]
			svc := service.New(logger.Sublogger(filepath.Base(input)), service.Options{})
			outcomes, err := svc.Run(ctx, &p)
			results[i] = outcomes
			return multierr.Combine(errors.Wrapf(err, "processing %q", input), svc.Close())
		})
	}
	err = g.Wait()
	for i, input := range inputs {
		printOutcomes(c.App.Writer, input, results[i])
	}
	return err
}

// GenerateAction writes a synthetic cube or grid mesh or a sphere point cloud.
func GenerateAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("generate needs a kind and an output file")
	}
	kind, output := c.Args().Get(0), c.Args().Get(1)
	size := c.Float64(flagSize)
	opts := meshio.ExportOptions{Binary: c.Bool(flagBinary)}
	if !(size > 0) {
		return errors.Errorf("size must be positive, got %v", size)
	}

	var err error
	switch kind {
	case "cube":
		err = meshio.Export(output, mesh.NewCube(spatialmath.Vertex{}, float32(size)), opts)
	case "grid":
		err = meshio.Export(output, mesh.NewGrid(max(1, int(size))), opts)
	case "sphere":
		points := c.Int(flagPoints)
		if points < reconstruction.MinPoints {
			return errors.Errorf("a sphere needs at least %d points, got %d", reconstruction.MinPoints, points)
		}
		err = meshio.ExportCloud(output, pointcloud.NewSphere(points, r3.Vector{}, size), opts)
	default:
		return errors.Errorf("unknown kind %q, expected cube, grid or sphere", kind)
	}
	if err != nil {
		return err
	}
	printStatus(c.App.Writer, "wrote %s to %s", kind, output)
	return nil
}
