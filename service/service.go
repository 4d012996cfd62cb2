// Package service sequences mesh processing operations over a single current model. A model is
// either a point cloud or a triangle mesh; reconstruction is the only way from the first to the
// second, and every other operation keeps a mesh a mesh.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/meshproc/config"
	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/meshio"
	"go.viam.com/meshproc/reconstruction"
	"go.viam.com/meshproc/segmentation"
	"go.viam.com/meshproc/smoothing"
)

var (
	// ErrNotApplicable is returned for an operation the current model's kind does not support.
	ErrNotApplicable = errors.New("operation not applicable to the current model")
	// ErrNoModel is returned when an operation needs a model and none is loaded.
	ErrNoModel = errors.New("no model loaded")
)

// degenerateFraction of the voxel size is how close two corners of a reconstructed triangle may
// be before the triangle is dropped.
const degenerateFraction = 1e-4

// Operation names reported in outcomes.
const (
	OpLoad                 = "load"
	OpSave                 = "save"
	OpComputeNormals       = "compute_normals"
	OpRemoveNoise          = "remove_noise"
	OpFindLargestComponent = "find_largest_component"
	OpLaplacianSmooth      = "laplacian_smooth"
	OpSmoothBoundaries     = "smooth_boundaries"
	OpReconstruct          = "reconstruct"
)

// Outcome describes the model after an operation. Empty is set when the operation left no
// geometry; that is a result, not an error. Reverted is set when the prior model was restored
// because of it.
type Outcome struct {
	Op        string
	Kind      Kind
	Vertices  int
	Triangles int
	Empty     bool
	Reverted  bool
	Duration  time.Duration
}

// Options configures a Service.
type Options struct {
	// KeepPriorOnEmpty restores the model from before an operation that leaves it empty.
	KeepPriorOnEmpty bool
	// CloseTimeout bounds how long Close waits for background tasks.
	CloseTimeout time.Duration
}

// Service owns the current model and applies operations to it one at a time.
type Service struct {
	mu     sync.Mutex
	model  Model
	opts   Options
	logger logging.Logger
	tasks  *TaskRunner
}

// New returns a service with no model loaded.
func New(logger logging.Logger, opts Options) *Service {
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 10 * time.Second
	}
	return &Service{
		opts:   opts,
		logger: logger,
		tasks:  NewTaskRunner(logger.Sublogger("tasks")),
	}
}

// Close stops background tasks, waiting at most Options.CloseTimeout.
func (s *Service) Close() error {
	return s.tasks.Close(s.opts.CloseTimeout)
}

// Model returns the current model.
func (s *Service) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel replaces the current model.
func (s *Service) SetModel(m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

func (s *Service) outcome(op string, start time.Time) Outcome {
	vertices, triangles := s.model.Counts()
	return Outcome{
		Op:        op,
		Kind:      s.model.Kind(),
		Vertices:  vertices,
		Triangles: triangles,
		Empty:     s.model.IsEmpty(),
		Duration:  time.Since(start),
	}
}

func (s *Service) report(out Outcome) {
	if out.Empty {
		s.logger.Warnw("operation left no geometry", "op", out.Op, "reverted", out.Reverted)
	}
	s.logger.Infow("operation finished",
		"op", out.Op, "kind", out.Kind, "vertices", out.Vertices, "triangles", out.Triangles, "duration", out.Duration)
}

// Load replaces the current model with the contents of path.
func (s *Service) Load(path string) (Outcome, error) {
	start := time.Now()
	res, err := meshio.Import(path, s.logger)
	if err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.IsMesh() {
		s.model = NewMeshModel(res.Mesh)
	} else {
		s.model = NewCloudModel(res.Cloud)
	}
	out := s.outcome(OpLoad, start)
	s.report(out)
	return out, nil
}

// Save writes the current model to path.
func (s *Service) Save(path string, opts meshio.ExportOptions) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	var err error
	switch s.model.Kind() {
	case KindTriangleMesh:
		err = meshio.Export(path, s.model.Mesh(), opts)
	case KindPointCloud:
		err = meshio.ExportCloud(path, s.model.Cloud(), opts)
	default:
		err = ErrNoModel
	}
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "saving %q", path)
	}
	out := s.outcome(OpSave, start)
	s.report(out)
	return out, nil
}

// meshOp runs fn on the current mesh in place.
func (s *Service) meshOp(op string, fn func(m *mesh.Mesh) error) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.model.Mesh()
	if m == nil {
		if s.model.Kind() == KindNone {
			return Outcome{}, errors.Wrap(ErrNoModel, op)
		}
		return Outcome{}, errors.Wrapf(ErrNotApplicable, "%s on a %s", op, s.model.Kind())
	}

	var prior *mesh.Mesh
	if s.opts.KeepPriorOnEmpty {
		prior = m.Clone()
	}
	start := time.Now()
	if err := fn(m); err != nil {
		return Outcome{}, errors.Wrap(err, op)
	}
	out := s.outcome(op, start)
	if out.Empty && prior != nil && !prior.IsEmpty() {
		m.ReplaceWith(prior)
		m.ComputeNormals()
		out.Vertices, out.Triangles = len(m.Vertices), len(m.Triangles)
		out.Reverted = true
	}
	s.report(out)
	return out, nil
}

// ComputeNormals recomputes every triangle normal of the current mesh.
func (s *Service) ComputeNormals() (Outcome, error) {
	return s.meshOp(OpComputeNormals, func(m *mesh.Mesh) error {
		m.ComputeNormals()
		return nil
	})
}

// RemoveNoise drops connected components smaller than max(minComponentSize, vertices/100).
func (s *Service) RemoveNoise(minComponentSize int) (Outcome, error) {
	return s.meshOp(OpRemoveNoise, func(m *mesh.Mesh) error {
		stats, err := segmentation.RemoveNoiseWithStats(m, minComponentSize)
		if err != nil {
			return err
		}
		s.logger.Debugw("noise removed",
			"threshold", stats.Threshold,
			"components", stats.Components,
			"removed_components", stats.RemovedComponents,
			"removed_vertices", stats.RemovedVertices,
			"removed_triangles", stats.RemovedTriangles)
		return nil
	})
}

// FindLargestComponent keeps only the largest edge connected piece of the current mesh.
func (s *Service) FindLargestComponent() (Outcome, error) {
	return s.meshOp(OpFindLargestComponent, segmentation.FindLargestComponent)
}

// LaplacianSmooth smooths the current mesh.
func (s *Service) LaplacianSmooth(lambda float64, iterations int) (Outcome, error) {
	return s.meshOp(OpLaplacianSmooth, func(m *mesh.Mesh) error {
		return smoothing.LaplacianSmooth(m, lambda, iterations)
	})
}

// SmoothBoundaries smooths the open boundary of the current mesh.
func (s *Service) SmoothBoundaries(factor float64, iterations int) (Outcome, error) {
	return s.meshOp(OpSmoothBoundaries, func(m *mesh.Mesh) error {
		return smoothing.SmoothBoundaries(m, factor, iterations)
	})
}

// Reconstruct replaces the current point cloud with a surface extracted by marching cubes.
func (s *Service) Reconstruct(voxelSize, isoLevel float64) (Outcome, error) {
	return s.ReconstructWithOptions(reconstruction.Options{VoxelSize: voxelSize, IsoLevel: isoLevel})
}

// ReconstructWithOptions is Reconstruct with every reconstruction option exposed. Triangles with
// near coincident corners are filtered from the result.
func (s *Service) ReconstructWithOptions(opts reconstruction.Options) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloud := s.model.Cloud()
	if cloud == nil {
		if s.model.Kind() == KindNone {
			return Outcome{}, errors.Wrap(ErrNoModel, OpReconstruct)
		}
		return Outcome{}, errors.Wrapf(ErrNotApplicable, "%s on a %s", OpReconstruct, s.model.Kind())
	}

	start := time.Now()
	m, err := reconstruction.ReconstructWithOptions(cloud.Points(), opts)
	if err != nil {
		return Outcome{}, errors.Wrap(err, OpReconstruct)
	}
	if dropped := m.DropDegenerate(opts.VoxelSize * degenerateFraction); dropped > 0 {
		s.logger.Debugw("dropped degenerate triangles", "count", dropped)
	}

	prior := s.model
	s.model = NewMeshModel(m)
	out := s.outcome(OpReconstruct, start)
	if out.Empty && s.opts.KeepPriorOnEmpty {
		s.model = prior
		out.Kind = prior.Kind()
		out.Vertices, out.Triangles = prior.Counts()
		out.Reverted = true
	}
	s.report(out)
	return out, nil
}

// Submit runs fn on the service's task runner. The operation inside fn holds the model lock as
// usual, so background work is serialized with foreground calls.
func (s *Service) Submit(name string, fn func(ctx context.Context) error) (*Task, error) {
	return s.tasks.Submit(name, fn)
}

// Run applies a pipeline: load, optional reconstruction when the input is a point cloud, normals,
// noise removal, largest component, laplacian then boundary smoothing, and save when an output is
// set. Reconstruction and saving run as background tasks that Run waits on with ctx. The
// pipeline's keep_prior_on_empty applies for the duration of the run. It returns the outcome of
// every step that ran.
func (s *Service) Run(ctx context.Context, p *config.Pipeline) ([]Outcome, error) {
	if err := p.Validate("pipeline"); err != nil {
		return nil, err
	}
	if p.KeepPriorOnEmpty {
		s.mu.Lock()
		keep := s.opts.KeepPriorOnEmpty
		s.opts.KeepPriorOnEmpty = true
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.opts.KeepPriorOnEmpty = keep
			s.mu.Unlock()
		}()
	}
	var outcomes []Outcome
	step := func(fn func() (Outcome, error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := fn()
		if err != nil {
			return err
		}
		outcomes = append(outcomes, out)
		return nil
	}
	background := func(name string, fn func() (Outcome, error)) func() (Outcome, error) {
		return func() (Outcome, error) {
			var out Outcome
			task, err := s.Submit(name, func(context.Context) error {
				var err error
				out, err = fn()
				return err
			})
			if err != nil {
				return Outcome{}, err
			}
			if err := task.Wait(ctx); err != nil {
				return Outcome{}, err
			}
			return out, nil
		}
	}

	if err := step(func() (Outcome, error) { return s.Load(p.Input) }); err != nil {
		return outcomes, err
	}
	kind := s.Model().Kind()
	if r := p.Reconstruct; r != nil {
		if kind != KindPointCloud {
			return outcomes, errors.Wrapf(ErrNotApplicable, "%s on a %s", OpReconstruct, kind)
		}
		opts := reconstruction.Options{VoxelSize: r.VoxelSize, IsoLevel: r.IsoLevel, MaxGridCells: r.MaxGridCells}
		if err := step(background(OpReconstruct, func() (Outcome, error) { return s.ReconstructWithOptions(opts) })); err != nil {
			return outcomes, err
		}
	}

	if s.Model().Kind() == KindTriangleMesh {
		steps := []func() (Outcome, error){s.ComputeNormals}
		if n := p.RemoveNoise; n != nil {
			steps = append(steps, func() (Outcome, error) { return s.RemoveNoise(n.MinComponentSize) })
		}
		if p.LargestComponent {
			steps = append(steps, s.FindLargestComponent)
		}
		if l := p.Laplacian; l != nil {
			steps = append(steps, func() (Outcome, error) { return s.LaplacianSmooth(l.Factor, l.Iterations) })
		}
		if b := p.Boundaries; b != nil {
			steps = append(steps, func() (Outcome, error) { return s.SmoothBoundaries(b.Factor, b.Iterations) })
		}
		for _, fn := range steps {
			if err := step(fn); err != nil {
				return outcomes, err
			}
		}
	} else {
		s.logger.Infow("model is not a mesh, skipping mesh operations", "kind", s.Model().Kind())
	}

	if p.Output != "" {
		opts := meshio.ExportOptions{Binary: p.BinaryOutput}
		if err := step(background(OpSave, func() (Outcome, error) { return s.Save(p.Output, opts) })); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}
