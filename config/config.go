// Package config defines the processing pipeline configuration and reads it from JSON files or
// attribute maps.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshproc/logging"
)

// Defaults used when a section is present but leaves a field unset.
const (
	DefaultVoxelSize        = 0.1
	DefaultIsoLevel         = 1.0
	DefaultMinComponentSize = 100
	DefaultLaplacianLambda  = 0.05
	DefaultLaplacianPasses  = 5
	DefaultBoundaryFactor   = 0.6
	DefaultBoundaryPasses   = 5
)

// Noise configures small component removal.
type Noise struct {
	MinComponentSize int `json:"min_component_size"`
}

// Smoothing configures a laplacian or boundary smoothing pass. Factor is the blend towards the
// neighbour average.
type Smoothing struct {
	Factor     float64 `json:"factor"`
	Iterations int     `json:"iterations"`
}

// Reconstruction configures marching cubes surface reconstruction.
type Reconstruction struct {
	VoxelSize    float64 `json:"voxel_size"`
	IsoLevel     float64 `json:"iso_level"`
	MaxGridCells int     `json:"max_grid_cells,omitempty"`
}

// Pipeline describes one import, process, export run. Optional stages are nil when disabled.
// Reconstruction runs first, the mesh stages follow in field order.
type Pipeline struct {
	Input        string `json:"input"`
	Output       string `json:"output,omitempty"`
	BinaryOutput bool   `json:"binary_output,omitempty"`

	RemoveNoise      *Noise          `json:"remove_noise,omitempty"`
	LargestComponent bool            `json:"largest_component,omitempty"`
	Laplacian        *Smoothing      `json:"laplacian,omitempty"`
	Boundaries       *Smoothing      `json:"boundaries,omitempty"`
	Reconstruct      *Reconstruction `json:"reconstruct,omitempty"`

	// KeepPriorOnEmpty restores the previous model when a stage leaves nothing behind.
	KeepPriorOnEmpty bool   `json:"keep_prior_on_empty,omitempty"`
	LogLevel         string `json:"log_level,omitempty"`
}

// Default returns a pipeline with every processing stage enabled at its default settings.
func Default(input, output string) *Pipeline {
	p := &Pipeline{
		Input:            input,
		Output:           output,
		RemoveNoise:      &Noise{},
		LargestComponent: true,
		Laplacian:        &Smoothing{},
		Boundaries:       &Smoothing{},
	}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills unset fields of enabled stages.
func (p *Pipeline) ApplyDefaults() {
	if p.RemoveNoise != nil && p.RemoveNoise.MinComponentSize == 0 {
		p.RemoveNoise.MinComponentSize = DefaultMinComponentSize
	}
	fill := func(s *Smoothing, factor float64, passes int) {
		if s == nil {
			return
		}
		if s.Factor == 0 {
			s.Factor = factor
		}
		if s.Iterations == 0 {
			s.Iterations = passes
		}
	}
	fill(p.Laplacian, DefaultLaplacianLambda, DefaultLaplacianPasses)
	fill(p.Boundaries, DefaultBoundaryFactor, DefaultBoundaryPasses)
	if r := p.Reconstruct; r != nil {
		if r.VoxelSize == 0 {
			r.VoxelSize = DefaultVoxelSize
		}
		if r.IsoLevel == 0 {
			r.IsoLevel = DefaultIsoLevel
		}
	}
}

// Validate returns every problem with the pipeline combined.
func (p *Pipeline) Validate(path string) error {
	var err error
	if p.Input == "" {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "input"))
	}
	if p.RemoveNoise != nil && p.RemoveNoise.MinComponentSize < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("remove_noise.min_component_size must not be negative, got %d", p.RemoveNoise.MinComponentSize)))
	}
	err = multierr.Append(err, p.Laplacian.validate(fmt.Sprintf("%s.laplacian", path)))
	err = multierr.Append(err, p.Boundaries.validate(fmt.Sprintf("%s.boundaries", path)))
	if r := p.Reconstruct; r != nil {
		if !(r.VoxelSize > 0) || math.IsInf(r.VoxelSize, 0) {
			err = multierr.Append(err, utils.NewConfigValidationError(path,
				errors.Errorf("reconstruct.voxel_size must be positive, got %v", r.VoxelSize)))
		}
		if !(r.IsoLevel > 0) || math.IsInf(r.IsoLevel, 0) {
			err = multierr.Append(err, utils.NewConfigValidationError(path,
				errors.Errorf("reconstruct.iso_level must be positive, got %v", r.IsoLevel)))
		}
		if r.MaxGridCells < 0 {
			err = multierr.Append(err, utils.NewConfigValidationError(path,
				errors.Errorf("reconstruct.max_grid_cells must not be negative, got %d", r.MaxGridCells)))
		}
	}
	if p.LogLevel != "" {
		if _, lvlErr := logging.LevelFromString(p.LogLevel); lvlErr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(path, lvlErr))
		}
	}
	return err
}

func (s *Smoothing) validate(path string) error {
	if s == nil {
		return nil
	}
	var err error
	if math.IsNaN(s.Factor) || s.Factor < 0 || s.Factor > 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("factor must be within [0, 1], got %v", s.Factor)))
	}
	if s.Iterations < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("iterations must not be negative, got %d", s.Iterations)))
	}
	return err
}

// Read reads, defaults and validates a pipeline from a JSON file.
func Read(path string) (*Pipeline, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	return validated(p)
}

// Load reads and defaults a pipeline from a JSON file without validating it, for callers that
// fill in fields such as the input afterwards.
func Load(path string) (*Pipeline, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config file")
	}
	return decode(bytes.NewReader(data))
}

// FromReader decodes, defaults and validates a JSON pipeline. Unknown keys are rejected.
func FromReader(r io.Reader) (*Pipeline, error) {
	p, err := decode(r)
	if err != nil {
		return nil, err
	}
	return validated(p)
}

func decode(r io.Reader) (*Pipeline, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	p.ApplyDefaults()
	return &p, nil
}

// FromAttributes decodes a pipeline from a generic attribute map, as produced by decoding
// arbitrary JSON or YAML, using the json field names.
func FromAttributes(attrs map[string]interface{}) (*Pipeline, error) {
	var p Pipeline
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &p, ErrorUnused: true})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode config attributes")
	}
	p.ApplyDefaults()
	return validated(&p)
}

func validated(p *Pipeline) (*Pipeline, error) {
	if err := p.Validate("pipeline"); err != nil {
		return nil, err
	}
	return p, nil
}
