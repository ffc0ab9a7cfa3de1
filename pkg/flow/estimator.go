// Package flow drives the dense optical flow pipeline: it plants patches on
// a sparse grid over the template frame, iterates forward-additive
// Gauss-Newton alignment per patch, and densifies the per-patch motion
// estimates into a single per-pixel flow field.
package flow

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"

	"patchflow/internal/models"
	"patchflow/pkg/align"
	"patchflow/pkg/densify"
	"patchflow/pkg/sampler"
	"patchflow/pkg/warp"
)

// Motion model names accepted by Params.Model.
const (
	ModelTranslation = "translation"
	ModelAffine      = "affine"
	ModelHomography  = "homography"
)

// Params configures a flow estimation run.
type Params struct {
	// PatchSize is the square patch extent in pixels; it must be at least 3
	// so patches have interior pixels to align on.
	PatchSize int

	// Stride is the grid spacing between patch midpoints. Strides smaller
	// than PatchSize make patch extents overlap, which is what lets the
	// densification blend neighbouring estimates. Zero selects PatchSize/2.
	Stride int

	// Model selects the motion family per patch. Zero value selects
	// ModelTranslation.
	Model string

	// MaxIterations bounds the Gauss-Newton iterations per patch.
	MaxIterations int

	// Tolerance stops a patch once the norm of its parameter update falls
	// below it.
	Tolerance float64

	// MinError is the channel cost floor forwarded to the densification
	// engine.
	MinError float64

	// Workers is the worker count for both alignment and densification.
	// Zero selects runtime.NumCPU().
	Workers int
}

// Metrics summarizes a finished run for validation and reporting.
type Metrics struct {
	// Patches is the number of patches planted on the grid.
	Patches int

	// Converged counts patches whose final update norm dropped below the
	// tolerance within the iteration budget.
	Converged int

	// Degenerate counts patches stopped by a singular normal-equation
	// system; they keep their last good parameters.
	Degenerate int

	// MeanResidual and StdResidual are the mean and standard deviation of
	// the per-patch RMS photometric residuals after the last step.
	MeanResidual float64
	StdResidual  float64
}

// ProgressCallback reports per-patch alignment progress. It may be called
// from several workers; implementations must be safe for concurrent use.
type ProgressCallback func(completed, total int, message string)

// Estimator runs the full patch alignment and densification pipeline
// between a template frame and a target frame of equal dimensions.
type Estimator struct {
	template *sampler.Image
	target   *sampler.Image
	params   Params

	patches  []*models.Patch
	aligners []*align.Aligner
	engine   *densify.Engine

	residuals  []float64
	converged  []bool
	degenerate []bool

	metrics  Metrics
	progress ProgressCallback
}

// NewEstimator validates the parameters, plants the patch grid and
// allocates the densification buffers.
func NewEstimator(template, target *sampler.Image, params Params) (*Estimator, error) {
	if template.Width != target.Width || template.Height != target.Height {
		return nil, fmt.Errorf("flow: template is %dx%d but target is %dx%d",
			template.Width, template.Height, target.Width, target.Height)
	}
	if params.PatchSize < 3 {
		return nil, fmt.Errorf("flow: patch size %d leaves no interior pixels", params.PatchSize)
	}
	if params.Stride <= 0 {
		params.Stride = params.PatchSize / 2
	}
	if params.Model == "" {
		params.Model = ModelTranslation
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = 20
	}
	if params.Tolerance <= 0 {
		params.Tolerance = 1e-3
	}
	if params.MinError <= 0 {
		params.MinError = 1e-4
	}
	if params.Workers <= 0 {
		params.Workers = runtime.NumCPU()
	}

	engine, err := densify.NewEngine(densify.Config{
		Width:     template.Width,
		Height:    template.Height,
		PatchSize: params.PatchSize,
		MinError:  params.MinError,
		Workers:   params.Workers,
	})
	if err != nil {
		return nil, err
	}

	e := &Estimator{
		template: template,
		target:   target,
		params:   params,
		engine:   engine,
	}

	// Plant patches on a regular grid, keeping every patch extent fully
	// inside the template so each one has a complete intensity neighbourhood
	// to match against.
	size := params.PatchSize
	half := size / 2
	for midY := half; midY-half+size <= template.Height; midY += params.Stride {
		for midX := half; midX-half+size <= template.Width; midX += params.Stride {
			w, err := newWarp(params.Model)
			if err != nil {
				return nil, err
			}

			originX := midX - half
			originY := midY - half
			tpl := template.SubImage(image.Rect(originX, originY, originX+size, originY+size))

			e.patches = append(e.patches, models.NewPatch(midX, midY, size, w))
			e.aligners = append(e.aligners, align.NewAlignerAt(tpl, target, originX, originY))
		}
	}

	if len(e.patches) == 0 {
		return nil, fmt.Errorf("flow: %dx%d frame holds no %dx%d patch",
			template.Width, template.Height, size, size)
	}

	e.residuals = make([]float64, len(e.patches))
	e.converged = make([]bool, len(e.patches))
	e.degenerate = make([]bool, len(e.patches))

	return e, nil
}

// SetProgressCallback installs a callback invoked as patches finish
// aligning.
func (e *Estimator) SetProgressCallback(cb ProgressCallback) {
	e.progress = cb
}

// Run aligns every patch, densifies the results and normalizes them into
// out, which must match the frame dimensions. Pixels no patch covers keep
// the value the caller pre-filled in out.
func (e *Estimator) Run(out *models.FlowField) error {
	e.alignPatches()

	// Snapshot all patches for the parallel-compute side; the host patches
	// stay authoritative and the snapshots die with this pass.
	descriptors := make([]models.PatchDescriptor, len(e.patches))
	for i, p := range e.patches {
		descriptors[i] = p.Snapshot()
	}

	e.engine.Reset()
	if err := e.engine.AccumulateBatch(descriptors); err != nil {
		return err
	}
	if err := e.engine.NormalizeInto(out); err != nil {
		return err
	}

	e.metrics = Metrics{
		Patches:      len(e.patches),
		MeanResidual: stat.Mean(e.residuals, nil),
		StdResidual:  stat.StdDev(e.residuals, nil),
	}
	for i := range e.patches {
		if e.converged[i] {
			e.metrics.Converged++
		}
		if e.degenerate[i] {
			e.metrics.Degenerate++
		}
	}

	return nil
}

// Metrics returns the summary of the most recent Run.
func (e *Estimator) Metrics() Metrics {
	return e.metrics
}

// alignPatches iterates Gauss-Newton steps for every patch. Each patch is
// owned by exactly one worker, so patch state needs no synchronization;
// only the progress counter is shared.
func (e *Estimator) alignPatches() {
	workers := e.params.Workers
	if workers > len(e.patches) {
		workers = len(e.patches)
	}

	var mu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < len(e.patches); i += workers {
				e.alignPatch(i)

				if e.progress != nil {
					mu.Lock()
					completed++
					e.progress(completed, len(e.patches), "")
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()
}

// alignPatch runs the outer convergence loop for one patch: iterate until
// the update norm drops below tolerance, the budget runs out, or the step
// degenerates. A degenerate step leaves the last good parameters in place.
func (e *Estimator) alignPatch(i int) {
	p := e.patches[i]

	for it := 0; it < e.params.MaxIterations; it++ {
		p.ResetCost()
		res, err := e.aligners[i].Step(p.Warp, p.Cost)
		if errors.Is(err, align.ErrSingularSystem) {
			e.degenerate[i] = true
			return
		}

		if res.NumConstraints > 0 {
			e.residuals[i] = math.Sqrt(res.SumSquaredErrors / float64(res.NumConstraints))
		}

		if deltaNorm(res.Delta) < e.params.Tolerance {
			e.converged[i] = true
			return
		}
	}
}

func deltaNorm(delta []float64) float64 {
	sum := 0.0
	for _, d := range delta {
		sum += d * d
	}
	return math.Sqrt(sum)
}

// newWarp builds an identity warp of the requested motion family.
func newWarp(model string) (warp.Warp, error) {
	switch model {
	case ModelTranslation:
		return warp.NewTranslation(), nil
	case ModelAffine:
		return warp.NewAffine(), nil
	case ModelHomography:
		return warp.NewHomography(), nil
	default:
		return nil, fmt.Errorf("flow: unknown motion model %q", model)
	}
}
