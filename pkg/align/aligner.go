// Package align implements a single forward-additive Gauss-Newton
// refinement step for photometric patch alignment, following the classic
// Lucas-Kanade scheme: warp template pixels into the target image, measure
// intensity residuals, and solve the normal equations for an additive
// parameter update.
package align

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"patchflow/internal/models"
	"patchflow/pkg/sampler"
	"patchflow/pkg/warp"
)

// ErrSingularSystem is returned when the Gauss-Newton normal equations are
// not invertible, typically because the template carries no usable gradient
// (constant intensity) or too few pixels contributed. The step applies no
// parameter update in that case; the outer loop should stop iterating the
// affected patch.
var ErrSingularSystem = errors.New("align: singular normal equations")

// Sampler provides bilinear intensity and gradient access to the target
// image. It is satisfied by *sampler.Image and may be substituted by the
// caller.
type Sampler interface {
	Bilinear(x, y float64) float64
	Gradient(x, y float64) (gx, gy float64)
	Inside(x, y float64, margin int) bool
}

// StepResult reports the outcome of a single alignment step for the outer
// convergence policy. The aligner itself never decides when to stop.
type StepResult struct {
	// Delta is the parameter update that was applied.
	Delta []float64

	// SumSquaredErrors is the accumulated squared intensity residual over
	// all contributing pixels.
	SumSquaredErrors float64

	// NumConstraints counts the template pixels that contributed to the
	// step; out-of-bounds warps reduce it.
	NumConstraints int
}

// Aligner performs Gauss-Newton steps aligning one template against a
// target image. The template's pixel (x, y) is interpreted as the image
// coordinate (originX+x, originY+y), which lets a patch cropped out of a
// frame keep reasoning in full-image coordinates.
type Aligner struct {
	tpl              *sampler.Image
	target           Sampler
	originX, originY int
}

// NewAligner creates an aligner whose template coordinates coincide with
// image coordinates.
func NewAligner(tpl *sampler.Image, target Sampler) *Aligner {
	return &Aligner{tpl: tpl, target: target}
}

// NewAlignerAt creates an aligner for a template cropped from a larger
// frame at the given origin.
func NewAlignerAt(tpl *sampler.Image, target Sampler, originX, originY int) *Aligner {
	return &Aligner{tpl: tpl, target: target, originX: originX, originY: originY}
}

// Step performs one Gauss-Newton refinement of the warp parameters,
// minimizing the sum of squared intensity errors between the template and
// the warped target. On success the computed delta has already been applied
// forward-additively to w.
//
// Every interior template pixel is visited; a 1-pixel border is excluded
// because gradient sampling needs neighbours. Pixels whose warped coordinate
// falls outside the target (with a 1-pixel sampling margin) are silently
// excluded from the step. Gradients and jacobians are recomputed from
// scratch on every step; forward-additive alignment admits no useful
// precomputation.
//
// If cost is non-nil it must hold models.CostChannels values per template
// pixel; contributing pixels get their squared residual written to every
// channel, excluded pixels keep whatever value the caller pre-filled.
//
// When the normal equations are singular, no parameters are mutated and
// ErrSingularSystem is returned along with the residual statistics gathered
// so far.
func (a *Aligner) Step(w warp.Warp, cost []float64) (StepResult, error) {
	n := w.NumParameters()

	hess := make([]float64, n*n)
	rhs := make([]float64, n)
	sd := make([]float64, n)

	res := StepResult{}

	for y := 1; y < a.tpl.Height-1; y++ {
		for x := 1; x < a.tpl.Width-1; x++ {
			tplX := float64(a.originX + x)
			tplY := float64(a.originY + y)

			// 1. Warp the fixed template coordinate into target space.
			tgtX, tgtY := w.Apply(tplX, tplY)
			if !a.target.Inside(tgtX, tgtY, 1) {
				continue
			}

			// 2. Photometric residual at the warped position.
			err := a.tpl.At(x, y) - a.target.Bilinear(tgtX, tgtY)
			res.SumSquaredErrors += err * err
			res.NumConstraints++

			if cost != nil {
				ci := models.CostChannels * (y*a.tpl.Width + x)
				for c := 0; c < models.CostChannels; c++ {
					cost[ci+c] = err * err
				}
			}

			// 3. Target gradient at the warped position, warp jacobian at
			// the template position, combined into the steepest-descent row.
			gx, gy := a.target.Gradient(tgtX, tgtY)
			jac := w.Jacobian(tplX, tplY)
			for k := 0; k < n; k++ {
				sd[k] = gx*jac.At(0, k) + gy*jac.At(1, k)
			}

			// 4. Accumulate the normal equations.
			for i := 0; i < n; i++ {
				rhs[i] += sd[i] * err
				for j := 0; j < n; j++ {
					hess[i*n+j] += sd[i] * sd[j]
				}
			}
		}
	}

	// Solve hessian * delta = rhs. The Gauss-Newton Hessian is symmetric
	// positive semi-definite; a failed Cholesky factorization is exactly the
	// degenerate-step condition.
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, hess)); !ok {
		return res, ErrSingularSystem
	}

	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, mat.NewVecDense(n, rhs)); err != nil {
		return res, ErrSingularSystem
	}

	res.Delta = make([]float64, n)
	copy(res.Delta, delta.RawVector().Data)
	w.UpdateForwardAdditive(res.Delta)

	return res, nil
}
