// Package warp provides the parameterized geometric transforms used by
// forward-additive patch alignment. Each motion family owns nothing beyond
// its parameter vector and exposes pure apply/jacobian operations, so a
// single warp is safely owned by a single patch.
package warp

import (
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// Warp maps template-space coordinates into target-image space under a
// parameter vector that is refined by additive updates.
type Warp interface {
	// Apply warps the coordinate (x, y) into target-image space.
	Apply(x, y float64) (float64, float64)

	// Jacobian returns the 2×NumParameters matrix of partial derivatives of
	// the warped position with respect to the parameters, evaluated at the
	// template-space coordinate (x, y).
	Jacobian(x, y float64) *mat.Dense

	// NumParameters returns the degrees of freedom of the motion family.
	NumParameters() int

	// UpdateForwardAdditive adds delta to the parameter vector. The update
	// is a plain vector add for every motion family; that property defines
	// the forward-additive alignment scheme.
	UpdateForwardAdditive(delta []float64)

	// Params returns a copy of the current parameter vector.
	Params() []float64
}

// Translation is a 2-parameter warp: a pure (tx, ty) displacement.
type Translation struct {
	t [2]float64
}

// NewTranslation returns an identity translation warp.
func NewTranslation() *Translation {
	return &Translation{}
}

// Apply shifts the coordinate by the current displacement.
func (w *Translation) Apply(x, y float64) (float64, float64) {
	return x + w.t[0], y + w.t[1]
}

// Jacobian of a translation is the identity regardless of position.
func (w *Translation) Jacobian(x, y float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})
}

// NumParameters returns 2.
func (w *Translation) NumParameters() int { return 2 }

// UpdateForwardAdditive adds the delta to the displacement.
func (w *Translation) UpdateForwardAdditive(delta []float64) {
	w.t[0] += delta[0]
	w.t[1] += delta[1]
}

// Params returns a copy of (tx, ty).
func (w *Translation) Params() []float64 {
	return []float64{w.t[0], w.t[1]}
}

// Affine is a 6-parameter warp. The parameters are the entries of the
// row-major 2×3 affine matrix, stored as an f64.Aff3:
//
//	[ p0 p1 p2 ]
//	[ p3 p4 p5 ]
type Affine struct {
	m f64.Aff3
}

// NewAffine returns an identity affine warp.
func NewAffine() *Affine {
	return &Affine{m: f64.Aff3{1, 0, 0, 0, 1, 0}}
}

// Apply multiplies the homogeneous coordinate by the affine matrix.
func (w *Affine) Apply(x, y float64) (float64, float64) {
	return w.m[0]*x + w.m[1]*y + w.m[2],
		w.m[3]*x + w.m[4]*y + w.m[5]
}

// Jacobian of the affine warp with respect to its six matrix entries.
func (w *Affine) Jacobian(x, y float64) *mat.Dense {
	return mat.NewDense(2, 6, []float64{
		x, y, 1, 0, 0, 0,
		0, 0, 0, x, y, 1,
	})
}

// NumParameters returns 6.
func (w *Affine) NumParameters() int { return 6 }

// UpdateForwardAdditive adds the delta to the matrix entries.
func (w *Affine) UpdateForwardAdditive(delta []float64) {
	for i := 0; i < 6; i++ {
		w.m[i] += delta[i]
	}
}

// Params returns a copy of the six matrix entries.
func (w *Affine) Params() []float64 {
	out := make([]float64, 6)
	copy(out, w.m[:])
	return out
}

// Homography is an 8-parameter projective warp. The parameters are the
// first eight entries of the row-major 3×3 matrix; the last entry is fixed
// at 1:
//
//	[ p0 p1 p2 ]
//	[ p3 p4 p5 ]
//	[ p6 p7  1 ]
type Homography struct {
	h [8]float64
}

// NewHomography returns an identity homography.
func NewHomography() *Homography {
	return &Homography{h: [8]float64{1, 0, 0, 0, 1, 0, 0, 0}}
}

// Apply performs the projective transform with perspective division.
func (w *Homography) Apply(x, y float64) (float64, float64) {
	d := w.h[6]*x + w.h[7]*y + 1
	return (w.h[0]*x + w.h[1]*y + w.h[2]) / d,
		(w.h[3]*x + w.h[4]*y + w.h[5]) / d
}

// Jacobian of the homography with respect to its eight free entries.
func (w *Homography) Jacobian(x, y float64) *mat.Dense {
	d := w.h[6]*x + w.h[7]*y + 1
	wx := (w.h[0]*x + w.h[1]*y + w.h[2]) / d
	wy := (w.h[3]*x + w.h[4]*y + w.h[5]) / d

	return mat.NewDense(2, 8, []float64{
		x / d, y / d, 1 / d, 0, 0, 0, -wx * x / d, -wx * y / d,
		0, 0, 0, x / d, y / d, 1 / d, -wy * x / d, -wy * y / d,
	})
}

// NumParameters returns 8.
func (w *Homography) NumParameters() int { return 8 }

// UpdateForwardAdditive adds the delta to the free matrix entries.
func (w *Homography) UpdateForwardAdditive(delta []float64) {
	for i := 0; i < 8; i++ {
		w.h[i] += delta[i]
	}
}

// Params returns a copy of the eight free matrix entries.
func (w *Homography) Params() []float64 {
	out := make([]float64, 8)
	copy(out, w.h[:])
	return out
}
