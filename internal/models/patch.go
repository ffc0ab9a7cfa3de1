package models

import (
	"patchflow/pkg/warp"
)

// CostChannels is the number of photometric cost channels stored per patch
// pixel.
const CostChannels = 3

// WorstCost is the pre-fill value for cost entries. Intensities are
// normalized to [0, 1], so a squared residual never exceeds 1; pixels the
// aligner excluded from its last step keep this worst-case cost and thus
// the smallest possible confidence during densification.
const WorstCost = 1.0

// Patch is a fixed-size square pixel neighbourhood tracked as a rigid
// motion unit, anchored at an integer midpoint in image space. The host
// copy of a patch is the single source of truth; the densification engine
// only ever sees transient snapshots of it.
type Patch struct {
	// MidX, MidY is the anchor midpoint in image coordinates.
	MidX, MidY int

	// Size is the square extent of the patch in pixels.
	Size int

	// Warp holds the current motion parameters. It is owned exclusively by
	// this patch and mutated in place by forward-additive updates.
	Warp warp.Warp

	// Cost is the per-pixel photometric cost from the most recent alignment
	// step, CostChannels values per pixel in row-major patch order.
	Cost []float64
}

// NewPatch creates a patch anchored at (midX, midY) with the given square
// extent and motion model. The cost buffer starts at WorstCost everywhere.
func NewPatch(midX, midY, size int, w warp.Warp) *Patch {
	p := &Patch{
		MidX: midX,
		MidY: midY,
		Size: size,
		Warp: w,
		Cost: make([]float64, CostChannels*size*size),
	}
	p.ResetCost()
	return p
}

// ResetCost restores the worst-case pre-fill on the whole cost buffer. It is
// called before every alignment step so that pixels the step excludes do not
// inherit stale confidence.
func (p *Patch) ResetCost() {
	for i := range p.Cost {
		p.Cost[i] = WorstCost
	}
}

// Flow returns the displacement of the patch midpoint under the current
// warp parameters.
func (p *Patch) Flow() (fx, fy float64) {
	wx, wy := p.Warp.Apply(float64(p.MidX), float64(p.MidY))
	return wx - float64(p.MidX), wy - float64(p.MidY)
}

// Snapshot builds the transient descriptor handed to the densification
// engine. The descriptor copies the cost buffer, so the engine never aliases
// patch-owned state; it is rebuilt every pass and must not be treated as
// persistent storage.
func (p *Patch) Snapshot() PatchDescriptor {
	fx, fy := p.Flow()
	cost := make([]float64, len(p.Cost))
	copy(cost, p.Cost)

	return PatchDescriptor{
		MidX:  p.MidX,
		MidY:  p.MidY,
		FlowX: fx,
		FlowY: fy,
		Cost:  cost,
	}
}

// PatchDescriptor is the flat per-patch record consumed by the
// densification engine: the anchor midpoint, the current flow vector and
// the CostChannels·size² photometric cost buffer from the last alignment
// step.
type PatchDescriptor struct {
	MidX, MidY   int
	FlowX, FlowY float64
	Cost         []float64
}

// FlowField is a dense per-pixel motion field with two components per
// pixel, stored row-major as (fx, fy) pairs.
type FlowField struct {
	// Vec holds 2 float64 per pixel.
	Vec []float64

	// Width and Height are the field dimensions in pixels.
	Width, Height int
}

// NewFlowField creates a zero-valued flow field.
func NewFlowField(width, height int) *FlowField {
	return &FlowField{
		Vec:    make([]float64, 2*width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the flow vector at (x, y).
func (f *FlowField) At(x, y int) (fx, fy float64) {
	i := 2 * (y*f.Width + x)
	return f.Vec[i], f.Vec[i+1]
}

// Set stores the flow vector at (x, y).
func (f *FlowField) Set(x, y int, fx, fy float64) {
	i := 2 * (y*f.Width + x)
	f.Vec[i] = fx
	f.Vec[i+1] = fy
}

// Fill pre-fills every pixel with the given vector. Pixels never covered by
// a patch keep this value through normalization.
func (f *FlowField) Fill(fx, fy float64) {
	for i := 0; i < len(f.Vec); i += 2 {
		f.Vec[i] = fx
		f.Vec[i+1] = fy
	}
}
