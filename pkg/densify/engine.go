// Package densify merges sparse per-patch motion estimates into a dense
// per-pixel flow field. Each active patch scatter-accumulates its flow
// vector, weighted by the inverse of its photometric cost, into shared flow
// and weight buffers; a final normalization pass divides the two.
package densify

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"patchflow/internal/models"
)

// Config carries the scalar configuration of a densification engine.
type Config struct {
	// Width and Height are the dense buffer dimensions in pixels.
	Width  int
	Height int

	// PatchSize is the square patch extent; every descriptor's cost buffer
	// must hold models.CostChannels * PatchSize * PatchSize values.
	PatchSize int

	// MinError is the floor applied to every channel cost before inversion.
	// It prevents division blow-up on near-perfect matches and must be
	// positive.
	MinError float64

	// Workers is the number of concurrent accumulation workers. Zero selects
	// runtime.NumCPU().
	Workers int
}

// Engine owns the dense flow and weight accumulators for one densification
// pass. The accumulators are the only shared mutable state in the pipeline;
// all writes to them go through atomic adds, the sole synchronization
// primitive used. They are scoped to a single pass and must be re-zeroed
// with Reset before being reused.
//
// The buffers store float64 bit patterns in uint64 slots so that the
// compare-and-swap accumulation loop needs no unsafe pointer casts. Flow
// slot k pairs with weight slot k/2.
type Engine struct {
	cfg Config

	flow   []uint64 // 2 per pixel, float64 bits
	weight []uint64 // 1 per pixel, float64 bits
}

// NewEngine validates the configuration and allocates zeroed accumulators.
// Configuration errors are fatal to the launch and reported unmodified; the
// engine performs no retry.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("densify: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.PatchSize <= 0 {
		return nil, fmt.Errorf("densify: invalid patch size %d", cfg.PatchSize)
	}
	if cfg.MinError <= 0 {
		return nil, fmt.Errorf("densify: minimum error floor must be positive, got %g", cfg.MinError)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	return &Engine{
		cfg:    cfg,
		flow:   make([]uint64, 2*cfg.Width*cfg.Height),
		weight: make([]uint64, cfg.Width*cfg.Height),
	}, nil
}

// Reset zeroes both accumulators, preparing the engine for a new pass.
func (e *Engine) Reset() {
	for i := range e.flow {
		e.flow[i] = 0
	}
	for i := range e.weight {
		e.weight[i] = 0
	}
}

// AccumulatePatch scatters a single patch into the accumulators. It is the
// incremental invocation shape, used when patches become ready one at a
// time, and routes through the same accumulation rule as AccumulateBatch.
func (e *Engine) AccumulatePatch(d models.PatchDescriptor) error {
	return e.scatter([]models.PatchDescriptor{d})
}

// AccumulateBatch scatters a set of patches into the accumulators in one
// pass. Batched and repeated single-patch invocations agree up to
// floating-point summation order.
func (e *Engine) AccumulateBatch(ds []models.PatchDescriptor) error {
	return e.scatter(ds)
}

// scatter is the unified accumulation kernel, parameterized only by the
// descriptor-list length. Workers stride over the global row index across
// all patches, so a single large patch is still spread over every worker.
//
// Per covered pixel the confidence weight is
//
//	w = 1 / (max(eps, costR) + max(eps, costG) + max(eps, costB))
//
// i.e. the channel costs are floored first and the sum inverted once.
// Pixels whose projected position falls outside the buffer are clipped.
// Writes use atomic adds: patches are spaced closer than their extent, so a
// pixel routinely receives contributions from several workers at once.
func (e *Engine) scatter(ds []models.PatchDescriptor) error {
	size := e.cfg.PatchSize
	want := models.CostChannels * size * size
	for i, d := range ds {
		if len(d.Cost) != want {
			return fmt.Errorf("densify: patch %d cost buffer has %d values, want %d", i, len(d.Cost), want)
		}
	}

	half := size / 2
	totalRows := len(ds) * size

	workers := e.cfg.Workers
	if workers > totalRows {
		workers = totalRows
	}

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for r := g; r < totalRows; r += workers {
				d := &ds[r/size]
				row := r % size
				iy := d.MidY - half + row
				if iy < 0 || iy >= e.cfg.Height {
					continue
				}
				for px := 0; px < size; px++ {
					ix := d.MidX - half + px
					if ix < 0 || ix >= e.cfg.Width {
						continue
					}

					ci := models.CostChannels * (row*size + px)
					sum := 0.0
					for c := 0; c < models.CostChannels; c++ {
						sum += math.Max(e.cfg.MinError, d.Cost[ci+c])
					}
					w := 1.0 / sum

					pi := iy*e.cfg.Width + ix
					atomicAdd(&e.weight[pi], w)
					atomicAdd(&e.flow[2*pi], d.FlowX*w)
					atomicAdd(&e.flow[2*pi+1], d.FlowY*w)
				}
			}
		}(g)
	}
	wg.Wait()

	return nil
}

// Flow returns a decoded copy of the flow accumulator, 2 float64 per pixel.
func (e *Engine) Flow() []float64 {
	return decode(e.flow)
}

// Weight returns a decoded copy of the weight accumulator, 1 float64 per
// pixel.
func (e *Engine) Weight() []float64 {
	return decode(e.weight)
}

// atomicAdd adds v to the float64 stored as bits in slot, retrying the
// compare-and-swap until no concurrent writer interferes. A plain
// read-modify-write here would lose updates from overlapping patches.
func atomicAdd(slot *uint64, v float64) {
	for {
		old := atomic.LoadUint64(slot)
		upd := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(slot, old, upd) {
			return
		}
	}
}

func decode(bits []uint64) []float64 {
	out := make([]float64, len(bits))
	for i, b := range bits {
		out[i] = math.Float64frombits(b)
	}
	return out
}
