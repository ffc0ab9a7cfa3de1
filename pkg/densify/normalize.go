package densify

import (
	"fmt"
	"math"
	"sync"

	"patchflow/internal/models"
)

// NormalizeInto converts the accumulated (flow, weight) buffers into the
// final per-pixel flow field: out[i] = flow[i] / weight[i] component-wise
// wherever weight[i] > 0. Pixels with zero accumulated weight are left
// untouched, so whatever value the caller pre-filled stands; the pass never
// writes a default of its own.
//
// The sweep has no cross-pixel dependencies and only reads the
// accumulators, so it is idempotent and safe to run any number of times on
// the same inputs.
func (e *Engine) NormalizeInto(out *models.FlowField) error {
	if out.Width != e.cfg.Width || out.Height != e.cfg.Height {
		return fmt.Errorf("densify: flow field is %dx%d, engine is %dx%d",
			out.Width, out.Height, e.cfg.Width, e.cfg.Height)
	}

	pixels := e.cfg.Width * e.cfg.Height
	workers := e.cfg.Workers
	if workers > pixels {
		workers = pixels
	}

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < pixels; i += workers {
				w := math.Float64frombits(e.weight[i])
				if w <= 0 {
					continue
				}
				out.Vec[2*i] = math.Float64frombits(e.flow[2*i]) / w
				out.Vec[2*i+1] = math.Float64frombits(e.flow[2*i+1]) / w
			}
		}(g)
	}
	wg.Wait()

	return nil
}
