package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"patchflow/internal/models"
	"patchflow/pkg/config"
	"patchflow/pkg/flow"
	"patchflow/pkg/sampler"
	"patchflow/pkg/visualization"
)

func main() {
	// Parse command line arguments
	templatePath := flag.String("template", "", "First frame (template image)")
	targetPath := flag.String("target", "", "Second frame (target image)")
	configPath := flag.String("config", "patchflow.yaml", "Configuration file (YAML)")
	outputDir := flag.String("output", ".", "Directory for the rendered flow images")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores to use (default: all available)")
	flag.Parse()

	// Validate inputs
	if *templatePath == "" || *targetPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	template, err := loadImage(*templatePath)
	if err != nil {
		log.Fatalf("Failed to load template frame: %v", err)
	}
	target, err := loadImage(*targetPath)
	if err != nil {
		log.Fatalf("Failed to load target frame: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("DENSE OPTICAL FLOW FROM PATCH-BASED FORWARD-ADDITIVE ALIGNMENT")
	fmt.Println("================================")
	fmt.Printf("Frames: %dx%d, patch size %d, stride %d, model %s\n",
		template.Width, template.Height,
		cfg.Grid.PatchSize, cfg.Grid.Stride, cfg.Alignment.Model)

	estimator, err := flow.NewEstimator(template, target, flow.Params{
		PatchSize:     cfg.Grid.PatchSize,
		Stride:        cfg.Grid.Stride,
		Model:         cfg.Alignment.Model,
		MaxIterations: cfg.Alignment.MaxIterations,
		Tolerance:     cfg.Alignment.Tolerance,
		MinError:      cfg.Densify.MinError,
		Workers:       *numCores,
	})
	if err != nil {
		log.Fatalf("Failed to set up flow estimation: %v", err)
	}

	if cfg.Output.Verbose {
		estimator.SetProgressCallback(func(completed, total int, message string) {
			if message != "" {
				fmt.Println(message)
			} else {
				fmt.Printf("\rAligning patches: %d/%d", completed, total)
				if completed >= total {
					fmt.Println()
				}
			}
		})
	}

	// Run the alignment and densification pipeline
	fmt.Println("Estimating dense flow with parallel processing...")
	field := models.NewFlowField(template.Width, template.Height)
	startTime := time.Now()
	if err := estimator.Run(field); err != nil {
		log.Fatalf("Flow estimation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	// Display validation metrics
	metrics := estimator.Metrics()
	fmt.Printf("\nFlow estimation completed in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Patches aligned: %d\n", metrics.Patches)
	fmt.Printf("  converged:  %d\n", metrics.Converged)
	fmt.Printf("  degenerate: %d\n", metrics.Degenerate)
	fmt.Printf("Mean RMS residual: %.6f (std %.6f)\n", metrics.MeanResidual, metrics.StdResidual)

	// Render the field
	viewer := visualization.NewViewer(field)
	magnitudePath := filepath.Join(*outputDir, cfg.Output.MagnitudeImage)
	if err := viewer.SaveImage(viewer.MagnitudeImage(), magnitudePath); err != nil {
		log.Printf("Warning: Failed to save magnitude image: %v", err)
	} else {
		fmt.Printf("Flow magnitude saved to: %s\n", magnitudePath)
	}
	directionPath := filepath.Join(*outputDir, cfg.Output.DirectionImage)
	if err := viewer.SaveImage(viewer.DirectionImage(), directionPath); err != nil {
		log.Printf("Warning: Failed to save direction image: %v", err)
	} else {
		fmt.Printf("Flow direction saved to: %s\n", directionPath)
	}
}

// loadImage decodes an image file and converts it to a float intensity
// image.
func loadImage(path string) (*sampler.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return sampler.FromImage(img), nil
}
