// Package detectionoverlay draws object detection results onto images.
//
// It fetches detections from a backend (a remote /detect service, an Ollama
// vision model, or a JSON file), rescales the boxes from the coordinate space
// the detector saw into the pixel space of the image being annotated, and
// paints a colored outline plus a filled label tag for each detection.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		detectionoverlay "github.com/menta2k/detection-overlay"
//		"github.com/menta2k/detection-overlay/pkg/detection"
//		"github.com/menta2k/detection-overlay/pkg/remote"
//	)
//
//	func main() {
//		backend, err := remote.NewClient("http://localhost:8000")
//		if err != nil {
//			log.Fatal(err)
//		}
//		annotator := detectionoverlay.New(detection.NewDetector(backend))
//
//		ann, err := annotator.AnnotateFile(context.Background(), "street.jpg", "street_detections.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("drew %d detections", len(ann.Result.Detections))
//	}
//
// The package consists of these components:
//
//  1. Overlay (pkg/overlay): box scaling, tag layout and rasterization
//  2. Detection (pkg/detection): response normalization, filtering and NMS
//  3. Clients (pkg/remote, pkg/ollama, pkg/client): detection backends
//  4. Processing (pkg/processing): image loading, upload preparation and saving
//  5. Summary (pkg/summary): categories, statistics and the text report
package detectionoverlay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/menta2k/detection-overlay/internal/utils"
	"github.com/menta2k/detection-overlay/pkg/detection"
	"github.com/menta2k/detection-overlay/pkg/overlay"
	"github.com/menta2k/detection-overlay/pkg/processing"
	"github.com/menta2k/detection-overlay/pkg/summary"
	"github.com/menta2k/detection-overlay/pkg/types"
)

// Version of the detection overlay library
const Version = "1.0.0"

// Options controls upload preparation and output encoding
type Options struct {
	SendFormat  string // jpg or png, used only when downscaling
	SendSize    int    // max long side sent to the backend, 0 = original
	SendQuality int

	Format   string // png, jpg or webp; empty means derive from the output path
	Quality  int
	Lossless bool

	WriteJSON    bool // write <out>.json next to the image
	WriteSummary bool // write <out>.txt next to the image
}

// DefaultOptions returns the options used by New
func DefaultOptions() Options {
	return Options{
		SendFormat:  "jpg",
		SendQuality: 90,
		Quality:     92,
	}
}

// Annotator runs the load, detect, render and save pipeline
type Annotator struct {
	detector  *detection.Detector
	renderer  *overlay.Renderer
	processor *processing.Processor
	options   Options
}

// Annotation is the outcome of annotating one image
type Annotation struct {
	Source string
	Image  *image.NRGBA
	Result *detection.Result
}

// New creates an Annotator with the default renderer and processor
func New(detector *detection.Detector) *Annotator {
	return NewWithConfig(detector, overlay.New(), processing.NewProcessor(), DefaultOptions())
}

// NewWithConfig creates an Annotator from explicit components
func NewWithConfig(detector *detection.Detector, renderer *overlay.Renderer, processor *processing.Processor, options Options) *Annotator {
	if renderer == nil {
		renderer = overlay.New()
	}
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Annotator{
		detector:  detector,
		renderer:  renderer,
		processor: processor,
		options:   options,
	}
}

// Annotate detects objects in src and draws them onto a copy of its image
func (a *Annotator) Annotate(ctx context.Context, src *processing.Source) (*Annotation, error) {
	if a.detector == nil {
		return nil, fmt.Errorf("no detector configured")
	}

	payload, name, err := a.processor.PrepareForUpload(src, a.options.SendFormat, a.options.SendSize, a.options.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	// A downscaled upload changes the coordinate space the backend sees
	fallback := src.Size()
	if !bytes.Equal(payload, src.Data) {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(payload)); err == nil {
			fallback = types.ImageSize{Width: cfg.Width, Height: cfg.Height}
		}
	}

	result, err := a.detector.Detect(ctx, payload, name, fallback)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	return a.Draw(src, result)
}

// Draw renders an existing detection result onto src
func (a *Annotator) Draw(src *processing.Source, result *detection.Result) (*Annotation, error) {
	if src == nil || result == nil {
		return nil, fmt.Errorf("nothing to draw: source and result are required")
	}
	img, err := a.renderer.Render(src.Image, result.Detections, result.SourceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render overlay: %w", err)
	}
	return &Annotation{Source: src.Name, Image: img, Result: result}, nil
}

// AnnotateFile loads in (a path or URL), annotates it, and saves the result
// to outPath along with any configured sidecar files.
func (a *Annotator) AnnotateFile(ctx context.Context, in, outPath string) (*Annotation, error) {
	src, err := a.processor.Load(in)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	ann, err := a.Annotate(ctx, src)
	if err != nil {
		return nil, err
	}

	if err := a.Save(ann, outPath); err != nil {
		return nil, err
	}
	return ann, nil
}

// Save writes the annotated image and the enabled sidecars
func (a *Annotator) Save(ann *Annotation, outPath string) error {
	format := a.options.Format
	if format == "" {
		format = outputFormat(outPath)
	}
	if err := a.processor.SaveImage(ann.Image, outPath, format, a.options.Quality, a.options.Lossless); err != nil {
		return fmt.Errorf("failed to save %s: %w", outPath, err)
	}

	if a.options.WriteJSON {
		if err := WriteReport(ann.Result, utils.SidecarPath(outPath, ".json")); err != nil {
			return err
		}
	}
	if a.options.WriteSummary {
		if err := WriteSummary(ann.Result, utils.SidecarPath(outPath, ".txt")); err != nil {
			return err
		}
	}
	return nil
}

// Health checks the configured backend
func (a *Annotator) Health(ctx context.Context) (*types.HealthStatus, error) {
	if a.detector == nil {
		return nil, fmt.Errorf("no detector configured")
	}
	return a.detector.Health(ctx)
}

// Report converts a result back into the backend response schema, so a
// saved report can be replayed through the file backend.
func Report(result *detection.Result) *types.DetectResponse {
	raw := make([]types.RawDetection, len(result.Detections))
	for i, d := range result.Detections {
		conf := d.Confidence
		raw[i] = types.RawDetection{
			BBox:       d.Box[:],
			Label:      d.Label,
			Confidence: &conf,
			Category:   d.Category,
		}
	}
	stats := result.Statistics
	return &types.DetectResponse{
		Success:        true,
		Detections:     raw,
		ImageSize:      []int{result.SourceSize.Width, result.SourceSize.Height},
		NumDetections:  len(raw),
		ProcessingTime: result.Elapsed,
		Statistics:     &stats,
	}
}

// WriteReport writes the JSON report for result to path
func WriteReport(result *detection.Result, path string) error {
	data, err := json.MarshalIndent(Report(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteSummary writes the plain-text summary for result to path
func WriteSummary(result *detection.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	if err := summary.WriteText(f, result.Detections); err != nil {
		f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close summary: %w", err)
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func outputFormat(path string) string {
	switch ext := utils.GetFileExtension(path); ext {
	case "jpg", "jpeg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}
