package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/menta2k/detection-overlay/pkg/client"
	"github.com/menta2k/detection-overlay/pkg/summary"
	"github.com/menta2k/detection-overlay/pkg/types"
)

// DefaultLabel is used when a backend sends a detection without a label
const DefaultLabel = "object"

// Options controls post-processing of backend detections
type Options struct {
	MinConfidence float64
	NMSThreshold  float64 // 0 disables suppression
}

// Result is a normalized detection response
type Result struct {
	Detections []types.Detection
	SourceSize types.ImageSize
	Statistics types.Statistics
	Elapsed    float64
}

// Detector fetches detections from a backend and normalizes them
type Detector struct {
	client  client.DetectionClient
	options Options
}

// NewDetector creates a new detector with a detection client
func NewDetector(client client.DetectionClient) *Detector {
	return &Detector{client: client}
}

// NewDetectorWithOptions creates a detector with post-processing options
func NewDetectorWithOptions(client client.DetectionClient, options Options) *Detector {
	return &Detector{client: client, options: options}
}

// Detect sends the image to the backend and returns normalized detections.
// fallback is the size of the decoded image, used when the backend does not
// report the size it ran on.
func (d *Detector) Detect(ctx context.Context, image []byte, filename string, fallback types.ImageSize) (*Result, error) {
	resp, err := d.client.Detect(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	return Process(resp, fallback, d.options)
}

// Health checks the backend
func (d *Detector) Health(ctx context.Context) (*types.HealthStatus, error) {
	return d.client.Health(ctx)
}

// Process normalizes a raw response and applies filtering, suppression and
// categorization.
func Process(resp *types.DetectResponse, fallback types.ImageSize, options Options) (*Result, error) {
	dets, err := Normalize(resp)
	if err != nil {
		return nil, err
	}
	size, err := SourceSize(resp, fallback)
	if err != nil {
		return nil, err
	}

	dets = FilterByConfidence(dets, options.MinConfidence)
	if options.NMSThreshold > 0 {
		dets = NMS(dets, options.NMSThreshold)
	}
	for i := range dets {
		if dets[i].Category == "" {
			dets[i].Category = summary.Categorize(dets[i].Label)
		}
	}

	return &Result{
		Detections: dets,
		SourceSize: size,
		Statistics: summary.Compute(dets),
		Elapsed:    resp.ProcessingTime,
	}, nil
}

// Normalize maps either backend schema (bbox/confidence or box/score) onto
// types.Detection, preserving order.
func Normalize(resp *types.DetectResponse) ([]types.Detection, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty detection response")
	}
	out := make([]types.Detection, 0, len(resp.Detections))
	for i, raw := range resp.Detections {
		box := raw.BBox
		if len(box) == 0 {
			box = raw.Box
		}
		if len(box) != 4 {
			return nil, fmt.Errorf("detection %d: expected 4 box coordinates, got %d", i, len(box))
		}

		var conf float64
		switch {
		case raw.Confidence != nil:
			conf = *raw.Confidence
		case raw.Score != nil:
			conf = *raw.Score
		}

		out = append(out, types.Detection{
			Box:        [4]float64{box[0], box[1], box[2], box[3]},
			Label:      normalizeLabel(raw.Label),
			Confidence: clamp(conf, 0, 1),
			Category:   strings.ToLower(strings.TrimSpace(raw.Category)),
		})
	}
	return out, nil
}

// SourceSize returns the size the backend ran inference on, or fallback
// when the response omits it.
func SourceSize(resp *types.DetectResponse, fallback types.ImageSize) (types.ImageSize, error) {
	if resp != nil && len(resp.ImageSize) >= 2 {
		size := types.ImageSize{Width: resp.ImageSize[0], Height: resp.ImageSize[1]}
		if size.Valid() {
			return size, nil
		}
	}
	if !fallback.Valid() {
		return types.ImageSize{}, fmt.Errorf("no usable image size (fallback %dx%d)", fallback.Width, fallback.Height)
	}
	return fallback, nil
}

// FilterByConfidence drops detections below threshold, keeping order
func FilterByConfidence(dets []types.Detection, threshold float64) []types.Detection {
	if threshold <= 0 {
		return dets
	}
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// IoU returns the intersection over union of two boxes
func IoU(a, b [4]float64) float64 {
	ix1 := max(a[0], b[0])
	iy1 := max(a[1], b[1])
	ix2 := min(a[2], b[2])
	iy2 := min(a[3], b[3])

	inter := max(0, ix2-ix1) * max(0, iy2-iy1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS applies greedy non-maximum suppression. The result is ordered by
// descending confidence.
func NMS(dets []types.Detection, threshold float64) []types.Detection {
	if len(dets) == 0 {
		return nil
	}
	sorted := make([]types.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var keep []types.Detection
	for len(sorted) > 0 {
		best := sorted[0]
		keep = append(keep, best)
		var rest []types.Detection
		for _, d := range sorted[1:] {
			if IoU(best.Box, d.Box) < threshold {
				rest = append(rest, d)
			}
		}
		sorted = rest
	}
	return keep
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultLabel
	}
	return label
}
