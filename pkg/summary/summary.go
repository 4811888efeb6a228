// Package summary groups detections into road-scene categories and writes
// human readable reports.
package summary

import (
	"fmt"
	"io"
	"strings"

	"github.com/menta2k/detection-overlay/pkg/types"
)

const (
	Vehicle    = "vehicle"
	Pedestrian = "pedestrian"
	Animal     = "animal"
	Traffic    = "traffic"
	Other      = "other"
)

// Categories lists every category in display order
var Categories = []string{Vehicle, Pedestrian, Animal, Traffic, Other}

var classToCategory = map[string]string{
	"person":        Pedestrian,
	"bicycle":       Vehicle,
	"car":           Vehicle,
	"motorcycle":    Vehicle,
	"bus":           Vehicle,
	"train":         Vehicle,
	"truck":         Vehicle,
	"auto_rickshaw": Vehicle,
	"traffic light": Traffic,
	"stop sign":     Traffic,
	"bird":          Animal,
	"cat":           Animal,
	"dog":           Animal,
	"horse":         Animal,
	"sheep":         Animal,
	"cow":           Animal,
	"elephant":      Animal,
	"bear":          Animal,
	"zebra":         Animal,
	"giraffe":       Animal,
}

// Categorize maps a COCO class name to a category
func Categorize(label string) string {
	if c, ok := classToCategory[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return Other
}

// Compute counts detections per category and per label. Every category is
// present in ByCategory, even with a zero count.
func Compute(dets []types.Detection) types.Statistics {
	stats := types.Statistics{
		Total:      len(dets),
		ByCategory: make(map[string]int, len(Categories)),
		ByLabel:    make(map[string]int),
	}
	for _, c := range Categories {
		stats.ByCategory[c] = 0
	}
	for _, d := range dets {
		cat := d.Category
		if cat == "" {
			cat = Categorize(d.Label)
		}
		stats.ByCategory[cat]++
		stats.ByLabel[d.Label]++
	}
	return stats
}

// WriteText writes a plain text report of dets to w
func WriteText(w io.Writer, dets []types.Detection) error {
	var b strings.Builder
	b.WriteString("Object Detection Summary\n")
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Total detections: %d\n\n", len(dets))

	for i, d := range dets {
		fmt.Fprintf(&b, "Detection %d:\n", i+1)
		fmt.Fprintf(&b, "  Label: %s\n", d.Label)
		fmt.Fprintf(&b, "  Confidence: %.4f\n", d.Confidence)
		fmt.Fprintf(&b, "  Bounding Box: [%.0f, %.0f, %.0f, %.0f]\n\n", d.Box[0], d.Box[1], d.Box[2], d.Box[3])
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
