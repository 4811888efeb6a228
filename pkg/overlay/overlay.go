// Package overlay draws detection boxes and label tags onto an image.
//
// Boxes arrive in the pixel space of the image the detector saw. The
// renderer draws at the base image's native resolution and scales each
// axis independently, so a detector that resized its input still lines
// up with the picture being annotated.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/detection-overlay/pkg/types"
)

// RectF is an axis-aligned rectangle in surface units
type RectF struct {
	X, Y, W, H float64
}

// Canon returns r with a non-negative width and height
func (r RectF) Canon() RectF {
	if r.W < 0 {
		r.X, r.W = r.X+r.W, -r.W
	}
	if r.H < 0 {
		r.Y, r.H = r.Y+r.H, -r.H
	}
	return r
}

// PointF is a point in surface units
type PointF struct {
	X, Y float64
}

// Annotation is the draw plan for a single detection
type Annotation struct {
	Index     int
	Color     color.NRGBA
	Box       RectF
	Label     string
	TextWidth float64
	Tag       RectF
	Text      PointF
}

// Config holds the drawing metrics
type Config struct {
	LineWidth  float64
	FontSize   float64
	TagHeight  float64
	TagPadding float64
	TagGap     float64
	TextInset  float64
	TextRaise  float64
	Palette    []color.NRGBA
}

// DefaultConfig returns the reference metrics: 3px stroke, bold 16px text,
// 24px tag sitting 4px above the box.
func DefaultConfig() Config {
	return Config{
		LineWidth:  3,
		FontSize:   16,
		TagHeight:  24,
		TagPadding: 10,
		TagGap:     4,
		TextInset:  5,
		TextRaise:  8,
		Palette:    Palette,
	}
}

// Renderer turns detections into an annotated surface.
// It is safe for concurrent use.
type Renderer struct {
	config Config
}

// New creates a Renderer with the default metrics
func New() *Renderer {
	return &Renderer{config: DefaultConfig()}
}

// NewWithConfig creates a Renderer with custom metrics. Zero fields fall
// back to the defaults.
func NewWithConfig(config Config) *Renderer {
	def := DefaultConfig()
	if config.LineWidth <= 0 {
		config.LineWidth = def.LineWidth
	}
	if config.FontSize <= 0 {
		config.FontSize = def.FontSize
	}
	if config.TagHeight <= 0 {
		config.TagHeight = def.TagHeight
	}
	if config.TagPadding == 0 {
		config.TagPadding = def.TagPadding
	}
	if config.TagGap == 0 {
		config.TagGap = def.TagGap
	}
	if config.TextInset == 0 {
		config.TextInset = def.TextInset
	}
	if config.TextRaise == 0 {
		config.TextRaise = def.TextRaise
	}
	if len(config.Palette) == 0 {
		config.Palette = def.Palette
	}
	return &Renderer{config: config}
}

// Config returns the metrics in use
func (r *Renderer) Config() Config {
	return r.config
}

var (
	boldOnce sync.Once
	boldFont *opentype.Font
	boldErr  error
)

func parsedBold() (*opentype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = opentype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

// newFace returns a fresh face; faces keep per-glyph state and must not be
// shared between goroutines.
func (r *Renderer) newFace() (font.Face, error) {
	f, err := parsedBold()
	if err != nil {
		return nil, fmt.Errorf("failed to parse label font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    r.config.FontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label face: %w", err)
	}
	return face, nil
}

// MeasureLabel returns the rendered width of text in the label font
func (r *Renderer) MeasureLabel(text string) (float64, error) {
	face, err := r.newFace()
	if err != nil {
		return 0, err
	}
	defer face.Close()
	return fromFixed(font.MeasureString(face, text)), nil
}

func validateSource(source types.ImageSize) error {
	if !source.Valid() {
		return fmt.Errorf("%w: source size %dx%d must be positive on both axes",
			ErrInvalidInput, source.Width, source.Height)
	}
	return nil
}

// ScaleFactors returns the per-axis ratio between the surface and the
// space the boxes were computed in.
func ScaleFactors(surface image.Rectangle, source types.ImageSize) (float64, float64, error) {
	if err := validateSource(source); err != nil {
		return 0, 0, err
	}
	return float64(surface.Dx()) / float64(source.Width),
		float64(surface.Dy()) / float64(source.Height), nil
}

// Layout computes the draw plan for detections on a surface of the given
// bounds. measure returns the width of a label string.
func (r *Renderer) Layout(detections []types.Detection, source types.ImageSize, surface image.Rectangle, measure func(string) float64) ([]Annotation, error) {
	scaleX, scaleY, err := ScaleFactors(surface, source)
	if err != nil {
		return nil, err
	}

	c := r.config
	plan := make([]Annotation, 0, len(detections))
	for i, det := range detections {
		x1, y1, x2, y2 := det.Box[0], det.Box[1], det.Box[2], det.Box[3]
		box := RectF{
			X: x1 * scaleX,
			Y: y1 * scaleY,
			W: (x2 - x1) * scaleX,
			H: (y2 - y1) * scaleY,
		}

		label := FormatLabel(det.Label, det.Confidence)
		textWidth := measure(label)

		// Tag bottom sits TagGap above the box top; no clamping at the
		// surface edge.
		tagBottom := box.Y - c.TagGap
		plan = append(plan, Annotation{
			Index:     i,
			Color:     colorFrom(c.Palette, i),
			Box:       box,
			Label:     label,
			TextWidth: textWidth,
			Tag: RectF{
				X: box.X,
				Y: tagBottom - c.TagHeight,
				W: textWidth + c.TagPadding,
				H: c.TagHeight,
			},
			Text: PointF{X: box.X + c.TextInset, Y: box.Y - c.TextRaise},
		})
	}
	return plan, nil
}

// Render draws detections over base and returns the annotated surface,
// sized to base's native dimensions. On error no surface is returned.
func (r *Renderer) Render(base image.Image, detections []types.Detection, source types.ImageSize) (*image.NRGBA, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	if base == nil {
		return nil, &ImageLoadError{Err: fmt.Errorf("base image is nil")}
	}
	b := base.Bounds()
	if b.Empty() {
		return nil, &ImageLoadError{Err: fmt.Errorf("base image has no pixels (%dx%d)", b.Dx(), b.Dy())}
	}

	face, err := r.newFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	surface := image.Rect(0, 0, b.Dx(), b.Dy())
	plan, err := r.Layout(detections, source, surface, func(s string) float64 {
		return fromFixed(font.MeasureString(face, s))
	})
	if err != nil {
		return nil, err
	}

	dst := imaging.Clone(base)
	for _, a := range plan {
		strokeRect(dst, a.Box, r.config.LineWidth, a.Color)
		fillRect(dst, a.Tag, a.Color)
		drawText(dst, face, a.Label, a.Text, TextColor)
	}
	return dst, nil
}

// RenderReader decodes an image from rd and renders detections onto it.
// Decode failures are reported as *ImageLoadError before any drawing.
func (r *Renderer) RenderReader(rd io.Reader, detections []types.Detection, source types.ImageSize) (*image.NRGBA, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	base, _, err := image.Decode(rd)
	if err != nil {
		return nil, &ImageLoadError{Err: err}
	}
	return r.Render(base, detections, source)
}

var defaultRenderer = New()

// Render draws detections with the default metrics
func Render(base image.Image, detections []types.Detection, source types.ImageSize) (*image.NRGBA, error) {
	return defaultRenderer.Render(base, detections, source)
}
