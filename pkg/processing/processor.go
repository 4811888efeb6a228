package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/detection-overlay/pkg/overlay"
	"github.com/menta2k/detection-overlay/pkg/types"
)

// MaxDownloadSize caps remote images, matching the upload limit of the
// detection backends.
const MaxDownloadSize = 10 << 20

// Source is a decoded image together with the bytes it was read from
type Source struct {
	Name   string
	Data   []byte
	Image  image.Image
	Format string
}

// Size returns the decoded image dimensions
func (s *Source) Size() types.ImageSize {
	b := s.Image.Bounds()
	return types.ImageSize{Width: b.Dx(), Height: b.Dy()}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// Processor handles image loading and encoding
type Processor struct {
	httpClient   *http.Client
	minImageSize int
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		minImageSize: 1,
	}
}

// NewProcessorWithMinSize creates a processor that rejects images smaller
// than minSize on either axis.
func NewProcessorWithMinSize(minSize int) *Processor {
	p := NewProcessor()
	if minSize > 0 {
		p.minImageSize = minSize
	}
	return p
}

// LoadFromURL downloads and decodes an image
func (p *Processor) LoadFromURL(imageURL string) (*Source, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Detection-Overlay/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return nil, fmt.Errorf("image larger than %d bytes", MaxDownloadSize)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	return p.Decode(name, data)
}

// LoadFile reads and decodes an image from disk
func (p *Processor) LoadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &overlay.ImageLoadError{Source: path, Err: err}
	}
	return p.Decode(path, data)
}

// Load loads an image from either a file path or URL
func (p *Processor) Load(source string) (*Source, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadFromURL(source)
	}
	return p.LoadFile(source)
}

// Decode decodes image bytes with WebP support. Failures are reported as
// *overlay.ImageLoadError.
func (p *Processor) Decode(name string, data []byte) (*Source, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// chai2010/webp handles some encoder variants x/image does not
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, &overlay.ImageLoadError{Source: name, Err: fmt.Errorf("unknown or unsupported format: %w", err)}
		}
		img, format = wimg, "webp"
	}

	if err := p.ValidateImage(img); err != nil {
		return nil, &overlay.ImageLoadError{Source: name, Err: err}
	}
	return &Source{Name: name, Data: data, Image: img, Format: format}, nil
}

// GetImageInfo returns basic information about an image
func (p *Processor) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{Width: width, Height: height, Area: width * height}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (p *Processor) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < p.minImageSize || bounds.Dy() < p.minImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), p.minImageSize)
	}
	return nil
}

// PrepareForUpload returns the bytes to send to a detector. Images larger
// than maxDim on their long side are downscaled and re-encoded; otherwise
// the original bytes are sent untouched.
func (p *Processor) PrepareForUpload(src *Source, format string, maxDim, quality int) ([]byte, string, error) {
	b := src.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src.Data, src.Name, nil
	}

	var img image.Image
	if w >= h {
		img = imaging.Resize(src.Image, maxDim, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(src.Image, 0, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	name := strings.TrimSuffix(filepath.Base(src.Name), filepath.Ext(src.Name))
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		name += ".png"
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		name += ".jpg"
	}
	return buf.Bytes(), name, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var encode func(f *os.File) error
	switch strings.ToLower(format) {
	case "webp":
		encode = func(f *os.File) error {
			return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
		}
	case "png":
		encode = func(f *os.File) error { return imaging.Encode(f, img, imaging.PNG) }
	case "jpg", "jpeg":
		encode = func(f *os.File) error { return imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)) }
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return f.Close()
}

// EncodeDataURL encodes img as a PNG data URL
func (p *Processor) EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
