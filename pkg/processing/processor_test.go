package processing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/detection-overlay/pkg/overlay"
)

// createTestImage creates a simple gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.NRGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	p := NewProcessor()
	src, err := p.Decode("a.png", encodePNG(t, createTestImage(40, 30)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if src.Format != "png" {
		t.Errorf("Expected format png, got %s", src.Format)
	}
	if size := src.Size(); size.Width != 40 || size.Height != 30 {
		t.Errorf("Expected size 40x30, got %dx%d", size.Width, size.Height)
	}
}

func TestDecodeGarbageIsImageLoadError(t *testing.T) {
	p := NewProcessor()
	_, err := p.Decode("junk.jpg", []byte("definitely not an image"))
	if err == nil {
		t.Fatal("Expected error decoding garbage")
	}
	var le *overlay.ImageLoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *overlay.ImageLoadError, got %T", err)
	}
	if le.Source != "junk.jpg" {
		t.Errorf("Expected source junk.jpg, got %s", le.Source)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewProcessor().LoadFile(filepath.Join(t.TempDir(), "missing.png"))
	if !overlay.IsImageLoadError(err) {
		t.Errorf("Expected image load error, got %v", err)
	}
}

func TestValidateImage(t *testing.T) {
	p := NewProcessorWithMinSize(50)
	if err := p.ValidateImage(createTestImage(40, 100)); err == nil {
		t.Error("Expected validation error for small image")
	}
	if err := p.ValidateImage(createTestImage(60, 60)); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestGetImageInfo(t *testing.T) {
	info := NewProcessor().GetImageInfo(createTestImage(400, 300))
	if info.Width != 400 || info.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", info.Width, info.Height)
	}
	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
	if info.AspectRatio < 1.33 || info.AspectRatio > 1.34 {
		t.Errorf("Expected aspect ratio ~1.333, got %f", info.AspectRatio)
	}
}

func TestPrepareForUpload(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(200, 100))
	src, err := p.Decode("/tmp/wide.png", data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	out, name, err := p.PrepareForUpload(src, "jpg", 0, 85)
	if err != nil {
		t.Fatalf("PrepareForUpload failed: %v", err)
	}
	if !bytes.Equal(out, data) || name != "/tmp/wide.png" {
		t.Error("Expected original bytes when no resize is needed")
	}

	out, name, err = p.PrepareForUpload(src, "jpg", 50, 85)
	if err != nil {
		t.Fatalf("PrepareForUpload failed: %v", err)
	}
	if name != "wide.jpg" {
		t.Errorf("Expected name wide.jpg, got %s", name)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if format != "jpeg" || cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("Expected 50x25 jpeg, got %dx%d %s", cfg.Width, cfg.Height, format)
	}
}

func TestSaveImageFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(32, 24)
	dir := t.TempDir()

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "nested", "out."+format)
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", format, err)
		}
		src, err := p.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s) failed: %v", format, err)
		}
		if size := src.Size(); size.Width != 32 || size.Height != 24 {
			t.Errorf("%s: expected 32x24, got %dx%d", format, size.Width, size.Height)
		}
	}

	if err := p.SaveImage(img, filepath.Join(dir, "out.gif"), "gif", 90, false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestEncodeDataURL(t *testing.T) {
	s, err := NewProcessor().EncodeDataURL(createTestImage(4, 4))
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	if !strings.HasPrefix(s, "data:image/png;base64,") {
		t.Errorf("Unexpected data URL prefix: %.30s", s)
	}
}

func TestLoadFromURL(t *testing.T) {
	data := encodePNG(t, createTestImage(10, 8))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("hello"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	p := NewProcessor()
	src, err := p.Load(srv.URL + "/images/road.png")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Name != "road.png" {
		t.Errorf("Expected name road.png, got %s", src.Name)
	}

	if _, err := p.Load(srv.URL + "/text"); err == nil {
		t.Error("Expected error for non-image content type")
	}
	if _, err := p.LoadFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	if err := os.WriteFile(path, encodePNG(t, createTestImage(12, 12)), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewProcessor().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(src.Data) == 0 {
		t.Error("Expected raw bytes to be kept")
	}
}
