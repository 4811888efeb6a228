package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":        true,
		"b.JPEG":       true,
		"c.png":        true,
		"d.webp":       true,
		"e.gif":        false,
		"notes.txt":    false,
		"no-extension": false,
	}
	for name, want := range cases {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/in/street.jpg", "out", "_detections", "png")
	if want := filepath.Join("out", "street_detections.png"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	got = GenerateOutputFilename("/in/street.webp", "out", "", "")
	if want := filepath.Join("out", "street.webp"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("out/street_detections.png", ".json"); got != "out/street_detections.json" {
		t.Errorf("Unexpected sidecar path %s", got)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "skip.txt", filepath.Join("sub", "c.webp")} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 image files, got %d: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "a.jpg" {
		t.Errorf("Expected sorted output, got %v", files)
	}

	if !FileExists(files[0]) || FileExists(dir) {
		t.Error("FileExists returned wrong result")
	}
	if !DirExists(dir) || DirExists(files[0]) {
		t.Error("DirExists returned wrong result")
	}
}

func TestBatchOutputFilenamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		filepath.Join("a", "x.jpg"),
		filepath.Join("b", "x.jpg"),
		"x.jpg",
		"x.png",
		"x_png.jpg",
		"y.webp",
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	inputs, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}

	for _, format := range []string{"png", ""} {
		outputs := BatchOutputFilenames(dir, inputs, "out", "_detections", format)
		if len(outputs) != len(inputs) {
			t.Fatalf("Expected %d outputs, got %d", len(inputs), len(outputs))
		}

		images := map[string]string{}
		sidecars := map[string]string{}
		for i, out := range outputs {
			if prev, ok := images[out]; ok {
				t.Errorf("format %q: %s and %s both write %s", format, prev, inputs[i], out)
			}
			images[out] = inputs[i]

			side := SidecarPath(out, ".json")
			if prev, ok := sidecars[side]; ok {
				t.Errorf("format %q: %s and %s both write %s", format, prev, inputs[i], side)
			}
			sidecars[side] = inputs[i]
		}
	}

	outputs := BatchOutputFilenames(dir, inputs, "out", "_detections", "png")
	want := map[string]string{
		filepath.Join(dir, "a", "x.jpg"): filepath.Join("out", "a", "x_detections.png"),
		filepath.Join(dir, "x.jpg"):      filepath.Join("out", "x_jpg_detections.png"),
		filepath.Join(dir, "y.webp"):     filepath.Join("out", "y_detections.png"),
	}
	for i, in := range inputs {
		if w, ok := want[in]; ok && outputs[i] != w {
			t.Errorf("%s: expected %s, got %s", in, w, outputs[i])
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{
		512:      "512 B",
		2048:     "2.0 KB",
		10 << 20: "10.0 MB",
	}
	for size, want := range cases {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %s, want %s", size, got, want)
		}
	}
}
