package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExtensions are the formats the detection backends accept
var ImageExtensions = []string{"jpg", "jpeg", "png", "webp"}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	ext := GetFileExtension(filename)
	for _, imgExt := range ImageExtensions {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// GenerateOutputFilename generates an output filename based on input and parameters
func GenerateOutputFilename(inputFile, outputDir, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "png"
		}
	}

	outputName := fmt.Sprintf("%s%s.%s", nameWithoutExt, suffix, format)
	return filepath.Join(outputDir, outputName)
}

// BatchOutputFilenames maps every input found under inputDir to its own
// output path. The layout below inputDir is kept, and inputs that share a
// directory and base name get their source extension in the name, so
// neither images nor their sidecars overwrite each other.
func BatchOutputFilenames(inputDir string, inputs []string, outputDir, suffix, format string) []string {
	type entry struct {
		dir, stem, ext string
	}
	entries := make([]entry, len(inputs))
	groups := make(map[string]int, len(inputs))
	for i, in := range inputs {
		rel, err := filepath.Rel(inputDir, in)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(in)
		}
		base := filepath.Base(rel)
		ext := filepath.Ext(base)
		entries[i] = entry{
			dir:  filepath.Dir(rel),
			stem: strings.TrimSuffix(base, ext),
			ext:  strings.TrimPrefix(ext, "."),
		}
		groups[filepath.Join(entries[i].dir, entries[i].stem)]++
	}

	outputs := make([]string, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, e := range entries {
		name := e.stem
		if groups[filepath.Join(e.dir, e.stem)] > 1 && e.ext != "" {
			name += "_" + e.ext
		}

		outFormat := format
		if outFormat == "" {
			outFormat = strings.ToLower(e.ext)
			if outFormat == "" {
				outFormat = "png"
			}
		}

		// sidecars drop the extension, so uniqueness is checked without it
		key := filepath.Join(outputDir, e.dir, name+suffix)
		for n := 2; seen[key]; n++ {
			key = filepath.Join(outputDir, e.dir, fmt.Sprintf("%s_%d%s", name, n, suffix))
		}
		seen[key] = true
		outputs[i] = key + "." + outFormat
	}
	return outputs
}

// SidecarPath replaces the extension of an output image path
func SidecarPath(outputFile, ext string) string {
	return strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ext
}

// ListImageFiles recursively lists all image files in a directory, sorted
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
