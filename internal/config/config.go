package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Backend kinds
const (
	BackendRemote = "remote"
	BackendOllama = "ollama"
	BackendFile   = "file"
)

// Config holds the application configuration
type Config struct {
	Backend   BackendConfig   `json:"backend"`
	Detection DetectionConfig `json:"detection"`
	Render    RenderConfig    `json:"render"`
	Output    OutputConfig    `json:"output"`
}

// BackendConfig selects where detections come from
type BackendConfig struct {
	Kind       string `json:"kind"`
	URL        string `json:"url"`
	DetectPath string `json:"detect_path"`
	HealthPath string `json:"health_path"`
	FileField  string `json:"file_field"`
	Model      string `json:"model"`
}

// DetectionConfig holds upload and post-processing settings
type DetectionConfig struct {
	MinConfidence float64 `json:"min_confidence"`
	NMSThreshold  float64 `json:"nms_threshold"`
	SendFormat    string  `json:"send_format"`
	SendSize      int     `json:"send_size"`
	SendQuality   int     `json:"send_quality"`
	MinImageSize  int     `json:"min_image_size"`
}

// RenderConfig holds overlay drawing metrics
type RenderConfig struct {
	LineWidth float64 `json:"line_width"`
	FontSize  float64 `json:"font_size"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format       string `json:"format"`
	Quality      int    `json:"quality"`
	Lossless     bool   `json:"lossless"`
	OutputDir    string `json:"output_dir"`
	Suffix       string `json:"suffix"`
	WriteJSON    bool   `json:"write_json"`
	WriteSummary bool   `json:"write_summary"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:       BackendRemote,
			URL:        "http://localhost:8000",
			DetectPath: "/detect",
			HealthPath: "/health",
			FileField:  "file",
			Model:      "qwen2.5vl:7b",
		},
		Detection: DetectionConfig{
			MinConfidence: 0,
			NMSThreshold:  0,
			SendFormat:    "jpg",
			SendSize:      0,
			SendQuality:   90,
			MinImageSize:  1,
		},
		Render: RenderConfig{
			LineWidth: 3,
			FontSize:  16,
		},
		Output: OutputConfig{
			Format:    "png",
			Quality:   92,
			OutputDir: "./out",
			Suffix:    "_detections",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads a .env file if present and applies DETECT_* and OLLAMA_*
// overrides from the environment.
func (c *Config) LoadEnv(files ...string) error {
	// A missing .env is fine
	_ = godotenv.Load(files...)

	setString(&c.Backend.Kind, "DETECT_BACKEND")
	setString(&c.Backend.URL, "DETECT_URL")
	setString(&c.Backend.DetectPath, "DETECT_PATH")
	setString(&c.Backend.HealthPath, "DETECT_HEALTH_PATH")
	setString(&c.Backend.FileField, "DETECT_FILE_FIELD")
	setString(&c.Backend.Model, "OLLAMA_MODEL")
	setString(&c.Output.Format, "DETECT_OUTPUT_FORMAT")
	setString(&c.Output.OutputDir, "DETECT_OUTPUT_DIR")

	if v, ok := os.LookupEnv("OLLAMA_HOST"); ok && c.Backend.Kind == BackendOllama && os.Getenv("DETECT_URL") == "" {
		c.Backend.URL = v
	}
	if err := setFloat(&c.Detection.MinConfidence, "DETECT_MIN_CONFIDENCE"); err != nil {
		return err
	}
	if err := setFloat(&c.Detection.NMSThreshold, "DETECT_NMS_THRESHOLD"); err != nil {
		return err
	}
	return setInt(&c.Detection.SendSize, "DETECT_SEND_SIZE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendRemote, BackendOllama, BackendFile:
	default:
		return fmt.Errorf("backend.kind must be one of remote, ollama, file (got %q)", c.Backend.Kind)
	}

	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be between 0 and 1")
	}

	if c.Detection.NMSThreshold < 0 || c.Detection.NMSThreshold > 1 {
		return fmt.Errorf("detection.nms_threshold must be between 0 and 1")
	}

	if c.Detection.SendSize < 0 {
		return fmt.Errorf("detection.send_size must not be negative")
	}

	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("detection.send_quality must be between 1 and 100")
	}

	if c.Render.LineWidth <= 0 || c.Render.FontSize <= 0 {
		return fmt.Errorf("render.line_width and render.font_size must be positive")
	}

	switch c.Output.Format {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp (got %q)", c.Output.Format)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "detection-overlay", "config.json")
}
