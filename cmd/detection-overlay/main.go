package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	detectionoverlay "github.com/menta2k/detection-overlay"
	"github.com/menta2k/detection-overlay/internal/config"
	"github.com/menta2k/detection-overlay/internal/utils"
	"github.com/menta2k/detection-overlay/pkg/client"
	"github.com/menta2k/detection-overlay/pkg/detection"
	"github.com/menta2k/detection-overlay/pkg/ollama"
	"github.com/menta2k/detection-overlay/pkg/overlay"
	"github.com/menta2k/detection-overlay/pkg/processing"
	"github.com/menta2k/detection-overlay/pkg/remote"
)

func main() {
	var in, outDir, backend, url, model, detections, ext, configPath, envFile string
	var quality, sendSize int
	var lossless, writeSummary, writeJSON, health, version bool
	var minConfidence, nms float64

	defaults := config.Default()

	flag.StringVar(&in, "in", "", "input image path, URL, or directory (jpg/png/webp)")
	flag.StringVar(&outDir, "out", defaults.Output.OutputDir, "output directory")
	flag.StringVar(&backend, "backend", defaults.Backend.Kind, "detection backend: remote|ollama|file")
	flag.StringVar(&url, "url", "", "backend URL (defaults: remote=http://localhost:8000, ollama=http://localhost:11434)")
	flag.StringVar(&model, "model", defaults.Backend.Model, "Ollama model name")
	flag.StringVar(&detections, "detections", "", "detections JSON file for -backend file")

	flag.StringVar(&ext, "ext", defaults.Output.Format, "output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", defaults.Output.Quality, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")

	flag.Float64Var(&minConfidence, "min-confidence", defaults.Detection.MinConfidence, "drop detections below this confidence (0-1)")
	flag.Float64Var(&nms, "nms", defaults.Detection.NMSThreshold, "IoU threshold for non-maximum suppression, 0=off")
	flag.IntVar(&sendSize, "sendsize", defaults.Detection.SendSize, "max long side sent to the backend (px), 0=original")

	flag.BoolVar(&writeSummary, "summary", false, "write a text summary next to each output image")
	flag.BoolVar(&writeJSON, "json", false, "write the detections as JSON next to each output image")
	flag.BoolVar(&health, "health", false, "check the backend and exit")
	flag.StringVar(&configPath, "config", "", "config file (JSON)")
	flag.StringVar(&envFile, "env", ".env", "environment file with DETECT_* overrides")
	flag.BoolVar(&version, "version", false, "print version and exit")

	flag.Parse()

	if version {
		fmt.Println(detectionoverlay.GetVersion())
		return
	}

	cfg := defaults
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		log.Fatal(err)
	}

	// Explicit flags win over the config file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.OutputDir = outDir
		case "backend":
			cfg.Backend.Kind = backend
		case "url":
			cfg.Backend.URL = url
		case "model":
			cfg.Backend.Model = model
		case "ext":
			cfg.Output.Format = strings.ToLower(ext)
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "min-confidence":
			cfg.Detection.MinConfidence = minConfidence
		case "nms":
			cfg.Detection.NMSThreshold = nms
		case "sendsize":
			cfg.Detection.SendSize = sendSize
		case "summary":
			cfg.Output.WriteSummary = writeSummary
		case "json":
			cfg.Output.WriteJSON = writeJSON
		}
	})
	if !isSet("url") && cfg.Backend.Kind == config.BackendOllama && cfg.Backend.URL == defaults.Backend.URL && os.Getenv("DETECT_URL") == "" {
		cfg.Backend.URL = "http://localhost:11434"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	detectionClient, err := newClient(cfg, detections)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	detector := detection.NewDetectorWithOptions(detectionClient, detection.Options{
		MinConfidence: cfg.Detection.MinConfidence,
		NMSThreshold:  cfg.Detection.NMSThreshold,
	})
	renderer := overlay.NewWithConfig(overlay.Config{
		LineWidth: cfg.Render.LineWidth,
		FontSize:  cfg.Render.FontSize,
	})
	annotator := detectionoverlay.NewWithConfig(detector, renderer,
		processing.NewProcessorWithMinSize(cfg.Detection.MinImageSize),
		detectionoverlay.Options{
			SendFormat:   cfg.Detection.SendFormat,
			SendSize:     cfg.Detection.SendSize,
			SendQuality:  cfg.Detection.SendQuality,
			Format:       cfg.Output.Format,
			Quality:      cfg.Output.Quality,
			Lossless:     cfg.Output.Lossless,
			WriteJSON:    cfg.Output.WriteJSON,
			WriteSummary: cfg.Output.WriteSummary,
		})

	if health {
		status, err := annotator.Health(ctx)
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		log.Printf("backend=%s status=%s model=%s device=%s", cfg.Backend.Kind, status.Status, status.Model, status.Device)
		if !status.Healthy() {
			os.Exit(1)
		}
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in image.jpg|URL|dir [-backend remote|ollama|file] [-url server_url] [-detections dets.json] [-out outdir] [-ext png|jpg|webp] [-min-confidence 0.5] [-nms 0.45] [-summary] [-json]", filepath.Base(os.Args[0]))
	}

	inputs := []string{in}
	outputs := []string{utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.Format)}
	if utils.DirExists(in) {
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		if len(inputs) == 0 {
			log.Fatalf("no images found in %s", in)
		}
		outputs = utils.BatchOutputFilenames(in, inputs, cfg.Output.OutputDir, cfg.Output.Suffix, cfg.Output.Format)
		log.Printf("processing %d images from %s", len(inputs), in)
	}

	failed := 0
	for i, input := range inputs {
		if ctx.Err() != nil {
			log.Printf("interrupted")
			break
		}
		outPath := outputs[i]
		ann, err := annotator.AnnotateFile(ctx, input, outPath)
		if err != nil {
			log.Printf("%s: %v", input, err)
			failed++
			continue
		}
		size := "?"
		if info, err := os.Stat(outPath); err == nil {
			size = utils.FormatFileSize(info.Size())
		}
		log.Printf("wrote %s (%s, %d detections, source %dx%d, %.2fs)", outPath, size,
			len(ann.Result.Detections), ann.Result.SourceSize.Width, ann.Result.SourceSize.Height, ann.Result.Elapsed)
		for _, d := range ann.Result.Detections {
			log.Printf("  %s", overlay.FormatLabel(d.Label, d.Confidence))
		}
	}

	if failed > 0 {
		log.Fatalf("%d of %d images failed", failed, len(inputs))
	}
}

func newClient(cfg *config.Config, detections string) (client.DetectionClient, error) {
	switch cfg.Backend.Kind {
	case config.BackendRemote:
		c, err := remote.NewClientWithOptions(cfg.Backend.URL, remote.Options{
			DetectPath: cfg.Backend.DetectPath,
			HealthPath: cfg.Backend.HealthPath,
			FileField:  cfg.Backend.FileField,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Backend.URL, cfg.Backend.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case config.BackendFile:
		if detections == "" {
			return nil, fmt.Errorf("-backend file requires -detections")
		}
		if !utils.FileExists(detections) {
			return nil, fmt.Errorf("detections file not found: %s", detections)
		}
		return client.NewFileClient(detections), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use remote, ollama or file)", cfg.Backend.Kind)
	}
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
