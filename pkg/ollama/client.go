package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/detection-overlay/pkg/types"
)

// DefaultModel is a vision model that handles grounding prompts reasonably
const DefaultModel = "qwen2.5vl:7b"

// DetectPrompt asks the model for normalized boxes; they are converted to
// pixels against the uploaded image's size.
const DetectPrompt = `You are an object detector.

Return JSON only:
{
  "detections": [
    {"label": "string", "confidence": 0.0, "box": [0.0, 0.0, 0.0, 0.0]}
  ]
}

HARD RULES
- box is [x1, y1, x2, y2] normalized to [0,1] (NOT pixels), with x1 < x2 and y1 < y2.
- One entry per visible object instance. Use short lowercase COCO class names (person, car, bus, truck, motorcycle, bicycle, dog, cow, traffic light, ...).
- confidence is your certainty in [0,1].
- If nothing is found return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", ollamaURL)
	}

	// Drop any path such as /api/chat; the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient), model: model}, nil
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Detect asks the vision model for detections in img
func (c *Client) Detect(ctx context.Context, img []byte, filename string) (*types.DetectResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header of %s: %w", filename, err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: DetectPrompt,
				Images:  []api.ImageData{api.ImageData(img)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0.1},
	}

	start := time.Now()
	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	resp, err := parseDetections(responseContent, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	resp.ProcessingTime = time.Since(start).Seconds()
	return resp, nil
}

// Health reports whether the server is reachable and has the model pulled
func (c *Client) Health(ctx context.Context) (*types.HealthStatus, error) {
	list, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama list error: %w", err)
	}

	status := &types.HealthStatus{Status: "model-missing", Model: c.model, Device: "ollama"}
	for _, m := range list.Models {
		if m.Name == c.model || m.Model == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			status.Status = "healthy"
			break
		}
	}
	return status, nil
}

type modelDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

// parseDetections turns the model reply into a backend-shaped response with
// pixel boxes. Malformed entries are skipped; a reply with no JSON at all
// yields no detections.
func parseDetections(raw string, width, height int) (*types.DetectResponse, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	resp := &types.DetectResponse{
		Success:    true,
		Detections: []types.RawDetection{},
		ImageSize:  []int{width, height},
	}

	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return resp, nil
	}

	var parsed struct {
		Detections []modelDetection `json:"detections"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return resp, nil
	}

	fw, fh := float64(width), float64(height)
	for _, d := range parsed.Detections {
		if len(d.Box) != 4 {
			continue
		}
		box := d.Box
		// Some models answer in pixels despite the prompt
		if box[0] > 1 || box[1] > 1 || box[2] > 1 || box[3] > 1 {
			box = []float64{box[0] / fw, box[1] / fh, box[2] / fw, box[3] / fh}
		}
		x1, y1 := clamp(min(box[0], box[2]), 0, 1), clamp(min(box[1], box[3]), 0, 1)
		x2, y2 := clamp(max(box[0], box[2]), 0, 1), clamp(max(box[1], box[3]), 0, 1)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		conf := clamp(d.Confidence, 0, 1)
		resp.Detections = append(resp.Detections, types.RawDetection{
			Box:        []float64{x1 * fw, y1 * fh, x2 * fw, y2 * fh},
			Label:      strings.ToLower(strings.TrimSpace(d.Label)),
			Confidence: &conf,
		})
	}
	resp.NumDetections = len(resp.Detections)
	return resp, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
