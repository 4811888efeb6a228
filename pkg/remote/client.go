package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/detection-overlay/pkg/types"
)

const (
	DefaultURL        = "http://localhost:8000"
	DefaultDetectPath = "/detect"
	DefaultHealthPath = "/health"
	DefaultFileField  = "file"
)

// Client talks to an HTTP object detection backend
type Client struct {
	baseURL    string
	detectPath string
	healthPath string
	fileField  string
	httpClient *http.Client
}

// Options overrides the endpoint layout. The Flask variant of the backend
// serves /api/detect and /api/health and expects the upload as "image".
type Options struct {
	DetectPath string
	HealthPath string
	FileField  string
	HTTPClient *http.Client
}

func NewClient(serverURL string) (*Client, error) {
	return NewClientWithOptions(serverURL, Options{})
}

func NewClientWithOptions(serverURL string, opts Options) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", serverURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		detectPath: withDefault(opts.DetectPath, DefaultDetectPath),
		healthPath: withDefault(opts.HealthPath, DefaultHealthPath),
		fileField:  withDefault(opts.FileField, DefaultFileField),
		httpClient: opts.HTTPClient,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return c, nil
}

// Detect uploads an image as multipart form data and decodes the response
func (c *Client) Detect(ctx context.Context, image []byte, filename string) (*types.DetectResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	if filename == "" {
		filename = "image.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.fileField, filepath.Base(filename)))
	h.Set("Content-Type", contentTypeFor(filename, image))
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.detectPath, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp types.DetectResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detect response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("backend error: %s", resp.Error)
	}
	return &resp, nil
}

// Health queries the backend health endpoint
func (c *Client) Health(ctx context.Context) (*types.HealthStatus, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var status types.HealthStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &status, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
}

// errorMessage pulls "error" (Flask) or "detail" (FastAPI) out of an error
// body, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		switch d := payload.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func contentTypeFor(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "application/octet-stream"
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
