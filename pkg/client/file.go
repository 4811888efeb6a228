package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/menta2k/detection-overlay/pkg/types"
)

// FileClient serves a detect response saved as JSON, e.g. the output of an
// earlier run or a response captured from a backend.
type FileClient struct {
	path string
}

func NewFileClient(path string) *FileClient {
	return &FileClient{path: path}
}

// Detect ignores the image and returns the stored response
func (c *FileClient) Detect(ctx context.Context, _ []byte, _ string) (*types.DetectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detections file: %w", err)
	}
	var resp types.DetectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detections file %s: %w", c.path, err)
	}
	return &resp, nil
}

// Health reports whether the file is readable
func (c *FileClient) Health(context.Context) (*types.HealthStatus, error) {
	if _, err := os.Stat(c.path); err != nil {
		return &types.HealthStatus{Status: "missing", Device: "file"}, nil
	}
	return &types.HealthStatus{Status: "healthy", Model: c.path, Device: "file"}, nil
}
