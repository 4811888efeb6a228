package client

import (
	"context"

	"github.com/menta2k/detection-overlay/pkg/types"
)

type DetectionClient interface {
	Detect(ctx context.Context, image []byte, filename string) (*types.DetectResponse, error)
	Health(ctx context.Context) (*types.HealthStatus, error)
}
