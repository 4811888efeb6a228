package types

// Detection is one predicted object instance. Box is [x1, y1, x2, y2] in
// pixel coordinates of the image the detector saw.
type Detection struct {
	Box        [4]float64 `json:"box"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Category   string     `json:"category,omitempty"`
}

// Width returns the box width in source pixels
func (d Detection) Width() float64 {
	return d.Box[2] - d.Box[0]
}

// Height returns the box height in source pixels
func (d Detection) Height() float64 {
	return d.Box[3] - d.Box[1]
}

// Area returns the box area in source pixels
func (d Detection) Area() float64 {
	w, h := d.Width(), d.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ImageSize is the coordinate space detection boxes are expressed in
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both axes are positive
func (s ImageSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// RawDetection is a single detection as sent by a backend. Two schema
// variants exist in the wild: bbox/confidence and box/score.
type RawDetection struct {
	BBox       []float64 `json:"bbox,omitempty"`
	Box        []float64 `json:"box,omitempty"`
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	Category   string    `json:"category,omitempty"`
}

// Statistics mirrors the per-category counts some backends return
type Statistics struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	ByLabel    map[string]int `json:"by_label,omitempty"`
}

// DetectResponse is the JSON body returned by a /detect endpoint
type DetectResponse struct {
	Success        bool           `json:"success,omitempty"`
	Detections     []RawDetection `json:"detections"`
	ImageSize      []int          `json:"image_size,omitempty"`
	NumDetections  int            `json:"num_detections,omitempty"`
	ProcessingTime float64        `json:"processing_time,omitempty"`
	Statistics     *Statistics    `json:"statistics,omitempty"`
	Error          string         `json:"error,omitempty"`
	Detail         string         `json:"detail,omitempty"`
}

// HealthStatus is the body of a backend health check
type HealthStatus struct {
	Status              string  `json:"status"`
	Model               string  `json:"model,omitempty"`
	Device              string  `json:"device,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
}

// Healthy reports whether the backend declared itself healthy
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy" || h.Status == "ok"
}
