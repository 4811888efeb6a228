package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultURL, c.baseURL)
	require.Equal(t, DefaultDetectPath, c.detectPath)
	require.Equal(t, DefaultFileField, c.fileField)

	c, err = NewClient("http://example.com:9000/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com:9000", c.baseURL)

	_, err = NewClient("ftp://example.com")
	require.Error(t, err)
}

func TestDetectUploadsMultipart(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/detect", r.URL.Path)

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		require.Equal(t, payload, data)
		require.Equal(t, "street.png", hdr.Filename)
		require.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"detections":[{"box":[1,2,3,4],"label":"car","score":0.91,"category":"vehicle"}],
			"statistics":{"total":1,"by_category":{"vehicle":1}}}`)
	}))
	defer srv.Close()

	c, err := NewClientWithOptions(srv.URL, Options{DetectPath: "/api/detect", FileField: "image"})
	require.NoError(t, err)

	resp, err := c.Detect(context.Background(), payload, "/tmp/street.png")
	require.NoError(t, err)
	require.Len(t, resp.Detections, 1)
	require.Equal(t, []float64{1, 2, 3, 4}, resp.Detections[0].Box)
	require.NotNil(t, resp.Detections[0].Score)
	require.Equal(t, 0.91, *resp.Detections[0].Score)
	require.Nil(t, resp.Detections[0].Confidence)
	require.Equal(t, 1, resp.Statistics.ByCategory["vehicle"])
}

func TestDetectFastAPIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		io.WriteString(w, `{"detections":[{"bbox":[10,20,30,40],"label":"person","confidence":0.8}],
			"image_size":[640,480],"num_detections":1,"processing_time":0.42}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	resp, err := c.Detect(context.Background(), []byte{0xff, 0xd8, 0xff}, "a.jpg")
	require.NoError(t, err)
	require.Equal(t, []int{640, 480}, resp.ImageSize)
	require.Equal(t, []float64{10, 20, 30, 40}, resp.Detections[0].BBox)
	require.Equal(t, 0.42, resp.ProcessingTime)
}

func TestDetectErrorBodies(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusBadRequest, `{"error":"No image file provided"}`, "No image file provided"},
		{http.StatusInternalServerError, `{"detail":"Error processing image: boom"}`, "Error processing image: boom"},
		{http.StatusBadGateway, `upstream down`, "upstream down"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, tc.body)
		}))

		c, err := NewClient(srv.URL)
		require.NoError(t, err)
		_, err = c.Detect(context.Background(), []byte("x"), "x.jpg")
		srv.Close()

		var se *StatusError
		require.True(t, errors.As(err, &se), "status %d", tc.status)
		require.Equal(t, tc.status, se.Code)
		require.Equal(t, tc.want, se.Message)
	}
}

func TestDetectEmptyPayload(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = c.Detect(context.Background(), nil, "a.jpg")
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		io.WriteString(w, `{"status":"healthy","model":"facebook/detr-resnet-50","device":"cpu","confidence_threshold":0.7}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	require.True(t, status.Healthy())
	require.Equal(t, "facebook/detr-resnet-50", status.Model)
	require.Equal(t, 0.7, status.ConfidenceThreshold)
}
