package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Recognition is one piece of text the recognizer read off an image,
// with the bounding box it was read from.
type Recognition struct {
	Box        []int   `json:"box,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer reads text from a captcha image on disk.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) ([]Recognition, error)
}

// HTTPRecognizer calls an OCR sidecar service over HTTP.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRecognizer constructs a recognizer against the given endpoint.
func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type recognizeResponse struct {
	Results []Recognition `json:"results"`
}

// Recognize uploads the image as multipart form data and decodes the
// service's ranked results.
func (r *HTTPRecognizer) Recognize(ctx context.Context, imagePath string) ([]Recognition, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read captcha image: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, body)
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	return decoded.Results, nil
}

// topText picks the first non-empty recognition. The service returns
// results ranked best-first, so order beats raw confidence.
func topText(results []Recognition) (string, bool) {
	for _, r := range results {
		if r.Text != "" {
			return r.Text, true
		}
	}
	return "", false
}
