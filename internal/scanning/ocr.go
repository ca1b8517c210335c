package scanning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const documentTextDetection = "DOCUMENT_TEXT_DETECTION"

// VisionOCR implements the TextDetector interface using Google Cloud Vision
type VisionOCR struct {
	service *vision.Service
	timeout time.Duration
}

// NewVisionOCR creates a new Cloud Vision text detector.
// Extra options (endpoint, HTTP client) are passed through to the API client.
func NewVisionOCR(apiKey string, timeout time.Duration, opts ...option.ClientOption) (*VisionOCR, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cloud vision api key is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := vision.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &VisionOCR{
		service: service,
		timeout: timeout,
	}, nil
}

// DetectText requests document text detection for one image
func (v *VisionOCR) DetectText(ctx context.Context, encodedImage string) (*OCRResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image:    &vision.Image{Content: encodedImage},
				Features: []*vision.Feature{{Type: documentTextDetection}},
			},
		},
	}

	resp, err := v.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &OCRTransportError{StatusCode: apiErr.Code, Body: apiErr.Body, Err: err}
		}
		return nil, &OCRTransportError{Err: err}
	}

	if len(resp.Responses) == 0 {
		return &OCRResult{Found: false}, nil
	}

	first := resp.Responses[0]
	if first.Error != nil && first.Error.Code != 0 {
		return nil, &OCRTransportError{
			StatusCode: int(first.Error.Code),
			Body:       first.Error.Message,
			Err:        errors.New(first.Error.Message),
		}
	}
	if first.FullTextAnnotation == nil {
		return &OCRResult{Found: false}, nil
	}

	return &OCRResult{Text: first.FullTextAnnotation.Text, Found: true}, nil
}
