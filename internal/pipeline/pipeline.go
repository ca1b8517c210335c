package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/chopify/internal/inventory"
	"github.com/zombor/chopify/internal/scanning"
)

// Stage names a step of a receipt scan
type Stage string

const (
	StageEncode  Stage = "encode"
	StageOCR     Stage = "ocr"
	StageExtract Stage = "extract"
	StageMap     Stage = "map"
)

// ScanFailedError is the single failure outcome of a receipt scan.
// Err is the originating error and stays reachable through errors.As.
type ScanFailedError struct {
	Stage Stage
	Err   error
}

func (e *ScanFailedError) Error() string {
	return fmt.Sprintf("scan failed at %s: %v", e.Stage, e.Err)
}

func (e *ScanFailedError) Unwrap() error { return e.Err }

// Pipeline runs one receipt image through OCR, extraction and mapping
type Pipeline struct {
	detector  scanning.TextDetector
	extractor *scanning.Extractor
	mapper    *inventory.Mapper
	metrics   *Metrics
}

// New creates a new Pipeline. metrics may be nil.
func New(detector scanning.TextDetector, extractor *scanning.Extractor, mapper *inventory.Mapper, metrics *Metrics) *Pipeline {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		detector:  detector,
		extractor: extractor,
		mapper:    mapper,
		metrics:   metrics,
	}
}

// Run scans one receipt. It returns the full item list (possibly empty when
// no text was found) or a *ScanFailedError; partial results are never returned.
func (p *Pipeline) Run(ctx context.Context, image []byte, contentType string) ([]inventory.Item, error) {
	items, err := p.run(ctx, image, contentType)
	if err != nil {
		p.metrics.scans.WithLabelValues(outcomeFailed).Inc()
		slog.Error("Receipt scan failed", "content_type", contentType, "file_size", len(image), "error", err)
		return nil, err
	}
	return items, nil
}

func (p *Pipeline) run(ctx context.Context, image []byte, contentType string) ([]inventory.Item, error) {
	var encoded string
	err := p.stage(StageEncode, func() (err error) {
		encoded, err = scanning.EncodeImage(image, contentType)
		return err
	})
	if err != nil {
		return nil, err
	}

	var ocr *scanning.OCRResult
	err = p.stage(StageOCR, func() (err error) {
		ocr, err = p.detector.DetectText(ctx, encoded)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ocr == nil || !ocr.Found {
		slog.Info("No text found on receipt")
		p.metrics.scans.WithLabelValues(outcomeNoText).Inc()
		return []inventory.Item{}, nil
	}

	var payload *scanning.ExtractionPayload
	err = p.stage(StageExtract, func() (err error) {
		payload, err = p.extractor.Extract(ctx, ocr.Text)
		return err
	})
	if err != nil {
		return nil, err
	}

	var items []inventory.Item
	err = p.stage(StageMap, func() (err error) {
		items, err = p.mapper.Map(payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Receipt scanned", "items", len(items))
	p.metrics.scans.WithLabelValues(outcomeItems).Inc()
	p.metrics.itemsPerScan.Observe(float64(len(items)))
	return items, nil
}

// stage times fn and wraps its failure as a ScanFailedError
func (p *Pipeline) stage(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		return &ScanFailedError{Stage: stage, Err: err}
	}
	return nil
}
