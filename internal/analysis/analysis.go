// Package analysis turns model detections on a georeferenced raster into
// geocoded records.
//
// One call to Analyze runs the model over the file, opens the raster's
// affine transform, and maps the centre of every box to geographic
// coordinates. Records keep the order the model produced them. Any failure
// discards the partial result; a detection is never skipped silently.
package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/raster"
)

// Model is the part of the detector gateway the pipeline uses.
type Model interface {
	Infer(ctx context.Context, path string) ([]detector.RawDetection, error)
	ClassName(index int) (string, bool)
}

// Record is one geocoded detection.
type Record struct {
	FaultType  string  `json:"tipo_falha"`
	Confidence string  `json:"confianca"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	BBox       [4]int  `json:"bbox"`
}

// Result is the outcome of one successful analysis.
type Result struct {
	Records  []Record `json:"deteccoes"`
	Total    int      `json:"total_deteccoes"`
	Filename string   `json:"arquivo_analisado"`
}

// MetricsRecorder receives per-analysis measurements.
type MetricsRecorder interface {
	AnalysisCompleted(outcome string, duration time.Duration, records int)
}

// Pipeline runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	model   Model
	rasters raster.Opener
	metrics MetricsRecorder
	log     logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New builds a pipeline over a loaded model and a raster reader.
func New(model Model, rasters raster.Opener, opts ...Option) *Pipeline {
	p := &Pipeline{model: model, rasters: rasters}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = GetLogger()
	}
	return p
}

// FormatConfidence renders a 0..1 score as a two-decimal percentage.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", c*100)
}

// Center returns the floating-point centre of a box.
func Center(box [4]int) (x, y float64) {
	return float64(box[0]+box[2]) / 2, float64(box[1]+box[3]) / 2
}

// Analyze runs the model over the raster at path and geocodes each
// detection. filename is reported back as the analysed file; empty uses
// the base name of path. Failures are returned as *Error.
func (p *Pipeline) Analyze(ctx context.Context, path, filename string) (*Result, error) {
	if filename == "" {
		filename = filepath.Base(path)
	}
	log := p.log.WithContext(ctx).With(logger.String("file", filename))
	start := time.Now()

	result, err := p.analyze(ctx, path, filename)

	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		log.Warn("analysis failed",
			logger.String("kind", outcome),
			logger.Duration("duration", elapsed),
			logger.Error(err))
	} else {
		log.Info("analysis completed",
			logger.Int("detections", result.Total),
			logger.Duration("duration", elapsed))
	}
	if p.metrics != nil {
		records := 0
		if result != nil {
			records = result.Total
		}
		p.metrics.AnalysisCompleted(outcome, elapsed, records)
	}
	return result, err
}

func (p *Pipeline) analyze(ctx context.Context, path, filename string) (*Result, error) {
	dets, err := p.model.Infer(ctx, path)
	if err != nil {
		if errors.Is(err, detector.ErrModelUnavailable) {
			return nil, &Error{Kind: KindModelUnavailable, Detail: "model not loaded", Err: err}
		}
		return nil, &Error{Kind: KindInference, Err: err}
	}

	ds, err := p.rasters.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindUnreadableRaster, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			p.log.Warn("closing raster failed", logger.String("file", filename), logger.Error(cerr))
		}
	}()

	records := make([]Record, 0, len(dets))
	for i, d := range dets {
		name, ok := p.model.ClassName(d.ClassIndex)
		if !ok {
			return nil, &Error{
				Kind:   KindInference,
				Detail: fmt.Sprintf("detection %d has class index %d outside the class table", i, d.ClassIndex),
			}
		}

		cx, cy := Center(d.Box)
		lon, lat := ds.PixelToGeo(cx, cy)

		records = append(records, Record{
			FaultType:  name,
			Confidence: FormatConfidence(d.Confidence),
			Latitude:   lat,
			Longitude:  lon,
			BBox:       d.Box,
		})
	}

	return &Result{Records: records, Total: len(records), Filename: filename}, nil
}
