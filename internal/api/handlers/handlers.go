// Package handlers implements the geodetect HTTP endpoints.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"

	"github.com/hotspot-detector/geodetect/internal/analysis"
	"github.com/hotspot-detector/geodetect/internal/asset"
	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/observability/metrics"
)

// ServiceName is reported by the status endpoints.
const ServiceName = "Detector de Hotspots"

// ModelStatus reports whether the model is serving.
type ModelStatus interface {
	Ready() bool
	Info() detector.Info
}

// Analyzer runs one analysis over a stored upload.
type Analyzer interface {
	Analyze(ctx context.Context, path, filename string) (*analysis.Result, error)
}

// AssetStore persists uploads for the duration of a request.
type AssetStore interface {
	Acquire(ctx context.Context, filename string, r io.Reader) (*asset.Handle, error)
	MaxBytes() int64
}

// Endpoint describes one public route.
type Endpoint struct {
	Method      string `json:"metodo"`
	Path        string `json:"caminho"`
	Description string `json:"descricao"`
}

func (e Endpoint) String() string { return e.Method + " " + e.Path }

// Handlers holds the dependencies shared by the endpoints.
type Handlers struct {
	model    ModelStatus
	analyzer Analyzer
	assets   AssetStore

	build     *buildinfo.Context
	metrics   *metrics.HTTPMetrics
	log       logger.Logger
	startTime time.Time

	endpoints []Endpoint
}

// Option configures Handlers.
type Option func(*Handlers)

// WithBuildInfo sets the build metadata reported on /status.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(h *Handlers) { h.build = b }
}

// WithMetrics records error codes on the HTTP metrics.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handlers) { h.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handlers) { h.log = l }
}

// New creates the endpoint handlers.
func New(model ModelStatus, analyzer Analyzer, assets AssetStore, opts ...Option) *Handlers {
	h := &Handlers{
		model:     model,
		analyzer:  analyzer,
		assets:    assets,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = GetLogger()
	}
	return h
}

// Register adds the routes to e. metricsHandler may be nil.
func (h *Handlers) Register(e *echo.Echo, metricsHandler http.Handler) {
	h.endpoints = h.endpoints[:0]
	h.add(e, http.MethodGet, "/", "Verificação de saúde do serviço", h.Health)
	h.add(e, http.MethodGet, "/status", "Estado do serviço e do modelo", h.Status)
	h.add(e, http.MethodPost, "/analyze_geotiff", "Analisa um GeoTIFF enviado no campo 'file'", h.AnalyzeGeoTIFF)
	if metricsHandler != nil {
		h.add(e, http.MethodGet, "/metrics", "Métricas Prometheus", echo.WrapHandler(metricsHandler))
	}

	e.RouteNotFound("/*", func(echo.Context) error { return echo.ErrNotFound })
	e.HTTPErrorHandler = h.ErrorHandler
}

func (h *Handlers) add(e *echo.Echo, method, path, description string, handler echo.HandlerFunc) {
	e.Add(method, path, handler)
	h.endpoints = append(h.endpoints, Endpoint{Method: method, Path: path, Description: description})
}

// Endpoints lists the registered routes as "METHOD /path".
func (h *Handlers) Endpoints() []string {
	out := make([]string, 0, len(h.endpoints))
	for _, ep := range h.endpoints {
		out = append(out, ep.String())
	}
	return out
}

func (h *Handlers) maxUploadDisplay() string {
	if h.assets == nil {
		return "?"
	}
	return bytes.Format(h.assets.MaxBytes())
}
