// Package remote delegates inference to an HTTP model server. The image is
// posted as multipart field "file" and the server answers with pixel boxes.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/httpclient"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// Name identifies the backend.
const Name = "remote"

// maxResponseBytes caps the JSON answer read from the server.
const maxResponseBytes = 8 << 20

// requestIDHeader carries the caller's trace ID to the model server.
const requestIDHeader = "X-Request-ID"

// Config points at the model server.
type Config struct {
	URL     string
	Timeout time.Duration
	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

// Backend posts images to a remote detector.
type Backend struct {
	url     string
	timeout time.Duration
	client  *httpclient.Client
}

type response struct {
	Detections []struct {
		BBox       []float64 `json:"bbox"`
		ClassIndex *int      `json:"class_index"`
		Confidence float64   `json:"confidence"`
	} `json:"detections"`
	Error string `json:"error"`
}

// New builds the backend. No request is made until Detect.
func New(cfg Config) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote backend requires a URL")
	}
	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		Transport:      cfg.Transport,
	})
	client.SetBeforeRequestHook(func(req *http.Request) {
		if id := logger.TraceID(req.Context()); id != "" {
			req.Header.Set(requestIDHeader, id)
		}
	})
	client.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error, d time.Duration) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		GetLogger().Debug("remote inference call",
			logger.String("url", req.URL.Redacted()),
			logger.Int("status", status),
			logger.Duration("duration", d),
			logger.Bool("failed", err != nil))
	})
	return &Backend{url: cfg.URL, timeout: cfg.Timeout, client: client}, nil
}

// Detect implements detector.Backend.
func (b *Backend) Detect(ctx context.Context, path string) ([]detector.RawDetection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	resp, err := b.client.Post(ctx, b.url, mw.FormDataContentType(), pr)
	// unblocks the writer goroutine if the request never consumed the body
	_ = pr.Close()
	<-written
	if err != nil {
		return nil, errors.New(err).
			Component("detector.remote").
			Category(errors.CategoryNetwork).
			NetworkContext(b.url, b.timeout).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read remote response: %w", err)
	}

	var out response
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(string(body), 200)
		}
		return nil, errors.Newf("remote detector returned %d: %s", resp.StatusCode, msg).
			Component("detector.remote").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode remote response: %w", decodeErr)
	}

	dets := make([]detector.RawDetection, 0, len(out.Detections))
	for i, d := range out.Detections {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("detection %d: bbox has %d values", i, len(d.BBox))
		}
		if d.ClassIndex == nil {
			return nil, fmt.Errorf("detection %d: missing class_index", i)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return nil, fmt.Errorf("detection %d: confidence %v outside 0..1", i, d.Confidence)
		}
		x1, y1, x2, y2 := int(d.BBox[0]), int(d.BBox[1]), int(d.BBox[2]), int(d.BBox[3])
		dets = append(dets, detector.RawDetection{
			Box:        [4]int{min(x1, x2), min(y1, y2), max(x1, x2), max(y1, y2)},
			ClassIndex: *d.ClassIndex,
			Confidence: d.Confidence,
		})
	}
	return dets, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Name implements detector.Backend.
func (b *Backend) Name() string { return Name }

// Close releases idle connections.
func (b *Backend) Close() error {
	b.client.Close()
	return nil
}
