// Package asset stores uploaded rasters in per-request temporary directories
// and guarantees their removal.
package asset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/bytes"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// requestDirPrefix marks directories owned by the manager; Sweep only touches these.
const requestDirPrefix = "req-"

// Sentinel errors returned by Acquire. Callers match them with errors.Is.
var (
	ErrAssetTooLarge = errors.NewStd("upload exceeds the maximum allowed size")
	ErrAssetPersist  = errors.NewStd("upload could not be written to temporary storage")
	ErrAssetRead     = errors.NewStd("upload could not be read from the client")
)

// MetricsRecorder receives asset lifecycle events. All methods must be safe for concurrent use.
type MetricsRecorder interface {
	AssetStored(sizeBytes int64)
	AssetRejected(reason string)
	AssetReleased(err error)
	AssetsSwept(count int)
}

// Config configures a Manager.
type Config struct {
	Dir          string // parent directory, created if missing
	MaxBytes     int64  // largest accepted upload
	MinFreeBytes uint64 // 0 disables the free-space preflight
}

// Manager hands out Handles for uploaded files.
type Manager struct {
	dir          string
	maxBytes     int64
	minFreeBytes uint64

	freeSpace func(path string) (uint64, error)
	metrics   MetricsRecorder
	log       logger.Logger

	active atomic.Int64
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics recorder.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithFreeSpaceFunc replaces the gopsutil free-space probe.
func WithFreeSpaceFunc(fn func(path string) (uint64, error)) Option {
	return func(m *Manager) { m.freeSpace = fn }
}

// NewManager creates the parent directory and returns a Manager rooted there.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.Newf("asset: max bytes must be positive, got %d", cfg.MaxBytes).
			Component("asset").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, errors.New(fmt.Errorf("asset: create temp dir: %w", err)).
			Component("asset").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_dir").
			Build()
	}

	m := &Manager{
		dir:          cfg.Dir,
		maxBytes:     cfg.MaxBytes,
		minFreeBytes: cfg.MinFreeBytes,
		freeSpace:    diskFree,
		log:          GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Dir returns the parent directory of all request directories.
func (m *Manager) Dir() string { return m.dir }

// MaxBytes returns the upload ceiling.
func (m *Manager) MaxBytes() int64 { return m.maxBytes }

// Active returns the number of acquired, not yet released handles.
func (m *Manager) Active() int64 { return m.active.Load() }

// Acquire streams r into a fresh request directory under a sanitized form of filename.
//
// At most MaxBytes are accepted: one byte more yields ErrAssetTooLarge. A failing
// reader yields ErrAssetRead joined with the reader's error, a failing disk
// ErrAssetPersist. On error nothing is left on disk. On success the caller owns
// the Handle and must call Release exactly once.
func (m *Manager) Acquire(ctx context.Context, filename string, r io.Reader) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssetRead, err)
	}

	if err := m.checkFreeSpace(); err != nil {
		m.reject("disk_full")
		return nil, err
	}

	dir := filepath.Join(m.dir, requestDirPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		m.reject("persist")
		return nil, fmt.Errorf("%w: %w", ErrAssetPersist, err)
	}

	name := SanitizeFilename(filename)
	path := filepath.Join(dir, name)

	size, err := m.write(ctx, path, r)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.log.Warn("Failed to remove partial upload",
				logger.String("dir", dir),
				logger.Error(rmErr))
		}
		switch {
		case errors.Is(err, ErrAssetTooLarge):
			m.reject("too_large")
		case errors.Is(err, ErrAssetRead):
			m.reject("read")
		default:
			m.reject("persist")
		}
		return nil, err
	}

	m.active.Add(1)
	if m.metrics != nil {
		m.metrics.AssetStored(size)
	}
	m.log.Debug("Upload stored",
		logger.String("file", name),
		logger.String("size", bytes.Format(size)),
		logger.String("dir", dir))

	return &Handle{manager: m, dir: dir, path: path, name: name, size: size}, nil
}

func (m *Manager) checkFreeSpace() error {
	if m.minFreeBytes == 0 {
		return nil
	}
	free, err := m.freeSpace(m.dir)
	if err != nil {
		// an unreadable statfs should not block uploads
		m.log.Warn("Free space check failed", logger.Error(err))
		return nil
	}
	if free < m.minFreeBytes {
		return fmt.Errorf("%w: only %s free, %s required", ErrAssetPersist,
			bytes.Format(int64(free)), bytes.Format(int64(m.minFreeBytes))) //nolint:gosec // display only
	}
	return nil
}

// write copies r into path, enforcing the size ceiling.
func (m *Manager) write(ctx context.Context, path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAssetPersist, err)
	}

	dst := &persistWriter{w: f}
	n, err := io.CopyN(dst, &contextReader{ctx: ctx, r: r}, m.maxBytes+1)
	switch {
	case err == nil:
		// CopyN only succeeds when the limit was reached, so the upload is too big
		f.Close()
		return n, fmt.Errorf("%w: more than %s", ErrAssetTooLarge, bytes.Format(m.maxBytes))
	case err == io.EOF:
	case dst.err != nil:
		f.Close()
		return n, fmt.Errorf("%w: %w", ErrAssetPersist, dst.err)
	default:
		f.Close()
		return n, fmt.Errorf("%w: %w", ErrAssetRead, err)
	}

	if err := f.Close(); err != nil {
		return n, fmt.Errorf("%w: %w", ErrAssetPersist, err)
	}
	return n, nil
}

func (m *Manager) reject(reason string) {
	if m.metrics != nil {
		m.metrics.AssetRejected(reason)
	}
}

// Sweep removes request directories older than olderThan, left behind by a crashed process.
// It returns the number of directories removed.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("asset: read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), requestDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if m.metrics != nil && removed > 0 {
		m.metrics.AssetsSwept(removed)
	}
	if removed > 0 {
		m.log.Info("Removed stale upload directories",
			logger.Int("count", removed),
			logger.Duration("older_than", olderThan))
	}

	return removed, errors.Join(errs...)
}

// Handle is an uploaded file on disk. It is released exactly once.
type Handle struct {
	manager *Manager
	dir     string
	path    string
	name    string
	size    int64

	once       sync.Once
	releaseErr error
}

// Path returns the absolute path of the stored file.
func (h *Handle) Path() string { return h.path }

// Name returns the sanitized file name.
func (h *Handle) Name() string { return h.name }

// Size returns the stored size in bytes.
func (h *Handle) Size() int64 { return h.size }

// Release deletes the file and its request directory. Failures are logged and
// returned but never need to be surfaced to the client. Later calls return the
// result of the first.
func (h *Handle) Release() error {
	h.once.Do(func() {
		h.releaseErr = os.RemoveAll(h.dir)
		h.manager.active.Add(-1)

		if h.releaseErr != nil {
			h.manager.log.Warn("Failed to release upload",
				logger.String("path", h.path),
				logger.Error(h.releaseErr))
		} else {
			h.manager.log.Debug("Upload released", logger.String("file", h.name))
		}
		if h.manager.metrics != nil {
			h.manager.metrics.AssetReleased(h.releaseErr)
		}
	})
	return h.releaseErr
}

// persistWriter remembers write failures so they can be told apart from read failures.
type persistWriter struct {
	w   io.Writer
	err error
}

func (p *persistWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if err != nil {
		p.err = err
	}
	return n, err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
