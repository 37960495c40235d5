// Package onnx runs YOLOv8 ONNX exports through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/detector/yolo"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// Name identifies the backend.
const Name = "onnx"

// Config selects the model and runtime.
type Config struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	InputSize   int    // used only when the model input has dynamic spatial dims
	Threads     int
	Options     yolo.Options
}

// Backend holds one session with pre-bound input and output tensors.
type Backend struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	inputSize int
	labels    []string
	opts      yolo.Options
}

// New initializes ONNX Runtime and opens the model.
func New(cfg Config) (*Backend, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected one input and at least one output, model has %d and %d", len(inputs), len(outputs))
	}

	size, err := inputSize(inputs[0].Dimensions, cfg.InputSize)
	if err != nil {
		return nil, err
	}
	outShape := outputs[0].Dimensions
	for _, d := range outShape {
		if d <= 0 {
			return nil, fmt.Errorf("output %q has dynamic shape %v; export the model with a fixed image size", outputs[0].Name, outShape)
		}
	}

	b := &Backend{inputSize: size, opts: cfg.Options}
	b.labels = embeddedLabels(cfg.ModelPath)

	b.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	b.output, err = ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		_ = b.input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		b.destroyTensors()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = sessionOpts.Destroy() }()
	if cfg.Threads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			b.destroyTensors()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	b.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{b.input}, []ort.ArbitraryTensor{b.output},
		sessionOpts)
	if err != nil {
		b.destroyTensors()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	if b.opts.NumClasses == 0 && len(b.labels) > 0 {
		b.opts.NumClasses = len(b.labels)
	}

	GetLogger().Info("ONNX session created",
		logger.String("model", cfg.ModelPath),
		logger.Int("input_size", size),
		logger.Any("output_shape", []int64(outShape)),
		logger.Int("threads", cfg.Threads),
		logger.Int("embedded_labels", len(b.labels)))
	return b, nil
}

// inputSize validates an NCHW RGB input and returns its square size.
func inputSize(dims ort.Shape, fallback int) (int, error) {
	if len(dims) != 4 || (dims[1] != 3 && dims[1] > 0) {
		return 0, fmt.Errorf("expected NCHW RGB input, model input shape is %v", dims)
	}
	h, w := dims[2], dims[3]
	switch {
	case h > 0 && w > 0 && h != w:
		return 0, fmt.Errorf("non-square model input %dx%d is not supported", w, h)
	case h > 0:
		return int(h), nil
	case fallback > 0:
		return fallback, nil
	default:
		return 0, fmt.Errorf("model input has dynamic size and no input size is configured")
	}
}

// embeddedLabels reads the "names" entry exporters store in model metadata.
func embeddedLabels(path string) []string {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil
	}
	defer func() { _ = meta.Destroy() }()

	raw, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil || !ok {
		return nil
	}
	names, err := detector.ParseNames(raw)
	if err != nil {
		GetLogger().Warn("ignoring unparsable model names metadata", logger.Error(err))
		return nil
	}
	return names
}

// Detect implements detector.Backend.
func (b *Backend) Detect(ctx context.Context, path string) ([]detector.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, fmt.Errorf("onnx backend is closed")
	}

	lb, err := yolo.Prepare(path, b.inputSize, yolo.NCHW, b.input.GetData())
	if err != nil {
		return nil, err
	}
	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return yolo.Decode(b.output.GetData(), b.output.GetShape(), lb, b.opts)
}

// Labels implements detector.LabelProvider.
func (b *Backend) Labels() []string { return b.labels }

// Name implements detector.Backend.
func (b *Backend) Name() string { return Name }

func (b *Backend) destroyTensors() {
	if b.input != nil {
		_ = b.input.Destroy()
		b.input = nil
	}
	if b.output != nil {
		_ = b.output.Destroy()
		b.output = nil
	}
}

// Close releases the session, tensors and runtime environment.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	b.destroyTensors()
	if envErr := ort.DestroyEnvironment(); err == nil {
		err = envErr
	}
	return err
}
