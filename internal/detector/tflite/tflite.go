// Package tflite runs YOLOv8 TensorFlow Lite exports.
package tflite

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/detector/yolo"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// Name identifies the backend.
const Name = "tflite"

// Config selects the model and interpreter threads.
type Config struct {
	ModelPath string
	Threads   int
	Options   yolo.Options
}

// Backend wraps one interpreter. TFLite interpreters are not reentrant,
// so Detect serializes on mu.
type Backend struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	inputSize   int
	outShape    []int64
	opts        yolo.Options
}

// New loads the model and allocates tensors.
func New(cfg Config) (*Backend, error) {
	start := time.Now()

	modelData, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("detector.tflite").
			Category(errors.CategoryModelLoad).
			ModelContext(cfg.ModelPath, Name).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("detector.tflite").
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, Name).
			Context("model_size_mb", len(modelData)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if cfg.Threads > 0 {
		options.SetNumThread(cfg.Threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	b := &Backend{model: model, interpreter: interpreter, opts: cfg.Options}
	b.opts.NormalizedBoxes = true

	if err := b.inspectTensors(); err != nil {
		_ = b.Close()
		return nil, err
	}

	GetLogger().Info("TFLite interpreter created",
		logger.String("model", cfg.ModelPath),
		logger.Int("input_size", b.inputSize),
		logger.Any("output_shape", b.outShape),
		logger.Int("threads", cfg.Threads))
	return b, nil
}

// inspectTensors checks for an NHWC float RGB input and records the output shape.
func (b *Backend) inspectTensors() error {
	in := b.interpreter.GetInputTensor(0)
	if in == nil {
		return fmt.Errorf("cannot get input tensor")
	}
	if in.Type() != tflite.Float32 {
		return fmt.Errorf("input tensor type %v is not float32; use a float export", in.Type())
	}
	if in.NumDims() != 4 || in.Dim(3) != 3 || in.Dim(1) != in.Dim(2) {
		dims := make([]int, in.NumDims())
		for i := range dims {
			dims[i] = in.Dim(i)
		}
		return fmt.Errorf("expected square NHWC RGB input, got %v", dims)
	}
	b.inputSize = in.Dim(1)

	out := b.interpreter.GetOutputTensor(0)
	if out == nil {
		return fmt.Errorf("cannot get output tensor")
	}
	b.outShape = make([]int64, out.NumDims())
	for i := range b.outShape {
		b.outShape[i] = int64(out.Dim(i))
	}
	return nil
}

// Detect implements detector.Backend.
func (b *Backend) Detect(ctx context.Context, path string) ([]detector.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.interpreter == nil {
		return nil, fmt.Errorf("tflite backend is closed")
	}

	input := b.interpreter.GetInputTensor(0)
	lb, err := yolo.Prepare(path, b.inputSize, yolo.NHWC, input.Float32s())
	if err != nil {
		return nil, err
	}

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := b.interpreter.GetOutputTensor(0)
	predictions := make([]float32, len(out.Float32s()))
	copy(predictions, out.Float32s())
	return yolo.Decode(predictions, b.outShape, lb, b.opts)
}

// Name implements detector.Backend.
func (b *Backend) Name() string { return Name }

// Close deletes the interpreter and model.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}
