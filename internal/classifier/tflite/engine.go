// Package tflite runs a TensorFlow Lite audio model as a classifier.Engine.
//
// The model takes one float32 input tensor whose last dimension is the window
// length and produces one output tensor with a value per label. An optional
// second output tensor holding a single value is reported as the anomaly score.
package tflite

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"

	"github.com/arribada/audiocontroller/internal/classifier"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
)

// Config configures the engine
type Config struct {
	ModelPath  string
	LabelsPath string
	Threads    int // 0 picks a value from the CPU topology
	PullChunk  int // samples normalized per Signal pull
}

// Engine wraps a TFLite interpreter. Classify calls are serialized.
type Engine struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	labels      []string
	inputLength int
	hasAnomaly  bool
	pullChunk   int
}

// New loads the model and labels and allocates tensors
func New(cfg Config) (*Engine, error) {
	start := time.Now()
	log := GetLogger()

	labels, err := classifier.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			FileContext(cfg.ModelPath).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model %s", cfg.ModelPath).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_size_kb", len(data)/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	threads := determineThreadCount(cfg.Threads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.Newf("cannot create interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	e := &Engine{
		model:       model,
		options:     options,
		interpreter: interpreter,
		labels:      labels,
		pullChunk:   max(cfg.PullChunk, 1),
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		_ = e.Close()
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	if err := e.inspectTensors(); err != nil {
		_ = e.Close()
		return nil, err
	}

	log.Info("model loaded",
		logger.String("model", cfg.ModelPath),
		logger.Int("input_length", e.inputLength),
		logger.Int("labels", len(labels)),
		logger.Bool("anomaly_output", e.hasAnomaly),
		logger.Int("threads", threads),
		logger.Duration("elapsed", time.Since(start)))

	return e, nil
}

// inspectTensors derives the window length from the input tensor and checks the label count
func (e *Engine) inspectTensors() error {
	input := e.interpreter.GetInputTensor(0)
	if input == nil || input.Type() != tflite.Float32 {
		return errors.Newf("model input 0 must be a float32 tensor").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	e.inputLength = input.Dim(input.NumDims() - 1)

	output := e.interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("model has no output tensor").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	if n := output.Dim(output.NumDims() - 1); n != len(e.labels) {
		return errors.Newf("model has %d outputs but %d labels were loaded", n, len(e.labels)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}

	if e.interpreter.GetOutputTensorCount() > 1 {
		anomaly := e.interpreter.GetOutputTensor(1)
		e.hasAnomaly = anomaly != nil && len(anomaly.Float32s()) == 1
	}
	return nil
}

// InputLength returns the number of samples per window the model expects
func (e *Engine) InputLength() int { return e.inputLength }

// Labels returns the label names in output order
func (e *Engine) Labels() []string { return e.labels }

// Classify pulls the signal into the input tensor and runs the interpreter
func (e *Engine) Classify(ctx context.Context, signal classifier.Signal, debug bool) (*classifier.Result, error) {
	if signal.TotalLength != e.inputLength {
		return nil, classifier.NewClassificationError(-1,
			fmt.Errorf("signal length %d does not match model input %d", signal.TotalLength, e.inputLength))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return nil, classifier.NewClassificationError(-1, errors.NewStd("engine closed"))
	}

	dspStart := time.Now()
	in := e.interpreter.GetInputTensor(0).Float32s()
	for offset := 0; offset < e.inputLength; offset += e.pullChunk {
		end := min(offset+e.pullChunk, e.inputLength)
		if err := signal.Read(offset, in[offset:end]); err != nil {
			return nil, classifier.NewClassificationError(-2, err)
		}
	}
	dsp := time.Since(dspStart)

	invokeStart := time.Now()
	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, classifier.NewClassificationError(int(status), fmt.Errorf("tensor invoke failed: %v", status))
	}
	invoke := time.Since(invokeStart)

	output := e.interpreter.GetOutputTensor(0)
	values := make([]float32, output.Dim(output.NumDims()-1))
	copy(values, output.Float32s())

	classifications, err := classifier.PairLabels(e.labels, values)
	if err != nil {
		return nil, classifier.NewClassificationError(-3, err)
	}

	result := &classifier.Result{
		Classifications: classifications,
		Timing:          classifier.Timing{DSP: dsp, Classification: invoke},
	}
	if e.hasAnomaly {
		result.Anomaly = e.interpreter.GetOutputTensor(1).Float32s()[0]
		result.HasAnomaly = true
	}

	if debug {
		GetLogger().Debug("classified window",
			logger.Duration("dsp", dsp),
			logger.Duration("invoke", invoke),
			logger.Any("top", result.Top(3)))
	}
	return result, nil
}

// Close releases the interpreter and model
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}

// determineThreadCount returns the configured thread count, or the physical
// core count capped by the CPUs available to the process.
func determineThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	cores := cpuid.CPU.PhysicalCores
	if cores <= 0 {
		cores = cpuid.CPU.LogicalCores
	}
	if cores <= 0 {
		return available
	}
	return min(cores, available)
}

// GetLogger returns the tflite engine logger
func GetLogger() logger.Logger {
	return classifier.GetLogger().Module("tflite")
}
