// Package model binds a trained ONNX classification artifact and exposes
// it behind interfaces.Classifier. The artifact ships with a metadata
// sidecar declaring its version, feature schema and output classes; the
// schema is checked against the feature engine before the first cycle.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"scalping-bot/internal/types"
)

var (
	ErrModelNotLoaded = errors.New("classifier invoked before a model was bound")
	ErrSchemaMismatch = errors.New("feature schema does not match model schema")
	ErrFeatureShape   = errors.New("feature vector length mismatch")
)

// Metadata is the sidecar JSON written by the training pipeline next to
// the .onnx artifact.
type Metadata struct {
	Version       string   `json:"version"`
	FeatureSchema []string `json:"feature_schema"`
	Classes       []string `json:"classes"`
	InputName     string   `json:"input_name"`
	OutputName    string   `json:"output_name"`
}

type Classifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	meta    Metadata
	loaded  bool
}

var ortInitOnce sync.Once

// InitializeRuntime points the onnxruntime binding at the shared library
// for the host platform and initializes the environment once.
func InitializeRuntime() error {
	var err error
	ortInitOnce.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		if runtime.GOOS == "windows" {
			libPath = "onnxruntime.dll"
		} else if runtime.GOOS == "darwin" {
			libPath = "libonnxruntime.dylib"
		}
		if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
			libPath = v
		}
		ort.SetSharedLibraryPath(libPath)
		err = ort.InitializeEnvironment()
	})
	return err
}

// Load reads the metadata sidecar and binds the ONNX session. The
// session is created once and reused for every inference.
func Load(modelPath, metaPath string) (*Classifier, error) {
	meta, err := loadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	if err := InitializeRuntime(); err != nil {
		return nil, fmt.Errorf("onnxruntime init failed: %w", err)
	}

	inputShape := ort.NewShape(1, int64(len(meta.FeatureSchema)))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, len(meta.FeatureSchema)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(len(meta.Classes)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Classifier{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		meta:    meta,
		loaded:  true,
	}, nil
}

func loadMetadata(path string) (Metadata, error) {
	var meta Metadata
	b, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("failed to read model metadata: %w", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if len(meta.FeatureSchema) == 0 {
		return meta, errors.New("model metadata declares no feature schema")
	}
	if err := validateClasses(meta.Classes); err != nil {
		return meta, err
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	return meta, nil
}

func validateClasses(classes []string) error {
	want := map[string]bool{types.SignalBuy: false, types.SignalSell: false, types.SignalHold: false}
	for _, c := range classes {
		if _, ok := want[c]; !ok {
			return fmt.Errorf("model declares unknown class %q", c)
		}
		want[c] = true
	}
	for c, seen := range want {
		if !seen {
			return fmt.Errorf("model is missing class %q", c)
		}
	}
	return nil
}

// Version returns the artifact version from the metadata sidecar.
func (c *Classifier) Version() string { return c.meta.Version }

// Schema returns the feature names the model was trained on, in order.
func (c *Classifier) Schema() []string {
	out := make([]string, len(c.meta.FeatureSchema))
	copy(out, c.meta.FeatureSchema)
	return out
}

// ValidateSchema fails fast when the engine's feature order differs from
// the model's training order. A mismatch here is a silent-corruption
// risk, never a recoverable condition.
func (c *Classifier) ValidateSchema(engineSchema []string) error {
	if len(engineSchema) != len(c.meta.FeatureSchema) {
		return fmt.Errorf("%w: engine has %d features, model expects %d",
			ErrSchemaMismatch, len(engineSchema), len(c.meta.FeatureSchema))
	}
	for i, name := range c.meta.FeatureSchema {
		if engineSchema[i] != name {
			return fmt.Errorf("%w: position %d is %q in engine but %q in model",
				ErrSchemaMismatch, i, engineSchema[i], name)
		}
	}
	return nil
}

// Classify runs one inference and returns the argmax class with its
// softmax probability as confidence.
func (c *Classifier) Classify(vec types.FeatureVector) (types.Signal, error) {
	if c == nil || !c.loaded {
		return types.Signal{}, ErrModelNotLoaded
	}
	if len(vec.Values) != len(c.meta.FeatureSchema) {
		return types.Signal{}, fmt.Errorf("%w: got %d values, model expects %d",
			ErrFeatureShape, len(vec.Values), len(c.meta.FeatureSchema))
	}

	// The ORT session reuses one input/output tensor pair, so inference
	// is serialized.
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.input.GetData()
	for i, v := range vec.Values {
		data[i] = float32(v)
	}
	if err := c.session.Run(); err != nil {
		return types.Signal{}, fmt.Errorf("inference failed: %w", err)
	}

	probs := probabilities(c.output.GetData())
	idx, conf := argmax(probs)
	return types.Signal{Class: c.meta.Classes[idx], Confidence: conf}, nil
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
	}
	if c.input != nil {
		c.input.Destroy()
	}
	if c.output != nil {
		c.output.Destroy()
	}
	c.loaded = false
}

// probabilities passes the output through unchanged when it already is a
// distribution (some exported graphs include the softmax node, some emit
// raw logits) and applies softmax otherwise.
func probabilities(raw []float32) []float64 {
	sum, nonNegative := 0.0, true
	for _, v := range raw {
		if v < 0 {
			nonNegative = false
			break
		}
		sum += float64(v)
	}
	if nonNegative && math.Abs(sum-1.0) < 1e-3 {
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out
	}
	return softmax(raw)
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(probs []float64) (int, float64) {
	idx, best := 0, math.Inf(-1)
	for i, p := range probs {
		if p > best {
			idx, best = i, p
		}
	}
	return idx, best
}
