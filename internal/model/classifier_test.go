package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"scalping-bot/internal/types"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMetadata(t *testing.T) {
	path := writeMetadata(t, `{
		"version": "2024.11.0",
		"feature_schema": ["open", "high", "low", "close"],
		"classes": ["BUY", "SELL", "HOLD"],
		"input_name": "float_input",
		"output_name": "probabilities"
	}`)

	meta, err := loadMetadata(path)
	if err != nil {
		t.Fatalf("loadMetadata failed: %v", err)
	}
	if meta.Version != "2024.11.0" {
		t.Errorf("Expected version 2024.11.0, got %s", meta.Version)
	}
	if len(meta.FeatureSchema) != 4 {
		t.Errorf("Expected 4 features, got %d", len(meta.FeatureSchema))
	}
	if meta.InputName != "float_input" {
		t.Errorf("Expected input name float_input, got %s", meta.InputName)
	}
}

func TestLoadMetadataDefaultsTensorNames(t *testing.T) {
	path := writeMetadata(t, `{
		"feature_schema": ["close"],
		"classes": ["BUY", "SELL", "HOLD"]
	}`)

	meta, err := loadMetadata(path)
	if err != nil {
		t.Fatalf("loadMetadata failed: %v", err)
	}
	if meta.InputName != "input" || meta.OutputName != "output" {
		t.Errorf("Expected default tensor names, got %s/%s", meta.InputName, meta.OutputName)
	}
}

func TestLoadMetadataRejectsBadClasses(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"missing class", `{"feature_schema":["close"],"classes":["BUY","SELL"]}`},
		{"unknown class", `{"feature_schema":["close"],"classes":["BUY","SELL","HOLD","SHORT"]}`},
		{"empty schema", `{"feature_schema":[],"classes":["BUY","SELL","HOLD"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeMetadata(t, tc.json)
			if _, err := loadMetadata(path); err == nil {
				t.Error("Expected metadata to be rejected")
			}
		})
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	if _, err := loadMetadata(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing metadata file")
	}
}

func TestValidateSchema(t *testing.T) {
	c := &Classifier{meta: Metadata{
		FeatureSchema: []string{"open", "close", "rsi"},
	}}

	if err := c.ValidateSchema([]string{"open", "close", "rsi"}); err != nil {
		t.Errorf("Expected matching schema to pass, got %v", err)
	}

	err := c.ValidateSchema([]string{"open", "rsi", "close"})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch for reordered schema, got %v", err)
	}

	err = c.ValidateSchema([]string{"open", "close"})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch for short schema, got %v", err)
	}
}

func TestClassifyUnloaded(t *testing.T) {
	var c *Classifier
	_, err := c.Classify(vector(3))
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded on nil classifier, got %v", err)
	}

	closed := &Classifier{}
	_, err = closed.Classify(vector(3))
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded on unbound classifier, got %v", err)
	}
}

func TestProbabilitiesPassthrough(t *testing.T) {
	// Graphs exported with a softmax node already emit a distribution;
	// it must not be renormalized.
	probs := probabilities([]float32{0.9, 0.05, 0.05})
	if math.Abs(probs[0]-0.9) > 1e-6 {
		t.Errorf("Expected distribution to pass through unchanged, got %f", probs[0])
	}
}

func TestProbabilitiesSoftmaxLogits(t *testing.T) {
	probs := probabilities([]float32{2.0, 1.0, -1.0})
	sum := 0.0
	for _, p := range probs {
		if p <= 0 || p >= 1 {
			t.Errorf("Expected softmax output in (0,1), got %f", p)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Expected softmax to sum to 1, got %f", sum)
	}
	if !(probs[0] > probs[1] && probs[1] > probs[2]) {
		t.Error("Expected softmax to preserve logit ordering")
	}
}

func TestArgmax(t *testing.T) {
	idx, conf := argmax([]float64{0.1, 0.7, 0.2})
	if idx != 1 {
		t.Errorf("Expected argmax index 1, got %d", idx)
	}
	if conf != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", conf)
	}
}

func vector(n int) types.FeatureVector {
	return types.FeatureVector{Values: make([]float64, n)}
}
