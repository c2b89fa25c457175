package interfaces

import "scalping-bot/internal/types"

// Classifier wraps the trained model artifact. Deterministic for a fixed
// artifact and vector.
type Classifier interface {
	// Schema returns the feature names the model expects, in input order.
	Schema() []string
	Classify(vec types.FeatureVector) (types.Signal, error)
	Close()
}
