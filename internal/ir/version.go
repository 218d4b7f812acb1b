package ir

// Version constants for datasets and the engine.
const (
	// DatasetVersion is the fact serialization version used for fingerprints.
	DatasetVersion = "1"

	// EngineVersion is the greynet engine version.
	EngineVersion = "0.1.0"
)
