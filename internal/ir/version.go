package ir

// Version constants for the engine and its persisted records.
const (
	// SchemaVersion is the version of the persisted diagnosis record layout.
	SchemaVersion = "1"

	// EngineVersion is the rootcause engine version.
	EngineVersion = "0.1.0"
)
