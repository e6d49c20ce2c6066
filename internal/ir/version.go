package ir

// Version constants for the program schema and kernel.
const (
	// IRVersion is the program schema version.
	IRVersion = "1"

	// EngineVersion is the rill kernel version.
	EngineVersion = "0.1.0"
)
