// Package program instantiates compiled program specs as live units.
//
// A program is built once into its own isolated domain. Every unit holds
// plain JSON values: numbers are float64, objects are map[string]any and
// lists are []any. Payloads and initial values are normalized to that
// shape before they reach a unit, so values restored from snapshots and
// values produced by reducers compare equal.
//
// Units are referenced by name. A reference may also name an event of a
// unit: "<effect>.done", "<effect>.fail", "<effect>.finally",
// "<effect>.doneData", "<effect>.failData" and "<store>.updates".
package program
