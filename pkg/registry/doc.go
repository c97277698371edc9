// Package registry maps enumerated modules to live handlers.
//
// Handlers live in slots keyed by device kind, one slot per kind. Every
// slot is tagged with the connection epoch it was created in. BeginEpoch
// advances the epoch, which makes every existing slot stale at once: stale
// handlers stay registered with the bus but ignore their samples.
package registry
