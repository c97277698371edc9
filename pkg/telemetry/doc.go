// Package telemetry binds sensor modules to display rows.
//
// A Handler is created per enumerated sensor. Construction configures the
// module's push period and registers a sample callback; it either succeeds
// completely or leaves nothing registered. Sample callbacks run on the
// transport's dispatch goroutines and follow a fixed policy:
//
//   - no display attached: do nothing
//   - handler from an earlier epoch: do nothing
//   - display write failed: log at debug level and carry on
//   - secondary read (temperature) failed: log at error level and skip the
//     rest of the callback
package telemetry
