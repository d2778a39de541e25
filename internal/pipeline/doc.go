// Package pipeline wires the settlement stream to the notifier.
//
// Each settlement event flows through filter, extract, alias resolution,
// formatting and dispatch, one event at a time and in stream order. Bad events
// and failed deliveries are logged and dropped. The end of the stream is fatal:
// Run returns a *StreamTerminationError and the process is expected to exit.
package pipeline
