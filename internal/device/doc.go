// Package device describes the diagnostic adapters dpfwatch reacts to.
//
// It holds the transport-neutral Device value, the ConnectionEvent produced by
// transports when an adapter appears or goes away, and the name classifier that
// decides whether a device is a vehicle diagnostic interface:
//   - IsDiagnosticDevice matches advertised names against a fixed vocabulary
//   - MatchFragment reports which vocabulary entry matched
//   - Vocabulary exposes the vocabulary in its declared order
package device
