// Package lifecycle owns the monitoring state machine.
//
// A Manager moves between Idle, Starting, Monitoring and Stopping. Starting
// persists the device address, acquires an execution context from a host and
// announces the device; stopping clears any outstanding alert, releases the
// context and announces the disconnection. While monitoring, a single
// high-priority regeneration alert can be raised and cleared.
//
// All transitions run under one mutex, so callers from the connection
// watcher, the boot trigger and the bridge are linearized. Events are handed
// to an eventbus.Bus inside the critical section; the bus never blocks, so a
// slow subscriber cannot delay a transition, and every subscriber sees events
// in transition order.
//
// Failures never leave the manager half-started: a start that cannot persist
// the device or acquire the context ends in Idle and returns a typed *Error.
package lifecycle
