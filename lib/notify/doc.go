// Package notify delivers change events to registered subscribers.
//
// Every mutation that settles through the manager publishes an Event. A
// subscriber registers a handler for one collection (or all of them) and a
// set of event kinds; handlers run on a dedicated goroutine per subscriber,
// fed by an unbounded lock-free queue, so a slow handler never blocks the
// mutating caller or other subscribers.
//
// Delivery is at-least-ordered per subscriber: events published by a single
// goroutine arrive in publish order. Events published concurrently from
// different goroutines have no ordering guarantee between them.
package notify
