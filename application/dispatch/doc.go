// Package dispatch drives one inbound request through route resolution,
// sandbox instantiation and guest execution, and maps the result to HTTP.
//
// Every request walks the same state machine:
//
//	Received → Routed → Instantiated → Running → Completed | Trapped | TimedOut | Cancelled
//
// Requests that fail before running end in Completed with a synthesized
// status. The execution context is closed on every path out of Running.
package dispatch
