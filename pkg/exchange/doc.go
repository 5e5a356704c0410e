// Package exchange is the submission entry point of the integration point.
//
// A Service ties the pipeline together: it builds the routing envelope,
// selects the delivery channel for the receiver, applies the application
// receipt rules, packages the payload for that receiver, and hands the
// result to the retry queue. Submit returns once the entry is durably
// enqueued; actual transmission happens asynchronously in the queue
// scheduler.
package exchange
