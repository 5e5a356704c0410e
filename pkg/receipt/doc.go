// Package receipt closes the loop between an external channel's
// asynchronous receipt feed and the delivery state in the queue. Receipts
// are applied exactly once, confirmed back to the channel so it can garbage
// collect them, and rejected when they arrive for conversations that never
// reached the wire.
package receipt
