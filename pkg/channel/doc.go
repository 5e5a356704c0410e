// Package channel decides which delivery channel a receiver can be reached
// on. The selector combines the receiver's registered capabilities with the
// locally enabled channels and returns candidates in preference order, with
// print as a channel of last resort.
package channel
