// Package delivery holds one delivery strategy per channel. A strategy
// adapts a packaged envelope to its external transport collaborator and maps
// transport errors into transient or permanent outcomes; all retry policy
// lives in the queue, never here.
package delivery
