// Package utils holds input validation, session name scrubbing and digest
// helpers shared by the HTTP and WebSocket surfaces.
package utils
