// Package ansi strips terminal control sequences from subprocess output.
//
// Sanitize is a pure, idempotent function over complete strings. Decoder wraps
// it for byte streams read from a pseudo-terminal, where an escape sequence or
// a multi-byte rune may be split across two reads:
//
//	var dec ansi.Decoder
//	for chunk := range reads {
//		text := dec.Write(chunk) // complete, sanitized text only
//	}
//	tail := dec.Flush()
package ansi
