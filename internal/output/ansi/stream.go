package ansi

import "unicode/utf8"

const (
	esc = 0x1B
	bel = 0x07

	// maxPendingOSC bounds how long an unterminated OSC string is held back
	// before it is released to Sanitize as-is.
	maxPendingOSC = 256

	// maxBareCSI bounds the parameter bytes held back after a bare '['.
	maxBareCSI = 16
)

// Decoder sanitizes a byte stream chunk by chunk. Bytes that may belong to an
// escape sequence or rune completed by the next chunk are held back.
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	pending []byte
}

// Write consumes p and returns the sanitized text that is complete so far.
func (d *Decoder) Write(p []byte) string {
	data := make([]byte, 0, len(d.pending)+len(p))
	data = append(data, d.pending...)
	data = append(data, p...)

	cut := completeLen(data)
	d.pending = append(d.pending[:0], data[cut:]...)

	return Sanitize(string(data[:cut]))
}

// Flush returns whatever is still held back, sanitized, and resets the decoder.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out := Sanitize(string(d.pending))
	d.pending = d.pending[:0]
	return out
}

// Pending reports how many bytes are held back.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// completeLen returns the length of the prefix of data that cannot be changed
// by bytes arriving later.
func completeLen(data []byte) int {
	n := len(data)

	if i := lastEscape(data); i >= 0 && !sequenceComplete(data[i:]) {
		return i
	}

	// A bare CSI body that lost its ESC is stripped only once its final byte
	// arrives.
	if i := bareCSIStart(data); i >= 0 {
		return i
	}

	// A lone CR may be the first half of a CRLF.
	if n > 0 && data[n-1] == '\r' {
		return n - 1
	}

	// Hold back a trailing partial rune.
	for k := 1; k <= utf8.UTFMax-1 && k <= n; k++ {
		if utf8.RuneStart(data[n-k]) {
			if !utf8.FullRune(data[n-k:]) {
				return n - k
			}
			break
		}
	}
	return n
}

func lastEscape(data []byte) int {
	for i := len(data) - 1; i >= 0 && len(data)-i <= maxPendingOSC; i-- {
		if data[i] == esc {
			return i
		}
	}
	return -1
}

// bareCSIStart returns the index of a trailing '[' followed only by
// parameter bytes, or -1.
func bareCSIStart(data []byte) int {
	for i := len(data) - 1; i >= 0 && len(data)-i <= maxBareCSI+1; i-- {
		switch b := data[i]; {
		case b == '[':
			return i
		case b == ';' || (b >= '0' && b <= '9'):
		default:
			return -1
		}
	}
	return -1
}

// sequenceComplete reports whether seq, which starts with ESC, already holds
// its final byte.
func sequenceComplete(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		for _, b := range seq[2:] {
			if b >= 0x40 && b <= 0x7E {
				return true
			}
		}
		return false
	case ']':
		for j := 2; j < len(seq); j++ {
			if seq[j] == bel || (seq[j] == esc && j+1 < len(seq) && seq[j+1] == '\\') {
				return true
			}
		}
		return len(seq) >= maxPendingOSC
	default:
		return true
	}
}
