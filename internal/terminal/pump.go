package terminal

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/output/ansi"
)

const (
	// ReadSize is the maximum number of bytes taken from the PTY per read.
	ReadSize = 1024
	// QuietPeriod is how long output must stop before the buffer is flushed.
	QuietPeriod = 500 * time.Millisecond
	// MaxBufferSize is the buffered size above which a flush is forced.
	MaxBufferSize = 4096
	// FinalReadTimeout bounds the drain after the process has exited.
	FinalReadTimeout = 100 * time.Millisecond
)

// FlushReason says why a unit was emitted.
type FlushReason string

const (
	FlushQuiet FlushReason = "quiet"
	FlushSize  FlushReason = "size"
	FlushExit  FlushReason = "exit"
)

// ShouldFlush reports whether a buffer of bufLen bytes, last extended
// sinceLastRead ago, must be emitted.
func ShouldFlush(bufLen int, sinceLastRead time.Duration) bool {
	if bufLen > MaxBufferSize {
		return true
	}
	return bufLen > 0 && sinceLastRead >= QuietPeriod
}

// readLoop copies PTY reads onto chunks until the PTY reports an error or
// the pump has stopped. On Linux the error is EIO once the child side closes.
func (p *Process) readLoop(chunks chan<- []byte) {
	defer close(chunks)

	buf := make([]byte, ReadSize)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-p.pumpDone:
				return
			}
		}
		if err != nil {
			p.logger.Debug("PTY read loop finished", zap.Error(err))
			return
		}
	}
}

// pumper accumulates sanitized output between flushes.
type pumper struct {
	p        *Process
	dec      ansi.Decoder
	buf      strings.Builder
	lastRead time.Time
	timer    *time.Timer
}

func (p *Process) pump(ctx context.Context, chunks <-chan []byte) {
	defer close(p.pumpDone)

	pm := &pumper{p: p, timer: time.NewTimer(QuietPeriod)}
	pm.timer.Stop()
	defer pm.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			pm.finish()
			return

		case chunk, ok := <-chunks:
			if !ok {
				pm.finish()
				return
			}
			pm.add(chunk)

		case <-pm.timer.C:
			if ShouldFlush(pm.buf.Len(), time.Since(pm.lastRead)) {
				pm.flush(FlushQuiet)
			} else if pm.buf.Len() > 0 {
				pm.timer.Reset(QuietPeriod - time.Since(pm.lastRead))
			}

		case <-p.exited:
			pm.drain(ctx, chunks)
			pm.finish()
			return
		}
	}
}

// add appends one raw chunk. Chunks that sanitize to whitespace are dropped
// and do not extend the quiet period.
func (pm *pumper) add(chunk []byte) {
	text := pm.dec.Write(chunk)
	if ansi.IsBlank(text) {
		return
	}
	pm.buf.WriteString(text)
	pm.lastRead = time.Now()

	if ShouldFlush(pm.buf.Len(), 0) {
		pm.flush(FlushSize)
		return
	}
	pm.timer.Reset(QuietPeriod)
}

// drain takes whatever the reader still delivers after exit, bounded by
// FinalReadTimeout.
func (pm *pumper) drain(ctx context.Context, chunks <-chan []byte) {
	deadline := time.NewTimer(FinalReadTimeout)
	defer deadline.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			pm.add(chunk)
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (pm *pumper) finish() {
	if tail := pm.dec.Flush(); !ansi.IsBlank(tail) {
		pm.buf.WriteString(tail)
	}
	pm.flush(FlushExit)
}

func (pm *pumper) flush(reason FlushReason) {
	pm.timer.Stop()
	if pm.buf.Len() == 0 {
		return
	}
	unit := pm.buf.String()
	pm.buf.Reset()

	pm.p.queue.push(unit)
	if pm.p.onFlush != nil {
		pm.p.onFlush(reason, len(unit))
	}
}
