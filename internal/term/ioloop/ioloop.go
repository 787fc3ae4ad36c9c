// Package ioloop runs one reader goroutine per pane: it reads raw bytes
// from a PTY backend, reframes them on UTF-8 boundaries (spec.md §4.4), and
// forwards decoded text through the shell-integration OSC parser before the
// Mux publishes PaneOutput/PaneCwdChanged notifications. Grounded on the
// teacher's internal/egg replay-buffer read loop, generalized from a
// single-session replay buffer to a per-pane publish callback.
package ioloop

import (
	"unicode/utf8"

	"github.com/orbitx-dev/orbitx/internal/shellintegration"
	"github.com/orbitx-dev/orbitx/internal/term"
)

// Reader abstracts the PTY backend's Read/Dead/MarkDead surface so this
// package doesn't import ptybackend directly (keeps ioloop testable with a
// fake).
type Reader interface {
	Read(p []byte) (int, error)
	MarkDead()
}

// Publisher receives notifications produced by the loop.
type Publisher interface {
	Publish(n term.Notification)
}

const defaultBufSize = 8 * 1024

// Loop owns one pane's read goroutine.
type Loop struct {
	pane      term.PaneID
	reader    Reader
	publisher Publisher
	parser    *shellintegration.Parser
	bufSize   int

	pending []byte // undecoded residual bytes, for UTF-8 reframing
}

// New constructs a Loop. bufSize <= 0 uses the spec's default of 8 KiB.
func New(pane term.PaneID, reader Reader, publisher Publisher, parser *shellintegration.Parser, bufSize int) *Loop {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &Loop{pane: pane, reader: reader, publisher: publisher, parser: parser, bufSize: bufSize}
}

// Run reads until the backend reports EOF/error, reframing and forwarding
// through the OSC parser on each chunk. It returns when the pane is no
// longer producing data; callers run it in its own goroutine.
func (l *Loop) Run() {
	buf := make([]byte, l.bufSize)
	for {
		n, err := l.reader.Read(buf)
		if n > 0 {
			l.handleChunk(buf[:n])
		}
		if err != nil {
			l.flushResidual()
			l.reader.MarkDead()
			l.publisher.Publish(term.NewPaneExited(l.pane, 0, false))
			return
		}
	}
}

// handleChunk implements spec.md §4.4's UTF-8 reframing algorithm: repeatedly
// decode the longest valid UTF-8 prefix of (pending + chunk), forward it,
// and drain consumed bytes; on an invalid sequence with a known error
// length, drop that many bytes and continue; stop when no valid prefix
// remains (the residual becomes the next call's pending bytes).
func (l *Loop) handleChunk(chunk []byte) {
	data := append(l.pending, chunk...)
	l.pending = nil

	var validEnd int
	for validEnd < len(data) {
		r, size := utf8.DecodeRune(data[validEnd:])
		if r == utf8.RuneError {
			if size <= 1 {
				// Could be a genuinely invalid byte, or a valid sequence
				// split across chunks (size==0 input can't happen here
				// since data[validEnd:] is non-empty, so size==1 means
				// decode failed outright for this byte, or the remaining
				// bytes are a not-yet-complete multi-byte prefix).
				if validEnd+utf8.UTFMax > len(data) && !utf8.FullRune(data[validEnd:]) {
					break // incomplete trailing sequence; wait for more bytes
				}
				validEnd++ // genuinely invalid byte, drop it and continue
				continue
			}
		}
		validEnd += size
	}

	if validEnd > 0 {
		l.forward(string(data[:validEnd]))
	}
	if validEnd < len(data) {
		l.pending = append(l.pending, data[validEnd:]...)
	}
}

func (l *Loop) flushResidual() {
	if len(l.pending) > 0 {
		l.forward(string(l.pending))
		l.pending = nil
	}
}

func (l *Loop) forward(text string) {
	forwarded, cwdChanges := l.parser.Feed(text)
	if forwarded != "" {
		l.publisher.Publish(term.NewPaneOutput(l.pane, []byte(forwarded)))
	}
	for _, c := range cwdChanges {
		l.publisher.Publish(term.NewPaneCwdChanged(l.pane, c.Cwd))
	}
}
