// Package wire implements the byte-level framing stack for server
// responses: timed reads off the raw transport, HTTP status/header
// parsing, chunked transfer decoding and XML entity decoding. Every
// layer is a ByteSource filter so the stack composes without buffering
// whole documents.
package wire

import (
	"io"
	"time"

	"github.com/mikey-austin/upnpcat/internal/transport"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// ByteSource yields one byte at a time. io.EOF marks a clean end of
// stream; any other error aborts the response.
type ByteSource interface {
	ReadByte() (byte, error)
}

// StreamSource adapts a transport stream into a ByteSource with a small
// internal buffer and a per-read timeout.
type StreamSource struct {
	stream  transport.Stream
	timeout time.Duration
	guard   transport.Guard
	buf     [512]byte
	pos     int
	n       int
}

// NewStreamSource wraps stream; timeout bounds each underlying read.
func NewStreamSource(stream transport.Stream, timeout time.Duration) *StreamSource {
	return NewGuardedSource(stream, timeout, transport.NopGuard{})
}

// NewGuardedSource is NewStreamSource holding the bus guard for the
// duration of each underlying transport read.
func NewGuardedSource(stream transport.Stream, timeout time.Duration, guard transport.Guard) *StreamSource {
	if guard == nil {
		guard = transport.NopGuard{}
	}
	return &StreamSource{stream: stream, timeout: timeout, guard: guard}
}

func (s *StreamSource) ReadByte() (byte, error) {
	if s.pos >= s.n {
		s.guard.Acquire()
		n, err := s.stream.Read(s.buf[:], s.timeout)
		s.guard.Release()
		if n <= 0 {
			if err == nil || err == io.EOF {
				return 0, io.EOF
			}
			if transport.IsTimeout(err) {
				return 0, &dlna.TransportError{Op: "read", Err: dlna.ErrReadTimeout}
			}
			return 0, &dlna.TransportError{Op: "read", Err: err}
		}
		s.pos, s.n = 0, n
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// LimitSource yields at most n bytes from src, then io.EOF. It frames
// fixed Content-Length bodies.
type LimitSource struct {
	src       ByteSource
	remaining uint64
}

func NewLimitSource(src ByteSource, n uint64) *LimitSource {
	return &LimitSource{src: src, remaining: n}
}

func (l *LimitSource) ReadByte() (byte, error) {
	if l.remaining == 0 {
		return 0, io.EOF
	}
	b, err := l.src.ReadByte()
	if err != nil {
		return 0, err
	}
	l.remaining--
	return b, nil
}
