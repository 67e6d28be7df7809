package wire

import (
	"io"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// maxChunkLine bounds the chunk-size line, including extensions.
const maxChunkLine = 256

// ChunkedSource decodes HTTP chunked transfer framing into a logical
// byte stream. The bytes-remaining state persists across reads: callers
// may pull payload a few bytes at a time and the size line is consumed
// exactly once per chunk. A zero-size chunk terminates the stream; any
// malformed size token is fatal for the response.
type ChunkedSource struct {
	src       ByteSource
	remaining uint64
	started   bool
	done      bool
}

func NewChunkedSource(src ByteSource) *ChunkedSource {
	return &ChunkedSource{src: src}
}

func (c *ChunkedSource) ReadByte() (byte, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		if err := c.nextChunk(); err != nil {
			return 0, err
		}
		if c.done {
			return 0, io.EOF
		}
	}
	b, err := c.src.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, &dlna.ProtocolError{Op: "chunked", Reason: "stream ended mid-chunk"}
		}
		return 0, err
	}
	c.remaining--
	return b, nil
}

// nextChunk consumes the trailing CRLF of the previous chunk, then the
// hexadecimal size line of the next one.
func (c *ChunkedSource) nextChunk() error {
	if c.started {
		if err := c.expectCRLF(); err != nil {
			return err
		}
	}
	c.started = true

	var size uint64
	digits := 0
	for i := 0; ; i++ {
		if i >= maxChunkLine {
			return &dlna.ProtocolError{Op: "chunked", Reason: "chunk size line too long"}
		}
		b, err := c.src.ReadByte()
		if err != nil {
			if err == io.EOF {
				return &dlna.ProtocolError{Op: "chunked", Reason: "stream ended in chunk size"}
			}
			return err
		}
		if b == '\r' {
			continue
		}
		if b == '\n' {
			break
		}
		// Chunk extensions after ';' are skipped up to end of line.
		if b == ';' {
			if err := c.skipLine(i); err != nil {
				return err
			}
			break
		}
		v, ok := hexValue(b)
		if !ok {
			return &dlna.ProtocolError{Op: "chunked", Reason: "malformed chunk size"}
		}
		size = size<<4 | uint64(v)
		digits++
	}
	if digits == 0 {
		return &dlna.ProtocolError{Op: "chunked", Reason: "empty chunk size"}
	}
	if size == 0 {
		// Terminal chunk; consume the final CRLF if present.
		c.done = true
		c.discardTrailer()
		return nil
	}
	c.remaining = size
	return nil
}

func (c *ChunkedSource) expectCRLF() error {
	for _, want := range []byte{'\r', '\n'} {
		b, err := c.src.ReadByte()
		if err != nil {
			if err == io.EOF {
				return &dlna.ProtocolError{Op: "chunked", Reason: "missing chunk terminator"}
			}
			return err
		}
		if b != want {
			return &dlna.ProtocolError{Op: "chunked", Reason: "missing chunk terminator"}
		}
	}
	return nil
}

func (c *ChunkedSource) skipLine(consumed int) error {
	for i := consumed; i < maxChunkLine; i++ {
		b, err := c.src.ReadByte()
		if err != nil {
			return err
		}
		if b == '\n' {
			return nil
		}
	}
	return &dlna.ProtocolError{Op: "chunked", Reason: "chunk size line too long"}
}

// discardTrailer drains the optional trailer up to the blank line.
// Errors here are ignored: the body is already complete.
func (c *ChunkedSource) discardTrailer() {
	empty := true
	for i := 0; i < maxChunkLine; i++ {
		b, err := c.src.ReadByte()
		if err != nil {
			return
		}
		if b == '\n' {
			if empty {
				return
			}
			empty = true
			continue
		}
		if b != '\r' {
			empty = false
		}
	}
}

func hexValue(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
