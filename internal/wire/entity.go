package wire

import "io"

// The five predefined XML entities. Longest is six bytes, which bounds
// the match buffer.
var entities = []struct {
	text string
	with byte
}{
	{"&amp;", '&'},
	{"&lt;", '<'},
	{"&gt;", '>'},
	{"&quot;", '"'},
	{"&apos;", '\''},
}

const maxEntityLen = 6

// EntitySource rewrites the predefined XML entities to their literal
// characters and passes everything else through. Entity text arrives one
// byte at a time across reads, so bytes after an ampersand are held in a
// fixed buffer until they either match an entity or can no longer match
// one; on a mismatch the held bytes are emitted verbatim, never dropped.
type EntitySource struct {
	src     ByteSource
	buf     [maxEntityLen]byte
	n       int
	pending []byte
	err     error
}

func NewEntitySource(src ByteSource) *EntitySource {
	return &EntitySource{src: src}
}

func (e *EntitySource) ReadByte() (byte, error) {
	for {
		if len(e.pending) > 0 {
			b := e.pending[0]
			e.pending = e.pending[1:]
			return b, nil
		}
		if e.err != nil {
			return 0, e.err
		}
		b, err := e.src.ReadByte()
		if err != nil {
			// Flush a partial match before surfacing the error.
			e.err = err
			if e.n > 0 {
				e.pending = append(e.pending[:0], e.buf[:e.n]...)
				e.n = 0
				continue
			}
			return 0, err
		}
		if e.n == 0 {
			if b != '&' {
				return b, nil
			}
			e.buf[0] = '&'
			e.n = 1
			continue
		}
		if b == '&' {
			// New candidate starts; what we held cannot match anymore.
			e.pending = append(e.pending[:0], e.buf[:e.n]...)
			e.buf[0] = '&'
			e.n = 1
			continue
		}
		e.buf[e.n] = b
		e.n++
		cand := string(e.buf[:e.n])
		if with, ok := entityMatch(cand); ok {
			e.n = 0
			return with, nil
		}
		if e.n == maxEntityLen || !entityPrefix(cand) {
			e.pending = append(e.pending[:0], e.buf[:e.n]...)
			e.n = 0
		}
	}
}

func entityMatch(cand string) (byte, bool) {
	for _, ent := range entities {
		if cand == ent.text {
			return ent.with, true
		}
	}
	return 0, false
}

func entityPrefix(cand string) bool {
	for _, ent := range entities {
		if len(cand) < len(ent.text) && ent.text[:len(cand)] == cand {
			return true
		}
	}
	return false
}

// drainEOF is a tiny helper for tests and callers that want to confirm a
// source is exhausted.
func drainEOF(src ByteSource) bool {
	_, err := src.ReadByte()
	return err == io.EOF
}
