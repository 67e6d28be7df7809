package wire

import (
	"io"
	"strconv"
	"strings"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// maxHeaderLine bounds a single status or header line.
const maxHeaderLine = 4096

// maxHeaderLines bounds the header block as a whole.
const maxHeaderLines = 128

// Response carries the framing facts of one HTTP response.
type Response struct {
	Status        int
	ContentLength uint64
	HasLength     bool
	Chunked       bool
}

// ReadResponse parses the status line and headers off src and reports how
// the body is framed. A status other than 200 or any malformed line is a
// ProtocolError; the body remains unread on src.
func ReadResponse(src ByteSource) (*Response, error) {
	line, err := readLine(src)
	if err != nil {
		return nil, err
	}
	status, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}
	resp := &Response{Status: status}
	for i := 0; ; i++ {
		if i >= maxHeaderLines {
			return nil, &dlna.ProtocolError{Op: "http", Reason: "too many header lines"}
		}
		line, err := readLine(src)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			// Some servers emit stray non-header lines; skip them.
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			length, perr := strconv.ParseUint(value, 10, 64)
			if perr != nil {
				return nil, &dlna.ProtocolError{Op: "http", Reason: "malformed content-length", Err: perr}
			}
			resp.ContentLength = length
			resp.HasLength = true
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				resp.Chunked = true
			}
		}
	}
	if resp.Status != 200 {
		return nil, &dlna.ProtocolError{Op: "http", Reason: "unexpected status " + strconv.Itoa(resp.Status)}
	}
	return resp, nil
}

// Body wraps src with the framing the response declared: the chunked
// decoder, a fixed-length limit, or read-until-close.
func (r *Response) Body(src ByteSource) ByteSource {
	if r.Chunked {
		return NewChunkedSource(src)
	}
	if r.HasLength {
		return NewLimitSource(src, r.ContentLength)
	}
	return src
}

func parseStatusLine(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, &dlna.ProtocolError{Op: "http", Reason: "malformed status line"}
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, &dlna.ProtocolError{Op: "http", Reason: "malformed status code", Err: err}
	}
	return status, nil
}

func readLine(src ByteSource) (string, error) {
	var sb strings.Builder
	for i := 0; i < maxHeaderLine; i++ {
		b, err := src.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", &dlna.ProtocolError{Op: "http", Reason: "truncated header"}
			}
			return "", err
		}
		if b == '\n' {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
		sb.WriteByte(b)
	}
	return "", &dlna.ProtocolError{Op: "http", Reason: "header line too long"}
}
