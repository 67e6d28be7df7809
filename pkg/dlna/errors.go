package dlna

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the engine. All are recoverable: the
// registry and previously returned results stay valid after any of them.
var (
	// ErrNoServersFound signals a discovery run that completed without
	// finding any server. Manual registration remains available.
	ErrNoServersFound = errors.New("no media servers found")
	// ErrDirectoryDownload rejects a download of a container object.
	ErrDirectoryDownload = errors.New("object is a directory")
	// ErrSizeUnknown rejects a download whose length the server did not
	// declare, unless unbounded streaming was requested.
	ErrSizeUnknown = errors.New("object size unknown")
	// ErrSizeTooLarge rejects declared sizes beyond the 32-bit-safe
	// bound, unless unbounded streaming was requested.
	ErrSizeTooLarge = errors.New("object size exceeds download bound")
	// ErrDownloadActive rejects a second concurrent download session.
	ErrDownloadActive = errors.New("download session already active")
	// ErrSessionClosed rejects reads on a stopped download session.
	ErrSessionClosed = errors.New("download session closed")
	// ErrReadTimeout distinguishes a timed-out read from end-of-stream.
	ErrReadTimeout = errors.New("read timeout")
)

// TransportError wraps a connect/write/read failure or timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed HTTP status, header, chunk frame or
// DIDL element. It aborts the current operation only.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: %s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is a protocol failure.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
