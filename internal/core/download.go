package core

import (
	"context"
	"io"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/upnpcat/internal/soap"
	"github.com/mikey-austin/upnpcat/internal/transport"
	"github.com/mikey-austin/upnpcat/internal/wire"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// DownloadOptions tunes a single download.
type DownloadOptions struct {
	// Unbounded opts in to items whose size is missing or exceeds the
	// 32-bit range, such as live streams. Without it such items are
	// rejected up front rather than silently read forever.
	Unbounded bool
}

// DownloadSession streams one item's content. It pins the owning
// Service: browse, discovery and further downloads are rejected until
// Stop releases it. A read timeout leaves the session usable so the
// caller can retry; any other read failure is reported as-is and the
// caller decides when to Stop.
type DownloadSession struct {
	svc    *Service
	stream transport.Stream
	src    wire.ByteSource

	mu     sync.Mutex
	size   uint64
	sized  bool
	read   uint64
	closed bool
}

// StartDownload opens a content stream for obj. Directories and, absent
// the Unbounded option, items with missing or oversized sizes are
// rejected before any connection is made.
func (s *Service) StartDownload(ctx context.Context, obj dlna.MediaObject, opts DownloadOptions) (*DownloadSession, error) {
	if obj.IsDirectory {
		return nil, dlna.ErrDirectoryDownload
	}
	if obj.SizeMissing && !opts.Unbounded {
		return nil, dlna.ErrSizeUnknown
	}
	if !obj.SizeMissing && obj.Size > math.MaxUint32 && !opts.Unbounded {
		return nil, dlna.ErrSizeTooLarge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.download != nil {
		s.mu.Unlock()
		return nil, dlna.ErrDownloadActive
	}
	placeholder := &DownloadSession{svc: s}
	s.download = placeholder
	s.mu.Unlock()

	sess, err := s.openDownload(obj, opts)
	if err != nil {
		s.mu.Lock()
		s.download = nil
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	s.download = sess
	s.mu.Unlock()
	s.log.Debug("download started",
		zap.String("name", obj.Name),
		zap.String("ip", obj.DownloadIP),
		zap.Uint16("port", obj.DownloadPort),
		zap.Uint64("size", obj.Size),
		zap.Bool("sized", !obj.SizeMissing),
	)
	return sess, nil
}

func (s *Service) openDownload(obj dlna.MediaObject, opts DownloadOptions) (*DownloadSession, error) {
	stream, err := s.dial(obj.DownloadIP, obj.DownloadPort)
	if err != nil {
		return nil, err
	}
	if err := s.write(stream, soap.BuildGet(obj.URI, obj.DownloadIP, obj.DownloadPort)); err != nil {
		s.closeStream(stream)
		return nil, err
	}
	src := wire.NewGuardedSource(stream, s.cfg.ReadTimeout, s.guard)
	resp, err := wire.ReadResponse(src)
	if err != nil {
		s.closeStream(stream)
		return nil, err
	}
	sess := &DownloadSession{
		svc:    s,
		stream: stream,
		src:    resp.Body(src),
	}
	// Prefer the download server's own length over the browse metadata;
	// servers routinely disagree with their directory entries.
	switch {
	case resp.HasLength:
		sess.size, sess.sized = resp.ContentLength, true
	case !obj.SizeMissing:
		sess.size, sess.sized = obj.Size, true
	}
	return sess, nil
}

// Read fills p with content bytes. io.EOF marks the end of the body. A
// timeout surfaces dlna.ErrReadTimeout with any bytes read so far; the
// session stays open.
func (d *DownloadSession) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, dlna.ErrSessionClosed
	}
	n := 0
	for n < len(p) {
		b, err := d.src.ReadByte()
		if err != nil {
			if n > 0 && err == io.EOF {
				d.read += uint64(n)
				return n, nil
			}
			d.read += uint64(n)
			return n, err
		}
		p[n] = b
		n++
	}
	d.read += uint64(n)
	return n, nil
}

// ReadByte yields the next content byte.
func (d *DownloadSession) ReadByte() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, dlna.ErrSessionClosed
	}
	b, err := d.src.ReadByte()
	if err != nil {
		return 0, err
	}
	d.read++
	return b, nil
}

// Available reports the remaining byte count when the size is known,
// otherwise 0. It is advisory only; Read decides the actual end.
func (d *DownloadSession) Available() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sized || d.read >= d.size {
		return 0
	}
	remaining := d.size - d.read
	if remaining > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(remaining)
}

// BytesRead reports the content bytes consumed so far.
func (d *DownloadSession) BytesRead() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read
}

// Stop closes the connection and releases the Service for other
// operations. It is idempotent.
func (d *DownloadSession) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	stream := d.stream
	read := d.read
	d.mu.Unlock()

	if stream != nil {
		d.svc.closeStream(stream)
	}
	d.svc.mu.Lock()
	if d.svc.download == d {
		d.svc.download = nil
	}
	d.svc.mu.Unlock()
	d.svc.log.Debug("download stopped", zap.Uint64("bytes", read))
}

// Copy drains the session into w until the body ends. Timeouts abort
// the copy; the session is left open for the caller to retry or Stop.
func (d *DownloadSession) Copy(w io.Writer) (uint64, error) {
	buf := make([]byte, 32*1024)
	var total uint64
	for {
		n, err := d.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += uint64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
