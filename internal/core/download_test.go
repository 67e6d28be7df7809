package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func testTrack(size uint64) dlna.MediaObject {
	return dlna.MediaObject{
		ID:           "64$1",
		Name:         "Song One",
		FileType:     dlna.FileTypeAudio,
		Size:         size,
		URI:          "/media/f1.mp3",
		DownloadIP:   "10.0.0.9",
		DownloadPort: 8201,
	}
}

func contentResponse(body string) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: audio/mpeg\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
}

func TestDownloadReadsContent(t *testing.T) {
	const content = "mp3 bytes here"
	tr := &fakeTransport{responses: map[string]string{
		"10.0.0.9:8201": contentResponse(content),
	}}
	svc := New(Config{}, tr, nil, nil)

	sess, err := svc.StartDownload(context.Background(), testTrack(uint64(len(content))), DownloadOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := sess.Available(); got != len(content) {
		t.Fatalf("available before read: %d", got)
	}

	var out bytes.Buffer
	n, err := sess.Copy(&out)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if out.String() != content || n != uint64(len(content)) {
		t.Fatalf("content mismatch: %q (%d)", out.String(), n)
	}
	if sess.BytesRead() != uint64(len(content)) {
		t.Fatalf("bytes read: %d", sess.BytesRead())
	}
	if sess.Available() != 0 {
		t.Fatalf("available after drain: %d", sess.Available())
	}
	sess.Stop()

	request := string(tr.streams[0].writes[0])
	if !strings.Contains(request, "GET /media/f1.mp3 HTTP/1.1") ||
		!strings.Contains(request, "Host: 10.0.0.9:8201") {
		t.Fatalf("bad download request:\n%s", request)
	}
}

func TestDownloadRejectsDirectory(t *testing.T) {
	svc := New(Config{}, &fakeTransport{}, nil, nil)
	obj := testTrack(10)
	obj.IsDirectory = true
	if _, err := svc.StartDownload(context.Background(), obj, DownloadOptions{}); !errors.Is(err, dlna.ErrDirectoryDownload) {
		t.Fatalf("expected ErrDirectoryDownload, got %v", err)
	}
}

func TestDownloadRejectsUnknownSize(t *testing.T) {
	svc := New(Config{}, &fakeTransport{}, nil, nil)
	obj := testTrack(0)
	obj.SizeMissing = true
	if _, err := svc.StartDownload(context.Background(), obj, DownloadOptions{}); !errors.Is(err, dlna.ErrSizeUnknown) {
		t.Fatalf("expected ErrSizeUnknown, got %v", err)
	}
}

func TestDownloadRejectsOversized(t *testing.T) {
	svc := New(Config{}, &fakeTransport{}, nil, nil)
	obj := testTrack(uint64(math.MaxUint32) + 1)
	if _, err := svc.StartDownload(context.Background(), obj, DownloadOptions{}); !errors.Is(err, dlna.ErrSizeTooLarge) {
		t.Fatalf("expected ErrSizeTooLarge, got %v", err)
	}
}

func TestDownloadUnboundedAcceptsUnknownSize(t *testing.T) {
	body := "3\r\nabc\r\n0\r\n\r\n"
	tr := &fakeTransport{responses: map[string]string{
		"10.0.0.9:8201": "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" + body,
	}}
	svc := New(Config{}, tr, nil, nil)
	obj := testTrack(0)
	obj.SizeMissing = true

	sess, err := svc.StartDownload(context.Background(), obj, DownloadOptions{Unbounded: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()
	if sess.Available() != 0 {
		t.Fatalf("unsized session must report 0 available")
	}
	var out bytes.Buffer
	if _, err := sess.Copy(&out); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if out.String() != "abc" {
		t.Fatalf("chunked content: %q", out.String())
	}
}

func TestDownloadBlocksOtherOperations(t *testing.T) {
	const content = "x"
	tr := &fakeTransport{responses: map[string]string{
		"10.0.0.9:8201": contentResponse(content),
		"10.0.0.9:8200": httpOK(browseBody(testDIDL)),
	}}
	svc := New(Config{}, tr, nil, nil)

	sess, err := svc.StartDownload(context.Background(), testTrack(1), DownloadOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Browse(context.Background(), testServer(), "0", 0, 0); !errors.Is(err, dlna.ErrDownloadActive) {
		t.Fatalf("browse during download: %v", err)
	}
	if err := svc.TransportAction(context.Background(), testServer(), dlna.ActionPause, ""); !errors.Is(err, dlna.ErrDownloadActive) {
		t.Fatalf("action during download: %v", err)
	}
	if _, err := svc.StartDownload(context.Background(), testTrack(1), DownloadOptions{}); !errors.Is(err, dlna.ErrDownloadActive) {
		t.Fatalf("second download: %v", err)
	}

	sess.Stop()
	if _, err := svc.Browse(context.Background(), testServer(), "0", 0, 0); err != nil {
		t.Fatalf("browse after stop: %v", err)
	}
}

func TestDownloadStopIsIdempotent(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"10.0.0.9:8201": contentResponse("abc"),
	}}
	svc := New(Config{}, tr, nil, nil)

	sess, err := svc.StartDownload(context.Background(), testTrack(3), DownloadOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.Stop()
	sess.Stop()
	if !tr.streams[0].closed {
		t.Fatalf("stream not closed")
	}
	if _, err := sess.Read(make([]byte, 1)); !errors.Is(err, dlna.ErrSessionClosed) {
		t.Fatalf("read after stop: %v", err)
	}
	if _, err := sess.ReadByte(); !errors.Is(err, dlna.ErrSessionClosed) {
		t.Fatalf("readbyte after stop: %v", err)
	}
}

func TestDownloadFailedStartReleasesService(t *testing.T) {
	svc := New(Config{}, &fakeTransport{}, nil, nil)
	if _, err := svc.StartDownload(context.Background(), testTrack(3), DownloadOptions{}); !dlna.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	// A failed start must not leave the service pinned.
	if err := svc.ensureIdle(); err != nil {
		t.Fatalf("service still pinned: %v", err)
	}
}

func TestDownloadEOFAtBodyEnd(t *testing.T) {
	tr := &fakeTransport{responses: map[string]string{
		"10.0.0.9:8201": contentResponse("ab"),
	}}
	svc := New(Config{}, tr, nil, nil)

	sess, err := svc.StartDownload(context.Background(), testTrack(2), DownloadOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()
	buf := make([]byte, 4)
	n, err := sess.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("first read: %d %v", n, err)
	}
	if _, err := sess.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
