package ssdp

import (
	"io"
	"strings"

	"github.com/mikey-austin/upnpcat/internal/soap"
	"github.com/mikey-austin/upnpcat/internal/wire"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// maxDescriptionBytes bounds a device description document.
const maxDescriptionBytes = 64 * 1024

// describe fetches the device description and extracts the friendly
// name and the control URL of the service matching the class.
func (e *Engine) describe(ip string, port uint16, path, location string, class dlna.ServiceClass) (dlna.MediaServer, error) {
	e.guard.Acquire()
	stream, err := e.tr.Dial(ip, port, e.timeout)
	e.guard.Release()
	if err != nil {
		return dlna.MediaServer{}, &dlna.TransportError{Op: "connect", Err: err}
	}
	defer func() {
		e.guard.Acquire()
		stream.Close()
		e.guard.Release()
	}()

	e.guard.Acquire()
	err = stream.Write(soap.BuildGet(path, ip, port))
	e.guard.Release()
	if err != nil {
		return dlna.MediaServer{}, &dlna.TransportError{Op: "write", Err: err}
	}

	src := wire.NewGuardedSource(stream, e.timeout, e.guard)
	resp, err := wire.ReadResponse(src)
	if err != nil {
		return dlna.MediaServer{}, err
	}
	doc, err := readBounded(resp.Body(src), maxDescriptionBytes)
	if err != nil {
		return dlna.MediaServer{}, err
	}

	serviceURN := soap.ContentDirectoryURN
	if class == dlna.ClassMediaRenderer {
		serviceURN = soap.AVTransportURN
	}
	controlURL, ok := controlURLFor(doc, serviceURN)
	if !ok {
		return dlna.MediaServer{}, &dlna.ProtocolError{Op: "describe", Reason: "no " + serviceURN + " service"}
	}
	name := textBetween(doc, "<friendlyName>", "</friendlyName>")
	if name == "" {
		name = ip
	}
	return dlna.MediaServer{
		IP:           ip,
		Port:         port,
		Location:     location,
		FriendlyName: strings.TrimSpace(name),
		ControlURL:   controlURL,
	}, nil
}

// controlURLFor scans for the service block declaring urn and returns
// the adjacent controlURL, normalized to a request path.
func controlURLFor(doc, urn string) (string, bool) {
	idx := strings.Index(doc, urn)
	if idx < 0 {
		return "", false
	}
	rest := doc[idx:]
	raw := textBetween(rest, "<controlURL>", "</controlURL>")
	if raw == "" {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		_, _, path, err := splitLocation(raw)
		if err != nil {
			return "", false
		}
		return path, true
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw, true
}

func textBetween(doc, open, close string) string {
	start := strings.Index(doc, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(doc[start:], close)
	if end < 0 {
		return ""
	}
	return doc[start : start+end]
}

// readBounded drains src up to limit bytes.
func readBounded(src wire.ByteSource, limit int) (string, error) {
	var sb strings.Builder
	for sb.Len() < limit {
		b, err := src.ReadByte()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteByte(b)
	}
	return "", &dlna.ProtocolError{Op: "describe", Reason: "description exceeds size bound"}
}
