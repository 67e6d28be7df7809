// Package soap builds UPnP action envelopes and the raw HTTP/1.1
// requests that carry them. Requests are rendered to byte slices and
// written through the injected transport; no net/http involvement.
package soap

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// Service URNs per the UPnP ContentDirectory:1 and AVTransport:1
// definitions. Servers match these strings exactly.
const (
	ContentDirectoryURN = "urn:schemas-upnp-org:service:ContentDirectory:1"
	AVTransportURN      = "urn:schemas-upnp-org:service:AVTransport:1"
)

const userAgent = "upnpcat/1.0 UPnP/1.0"

// BrowseEnvelope serializes a Browse action body: BrowseDirectChildren,
// Filter *, empty SortCriteria, caller-supplied window.
func BrowseEnvelope(objectID string, startingIndex uint32, maxCount uint16) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body><u:Browse xmlns:u="` + ContentDirectoryURN + `">`)
	buf.WriteString(`<ObjectID>` + Escape(objectID) + `</ObjectID>`)
	buf.WriteString(`<BrowseFlag>BrowseDirectChildren</BrowseFlag>`)
	buf.WriteString(`<Filter>*</Filter>`)
	fmt.Fprintf(&buf, `<StartingIndex>%d</StartingIndex>`, startingIndex)
	fmt.Fprintf(&buf, `<RequestedCount>%d</RequestedCount>`, maxCount)
	buf.WriteString(`<SortCriteria></SortCriteria>`)
	buf.WriteString(`</u:Browse></s:Body></s:Envelope>`)
	return buf.Bytes()
}

// ActionEnvelope serializes a minimal instance-scoped AVTransport body.
// mediaURI is only used for SetAVTransportURI.
func ActionEnvelope(action dlna.TransportAction, mediaURI string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body><u:` + action.String() + ` xmlns:u="` + AVTransportURN + `">`)
	buf.WriteString(`<InstanceID>0</InstanceID>`)
	switch action {
	case dlna.ActionPlay:
		buf.WriteString(`<Speed>1</Speed>`)
	case dlna.ActionSetURI:
		buf.WriteString(`<CurrentURI>` + Escape(mediaURI) + `</CurrentURI>`)
		buf.WriteString(`<CurrentURIMetaData></CurrentURIMetaData>`)
	}
	buf.WriteString(`</u:` + action.String() + `></s:Body></s:Envelope>`)
	return buf.Bytes()
}

// SOAPAction returns the quoted action header value, e.g.
// "urn:schemas-upnp-org:service:ContentDirectory:1#Browse".
func SOAPAction(serviceURN, action string) string {
	return `"` + serviceURN + "#" + action + `"`
}

// BuildPost renders a complete SOAP POST request.
func BuildPost(path, host string, port uint16, soapAction string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "POST %s HTTP/1.1\r\n", requestPath(path))
	fmt.Fprintf(&buf, "Host: %s:%d\r\n", host, port)
	buf.WriteString("User-Agent: " + userAgent + "\r\n")
	buf.WriteString("Content-Type: text/xml; charset=\"utf-8\"\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("SOAPAction: " + soapAction + "\r\n")
	buf.WriteString("Connection: close\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// BuildGet renders a plain GET request for device descriptions and
// item downloads.
func BuildGet(path, host string, port uint16) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GET %s HTTP/1.1\r\n", requestPath(path))
	fmt.Fprintf(&buf, "Host: %s:%d\r\n", host, port)
	buf.WriteString("User-Agent: " + userAgent + "\r\n")
	buf.WriteString("Connection: close\r\n")
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Escape rewrites the five predefined XML entities in value.
func Escape(value string) string {
	replacer := strings.NewReplacer(
		`&`, "&amp;",
		`<`, "&lt;",
		`>`, "&gt;",
		`'`, "&apos;",
		`"`, "&quot;",
	)
	return replacer.Replace(value)
}

func requestPath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
