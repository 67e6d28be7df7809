package ssdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mikey-austin/upnpcat/internal/transport"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

const testDescription = `<?xml version="1.0"?><root><device>` +
	`<friendlyName>Test NAS</friendlyName>` +
	`<serviceList>` +
	`<service><serviceType>urn:schemas-upnp-org:service:ConnectionManager:1</serviceType><controlURL>/cm</controlURL></service>` +
	`<service><serviceType>urn:schemas-upnp-org:service:ContentDirectory:1</serviceType><controlURL>/ctl/ContentDir</controlURL></service>` +
	`</serviceList></device></root>`

func descriptionResponse(doc string) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(doc), doc)
}

func searchReply(location string) string {
	return "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: " + location + "\r\n" +
		"ST: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"USN: uuid:abc::urn:schemas-upnp-org:device:MediaServer:1\r\n\r\n"
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakePacketConn struct {
	replies  []string
	sent     [][]byte
	sendFail bool
}

func (p *fakePacketConn) Send(payload []byte, ip string, port uint16) error {
	if p.sendFail {
		return errors.New("send failed")
	}
	p.sent = append(p.sent, append([]byte(nil), payload...))
	return nil
}

func (p *fakePacketConn) Receive(buf []byte, timeout time.Duration) (int, string, uint16, error) {
	if len(p.replies) == 0 {
		return 0, "", 0, timeoutErr{}
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	n := copy(buf, reply)
	return n, "10.0.0.9", 1900, nil
}

func (p *fakePacketConn) Close() error { return nil }

type fakeStream struct {
	response *strings.Reader
	writes   [][]byte
	closed   bool
}

func (s *fakeStream) Write(p []byte) error {
	s.writes = append(s.writes, append([]byte(nil), p...))
	return nil
}

func (s *fakeStream) Read(p []byte, timeout time.Duration) (int, error) {
	n, err := s.response.Read(p)
	if err == io.EOF && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *fakeStream) Available() int { return s.response.Len() }
func (s *fakeStream) Close() error   { s.closed = true; return nil }

type fakeTransport struct {
	packet    *fakePacketConn
	responses map[string]string // "ip:port" -> raw HTTP response
	dialed    []string
	dialFail  map[string]bool
}

func (t *fakeTransport) Dial(ip string, port uint16, timeout time.Duration) (transport.Stream, error) {
	key := fmt.Sprintf("%s:%d", ip, port)
	t.dialed = append(t.dialed, key)
	if t.dialFail[key] {
		return nil, errors.New("connection refused")
	}
	raw, ok := t.responses[key]
	if !ok {
		return nil, errors.New("no route")
	}
	return &fakeStream{response: strings.NewReader(raw)}, nil
}

func (t *fakeTransport) OpenPacket() (transport.PacketConn, error) {
	return t.packet, nil
}

func TestDiscoverFindsServer(t *testing.T) {
	tr := &fakeTransport{
		packet: &fakePacketConn{replies: []string{
			searchReply("http://10.0.0.9:8200/rootDesc.xml"),
		}},
		responses: map[string]string{
			"10.0.0.9:8200": descriptionResponse(testDescription),
		},
	}
	engine := New(tr, nil, nil, time.Second)
	servers, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	srv := servers[0]
	if srv.IP != "10.0.0.9" || srv.Port != 8200 || srv.FriendlyName != "Test NAS" || srv.ControlURL != "/ctl/ContentDir" {
		t.Fatalf("unexpected server: %+v", srv)
	}
	if len(tr.packet.sent) != 2 {
		t.Fatalf("query must be repeated, sent %d", len(tr.packet.sent))
	}
	query := string(tr.packet.sent[0])
	if !strings.Contains(query, "M-SEARCH * HTTP/1.1") ||
		!strings.Contains(query, "ST: urn:schemas-upnp-org:device:MediaServer:1") ||
		!strings.Contains(query, `MAN: "ssdp:discover"`) {
		t.Fatalf("bad query:\n%s", query)
	}
}

func TestDiscoverDeduplicatesByEndpoint(t *testing.T) {
	tr := &fakeTransport{
		packet: &fakePacketConn{replies: []string{
			searchReply("http://10.0.0.9:8200/rootDesc.xml"),
			searchReply("http://10.0.0.9:8200/rootDesc.xml"),
		}},
		responses: map[string]string{
			"10.0.0.9:8200": descriptionResponse(testDescription),
		},
	}
	engine := New(tr, nil, nil, time.Second)
	servers, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("duplicate endpoint not collapsed: %d servers", len(servers))
	}
	if len(tr.dialed) != 1 {
		t.Fatalf("duplicate reply must not be described again, dialed %v", tr.dialed)
	}
}

func TestDiscoverSkipsUndescribableReply(t *testing.T) {
	tr := &fakeTransport{
		packet: &fakePacketConn{replies: []string{
			searchReply("http://10.0.0.8:8200/rootDesc.xml"),
			searchReply("http://10.0.0.9:8200/rootDesc.xml"),
		}},
		responses: map[string]string{
			"10.0.0.9:8200": descriptionResponse(testDescription),
		},
		dialFail: map[string]bool{"10.0.0.8:8200": true},
	}
	engine := New(tr, nil, nil, time.Second)
	servers, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 1 || servers[0].IP != "10.0.0.9" {
		t.Fatalf("expected surviving server, got %+v", servers)
	}
}

func TestDiscoverAcceptsNotifyAlive(t *testing.T) {
	notify := "NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"NT: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"NTS: ssdp:alive\r\n" +
		"LOCATION: http://10.0.0.9:8200/rootDesc.xml\r\n\r\n"
	tr := &fakeTransport{
		packet: &fakePacketConn{replies: []string{notify}},
		responses: map[string]string{
			"10.0.0.9:8200": descriptionResponse(testDescription),
		},
	}
	engine := New(tr, nil, nil, time.Second)
	servers, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("notify alive not collected")
	}
}

func TestDiscoverEmptyResultIsSignaled(t *testing.T) {
	tr := &fakeTransport{packet: &fakePacketConn{}}
	engine := New(tr, nil, nil, time.Second)
	_, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 20*time.Millisecond)
	if !errors.Is(err, dlna.ErrNoServersFound) {
		t.Fatalf("expected ErrNoServersFound, got %v", err)
	}
}

func TestDiscoverSendFailureIsFatal(t *testing.T) {
	tr := &fakeTransport{packet: &fakePacketConn{sendFail: true}}
	engine := New(tr, nil, nil, time.Second)
	_, err := engine.Discover(context.Background(), dlna.ClassMediaServer, 20*time.Millisecond)
	if !dlna.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestMatchReplyRejectsWrongTarget(t *testing.T) {
	reply := "HTTP/1.1 200 OK\r\n" +
		"LOCATION: http://10.0.0.9:8200/rootDesc.xml\r\n" +
		"ST: urn:schemas-upnp-org:device:MediaRenderer:1\r\n\r\n"
	if _, ok := matchReply(reply, dlna.ClassMediaServer); ok {
		t.Fatalf("renderer reply must not match server search")
	}
}

func TestControlURLNormalization(t *testing.T) {
	doc := `<serviceType>urn:schemas-upnp-org:service:ContentDirectory:1</serviceType>` +
		`<controlURL>ctl/relative</controlURL>`
	got, ok := controlURLFor(doc, "urn:schemas-upnp-org:service:ContentDirectory:1")
	if !ok || got != "/ctl/relative" {
		t.Fatalf("relative control url: %q %v", got, ok)
	}
	doc = `<serviceType>urn:schemas-upnp-org:service:ContentDirectory:1</serviceType>` +
		`<controlURL>http://10.0.0.9:8200/ctl/abs</controlURL>`
	got, ok = controlURLFor(doc, "urn:schemas-upnp-org:service:ContentDirectory:1")
	if !ok || got != "/ctl/abs" {
		t.Fatalf("absolute control url: %q %v", got, ok)
	}
}
