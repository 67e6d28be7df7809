// Package ssdp implements client-side SSDP discovery: multicast
// M-SEARCH queries, passive collection of NOTIFY advertisements, and
// device-description resolution to a ContentDirectory or AVTransport
// control URL.
package ssdp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/upnpcat/internal/transport"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

const (
	multicastIP   = "239.255.255.250"
	multicastPort = 1900
)

// Engine runs discovery over an injected transport.
type Engine struct {
	tr      transport.Transport
	guard   transport.Guard
	log     *zap.Logger
	timeout time.Duration // per-description response timeout
}

// New creates a discovery engine. timeout bounds each device
// description fetch.
func New(tr transport.Transport, guard transport.Guard, log *zap.Logger, timeout time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if guard == nil {
		guard = transport.NopGuard{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Engine{tr: tr, guard: guard, log: log, timeout: timeout}
}

// Discover multicasts a search for the given class and collects replies
// and unsolicited advertisements for up to wait. Each reply's device
// description is fetched to resolve the friendly name and control URL;
// replies that cannot be described are skipped, not fatal. Servers are
// deduplicated by (ip, port). A multicast send failure is the only hard
// discovery failure.
func (e *Engine) Discover(ctx context.Context, class dlna.ServiceClass, wait time.Duration) ([]dlna.MediaServer, error) {
	if wait <= 0 {
		wait = 4 * time.Second
	}

	e.guard.Acquire()
	pc, err := e.tr.OpenPacket()
	e.guard.Release()
	if err != nil {
		return nil, &dlna.TransportError{Op: "ssdp open", Err: err}
	}
	defer func() {
		e.guard.Acquire()
		pc.Close()
		e.guard.Release()
	}()

	query := searchQuery(class)
	// Repeat the query: SSDP is UDP and single sends get lost.
	for i := 0; i < 2; i++ {
		e.guard.Acquire()
		err = pc.Send(query, multicastIP, multicastPort)
		e.guard.Release()
		if err != nil {
			return nil, &dlna.TransportError{Op: "ssdp send", Err: err}
		}
	}

	var servers []dlna.MediaServer
	seen := map[string]bool{}
	buf := make([]byte, 2048)
	deadline := time.Now().Add(wait)
	for {
		if ctx.Err() != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		e.guard.Acquire()
		n, srcIP, _, rerr := pc.Receive(buf, remaining)
		e.guard.Release()
		if rerr != nil {
			if transport.IsTimeout(rerr) {
				break
			}
			e.log.Debug("ssdp receive failed", zap.Error(rerr))
			continue
		}
		location, ok := matchReply(string(buf[:n]), class)
		if !ok {
			continue
		}
		ip, port, path, perr := splitLocation(location)
		if perr != nil {
			e.log.Debug("ssdp bad location", zap.String("location", location), zap.Error(perr))
			continue
		}
		key := fmt.Sprintf("%s:%d", ip, port)
		if seen[key] {
			continue
		}
		srv, derr := e.describe(ip, port, path, location, class)
		if derr != nil {
			// One undescribable reply never fails the run.
			e.log.Debug("describe failed",
				zap.String("location", location),
				zap.String("src", srcIP),
				zap.Error(derr),
			)
			continue
		}
		seen[key] = true
		servers = append(servers, srv)
		e.log.Debug("server discovered",
			zap.String("name", srv.FriendlyName),
			zap.String("ip", srv.IP),
			zap.Uint16("port", srv.Port),
		)
	}
	if len(servers) == 0 {
		return nil, dlna.ErrNoServersFound
	}
	return servers, nil
}

func searchQuery(class dlna.ServiceClass) []byte {
	return []byte("M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 3\r\n" +
		"ST: " + class.URN() + "\r\n\r\n")
}

// matchReply accepts M-SEARCH responses with a matching ST and alive
// NOTIFY advertisements with a matching NT, returning the Location.
func matchReply(raw string, class dlna.ServiceClass) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "HTTP/1.1 200"):
		if !strings.Contains(headerValue(raw, "ST"), class.URN()) {
			return "", false
		}
	case strings.HasPrefix(raw, "NOTIFY * HTTP/1.1"):
		if !strings.Contains(headerValue(raw, "NT"), class.URN()) {
			return "", false
		}
		if !strings.EqualFold(headerValue(raw, "NTS"), "ssdp:alive") {
			return "", false
		}
	default:
		return "", false
	}
	location := headerValue(raw, "LOCATION")
	if location == "" {
		return "", false
	}
	return location, true
}

func headerValue(raw, key string) string {
	key = strings.ToUpper(key)
	for _, ln := range strings.Split(raw, "\r\n") {
		if i := strings.IndexByte(ln, ':'); i > 0 {
			k := strings.ToUpper(strings.TrimSpace(ln[:i]))
			if k == key {
				return strings.TrimSpace(ln[i+1:])
			}
		}
	}
	return ""
}

func splitLocation(location string) (ip string, port uint16, path string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", 0, "", err
	}
	if u.Scheme != "http" || u.Hostname() == "" {
		return "", 0, "", fmt.Errorf("unsupported location %q", location)
	}
	port = 80
	if p := u.Port(); p != "" {
		n, perr := strconv.ParseUint(p, 10, 16)
		if perr != nil {
			return "", 0, "", perr
		}
		port = uint16(n)
	}
	return u.Hostname(), port, u.RequestURI(), nil
}
