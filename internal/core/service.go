// Package core ties the protocol stack together: it owns the server
// registry, issues SOAP browse and AVTransport requests over the
// injected transport, caches browse pages, and runs download sessions.
// A Service holds exactly one in-flight exchange at a time; browse and
// download are mutually exclusive on one instance.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/upnpcat/internal/didl"
	"github.com/mikey-austin/upnpcat/internal/soap"
	"github.com/mikey-austin/upnpcat/internal/ssdp"
	"github.com/mikey-austin/upnpcat/internal/transport"
	"github.com/mikey-austin/upnpcat/internal/wire"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// Config carries the construction-time knobs.
type Config struct {
	// MaxBrowseEntries caps entries per browse call (memory bound).
	MaxBrowseEntries int
	// ShowEmptyFiles keeps zero-size placeholder items in results.
	ShowEmptyFiles bool
	// StrictParentID escalates parent-id mismatches to rejection.
	StrictParentID bool
	// AssumeSearchable is the default for containers omitting the
	// searchable attribute.
	AssumeSearchable bool
	// ResponseTimeout bounds header/body reads per request.
	ResponseTimeout time.Duration
	// ReadTimeout bounds each download read.
	ReadTimeout time.Duration
	// DiscoveryWait is the SSDP collection window.
	DiscoveryWait time.Duration
	// CacheTTL and CacheSize configure the browse cache; CacheSize < 0
	// disables it.
	CacheTTL      time.Duration
	CacheSize     int
	CacheCompress bool
}

func (c Config) withDefaults() Config {
	if c.MaxBrowseEntries <= 0 {
		c.MaxBrowseEntries = 100
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 3000 * time.Millisecond
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3000 * time.Millisecond
	}
	if c.DiscoveryWait <= 0 {
		c.DiscoveryWait = 4000 * time.Millisecond
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.CacheSize == 0 {
		c.CacheSize = 16 * 1024 * 1024
	}
	return c
}

// Service is the engine session object. Wire operations block the
// caller up to their configured timeout; the Service schedules nothing
// internally.
type Service struct {
	cfg   Config
	log   *zap.Logger
	tr    transport.Transport
	guard transport.Guard
	ssdp  *ssdp.Engine
	cache *browseCache

	mu       sync.RWMutex
	servers  []dlna.MediaServer
	rev      uint64
	download *DownloadSession
}

// New creates a Service. tr defaults to the OS network stack, guard to
// no guarding, log to a nop logger.
func New(cfg Config, tr transport.Transport, guard transport.Guard, log *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	if tr == nil {
		tr = transport.Net{}
	}
	if guard == nil {
		guard = transport.NopGuard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		tr:    tr,
		guard: guard,
		ssdp:  ssdp.New(tr, guard, log, cfg.ResponseTimeout),
		cache: newBrowseCache(cfg.CacheSize, cfg.CacheTTL, cfg.CacheCompress),
	}
}

// AddServer registers a server manually, bypassing discovery. An entry
// with the same (ip, port) is replaced. Discovery is unreliable across
// vendor stacks, so this path is always available.
func (s *Service) AddServer(ip string, port uint16, controlURL, name string) dlna.MediaServer {
	if name == "" {
		name = "My Media Server"
	}
	if !strings.HasPrefix(controlURL, "/") {
		controlURL = "/" + controlURL
	}
	srv := dlna.MediaServer{
		IP:           ip,
		Port:         port,
		Location:     fmt.Sprintf("http://%s:%d/", ip, port),
		FriendlyName: name,
		ControlURL:   controlURL,
	}
	s.mu.Lock()
	s.upsertLocked(srv)
	s.mu.Unlock()
	return srv
}

// Discover runs SSDP discovery for the class and merges results into
// the registry. wait overrides the configured collection window when
// positive. An empty result surfaces dlna.ErrNoServersFound; manual
// registration stays available regardless.
func (s *Service) Discover(ctx context.Context, class dlna.ServiceClass, wait time.Duration) ([]dlna.MediaServer, error) {
	if err := s.ensureIdle(); err != nil {
		return nil, err
	}
	if wait <= 0 {
		wait = s.cfg.DiscoveryWait
	}
	started := time.Now()
	found, err := s.ssdp.Discover(ctx, class, wait)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, srv := range found {
		s.upsertLocked(srv)
	}
	s.mu.Unlock()
	s.log.Debug("discovery finished",
		zap.Stringer("class", class),
		zap.Int("found", len(found)),
		zap.Duration("duration", time.Since(started)),
	)
	return found, nil
}

// Servers returns a copy of the registry in registration order.
func (s *Service) Servers() []dlna.MediaServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dlna.MediaServer, len(s.servers))
	copy(out, s.servers)
	return out
}

// ServerCount reports the number of registered servers.
func (s *Service) ServerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.servers)
}

// ServerInfo returns the i-th registered server.
func (s *Service) ServerInfo(i int) (dlna.MediaServer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.servers) {
		return dlna.MediaServer{}, false
	}
	return s.servers[i], true
}

// ClearServers empties the registry.
func (s *Service) ClearServers() {
	s.mu.Lock()
	s.servers = nil
	s.rev++
	s.mu.Unlock()
}

// upsertLocked replaces an entry with the same endpoint or appends.
func (s *Service) upsertLocked(srv dlna.MediaServer) {
	s.rev++
	for i, existing := range s.servers {
		if existing.IP == srv.IP && existing.Port == srv.Port {
			s.servers[i] = srv
			return
		}
	}
	s.servers = append(s.servers, srv)
}

// Browse fetches one page of direct children of objectID. maxCount is
// clamped to the configured entry cap; zero selects the cap. Truncation
// at the cap is a normal outcome reported on the result, not an error.
func (s *Service) Browse(ctx context.Context, srv dlna.MediaServer, objectID string, startingIndex uint32, maxCount uint16) (dlna.BrowseResult, error) {
	if err := s.ensureIdle(); err != nil {
		return dlna.BrowseResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return dlna.BrowseResult{}, err
	}
	if maxCount == 0 || int(maxCount) > s.cfg.MaxBrowseEntries {
		maxCount = uint16(s.cfg.MaxBrowseEntries)
	}

	key := s.browseKey(srv, objectID, startingIndex, maxCount)
	if cached, ok := s.cache.get(key); ok {
		s.log.Debug("browse cache hit", zap.String("object", objectID))
		return cached, nil
	}

	started := time.Now()
	result, err := s.browseWire(srv, objectID, startingIndex, maxCount)
	if err != nil {
		s.log.Debug("browse failed",
			zap.String("server", srv.FriendlyName),
			zap.String("object", objectID),
			zap.Error(err),
		)
		return result, err
	}
	s.log.Debug("browse ok",
		zap.String("server", srv.FriendlyName),
		zap.String("object", objectID),
		zap.Int("objects", len(result.Objects)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", time.Since(started)),
	)
	s.cache.put(key, result)
	return result, nil
}

// BrowseAll pages through objectID until the server is exhausted. Each
// page goes through Browse, so caching and the entry cap apply per page.
// A hard page bound protects against servers that ignore StartingIndex.
func (s *Service) BrowseAll(ctx context.Context, srv dlna.MediaServer, objectID string) (dlna.BrowseResult, error) {
	const maxPages = 1024
	var all dlna.BrowseResult
	start := uint32(0)
	for page := 0; page < maxPages; page++ {
		result, err := s.Browse(ctx, srv, objectID, start, 0)
		if err != nil {
			return all, err
		}
		all.Objects = append(all.Objects, result.Objects...)
		if !result.Truncated {
			return all, nil
		}
		start += uint32(s.cfg.MaxBrowseEntries)
	}
	all.Truncated = true
	return all, &dlna.ProtocolError{Op: "browse", Reason: "server never exhausts listing"}
}

func (s *Service) browseWire(srv dlna.MediaServer, objectID string, startingIndex uint32, maxCount uint16) (dlna.BrowseResult, error) {
	stream, err := s.dial(srv.IP, srv.Port)
	if err != nil {
		return dlna.BrowseResult{}, err
	}
	defer s.closeStream(stream)

	envelope := soap.BrowseEnvelope(objectID, startingIndex, maxCount)
	request := soap.BuildPost(srv.ControlURL, srv.IP, srv.Port,
		soap.SOAPAction(soap.ContentDirectoryURN, "Browse"), envelope)
	if err := s.write(stream, request); err != nil {
		return dlna.BrowseResult{}, err
	}

	src := wire.NewGuardedSource(stream, s.cfg.ResponseTimeout, s.guard)
	resp, err := wire.ReadResponse(src)
	if err != nil {
		return dlna.BrowseResult{}, err
	}
	decoded := wire.NewEntitySource(resp.Body(src))
	return didl.Scan(decoded, objectID, didl.Options{
		MaxCount:         int(maxCount),
		ShowEmpty:        s.cfg.ShowEmptyFiles,
		StrictParentID:   s.cfg.StrictParentID,
		AssumeSearchable: s.cfg.AssumeSearchable,
	})
}

// TransportAction fires a minimal AVTransport trigger against the
// server's control URL. mediaURI is only used by SetAVTransportURI.
func (s *Service) TransportAction(ctx context.Context, srv dlna.MediaServer, action dlna.TransportAction, mediaURI string) error {
	if err := s.ensureIdle(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stream, err := s.dial(srv.IP, srv.Port)
	if err != nil {
		return err
	}
	defer s.closeStream(stream)

	envelope := soap.ActionEnvelope(action, mediaURI)
	request := soap.BuildPost(srv.ControlURL, srv.IP, srv.Port,
		soap.SOAPAction(soap.AVTransportURN, action.String()), envelope)
	if err := s.write(stream, request); err != nil {
		return err
	}
	src := wire.NewGuardedSource(stream, s.cfg.ResponseTimeout, s.guard)
	if _, err := wire.ReadResponse(src); err != nil {
		return err
	}
	s.log.Debug("transport action ok",
		zap.Stringer("action", action),
		zap.String("server", srv.FriendlyName),
	)
	return nil
}

// WakeServer broadcasts a wake-on-LAN packet for mac so a sleeping
// server can be woken before discovery.
func (s *Service) WakeServer(mac string) error {
	s.guard.Acquire()
	pc, err := s.tr.OpenPacket()
	s.guard.Release()
	if err != nil {
		return &dlna.TransportError{Op: "wol open", Err: err}
	}
	defer func() {
		s.guard.Acquire()
		pc.Close()
		s.guard.Release()
	}()
	s.guard.Acquire()
	defer s.guard.Release()
	if err := transport.Wake(pc, mac); err != nil {
		return &dlna.TransportError{Op: "wol send", Err: err}
	}
	return nil
}

func (s *Service) ensureIdle() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.download != nil {
		return dlna.ErrDownloadActive
	}
	return nil
}

func (s *Service) browseKey(srv dlna.MediaServer, objectID string, start uint32, count uint16) string {
	s.mu.RLock()
	rev := s.rev
	s.mu.RUnlock()
	return fmt.Sprintf("browse:%s:%d:%s:%d:%d:%d", srv.IP, srv.Port, objectID, start, count, rev)
}

func (s *Service) dial(ip string, port uint16) (transport.Stream, error) {
	s.guard.Acquire()
	stream, err := s.tr.Dial(ip, port, s.cfg.ResponseTimeout)
	s.guard.Release()
	if err != nil {
		return nil, &dlna.TransportError{Op: "connect", Err: err}
	}
	return stream, nil
}

func (s *Service) write(stream transport.Stream, p []byte) error {
	s.guard.Acquire()
	err := stream.Write(p)
	s.guard.Release()
	if err != nil {
		return &dlna.TransportError{Op: "write", Err: err}
	}
	return nil
}

func (s *Service) closeStream(stream transport.Stream) {
	s.guard.Acquire()
	_ = stream.Close()
	s.guard.Release()
}
