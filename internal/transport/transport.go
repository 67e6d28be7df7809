// Package transport defines the byte-stream and datagram primitives the
// engine consumes. The engine never opens sockets itself; it dials through
// a Transport so the same protocol stack runs over plain TCP/UDP, a test
// fake, or a constrained link that needs exclusive-bus guarding.
package transport

import (
	"net"
	"sync"
	"time"
)

// Stream is one open byte-stream connection.
type Stream interface {
	Write(p []byte) error
	// Read blocks up to timeout for available bytes. A timed-out read
	// returns (0, err) with IsTimeout(err) true.
	Read(p []byte, timeout time.Duration) (int, error)
	// Available reports buffered-but-unread bytes without blocking.
	Available() int
	Close() error
}

// PacketConn is the datagram primitive used for SSDP and wake-on-LAN.
type PacketConn interface {
	Send(payload []byte, ip string, port uint16) error
	// Receive blocks up to timeout for one datagram.
	Receive(buf []byte, timeout time.Duration) (n int, srcIP string, srcPort uint16, err error)
	Close() error
}

// Transport dials streams and opens datagram sockets.
type Transport interface {
	Dial(ip string, port uint16, timeout time.Duration) (Stream, error)
	OpenPacket() (PacketConn, error)
}

// Guard scopes exclusive access around transport operations when the
// underlying link shares a bus with unrelated consumers. The engine
// acquires it around every connect/write/read/close and datagram call;
// it never arbitrates the bus itself.
type Guard interface {
	Acquire()
	Release()
}

// NopGuard is the default guard for transports without bus contention.
type NopGuard struct{}

func (NopGuard) Acquire() {}
func (NopGuard) Release() {}

// MutexGuard serializes transport access with a plain mutex.
type MutexGuard struct {
	mu sync.Mutex
}

func (g *MutexGuard) Acquire() { g.mu.Lock() }
func (g *MutexGuard) Release() { g.mu.Unlock() }

// IsTimeout reports whether err is a timed-out network operation.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
