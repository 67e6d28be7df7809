package transport

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Net is the default Transport over the operating system network stack.
type Net struct{}

// Dial opens a TCP connection.
func (Net) Dial(ip string, port uint16, timeout time.Duration) (Stream, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &netStream{conn: conn, br: bufio.NewReader(conn)}, nil
}

// OpenPacket opens a UDP socket on an ephemeral port. SSDP queries must
// not originate from port 1900: several servers ignore queries sourced
// from the well-known multicast port.
func (Net) OpenPacket() (PacketConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}
	return &netPacket{conn: conn}, nil
}

type netStream struct {
	conn net.Conn
	br   *bufio.Reader
}

func (s *netStream) Write(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *netStream) Read(p []byte, timeout time.Duration) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	return s.br.Read(p)
}

func (s *netStream) Available() int { return s.br.Buffered() }

func (s *netStream) Close() error { return s.conn.Close() }

type netPacket struct {
	conn *net.UDPConn
}

func (p *netPacket) Send(payload []byte, ip string, port uint16) error {
	dst := &net.UDPAddr{IP: net.ParseIP(ip), Port: int(port)}
	if dst.IP == nil {
		return fmt.Errorf("invalid destination ip %q", ip)
	}
	_, err := p.conn.WriteToUDP(payload, dst)
	return err
}

func (p *netPacket) Receive(buf []byte, timeout time.Duration) (int, string, uint16, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, "", 0, err
	}
	n, src, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, "", 0, err
	}
	return n, src.IP.String(), uint16(src.Port), nil
}

func (p *netPacket) Close() error { return p.conn.Close() }
