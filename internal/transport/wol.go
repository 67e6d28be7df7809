package transport

import (
	"fmt"
	"net"
)

const wolPort = 9

// MagicPacket builds a wake-on-LAN frame for the given MAC address:
// six 0xFF bytes followed by the MAC repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, err
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("unsupported hardware address length %d", len(hw))
	}
	pkt := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		pkt = append(pkt, 0xFF)
	}
	for i := 0; i < 16; i++ {
		pkt = append(pkt, hw...)
	}
	return pkt, nil
}

// Wake broadcasts a magic packet so a sleeping server can be woken
// before discovery.
func Wake(pc PacketConn, mac string) error {
	pkt, err := MagicPacket(mac)
	if err != nil {
		return err
	}
	return pc.Send(pkt, "255.255.255.255", wolPort)
}
