// Package capture record channel frames into a pcap file, every frame is
// written as one UDP datagram whose ports are the channel id.
package capture

import (
	"net/netip"
	"os"
	"sync"

	"github.com/lysShub/netkit/pcap"
	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// BasePort udp port of channel 0
const BasePort = 9000

type Capture struct {
	mu   sync.Mutex
	file *pcap.Pcap
	pcap *pcap.BindPcap
	buf  []byte
}

func File(path string) (*Capture, error) {
	p, err := pcap.File(path)
	if err != nil {
		return nil, err
	}
	b, err := pcap.Bind(p, netip.AddrFrom4([4]byte{127, 0, 0, 1}))
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Capture{file: p, pcap: b}, nil
}

// Inbound record frame received from channel id, nil Capture ignore it.
func (c *Capture) Inbound(id uint8, frame []byte) error {
	if c == nil {
		return nil
	}
	return c.write(id, frame, true)
}

// Outbound record result send to channel id.
func (c *Capture) Outbound(id uint8, result []byte) error {
	if c == nil {
		return nil
	}
	return c.write(id, result, false)
}

func (c *Capture) write(id uint8, payload []byte, inbound bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return errors.WithStack(os.ErrClosed)
	}

	n := header.UDPMinimumSize + len(payload)
	if n > 0xffff {
		return errors.Errorf("payload size %d too large", len(payload))
	}
	if cap(c.buf) < n {
		c.buf = make([]byte, n)
	}
	c.buf = c.buf[:n]
	copy(c.buf[header.UDPMinimumSize:], payload)

	port := BasePort + uint16(id)
	header.UDP(c.buf).Encode(&header.UDPFields{
		SrcPort: port,
		DstPort: port,
		Length:  uint16(n),
	})

	if inbound {
		return c.pcap.Inbound(netip.IPv4Unspecified(), header.UDPProtocolNumber, c.buf)
	}
	return c.pcap.Outbound(netip.IPv4Unspecified(), header.UDPProtocolNumber, c.buf)
}

func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.pcap = nil, nil
	return err
}
