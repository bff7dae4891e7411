// Package packetcapture replays a pcap file written inside the sandbox and
// hands the decoded layers to registered receivers.
package packetcapture

import (
	"context"
	"fmt"
	"io"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcapgo"
)

// PacketReceiver implementations can be registered with a PacketCapture to
// receive all the packets for a specified set of LayerTypes.
type PacketReceiver interface {
	LayerTypes() []gopacket.LayerType
	Receive(gopacket.Layer, gopacket.Packet)
}

type PacketCapture struct {
	packetReceivers map[gopacket.LayerType][]PacketReceiver
	packets         int
}

func New() *PacketCapture {
	return &PacketCapture{
		packetReceivers: make(map[gopacket.LayerType][]PacketReceiver),
	}
}

// RegisterReceiver registers a receiver for a given set of gopacket LayerTypes.
//
// Each PacketReceiver will be called each time a packet in the set of
// LayerTypes is read. Calls happen on the goroutine calling ReadFrom.
func (pc *PacketCapture) RegisterReceiver(receiver PacketReceiver) {
	for _, lt := range receiver.LayerTypes() {
		pc.packetReceivers[lt] = append(pc.packetReceivers[lt], receiver)
	}
}

// ReadFrom decodes every packet of the pcap stream r. A truncated final
// packet ends the stream without an error.
func (pc *PacketCapture) ReadFrom(ctx context.Context, r io.Reader) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("reading pcap header: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		packet, err := source.NextPacket()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading packet %d: %w", pc.packets+1, err)
		}
		pc.packets++
		pc.handlePacket(packet)
	}
}

// Packets is the number of packets read so far.
func (pc *PacketCapture) Packets() int {
	return pc.packets
}

func (pc *PacketCapture) handlePacket(packet gopacket.Packet) {
	for t, receivers := range pc.packetReceivers {
		l := packet.Layer(t)
		if l == nil {
			continue
		}
		for _, r := range receivers {
			r.Receive(l, packet)
		}
	}
}
