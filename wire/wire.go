// Package wire converts [seqs.Segment] values to and from TCP headers as they
// appear on the network. Options are skipped on decode and never written.
package wire

import (
	"math"
	"net/netip"

	"github.com/google/netstack/tcpip/header"
	"github.com/netseqs/seqs"
	"github.com/pkg/errors"
)

// HeaderSize is the size of a TCP header without options.
const HeaderSize = header.TCPMinimumSize

var (
	ErrShortPacket   = errors.New("wire: packet shorter than TCP header")
	ErrBadDataOffset = errors.New("wire: bad data offset")
	// ErrControlBits is returned when more than one of SYN, FIN and RST is set.
	ErrControlBits = errors.New("wire: conflicting control bits")
	ErrNotIPv4     = errors.New("wire: pseudo-header addresses must be IPv4")
)

// Ports holds the source and destination port of a segment.
type Ports struct {
	Src, Dst uint16
}

// Reverse returns the ports of a reply.
func (p Ports) Reverse() Ports { return Ports{Src: p.Dst, Dst: p.Src} }

var zeroHeader [HeaderSize]byte

// Encode appends the TCP header and payload of seg to dst and returns the extended slice.
// The checksum field is left zeroed, see [SetChecksum]. Windows larger than 65535 are
// clamped since window scaling is never negotiated.
func Encode(dst []byte, ports Ports, seg seqs.Segment) []byte {
	off := len(dst)
	dst = append(dst, zeroHeader[:]...)
	flags := uint8(seg.Flags())
	if len(seg.Data) > 0 {
		flags |= header.TCPFlagPsh
	}
	wnd := seg.WND
	if wnd > math.MaxUint16 {
		wnd = math.MaxUint16
	}
	header.TCP(dst[off:]).Encode(&header.TCPFields{
		SrcPort:    ports.Src,
		DstPort:    ports.Dst,
		SeqNum:     uint32(seg.SEQ),
		AckNum:     uint32(seg.ACK),
		DataOffset: HeaderSize,
		Flags:      flags,
		WindowSize: uint16(wnd),
	})
	return append(dst, seg.Data...)
}

// Decode parses a TCP header and payload. The returned segment's Data aliases pkt.
// The ACK field is zeroed when the ACK flag is not set.
func Decode(pkt []byte) (Ports, seqs.Segment, error) {
	if len(pkt) < HeaderSize {
		return Ports{}, seqs.Segment{}, errors.Wrapf(ErrShortPacket, "got %d bytes", len(pkt))
	}
	tcp := header.TCP(pkt)
	offset := int(tcp.DataOffset())
	if offset < HeaderSize || offset > len(pkt) {
		return Ports{}, seqs.Segment{}, errors.Wrapf(ErrBadDataOffset, "offset %d in %d byte packet", offset, len(pkt))
	}
	flags := seqs.Flags(tcp.Flags())
	seg := seqs.Segment{
		SEQ:    seqs.Value(tcp.SequenceNumber()),
		HasACK: flags.HasAll(seqs.FlagACK),
		WND:    seqs.WindowSize(tcp.WindowSize()),
	}
	if seg.HasACK {
		seg.ACK = seqs.Value(tcp.AckNumber())
	}
	ctl := flags & (seqs.FlagSYN | seqs.FlagFIN | seqs.FlagRST)
	switch ctl {
	case 0:
	case seqs.FlagSYN:
		seg.Control = seqs.ControlSYN
	case seqs.FlagFIN:
		seg.Control = seqs.ControlFIN
	case seqs.FlagRST:
		seg.Control = seqs.ControlRST
	default:
		return Ports{}, seqs.Segment{}, errors.Wrap(ErrControlBits, ctl.String())
	}
	if payload := pkt[offset:]; len(payload) > 0 {
		seg.Data = payload
	}
	ports := Ports{Src: tcp.SourcePort(), Dst: tcp.DestinationPort()}
	return ports, seg, nil
}

// Checksum returns the TCP checksum of pkt over the IPv4 pseudo-header formed with src
// and dst. The checksum field currently in pkt is ignored. pkt must hold at least a TCP header.
func Checksum(pkt []byte, src, dst netip.Addr) (uint16, error) {
	if len(pkt) < HeaderSize {
		return 0, errors.Wrapf(ErrShortPacket, "got %d bytes", len(pkt))
	}
	if !src.Is4() || !dst.Is4() {
		return 0, errors.Wrapf(ErrNotIPv4, "src=%s dst=%s", src, dst)
	}
	var pseudo [12]byte
	s, d := src.As4(), dst.As4()
	copy(pseudo[0:4], s[:])
	copy(pseudo[4:8], d[:])
	pseudo[9] = uint8(header.TCPProtocolNumber)
	pseudo[10] = uint8(len(pkt) >> 8)
	pseudo[11] = uint8(len(pkt))
	// Chained chunks must have even length except the last.
	xsum := header.Checksum(pseudo[:], 0)
	xsum = header.Checksum(pkt[:16], xsum)
	xsum = header.Checksum(pkt[18:], xsum)
	return ^xsum, nil
}

// SetChecksum computes and writes the checksum field of pkt.
func SetChecksum(pkt []byte, src, dst netip.Addr) error {
	xsum, err := Checksum(pkt, src, dst)
	if err != nil {
		return err
	}
	header.TCP(pkt).SetChecksum(xsum)
	return nil
}

// ValidChecksum reports whether the checksum field of pkt is correct.
func ValidChecksum(pkt []byte, src, dst netip.Addr) bool {
	xsum, err := Checksum(pkt, src, dst)
	return err == nil && xsum == header.TCP(pkt).Checksum()
}
