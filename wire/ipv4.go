package wire

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

const defaultTTL = 64

var ErrIPv4Checksum = errors.New("wire: bad IPv4 header checksum")

// AppendIPv4 appends an IPv4 datagram from src to dst carrying the TCP packet tcp.
// The TCP checksum is computed over the datagram's addresses.
func AppendIPv4(dst []byte, src, dstAddr netip.Addr, tcp []byte) ([]byte, error) {
	if err := SetChecksum(tcp, src, dstAddr); err != nil {
		return dst, err
	}
	hdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen,
		TotalLen: ipv4header.HeaderLen + len(tcp),
		TTL:      defaultTTL,
		Protocol: int(header.TCPProtocolNumber),
		Src:      src,
		Dst:      dstAddr,
		Options:  []byte{},
	}
	b, err := hdr.Marshal()
	if err != nil {
		return dst, errors.Wrap(err, "marshal IPv4 header")
	}
	// The checksum field is zero in b and the header checksum covers it.
	hdr.Checksum = int(^header.Checksum(b, 0))
	b, err = hdr.Marshal()
	if err != nil {
		return dst, errors.Wrap(err, "marshal IPv4 header")
	}
	dst = append(dst, b...)
	return append(dst, tcp...), nil
}

// DecodeIPv4 parses an IPv4 datagram carrying TCP and validates both checksums.
// The returned TCP packet aliases pkt and excludes any link layer padding.
func DecodeIPv4(pkt []byte) (src, dst netip.Addr, tcp []byte, err error) {
	hdr, err := ipv4header.ParseHeader(pkt)
	if err != nil {
		return src, dst, nil, errors.Wrap(err, "parse IPv4 header")
	}
	if hdr.Len < ipv4header.HeaderLen || hdr.TotalLen < hdr.Len || hdr.TotalLen > len(pkt) {
		return src, dst, nil, errors.Errorf("wire: bad IPv4 lengths header=%d total=%d packet=%d", hdr.Len, hdr.TotalLen, len(pkt))
	}
	if header.Checksum(pkt[:hdr.Len], 0) != 0xffff {
		return src, dst, nil, ErrIPv4Checksum
	}
	if hdr.Protocol != int(header.TCPProtocolNumber) {
		return src, dst, nil, errors.Errorf("wire: IPv4 protocol %d is not TCP", hdr.Protocol)
	}
	src, dst = hdr.Src, hdr.Dst
	tcp = pkt[hdr.Len:hdr.TotalLen]
	if !ValidChecksum(tcp, src, dst) {
		return src, dst, nil, errors.Errorf("wire: bad TCP checksum from %s", src)
	}
	return src, dst, tcp, nil
}
