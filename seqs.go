package seqs

import "strconv"

const (
	exchangeStateWidth = len("Established")
	exchangeSegEnd     = 44
)

// StringExchange renders seg travelling from a block in state A to a block in
// state B, in the style of the RFC 9293 figures. invertDir points the arrows
// from B to A, which is how replies are drawn:
//
//	SynSent     --> <SEQ=100><ACK=0>[SYN]        --> SynRcvd
//	Established <-- <SEQ=300><ACK=101>[ACK]      <-- CloseWait
func StringExchange(seg Segment, A, B State, invertDir bool) string {
	var scratch [80]byte
	return string(appendExchange(scratch[:0], seg, A, B, invertDir))
}

func appendExchange(line []byte, seg Segment, A, B State, invertDir bool) []byte {
	arrow := " --> "
	if invertDir {
		arrow = " <-- "
	}
	start := len(line)
	line = append(line, A.String()...)
	line = pad(line, start+exchangeStateWidth)
	line = append(line, arrow...)
	line = appendField(line, "SEQ", uint64(seg.SEQ))
	line = appendField(line, "ACK", uint64(seg.ACK))
	if n := len(seg.Data); n > 0 {
		line = appendField(line, "DATA", uint64(n))
	}
	line = append(line, seg.Flags().String()...)
	line = pad(line, start+exchangeSegEnd)
	line = append(line, arrow...)
	return append(line, B.String()...)
}

func appendField(b []byte, name string, v uint64) []byte {
	b = append(b, '<')
	b = append(b, name...)
	b = append(b, '=')
	b = strconv.AppendUint(b, v, 10)
	return append(b, '>')
}

// pad appends spaces until b is width bytes long.
func pad(b []byte, width int) []byte {
	for len(b) < width {
		b = append(b, ' ')
	}
	return b
}
