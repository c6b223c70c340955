package seqs

// Control is the single sequence-space relevant control bit a [Segment] may carry.
// SYN, FIN and RST are mutually exclusive.
type Control uint8

const (
	ControlNone Control = iota
	ControlSYN
	ControlFIN
	ControlRST
)

func (c Control) String() string {
	switch c {
	case ControlNone:
		return "none"
	case ControlSYN:
		return "SYN"
	case ControlFIN:
		return "FIN"
	case ControlRST:
		return "RST"
	}
	return "Control(?)"
}

// seqLen returns the number of sequence numbers the control bit occupies.
func (c Control) seqLen() Size {
	if c == ControlSYN || c == ControlFIN {
		return 1
	}
	return 0
}

// Segment represents a TCP segment as seen by the state machine. Segments are values
// and do not own network resources. Data may alias a send buffer when returned by PollSend.
type Segment struct {
	SEQ     Value      // sequence number of first octet of segment. If SYN is set it is the initial sequence number (ISN) and the first data octet is ISN+1.
	ACK     Value      // acknowledgment number. Only meaningful if HasACK is set.
	HasACK  bool       // ACK control bit.
	WND     WindowSize // segment window
	Control Control
	Data    []byte
}

// SYN returns <SEQ=seq><CTL=SYN>.
func SYN(seq Value, wnd WindowSize) Segment {
	return Segment{SEQ: seq, WND: wnd, Control: ControlSYN}
}

// SYNACK returns <SEQ=seq><ACK=ack><CTL=SYN,ACK>.
func SYNACK(seq, ack Value, wnd WindowSize) Segment {
	return Segment{SEQ: seq, ACK: ack, HasACK: true, WND: wnd, Control: ControlSYN}
}

// ACKSegment returns <SEQ=seq><ACK=ack><CTL=ACK>.
func ACKSegment(seq, ack Value, wnd WindowSize) Segment {
	return Segment{SEQ: seq, ACK: ack, HasACK: true, WND: wnd}
}

// RST returns <SEQ=seq><CTL=RST>.
func RST(seq Value) Segment {
	return Segment{SEQ: seq, Control: ControlRST}
}

// RSTACK returns <SEQ=seq><ACK=ack><CTL=RST,ACK>.
func RSTACK(seq, ack Value) Segment {
	return Segment{SEQ: seq, ACK: ack, HasACK: true, Control: ControlRST}
}

// FIN returns <SEQ=seq><ACK=ack><CTL=FIN,ACK>.
func FIN(seq, ack Value, wnd WindowSize) Segment {
	return Segment{SEQ: seq, ACK: ack, HasACK: true, WND: wnd, Control: ControlFIN}
}

// DataSegment returns an ACK-bearing segment carrying data and an optional control bit.
func DataSegment(seq, ack Value, ctl Control, wnd WindowSize, data []byte) Segment {
	return Segment{SEQ: seq, ACK: ack, HasACK: true, WND: wnd, Control: ctl, Data: data}
}

// LEN returns the length of the segment in octets including SYN and FIN flags.
func (seg *Segment) LEN() Size {
	return Size(len(seg.Data)) + seg.Control.seqLen()
}

// Last returns the sequence number of the last octet of the segment.
func (seg *Segment) Last() Value {
	seglen := seg.LEN()
	if seglen == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, seglen) - 1
}

// Flags returns the RFC 9293 header flags of the segment.
func (seg *Segment) Flags() (flags Flags) {
	switch seg.Control {
	case ControlSYN:
		flags = FlagSYN
	case ControlFIN:
		flags = FlagFIN
	case ControlRST:
		flags = FlagRST
	}
	if seg.HasACK {
		flags |= FlagACK
	}
	return flags
}

// overlap trims the segment to the receive window [rnxt, rnxt+rwnd). ok is false if no part of
// the segment is acceptable as per the RFC 793 acceptability test:
//
//	Segment Receive  Test
//	Length  Window
//	------- -------  -------------------------------------------
//	   0       0     SEG.SEQ = RCV.NXT
//	   0      >0     RCV.NXT =< SEG.SEQ < RCV.NXT+RCV.WND
//	  >0       0     not acceptable
//	  >0      >0     RCV.NXT =< SEG.SEQ < RCV.NXT+RCV.WND
//	              or RCV.NXT =< SEG.SEQ+SEG.LEN =< RCV.NXT+RCV.WND
//
// The last row tests the segment end instead of its last octet so that a SYN-ACK that
// ends exactly at RCV.NXT during simultaneous open is trimmed to an empty ACK and not dropped.
func (seg Segment) overlap(rnxt Value, rwnd WindowSize) (_ Segment, ok bool) {
	seglen := seg.LEN()
	wndEnd := Add(rnxt, rwnd.Size())
	inWindow := func(v Value) bool { return LessThanEq(rnxt, v) && v.Before(wndEnd) }
	switch {
	case seglen == 0 && rwnd == 0:
		ok = seg.SEQ == rnxt
	case seglen == 0:
		ok = inWindow(seg.SEQ)
	case rwnd == 0:
		ok = false
	default:
		end := Add(seg.SEQ, seglen)
		ok = inWindow(seg.SEQ) || (LessThanEq(rnxt, end) && LessThanEq(end, wndEnd))
	}
	if !ok || seglen == 0 {
		return seg, ok
	}
	// Slice the sequence space [newSeq, newEnd) out of SYN, data and FIN in that order.
	newSeq := seg.SEQ
	if rnxt.After(newSeq) {
		newSeq = rnxt
	}
	newEnd := Add(seg.SEQ, seglen)
	if newEnd.After(wndEnd) {
		newEnd = wndEnd
	}
	start := Sizeof(seg.SEQ, newSeq)
	end := Sizeof(seg.SEQ, newEnd)
	trimmed := seg
	trimmed.SEQ = newSeq
	trimmed.Control = ControlNone
	if seg.Control == ControlRST {
		trimmed.Control = ControlRST
	}
	dataOff := Size(0)
	if seg.Control == ControlSYN {
		if start == 0 && end > 0 {
			trimmed.Control = ControlSYN
		}
		dataOff = 1
	}
	datalen := Size(len(seg.Data))
	lo := min(max(start, dataOff), dataOff+datalen) - dataOff
	hi := min(max(end, dataOff), dataOff+datalen) - dataOff
	trimmed.Data = seg.Data[lo:hi]
	if seg.Control == ControlFIN && end == seglen && start < seglen {
		trimmed.Control = ControlFIN
	}
	return trimmed, true
}

// Flags is the TCP control bit field, FIN in the least significant bit.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // no more data from sender
	FlagSYN                   // synchronize sequence numbers
	FlagRST                   // reset the connection
	FlagPSH                   // push
	FlagACK                   // acknowledgment field is significant
	FlagURG                   // urgent pointer field is significant
	FlagECE                   // ECN echo
	FlagCWR                   // congestion window reduced
	FlagNS                    // ECN nonce sum, RFC 3540
)

var flagNames = [...]string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

// HasAll reports whether every bit of mask is set.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny reports whether at least one bit of mask is set.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// String lists the set flags from FIN upwards, e.g. "[SYN,ACK]".
func (flags Flags) String() string {
	if flags == 0 {
		return "[]"
	}
	b := make([]byte, 0, 4*len(flagNames)+1)
	for i, name := range flagNames {
		if flags&(1<<i) == 0 {
			continue
		}
		if len(b) == 0 {
			b = append(b, '[')
		} else {
			b = append(b, ',')
		}
		b = append(b, name...)
	}
	if len(b) == 0 {
		// Only bits above NS are set.
		return "[]"
	}
	return string(append(b, ']'))
}
