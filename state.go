package seqs

// State is the RFC 793 connection state of a [ControlBlock]. Only the states
// reachable by this implementation carry behavior. TIME-WAIT is never entered.
//
//go:generate stringer -type=State -trimprefix=State
type State uint8

const (
	// StateClosed holds no connection. A reset or finished connection returns here.
	StateClosed State = iota
	// StateListen waits for a SYN from any peer.
	StateListen
	// StateSynRcvd answered a SYN with a SYN-ACK and waits for it to be acknowledged.
	StateSynRcvd
	// StateSynSent sent a SYN and waits for the peer's SYN.
	StateSynSent
	// StateEstablished is the data transfer state.
	StateEstablished
	// StateFinWait1 sent a FIN that is not acknowledged yet.
	StateFinWait1
	// StateFinWait2 had its FIN acknowledged and waits for the peer's FIN.
	StateFinWait2
	// StateClosing received the peer's FIN while its own FIN is unacknowledged.
	StateClosing
	// StateTimeWait lingers after a full close. Unused.
	StateTimeWait
	// StateCloseWait received the peer's FIN and waits for the local user to close.
	StateCloseWait
	// StateLastAck sent its FIN after the peer's and waits for the final acknowledgment.
	StateLastAck
)

// IsSynchronized reports whether the state is one in which sequence numbers
// of both sides are known.
func (s State) IsSynchronized() bool {
	return s != StateClosed && s != StateListen && s != StateSynSent && s != StateSynRcvd
}

// connState is implemented by the per-state structures below. Each holds
// exactly the variables valid in its state.
type connState interface {
	state() State
}

type closed struct {
	reason error // nil if the connection was never opened.
}

type listen struct {
	iss Value
}

type synSent struct {
	iss   Value
	ts    Instant
	hasTS bool // Cleared on retransmission of the SYN.
	timer RetransTimer
}

type synRcvd struct {
	iss   Value
	irs   Value
	ts    Instant
	hasTS bool // Cleared on retransmission of the SYN-ACK.
	timer RetransTimer
}

type established struct {
	snd send
	rcv recvSpace
}

type closeWait struct {
	snd      send
	residual ResidualBuffer
	lastACK  Value
	lastWND  WindowSize
}

type lastAck struct {
	snd      sendFIN
	residual ResidualBuffer
	lastACK  Value
	lastWND  WindowSize
}

type finWait1 struct {
	snd sendFIN
	rcv recvSpace
}

type finWait2 struct{}

type closing struct{}

func (*closed) state() State      { return StateClosed }
func (*listen) state() State      { return StateListen }
func (*synSent) state() State     { return StateSynSent }
func (*synRcvd) state() State     { return StateSynRcvd }
func (*established) state() State { return StateEstablished }
func (*closeWait) state() State   { return StateCloseWait }
func (*lastAck) state() State     { return StateLastAck }
func (*finWait1) state() State    { return StateFinWait1 }
func (*finWait2) state() State    { return StateFinWait2 }
func (*closing) state() State     { return StateClosing }

// rcvClosed answers a segment arriving at a closed connection. As per RFC 793 page 65:
//
//	An incoming segment not containing a RST causes a RST to be sent in response.
//	If the ACK bit is off, sequence number zero is used, <SEQ=0><ACK=SEG.SEQ+SEG.LEN><CTL=RST,ACK>
//	If the ACK bit is on, <SEQ=SEG.ACK><CTL=RST>
func rcvClosed(seg Segment) (Segment, bool) {
	switch {
	case seg.Control == ControlRST:
		return Segment{}, false
	case seg.HasACK:
		return RST(seg.ACK), true
	}
	return RSTACK(0, Add(seg.SEQ, seg.LEN())), true
}

// rcvListen handles a segment arriving at a listening connection. As per RFC 793 page 65.
// On SYN it returns the SYN-ACK and the SYN-RECEIVED state to transition to.
func rcvListen(l *listen, seg Segment, now Instant) (reply Segment, next *synRcvd, ok bool) {
	switch {
	case seg.Control == ControlRST:
		return Segment{}, nil, false // An incoming RST should be ignored.
	case seg.HasACK:
		// Any acknowledgment is bad if it arrives on a connection still in the LISTEN state.
		return RST(seg.ACK), nil, true
	case seg.Control == ControlSYN:
		next = &synRcvd{
			iss:   l.iss,
			irs:   seg.SEQ,
			ts:    now,
			hasTS: true,
			timer: newRetransTimer(now, RTOInit),
		}
		return SYNACK(l.iss, seg.SEQ.Add(1), WindowDefault), next, true
	}
	// Any other control or text-bearing segment is dropped.
	return Segment{}, nil, false
}

// rcvSynSent handles a segment arriving after sending a SYN. As per RFC 793 page 66.
// next is nil if the state does not change.
func rcvSynSent(ss *synSent, seg Segment, now Instant, bufs BufferProvider) (reply Segment, hasReply bool, next connState) {
	if seg.HasACK && (seg.ACK.Before(ss.iss) || seg.ACK.After(ss.iss.Add(1))) {
		// If SEG.ACK =< ISS, or SEG.ACK > SND.NXT, send a reset (unless
		// the RST bit is set, if so drop the segment and return).
		if seg.Control == ControlRST {
			return Segment{}, false, nil
		}
		return RST(seg.ACK), true, &closed{reason: ErrConnectionReset}
	}
	switch seg.Control {
	case ControlRST:
		// If the ACK was acceptable then signal the user "error: connection reset",
		// drop the segment, enter CLOSED state. Otherwise drop the segment and return.
		if seg.HasACK {
			return Segment{}, false, &closed{reason: ErrConnectionReset}
		}
		return Segment{}, false, nil

	case ControlSYN:
		if !seg.HasACK {
			// Simultaneous open: enter SYN-RECEIVED, form a SYN,ACK segment.
			next = &synRcvd{
				iss:   ss.iss,
				irs:   seg.SEQ,
				ts:    now,
				hasTS: true,
				timer: newRetransTimer(now, RTOInit),
			}
			return SYNACK(ss.iss, seg.SEQ.Add(1), WindowDefault), true, next
		}
		if !seg.ACK.After(ss.iss) {
			return Segment{}, false, nil
		}
		// Our SYN has been ACKed, enter ESTABLISHED and send
		// <SEQ=SND.NXT><ACK=RCV.NXT><CTL=ACK>
		est := &established{
			snd: send{
				NXT: ss.iss.Add(1),
				MAX: ss.iss.Add(1),
				UNA: seg.ACK,
				WND: seg.WND,
				WL1: seg.SEQ,
				WL2: seg.ACK,

				buffer: bufs.NewSendBuffer(),
			},
			rcv: recvSpace{
				buffer:    bufs.NewReceiveBuffer(),
				assembler: NewAssembler(seg.SEQ.Add(1)),
			},
		}
		if ss.hasTS {
			est.snd.rtt.Sample(now.Sub(ss.ts))
		}
		return ACKSegment(est.snd.NXT, est.rcv.nxt(), est.rcv.wnd()), true, est
	}
	// Neither SYN nor RST set, drop the segment and return.
	return Segment{}, false, nil
}
