package seqs

import (
	"log/slog"

	"github.com/netseqs/seqs/internal"
)

// ControlBlock is a Transmission Control Block (TCB) implementation as per RFC 793
// with retransmission timing as per RFC 6298. It performs no I/O and has no notion
// of time other than the instants passed to it.
//
// Segments received from the network are processed with [ControlBlock.OnSegment].
// Segments to be sent are obtained with [ControlBlock.PollSend] which should be
// called again at the instant returned by [ControlBlock.PollSendAt]. Calls to
// PollSendAt and PollSend must not be interleaved with timer installation
// for the same connection by the caller or timer events may be lost.
//
// A ControlBlock's internal state is modified by the available "System Calls" as defined in
// RFC 793, such as Listen, Connect and Close.
type ControlBlock struct {
	// st is one of the per-state structures. nil is a closed connection that was never opened.
	st   connState
	bufs BufferProvider
	log  *slog.Logger
}

// NewControlBlock returns a closed ControlBlock that creates the buffers of
// synchronized connections with bufs.
func NewControlBlock(bufs BufferProvider) *ControlBlock {
	if bufs == nil {
		panic("seqs: nil BufferProvider")
	}
	return &ControlBlock{bufs: bufs}
}

func (tcb *ControlBlock) conn() connState {
	if tcb.st == nil {
		tcb.st = &closed{}
	}
	return tcb.st
}

// OnSegment processes a segment arriving from the network and advances the state machine.
// It returns at most one segment to send in reply which should be sent immediately.
func (tcb *ControlBlock) OnSegment(seg Segment, now Instant) (reply Segment, ok bool) {
	if tcb.logenabled(internal.LevelTrace) {
		tcb.traceSeg("tcb:rcv", seg)
	}
	var (
		rcvNxt, sndNxt Value
		rcvWnd         WindowSize
	)
	switch s := tcb.conn().(type) {
	case *closed:
		return rcvClosed(seg)
	case *listen:
		reply, next, ok := rcvListen(s, seg, now)
		if next != nil {
			tcb.transition(next)
		}
		return reply, ok
	case *synSent:
		reply, ok, next := rcvSynSent(s, seg, now, tcb.bufs)
		if next != nil {
			tcb.transition(next)
		}
		return reply, ok
	case *synRcvd:
		// SND.UNA=ISS and SND.NXT=ISS+1 since no data is sent with the SYN.
		rcvNxt, rcvWnd, sndNxt = s.irs.Add(1), WindowDefault, s.iss.Add(1)
	case *established:
		rcvNxt, rcvWnd, sndNxt = s.rcv.nxt(), s.rcv.wnd(), s.snd.NXT
	case *closeWait:
		rcvNxt, rcvWnd, sndNxt = s.lastACK, s.lastWND, s.snd.NXT
	case *lastAck:
		rcvNxt, rcvWnd, sndNxt = s.lastACK, s.lastWND, s.snd.NXT
	case *finWait1:
		rcvNxt, rcvWnd, sndNxt = s.rcv.nxt(), s.rcv.wnd(), s.snd.NXT
	default:
		tcb.unsupported("OnSegment")
	}

	// RFC 793 page 69: first check sequence number.
	isRST := seg.Control == ControlRST
	hasText := len(seg.Data) > 0 || seg.Control == ControlFIN
	seg, ok = seg.overlap(rcvNxt, rcvWnd)
	if !ok {
		// If an incoming segment is not acceptable, an acknowledgment should be
		// sent in reply (unless the RST bit is set, if so drop the segment and return).
		if tcb.logenabled(slog.LevelDebug) {
			tcb.debug("tcb:rcv.unacceptable", slog.String("state", tcb.State().String()),
				slog.Uint64("seg.seq", uint64(seg.SEQ)), slog.Uint64("rcv.nxt", uint64(rcvNxt)))
		}
		if isRST {
			return Segment{}, false
		}
		return ACKSegment(sndNxt, rcvNxt, rcvWnd), true
	}

	switch seg.Control {
	case ControlRST:
		// Second check the RST bit. Enter the CLOSED state, delete the TCB, and return.
		tcb.transition(&closed{reason: ErrConnectionReset})
		return Segment{}, false
	case ControlSYN:
		// Fourth, check the SYN bit. If the SYN is in the window it is an error, send a reset.
		tcb.transition(&closed{reason: ErrConnectionReset})
		return RST(sndNxt), true
	}

	// Fifth check the ACK field. If the ACK bit is off drop the segment and return.
	if !seg.HasACK {
		return Segment{}, false
	}
	switch s := tcb.st.(type) {
	case *synRcvd:
		// If SND.UNA =< SEG.ACK =< SND.NXT then enter ESTABLISHED state and continue
		// processing. If the segment acknowledgment is not acceptable, form a reset
		// segment <SEQ=SEG.ACK><CTL=RST> and send it.
		if seg.ACK != s.iss.Add(1) {
			return RST(seg.ACK), true
		}
		est := &established{
			snd: send{
				NXT: s.iss.Add(1),
				MAX: s.iss.Add(1),
				UNA: seg.ACK,
				WND: seg.WND,
				WL1: seg.SEQ,
				WL2: seg.ACK,

				buffer: tcb.bufs.NewSendBuffer(),
			},
			rcv: recvSpace{
				buffer:    tcb.bufs.NewReceiveBuffer(),
				assembler: NewAssembler(s.irs.Add(1)),
			},
		}
		if s.hasTS {
			est.snd.rtt.Sample(now.Sub(s.ts))
		}
		tcb.transition(est)

	case *established:
		if ack, ok := s.snd.processACK(seg.SEQ, seg.ACK, seg.WND, rcvNxt, rcvWnd, now); ok {
			return ack, true
		}

	case *closeWait:
		if ack, ok := s.snd.processACK(seg.SEQ, seg.ACK, seg.WND, rcvNxt, rcvWnd, now); ok {
			return ack, true
		}

	case *lastAck:
		finEnd := s.snd.finSeq().Add(1)
		if ack, ok := s.snd.processACK(seg.SEQ, seg.ACK, seg.WND, rcvNxt, rcvWnd, now); ok {
			return ack, true
		} else if seg.ACK == finEnd {
			// Our FIN has been acknowledged, delete the TCB.
			tcb.transition(&closed{reason: ErrConnectionClosed})
			return Segment{}, false
		}

	case *finWait1:
		finEnd := s.snd.finSeq().Add(1)
		if ack, ok := s.snd.processACK(seg.SEQ, seg.ACK, seg.WND, rcvNxt, rcvWnd, now); ok {
			return ack, true
		} else if seg.ACK == finEnd {
			// In addition to the processing for the ESTABLISHED state, if our FIN is
			// now acknowledged then enter FIN-WAIT-2. Processing stops here since
			// FIN-WAIT-2 is not supported past this point.
			tcb.transition(&finWait2{})
			return Segment{}, false
		}
	}

	// Seventh, process the segment text.
	var ackText Segment
	var hasAckText bool
	if len(seg.Data) > 0 {
		switch s := tcb.st.(type) {
		case *established:
			s.rcv.write(seg.SEQ, seg.Data)
			rcvNxt = s.rcv.nxt()
			ackText, hasAckText = ACKSegment(sndNxt, rcvNxt, s.rcv.wnd()), true
		case *finWait1:
			s.rcv.write(seg.SEQ, seg.Data)
			rcvNxt = s.rcv.nxt()
			ackText, hasAckText = ACKSegment(sndNxt, rcvNxt, s.rcv.wnd()), true
		case *closeWait, *lastAck:
			// This should not occur since a FIN has been received from the remote. Ignore the text.
		}
	}

	// Eighth, check the FIN bit. Only a FIN with no hole before it is processed.
	if seg.Control == ControlFIN && rcvNxt == seg.SEQ.Add(len(seg.Data)) {
		switch s := tcb.st.(type) {
		case *established:
			lastACK := s.rcv.nxt().Add(1)
			lastWND, _ := s.rcv.wnd().CheckedSub(1)
			tcb.transition(&closeWait{
				snd:      s.snd,
				residual: s.rcv.buffer.Residual(),
				lastACK:  lastACK,
				lastWND:  lastWND,
			})
			return ACKSegment(sndNxt, lastACK, lastWND), true
		case *finWait1:
			ack := s.rcv.nxt().Add(1)
			wnd, _ := s.rcv.wnd().CheckedSub(1)
			tcb.transition(&closing{})
			return ACKSegment(sndNxt, ack, wnd), true
		}
		// CLOSE-WAIT and LAST-ACK remain in their state.
		return Segment{}, false
	}
	if !hasAckText && hasText && seg.LEN() == 0 {
		// Text ending exactly at RCV.NXT is an old duplicate whose ACK may have been lost.
		return ACKSegment(sndNxt, rcvNxt, rcvWnd), true
	}
	// An ACK to a FIN supersedes an ACK to text because ACKs are cumulative.
	return ackText, hasAckText
}

// PollSend returns a segment of at most mss bytes of payload that should be sent now, if any.
// It also retransmits SYN, SYN-ACK and data whose retransmission timer expired.
func (tcb *ControlBlock) PollSend(mss uint32, now Instant) (seg Segment, ok bool) {
	switch s := tcb.conn().(type) {
	case *synSent:
		if !s.timer.expired(now) {
			return Segment{}, false
		}
		s.hasTS = false
		s.timer.backoff(now)
		seg, ok = SYN(s.iss, WindowDefault), true
	case *synRcvd:
		if !s.timer.expired(now) {
			return Segment{}, false
		}
		s.hasTS = false
		s.timer.backoff(now)
		seg, ok = SYNACK(s.iss, s.irs.Add(1), WindowDefault), true
	case *established:
		seg, ok = s.snd.pollSend(s.rcv.nxt(), s.rcv.wnd(), mss, now)
	case *closeWait:
		seg, ok = s.snd.pollSend(s.lastACK, s.lastWND, mss, now)
	case *lastAck:
		seg, ok = s.snd.pollSend(s.lastACK, s.lastWND, mss, now)
	case *finWait1:
		seg, ok = s.snd.pollSend(s.rcv.nxt(), s.rcv.wnd(), mss, now)
	case *closed, *listen:
		return Segment{}, false
	default:
		tcb.unsupported("PollSend")
	}
	if ok && tcb.logenabled(internal.LevelTrace) {
		tcb.traceSeg("tcb:snd", seg)
	}
	return seg, ok
}

// PollSendAt returns the instant at which the caller should make its best effort
// to call PollSend. ok is false if no timer is running.
func (tcb *ControlBlock) PollSendAt() (at Instant, ok bool) {
	switch s := tcb.conn().(type) {
	case *synSent:
		return s.timer.at, true
	case *synRcvd:
		return s.timer.at, true
	case *established:
		return s.snd.timer.at, s.snd.timerOn
	case *closeWait:
		return s.snd.timer.at, s.snd.timerOn
	case *lastAck:
		return s.snd.timer.at, s.snd.timerOn
	case *finWait1:
		return s.snd.timer.at, s.snd.timerOn
	case *closed, *listen:
		return 0, false
	}
	tcb.unsupported("PollSendAt")
	return 0, false
}

// transition replaces the current state wholesale.
func (tcb *ControlBlock) transition(next connState) {
	prev := tcb.conn().state()
	tcb.st = next
	if tcb.logenabled(slog.LevelDebug) {
		attrs := []slog.Attr{slog.String("from", prev.String()), slog.String("to", next.state().String())}
		if c, ok := next.(*closed); ok && c.reason != nil {
			attrs = append(attrs, slog.String("reason", c.reason.Error()))
		}
		tcb.debug("tcb:transition", attrs...)
	}
}

func (tcb *ControlBlock) unsupported(op string) {
	state := tcb.conn().state()
	tcb.logerr("tcb:"+op, slog.String("state", state.String()), slog.String("err", ErrActiveCloseUnsupported.Error()))
	panic("seqs: " + op + " in " + state.String() + ": " + ErrActiveCloseUnsupported.Error())
}
