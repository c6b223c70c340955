package seqs

// finMarker selects at compile time whether a send sequence space has a FIN
// queued after its buffered data. A queued FIN occupies one sequence number
// past the end of the send buffer.
type finMarker interface {
	finQueued() bool
}

type noFIN struct{}

func (noFIN) finQueued() bool { return false }

type withFIN struct{}

func (withFIN) finQueued() bool { return true }

// send is the send sequence space of a connection whose user may still enqueue data.
type send = sendSpace[noFIN]

// sendFIN is the send sequence space after the user closed the connection.
// It can only be obtained through queueFIN.
type sendFIN = sendSpace[withFIN]

// sendSpace contains Send Sequence Space data. Its sequence numbers correspond to local data.
//
//	     1         2          3          4
//	----------|----------|----------|----------
//	       SND.UNA    SND.NXT    SND.UNA
//	                            +SND.WND
//	1. old sequence numbers which have been acknowledged
//	2. sequence numbers of unacknowledged data
//	3. sequence numbers allowed for new data transmission
//	4. future sequence numbers which are not yet allowed
type sendSpace[F finMarker] struct {
	NXT Value      // send next. Rewound to UNA on retransmission.
	MAX Value      // highest sequence number sent.
	UNA Value      // send unacknowledged.
	WND WindowSize // send window defined by remote.
	WL1 Value      // segment sequence number used for last window update.
	WL2 Value      // segment acknowledgment number used for last window update.

	buffer SendBuffer
	// lastSeq and lastTS record the end of the freshest transmission so that
	// the ACK covering it yields an RTT sample. Unset during retransmission.
	lastSeq    Value
	lastTS     Instant
	hasLastSeq bool
	rtt        Estimator
	timer      RetransTimer
	timerOn    bool
}

// queueFIN queues a FIN after all data currently in the send buffer.
func queueFIN(snd send) sendFIN {
	return sendFIN{
		NXT: snd.NXT, MAX: snd.MAX, UNA: snd.UNA, WND: snd.WND, WL1: snd.WL1, WL2: snd.WL2,
		buffer:     snd.buffer,
		lastSeq:    snd.lastSeq,
		lastTS:     snd.lastTS,
		hasLastSeq: snd.hasLastSeq,
		rtt:        snd.rtt,
		timer:      snd.timer,
		timerOn:    snd.timerOn,
	}
}

func (snd *sendSpace[F]) finQueued() bool {
	var f F
	return f.finQueued()
}

// finSeq returns the sequence number a queued FIN occupies.
func (snd *sendSpace[F]) finSeq() Value {
	return snd.UNA.Add(snd.buffer.Len())
}

// pollSend forms a segment of at most mss bytes of unsent data that fits in the
// remote's window. On retransmission timeout NXT is rewound to UNA so that the
// oldest unacknowledged data is sent again.
func (snd *sendSpace[F]) pollSend(rcvNxt Value, rcvWnd WindowSize, mss uint32, now Instant) (Segment, bool) {
	if snd.timerOn && snd.timer.expired(now) {
		// RFC 6298 (5.4)-(5.6): retransmit earliest unacknowledged segment and back off.
		snd.NXT = snd.UNA
		snd.timer.backoff(now)
	}
	openWindow := Add(snd.UNA, snd.WND.Size()).Sub(snd.NXT)
	if openWindow < 0 {
		return Segment{}, false // Remote shrank its window.
	}
	offset := int(snd.NXT.Sub(snd.UNA))
	if offset < 0 {
		panic("seqs: snd.nxt fell behind snd.una")
	}
	available := snd.buffer.Len() - offset
	if snd.finQueued() {
		available++
	}
	canSend := min(int(openWindow), available)
	if uint64(mss) < uint64(canSend) {
		canSend = int(mss)
	}
	if canSend <= 0 {
		return Segment{}, false
	}
	hasFIN := snd.finQueued() && canSend == available
	datalen := canSend
	ctl := ControlNone
	if hasFIN {
		datalen--
		ctl = ControlFIN
	}
	seg := DataSegment(snd.NXT, rcvNxt, ctl, rcvWnd, snd.buffer.Peek(offset, datalen))
	seqMax := snd.NXT.Add(canSend)
	switch {
	case !snd.hasLastSeq:
		snd.lastSeq, snd.lastTS, snd.hasLastSeq = seqMax, now, true
	case seqMax.After(snd.lastSeq):
		snd.lastSeq, snd.lastTS = seqMax, now
	default:
		// Retransmission, do not sample (Karn's algorithm).
		snd.hasLastSeq = false
	}
	snd.NXT.UpdateForward(Size(canSend))
	if seqMax.After(snd.MAX) {
		snd.MAX = seqMax
	}
	if !snd.timerOn {
		// RFC 6298 (5.1)
		snd.timer = newRetransTimer(now, snd.rtt.RTO())
		snd.timerOn = true
	}
	return seg, true
}

// processACK processes the acknowledgment and window fields of an acceptable segment.
// It returns an ACK to send if the segment acknowledges data never sent.
func (snd *sendSpace[F]) processACK(segSeq, segAck Value, segWnd WindowSize, rcvNxt Value, rcvWnd WindowSize, now Instant) (Segment, bool) {
	switch {
	case segAck.After(snd.MAX):
		// RFC 793 page 72: If the ACK acks something not yet sent (SEG.ACK > SND.NXT)
		// then send an ACK, drop the segment, and return.
		return ACKSegment(snd.NXT, rcvNxt, rcvWnd), true

	case segAck.After(snd.UNA):
		acked := int(segAck.Sub(snd.UNA))
		if snd.finQueued() && segAck == snd.finSeq().Add(1) {
			acked-- // FIN occupies no buffer space.
		}
		snd.buffer.MarkRead(acked)
		snd.UNA = segAck
		if segAck.After(snd.NXT) {
			// Remote acked data sent before a retransmission rewound NXT.
			snd.NXT = segAck
		}
		// RFC 793 page 72: If SND.UNA < SEG.ACK =< SND.NXT, the send window should be
		// updated. If (SND.WL1 < SEG.SEQ or (SND.WL1 = SEG.SEQ and SND.WL2 =< SEG.ACK)).
		if snd.WL1.Before(segSeq) || (segSeq == snd.WL1 && !snd.WL2.After(segAck)) {
			snd.WND = segWnd
			snd.WL1 = segSeq
			snd.WL2 = segAck
		}
		if snd.hasLastSeq && !segAck.Before(snd.lastSeq) {
			snd.rtt.Sample(now.Sub(snd.lastTS))
		}
		if segAck == snd.MAX {
			// RFC 6298 (5.2): all outstanding data acked, turn off the timer.
			snd.timerOn = false
		} else if snd.timerOn {
			// RFC 6298 (5.3)
			snd.timer.rearm(now)
		}
	}
	// Duplicate ACK, ignore.
	return Segment{}, false
}
