package seqs

import (
	"log/slog"
	"time"

	"github.com/netseqs/seqs/internal"
	"github.com/pkg/errors"
)

// Functions in this file correspond loosely to the API described in
// https://datatracker.ietf.org/doc/html/rfc793#section-3.8
// The main difference is that this API is built around the ControlBlock
// which performs no I/O.

var (
	// ErrConnectionNotExist is returned by calls on a connection that was never opened or was closed.
	ErrConnectionNotExist = errors.New("connection does not exist")
	// ErrConnectionClosing is returned by Close and Write after the user already closed the connection.
	ErrConnectionClosing = errors.New("connection closing")
	// ErrConnectionReset is the close reason of a connection reset by a RST or a protocol violation.
	ErrConnectionReset = errors.New("connection reset")
	// ErrConnectionClosed is the close reason of a connection closed by the user or after a
	// graceful exchange of FINs.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrActiveCloseUnsupported signals the FIN-WAIT-2 and CLOSING states were reached.
	// These states are not implemented.
	ErrActiveCloseUnsupported = errors.New("active close past FIN-WAIT-1 not supported")

	errTCBNotClosed    = errors.New("TCB not closed")
	errNotSynchronized = errors.New("connection not synchronized")
	errNoBuffers       = errors.New("no buffer provider")
)

// State returns the current state of the connection.
func (tcb *ControlBlock) State() State { return tcb.conn().state() }

// CloseReason returns why a closed connection was closed: [ErrConnectionReset] or
// [ErrConnectionClosed]. It returns nil if the connection is open or was never opened.
func (tcb *ControlBlock) CloseReason() error {
	if c, ok := tcb.conn().(*closed); ok {
		return c.reason
	}
	return nil
}

// Listen implements a passive opening of a connection. The connection must be closed.
func (tcb *ControlBlock) Listen(iss Value) error {
	if err := tcb.checkOpen(); err != nil {
		tcb.logerr("tcb:listen", slog.String("err", err.Error()))
		return err
	}
	tcb.transition(&listen{iss: iss})
	return nil
}

// Connect implements an active opening of a connection. The connection must be closed.
// It returns the SYN segment to send. The SYN is retransmitted by PollSend.
func (tcb *ControlBlock) Connect(iss Value, now Instant) (Segment, error) {
	if err := tcb.checkOpen(); err != nil {
		tcb.logerr("tcb:connect", slog.String("err", err.Error()))
		return Segment{}, err
	}
	tcb.transition(&synSent{
		iss:   iss,
		ts:    now,
		hasTS: true,
		timer: newRetransTimer(now, RTOInit),
	})
	return SYN(iss, WindowDefault), nil
}

func (tcb *ControlBlock) checkOpen() error {
	if tcb.bufs == nil {
		return errNoBuffers
	}
	if _, ok := tcb.conn().(*closed); !ok {
		return errTCBNotClosed
	}
	return nil
}

// Close implements a passive/active closing of a connection. A FIN is queued after all
// data enqueued so far and will be sent by PollSend. Close returns an error if the
// connection is already closed or closing.
func (tcb *ControlBlock) Close() (err error) {
	// See RFC 793 page 60: CLOSE call.
	switch s := tcb.conn().(type) {
	case *closed:
		err = ErrConnectionNotExist
	case *listen, *synSent:
		tcb.transition(&closed{reason: ErrConnectionClosed})
	case *synRcvd:
		// If no SENDs have been issued and there is no pending data to send, then form a
		// FIN segment and send it, and enter FIN-WAIT-1 state. Data cannot be sent before
		// ESTABLISHED so the FIN is always queued immediately.
		tcb.transition(&finWait1{
			snd: sendFIN{
				NXT: s.iss.Add(1),
				MAX: s.iss.Add(1),
				UNA: s.iss.Add(1),
				WND: WindowDefault,
				WL1: s.iss,
				WL2: s.irs,

				buffer: tcb.bufs.NewSendBuffer(),
			},
			rcv: recvSpace{
				buffer:    tcb.bufs.NewReceiveBuffer(),
				assembler: NewAssembler(s.irs.Add(1)),
			},
		})
	case *established:
		tcb.transition(&finWait1{snd: queueFIN(s.snd), rcv: s.rcv})
	case *closeWait:
		tcb.transition(&lastAck{
			snd:      queueFIN(s.snd),
			residual: s.residual,
			lastACK:  s.lastACK,
			lastWND:  s.lastWND,
		})
	case *lastAck, *finWait1:
		err = ErrConnectionClosing
	default:
		err = ErrActiveCloseUnsupported
	}
	if err == nil {
		tcb.trace("tcb:close", slog.String("state", tcb.State().String()))
	} else {
		tcb.logerr("tcb:close", slog.String("err", err.Error()))
	}
	return err
}

// Write enqueues data to be sent to the remote. Data can only be enqueued
// in the ESTABLISHED and CLOSE-WAIT states. n may be less than len(b) if the
// send buffer is full.
func (tcb *ControlBlock) Write(b []byte) (n int, err error) {
	switch s := tcb.conn().(type) {
	case *established:
		n = s.snd.buffer.Enqueue(b)
	case *closeWait:
		n = s.snd.buffer.Enqueue(b)
	case *closed:
		err = ErrConnectionNotExist
	case *listen, *synSent, *synRcvd:
		err = errNotSynchronized
	default:
		err = ErrConnectionClosing
	}
	if err != nil {
		tcb.logerr("tcb:write", slog.String("err", err.Error()))
	}
	return n, err
}

// Read reads data received from the remote. It returns 0 and a nil error while the
// remote may still send data. After the remote closed its side of the connection
// Read drains the remaining data and then returns io.EOF.
func (tcb *ControlBlock) Read(b []byte) (int, error) {
	switch s := tcb.conn().(type) {
	case *established:
		return s.rcv.read(b)
	case *finWait1:
		return s.rcv.read(b)
	case *closeWait:
		return s.residual.Read(b)
	case *lastAck:
		return s.residual.Read(b)
	case *closed:
		return 0, ErrConnectionNotExist
	case *listen, *synSent, *synRcvd:
		return 0, errNotSynchronized
	}
	return 0, ErrActiveCloseUnsupported
}

// Buffered returns the amount of bytes ready to be read.
func (tcb *ControlBlock) Buffered() int {
	switch s := tcb.conn().(type) {
	case *established:
		return s.rcv.buffer.Len()
	case *finWait1:
		return s.rcv.buffer.Len()
	case *closeWait:
		return s.residual.Len()
	case *lastAck:
		return s.residual.Len()
	}
	return 0
}

// RecvNext returns the next sequence number expected to be received from remote.
// RecvNext returns 0 before StateSynRcvd.
func (tcb *ControlBlock) RecvNext() Value {
	switch s := tcb.conn().(type) {
	case *synRcvd:
		return s.irs.Add(1)
	case *established:
		return s.rcv.nxt()
	case *finWait1:
		return s.rcv.nxt()
	case *closeWait:
		return s.lastACK
	case *lastAck:
		return s.lastACK
	}
	return 0
}

// RecvWindow returns the receive window advertised to the remote. If connection is closed will return 0.
func (tcb *ControlBlock) RecvWindow() WindowSize {
	switch s := tcb.conn().(type) {
	case *synSent, *synRcvd:
		return WindowDefault
	case *established:
		return s.rcv.wnd()
	case *finWait1:
		return s.rcv.wnd()
	case *closeWait:
		return s.lastWND
	case *lastAck:
		return s.lastWND
	}
	return 0
}

// ISS returns the initial send sequence number. It returns 0 if the connection is
// not in the LISTEN, SYN-SENT or SYN-RECEIVED states.
func (tcb *ControlBlock) ISS() Value {
	switch s := tcb.conn().(type) {
	case *listen:
		return s.iss
	case *synSent:
		return s.iss
	case *synRcvd:
		return s.iss
	}
	return 0
}

// SendSpace returns SND.UNA, SND.NXT and SND.WND of a synchronized connection.
// ok is false if the connection is not synchronized.
func (tcb *ControlBlock) SendSpace() (una, nxt Value, wnd WindowSize, ok bool) {
	switch s := tcb.conn().(type) {
	case *established:
		return s.snd.UNA, s.snd.NXT, s.snd.WND, true
	case *closeWait:
		return s.snd.UNA, s.snd.NXT, s.snd.WND, true
	case *lastAck:
		return s.snd.UNA, s.snd.NXT, s.snd.WND, true
	case *finWait1:
		return s.snd.UNA, s.snd.NXT, s.snd.WND, true
	}
	return 0, 0, 0, false
}

// RTO returns the current retransmission timeout of the connection.
func (tcb *ControlBlock) RTO() time.Duration {
	switch s := tcb.conn().(type) {
	case *synSent:
		return s.timer.rto
	case *synRcvd:
		return s.timer.rto
	case *established:
		return s.snd.rto()
	case *closeWait:
		return s.snd.rto()
	case *lastAck:
		return s.snd.rto()
	case *finWait1:
		return s.snd.rto()
	}
	return RTOInit
}

// rto returns the timeout of the running timer or the estimator's timeout.
func (snd *sendSpace[F]) rto() time.Duration {
	if snd.timerOn {
		return snd.timer.rto
	}
	return snd.rtt.RTO()
}

// SetLogger sets the logger to be used by the ControlBlock.
func (tcb *ControlBlock) SetLogger(log *slog.Logger) {
	tcb.log = log
}

// SetBufferProvider sets the provider of buffers for connections synchronized after the call.
func (tcb *ControlBlock) SetBufferProvider(bufs BufferProvider) {
	tcb.bufs = bufs
}

func (tcb *ControlBlock) logenabled(lvl slog.Level) bool {
	return internal.LogEnabled(tcb.log, lvl)
}

func (tcb *ControlBlock) logattrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(tcb.log, lvl, msg, attrs...)
}

func (tcb *ControlBlock) debug(msg string, attrs ...slog.Attr) {
	tcb.logattrs(slog.LevelDebug, msg, attrs...)
}

func (tcb *ControlBlock) trace(msg string, attrs ...slog.Attr) {
	tcb.logattrs(internal.LevelTrace, msg, attrs...)
}

func (tcb *ControlBlock) logerr(msg string, attrs ...slog.Attr) {
	tcb.logattrs(slog.LevelError, msg, attrs...)
}

func (tcb *ControlBlock) traceSeg(msg string, seg Segment) {
	tcb.trace(msg, slog.String("state", tcb.conn().state().String()),
		slog.Uint64("seg.seq", uint64(seg.SEQ)), slog.Uint64("seg.ack", uint64(seg.ACK)),
		slog.Uint64("seg.wnd", uint64(seg.WND)), slog.String("seg.flags", seg.Flags().String()),
		slog.Uint64("seg.data", uint64(len(seg.Data))))
}
