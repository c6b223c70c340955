package seqs

import (
	"bytes"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Here we define internal testing helpers that may be used in any *_test.go file
// but are not exported.

const (
	testISS1       Value = 100
	testISS2       Value = 300
	testRTT              = 500 * time.Millisecond
	testBufferSize       = 16
)

var testBytes = []byte("Hello")

// Exchange represents a single step of a conversation with a ControlBlock.
// Exactly one of Incoming or Poll drives the step.
type Exchange struct {
	Incoming  *Segment // Segment arriving from the network.
	Poll      bool     // Call PollSend with PollMSS instead of receiving a segment.
	PollMSS   uint32
	Now       Instant
	WantReply *Segment // Expected reply or polled segment. nil expects none.
	WantState State    // Expected end state.
}

func (tcb *ControlBlock) HelperExchange(t *testing.T, exchange []Exchange) {
	t.Helper()
	const pfx = "exchange"
	for i, ex := range exchange {
		if ex.Incoming != nil && ex.Poll {
			t.Fatalf(pfx+"[%d] cannot poll and receive in the same exchange, please split into two exchanges.", i)
		} else if ex.Incoming == nil && !ex.Poll {
			t.Fatalf(pfx+"[%d] must poll or receive a segment.", i)
		}
		var (
			got Segment
			ok  bool
		)
		if ex.Incoming != nil {
			got, ok = tcb.OnSegment(*ex.Incoming, ex.Now)
			t.Log(ex.RFC9293String(ex.Incoming, tcb.State(), true))
		} else {
			got, ok = tcb.PollSend(ex.PollMSS, ex.Now)
			if ok {
				t.Log(ex.RFC9293String(&got, tcb.State(), false))
			}
		}
		state := tcb.State()
		if state != ex.WantState {
			t.Errorf(pfx+"[%d] unexpected state:\n got=%s\nwant=%s", i, state, ex.WantState)
		}
		switch {
		case !ok && ex.WantReply != nil:
			t.Fatalf(pfx+"[%d] reply:got none, want=%+v", i, *ex.WantReply)
		case ok && ex.WantReply == nil:
			t.Errorf(pfx+"[%d] reply:\n got=%+v\nwant=none", i, got)
		case ok:
			if diff := cmp.Diff(*ex.WantReply, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf(pfx+"[%d] reply mismatch (-want +got):\n%s", i, diff)
			}
		}
	}
}

// RFC9293String returns a RFC 9293 styled visualization of the segment, i.e:
//
//	SynSent     <-- <SEQ=300><ACK=91>[SYN,ACK]
func (ex *Exchange) RFC9293String(seg *Segment, st State, incoming bool) string {
	const emptySpaces = "            "
	buf := make([]byte, 0, 64)
	appendVal := func(buf []byte, name string, i Value) []byte {
		buf = append(buf, '<')
		buf = append(buf, name...)
		buf = append(buf, '=')
		buf = strconv.AppendInt(buf, int64(i), 10)
		buf = append(buf, '>')
		return buf
	}
	dirSep := " --> "
	if incoming {
		dirSep = " <-- "
	}
	sstr := st.String()
	buf = append(buf, sstr...)
	if len(sstr) < 11 {
		buf = append(buf, emptySpaces[:11-len(sstr)]...)
	}
	buf = append(buf, dirSep...)
	buf = appendVal(buf, "SEQ", seg.SEQ)
	if seg.HasACK {
		buf = appendVal(buf, "ACK", seg.ACK)
	}
	if len(seg.Data) > 0 {
		buf = appendVal(buf, "DATA", Value(len(seg.Data)))
	}
	buf = append(buf, seg.Flags().String()...)
	return string(buf)
}

// stateOpts compares per-state structures including unexported fields.
// Buffers are compared by capacity and unread content.
var stateOpts = cmp.Options{
	cmp.AllowUnexported(
		closed{}, listen{}, synSent{}, synRcvd{}, established{}, closeWait{}, lastAck{}, finWait1{},
		send{}, sendFIN{}, recvSpace{}, Assembler{}, seqRange{}, Estimator{}, RetransTimer{},
	),
	cmp.Comparer(func(a, b *RingBuffer) bool {
		return a.Cap() == b.Cap() && bytes.Equal(a.Peek(0, a.Len()), b.Peek(0, b.Len()))
	}),
	cmp.Comparer(func(a, b *Residual) bool { return a.Len() == b.Len() }),
	cmpopts.EquateEmpty(),
	cmpopts.EquateErrors(),
}

func (tcb *ControlBlock) HelperCheckState(t *testing.T, want connState) {
	t.Helper()
	if diff := cmp.Diff(want, tcb.conn(), stateOpts); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

// newTestTCB returns a ControlBlock already in state st.
func newTestTCB(st connState, bufs BufferProvider) *ControlBlock {
	if bufs == nil {
		bufs = RingProvider{}
	}
	return &ControlBlock{st: st, bufs: bufs}
}

// ringWith returns a ring buffer of the given capacity with data enqueued.
func ringWith(size int, data []byte) *RingBuffer {
	rb := NewRingBuffer(size)
	if n := rb.Enqueue(data); n != len(data) {
		panic(fmt.Sprintf("ringWith: enqueued %d of %d bytes", n, len(data)))
	}
	return rb
}

// established1 is the ESTABLISHED state of the side that sent ISS1 after a
// handshake with a remote that sent ISS2. No data has been exchanged.
func established1(sndBuf, rcvBuf *RingBuffer) *established {
	return &established{
		snd: send{
			NXT: testISS1 + 1, MAX: testISS1 + 1, UNA: testISS1 + 1,
			WND: WindowDefault,
			WL1: testISS2, WL2: testISS1,

			buffer: sndBuf,
		},
		rcv: recvSpace{
			buffer:    rcvBuf,
			assembler: NewAssembler(testISS2 + 1),
		},
	}
}

func ptr[T any](v T) *T { return &v }

func segEqual(a, b Segment) bool { return cmp.Equal(a, b, cmpopts.EquateEmpty()) }
