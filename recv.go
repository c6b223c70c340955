package seqs

import "io"

// recvSpace contains Receive Sequence Space data. Its sequence numbers correspond to remote data.
//
//	    1          2          3
//	----------|----------|----------
//	       RCV.NXT    RCV.NXT
//	                 +RCV.WND
//	1 - old sequence numbers which have been acknowledged
//	2 - sequence numbers allowed for new reception
//	3 - future sequence numbers which are not yet allowed
type recvSpace struct {
	buffer    ReceiveBuffer
	assembler Assembler
}

// nxt returns RCV.NXT.
func (rcv *recvSpace) nxt() Value { return rcv.assembler.Nxt() }

// wnd returns RCV.WND, the free space of the receive buffer.
func (rcv *recvSpace) wnd() WindowSize {
	return SaturatingWindow(rcv.buffer.Cap() - rcv.buffer.Len())
}

// write stores data that starts at seq in the receive buffer and returns
// the amount of bytes that became readable.
func (rcv *recvSpace) write(seq Value, data []byte) int {
	offset := int(seq.Sub(rcv.nxt()))
	if offset < 0 {
		panic("seqs: segment was trimmed to the window but starts before rcv.nxt")
	}
	nwritten := rcv.buffer.WriteAt(offset, data)
	readable := int(rcv.assembler.Insert(seq, seq.Add(nwritten)))
	rcv.buffer.MakeReadable(readable)
	return readable
}

// read drains readable data. An empty buffer is not the end of the stream while
// the remote has not sent its FIN, so it yields no error.
func (rcv *recvSpace) read(b []byte) (int, error) {
	if rcv.buffer.Len() == 0 {
		return 0, nil
	}
	n, err := rcv.buffer.Read(b)
	if err == io.EOF {
		err = nil
	}
	return n, err
}
