// Package sim runs a client and a server [seqs.ControlBlock] against each other
// over an in-memory network of IPv4 datagrams with configurable loss.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/netseqs/seqs"
	"github.com/netseqs/seqs/internal"
	"github.com/netseqs/seqs/wire"
	"github.com/pkg/errors"
)

var (
	// ErrStalled is returned when neither endpoint has a pending packet or timer
	// and the transfer has not finished.
	ErrStalled = errors.New("sim: no pending events")
	// ErrMaxSteps is returned when the transfer did not finish within Config.MaxSteps steps.
	ErrMaxSteps = errors.New("sim: step limit reached")
	// ErrReset is returned when an endpoint's connection was closed before the transfer finished.
	ErrReset = errors.New("sim: connection closed early")
)

// Result summarizes a finished simulation.
type Result struct {
	ClientState seqs.State
	ServerState seqs.State
	// Delivered holds the bytes read by the server.
	Delivered []byte
	// Sent counts packets handed to the network, dropped ones included.
	Sent    int
	Dropped int
	// Retransmissions counts segments resent by either endpoint.
	Retransmissions int
	Steps           int
	Elapsed         time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("client=%s server=%s delivered=%dB sent=%d dropped=%d retransmissions=%d steps=%d elapsed=%s",
		r.ClientState, r.ServerState, len(r.Delivered), r.Sent, r.Dropped, r.Retransmissions, r.Steps, r.Elapsed)
}

type endpoint struct {
	name  string
	tcb   *seqs.ControlBlock
	addr  netip.Addr
	ports wire.Ports
	peer  *endpoint
	// sndLast is the highest sequence number sent, used to spot retransmissions.
	sndLast seqs.Value
	hasSnd bool
}

// pollable reports whether the endpoint's state can be polled and fed segments.
// FIN-WAIT-2 and CLOSING are terminal for the simulation.
func (ep *endpoint) pollable() bool {
	st := ep.tcb.State()
	return st != seqs.StateFinWait2 && st != seqs.StateClosing
}

type packet struct {
	at   seqs.Instant
	to   *endpoint
	data []byte
}

type virtualClock struct {
	now seqs.Instant
}

func (c *virtualClock) Now() seqs.Instant { return c.now }

type simulation struct {
	cfg      Config
	log      *slog.Logger
	clock    seqs.Clock
	vclock   *virtualClock // nil in realtime mode.
	client   endpoint
	server   endpoint
	inflight []packet
	drop     map[int]bool
	written  int
	closed   bool
	res      Result
}

// Run transfers cfg.Payload from a client to a listening server and then closes the
// client's side. Run returns once the client reached FIN-WAIT-2 and the server read all
// data in CLOSE-WAIT. log may be nil.
func Run(ctx context.Context, cfg Config, log *slog.Logger) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "invalid config")
	}
	caddr, saddr, _ := cfg.addrs()
	s := &simulation{
		cfg:  cfg,
		log:  log,
		drop: make(map[int]bool, len(cfg.Drop)),
	}
	for _, idx := range cfg.Drop {
		s.drop[idx] = true
	}
	if cfg.Realtime {
		s.clock = seqs.NewMonotonicClock()
	} else {
		s.vclock = &virtualClock{}
		s.clock = s.vclock
	}
	bufs := seqs.RingProvider{SendSize: cfg.SendBuffer, RecvSize: cfg.RecvBuffer}
	s.client = endpoint{
		name:  "client",
		tcb:   seqs.NewControlBlock(bufs),
		addr:  caddr,
		ports: wire.Ports{Src: cfg.ClientPort, Dst: cfg.ServerPort},
	}
	s.server = endpoint{
		name:  "server",
		tcb:   seqs.NewControlBlock(bufs),
		addr:  saddr,
		ports: wire.Ports{Src: cfg.ServerPort, Dst: cfg.ClientPort},
	}
	s.client.peer, s.server.peer = &s.server, &s.client
	if log != nil {
		s.client.tcb.SetLogger(log.With(slog.String("side", "client")))
		s.server.tcb.SetLogger(log.With(slog.String("side", "server")))
	}

	start := s.clock.Now()
	err := s.run(ctx)
	s.res.ClientState = s.client.tcb.State()
	s.res.ServerState = s.server.tcb.State()
	s.res.Elapsed = s.clock.Now().Sub(start)
	if err != nil {
		s.logattrs(slog.LevelError, "sim:fail", slog.String("err", err.Error()), slog.String("result", s.res.String()))
		return s.res, err
	}
	s.logattrs(slog.LevelInfo, "sim:done", slog.String("result", s.res.String()))
	return s.res, nil
}

func (s *simulation) run(ctx context.Context) error {
	now := s.clock.Now()
	if err := s.server.tcb.Listen(s.iss(s.cfg.ServerISS)); err != nil {
		return errors.Wrap(err, "server listen")
	}
	syn, err := s.client.tcb.Connect(s.iss(s.cfg.ClientISS), now)
	if err != nil {
		return errors.Wrap(err, "client connect")
	}
	if err := s.transmit(&s.client, syn, now); err != nil {
		return err
	}
	for ; ; s.res.Steps++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "sim interrupted")
		}
		if s.res.Steps >= s.cfg.MaxSteps {
			return errors.Wrapf(ErrMaxSteps, "after %d steps", s.res.Steps)
		}
		now = s.clock.Now()
		if err := s.step(now); err != nil {
			return err
		}
		if done, err := s.finished(); done || err != nil {
			return err
		}
		next, ok := s.nextEvent()
		if !ok {
			return errors.Wrapf(ErrStalled, "client=%s server=%s", s.client.tcb.State(), s.server.tcb.State())
		}
		if now.Before(next) {
			if err := s.waitUntil(ctx, next); err != nil {
				return errors.Wrap(err, "sim interrupted")
			}
		}
	}
}

// step delivers due packets, performs user calls and polls both endpoints.
func (s *simulation) step(now seqs.Instant) error {
	var pending []packet
	due := s.inflight
	s.inflight = nil
	for _, p := range due {
		if now.Before(p.at) {
			pending = append(pending, p)
			continue
		}
		if err := s.deliver(p, now); err != nil {
			return err
		}
	}
	s.inflight = append(pending, s.inflight...)

	if err := s.userCalls(); err != nil {
		return err
	}
	for _, ep := range [...]*endpoint{&s.client, &s.server} {
		if !ep.pollable() {
			continue
		}
		for {
			seg, ok := ep.tcb.PollSend(s.cfg.MSS, now)
			if !ok {
				break
			}
			if err := s.transmit(ep, seg, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *simulation) userCalls() error {
	if s.client.tcb.State() == seqs.StateEstablished && !s.closed {
		if s.written < len(s.cfg.Payload) {
			n, err := s.client.tcb.Write([]byte(s.cfg.Payload[s.written:]))
			if err != nil {
				return errors.Wrap(err, "client write")
			}
			s.written += n
		}
		if s.written == len(s.cfg.Payload) {
			if err := s.client.tcb.Close(); err != nil {
				return errors.Wrap(err, "client close")
			}
			s.closed = true
		}
	}
	var buf [512]byte
	for s.server.tcb.Buffered() > 0 {
		n, err := s.server.tcb.Read(buf[:])
		s.res.Delivered = append(s.res.Delivered, buf[:n]...)
		if err != nil {
			return errors.Wrap(err, "server read")
		}
	}
	return nil
}

func (s *simulation) finished() (bool, error) {
	cst, sst := s.client.tcb.State(), s.server.tcb.State()
	if cst == seqs.StateClosed || sst == seqs.StateClosed {
		reason := s.client.tcb.CloseReason()
		if sst == seqs.StateClosed {
			reason = s.server.tcb.CloseReason()
		}
		return true, errors.Wrapf(ErrReset, "client=%s server=%s reason=%v", cst, sst, reason)
	}
	return cst == seqs.StateFinWait2 && sst == seqs.StateCloseWait && s.server.tcb.Buffered() == 0, nil
}

// transmit encodes seg and puts it on the network unless it is scheduled to be dropped.
func (s *simulation) transmit(from *endpoint, seg seqs.Segment, now seqs.Instant) error {
	if seg.LEN() > 0 {
		last := seg.Last()
		if from.hasSnd && seqs.LessThanEq(last, from.sndLast) {
			s.res.Retransmissions++
		} else {
			from.sndLast, from.hasSnd = last, true
		}
	}
	pkt, err := wire.AppendIPv4(nil, from.addr, from.peer.addr, wire.Encode(nil, from.ports, seg))
	if err != nil {
		return errors.Wrapf(err, "%s encode", from.name)
	}
	idx := s.res.Sent
	s.res.Sent++
	dropped := s.drop[idx]
	if s.logenabled(slog.LevelDebug) {
		s.logattrs(slog.LevelDebug, "sim:tx",
			slog.Int("pkt", idx),
			slog.Bool("dropped", dropped),
			slog.String("seg", seqs.StringExchange(seg, from.tcb.State(), from.peer.tcb.State(), from == &s.server)),
		)
	}
	if dropped {
		s.res.Dropped++
		return nil
	}
	s.inflight = append(s.inflight, packet{at: now.Add(s.cfg.Latency), to: from.peer, data: pkt})
	return nil
}

func (s *simulation) deliver(p packet, now seqs.Instant) error {
	to := p.to
	src, dst, tcp, err := wire.DecodeIPv4(p.data)
	if err != nil {
		return errors.Wrapf(err, "%s: decode", to.name)
	}
	if src != to.peer.addr || dst != to.addr {
		return errors.Errorf("%s: misrouted datagram %s -> %s", to.name, src, dst)
	}
	ports, seg, err := wire.Decode(tcp)
	if err != nil {
		return errors.Wrapf(err, "%s: decode", to.name)
	}
	if ports != to.ports.Reverse() {
		return errors.Errorf("%s: misrouted packet for ports %+v", to.name, ports)
	}
	if !to.pollable() {
		return nil
	}
	reply, ok := to.tcb.OnSegment(seg, now)
	if !ok {
		return nil
	}
	return s.transmit(to, reply, now)
}

// nextEvent returns the earliest packet arrival or retransmission deadline.
func (s *simulation) nextEvent() (next seqs.Instant, ok bool) {
	consider := func(at seqs.Instant) {
		if !ok || at.Before(next) {
			next, ok = at, true
		}
	}
	for _, p := range s.inflight {
		consider(p.at)
	}
	for _, ep := range [...]*endpoint{&s.client, &s.server} {
		if !ep.pollable() {
			continue
		}
		if at, timerOn := ep.tcb.PollSendAt(); timerOn {
			consider(at)
		}
	}
	return next, ok
}

// waitUntil advances the virtual clock to next, or waits for the monotonic clock to reach it.
func (s *simulation) waitUntil(ctx context.Context, next seqs.Instant) error {
	if s.vclock != nil {
		s.vclock.now = next
		return nil
	}
	backoff := internal.NewBackoff(internal.BackoffCriticalPath)
	for {
		now := s.clock.Now()
		if !now.Before(next) {
			backoff.Hit()
			return nil
		}
		if err := backoff.Miss(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func (s *simulation) iss(v *uint32) seqs.Value {
	if v != nil {
		return seqs.Value(*v)
	}
	return seqs.DefaultNewISS(time.Now())
}

func (s *simulation) logenabled(lvl slog.Level) bool {
	return internal.LogEnabled(s.log, lvl)
}

func (s *simulation) logattrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(s.log, lvl, msg, attrs...)
}
