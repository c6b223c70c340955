package seqs

import "time"

// RFC 6298 constants.
const (
	// RTOInit is the retransmission timeout used before any RTT sample is taken.
	RTOInit = time.Second
	// RTOMin is the lower bound of a computed retransmission timeout (RFC 6298 2.4).
	RTOMin = time.Second
	// clockGranularity is the G term of RFC 6298.
	clockGranularity = 100 * time.Millisecond
	rttvarK          = 4
)

// Estimator is a round trip time estimator as described by RFC 6298.
// The zero value has no samples and reports [RTOInit].
type Estimator struct {
	srtt     time.Duration
	rttvar   time.Duration
	measured bool
}

// Sample feeds a round trip time measurement to the estimator. Measurements
// must never be taken from retransmitted segments (Karn's algorithm).
func (e *Estimator) Sample(rtt time.Duration) {
	if !e.measured {
		// (2.2) SRTT <- R, RTTVAR <- R/2
		e.srtt = rtt
		e.rttvar = rtt / 2
		e.measured = true
		return
	}
	// (2.3) RTTVAR <- 3/4*RTTVAR + 1/4*|SRTT-R'|
	//       SRTT   <- 7/8*SRTT + 1/8*R'
	diff := e.srtt - rtt
	if diff < 0 {
		diff = -diff
	}
	e.rttvar = (3*e.rttvar + diff) / 4
	e.srtt = (7*e.srtt + rtt) / 8
}

// RTO returns the retransmission timeout: SRTT + max(G, K*RTTVAR), floored to [RTOMin].
func (e *Estimator) RTO() time.Duration {
	if !e.measured {
		return RTOInit
	}
	rto := e.srtt + max(clockGranularity, rttvarK*e.rttvar)
	return max(rto, RTOMin)
}

// SRTT returns the smoothed round trip time and whether a sample has been taken.
func (e *Estimator) SRTT() (srtt time.Duration, ok bool) { return e.srtt, e.measured }

// RTTVar returns the round trip time variation.
func (e *Estimator) RTTVar() time.Duration { return e.rttvar }
