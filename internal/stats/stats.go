// Package stats tracks the process-wide aggregate connection statistics:
// totals, active count, per-dialect accepted counts, errors, and
// cumulative byte totals. All fields are multi-writer and use atomic
// counters, matching the teacher's pool.Proxy counter style.
package stats

import "sync/atomic"

// Stats is the aggregate, process-wide statistics object. Zero value is
// ready to use.
type Stats struct {
	total  atomic.Int64
	active atomic.Int64
	errors atomic.Int64

	bytesClientToTarget atomic.Int64
	bytesTargetToClient atomic.Int64

	http   atomic.Int64
	https  atomic.Int64
	socks5 atomic.Int64
}

// New returns a ready-to-use Stats.
func New() *Stats {
	return &Stats{}
}

// Accept records a newly accepted client connection: total and active
// both increment. Call exactly once per accepted connection, before the
// dialect is known.
func (s *Stats) Accept() {
	s.total.Add(1)
	s.active.Add(1)
}

// Release decrements the active count. Call exactly once per accepted
// connection, regardless of which error branch it took.
func (s *Stats) Release() {
	for {
		cur := s.active.Load()
		if cur <= 0 {
			return
		}
		if s.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// IncDialect bumps the per-dialect accepted counter. dialect must be one
// of "http", "https" (CONNECT tunnels), or "socks5"; any other value is
// ignored.
func (s *Stats) IncDialect(dialect string) {
	switch dialect {
	case "http":
		s.http.Add(1)
	case "https":
		s.https.Add(1)
	case "socks5":
		s.socks5.Add(1)
	}
}

// IncError bumps the error counter.
func (s *Stats) IncError() {
	s.errors.Add(1)
}

// AddBytes folds a completed connection's byte counters into the
// aggregate totals.
func (s *Stats) AddBytes(clientToTarget, targetToClient int64) {
	if clientToTarget > 0 {
		s.bytesClientToTarget.Add(clientToTarget)
	}
	if targetToClient > 0 {
		s.bytesTargetToClient.Add(targetToClient)
	}
}

// Snapshot is a point-in-time, immutable copy of the aggregate counters.
type Snapshot struct {
	TotalConnections  int64
	ActiveConnections int64
	ErrorCount        int64

	BytesClientToTarget int64
	BytesTargetToClient int64

	HTTPConnections   int64
	HTTPSConnections  int64
	SOCKS5Connections int64
}

// Snapshot returns the current values of every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TotalConnections:    s.total.Load(),
		ActiveConnections:   s.active.Load(),
		ErrorCount:          s.errors.Load(),
		BytesClientToTarget: s.bytesClientToTarget.Load(),
		BytesTargetToClient: s.bytesTargetToClient.Load(),
		HTTPConnections:     s.http.Load(),
		HTTPSConnections:    s.https.Load(),
		SOCKS5Connections:   s.socks5.Load(),
	}
}
