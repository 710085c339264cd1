package radius

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventKind labels what a datagram or CoA operation was
type EventKind string

const (
	EventAuth          EventKind = "AUTH"
	EventAcct          EventKind = "ACCT" // acct-port datagram dropped before the status switch
	EventAcctStart     EventKind = "ACCT_START"
	EventAcctInterim   EventKind = "ACCT_INTERIM"
	EventAcctStop      EventKind = "ACCT_STOP"
	EventAcctSweep     EventKind = "ACCT_SWEEP"
	EventCoADisconnect EventKind = "COA_DISCONNECT"
	EventCoAChange     EventKind = "COA_CHANGE"
)

// EventResult is the outcome recorded for an event
type EventResult string

const (
	ResultSuccess     EventResult = "SUCCESS"
	ResultFailure     EventResult = "FAILURE"
	ResultTimeout     EventResult = "TIMEOUT"
	ResultError       EventResult = "ERROR" // transport or encode problem, not a NAS verdict
	ResultRateLimited EventResult = "RATE_LIMITED"
)

// Event is one entry of the in-memory ring. Events are diagnostics,
// not records: they are never persisted.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Result    EventResult   `json:"result"`
	Username  string        `json:"username,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	NasAddr   string        `json:"nas_addr,omitempty"`
	TenantID  uint          `json:"tenant_id,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	BytesIn   int64         `json:"bytes_in,omitempty"`
	BytesOut  int64         `json:"bytes_out,omitempty"`
	Latency   time.Duration `json:"latency"`
	At        time.Time     `json:"at"`
}

const eventRingSize = 1000

// EventLog keeps the last eventRingSize events plus monotonic
// counters. Writers claim a slot by advancing an atomic index, then
// fill it with an atomic pointer store; readers never see a torn slot.
type EventLog struct {
	next atomic.Uint64
	ring [eventRingSize]atomic.Pointer[Event]

	startedAt time.Time

	// counters, all monotonic
	authRequests   atomic.Uint64
	authAccepts    atomic.Uint64
	authRejects    atomic.Uint64
	authTimeouts   atomic.Uint64
	rateLimited    atomic.Uint64
	acctRequests   atomic.Uint64
	acctStarts     atomic.Uint64
	acctInterims   atomic.Uint64
	acctStops      atomic.Uint64
	coaDisconnects atomic.Uint64
	coaChanges     atomic.Uint64
	coaACKs        atomic.Uint64
	coaNAKs        atomic.Uint64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64

	totalLatencyNS atomic.Int64
	latencySamples atomic.Uint64

	activeSessions atomic.Int64
}

// NewEventLog returns an empty log anchored at now
func NewEventLog() *EventLog {
	return &EventLog{startedAt: time.Now()}
}

// Record appends one event and bumps the matching counters. A nil log
// discards events, which lets the CoA client run in processes that
// keep no event ring.
func (l *EventLog) Record(ev Event) {
	if l == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	switch ev.Kind {
	case EventAuth:
		l.authRequests.Add(1)
		switch ev.Result {
		case ResultSuccess:
			l.authAccepts.Add(1)
		case ResultFailure:
			l.authRejects.Add(1)
		case ResultTimeout:
			l.authTimeouts.Add(1)
		}
	case EventAcct:
		l.acctRequests.Add(1)
	case EventAcctStart:
		l.acctRequests.Add(1)
		l.acctStarts.Add(1)
	case EventAcctInterim:
		l.acctRequests.Add(1)
		l.acctInterims.Add(1)
	case EventAcctStop, EventAcctSweep:
		l.acctRequests.Add(1)
		l.acctStops.Add(1)
	case EventCoADisconnect:
		l.coaDisconnects.Add(1)
		l.countCoAOutcome(ev.Result)
	case EventCoAChange:
		l.coaChanges.Add(1)
		l.countCoAOutcome(ev.Result)
	}
	if ev.Result == ResultRateLimited {
		l.rateLimited.Add(1)
	}

	l.bytesIn.Add(ev.BytesIn)
	l.bytesOut.Add(ev.BytesOut)
	if ev.Latency > 0 {
		l.totalLatencyNS.Add(int64(ev.Latency))
		l.latencySamples.Add(1)
	}

	idx := l.next.Add(1) - 1
	l.ring[idx%eventRingSize].Store(&ev)
}

func (l *EventLog) countCoAOutcome(r EventResult) {
	switch r {
	case ResultSuccess:
		l.coaACKs.Add(1)
	case ResultFailure:
		l.coaNAKs.Add(1)
	}
}

// CacheHit and CacheMiss feed the NAS-cache counters
func (l *EventLog) CacheHit()  { l.cacheHits.Add(1) }
func (l *EventLog) CacheMiss() { l.cacheMisses.Add(1) }

// SetActiveSessions overwrites the active-session gauge. The server
// refreshes it from the store; accounting nudges it between sweeps.
func (l *EventLog) SetActiveSessions(n int64) { l.activeSessions.Store(n) }

// AddActiveSessions adjusts the gauge by delta, clamped at zero
func (l *EventLog) AddActiveSessions(delta int64) {
	if l.activeSessions.Add(delta) < 0 {
		l.activeSessions.Store(0)
	}
}

// Recent returns up to n most-recent events, newest first
func (l *EventLog) Recent(n int) []Event {
	if n <= 0 || n > eventRingSize {
		n = eventRingSize
	}
	total := l.next.Load()
	if total == 0 {
		return nil
	}

	out := make([]Event, 0, n)
	for i := uint64(0); i < uint64(n) && i < total; i++ {
		slot := (total - 1 - i) % eventRingSize
		ev := l.ring[slot].Load()
		if ev == nil {
			break
		}
		out = append(out, *ev)
	}
	return out
}

// Summary is the aggregate view served to the admin layer
type Summary struct {
	Uptime          string  `json:"uptime"`
	TotalRequests   uint64  `json:"total_requests"`
	AuthRequests    uint64  `json:"auth_requests"`
	AuthAccepts     uint64  `json:"auth_accepts"`
	AuthRejects     uint64  `json:"auth_rejects"`
	AcctStarts      uint64  `json:"acct_starts"`
	AcctInterims    uint64  `json:"acct_interims"`
	AcctStops       uint64  `json:"acct_stops"`
	CoADisconnects  uint64  `json:"coa_disconnects"`
	CoAChanges      uint64  `json:"coa_changes"`
	CoAACKs         uint64  `json:"coa_acks"`
	CoANAKs         uint64  `json:"coa_naks"`
	RateLimited     uint64  `json:"rate_limited"`
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseMs   float64 `json:"avg_response_ms"`
	ActiveSessions  int64   `json:"active_sessions"`
	CacheHitPercent float64 `json:"cache_hit_percent"`
	BytesIn         int64   `json:"bytes_in"`
	BytesOut        int64   `json:"bytes_out"`
}

// Summary computes the aggregate view. Success rate is accepts over
// auth requests; cache-hit percent covers the NAS secret cache.
func (l *EventLog) Summary() Summary {
	auth := l.authRequests.Load()
	accepts := l.authAccepts.Load()
	total := auth + l.acctRequests.Load()

	var successRate float64
	if auth > 0 {
		successRate = float64(accepts) / float64(auth) * 100
	}

	var avgMs float64
	if samples := l.latencySamples.Load(); samples > 0 {
		avgMs = float64(l.totalLatencyNS.Load()) / float64(samples) / float64(time.Millisecond)
	}

	var cachePct float64
	hits, misses := l.cacheHits.Load(), l.cacheMisses.Load()
	if hits+misses > 0 {
		cachePct = float64(hits) / float64(hits+misses) * 100
	}

	return Summary{
		Uptime:          formatUptime(time.Since(l.startedAt)),
		TotalRequests:   total,
		AuthRequests:    auth,
		AuthAccepts:     accepts,
		AuthRejects:     l.authRejects.Load(),
		AcctStarts:      l.acctStarts.Load(),
		AcctInterims:    l.acctInterims.Load(),
		AcctStops:       l.acctStops.Load(),
		CoADisconnects:  l.coaDisconnects.Load(),
		CoAChanges:      l.coaChanges.Load(),
		CoAACKs:         l.coaACKs.Load(),
		CoANAKs:         l.coaNAKs.Load(),
		RateLimited:     l.rateLimited.Load(),
		SuccessRate:     successRate,
		AvgResponseMs:   avgMs,
		ActiveSessions:  l.activeSessions.Load(),
		CacheHitPercent: cachePct,
		BytesIn:         l.bytesIn.Load(),
		BytesOut:        l.bytesOut.Load(),
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
