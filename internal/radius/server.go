package radius

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/jazanet/backend/internal/models"
)

const (
	defaultMaxInFlight = 256
	sweepInterval      = 60 * time.Second
	handlerTimeout     = 10 * time.Second
)

type socketRole int

const (
	roleAuth socketRole = iota
	roleAcct
)

// ServerConfig carries the listener ports and the in-flight bound.
type ServerConfig struct {
	AuthPort    int
	AcctPort    int
	MaxInFlight int
}

// Server owns the two RADIUS listeners and everything a datagram
// passes through: rate limiter, NAS secret cache, handlers, event log.
// One instance per process; Start and Stop are idempotent.
type Server struct {
	cfg ServerConfig

	store    Store
	subCache *subscriberCache
	nasCache *nasCache
	limiter  *rateLimiter
	events   *EventLog
	metrics  *Metrics
	log      zerolog.Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	authConn *net.UDPConn
	acctConn *net.UDPConn
	group    *errgroup.Group

	sem     chan struct{}
	workers sync.WaitGroup
}

// NewServer wires a server from constructed parts. rdb may be nil
// (subscriber lookups then always hit the store); metrics may be nil.
func NewServer(cfg ServerConfig, store Store, rdb *redis.Client, events *EventLog, metrics *Metrics, log zerolog.Logger) *Server {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		subCache: &subscriberCache{rdb: rdb},
		nasCache: newNasCache(nasCacheTTL),
		limiter:  newRateLimiter(rateLimitMax, rateLimitWindow),
		events:   events,
		metrics:  metrics,
		log:      log.With().Str("component", "radius").Logger(),
		sem:      make(chan struct{}, cfg.MaxInFlight),
	}
}

// Events exposes the event log for the admin surface
func (s *Server) Events() *EventLog { return s.events }

// InvalidateNas evicts one source address from the secret cache.
// Admin mutations of NAS rows go through here so a changed secret
// takes effect before the TTL runs out.
func (s *Server) InvalidateNas(addr string) { s.nasCache.invalidate(addr) }

// Start binds both sockets and launches the listeners and the
// background sweeper. Calling Start on a running server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	authConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.AuthPort})
	if err != nil {
		return fmt.Errorf("bind auth port %d: %w", s.cfg.AuthPort, err)
	}
	acctConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.AcctPort})
	if err != nil {
		authConn.Close()
		return fmt.Errorf("bind acct port %d: %w", s.cfg.AcctPort, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	s.authConn = authConn
	s.acctConn = acctConn
	s.cancel = cancel
	s.group = group
	s.started = true

	group.Go(func() error { return s.listen(ctx, authConn, roleAuth) })
	group.Go(func() error { return s.listen(ctx, acctConn, roleAcct) })
	group.Go(func() error { s.sweep(ctx); return nil })

	s.log.Info().
		Str("auth_addr", authConn.LocalAddr().String()).
		Str("acct_addr", acctConn.LocalAddr().String()).
		Msg("radius server started")
	return nil
}

// Stop closes the sockets, cancels the sweeper and waits for every
// in-flight datagram to finish. Stopping a stopped server is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	authConn, acctConn := s.authConn, s.acctConn
	group := s.group
	s.mu.Unlock()

	cancel()
	authConn.Close()
	acctConn.Close()
	group.Wait()
	s.workers.Wait()
	s.log.Info().Msg("radius server stopped")
}

// AuthAddr returns the bound auth listener address, "" when stopped.
// Tests use it to learn the ephemeral port.
func (s *Server) AuthAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authConn == nil {
		return ""
	}
	return s.authConn.LocalAddr().String()
}

// AcctAddr returns the bound accounting listener address
func (s *Server) AcctAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acctConn == nil {
		return ""
	}
	return s.acctConn.LocalAddr().String()
}

func (s *Server) listen(ctx context.Context, conn *net.UDPConn, role socketRole) error {
	buf := make([]byte, maxPacketLen)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("udp read: %w", err)
		}
		raw := append([]byte(nil), buf[:n]...)

		// Blocking acquire: under flood the kernel drops excess
		// datagrams at the socket instead of us growing the heap.
		s.sem <- struct{}{}
		s.workers.Add(1)
		go func(raw []byte, src *net.UDPAddr) {
			defer func() {
				<-s.sem
				s.workers.Done()
			}()
			s.handleDatagram(ctx, conn, role, raw, src)
		}(raw, src)
	}
}

// handleDatagram runs the per-datagram pipeline: rate limit, header
// peek, code gate, NAS resolve, full parse, handler, reply. Exactly
// one event is recorded whatever the outcome.
func (s *Server) handleDatagram(ctx context.Context, conn *net.UDPConn, role socketRole, raw []byte, src *net.UDPAddr) {
	start := time.Now()
	srcIP := src.IP.String()

	ev := Event{Kind: EventAuth, NasAddr: srcIP}
	if role == roleAcct {
		ev.Kind = EventAcct
	}
	defer func() {
		ev.Latency = time.Since(start)
		s.events.Record(ev)
		s.metrics.observe(ev)
		s.logEvent(ev)
	}()

	if !s.limiter.allow(srcIP) {
		ev.Result = ResultRateLimited
		return
	}

	hdr, err := peekHeader(raw)
	if err != nil {
		ev.Result = ResultFailure
		ev.Detail = "malformed: " + err.Error()
		return
	}
	// The datagram may carry padding past the declared length
	raw = raw[:hdr.Length]

	wantCode := radius.CodeAccessRequest
	if role == roleAcct {
		wantCode = radius.CodeAccountingRequest
	}
	if hdr.Code != wantCode {
		ev.Result = ResultFailure
		ev.Detail = "unexpected code " + CodeName(hdr.Code)
		return
	}

	ctx, cancelHandler := context.WithTimeout(ctx, handlerTimeout)
	defer cancelHandler()

	nas, err := s.resolveNas(ctx, srcIP)
	if err != nil {
		ev.Result = ResultFailure
		ev.Detail = "unknown nas"
		return
	}
	ev.TenantID = nas.TenantID

	p, err := radius.Parse(raw, nas.SecretBytes())
	if err != nil {
		ev.Result = ResultFailure
		ev.Detail = "parse: " + err.Error()
		return
	}

	switch role {
	case roleAuth:
		ev.Username = rfc2865.UserName_GetString(p)
		dec := s.handleAccess(ctx, p, raw, nas)
		ev.Detail = dec.reason
		switch dec.action {
		case authAccept:
			ev.Result = ResultSuccess
			resp := p.Response(radius.CodeAccessAccept)
			applyPolicyAttributes(resp, dec.subscriber)
			s.send(conn, src, resp)
		case authReject:
			ev.Result = ResultFailure
			resp := p.Response(radius.CodeAccessReject)
			rfc2865.ReplyMessage_SetString(resp, dec.replyMessage)
			s.send(conn, src, resp)
		default:
			ev.Result = ResultFailure
		}

	case roleAcct:
		out := s.handleAccounting(ctx, p, raw, nas)
		ev.Kind = out.kind
		ev.Result = out.result
		ev.Username = out.username
		ev.SessionID = out.sessionID
		ev.Detail = out.reason
		ev.BytesIn = out.bytesIn
		ev.BytesOut = out.bytesOut
		if out.respond {
			s.send(conn, src, p.Response(radius.CodeAccountingResponse))
		}
	}
}

// resolveNas looks up the NAS for a source address, cache first. The
// cache entry carries the whole row, so the tenant and secret come
// along for free.
func (s *Server) resolveNas(ctx context.Context, srcIP string) (*models.Nas, error) {
	if nas, ok := s.nasCache.get(srcIP); ok {
		s.events.CacheHit()
		return nas, nil
	}
	s.events.CacheMiss()
	nas, err := s.store.FindNasByAddress(ctx, srcIP)
	if err != nil {
		return nil, err
	}
	s.nasCache.put(srcIP, nas)
	return nas, nil
}

// send replies to the address and port the datagram came from, which
// is not necessarily the NAS's canonical RADIUS port.
func (s *Server) send(conn *net.UDPConn, dst *net.UDPAddr, resp *radius.Packet) {
	wire, err := resp.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
		return
	}
	if _, err := conn.WriteToUDP(wire, dst); err != nil {
		s.log.Warn().Err(err).Str("dst", dst.String()).Msg("response send failed")
	}
}

func (s *Server) logEvent(ev Event) {
	var entry *zerolog.Event
	switch ev.Result {
	case ResultSuccess:
		entry = s.log.Info()
	case ResultRateLimited:
		entry = s.log.Debug()
	default:
		entry = s.log.Warn()
	}
	entry.
		Str("kind", string(ev.Kind)).
		Str("result", string(ev.Result)).
		Str("nas", ev.NasAddr).
		Dur("latency", ev.Latency)
	if ev.Username != "" {
		entry.Str("username", ev.Username)
	}
	if ev.SessionID != "" {
		entry.Str("session_id", ev.SessionID)
	}
	if ev.Detail != "" {
		entry.Str("detail", ev.Detail)
	}
	entry.Msg("radius request")
}

// sweep runs the 60-second housekeeping: rate-limiter eviction, NAS
// cache expiry, and re-anchoring the active-session gauge to the
// store so handler-side nudges cannot drift.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.limiter.sweep()
			expired := s.nasCache.sweep()

			countCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
			n, err := s.store.ActiveSessionCount(countCtx)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Msg("active session count failed")
			} else {
				s.events.SetActiveSessions(n)
				if s.metrics != nil {
					s.metrics.ActiveSessions.Set(float64(n))
				}
			}

			s.log.Debug().
				Int("ratelimit_evicted", evicted).
				Int("nas_cache_expired", expired).
				Msg("sweep finished")
		}
	}
}
