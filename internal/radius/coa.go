package radius

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/jazanet/backend/internal/models"
)

const coaTimeout = 5 * time.Second

// ErrNoActiveSessions is returned by DisconnectSubscriber when the
// subscriber has nothing to disconnect.
var ErrNoActiveSessions = errors.New("no active sessions")

// CoAStatus classifies the outcome of a CoA or Disconnect exchange
type CoAStatus int

const (
	CoAAck CoAStatus = iota
	CoANak
	CoATimeout
	CoATransportError
)

func (s CoAStatus) String() string {
	switch s {
	case CoAAck:
		return "ack"
	case CoANak:
		return "nak"
	case CoATimeout:
		return "timeout"
	default:
		return "transport-error"
	}
}

// CoAResult is what the admin layer sees from a CoA operation. On a
// NAK, ErrorCause carries the RFC 5176 cause when the NAS sent one.
type CoAResult struct {
	Status     CoAStatus `json:"status"`
	ErrorCause uint32    `json:"error_cause,omitempty"`
	Message    string    `json:"message"`
}

// OK reports whether the NAS acknowledged the request
func (r CoAResult) OK() bool { return r.Status == CoAAck }

func (r CoAResult) eventResult() EventResult {
	switch r.Status {
	case CoAAck:
		return ResultSuccess
	case CoANak:
		return ResultFailure
	case CoATimeout:
		return ResultTimeout
	default:
		return ResultError
	}
}

// CoAClient sends RFC 5176 Disconnect and CoA requests to NAS
// devices. Each operation owns its own ephemeral socket, so one slow
// NAS never blocks another.
type CoAClient struct {
	timeout time.Duration
	log     zerolog.Logger
	events  *EventLog
	metrics *Metrics
}

// NewCoAClient wires a client into the event log and metrics. Both
// may be shared with the server, and both may be nil.
func NewCoAClient(log zerolog.Logger, events *EventLog, metrics *Metrics) *CoAClient {
	return &CoAClient{
		timeout: coaTimeout,
		log:     log.With().Str("component", "coa").Logger(),
		events:  events,
		metrics: metrics,
	}
}

// Disconnect asks the NAS to terminate one session
func (c *CoAClient) Disconnect(ctx context.Context, nas *models.Nas, username, sessionID string) CoAResult {
	req := radius.New(radius.CodeDisconnectRequest, nas.SecretBytes())
	rfc2865.UserName_SetString(req, username)
	if id := normalizeSessionID(sessionID); id != "" {
		rfc2866.AcctSessionID_SetString(req, id)
	}
	return c.exchange(ctx, nas, req, EventCoADisconnect, username, sessionID)
}

// ChangeRate pushes a new Mikrotik rate-limit string onto a live
// session without disconnecting it.
func (c *CoAClient) ChangeRate(ctx context.Context, nas *models.Nas, username, sessionID, rateLimit string) CoAResult {
	req := radius.New(radius.CodeCoARequest, nas.SecretBytes())
	rfc2865.UserName_SetString(req, username)
	if id := normalizeSessionID(sessionID); id != "" {
		rfc2866.AcctSessionID_SetString(req, id)
	}
	addMikrotikAttr(req, MikrotikRateLimit, []byte(rateLimit))
	return c.exchange(ctx, nas, req, EventCoAChange, username, sessionID)
}

// DisconnectSubscriber terminates every active session a subscriber
// holds within a tenant, one Disconnect-Request per session. Partial
// failure is normal (a NAS may be offline); the caller gets one
// result per session in session order.
func (c *CoAClient) DisconnectSubscriber(ctx context.Context, st Store, tenantID uint, username string) ([]CoAResult, error) {
	sessions, err := st.ActiveSessionsForUsername(ctx, tenantID, username)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, ErrNoActiveSessions
	}

	results := make([]CoAResult, 0, len(sessions))
	for _, sess := range sessions {
		nas, err := st.FindNasByID(ctx, tenantID, sess.NasID)
		if err != nil {
			results = append(results, CoAResult{
				Status:  CoATransportError,
				Message: "nas lookup failed for session " + sess.AcctSessionID,
			})
			continue
		}
		results = append(results, c.Disconnect(ctx, nas, sess.Username, sess.AcctSessionID))
	}
	return results, nil
}

func (c *CoAClient) exchange(ctx context.Context, nas *models.Nas, req *radius.Packet, kind EventKind, username, sessionID string) CoAResult {
	start := time.Now()
	res := c.send(ctx, nas, req)

	ev := Event{
		Kind:      kind,
		Result:    res.eventResult(),
		Username:  username,
		SessionID: sessionID,
		NasAddr:   nas.IPAddress,
		TenantID:  nas.TenantID,
		Detail:    res.Message,
		Latency:   time.Since(start),
	}
	c.events.Record(ev)
	c.metrics.observe(ev)

	c.log.Info().
		Str("op", string(kind)).
		Str("nas", nasCoAAddr(nas)).
		Str("username", username).
		Str("session_id", sessionID).
		Str("status", res.Status.String()).
		Str("message", res.Message).
		Msg("coa exchange finished")
	return res
}

// send performs one request/response exchange. Replies with a wrong
// identifier or a bad response authenticator are ignored and the wait
// continues until the deadline.
func (c *CoAClient) send(ctx context.Context, nas *models.Nas, req *radius.Packet) CoAResult {
	wire, err := req.Encode()
	if err != nil {
		return CoAResult{Status: CoATransportError, Message: "encode: " + err.Error()}
	}
	var reqAuth [16]byte
	copy(reqAuth[:], wire[4:20])

	addr := nasCoAAddr(nas)
	conn, err := net.DialTimeout("udp", addr, c.timeout)
	if err != nil {
		return CoAResult{Status: CoATransportError, Message: "dial " + addr + ": " + err.Error()}
	}
	defer conn.Close()

	// An abandoned context closes the socket; a reply arriving after
	// that is dropped with the connection.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(wire); err != nil {
		return CoAResult{Status: CoATransportError, Message: "send: " + err.Error()}
	}

	buf := make([]byte, maxPacketLen)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return CoAResult{Status: CoATransportError, Message: "cancelled"}
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return CoAResult{Status: CoATimeout, Message: "timed out"}
			}
			return CoAResult{Status: CoATransportError, Message: err.Error()}
		}
		raw := append([]byte(nil), buf[:n]...)

		hdr, err := peekHeader(raw)
		if err != nil {
			c.log.Debug().Err(err).Str("nas", addr).Msg("malformed coa reply")
			continue
		}
		if hdr.Identifier != req.Identifier {
			c.log.Debug().
				Uint8("want", req.Identifier).
				Uint8("got", hdr.Identifier).
				Str("nas", addr).
				Msg("coa reply identifier mismatch")
			continue
		}
		if !verifyResponseAuthenticator(raw, reqAuth, req.Secret) {
			c.log.Warn().Str("nas", addr).Msg("coa reply failed authenticator check")
			continue
		}

		resp, err := radius.Parse(raw, req.Secret)
		if err != nil {
			c.log.Debug().Err(err).Str("nas", addr).Msg("coa reply parse failed")
			continue
		}
		return classifyCoAResponse(resp)
	}
}

func classifyCoAResponse(resp *radius.Packet) CoAResult {
	switch resp.Code {
	case radius.CodeDisconnectACK, radius.CodeCoAACK:
		return CoAResult{Status: CoAAck, Message: "acknowledged"}
	case radius.CodeDisconnectNAK, radius.CodeCoANAK:
		res := CoAResult{Status: CoANak, Message: "request rejected"}
		if cause, ok := errorCauseOf(resp); ok {
			res.ErrorCause = cause
			res.Message = ErrorCauseName(cause)
		}
		return res
	default:
		return CoAResult{
			Status:  CoATransportError,
			Message: fmt.Sprintf("unexpected response %s", CodeName(resp.Code)),
		}
	}
}

// errorCauseOf pulls the RFC 5176 Error-Cause out of a NAK
func errorCauseOf(p *radius.Packet) (uint32, bool) {
	v, ok := rawAttr(p, errorCauseAttr)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// normalizeSessionID lowercases the id and strips a 0x prefix.
// RouterOS matches session ids case-sensitively and reports its own
// in lowercase hex without the prefix.
func normalizeSessionID(sessionID string) string {
	if strings.HasPrefix(sessionID, "0x") || strings.HasPrefix(sessionID, "0X") {
		sessionID = sessionID[2:]
	}
	return strings.ToLower(sessionID)
}

// nasCoAAddr picks the address CoA traffic should go to. A NAS
// reached over a management VPN is dialed on its VPN address.
func nasCoAAddr(nas *models.Nas) string {
	host := nas.IPAddress
	if nas.VpnIPAddress != "" {
		host = nas.VpnIPAddress
	}
	port := nas.CoAPort
	if port == 0 {
		port = 3799
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
