package radius

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"

	"github.com/jazanet/backend/internal/models"
)

// acctOutcome is the result of an Accounting-Request. respond=false
// means silent drop (bad authenticator); everything else gets an
// Accounting-Response, including store failures, so the NAS never
// accumulates a retry queue.
type acctOutcome struct {
	respond   bool
	kind      EventKind
	result    EventResult
	reason    string
	username  string
	sessionID string

	// final reconstructed counters, set on Stop only so the running
	// byte totals are not inflated by cumulative interims
	bytesIn  int64
	bytesOut int64
}

func acctOK(kind EventKind, username, sessionID string) acctOutcome {
	return acctOutcome{respond: true, kind: kind, result: ResultSuccess, username: username, sessionID: sessionID}
}

func acctFail(kind EventKind, reason, username, sessionID string) acctOutcome {
	return acctOutcome{respond: true, kind: kind, result: ResultFailure, reason: reason, username: username, sessionID: sessionID}
}

// handleAccounting dispatches an Accounting-Request by status type.
// raw is the original datagram; the request authenticator is verified
// against it before anything is committed.
func (s *Server) handleAccounting(ctx context.Context, p *radius.Packet, raw []byte, nas *models.Nas) acctOutcome {
	secret := nas.SecretBytes()
	if !bytes.Equal(p.Secret, secret) {
		return acctOutcome{kind: EventAcct, result: ResultFailure, reason: "shared secret mismatch"}
	}
	if present, ok := verifyMessageAuthenticator(raw, secret); present && !ok {
		return acctOutcome{kind: EventAcct, result: ResultFailure, reason: "message-authenticator mismatch"}
	}
	// A bad request authenticator still gets a response so the NAS
	// does not retransmit forever, but nothing is committed.
	if !verifyAccountingRequestAuthenticator(raw, secret) {
		return acctFail(EventAcct, "request authenticator mismatch", rfc2865.UserName_GetString(p), rfc2866.AcctSessionID_GetString(p))
	}

	statusType := rfc2866.AcctStatusType_Get(p)
	sessionID := rfc2866.AcctSessionID_GetString(p)
	username := rfc2865.UserName_GetString(p)

	switch statusType {
	case rfc2866.AcctStatusType_Value_Start:
		return s.acctStart(ctx, p, nas, sessionID, username)
	case rfc2866.AcctStatusType_Value_InterimUpdate:
		return s.acctInterim(ctx, p, sessionID, username)
	case rfc2866.AcctStatusType_Value_Stop:
		return s.acctStop(ctx, p, sessionID, username)
	case rfc2866.AcctStatusType_Value_AccountingOn, rfc2866.AcctStatusType_Value_AccountingOff:
		return s.acctSweep(ctx, nas)
	default:
		// Reply anyway; an unanswered NAS retransmits forever.
		return acctFail(EventAcct, fmt.Sprintf("unhandled status type %d", statusType), username, sessionID)
	}
}

func (s *Server) acctStart(ctx context.Context, p *radius.Packet, nas *models.Nas, sessionID, username string) acctOutcome {
	if sessionID == "" {
		return acctFail(EventAcctStart, "missing Acct-Session-Id", username, sessionID)
	}

	start := SessionStart{
		AcctSessionID:    sessionID,
		TenantID:         nas.TenantID,
		NasID:            nas.ID,
		Username:         username,
		CallingStationID: rfc2865.CallingStationID_GetString(p),
		StartTime:        time.Now().UTC(),
	}
	if ip := rfc2865.FramedIPAddress_Get(p); ip != nil {
		start.FramedIP = ip.String()
	}

	// Link the subscriber row when it resolves; a session for a
	// username we no longer know is still worth recording.
	if sub, err := s.lookupSubscriber(ctx, nas.TenantID, username); err == nil {
		start.SubscriberID = &sub.ID
	} else if !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Str("username", username).Msg("subscriber link lookup failed")
	}

	if err := s.store.UpsertSessionStart(ctx, start); err != nil {
		return acctFail(EventAcctStart, "session upsert: "+err.Error(), username, sessionID)
	}
	s.events.AddActiveSessions(1)
	s.touchNas(ctx, nas)

	if start.SubscriberID != nil {
		mac := start.CallingStationID
		ip := start.FramedIP
		go func(id uint) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.TouchSubscriberSeen(ctx, id, ip, mac, true); err != nil {
				s.log.Debug().Err(err).Str("username", username).Msg("last-seen update failed")
			}
		}(*start.SubscriberID)
	}

	return acctOK(EventAcctStart, username, sessionID)
}

func (s *Server) acctInterim(ctx context.Context, p *radius.Packet, sessionID, username string) acctOutcome {
	interim := SessionInterim{
		AcctSessionID: sessionID,
		InputOctets:   acctInputBytes(p),
		OutputOctets:  acctOutputBytes(p),
		SessionTime:   int(rfc2866.AcctSessionTime_Get(p)),
	}
	if ip := rfc2865.FramedIPAddress_Get(p); ip != nil {
		interim.FramedIP = ip.String()
	}

	matched, err := s.store.UpdateSessionInterim(ctx, interim)
	if err != nil {
		return acctFail(EventAcctInterim, "interim update: "+err.Error(), username, sessionID)
	}
	if !matched {
		// No live row. The NAS will send a Stop eventually; do not
		// fabricate a session from an update.
		s.log.Info().Str("session_id", sessionID).Str("username", username).
			Msg("interim for unknown or closed session")
	}
	return acctOK(EventAcctInterim, username, sessionID)
}

func (s *Server) acctStop(ctx context.Context, p *radius.Packet, sessionID, username string) acctOutcome {
	stop := SessionStop{
		AcctSessionID: sessionID,
		InputOctets:   acctInputBytes(p),
		OutputOctets:  acctOutputBytes(p),
		SessionTime:   int(rfc2866.AcctSessionTime_Get(p)),
		StopTime:      time.Now().UTC(),
	}
	if cause := rfc2866.AcctTerminateCause_Get(p); cause != 0 {
		stop.TerminateCause = TerminateCauseName(cause)
	}

	if err := s.store.CloseSession(ctx, stop); err != nil {
		return acctFail(EventAcctStop, "session close: "+err.Error(), username, sessionID)
	}
	s.events.AddActiveSessions(-1)

	out := acctOK(EventAcctStop, username, sessionID)
	out.bytesIn = stop.InputOctets
	out.bytesOut = stop.OutputOctets
	return out
}

// acctSweep handles Accounting-On and Accounting-Off: the NAS has
// rebooted or is about to, so every session it owned is dead.
func (s *Server) acctSweep(ctx context.Context, nas *models.Nas) acctOutcome {
	closed, err := s.store.CloseAllSessionsForNas(ctx, nas.TenantID, nas.ID, CauseNasReboot)
	if err != nil {
		return acctFail(EventAcctSweep, "session sweep: "+err.Error(), "", "")
	}
	s.events.AddActiveSessions(-closed)
	s.touchNas(ctx, nas)

	out := acctOK(EventAcctSweep, "", "")
	out.reason = fmt.Sprintf("closed %d sessions", closed)
	return out
}

func (s *Server) touchNas(ctx context.Context, nas *models.Nas) {
	if err := s.store.TouchNas(ctx, nas.ID, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Uint("nas_id", nas.ID).Msg("nas last-seen update failed")
	}
}

// acctInputBytes reconstructs the 64-bit input counter from the low
// 32 bits plus the gigawords attribute.
func acctInputBytes(p *radius.Packet) int64 {
	return combineGigawords(
		uint32(rfc2866.AcctInputOctets_Get(p)),
		uint32(rfc2869.AcctInputGigawords_Get(p)),
	)
}

func acctOutputBytes(p *radius.Packet) int64 {
	return combineGigawords(
		uint32(rfc2866.AcctOutputOctets_Get(p)),
		uint32(rfc2869.AcctOutputGigawords_Get(p)),
	)
}
