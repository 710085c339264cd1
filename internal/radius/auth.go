package radius

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"

	"github.com/jazanet/backend/internal/models"
)

const (
	idleTimeoutSeconds     = 300
	interimIntervalSeconds = 300
)

// Reply-Message strings sent to the NAS. Credential failures share one
// string so the wire never reveals whether the username or the
// password was wrong.
const (
	msgInvalidCredentials = "Invalid username or password"
	msgAccountExpired     = "Account expired, please renew your subscription"
	msgAccountSuspended   = "Account suspended"
	msgAccountDisabled    = "Account disabled"
	msgVoucherMACLocked   = "voucher locked to another device"
)

type authAction int

const (
	authDrop authAction = iota
	authReject
	authAccept
)

// authDecision is the outcome of an Access-Request. reason is for logs
// and events only; replyMessage is what the NAS sees on a reject.
type authDecision struct {
	action       authAction
	reason       string
	replyMessage string
	method       string
	subscriber   *SubscriberInfo
}

func dropAuth(reason string) authDecision {
	return authDecision{action: authDrop, reason: reason}
}

func rejectAuth(reason, replyMessage string) authDecision {
	return authDecision{action: authReject, reason: reason, replyMessage: replyMessage}
}

// handleAccess decides an Access-Request. The caller has already
// matched the NAS by source address and parsed the datagram with its
// secret; raw is the original datagram for HMAC verification.
func (s *Server) handleAccess(ctx context.Context, p *radius.Packet, raw []byte, nas *models.Nas) authDecision {
	secret := nas.SecretBytes()
	if !bytes.Equal(p.Secret, secret) {
		return dropAuth("shared secret mismatch")
	}

	if present, ok := verifyMessageAuthenticator(raw, secret); present && !ok {
		return dropAuth("message-authenticator mismatch")
	}

	username := rfc2865.UserName_GetString(p)
	if username == "" {
		return rejectAuth("missing username", msgInvalidCredentials)
	}

	sub, err := s.lookupSubscriber(ctx, nas.TenantID, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejectAuth("unknown subscriber", msgInvalidCredentials)
		}
		// Transient store failure: stay silent and let the NAS
		// retransmit rather than reject a valid subscriber.
		return dropAuth("subscriber lookup: " + err.Error())
	}

	method, ok := verifyCredentials(p, secret, sub.Password)
	if method == "" {
		return rejectAuth("no password attribute", msgInvalidCredentials)
	}
	if !ok {
		return rejectAuth("wrong password ("+method+")", msgInvalidCredentials)
	}

	switch sub.EffectiveStatus() {
	case models.SubscriberStatusActive:
	case models.SubscriberStatusExpired:
		return rejectAuth("account expired", msgAccountExpired)
	case models.SubscriberStatusSuspended:
		return rejectAuth("account suspended", msgAccountSuspended)
	default:
		return rejectAuth("account disabled", msgAccountDisabled)
	}

	callingStationID := rfc2865.CallingStationID_GetString(p)
	if sub.ConnectionType == models.ConnectionHotspot && sub.LockedMAC != "" {
		if canonicalMAC(callingStationID) != canonicalMAC(sub.LockedMAC) {
			return rejectAuth(
				fmt.Sprintf("MAC lock mismatch (want %s, got %s)", sub.LockedMAC, callingStationID),
				msgVoucherMACLocked,
			)
		}
	}

	var framedIP string
	if ip := rfc2865.FramedIPAddress_Get(p); ip != nil {
		framedIP = ip.String()
	}
	go func(id uint, user, ip, mac string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchSubscriberSeen(ctx, id, ip, mac, true); err != nil {
			s.log.Debug().Err(err).Str("username", user).Msg("last-seen update failed")
		}
	}(sub.ID, sub.Username, framedIP, callingStationID)

	return authDecision{action: authAccept, method: method, subscriber: sub}
}

// lookupSubscriber serves auth lookups from Redis when possible and
// falls back to the store, refilling the cache on the way out.
func (s *Server) lookupSubscriber(ctx context.Context, tenantID uint, username string) (*SubscriberInfo, error) {
	if info := s.subCache.get(ctx, tenantID, username); info != nil {
		return info, nil
	}
	sub, err := s.store.FindSubscriberByUsername(ctx, tenantID, username)
	if err != nil {
		return nil, err
	}
	info := subscriberInfoFromModel(sub)
	s.subCache.put(ctx, info)
	return info, nil
}

// verifyCredentials checks CHAP first, then PAP. The returned method
// is "" when the request carried neither password attribute.
func verifyCredentials(p *radius.Packet, secret []byte, password string) (method string, ok bool) {
	if chapPassword, present := rawAttr(p, rfc2865.CHAPPassword_Type); present {
		challenge, _ := rawAttr(p, rfc2865.CHAPChallenge_Type)
		if len(challenge) == 0 {
			challenge = p.Authenticator[:]
		}
		return "chap", chapVerify(chapPassword, challenge, []byte(password))
	}
	if obscured, present := rawAttr(p, rfc2865.UserPassword_Type); present {
		recovered, err := papRecover(obscured, secret, p.Authenticator)
		if err != nil {
			return "pap", false
		}
		return "pap", subtle.ConstantTimeCompare(recovered, []byte(password)) == 1
	}
	return "", false
}

// applyPolicyAttributes writes the accept attribute set for a
// subscriber onto an Access-Accept.
func applyPolicyAttributes(resp *radius.Packet, sub *SubscriberInfo) {
	rfc2865.ServiceType_Set(resp, rfc2865.ServiceType_Value_FramedUser)
	if sub.ConnectionType == models.ConnectionPPPoE {
		rfc2865.FramedProtocol_Set(resp, rfc2865.FramedProtocol_Value_PPP)
	}

	if sub.HasPackage {
		addMikrotikAttr(resp, MikrotikRateLimit, []byte(rateLimitString(sub)))
		if sub.ConnectionType == models.ConnectionHotspot && sub.SessionMinutes > 0 {
			rfc2865.SessionTimeout_Set(resp, rfc2865.SessionTimeout(sub.SessionMinutes*60))
		}
		if sub.DataCapBytes > 0 {
			low, giga := splitDataCap(sub.DataCapBytes)
			addMikrotikUint32(resp, MikrotikTotalLimit, low)
			if giga > 0 {
				addMikrotikUint32(resp, MikrotikTotalLimitGigawords, giga)
			}
		}
	}

	rfc2865.IdleTimeout_Set(resp, rfc2865.IdleTimeout(idleTimeoutSeconds))
	rfc2869.AcctInterimInterval_Set(resp, rfc2869.AcctInterimInterval(interimIntervalSeconds))
}

// rateLimitString renders the Mikrotik Rate-Limit value, rx/tx from
// the router's point of view, with burst parameters when the package
// defines both.
func rateLimitString(sub *SubscriberInfo) string {
	if sub.BurstUpMbps > 0 && sub.BurstDownMbps > 0 {
		return fmt.Sprintf("%dM/%dM %dM/%dM 0/0 1/1 5",
			sub.UploadMbps, sub.DownloadMbps, sub.BurstUpMbps, sub.BurstDownMbps)
	}
	return fmt.Sprintf("%dM/%dM", sub.UploadMbps, sub.DownloadMbps)
}

// canonicalMAC uppercases and strips everything that is not a hex
// digit, so "aa-bb-cc-dd-ee-ff" and "AA:BB:CC:DD:EE:FF" compare equal.
func canonicalMAC(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
