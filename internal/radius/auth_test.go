package radius

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"

	"github.com/jazanet/backend/internal/models"
)

func papRequest(secret []byte, username, password string) *radius.Packet {
	req := radius.New(radius.CodeAccessRequest, secret)
	if username != "" {
		rfc2865.UserName_SetString(req, username)
	}
	if password != "" {
		rfc2865.UserPassword_SetString(req, password)
	}
	return req
}

// chapRequest builds an Access-Request carrying a CHAP response. A nil
// challenge means the RouterOS shortcut of hashing against the request
// authenticator.
func chapRequest(secret []byte, username, password string, challenge []byte) *radius.Packet {
	req := radius.New(radius.CodeAccessRequest, secret)
	rfc2865.UserName_SetString(req, username)
	c := challenge
	if c == nil {
		c = req.Authenticator[:]
	} else {
		req.Add(rfc2865.CHAPChallenge_Type, radius.Attribute(c))
	}
	req.Add(rfc2865.CHAPPassword_Type, radius.Attribute(chapBuild(1, []byte(password), c)))
	return req
}

func TestHandleAccess_PAPAccept(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(testPackage()))
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "alice", "pw"), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	require.Equal(t, authAccept, dec.action)
	assert.Equal(t, "pap", dec.method)
	require.NotNil(t, dec.subscriber)
	assert.Equal(t, "alice", dec.subscriber.Username)
	assert.True(t, dec.subscriber.HasPackage)

	resp := p.Response(radius.CodeAccessAccept)
	applyPolicyAttributes(resp, dec.subscriber)

	assert.Equal(t, rfc2865.ServiceType_Value_FramedUser, rfc2865.ServiceType_Get(resp))
	assert.Equal(t, rfc2865.FramedProtocol_Value_PPP, rfc2865.FramedProtocol_Get(resp))
	assert.Equal(t, rfc2865.IdleTimeout(300), rfc2865.IdleTimeout_Get(resp))
	assert.Equal(t, rfc2869.AcctInterimInterval(300), rfc2869.AcctInterimInterval_Get(resp))

	rate, ok := mikrotikAttrValue(resp, MikrotikRateLimit)
	require.True(t, ok)
	assert.Equal(t, "10M/5M", string(rate)) // upload/download, router's rx/tx

	_, err := rfc2865.SessionTimeout_Lookup(resp)
	assert.ErrorIs(t, err, radius.ErrNoAttribute)
	_, ok = mikrotikAttrValue(resp, MikrotikTotalLimit)
	assert.False(t, ok)

	// the accept path records last-seen out of band
	require.Eventually(t, func() bool {
		return len(fs.seenCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	seen := fs.seenCalls()[0]
	assert.Equal(t, uint(10), seen.subscriberID)
	assert.True(t, seen.online)
}

func TestHandleAccess_RepeatedRequestSameReply(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(testPackage()))
	srv := newTestServer(fs)

	req := papRequest(nas.SecretBytes(), "alice", "pw")

	var wires [][]byte
	for i := 0; i < 2; i++ {
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)
		require.Equal(t, authAccept, dec.action)

		resp := p.Response(radius.CodeAccessAccept)
		applyPolicyAttributes(resp, dec.subscriber)
		wire, err := resp.Encode()
		require.NoError(t, err)
		wires = append(wires, wire)
	}
	assert.Equal(t, wires[0], wires[1])
}

func TestHandleAccess_CHAPAccept(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(nil))
	srv := newTestServer(fs)

	t.Run("explicit challenge", func(t *testing.T) {
		t.Parallel()
		req := chapRequest(nas.SecretBytes(), "alice", "pw", []byte("0123456789abcdef"))
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)
		require.Equal(t, authAccept, dec.action)
		assert.Equal(t, "chap", dec.method)
	})

	t.Run("authenticator as challenge", func(t *testing.T) {
		t.Parallel()
		req := chapRequest(nas.SecretBytes(), "alice", "pw", nil)
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)
		require.Equal(t, authAccept, dec.action)
		assert.Equal(t, "chap", dec.method)
	})
}

func TestHandleAccess_WrongPassword(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(nil))
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "alice", "nope"), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	require.Equal(t, authReject, dec.action)
	assert.Equal(t, "wrong password (pap)", dec.reason)
	assert.Equal(t, msgInvalidCredentials, dec.replyMessage)
}

func TestHandleAccess_UnknownSubscriber(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "mallory", "pw"), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	require.Equal(t, authReject, dec.action)
	assert.Equal(t, "unknown subscriber", dec.reason)
	// same reply as a bad password, so the wire leaks nothing
	assert.Equal(t, msgInvalidCredentials, dec.replyMessage)
}

func TestHandleAccess_MissingUsername(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "", "pw"), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	require.Equal(t, authReject, dec.action)
	assert.Equal(t, "missing username", dec.reason)
}

func TestHandleAccess_NoPasswordAttribute(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(nil))
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "alice", ""), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	require.Equal(t, authReject, dec.action)
	assert.Equal(t, "no password attribute", dec.reason)
}

func TestHandleAccess_AccountStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(sub *models.Subscriber)
		reason  string
		message string
	}{
		{
			name: "expired overrides stored status",
			mutate: func(sub *models.Subscriber) {
				sub.ExpiresAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
			},
			reason:  "account expired",
			message: msgAccountExpired,
		},
		{
			name: "suspended",
			mutate: func(sub *models.Subscriber) {
				sub.Status = models.SubscriberStatusSuspended
			},
			reason:  "account suspended",
			message: msgAccountSuspended,
		},
		{
			name: "disabled",
			mutate: func(sub *models.Subscriber) {
				sub.Status = models.SubscriberStatusDisabled
			},
			reason:  "account disabled",
			message: msgAccountDisabled,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFakeStore()
			nas := testNas()
			fs.addNas(nas)
			sub := testSubscriber(nil)
			tt.mutate(sub)
			fs.addSubscriber(sub)
			srv := newTestServer(fs)

			// credentials are verified first, so the reject proves the
			// status gate fired, not the password check
			req := chapRequest(nas.SecretBytes(), "alice", "pw", nil)
			p, raw := parseWire(t, req, nas.SecretBytes())
			dec := srv.handleAccess(context.Background(), p, raw, nas)

			require.Equal(t, authReject, dec.action)
			assert.Equal(t, tt.reason, dec.reason)
			assert.Equal(t, tt.message, dec.replyMessage)
		})
	}
}

func TestHandleAccess_HotspotMACLock(t *testing.T) {
	t.Parallel()

	newCarol := func() *models.Subscriber {
		sub := testSubscriber(nil)
		sub.Username = "carol"
		sub.ConnectionType = models.ConnectionHotspot
		sub.LockedMAC = "AA:BB:CC:DD:EE:FF"
		return sub
	}

	t.Run("different device rejected", func(t *testing.T) {
		t.Parallel()
		fs := newFakeStore()
		nas := testNas()
		fs.addNas(nas)
		fs.addSubscriber(newCarol())
		srv := newTestServer(fs)

		req := papRequest(nas.SecretBytes(), "carol", "pw")
		rfc2865.CallingStationID_SetString(req, "aa-bb-cc-dd-ee-00")
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)

		require.Equal(t, authReject, dec.action)
		assert.Equal(t, msgVoucherMACLocked, dec.replyMessage)
	})

	t.Run("same device in another notation accepted", func(t *testing.T) {
		t.Parallel()
		fs := newFakeStore()
		nas := testNas()
		fs.addNas(nas)
		fs.addSubscriber(newCarol())
		srv := newTestServer(fs)

		req := papRequest(nas.SecretBytes(), "carol", "pw")
		rfc2865.CallingStationID_SetString(req, "aa-bb-cc-dd-ee-ff")
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)

		assert.Equal(t, authAccept, dec.action)
	})

	t.Run("lock ignored for pppoe", func(t *testing.T) {
		t.Parallel()
		fs := newFakeStore()
		nas := testNas()
		fs.addNas(nas)
		sub := newCarol()
		sub.ConnectionType = models.ConnectionPPPoE
		fs.addSubscriber(sub)
		srv := newTestServer(fs)

		req := papRequest(nas.SecretBytes(), "carol", "pw")
		rfc2865.CallingStationID_SetString(req, "11-22-33-44-55-66")
		p, raw := parseWire(t, req, nas.SecretBytes())
		dec := srv.handleAccess(context.Background(), p, raw, nas)

		assert.Equal(t, authAccept, dec.action)
	})
}

func TestHandleAccess_MessageAuthenticator(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.addSubscriber(testSubscriber(nil))
	srv := newTestServer(fs)

	req := papRequest(nas.SecretBytes(), "alice", "pw")
	require.NoError(t, stampMessageAuthenticator(req))

	p, raw := parseWire(t, req, nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)
	assert.Equal(t, authAccept, dec.action)

	// a tampered packet is dropped without any reply
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0x01
	p2, err := radius.Parse(tampered, nas.SecretBytes())
	require.NoError(t, err)

	dec = srv.handleAccess(context.Background(), p2, tampered, nas)
	require.Equal(t, authDrop, dec.action)
	assert.Equal(t, "message-authenticator mismatch", dec.reason)
}

func TestHandleAccess_StoreFailureDropsSilently(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	nas := testNas()
	fs.addNas(nas)
	fs.subErr = errors.New("connection refused")
	srv := newTestServer(fs)

	p, raw := parseWire(t, papRequest(nas.SecretBytes(), "alice", "pw"), nas.SecretBytes())
	dec := srv.handleAccess(context.Background(), p, raw, nas)

	// no reject for a healthy subscriber just because the store blinked
	require.Equal(t, authDrop, dec.action)
	assert.Contains(t, dec.reason, "subscriber lookup")
}

func TestApplyPolicyAttributes_HotspotLimits(t *testing.T) {
	t.Parallel()

	pkg := testPackage()
	pkg.SessionMinutes = 60
	pkg.DataCapBytes = 5 << 32
	sub := testSubscriber(pkg)
	sub.ConnectionType = models.ConnectionHotspot
	info := subscriberInfoFromModel(sub)

	resp := radius.New(radius.CodeAccessAccept, []byte("s3cr3t"))
	applyPolicyAttributes(resp, info)

	timeout, err := rfc2865.SessionTimeout_Lookup(resp)
	require.NoError(t, err)
	assert.Equal(t, rfc2865.SessionTimeout(3600), timeout)

	// no PPP framing on hotspot
	_, err = rfc2865.FramedProtocol_Lookup(resp)
	assert.ErrorIs(t, err, radius.ErrNoAttribute)

	low, ok := mikrotikAttrValue(resp, MikrotikTotalLimit)
	require.True(t, ok)
	assert.Equal(t, uint32(0), beUint32(t, low))

	giga, ok := mikrotikAttrValue(resp, MikrotikTotalLimitGigawords)
	require.True(t, ok)
	assert.Equal(t, uint32(5), beUint32(t, giga))
}

func TestApplyPolicyAttributes_SmallCapSkipsGigawords(t *testing.T) {
	t.Parallel()

	pkg := testPackage()
	pkg.DataCapBytes = 1_000_000
	info := subscriberInfoFromModel(testSubscriber(pkg))

	resp := radius.New(radius.CodeAccessAccept, []byte("s3cr3t"))
	applyPolicyAttributes(resp, info)

	low, ok := mikrotikAttrValue(resp, MikrotikTotalLimit)
	require.True(t, ok)
	assert.Equal(t, uint32(1_000_000), beUint32(t, low))

	_, ok = mikrotikAttrValue(resp, MikrotikTotalLimitGigawords)
	assert.False(t, ok)
}

func TestApplyPolicyAttributes_NoPackage(t *testing.T) {
	t.Parallel()

	info := subscriberInfoFromModel(testSubscriber(nil))

	resp := radius.New(radius.CodeAccessAccept, []byte("s3cr3t"))
	applyPolicyAttributes(resp, info)

	_, ok := mikrotikAttrValue(resp, MikrotikRateLimit)
	assert.False(t, ok)

	// housekeeping attributes go out regardless
	assert.Equal(t, rfc2865.IdleTimeout(300), rfc2865.IdleTimeout_Get(resp))
	assert.Equal(t, rfc2869.AcctInterimInterval(300), rfc2869.AcctInterimInterval_Get(resp))
}

func TestRateLimitString(t *testing.T) {
	t.Parallel()

	info := subscriberInfoFromModel(testSubscriber(testPackage()))
	assert.Equal(t, "10M/5M", rateLimitString(info))

	pkg := testPackage()
	pkg.BurstDownloadMbps = 10
	pkg.BurstUploadMbps = 20
	info = subscriberInfoFromModel(testSubscriber(pkg))
	assert.Equal(t, "10M/5M 20M/10M 0/0 1/1 5", rateLimitString(info))

	// a single burst value is not enough for burst mode
	pkg.BurstUploadMbps = 0
	info = subscriberInfoFromModel(testSubscriber(pkg))
	assert.Equal(t, "10M/5M", rateLimitString(info))
}

func TestCanonicalMAC(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AABBCCDDEEFF", canonicalMAC("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "AABBCCDDEEFF", canonicalMAC("AA-BB-CC-DD-EE-FF"))
	assert.Equal(t, "AABBCCDDEEFF", canonicalMAC("aabb.ccdd.eeff"))
	assert.Equal(t, "", canonicalMAC(""))
	assert.NotEqual(t, canonicalMAC("aa:bb:cc:dd:ee:00"), canonicalMAC("aa:bb:cc:dd:ee:ff"))
}

func beUint32(t *testing.T, b []byte) uint32 {
	t.Helper()
	require.Len(t, b, 4)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
