package radius

import (
	"crypto/md5"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
)

// rawPacket assembles a datagram with the given header fields and an
// arbitrary attribute region, no authenticator math.
func rawPacket(code, id byte, attrs []byte) []byte {
	p := make([]byte, headerLen+len(attrs))
	p[0] = code
	p[1] = id
	binary.BigEndian.PutUint16(p[2:4], uint16(len(p)))
	copy(p[20:], attrs)
	return p
}

func TestPeekHeader(t *testing.T) {
	t.Parallel()

	req := radius.New(radius.CodeAccessRequest, []byte("s3cr3t"))
	req.Identifier = 7
	rfc2865.UserName_SetString(req, "alice")
	raw, err := req.Encode()
	require.NoError(t, err)

	hdr, err := peekHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, radius.CodeAccessRequest, hdr.Code)
	assert.Equal(t, byte(7), hdr.Identifier)
	assert.Equal(t, len(raw), hdr.Length)

	// trailing padding past the declared length is allowed
	padded := append(append([]byte(nil), raw...), 0, 0, 0)
	hdr, err = peekHeader(padded)
	require.NoError(t, err)
	assert.Equal(t, len(raw), hdr.Length)
}

func TestPeekHeader_Malformed(t *testing.T) {
	t.Parallel()

	_, err := peekHeader(make([]byte, 10))
	assert.ErrorIs(t, err, errPacketTooShort)

	// declared length below the fixed header
	short := rawPacket(1, 1, nil)
	binary.BigEndian.PutUint16(short[2:4], 10)
	_, err = peekHeader(short)
	assert.ErrorIs(t, err, errPacketLength)

	// declared length beyond the datagram
	long := rawPacket(1, 1, nil)
	binary.BigEndian.PutUint16(long[2:4], 100)
	_, err = peekHeader(long)
	assert.ErrorIs(t, err, errPacketLength)

	// declared length beyond the protocol maximum
	huge := make([]byte, 5000)
	huge[0] = 1
	binary.BigEndian.PutUint16(huge[2:4], 5000)
	_, err = peekHeader(huge)
	assert.ErrorIs(t, err, errPacketLength)
}

func TestWalkRawAttributes(t *testing.T) {
	t.Parallel()

	req := radius.New(radius.CodeAccessRequest, []byte("s3cr3t"))
	rfc2865.UserName_SetString(req, "alice")
	rfc2865.CallingStationID_SetString(req, "AA:BB:CC:DD:EE:FF")
	raw, err := req.Encode()
	require.NoError(t, err)

	var types []byte
	var values [][]byte
	err = walkRawAttributes(raw, func(typ byte, value []byte, _ int) bool {
		types = append(types, typ)
		values = append(values, append([]byte(nil), value...))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 31}, types) // User-Name, Calling-Station-Id
	assert.Equal(t, []byte("alice"), values[0])
	assert.Equal(t, []byte("AA:BB:CC:DD:EE:FF"), values[1])

	// early stop after the first attribute
	seen := 0
	err = walkRawAttributes(raw, func(byte, []byte, int) bool {
		seen++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestWalkRawAttributes_Overrun(t *testing.T) {
	t.Parallel()

	// attribute length byte below the TLV minimum
	bad := rawPacket(1, 1, []byte{1, 1})
	err := walkRawAttributes(bad, func(byte, []byte, int) bool { return true })
	assert.ErrorIs(t, err, errAttrOverrun)

	// attribute claiming more bytes than the packet holds
	bad = rawPacket(1, 1, []byte{1, 7, 'a'})
	err = walkRawAttributes(bad, func(byte, []byte, int) bool { return true })
	assert.ErrorIs(t, err, errAttrOverrun)
}

func TestVerifyAccountingRequestAuthenticator(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	req := radius.New(radius.CodeAccountingRequest, secret)
	rfc2866.AcctStatusType_Set(req, rfc2866.AcctStatusType_Value_Start)
	rfc2866.AcctSessionID_SetString(req, "81000001")
	raw, err := req.Encode()
	require.NoError(t, err)

	assert.True(t, verifyAccountingRequestAuthenticator(raw, secret))
	assert.False(t, verifyAccountingRequestAuthenticator(raw, []byte("wrong")))

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0x01
	assert.False(t, verifyAccountingRequestAuthenticator(tampered, secret))
}

func TestVerifyResponseAuthenticator(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	req := radius.New(radius.CodeAccessRequest, secret)
	rfc2865.UserName_SetString(req, "alice")

	resp := req.Response(radius.CodeAccessAccept)
	rfc2865.ReplyMessage_SetString(resp, "ok")
	raw, err := resp.Encode()
	require.NoError(t, err)

	assert.True(t, verifyResponseAuthenticator(raw, req.Authenticator, secret))
	assert.False(t, verifyResponseAuthenticator(raw, [16]byte{}, secret))
	assert.False(t, verifyResponseAuthenticator(raw, req.Authenticator, []byte("wrong")))

	// the authenticator is MD5(header ‖ request-auth ‖ attrs ‖ secret)
	h := md5.New()
	h.Write(raw[0:4])
	h.Write(req.Authenticator[:])
	h.Write(raw[20:])
	h.Write(secret)
	assert.Equal(t, h.Sum(nil), raw[4:20])
}

func TestMessageAuthenticator_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	req := radius.New(radius.CodeAccessRequest, secret)
	rfc2865.UserName_SetString(req, "alice")

	// no attribute at all is fine
	raw, err := req.Encode()
	require.NoError(t, err)
	present, valid := verifyMessageAuthenticator(raw, secret)
	assert.False(t, present)
	assert.True(t, valid)

	require.NoError(t, stampMessageAuthenticator(req))
	raw, err = req.Encode()
	require.NoError(t, err)

	present, valid = verifyMessageAuthenticator(raw, secret)
	assert.True(t, present)
	assert.True(t, valid)

	// flipping any covered byte breaks the HMAC
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0x01
	present, valid = verifyMessageAuthenticator(tampered, secret)
	assert.True(t, present)
	assert.False(t, valid)

	present, valid = verifyMessageAuthenticator(raw, []byte("wrong"))
	assert.True(t, present)
	assert.False(t, valid)
}

func TestCodec_StructuralRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")

	access := radius.New(radius.CodeAccessRequest, secret)
	rfc2865.UserName_SetString(access, "alice")
	rfc2865.CallingStationID_SetString(access, "AA:BB:CC:DD:EE:FF")
	addMikrotikAttr(access, MikrotikRateLimit, []byte("10M/5M"))

	acct := radius.New(radius.CodeAccountingRequest, secret)
	rfc2866.AcctStatusType_Set(acct, rfc2866.AcctStatusType_Value_Stop)
	rfc2866.AcctSessionID_SetString(acct, "81000001")
	rfc2866.AcctInputOctets_Set(acct, 1234)

	for _, req := range []*radius.Packet{access, acct} {
		raw, err := req.Encode()
		require.NoError(t, err)

		parsed, err := radius.Parse(raw, secret)
		require.NoError(t, err)
		again, err := parsed.Encode()
		require.NoError(t, err)
		assert.Equal(t, raw, again)
	}
}

func TestVendorAttrs(t *testing.T) {
	t.Parallel()

	p := radius.New(radius.CodeAccessAccept, []byte("s3cr3t"))
	addMikrotikAttr(p, MikrotikRateLimit, []byte("10M/5M"))
	addMikrotikUint32(p, MikrotikTotalLimit, 123456)
	p.Add(rfc2865.VendorSpecific_Type, vendorAttr(9, 1, []byte("cisco"))) // different vendor

	vas := vendorAttrs(p)
	require.Len(t, vas, 3)
	assert.Equal(t, MikrotikVendorID, vas[0].VendorID)
	assert.Equal(t, MikrotikRateLimit, vas[0].Type)
	assert.Equal(t, []byte("10M/5M"), vas[0].Value)
	assert.Equal(t, uint32(9), vas[2].VendorID)

	rate, ok := mikrotikAttrValue(p, MikrotikRateLimit)
	require.True(t, ok)
	assert.Equal(t, []byte("10M/5M"), rate)

	limit, ok := mikrotikAttrValue(p, MikrotikTotalLimit)
	require.True(t, ok)
	require.Len(t, limit, 4)
	assert.Equal(t, uint32(123456), binary.BigEndian.Uint32(limit))

	_, ok = mikrotikAttrValue(p, MikrotikAddressList)
	assert.False(t, ok)
}

func TestVendorAttrs_Malformed(t *testing.T) {
	t.Parallel()

	p := radius.New(radius.CodeAccessAccept, []byte("s3cr3t"))

	// container shorter than the vendor header
	p.Add(rfc2865.VendorSpecific_Type, radius.Attribute([]byte{0, 0, 1, 2, 3}))

	// sub-attribute claiming more bytes than the container holds
	overrun := make([]byte, 7)
	binary.BigEndian.PutUint32(overrun[0:4], MikrotikVendorID)
	overrun[4] = MikrotikRateLimit
	overrun[5] = 0xFF
	overrun[6] = 'x'
	p.Add(rfc2865.VendorSpecific_Type, radius.Attribute(overrun))

	assert.Empty(t, vendorAttrs(p))
}

func TestSplitDataCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		capBytes int64
		low      uint32
		giga     uint32
	}{
		{0, 0, 0},
		{1000, 1000, 0},
		{1<<32 - 1, 0xFFFFFFFF, 0},
		{1 << 32, 0, 1},
		{5 << 32, 0, 5}, // 20 GiB cap crosses into pure gigawords
		{5<<32 + 123, 123, 5},
	}
	for _, tt := range tests {
		low, giga := splitDataCap(tt.capBytes)
		assert.Equal(t, tt.low, low, "cap %d", tt.capBytes)
		assert.Equal(t, tt.giga, giga, "cap %d", tt.capBytes)
		assert.Equal(t, tt.capBytes, combineGigawords(low, giga))
	}
}

func TestCombineGigawords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(4294967396), combineGigawords(100, 1)) // 2^32 + 100
	assert.Equal(t, int64(4294967295), combineGigawords(0xFFFFFFFF, 0))
	assert.Equal(t, int64(0), combineGigawords(0, 0))
}
