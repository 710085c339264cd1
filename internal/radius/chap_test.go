package radius

import (
	"crypto/md5"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPAP_ObscureRecoverRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	auth := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	passwords := []string{
		"",
		"pw",
		"exactly16bytes!!",                 // one full block
		"seventeen bytes..",                // spills into a second block
		strings.Repeat("x", 48),            // three blocks
		strings.Repeat("long-password", 9), // 117 bytes
		strings.Repeat("a", 128),           // protocol maximum
	}
	for _, pw := range passwords {
		obscured := papObscure([]byte(pw), secret, auth)
		assert.Zero(t, len(obscured)%16, "password %q", pw)

		recovered, err := papRecover(obscured, secret, auth)
		require.NoError(t, err, "password %q", pw)
		assert.Equal(t, pw, string(recovered), "password %q", pw)
	}
}

func TestPAPRecover_RejectsBadLength(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cr3t")
	var auth [16]byte

	_, err := papRecover(nil, secret, auth)
	assert.ErrorIs(t, err, errPAPLength)

	_, err = papRecover(make([]byte, 15), secret, auth)
	assert.ErrorIs(t, err, errPAPLength)
}

func TestPAPRecover_WrongKeyYieldsGarbage(t *testing.T) {
	t.Parallel()

	auth := [16]byte{0xAA}
	obscured := papObscure([]byte("pw"), []byte("s3cr3t"), auth)

	recovered, err := papRecover(obscured, []byte("other"), auth)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", string(recovered))
}

func TestCHAP_BuildVerify(t *testing.T) {
	t.Parallel()

	challenge := []byte("0123456789abcdef")
	for _, id := range []byte{0, 1, 7, 255} {
		attr := chapBuild(id, []byte("pw"), challenge)
		require.Len(t, attr, 17)
		assert.Equal(t, id, attr[0])
		assert.True(t, chapVerify(attr, challenge, []byte("pw")), "id %d", id)
	}

	attr := chapBuild(7, []byte("pw"), challenge)
	assert.False(t, chapVerify(attr, challenge, []byte("other")))
	assert.False(t, chapVerify(attr, []byte("different-challenge"), []byte("pw")))
}

func TestCHAPResponse_KnownDigest(t *testing.T) {
	t.Parallel()

	challenge := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	got := chapResponse(0x01, []byte("pw"), challenge)

	h := md5.New()
	h.Write([]byte{0x01})
	h.Write([]byte("pw"))
	h.Write(challenge)
	assert.Equal(t, h.Sum(nil), got[:])
}

func TestCHAPVerify_RejectsBadAttributeLength(t *testing.T) {
	t.Parallel()

	challenge := []byte("c")
	assert.False(t, chapVerify(make([]byte, 16), challenge, []byte("pw")))
	assert.False(t, chapVerify(make([]byte, 18), challenge, []byte("pw")))
	assert.False(t, chapVerify(nil, challenge, []byte("pw")))
}
