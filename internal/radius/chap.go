package radius

import (
	"bytes"
	"crypto/md5"
	"crypto/subtle"
	"errors"
)

var errPAPLength = errors.New("user-password length not a multiple of 16")

// papObscure hides a PAP password for transit (RFC 2865 §5.2): the
// password is NUL-padded to 16-byte blocks and each block is XORed
// with MD5(secret ‖ previous block), the first previous block being
// the request authenticator.
func papObscure(password, secret []byte, requestAuth [16]byte) []byte {
	blocks := (len(password) + 15) / 16
	if blocks == 0 {
		blocks = 1
	}
	padded := make([]byte, blocks*16)
	copy(padded, password)

	out := make([]byte, len(padded))
	prev := requestAuth[:]
	for i := 0; i < len(padded); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		digest := h.Sum(nil)
		for j := 0; j < 16; j++ {
			out[i+j] = padded[i+j] ^ digest[j]
		}
		prev = out[i : i+16]
	}
	return out
}

// papRecover reverses papObscure and strips the trailing NUL padding
func papRecover(obscured, secret []byte, requestAuth [16]byte) ([]byte, error) {
	if len(obscured) == 0 || len(obscured)%16 != 0 {
		return nil, errPAPLength
	}

	out := make([]byte, len(obscured))
	prev := requestAuth[:]
	for i := 0; i < len(obscured); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		digest := h.Sum(nil)
		for j := 0; j < 16; j++ {
			out[i+j] = obscured[i+j] ^ digest[j]
		}
		prev = obscured[i : i+16]
	}
	return bytes.TrimRight(out, "\x00"), nil
}

// chapResponse computes the expected CHAP response:
// MD5(CHAP-Id ‖ password ‖ challenge).
func chapResponse(chapID byte, password, challenge []byte) [16]byte {
	h := md5.New()
	h.Write([]byte{chapID})
	h.Write(password)
	h.Write(challenge)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// chapBuild produces the 17-byte CHAP-Password attribute value:
// one identifier byte followed by the 16-byte response.
func chapBuild(chapID byte, password, challenge []byte) []byte {
	sum := chapResponse(chapID, password, challenge)
	out := make([]byte, 17)
	out[0] = chapID
	copy(out[1:], sum[:])
	return out
}

// chapVerify checks a CHAP-Password attribute against the stored
// password. The challenge is the CHAP-Challenge attribute when the
// request carries one, otherwise the request authenticator.
func chapVerify(chapPassword, challenge, password []byte) bool {
	if len(chapPassword) != 17 {
		return false
	}
	expected := chapResponse(chapPassword[0], password, challenge)
	return subtle.ConstantTimeCompare(expected[:], chapPassword[1:]) == 1
}
