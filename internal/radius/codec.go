package radius

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"
)

const (
	headerLen    = 20
	maxPacketLen = 4096
)

var (
	errPacketTooShort = errors.New("packet shorter than header")
	errPacketLength   = errors.New("declared length exceeds datagram")
	errAttrOverrun    = errors.New("attribute overruns packet")
)

// rawHeader is the cheap first-stage decode: code, identifier and
// declared length, read without touching the attribute region. The
// rate limiter and code gate run on this alone; full attribute parsing
// happens only for datagrams that survive both.
type rawHeader struct {
	Code       radius.Code
	Identifier byte
	Length     int
}

func peekHeader(raw []byte) (rawHeader, error) {
	if len(raw) < headerLen {
		return rawHeader{}, errPacketTooShort
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < headerLen || length > len(raw) || length > maxPacketLen {
		return rawHeader{}, errPacketLength
	}
	return rawHeader{
		Code:       radius.Code(raw[0]),
		Identifier: raw[1],
		Length:     length,
	}, nil
}

// walkRawAttributes calls fn for every TLV in raw, passing the type,
// the value bytes and the offset of the value within raw. Stops early
// when fn returns false.
func walkRawAttributes(raw []byte, fn func(typ byte, value []byte, valueOffset int) bool) error {
	hdr, err := peekHeader(raw)
	if err != nil {
		return err
	}
	off := headerLen
	for off < hdr.Length {
		if off+2 > hdr.Length {
			return errAttrOverrun
		}
		typ := raw[off]
		length := int(raw[off+1])
		if length < 2 || off+length > hdr.Length {
			return errAttrOverrun
		}
		if !fn(typ, raw[off+2:off+length], off+2) {
			return nil
		}
		off += length
	}
	return nil
}

// verifyAccountingRequestAuthenticator checks the RFC 2866 request
// authenticator: MD5 over the header with the authenticator field
// zeroed, the attributes, and the shared secret. The same rule covers
// Disconnect-Request and CoA-Request (RFC 5176).
func verifyAccountingRequestAuthenticator(raw, secret []byte) bool {
	hdr, err := peekHeader(raw)
	if err != nil {
		return false
	}
	sum := requestAuthenticatorHash(raw[:hdr.Length], secret)
	return subtle.ConstantTimeCompare(sum[:], raw[4:20]) == 1
}

func requestAuthenticatorHash(raw, secret []byte) [16]byte {
	var zero [16]byte
	h := md5.New()
	h.Write(raw[0:4])
	h.Write(zero[:])
	h.Write(raw[20:])
	h.Write(secret)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// verifyResponseAuthenticator checks a reply against the authenticator
// of the request it answers: MD5(code ‖ id ‖ len ‖ request-auth ‖
// attrs ‖ secret). Used by the CoA client on ACK/NAK packets.
func verifyResponseAuthenticator(raw []byte, requestAuth [16]byte, secret []byte) bool {
	hdr, err := peekHeader(raw)
	if err != nil {
		return false
	}
	h := md5.New()
	h.Write(raw[0:4])
	h.Write(requestAuth[:])
	h.Write(raw[20:hdr.Length])
	h.Write(secret)
	return subtle.ConstantTimeCompare(h.Sum(nil), raw[4:20]) == 1
}

// verifyMessageAuthenticator validates attribute 80 when present.
// Returns (present, valid): absent attributes are not an error; a
// present attribute that fails HMAC means the datagram must be
// silently dropped.
func verifyMessageAuthenticator(raw, secret []byte) (present, valid bool) {
	var offset int
	var received []byte
	err := walkRawAttributes(raw, func(typ byte, value []byte, valueOffset int) bool {
		if radius.Type(typ) == rfc2869.MessageAuthenticator_Type && len(value) == 16 {
			present = true
			received = value
			offset = valueOffset
			return false
		}
		return true
	})
	if err != nil {
		return present, false
	}
	if !present {
		return false, true
	}

	hdr, _ := peekHeader(raw)
	scratch := make([]byte, hdr.Length)
	copy(scratch, raw[:hdr.Length])
	for i := 0; i < 16; i++ {
		scratch[offset+i] = 0
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(scratch)
	return true, hmac.Equal(mac.Sum(nil), received)
}

// stampMessageAuthenticator appends attribute 80 and fills it with the
// HMAC-MD5 of the encoded packet. The attribute must be stamped last;
// adding more attributes afterwards invalidates it.
func stampMessageAuthenticator(p *radius.Packet) error {
	rfc2869.MessageAuthenticator_Set(p, make([]byte, 16))
	raw, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encode for message-authenticator: %w", err)
	}

	mac := hmac.New(md5.New, p.Secret)
	mac.Write(raw)
	return rfc2869.MessageAuthenticator_Set(p, mac.Sum(nil))
}

// rawAttr returns the undecoded value of the first attribute of the
// given type. Generated getters decrypt or convert; this one hands
// back the wire bytes.
func rawAttr(p *radius.Packet, t radius.Type) ([]byte, bool) {
	for _, avp := range p.Attributes {
		if avp.Type == t {
			return []byte(avp.Attribute), true
		}
	}
	return nil, false
}

// vendorAttr wraps a vendor payload in the Vendor-Specific (26)
// framing: 4-byte enterprise number, then vendor-type, vendor-length
// and the value.
func vendorAttr(vendorID uint32, vendorType byte, value []byte) radius.Attribute {
	data := make([]byte, 6+len(value))
	binary.BigEndian.PutUint32(data[0:4], vendorID)
	data[4] = vendorType
	data[5] = byte(len(value) + 2)
	copy(data[6:], value)
	return radius.Attribute(data)
}

// addMikrotikAttr appends one MikroTik VSA to a packet
func addMikrotikAttr(p *radius.Packet, vendorType byte, value []byte) {
	p.Add(rfc2865.VendorSpecific_Type, vendorAttr(MikrotikVendorID, vendorType, value))
}

// addMikrotikUint32 appends a MikroTik VSA with a 4-byte big-endian value
func addMikrotikUint32(p *radius.Packet, vendorType byte, value uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, value)
	addMikrotikAttr(p, vendorType, v)
}

// vendorAttrValue is one sub-attribute surfaced from a type-26
// container, tagged with its enterprise number.
type vendorAttrValue struct {
	VendorID uint32
	Type     byte
	Value    []byte
}

// vendorAttrs descends one level into every Vendor-Specific attribute
// of a parsed packet. Containers too short to carry the vendor header,
// and sub-TLVs that overrun their container, are skipped rather than
// failing the whole packet.
func vendorAttrs(p *radius.Packet) []vendorAttrValue {
	var out []vendorAttrValue
	for _, avp := range p.Attributes {
		if avp.Type != rfc2865.VendorSpecific_Type {
			continue
		}
		data := []byte(avp.Attribute)
		if len(data) < 6 {
			continue
		}
		vendorID := binary.BigEndian.Uint32(data[0:4])
		rest := data[4:]
		for len(rest) >= 2 {
			vt := rest[0]
			vl := int(rest[1])
			if vl < 2 || vl > len(rest) {
				break
			}
			out = append(out, vendorAttrValue{
				VendorID: vendorID,
				Type:     vt,
				Value:    rest[2:vl],
			})
			rest = rest[vl:]
		}
	}
	return out
}

// mikrotikAttrValue returns the first MikroTik sub-attribute of the
// given vendor-type.
func mikrotikAttrValue(p *radius.Packet, vendorType byte) ([]byte, bool) {
	for _, va := range vendorAttrs(p) {
		if va.VendorID == MikrotikVendorID && va.Type == vendorType {
			return va.Value, true
		}
	}
	return nil, false
}

// splitDataCap splits a byte cap across the 32-bit total-limit
// attribute and its gigawords companion: low = cap mod 2³²,
// giga = cap div 2³².
func splitDataCap(capBytes int64) (low, giga uint32) {
	return uint32(capBytes & 0xFFFFFFFF), uint32(uint64(capBytes) >> 32)
}

// combineGigawords reconstructs a 64-bit counter from the 32-bit
// octets attribute and its gigawords companion.
func combineGigawords(low, giga uint32) int64 {
	return int64(low) + int64(giga)<<32
}
