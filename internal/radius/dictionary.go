package radius

import (
	"fmt"

	"layeh.com/radius"
	"layeh.com/radius/rfc2866"
)

// MikroTik vendor-specific attributes (enterprise number 14988).
// Numbers follow the RouterOS dictionary; only the subset the server
// emits or expects is listed. Unknown VSAs pass through untouched.
const (
	MikrotikVendorID uint32 = 14988

	MikrotikRecvLimit           byte = 1 // per-session download cap, low 32 bits
	MikrotikXmitLimit           byte = 2 // per-session upload cap, low 32 bits
	MikrotikRateLimit           byte = 8 // "rx/tx" queue string, e.g. "10M/5M"
	MikrotikRecvLimitGigawords  byte = 14
	MikrotikXmitLimitGigawords  byte = 15
	MikrotikTotalLimit          byte = 17 // combined up+down cap, low 32 bits
	MikrotikTotalLimitGigawords byte = 18
	MikrotikAddressList         byte = 19
)

// mikrotikAttrNames maps vendor-type to a display name for logs
var mikrotikAttrNames = map[byte]string{
	MikrotikRecvLimit:           "Mikrotik-Recv-Limit",
	MikrotikXmitLimit:           "Mikrotik-Xmit-Limit",
	MikrotikRateLimit:           "Mikrotik-Rate-Limit",
	MikrotikRecvLimitGigawords:  "Mikrotik-Recv-Limit-Gigawords",
	MikrotikXmitLimitGigawords:  "Mikrotik-Xmit-Limit-Gigawords",
	MikrotikTotalLimit:          "Mikrotik-Total-Limit",
	MikrotikTotalLimitGigawords: "Mikrotik-Total-Limit-Gigawords",
	MikrotikAddressList:         "Mikrotik-Address-List",
}

// MikrotikAttrName returns the dictionary name of a vendor-type, or a
// numeric placeholder for types outside the shipped selection.
func MikrotikAttrName(vendorType byte) string {
	if name, ok := mikrotikAttrNames[vendorType]; ok {
		return name
	}
	return fmt.Sprintf("Mikrotik-Attr-%d", vendorType)
}

// Terminate causes stored on session rows. The wire carries the
// RFC 2866 enumeration; rows carry the upper-snake string so reports
// read without a decoder ring.
const (
	CauseUserRequest    = "USER_REQUEST"
	CauseAdminReset     = "ADMIN_RESET"
	CauseNasReboot      = "NAS_REBOOT"
	CauseSessionTimeout = "SESSION_TIMEOUT"
	CauseIdleTimeout    = "IDLE_TIMEOUT"
	CauseLostCarrier    = "LOST_CARRIER"

	// Server-side only, never seen on the wire. Stamped by the
	// janitor on sessions that stopped sending interim updates.
	CauseStaleSession = "STALE_SESSION"
)

var terminateCauseNames = map[rfc2866.AcctTerminateCause]string{
	rfc2866.AcctTerminateCause_Value_UserRequest:        CauseUserRequest,
	rfc2866.AcctTerminateCause_Value_LostCarrier:        CauseLostCarrier,
	rfc2866.AcctTerminateCause_Value_LostService:        "LOST_SERVICE",
	rfc2866.AcctTerminateCause_Value_IdleTimeout:        CauseIdleTimeout,
	rfc2866.AcctTerminateCause_Value_SessionTimeout:     CauseSessionTimeout,
	rfc2866.AcctTerminateCause_Value_AdminReset:         CauseAdminReset,
	rfc2866.AcctTerminateCause_Value_AdminReboot:        "ADMIN_REBOOT",
	rfc2866.AcctTerminateCause_Value_PortError:          "PORT_ERROR",
	rfc2866.AcctTerminateCause_Value_NASError:           "NAS_ERROR",
	rfc2866.AcctTerminateCause_Value_NASRequest:         "NAS_REQUEST",
	rfc2866.AcctTerminateCause_Value_NASReboot:          CauseNasReboot,
	rfc2866.AcctTerminateCause_Value_PortUnneeded:       "PORT_UNNEEDED",
	rfc2866.AcctTerminateCause_Value_PortPreempted:      "PORT_PREEMPTED",
	rfc2866.AcctTerminateCause_Value_PortSuspended:      "PORT_SUSPENDED",
	rfc2866.AcctTerminateCause_Value_ServiceUnavailable: "SERVICE_UNAVAILABLE",
	rfc2866.AcctTerminateCause_Value_Callback:           "CALLBACK",
	rfc2866.AcctTerminateCause_Value_UserError:          "USER_ERROR",
	rfc2866.AcctTerminateCause_Value_HostRequest:        "HOST_REQUEST",
}

// TerminateCauseName converts the wire enumeration to the stored
// string form. Unlisted values keep their number, prefixed so they
// stay greppable.
func TerminateCauseName(cause rfc2866.AcctTerminateCause) string {
	if name, ok := terminateCauseNames[cause]; ok {
		return name
	}
	return fmt.Sprintf("CAUSE_%d", uint32(cause))
}

// errorCauseAttr is the RFC 5176 Error-Cause attribute type carried in
// Disconnect-NAK and CoA-NAK replies.
const errorCauseAttr radius.Type = 101

// errorCauseNames is the RFC 5176 §3.5 registry
var errorCauseNames = map[uint32]string{
	201: "Residual Session Context Removed",
	202: "Invalid EAP Packet (Ignored)",
	401: "Unsupported Attribute",
	402: "Missing Attribute",
	403: "NAS Identification Mismatch",
	404: "Invalid Request",
	405: "Unsupported Service",
	406: "Unsupported Extension",
	407: "Invalid Attribute Value",
	501: "Administratively Prohibited",
	502: "Request Not Routable (Proxy)",
	503: "Session Context Not Found",
	504: "Session Context Not Removable",
	505: "Other Proxy Processing Error",
	506: "Resources Unavailable",
	507: "Request Initiated",
	508: "Multiple Session Selection Unsupported",
}

// ErrorCauseName renders an Error-Cause value for operators
func ErrorCauseName(cause uint32) string {
	if name, ok := errorCauseNames[cause]; ok {
		return name
	}
	return fmt.Sprintf("Error-Cause %d", cause)
}

// codeNames covers the packet codes this server sends or receives
var codeNames = map[radius.Code]string{
	radius.CodeAccessRequest:      "Access-Request",
	radius.CodeAccessAccept:       "Access-Accept",
	radius.CodeAccessReject:       "Access-Reject",
	radius.CodeAccountingRequest:  "Accounting-Request",
	radius.CodeAccountingResponse: "Accounting-Response",
	radius.CodeAccessChallenge:    "Access-Challenge",
	radius.CodeStatusServer:       "Status-Server",
	radius.CodeStatusClient:       "Status-Client",
	radius.CodeDisconnectRequest:  "Disconnect-Request",
	radius.CodeDisconnectACK:      "Disconnect-ACK",
	radius.CodeDisconnectNAK:      "Disconnect-NAK",
	radius.CodeCoARequest:         "CoA-Request",
	radius.CodeCoAACK:             "CoA-ACK",
	radius.CodeCoANAK:             "CoA-NAK",
}

// CodeName renders a packet code for logs and events
func CodeName(code radius.Code) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Code-%d", int(code))
}
