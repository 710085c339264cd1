package radius

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"layeh.com/radius"
	"layeh.com/radius/rfc2866"
)

func TestMikrotikAttrName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Mikrotik-Rate-Limit", MikrotikAttrName(MikrotikRateLimit))
	assert.Equal(t, "Mikrotik-Total-Limit", MikrotikAttrName(MikrotikTotalLimit))
	assert.Equal(t, "Mikrotik-Total-Limit-Gigawords", MikrotikAttrName(MikrotikTotalLimitGigawords))
	assert.Equal(t, "Mikrotik-Attr-99", MikrotikAttrName(99))
}

func TestTerminateCauseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "USER_REQUEST", TerminateCauseName(rfc2866.AcctTerminateCause_Value_UserRequest))
	assert.Equal(t, "NAS_REBOOT", TerminateCauseName(rfc2866.AcctTerminateCause_Value_NASReboot))
	assert.Equal(t, "IDLE_TIMEOUT", TerminateCauseName(rfc2866.AcctTerminateCause_Value_IdleTimeout))
	assert.Equal(t, "CAUSE_99", TerminateCauseName(rfc2866.AcctTerminateCause(99)))
}

func TestErrorCauseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Session Context Not Found", ErrorCauseName(503))
	assert.Equal(t, "Missing Attribute", ErrorCauseName(402))
	assert.Equal(t, "Error-Cause 999", ErrorCauseName(999))
}

func TestCodeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Access-Request", CodeName(radius.CodeAccessRequest))
	assert.Equal(t, "Disconnect-ACK", CodeName(radius.CodeDisconnectACK))
	assert.Equal(t, "CoA-NAK", CodeName(radius.CodeCoANAK))
	assert.Equal(t, "Code-200", CodeName(radius.Code(200)))
}
