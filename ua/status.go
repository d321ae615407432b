// Package ua provides the wire types and status codes shared by the
// transport (uacp), secure-channel (uasc) and client packages: the
// request/response structs, status codes and identity tokens a generated
// binary type codec would normally produce from the OPC UA XML type
// dictionary. It is hand written and limited to the messages a
// connection-establishment client actually exchanges.
package ua

import "fmt"

// StatusCode is a 32-bit OPC UA result code. The top two bits carry the
// severity (Good/Uncertain/Bad) and the rest of the high 16 bits the
// numeric code; IsGood and IsBad read only the severity bits. This
// package only ever constructs the well-known constants below.
type StatusCode uint32

// Error implements error so a StatusCode can be returned and compared
// directly, treating status codes themselves as errors rather than
// wrapping them in a generic error struct.
func (s StatusCode) Error() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// IsGood reports whether the code indicates success.
func (s StatusCode) IsGood() bool {
	return uint32(s)&0x80000000 == 0
}

// IsBad reports whether the code indicates failure.
func (s StatusCode) IsBad() bool {
	return uint32(s)&0xC0000000 == 0x80000000
}

// Well-known status codes used by the connection-establishment core.
// Numeric values follow the OPC UA Part 6 StatusCode assignments for the
// codes this module actually returns; codes with no defined use here
// still get a stable value so tests can compare against a constant.
const (
	StatusGood                        StatusCode = 0x00000000
	BadUnexpectedError                StatusCode = 0x80010000
	BadInternalError                  StatusCode = 0x80020000
	BadOutOfMemory                    StatusCode = 0x80030000
	BadTimeout                        StatusCode = 0x800A0000
	BadShutdown                       StatusCode = 0x800C0000
	BadConnectionClosed               StatusCode = 0x80AE0000
	BadServerNotConnected             StatusCode = 0x800D0000
	BadSecurityModeRejected           StatusCode = 0x80E60000
	BadCertificateInvalid             StatusCode = 0x80120000
	BadApplicationSignatureInvalid    StatusCode = 0x80580000
	BadIdentityTokenInvalid           StatusCode = 0x80140000
	BadIdentityTokenRejected          StatusCode = 0x80210000
	BadRequestHeaderInvalid           StatusCode = 0x802A0000
	BadCommunicationError             StatusCode = 0x80050000
	BadNoSubscription                 StatusCode = 0x80790000
	BadSessionIDInvalid               StatusCode = 0x80250000
	BadSessionClosed                  StatusCode = 0x80260000
	BadSecureChannelIDInvalid         StatusCode = 0x80220000
	BadSecureChannelClosed            StatusCode = 0x80230000
)

var statusNames = map[StatusCode]string{
	StatusGood:                     "Good",
	BadUnexpectedError:             "BadUnexpectedError",
	BadInternalError:               "BadInternalError",
	BadOutOfMemory:                 "BadOutOfMemory",
	BadTimeout:                     "BadTimeout",
	BadShutdown:                    "BadShutdown",
	BadConnectionClosed:            "BadConnectionClosed",
	BadServerNotConnected:          "BadServerNotConnected",
	BadSecurityModeRejected:        "BadSecurityModeRejected",
	BadCertificateInvalid:          "BadCertificateInvalid",
	BadApplicationSignatureInvalid: "BadApplicationSignatureInvalid",
	BadIdentityTokenInvalid:        "BadIdentityTokenInvalid",
	BadIdentityTokenRejected:       "BadIdentityTokenRejected",
	BadRequestHeaderInvalid:        "BadRequestHeaderInvalid",
	BadCommunicationError:          "BadCommunicationError",
	BadNoSubscription:              "BadNoSubscription",
	BadSessionIDInvalid:            "BadSessionIDInvalid",
	BadSessionClosed:               "BadSessionClosed",
	BadSecureChannelIDInvalid:      "BadSecureChannelIDInvalid",
	BadSecureChannelClosed:         "BadSecureChannelClosed",
}
