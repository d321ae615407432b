package ua

// ByteString is an opaque byte sequence on the wire: nonces, certificates,
// signatures and encrypted tokens are all encoded as ByteString.
type ByteString []byte

// MessageSecurityMode selects whether OPC UA messages are signed, signed
// and encrypted, or carried in the clear.
type MessageSecurityMode uint32

const (
	MessageSecurityModeInvalid        MessageSecurityMode = 0
	MessageSecurityModeNone           MessageSecurityMode = 1
	MessageSecurityModeSign           MessageSecurityMode = 2
	MessageSecurityModeSignAndEncrypt MessageSecurityMode = 3
)

func (m MessageSecurityMode) String() string {
	switch m {
	case MessageSecurityModeNone:
		return "None"
	case MessageSecurityModeSign:
		return "Sign"
	case MessageSecurityModeSignAndEncrypt:
		return "SignAndEncrypt"
	default:
		return "Invalid"
	}
}

// UserTokenType identifies the kind of credential a UserTokenPolicy
// describes.
type UserTokenType uint32

const (
	UserTokenTypeAnonymous UserTokenType = 0
	UserTokenTypeUserName  UserTokenType = 1
	UserTokenTypeCertificate UserTokenType = 2
	UserTokenTypeIssued    UserTokenType = 3
)

// Security policy URIs recognized by this module. Only None and
// Basic256Sha256 have a working SecurityPolicy implementation in uasc;
// the others are declared for reference only. No code compares against
// them: client's bindSecurityPolicy rejects every URI other than None
// and Basic256Sha256 with BadSecurityModeRejected.
const (
	SecurityPolicyURINone               = "http://opcfoundation.org/UA/SecurityPolicy#None"
	SecurityPolicyURIBasic128Rsa15       = "http://opcfoundation.org/UA/SecurityPolicy#Basic128Rsa15"
	SecurityPolicyURIBasic256            = "http://opcfoundation.org/UA/SecurityPolicy#Basic256"
	SecurityPolicyURIBasic256Sha256      = "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"
	SecurityPolicyURIAes128Sha256RsaOaep = "http://opcfoundation.org/UA/SecurityPolicy#Aes128Sha256RsaOaep"
	SecurityPolicyURIAes256Sha256RsaPss  = "http://opcfoundation.org/UA/SecurityPolicy#Aes256Sha256RsaPss"
)

// TransportProfileURIUaTcpTransport is the binary transport profile this
// client supports.
const TransportProfileURIUaTcpTransport = "http://opcfoundation.org/UA-Profile/Transport/uatcp-uasc-uabinary"

// ApplicationType classifies an ApplicationDescription.
type ApplicationType uint32

const (
	ApplicationTypeServer ApplicationType = 0
	ApplicationTypeClient ApplicationType = 1
)

// LocalizedText is a human-readable string tagged with a locale.
type LocalizedText struct {
	Locale string
	Text   string
}

// ApplicationDescription describes the client or server application at
// the OPC UA application layer.
type ApplicationDescription struct {
	ApplicationURI  string
	ProductURI      string
	ApplicationName LocalizedText
	ApplicationType ApplicationType
	GatewayServerURI string
	DiscoveryProfileURI string
	DiscoveryURLs   []string
}

// UserTokenPolicy is one entry of an EndpointDescription's advertised
// authentication options.
type UserTokenPolicy struct {
	PolicyID          string
	TokenType         UserTokenType
	IssuedTokenType   string
	IssuerEndpointURL string
	SecurityPolicyURI string
}

// Clone returns a deep copy of the policy (it has no nested reference
// fields today, but Clone exists so callers never need to know that).
func (p UserTokenPolicy) Clone() UserTokenPolicy {
	return p
}

// EndpointDescription is one entry of a server's GetEndpoints response.
type EndpointDescription struct {
	EndpointURL         string
	Server              ApplicationDescription
	ServerCertificate   ByteString
	SecurityMode        MessageSecurityMode
	SecurityPolicyURI   string
	UserIdentityTokens  []UserTokenPolicy
	TransportProfileURI string
	SecurityLevel       byte
}

// Clone returns a deep copy of the endpoint, independent of the original:
// mutating the returned value's slices must never affect the receiver's.
func (e EndpointDescription) Clone() EndpointDescription {
	out := e
	out.ServerCertificate = append(ByteString(nil), e.ServerCertificate...)
	out.Server.DiscoveryURLs = append([]string(nil), e.Server.DiscoveryURLs...)
	out.UserIdentityTokens = make([]UserTokenPolicy, len(e.UserIdentityTokens))
	copy(out.UserIdentityTokens, e.UserIdentityTokens)
	return out
}

// SignatureData carries an algorithm-tagged signature over an
// application message.
type SignatureData struct {
	Algorithm string
	Signature ByteString
}

// Signature algorithm URIs.
const (
	RsaSha1Signature      = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	RsaSha256Signature    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RsaPssSha256Signature = "http://opcfoundation.org/UA/security/rsa-pss-sha2-256"
)

// Key wrap algorithm URIs, used to tag encrypted identity-token secrets.
const (
	RsaV15KeyWrap        = "http://www.w3.org/2001/04/xmlenc#rsa-1_5"
	RsaOaepKeyWrap       = "http://www.w3.org/2001/04/xmlenc#rsa-oaep"
	RsaOaepSha256KeyWrap = "http://opcfoundation.org/UA/security/rsa-oaep-sha2-256"
)

// NodeID identifies a server-side node or, in this core, an opaque
// server-issued identifier such as the session authentication token.
// Only the numeric and opaque-bytes encodings needed by this core are
// modeled.
type NodeID struct {
	NamespaceIndex uint16
	Numeric        uint32
	Opaque         ByteString
	IsOpaque       bool
}

// IsZero reports whether the NodeID is the zero identifier, used to
// detect "no authentication token known yet".
func (n NodeID) IsZero() bool {
	return n.NamespaceIndex == 0 && n.Numeric == 0 && len(n.Opaque) == 0
}

func (n NodeID) Equal(o NodeID) bool {
	if n.NamespaceIndex != o.NamespaceIndex || n.IsOpaque != o.IsOpaque {
		return false
	}
	if n.IsOpaque {
		return string(n.Opaque) == string(o.Opaque)
	}
	return n.Numeric == o.Numeric
}
