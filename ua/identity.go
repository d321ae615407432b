package ua

// The four user-identity shapes an application can configure. They are
// distinct types (not a tagged union) so a Go caller gets type-safety at
// the call site: client.WithUserIdentity(ua.UserNameIdentity{...}).

// AnonymousIdentity requests the server's Anonymous UserTokenPolicy.
type AnonymousIdentity struct{}

// UserNameIdentity authenticates with a username and password.
type UserNameIdentity struct {
	UserName string
	Password string
}

// X509Identity authenticates by proving possession of a certificate's
// private key.
type X509Identity struct {
	Certificate ByteString
	Key         any // *rsa.PrivateKey; kept as any to avoid importing crypto/rsa here
}

// IssuedIdentity authenticates with an opaque token issued by a third
// party (e.g. a SAML or JWT token).
type IssuedIdentity struct {
	TokenData ByteString
}

// Identity token wire shapes, sent inside ActivateSessionRequest.
type AnonymousIdentityToken struct {
	PolicyID string
}

type UserNameIdentityToken struct {
	PolicyID            string
	UserName            string
	Password            ByteString
	EncryptionAlgorithm string
}

type X509IdentityToken struct {
	PolicyID        string
	CertificateData ByteString
}

type IssuedIdentityToken struct {
	PolicyID            string
	TokenData           ByteString
	EncryptionAlgorithm string
}
