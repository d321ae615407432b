// Package uasc implements the UA Secure Conversation layer: the
// OpenSecureChannel exchange and the SecureChannel that results from
// it. Symmetric MSG chunking/crypto belongs to a publish/dispatch
// subsystem this package doesn't implement; it only carries enough of
// the asymmetric OPN path to establish and renew keys.
package uasc

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pkcs12"

	"github.com/jahau/opcua/ua"
)

// SecurityPolicy is the cryptographic side of establishing a channel:
// nonce generation and the asymmetric sign/verify operations needed to
// issue and verify an OPN exchange and a CreateSession signature.
type SecurityPolicy interface {
	URI() string
	Mode() ua.MessageSecurityMode
	GenerateNonce(n int) []byte
	LocalCertificate() []byte
	RemotePublicKey() *rsa.PublicKey
	SignSessionData(data []byte) (ua.SignatureData, error)
	VerifySessionSignature(data []byte, sig ua.SignatureData) error
}

// NonePolicy implements the "…/SecurityPolicy#None" policy: no signing
// or encryption, but a nonce is still generated on every OPN, matching
// what a real policy would do.
type NonePolicy struct{
	mode ua.MessageSecurityMode
}

// NewNonePolicy returns the None security policy. mode is normally
// MessageSecurityModeNone, but the constant is still accepted so callers
// can model a misconfigured endpoint that demands Sign with no
// certificate bound.
func NewNonePolicy(mode ua.MessageSecurityMode) *NonePolicy {
	return &NonePolicy{mode: mode}
}

func (p *NonePolicy) URI() string                        { return ua.SecurityPolicyURINone }
func (p *NonePolicy) Mode() ua.MessageSecurityMode        { return p.mode }
func (p *NonePolicy) GenerateNonce(n int) []byte          { return make([]byte, n) }
func (p *NonePolicy) LocalCertificate() []byte            { return nil }
func (p *NonePolicy) RemotePublicKey() *rsa.PublicKey     { return nil }
func (p *NonePolicy) SignSessionData([]byte) (ua.SignatureData, error) {
	return ua.SignatureData{}, nil
}
func (p *NonePolicy) VerifySessionSignature([]byte, ua.SignatureData) error { return nil }

// RSAPolicy implements the Basic256Sha256 security policy: RSA-SHA256
// signatures over the application certificate and nonce, used for the
// server-signature verification performed during session activation.
type RSAPolicy struct {
	mode              ua.MessageSecurityMode
	localCertificate  []byte
	localPrivateKey   *rsa.PrivateKey
	remoteCertificate []byte
	remotePublicKey   *rsa.PublicKey
}

// LoadRSAPolicy builds a Basic256Sha256 policy, loading the local
// application certificate and private key from a PKCS#12 (.pfx/.p12)
// file — the common distribution format for OPC UA client certificates —
// via golang.org/x/crypto/pkcs12, and binding the server's DER-encoded
// certificate supplied by the selected EndpointDescription.
func LoadRSAPolicy(pfxPath, pfxPassword string, mode ua.MessageSecurityMode, remoteCertificate []byte) (*RSAPolicy, error) {
	raw, err := os.ReadFile(pfxPath)
	if err != nil {
		return nil, errors.Wrap(err, "uasc: reading local certificate store")
	}
	key, cert, err := pkcs12.Decode(raw, pfxPassword)
	if err != nil {
		return nil, errors.Wrap(err, "uasc: decoding PKCS#12 store")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("uasc: local certificate key is %T, want *rsa.PrivateKey", key)
	}
	p := &RSAPolicy{
		mode:             mode,
		localCertificate: cert.Raw,
		localPrivateKey:  rsaKey,
	}
	if err := p.bindRemoteCertificate(remoteCertificate); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RSAPolicy) bindRemoteCertificate(der []byte) error {
	if len(der) == 0 {
		return errors.Errorf("uasc: no remote certificate supplied")
	}
	crt, err := x509.ParseCertificate(der)
	if err != nil {
		return errors.Wrap(err, "uasc: parsing remote certificate")
	}
	pub, ok := crt.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.Errorf("uasc: remote certificate key is %T, want *rsa.PublicKey", crt.PublicKey)
	}
	p.remoteCertificate = der
	p.remotePublicKey = pub
	return nil
}

func (p *RSAPolicy) URI() string                    { return ua.SecurityPolicyURIBasic256Sha256 }
func (p *RSAPolicy) Mode() ua.MessageSecurityMode    { return p.mode }
func (p *RSAPolicy) LocalCertificate() []byte        { return p.localCertificate }
func (p *RSAPolicy) RemotePublicKey() *rsa.PublicKey { return p.remotePublicKey }

// GenerateNonce returns n cryptographically random bytes, the secure
// variant used once a real policy (vs NonePolicy) is bound.
func (p *RSAPolicy) GenerateNonce(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func (p *RSAPolicy) SignSessionData(data []byte) (ua.SignatureData, error) {
	hash := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.localPrivateKey, crypto.SHA256, hash[:])
	if err != nil {
		return ua.SignatureData{}, errors.Wrap(err, "uasc: signing session data")
	}
	return ua.SignatureData{Algorithm: ua.RsaSha256Signature, Signature: sig}, nil
}

func (p *RSAPolicy) VerifySessionSignature(data []byte, sig ua.SignatureData) error {
	hash := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(p.remotePublicKey, crypto.SHA256, hash[:], sig.Signature); err != nil {
		return ua.BadApplicationSignatureInvalid
	}
	return nil
}
