package client

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
)

// createSession issues CreateSession, then the caller verifies the
// server's signature over (localCertificate || localNonce) before
// trusting the session it returns.
func (cl *Client) createSession(ctx context.Context, localNonce []byte) (*ua.CreateSessionResponse, error) {
	req := &ua.CreateSessionRequest{
		ClientDescription:       cl.localDescription,
		EndpointURL:             cl.endpointURL,
		SessionName:             cl.config.applicationName,
		ClientNonce:             ua.ByteString(localNonce),
		ClientCertificate:       ua.ByteString(cl.secPolicy.LocalCertificate()),
		RequestedSessionTimeout: float64(cl.config.sessionTimeout / time.Millisecond),
		MaxResponseMessageSize:  1 << 20,
	}
	res, err := cl.request(ctx, req)
	if err != nil {
		return nil, err
	}
	csr, ok := res.(*ua.CreateSessionResponse)
	if !ok {
		return nil, errors.Errorf("client: unexpected response type %T to CreateSession", res)
	}
	if !csr.ResponseHeader.ServiceResult.IsGood() {
		return nil, csr.ResponseHeader.ServiceResult
	}
	return csr, nil
}

// buildIdentityToken builds the wire-shape identity token matching the
// configured identity kind and, for X509, a client signature over
// (serverCertificate || serverNonce). Encrypting the secret fields of
// UserName/Issued tokens under the server's public key is not
// implemented: on a channel whose security mode is None those tokens
// are rejected here, and on a Sign or SignAndEncrypt channel their
// secret is sent without that extra encryption.
func (cl *Client) buildIdentityToken(serverCertificate, serverNonce []byte, policy ua.UserTokenPolicy) (any, ua.SignatureData, error) {
	switch ui := cl.config.userIdentity.(type) {
	case ua.UserNameIdentity:
		if cl.channel.SecurityMode() == ua.MessageSecurityModeNone {
			return nil, ua.SignatureData{}, errors.Wrap(ua.BadIdentityTokenRejected, "client: UserName token requires a signed or encrypted channel")
		}
		return ua.UserNameIdentityToken{
			PolicyID: policy.PolicyID,
			UserName: ui.UserName,
			Password: ua.ByteString(ui.Password),
		}, ua.SignatureData{}, nil

	case ua.X509Identity:
		sig, err := cl.secPolicy.SignSessionData(append(append([]byte{}, serverCertificate...), serverNonce...))
		if err != nil {
			return nil, ua.SignatureData{}, err
		}
		return ua.X509IdentityToken{
			PolicyID:        policy.PolicyID,
			CertificateData: ui.Certificate,
		}, sig, nil

	case ua.IssuedIdentity:
		if cl.channel.SecurityMode() == ua.MessageSecurityModeNone {
			return nil, ua.SignatureData{}, errors.Wrap(ua.BadIdentityTokenRejected, "client: Issued token requires a signed or encrypted channel")
		}
		return ua.IssuedIdentityToken{
			PolicyID:  policy.PolicyID,
			TokenData: ui.TokenData,
		}, ua.SignatureData{}, nil

	default:
		return ua.AnonymousIdentityToken{PolicyID: policy.PolicyID}, ua.SignatureData{}, nil
	}
}

// activateSession sends ActivateSession with the identity token built
// above. Its only caller, establishSession, always runs CreateSession
// first, so a dormant session is never re-activated: every connect
// creates a new session.
func (cl *Client) activateSession(ctx context.Context, identityToken any, identitySig ua.SignatureData, clientSig ua.SignatureData) (*ua.ActivateSessionResponse, error) {
	req := &ua.ActivateSessionRequest{
		ClientSignature:    clientSig,
		LocaleIDs:          []string{"en"},
		UserIdentityToken:  identityToken,
		UserTokenSignature: identitySig,
	}
	res, err := cl.request(ctx, req)
	if err != nil {
		return nil, err
	}
	asr, ok := res.(*ua.ActivateSessionResponse)
	if !ok {
		return nil, errors.Errorf("client: unexpected response type %T to ActivateSession", res)
	}
	if !asr.ResponseHeader.ServiceResult.IsGood() {
		return nil, asr.ResponseHeader.ServiceResult
	}
	return asr, nil
}

// readNamespaceArrays performs the post-activation Read of the server's
// NamespaceArray and ServerArray. A failed or Bad-status read is
// non-fatal: the arrays simply stay empty.
func (cl *Client) readNamespaceArrays(ctx context.Context) {
	req := &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{
			{NodeID: ua.VariableIDServerNamespaceArray, AttributeID: ua.AttributeIDValue},
			{NodeID: ua.VariableIDServerServerArray, AttributeID: ua.AttributeIDValue},
		},
	}
	res, err := cl.request(ctx, req)
	if err != nil {
		return
	}
	rr, ok := res.(*ua.ReadResponse)
	if !ok || len(rr.Results) != 2 {
		return
	}
	if rr.Results[0].StatusCode.IsGood() {
		if v, ok := rr.Results[0].Value.([]string); ok {
			cl.namespaceURIs = v
		}
	}
	if rr.Results[1].StatusCode.IsGood() {
		if v, ok := rr.Results[1].Value.([]string); ok {
			cl.serverURIs = v
		}
	}
}

// request sends req over the open channel. SecureChannel.Request already
// drives its own receive loop, so this is a thin pass-through.
func (cl *Client) request(ctx context.Context, req ua.Request) (ua.Response, error) {
	return cl.channel.Request(ctx, req, cl.config.timeout)
}
