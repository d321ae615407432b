package uasc

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
)

// Wire encoding of the asymmetrically-protected OPN/CLO bodies this core
// exchanges. A full implementation would wrap these in the UA Secure
// Conversation asymmetric security header (sender certificate, receiver
// thumbprint, signature, optional encryption); that framing is
// represented here only by the SecurityPolicy binding
// (securitypolicy.go), not by wire bytes. The leading requestId field is
// real wire content, not a placeholder: it's what lets a capture of the
// channel's traffic confirm requestId increases monotonically.

func encodeOPNRequest(w *uacp.SendBuffer, id uint32, req *ua.OpenSecureChannelRequest) error {
	if err := ua.WriteUint32(w, id); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, req.ClientProtocolVersion); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, uint32(req.RequestType)); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, uint32(req.SecurityMode)); err != nil {
		return err
	}
	if err := ua.WriteByteString(w, req.ClientNonce); err != nil {
		return err
	}
	return ua.WriteUint32(w, req.RequestedLifetime)
}

func decodeOPNResponse(body []byte) (*ua.OpenSecureChannelResponse, error) {
	r := bytes.NewReader(body)
	var res ua.OpenSecureChannelResponse
	var err error
	if res.ServerProtocolVersion, err = ua.ReadUint32(r); err != nil {
		return nil, err
	}
	if res.ResponseHeader.ServiceResult, err = readStatusCode(r); err != nil {
		return nil, err
	}
	if res.SecurityToken.ChannelID, err = ua.ReadUint32(r); err != nil {
		return nil, err
	}
	if res.SecurityToken.TokenID, err = ua.ReadUint32(r); err != nil {
		return nil, err
	}
	createdAtMs, err := ua.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	res.SecurityToken.CreatedAt = time.UnixMilli(int64(createdAtMs))
	if res.SecurityToken.RevisedLifetime, err = ua.ReadUint32(r); err != nil {
		return nil, err
	}
	if res.ServerNonce, err = ua.ReadByteString(r); err != nil {
		return nil, err
	}
	if !res.ResponseHeader.ServiceResult.IsGood() {
		return &res, res.ResponseHeader.ServiceResult
	}
	return &res, nil
}

func encodeCLORequest(w *uacp.SendBuffer, id uint32) error {
	return ua.WriteUint32(w, id)
}

func readStatusCode(r *bytes.Reader) (ua.StatusCode, error) {
	v, err := ua.ReadUint32(r)
	if err != nil {
		return 0, errors.Wrap(err, "uasc: reading status code")
	}
	return ua.StatusCode(v), nil
}
