package uasc

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
)

// Request sends a generic application-level service request over an
// already-open channel and waits for its response. Structured-type
// encoding (the real Part 6 binary layout) is approximated here with
// encoding/gob — see DESIGN.md — since this core's contract is the
// state machine around dispatch, not the codec.
//
// Like Open and Close, Request holds ioMu for the full round trip so it
// never interleaves on the wire with a concurrent renewal.
func (ch *SecureChannel) Request(ctx context.Context, req ua.Request, timeout time.Duration) (ua.Response, error) {
	ch.ioMu.Lock()
	defer ch.ioMu.Unlock()

	ch.mu.Lock()
	state := ch.state
	ch.mu.Unlock()
	if state != StateOpen {
		return nil, ua.BadServerNotConnected
	}

	id := ch.nextRequestID()

	sb := ch.conn.GetSendBuffer()
	if err := ua.WriteUint32(sb, id); err != nil {
		sb.Release()
		return nil, err
	}
	enc := gob.NewEncoder(sb)
	if err := enc.Encode(&req); err != nil {
		sb.Release()
		return nil, err
	}

	wait := ch.pending.register(id)
	if err := ch.conn.Send(uacp.MessageTypeMessage, sb); err != nil {
		ch.pending.cancel(id)
		return nil, err
	}

	value, err := ch.drain(ctx, wait, timeout)
	if err != nil {
		ch.pending.cancel(id)
		return nil, err
	}
	res, _ := value.(ua.Response)
	return res, nil
}

func decodeGenericResponse(_ uacp.MessageType, body []byte) (ua.Response, error) {
	dec := gob.NewDecoder(bytes.NewReader(body))
	var res ua.Response
	if err := dec.Decode(&res); err != nil {
		return nil, err
	}
	return res, nil
}

func init() {
	for _, v := range []any{
		&ua.FindServersResponse{},
		&ua.GetEndpointsResponse{},
		&ua.CreateSessionResponse{},
		&ua.ActivateSessionResponse{},
		&ua.CloseSessionResponse{},
		&ua.ReadResponse{},
		&ua.FindServersRequest{},
		&ua.GetEndpointsRequest{},
		&ua.CreateSessionRequest{},
		&ua.ActivateSessionRequest{},
		&ua.CloseSessionRequest{},
		&ua.ReadRequest{},
		&ua.AnonymousIdentityToken{},
		&ua.UserNameIdentityToken{},
		&ua.X509IdentityToken{},
		&ua.IssuedIdentityToken{},
	} {
		gob.Register(v)
	}
}
