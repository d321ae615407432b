package uasc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
)

// State is a SecureChannel's lifecycle: Fresh until the transport's
// HEL/ACK handshake completes, OPNSent while an OpenSecureChannel
// exchange is in flight, Open once keys are issued and MSG traffic can
// flow, Closed after teardown.
type State int

const (
	StateFresh State = iota
	StateHELSent
	StateOPNSent
	StateOpen
	StateClosed
)

// SecureChannel issues and renews the symmetric keys an OPC UA secure
// conversation runs on, via an asymmetrically-protected OPN exchange.
type SecureChannel struct {
	conn   *uacp.Conn
	policy SecurityPolicy

	// ioMu serializes whole request/response exchanges (Open, Request,
	// Close): only one is ever in flight on this channel at a time, so
	// the background renewal task and the foreground request path never
	// end up pumping the same uacp.Conn concurrently.
	ioMu sync.Mutex

	mu                sync.Mutex
	state             State
	securityMode      ua.MessageSecurityMode
	remoteCertificate []byte
	localNonce        []byte
	remoteNonce       []byte
	channelID         uint32
	tokenID           uint32
	createdAt         time.Time
	revisedLifetime   uint32
	sendSequenceNumber uint32
	requestID         uint32

	authenticationToken ua.NodeID
	nextChannelRenewal  time.Time

	pending *pendingTable
}

// New constructs a SecureChannel bound to conn and policy. The channel is
// StateFresh until Open is called.
func New(conn *uacp.Conn, policy SecurityPolicy) *SecureChannel {
	return &SecureChannel{
		conn:         conn,
		policy:       policy,
		state:        StateFresh,
		securityMode: policy.Mode(),
		pending:      newPendingTable(),
	}
}

func (ch *SecureChannel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *SecureChannel) SecurityPolicyURI() string { return ch.policy.URI() }
func (ch *SecureChannel) SecurityMode() ua.MessageSecurityMode { return ch.securityMode }

func (ch *SecureChannel) SetAuthenticationToken(tok ua.NodeID) {
	ch.mu.Lock()
	ch.authenticationToken = tok
	ch.mu.Unlock()
}

func (ch *SecureChannel) NextChannelRenewal() time.Time {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.nextChannelRenewal
}

// nextRequestID returns a strictly increasing per-channel request id.
// Every OPN and MSG request carries one on the wire so a capture of the
// channel's traffic shows requestId monotonically increasing for the
// life of the channel.
func (ch *SecureChannel) nextRequestID() uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.requestID++
	return ch.requestID
}

// Open issues (renew=false) or renews (renew=true) the secure channel's
// symmetric keys via an asymmetrically-protected OPN exchange.
//
// Open, Request and Close all take ioMu for their full duration,
// including the network round trip, so an issue/renew exchange can
// never interleave on the wire with a concurrent application request —
// whichever of renewal or a foreground request gets there first runs to
// completion before the other starts.
func (ch *SecureChannel) Open(ctx context.Context, renew bool, lifetime time.Duration, timeout time.Duration, nowMonotonic func() time.Time) error {
	ch.ioMu.Lock()
	defer ch.ioMu.Unlock()

	if ch.conn.State() != uacp.StateEstablished {
		return errors.Wrap(ua.BadInternalError, "uasc: connection not established")
	}

	now := nowMonotonic()
	if renew {
		ch.mu.Lock()
		next := ch.nextChannelRenewal
		ch.mu.Unlock()
		if now.Before(next) {
			return nil // already renewed by a racing call, or not yet due
		}
	}

	localNonce := ch.policy.GenerateNonce(ua.LocalNonceLength)
	ch.mu.Lock()
	ch.localNonce = localNonce
	ch.mu.Unlock()

	reqType := ua.SecurityTokenRequestTypeIssue
	if renew {
		reqType = ua.SecurityTokenRequestTypeRenew
	}
	req := &ua.OpenSecureChannelRequest{
		ClientProtocolVersion: 0,
		RequestType:           reqType,
		SecurityMode:          ch.securityMode,
		ClientNonce:           ua.ByteString(localNonce),
		RequestedLifetime:     uint32(lifetime / time.Millisecond),
	}

	id := ch.nextRequestID()

	// Set a conservative renewal deadline before awaiting the response,
	// two full timeouts out, so a slow OPN round trip can't leave the
	// channel looking due for renewal again the instant this one lands.
	ch.mu.Lock()
	ch.nextChannelRenewal = now.Add(2 * timeout)
	if ch.state == StateFresh {
		ch.state = StateHELSent // HEL/ACK already completed by the caller; kept for state-order clarity
	}
	ch.state = StateOPNSent
	ch.mu.Unlock()

	res, err := ch.sendOPN(ctx, id, req, timeout)
	if err != nil {
		return err
	}

	// The renewal deadline is anchored to this client's own clock at
	// receipt, not the server's wire-encoded CreatedAt: this core doesn't
	// decode OPC UA's 64-bit DateTime type, and scheduling renewal off a
	// remote clock it never synchronizes with would be more fragile than
	// useful.
	receivedAt := nowMonotonic()
	ch.mu.Lock()
	ch.channelID = res.SecurityToken.ChannelID
	ch.tokenID = res.SecurityToken.TokenID
	ch.createdAt = receivedAt
	ch.revisedLifetime = res.SecurityToken.RevisedLifetime
	ch.remoteNonce = res.ServerNonce
	ch.nextChannelRenewal = receivedAt.Add(time.Duration(float64(res.SecurityToken.RevisedLifetime)*0.75) * time.Millisecond)
	ch.state = StateOpen
	ch.mu.Unlock()
	return nil
}

// sendOPN drives a synchronous single-chunk OpenSecureChannel request:
// it frames the request with the asymmetric security header a real
// implementation would sign/encrypt per the bound SecurityPolicy, hands
// it to the transport, and pumps the channel's own receive loop until
// the matching OPN response arrives. Encoding/decoding of the body here
// is a placeholder for that asymmetric framing.
func (ch *SecureChannel) sendOPN(ctx context.Context, id uint32, req *ua.OpenSecureChannelRequest, timeout time.Duration) (*ua.OpenSecureChannelResponse, error) {
	sb := ch.conn.GetSendBuffer()
	if err := encodeOPNRequest(sb, id, req); err != nil {
		sb.Release()
		return nil, errors.Wrap(err, "uasc: encoding OpenSecureChannelRequest")
	}

	wait := ch.pending.register(id)
	if err := ch.conn.Send(uacp.MessageTypeOpenChannel, sb); err != nil {
		ch.pending.cancel(id)
		return nil, errors.Wrap(err, "uasc: sending OPN")
	}

	value, err := ch.drain(ctx, wait, timeout)
	if err != nil {
		ch.pending.cancel(id)
		return nil, err
	}
	res, ok := value.(*ua.OpenSecureChannelResponse)
	if !ok {
		return nil, errors.Errorf("uasc: unexpected OPN response type %T", value)
	}
	return res, nil
}

// drain pumps Iterate until wait resolves, ctx is canceled, or timeout
// elapses. The caller that registered wait is the only one driving the
// connection forward, rather than relying on some other goroutine to do
// it — ioMu in Open/Request/Close is what keeps that true even with a
// background renewal task in the picture.
func (ch *SecureChannel) drain(ctx context.Context, wait chan pendingResult, timeout time.Duration) (any, error) {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-wait:
			if r.err != nil {
				return nil, r.err
			}
			return r.value, nil
		default:
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ua.BadTimeout
		}
		if err := ch.Iterate(ctx, remaining); err != nil {
			select {
			case r := <-wait:
				if r.err != nil {
					return nil, r.err
				}
				return r.value, nil
			default:
				return nil, err
			}
		}
	}
}

// Close performs the symmetric CloseSecureChannel exchange and wipes
// cryptographic state: localNonce/remoteNonce are zeroed and the
// channel/token ids cleared so nothing sensitive survives disconnect.
func (ch *SecureChannel) Close(ctx context.Context, timeout time.Duration) error {
	ch.ioMu.Lock()
	defer ch.ioMu.Unlock()

	ch.mu.Lock()
	state := ch.state
	ch.mu.Unlock()
	if state != StateOpen {
		ch.wipe()
		return nil
	}

	id := ch.nextRequestID()
	sb := ch.conn.GetSendBuffer()
	if err := encodeCLORequest(sb, id); err != nil {
		sb.Release()
		ch.wipe()
		return err
	}
	err := ch.conn.Send(uacp.MessageTypeCloseChannel, sb) // CLO has no response to await
	ch.wipe()
	return err
}

// FailPending resolves every outstanding async service with err. Used
// during teardown so callers blocked in drain don't hang once the
// connection is gone.
func (ch *SecureChannel) FailPending(err error) {
	ch.pending.FailAll(err)
}

func (ch *SecureChannel) wipe() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	zero(ch.localNonce)
	zero(ch.remoteNonce)
	ch.localNonce = nil
	ch.remoteNonce = nil
	ch.channelID = 0
	ch.tokenID = 0
	ch.state = StateClosed
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Iterate polls the transport for one complete chunk within budget and
// resolves the oldest pending request with the decoded response (or with
// the decode error); responses are not matched by request id. If nothing
// is pending, the message is dropped. Callers invoke it repeatedly until their own
// condition is met or their own deadline passes; Iterate itself never
// loops.
func (ch *SecureChannel) Iterate(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	t, body, err := ch.conn.ReceiveAny(ctx, deadline)
	if err != nil {
		return err
	}
	switch t {
	case uacp.MessageTypeOpenChannel:
		res, err := decodeOPNResponse(body)
		ch.pending.resolveFront(res, err)
	default:
		res, err := decodeGenericResponse(t, body)
		ch.pending.resolveFront(res, err)
	}
	return nil
}
