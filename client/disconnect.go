package client

import (
	"context"

	"github.com/jahau/opcua/ua"
)

// disconnect is a best-effort, idempotent, reverse-order teardown. Every
// step runs even if an earlier one failed or was skipped — the goal is
// to leave the Client in StateDisconnected with no dangling resources,
// not to report the first error encountered.
func (cl *Client) disconnect(ctx context.Context, deleteSubscriptions bool) {
	state := cl.state.Get()

	if state >= StateSession {
		cctx, cancel := context.WithTimeout(ctx, cl.config.timeout)
		_, _ = cl.request(cctx, &ua.CloseSessionRequest{DeleteSubscriptions: deleteSubscriptions})
		cancel()
	}
	cl.sessionID = ua.NodeID{}
	cl.requestHandle = 0
	if cl.channel != nil {
		cl.channel.SetAuthenticationToken(ua.NodeID{})
	}

	if state >= StateSecureChannel && cl.channel != nil {
		cctx, cancel := context.WithTimeout(ctx, cl.config.timeout)
		_ = cl.channel.Close(cctx, cl.config.timeout)
		cancel()
	}

	if cl.connection != nil {
		_ = cl.connection.Close()
	}

	cl.namespaceURIs = nil
	cl.serverURIs = nil
	if cl.channel != nil {
		cl.channel.FailPending(ua.BadShutdown)
	}

	cl.state.Set(StateDisconnected)
}

// Close performs a graceful disconnect: CloseSession (with subscriptions
// deleted), CloseSecureChannel, then transport close.
func (cl *Client) Close(ctx context.Context) error {
	cl.disconnect(ctx, true)
	return nil
}

// Abort performs the same teardown as Close but does not wait on a
// CloseSession round-trip — used when the connection is already known to
// be broken.
func (cl *Client) Abort(ctx context.Context) error {
	actx, cancel := context.WithCancel(ctx)
	cancel() // already-canceled: any attempted CloseSession fails fast rather than blocking
	cl.disconnect(actx, false)
	return nil
}
