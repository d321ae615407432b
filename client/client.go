// Package client implements an OPC UA client connection: endpoint
// discovery and selection, opening a secure channel (via uasc),
// establishing and activating a session, background channel renewal,
// and orderly teardown.
package client

import (
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
	"github.com/jahau/opcua/uasc"
)

// Client is a connected OPC UA client session: a TCP transport, a secure
// channel bound to it, and an application-layer session.
type Client struct {
	config *Config
	state  stateRegister

	endpointURL     string
	localDescription ua.ApplicationDescription

	connection *uacp.Conn
	channel    *uasc.SecureChannel
	secPolicy  uasc.SecurityPolicy

	sessionID     ua.NodeID
	requestHandle uint32

	namespaceURIs []string
	serverURIs    []string

	renewal *workerpool.WorkerPool

	mu sync.Mutex
}

// State returns the client's current connection phase.
func (cl *Client) State() State { return cl.state.Get() }

// EndpointURL returns the URL of the endpoint this client is connected
// to — the server-reported EndpointURL, which may differ from the
// discovery URL passed to Dial.
func (cl *Client) EndpointURL() string { return cl.endpointURL }

// SecurityPolicyURI returns the negotiated secure channel's policy URI.
func (cl *Client) SecurityPolicyURI() string {
	if cl.channel == nil {
		return ""
	}
	return cl.channel.SecurityPolicyURI()
}

// SecurityMode returns the negotiated secure channel's security mode.
func (cl *Client) SecurityMode() ua.MessageSecurityMode {
	if cl.channel == nil {
		return ua.MessageSecurityModeInvalid
	}
	return cl.channel.SecurityMode()
}

// SessionID returns the id of the current session.
func (cl *Client) SessionID() ua.NodeID { return cl.sessionID }

// GetNamespaceURIs returns the server's namespace array, as read right
// after session activation.
func (cl *Client) GetNamespaceURIs() []string { return cl.namespaceURIs }

// GetServerURIs returns the server's server array, read alongside the
// namespace array.
func (cl *Client) GetServerURIs() []string { return cl.serverURIs }

// nextRequestHandle returns a strictly increasing per-client request
// handle. No caller uses it: the request structs in ua carry no
// RequestHeader, so no handle goes on the wire. disconnect resets the
// counter to zero.
func (cl *Client) nextRequestHandle() uint32 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.requestHandle++
	return cl.requestHandle
}
