package client

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
	"github.com/jahau/opcua/uasc"
)

// GetEndpoints is a one-shot discovery helper: it opens a throwaway
// None-security connection to discoveryURL, issues GetEndpoints, tears
// the connection back down, and returns the raw endpoint list — no
// selection logic applied. It does not require an existing Client.
func GetEndpoints(ctx context.Context, discoveryURL string, opts ...Option) ([]ua.EndpointDescription, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	conn, err := uacp.Dial(ctx, discoveryURL, cfg.local, cfg.connectTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := uacp.Hello(ctx, conn, discoveryURL, cfg.timeout); err != nil {
		return nil, err
	}

	ch := uasc.New(conn, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, cfg.secureChannelLifetime, cfg.timeout, time.Now); err != nil {
		return nil, err
	}
	defer ch.Close(ctx, cfg.timeout)

	req := &ua.GetEndpointsRequest{
		EndpointURL: discoveryURL,
		ProfileURIs: []string{ua.TransportProfileURIUaTcpTransport},
	}
	res, err := ch.Request(ctx, req, cfg.timeout)
	if err != nil {
		return nil, err
	}
	gr, ok := res.(*ua.GetEndpointsResponse)
	if !ok {
		return nil, errors.Errorf("client: unexpected response type %T to GetEndpoints", res)
	}
	return gr.Endpoints, nil
}

// FindServers is the other standard discovery service alongside
// GetEndpoints: it opens a throwaway None-security connection to
// discoveryURL, asks for the application descriptions of the servers
// registered there, and tears the connection back down. It does not
// require an existing Client.
func FindServers(ctx context.Context, discoveryURL string, opts ...Option) (*ua.FindServersResponse, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	conn, err := uacp.Dial(ctx, discoveryURL, cfg.local, cfg.connectTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := uacp.Hello(ctx, conn, discoveryURL, cfg.timeout); err != nil {
		return nil, err
	}

	ch := uasc.New(conn, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, cfg.secureChannelLifetime, cfg.timeout, time.Now); err != nil {
		return nil, err
	}
	defer ch.Close(ctx, cfg.timeout)

	req := &ua.FindServersRequest{EndpointURL: discoveryURL}
	res, err := ch.Request(ctx, req, cfg.timeout)
	if err != nil {
		return nil, err
	}
	fr, ok := res.(*ua.FindServersResponse)
	if !ok {
		return nil, errors.Errorf("client: unexpected response type %T to FindServers", res)
	}
	return fr, nil
}
