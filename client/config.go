package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
)

const (
	defaultSessionTimeout        = 20 * time.Minute
	defaultSecureChannelLifetime = 60 * time.Minute
	defaultTimeout               = 15 * time.Second
	defaultConnectTimeout        = 5 * time.Second
)

// SecurityPolicyDescriptor binds a security policy URI to the local
// certificate material needed to use it.
type SecurityPolicyDescriptor struct {
	PolicyURI    string
	PfxPath      string
	PfxPassword  string
}

// Config holds every Dial option, built via the functional-options
// pattern (client.Dial(ctx, url, opts...)).
type Config struct {
	local LocalConnectionConfig

	securityPolicies  []SecurityPolicyDescriptor
	securityMode      ua.MessageSecurityMode
	securityPolicyURI string

	userIdentity any // ua.AnonymousIdentity | ua.UserNameIdentity | ua.X509Identity | ua.IssuedIdentity

	endpoint        *ua.EndpointDescription
	userTokenPolicy *ua.UserTokenPolicy

	secureChannelLifetime time.Duration
	sessionTimeout        time.Duration
	timeout               time.Duration
	connectTimeout        time.Duration

	applicationName string
	applicationURI  string

	stateCallback StateCallback
}

// LocalConnectionConfig is the buffer/message-size configuration
// advertised in the client's Hello message.
type LocalConnectionConfig = uacp.LocalConnectionConfig

// Option configures a Config, applied in Dial.
type Option func(*Config) error

func defaultConfig() *Config {
	return &Config{
		local:                 uacp.DefaultLocalConnectionConfig(),
		securityMode:          ua.MessageSecurityModeInvalid, // Unset: accept any valid
		userIdentity:          ua.AnonymousIdentity{},
		secureChannelLifetime: defaultSecureChannelLifetime,
		sessionTimeout:        defaultSessionTimeout,
		timeout:               defaultTimeout,
		connectTimeout:        defaultConnectTimeout,
		applicationName:       "opcua-client",
		applicationURI:        fmt.Sprintf("urn:%s:opcua-client:%s", hostname, uuid.NewString()),
	}
}

// WithSecurityPolicy registers a local certificate for the given policy
// URI, so endpoint selection can find a local match for endpoints that
// require it.
func WithSecurityPolicy(uri, pfxPath, pfxPassword string) Option {
	return func(c *Config) error {
		c.securityPolicies = append(c.securityPolicies, SecurityPolicyDescriptor{
			PolicyURI: uri, PfxPath: pfxPath, PfxPassword: pfxPassword,
		})
		return nil
	}
}

// WithSecurityMode sets the desired security mode; Unset (the default)
// accepts any valid mode.
func WithSecurityMode(mode ua.MessageSecurityMode) Option {
	return func(c *Config) error { c.securityMode = mode; return nil }
}

// WithSecurityPolicyURI sets the desired policy URI; empty (the default)
// accepts any available policy.
func WithSecurityPolicyURI(uri string) Option {
	return func(c *Config) error { c.securityPolicyURI = uri; return nil }
}

// WithUserIdentity sets the identity presented during ActivateSession.
func WithUserIdentity(identity any) Option {
	return func(c *Config) error { c.userIdentity = identity; return nil }
}

// WithEndpoint pre-selects an endpoint and user-token policy, skipping
// endpoint discovery entirely.
func WithEndpoint(endpoint ua.EndpointDescription, policy ua.UserTokenPolicy) Option {
	return func(c *Config) error {
		e := endpoint.Clone()
		p := policy.Clone()
		c.endpoint = &e
		c.userTokenPolicy = &p
		return nil
	}
}

// WithSessionTimeout sets the requested CreateSession timeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Config) error { c.sessionTimeout = d; return nil }
}

// WithSecureChannelLifetime sets the requested OPN token lifetime.
func WithSecureChannelLifetime(d time.Duration) Option {
	return func(c *Config) error { c.secureChannelLifetime = d; return nil }
}

// WithTimeout sets the per-step deadline used by HEL/ACK, OPN and the
// session-establishment event loop.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error { c.timeout = d; return nil }
}

// WithApplicationName sets the client's ApplicationDescription.ApplicationName.
func WithApplicationName(name string) Option {
	return func(c *Config) error { c.applicationName = name; return nil }
}

// WithStateCallback registers an observer invoked on every state change.
func WithStateCallback(cb StateCallback) Option {
	return func(c *Config) error { c.stateCallback = cb; return nil }
}

// WithReceiveBufferSize overrides the receive buffer size advertised in
// the client's Hello message. uacp.Hello rejects values below
// ua.MinMessageSize before any bytes go on the wire.
func WithReceiveBufferSize(n uint32) Option {
	return func(c *Config) error { c.local.ReceiveBufferSize = n; return nil }
}

// discoveryNeeded reports whether endpoint discovery must run: true
// unless both the endpoint and the user-token policy are set (WithEndpoint
// sets them together). Unset is represented as an explicit nil pointer
// rather than zero-value detection.
func (c *Config) discoveryNeeded() bool {
	return c.endpoint == nil || c.userTokenPolicy == nil
}

// policyByURI looks up a configured security policy descriptor by exact
// URI match.
func (c *Config) policyByURI(uri string) (SecurityPolicyDescriptor, bool) {
	for _, p := range c.securityPolicies {
		if p.PolicyURI == uri {
			return p, true
		}
	}
	return SecurityPolicyDescriptor{}, false
}
