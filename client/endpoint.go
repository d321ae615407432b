package client

import (
	"log/slog"

	"github.com/jahau/opcua/ua"
)

// selectEndpoint filters GetEndpoints results down to the ones this
// client can actually use, then picks the configured user-token policy
// from the chosen endpoint. Both the endpoint and the policy are
// deep-copied before being returned so later mutation by the caller
// can't reach back into the original GetEndpoints response slice.
func (c *Config) selectEndpoint(endpoints []ua.EndpointDescription) (ua.EndpointDescription, ua.UserTokenPolicy, error) {
	for i := range endpoints {
		e := &endpoints[i]

		if !qualifiesTransport(e.TransportProfileURI) {
			continue
		}
		if !qualifiesMode(e.SecurityMode) {
			continue
		}
		if c.securityMode != ua.MessageSecurityModeInvalid && e.SecurityMode != c.securityMode {
			continue
		}
		if c.securityPolicyURI != "" && e.SecurityPolicyURI != c.securityPolicyURI {
			continue
		}
		if e.SecurityPolicyURI != ua.SecurityPolicyURINone {
			if _, ok := c.policyByURI(e.SecurityPolicyURI); !ok {
				continue
			}
		}

		policy, ok := selectUserTokenPolicy(e.UserIdentityTokens, e.SecurityPolicyURI, c)
		if !ok {
			continue
		}
		return e.Clone(), policy.Clone(), nil
	}
	slog.Warn("no suitable endpoint found", "candidates", len(endpoints))
	return ua.EndpointDescription{}, ua.UserTokenPolicy{}, ua.BadInternalError
}

// qualifiesTransport accepts the binary transport profile URI this client
// speaks, plus an empty URI — some servers (notably Siemens S7-1500
// controllers) omit TransportProfileURI from GetEndpoints responses
// entirely, and an omitted URI is treated as "the one profile this
// client supports" rather than a rejection.
func qualifiesTransport(uri string) bool {
	return uri == "" || uri == ua.TransportProfileURIUaTcpTransport
}

// qualifiesMode rejects the Invalid mode outright; every other declared
// mode is a candidate until the configured mode (if any) narrows further.
func qualifiesMode(mode ua.MessageSecurityMode) bool {
	switch mode {
	case ua.MessageSecurityModeNone, ua.MessageSecurityModeSign, ua.MessageSecurityModeSignAndEncrypt:
		return true
	default:
		return false
	}
}

// selectUserTokenPolicy qualifies candidate token policies: a policy's
// own securityPolicyURI must have a local certificate bound when
// non-empty, its tokenType must be one of the four kinds this client
// understands, and it must match the identity kind the caller
// configured (Anonymous only matches Anonymous, with an absent
// TokenType treated as Anonymous for servers that omit it).
func selectUserTokenPolicy(policies []ua.UserTokenPolicy, endpointPolicyURI string, c *Config) (ua.UserTokenPolicy, bool) {
	wantType := identityTokenType(c.userIdentity)
	for _, p := range policies {
		if p.SecurityPolicyURI != "" {
			if _, ok := c.policyByURI(p.SecurityPolicyURI); !ok {
				continue
			}
		}
		if p.TokenType > ua.UserTokenTypeIssued {
			continue
		}
		if p.TokenType == wantType {
			return p, true
		}
	}
	slog.Warn("no suitable user token policy found", "endpoint security policy", endpointPolicyURI)
	return ua.UserTokenPolicy{}, false
}

func identityTokenType(identity any) ua.UserTokenType {
	switch identity.(type) {
	case ua.UserNameIdentity:
		return ua.UserTokenTypeUserName
	case ua.X509Identity:
		return ua.UserTokenTypeCertificate
	case ua.IssuedIdentity:
		return ua.UserTokenTypeIssued
	default:
		return ua.UserTokenTypeAnonymous
	}
}
