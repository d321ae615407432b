package client

import (
	"testing"
	"time"

	"github.com/jahau/opcua/ua"
)

func TestDefaultConfigAcceptsAnySecurityMode(t *testing.T) {
	c := defaultConfig()
	if c.securityMode != ua.MessageSecurityModeInvalid {
		t.Errorf("default securityMode = %v, want Invalid (accept-any)", c.securityMode)
	}
	if c.discoveryNeeded() != true {
		t.Error("a fresh config with no WithEndpoint should need discovery")
	}
}

func TestWithEndpointSkipsDiscoveryAndDeepCopies(t *testing.T) {
	ep := ua.EndpointDescription{
		EndpointURL:        "opc.tcp://plant:4840",
		UserIdentityTokens: []ua.UserTokenPolicy{{PolicyID: "anon"}},
	}
	policy := ua.UserTokenPolicy{PolicyID: "anon"}

	c := defaultConfig()
	if err := WithEndpoint(ep, policy)(c); err != nil {
		t.Fatalf("WithEndpoint: %v", err)
	}
	if c.discoveryNeeded() {
		t.Fatal("WithEndpoint should mark discovery as not needed")
	}

	ep.UserIdentityTokens[0].PolicyID = "mutated"
	if c.endpoint.UserIdentityTokens[0].PolicyID == "mutated" {
		t.Error("WithEndpoint should have deep-copied the endpoint's token list")
	}
}

func TestPolicyByURILookup(t *testing.T) {
	c := defaultConfig()
	if err := WithSecurityPolicy(ua.SecurityPolicyURIBasic256Sha256, "cert.pfx", "secret")(c); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.policyByURI(ua.SecurityPolicyURIBasic256Sha256); !ok {
		t.Error("expected registered policy URI to be found")
	}
	if _, ok := c.policyByURI(ua.SecurityPolicyURINone); ok {
		t.Error("unregistered policy URI should not be found")
	}
}

func TestWithReceiveBufferSizeOverridesLocalConfig(t *testing.T) {
	c := defaultConfig()
	if err := WithReceiveBufferSize(100)(c); err != nil {
		t.Fatal(err)
	}
	if c.local.ReceiveBufferSize != 100 {
		t.Errorf("ReceiveBufferSize = %d, want 100", c.local.ReceiveBufferSize)
	}
}

func TestOptionsApplyOverDefaults(t *testing.T) {
	c := defaultConfig()
	opts := []Option{
		WithSecurityMode(ua.MessageSecurityModeSign),
		WithSecurityPolicyURI(ua.SecurityPolicyURIBasic256Sha256),
		WithTimeout(30 * time.Second),
		WithApplicationName("test-client"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			t.Fatal(err)
		}
	}
	if c.securityMode != ua.MessageSecurityModeSign {
		t.Errorf("securityMode = %v, want Sign", c.securityMode)
	}
	if c.securityPolicyURI != ua.SecurityPolicyURIBasic256Sha256 {
		t.Errorf("securityPolicyURI = %q", c.securityPolicyURI)
	}
	if c.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", c.timeout)
	}
	if c.applicationName != "test-client" {
		t.Errorf("applicationName = %q, want %q", c.applicationName, "test-client")
	}
}
