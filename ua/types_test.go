package ua_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jahau/opcua/ua"
)

func TestEndpointDescriptionCloneIsIndependent(t *testing.T) {
	orig := ua.EndpointDescription{
		EndpointURL:       "opc.tcp://plant:4840",
		SecurityMode:      ua.MessageSecurityModeSign,
		SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256,
		ServerCertificate: ua.ByteString{1, 2, 3},
		UserIdentityTokens: []ua.UserTokenPolicy{
			{PolicyID: "anonymous", TokenType: ua.UserTokenTypeAnonymous},
		},
		Server: ua.ApplicationDescription{
			DiscoveryURLs: []string{"opc.tcp://plant:4840/discovery"},
		},
	}

	clone := orig.Clone()
	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone differs from original before mutation: %s", diff)
	}

	clone.ServerCertificate[0] = 9
	clone.UserIdentityTokens[0].PolicyID = "mutated"
	clone.Server.DiscoveryURLs[0] = "mutated"

	if orig.ServerCertificate[0] == 9 {
		t.Fatal("mutating clone's ServerCertificate affected original")
	}
	if orig.UserIdentityTokens[0].PolicyID == "mutated" {
		t.Fatal("mutating clone's UserIdentityTokens affected original")
	}
	if orig.Server.DiscoveryURLs[0] == "mutated" {
		t.Fatal("mutating clone's DiscoveryURLs affected original")
	}
}

func TestNodeIDEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b ua.NodeID
		want bool
	}{
		{"numeric equal", ua.NodeID{NamespaceIndex: 0, Numeric: 2255}, ua.NodeID{NamespaceIndex: 0, Numeric: 2255}, true},
		{"numeric different namespace", ua.NodeID{NamespaceIndex: 1, Numeric: 1}, ua.NodeID{NamespaceIndex: 2, Numeric: 1}, false},
		{"opaque equal", ua.NodeID{IsOpaque: true, Opaque: ua.ByteString("abc")}, ua.NodeID{IsOpaque: true, Opaque: ua.ByteString("abc")}, true},
		{"opaque vs numeric", ua.NodeID{IsOpaque: true, Opaque: ua.ByteString("abc")}, ua.NodeID{Numeric: 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Errorf("Equal() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestNodeIDIsZero(t *testing.T) {
	if !(ua.NodeID{}).IsZero() {
		t.Fatal("zero-value NodeID should report IsZero")
	}
	if (ua.NodeID{Numeric: 1}).IsZero() {
		t.Fatal("non-zero NodeID should not report IsZero")
	}
}

func TestStatusCodeGoodBad(t *testing.T) {
	if !ua.StatusGood.IsGood() {
		t.Error("StatusGood should be Good")
	}
	if ua.StatusGood.IsBad() {
		t.Error("StatusGood should not be Bad")
	}
	if !ua.BadTimeout.IsBad() {
		t.Error("BadTimeout should be Bad")
	}
	if ua.BadTimeout.IsGood() {
		t.Error("BadTimeout should not be Good")
	}
}

func TestStatusCodeErrorString(t *testing.T) {
	if got := ua.BadTimeout.Error(); got != "BadTimeout" {
		t.Errorf("Error() = %q, want %q", got, "BadTimeout")
	}
	unknown := ua.StatusCode(0x7FFFFFFF)
	if got := unknown.Error(); got == "" {
		t.Error("unknown status code should still render a non-empty string")
	}
}
