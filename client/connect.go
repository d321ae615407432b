package client

import (
	"context"
	"crypto/x509"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
	"github.com/jahau/opcua/uasc"
)

var hostname, _ = os.Hostname()

// Dial discovers endpoints (unless one was pre-selected via
// WithEndpoint), selects one, opens a secure channel, establishes a
// session, and starts background channel renewal. On any failure it
// tears the connection down via Abort before returning, so callers
// never hold a half-open Client.
func Dial(ctx context.Context, endpointURL string, opts ...Option) (*Client, error) {
	return dial(ctx, endpointURL, true, opts)
}

// DialNoSession runs the same discover-select-open sequence as Dial but
// stops once the secure channel is established, skipping CreateSession
// and ActivateSession entirely. The returned Client's State() is
// StateSecureChannel rather than StateSession, and no background
// renewal is started — a caller that later wants a session should
// disconnect and Dial instead.
func DialNoSession(ctx context.Context, endpointURL string, opts ...Option) (*Client, error) {
	return dial(ctx, endpointURL, false, opts)
}

// DialWithUsername is Dial with a UserName identity token installed
// ahead of time, for servers whose only usable endpoint requires
// username/password authentication.
func DialWithUsername(ctx context.Context, endpointURL, username, password string, opts ...Option) (*Client, error) {
	opts = append(opts, WithUserIdentity(ua.UserNameIdentity{UserName: username, Password: password}))
	return Dial(ctx, endpointURL, opts...)
}

func dial(ctx context.Context, endpointURL string, withSession bool, opts []Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	cl := &Client{
		config:      cfg,
		endpointURL: endpointURL,
		localDescription: ua.ApplicationDescription{
			ApplicationName: ua.LocalizedText{Text: cfg.applicationName},
			ApplicationType: ua.ApplicationTypeClient,
			ApplicationURI:  cfg.applicationURI,
		},
	}
	cl.state = stateRegister{callback: cfg.stateCallback}

	if err := cl.connect(ctx, withSession); err != nil {
		_ = cl.Abort(ctx)
		return nil, err
	}
	return cl, nil
}

// connect runs the discovery-select-open(-activate) sequence once, with
// a bounded retry for the "server's endpoint disagrees with our chosen
// policy after the fact" case: at most one retry, driven by a loop
// counter rather than recursion.
//
// Reentry is a no-op: a Client that already reached the state this call
// is asking for returns immediately without touching the network, so a
// caller that isn't sure whether a previous Dial attempt got far enough
// can safely call connect again.
func (cl *Client) connect(ctx context.Context, withSession bool) error {
	want := StateSecureChannel
	if withSession {
		want = StateSession
	}
	if cl.state.Get() >= want {
		return nil
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := cl.connectOnce(ctx, withSession)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ua.BadSecurityModeRejected) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (cl *Client) connectOnce(ctx context.Context, withSession bool) error {
	endpoint, policy, err := cl.resolveEndpoint(ctx)
	if err != nil {
		return err
	}

	secPolicy, err := cl.bindSecurityPolicy(endpoint)
	if err != nil {
		return err
	}
	cl.secPolicy = secPolicy

	cl.verifyApplicationURI(secPolicy)

	conn, err := uacp.Dial(ctx, endpoint.EndpointURL, cl.config.local, cl.config.connectTimeout)
	if err != nil {
		return err
	}
	cl.connection = conn
	cl.state.Set(StateConnected)

	if err := uacp.Hello(ctx, conn, endpoint.EndpointURL, cl.config.timeout); err != nil {
		return err
	}

	ch := uasc.New(conn, secPolicy)
	cl.channel = ch
	if err := ch.Open(ctx, false, cl.config.secureChannelLifetime, cl.config.timeout, time.Now); err != nil {
		return err
	}
	cl.state.Set(StateSecureChannel)
	cl.endpointURL = endpoint.EndpointURL

	if !withSession {
		return nil
	}

	if err := cl.establishSession(ctx, endpoint, policy); err != nil {
		return err
	}
	cl.state.Set(StateSession)

	cl.readNamespaceArrays(ctx)

	cl.renewal = newRenewalPool()
	cl.renewal.Submit(cl.renewalLoop(ctx))

	return nil
}

// resolveEndpoint uses the pre-selected endpoint/policy if configured
// (WithEndpoint), otherwise opens a short-lived discovery connection,
// calls GetEndpoints, and runs the Endpoint Selector over the results.
func (cl *Client) resolveEndpoint(ctx context.Context) (ua.EndpointDescription, ua.UserTokenPolicy, error) {
	if !cl.config.discoveryNeeded() {
		return *cl.config.endpoint, *cl.config.userTokenPolicy, nil
	}

	endpoints, err := cl.getEndpoints(ctx)
	if err != nil {
		return ua.EndpointDescription{}, ua.UserTokenPolicy{}, err
	}
	return cl.config.selectEndpoint(endpoints)
}

// getEndpoints is the same bootstrap as the package-level GetEndpoints,
// but reuses this client's already-built Config rather than taking its
// own Option list — it runs as part of an in-progress Dial, not as a
// standalone call.
func (cl *Client) getEndpoints(ctx context.Context) ([]ua.EndpointDescription, error) {
	conn, err := uacp.Dial(ctx, cl.endpointURL, cl.config.local, cl.config.connectTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := uacp.Hello(ctx, conn, cl.endpointURL, cl.config.timeout); err != nil {
		return nil, err
	}

	ch := uasc.New(conn, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, cl.config.secureChannelLifetime, cl.config.timeout, time.Now); err != nil {
		return nil, err
	}
	defer ch.Close(ctx, cl.config.timeout)

	req := &ua.GetEndpointsRequest{
		EndpointURL: cl.endpointURL,
		ProfileURIs: []string{ua.TransportProfileURIUaTcpTransport},
	}
	r, err := ch.Request(ctx, req, cl.config.timeout)
	if err != nil {
		return nil, err
	}
	gr, ok := r.(*ua.GetEndpointsResponse)
	if !ok {
		return nil, errors.Errorf("client: unexpected response type %T to GetEndpoints", r)
	}
	return gr.Endpoints, nil
}

// bindSecurityPolicy resolves the SecurityPolicy implementation for the
// endpoint's policy URI: None needs nothing, Basic256Sha256 needs a
// locally configured certificate to load via uasc.LoadRSAPolicy. Any
// other policy URI is rejected with BadSecurityModeRejected, which is
// what triggers connect's single retry. The retry runs discovery and
// endpoint selection again with the same Config, so it selects the same
// endpoint unless the server's endpoint list changed in between; the
// rejected endpoint is not excluded.
func (cl *Client) bindSecurityPolicy(endpoint ua.EndpointDescription) (uasc.SecurityPolicy, error) {
	switch endpoint.SecurityPolicyURI {
	case "", ua.SecurityPolicyURINone:
		return uasc.NewNonePolicy(ua.MessageSecurityModeNone), nil
	case ua.SecurityPolicyURIBasic256Sha256:
		desc, ok := cl.config.policyByURI(endpoint.SecurityPolicyURI)
		if !ok {
			return nil, errors.Wrap(ua.BadSecurityModeRejected, "client: no local certificate bound for Basic256Sha256")
		}
		return uasc.LoadRSAPolicy(desc.PfxPath, desc.PfxPassword, endpoint.SecurityMode, []byte(endpoint.ServerCertificate))
	default:
		return nil, errors.Wrapf(ua.BadSecurityModeRejected, "client: unsupported security policy %q", endpoint.SecurityPolicyURI)
	}
}

// verifyApplicationURI checks, warn-only, that the application
// certificate bound to the negotiated security policy carries this
// client's own ApplicationURI as a SAN URI entry. A mismatch here is
// usually a certificate provisioning mistake rather than something this
// client can act on, so it is logged rather than treated as a connect
// failure.
func (cl *Client) verifyApplicationURI(policy uasc.SecurityPolicy) {
	der := policy.LocalCertificate()
	if len(der) == 0 {
		return
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		slog.Warn("client: parsing local certificate for applicationUri check", "error", err)
		return
	}
	for _, u := range cert.URIs {
		if u.String() == cl.localDescription.ApplicationURI {
			return
		}
	}
	slog.Warn("client: local certificate URI does not match clientDescription.applicationUri",
		"applicationUri", cl.localDescription.ApplicationURI)
}

// establishSession runs CreateSession, the server-signature check,
// identity-token selection and ActivateSession.
func (cl *Client) establishSession(ctx context.Context, endpoint ua.EndpointDescription, policy ua.UserTokenPolicy) error {
	localNonce := cl.secPolicy.GenerateNonce(ua.LocalNonceLength)

	csr, err := cl.createSession(ctx, localNonce)
	if err != nil {
		return err
	}
	cl.sessionID = csr.SessionID
	cl.channel.SetAuthenticationToken(csr.AuthenticationToken)

	if string(csr.ServerCertificate) != string(endpoint.ServerCertificate) {
		return ua.BadCertificateInvalid
	}
	if err := cl.secPolicy.VerifySessionSignature(
		append(append([]byte{}, cl.secPolicy.LocalCertificate()...), localNonce...),
		csr.ServerSignature,
	); err != nil {
		return err
	}

	identityToken, identitySig, err := cl.buildIdentityToken([]byte(csr.ServerCertificate), []byte(csr.ServerNonce), policy)
	if err != nil {
		return err
	}
	clientSig, err := cl.secPolicy.SignSessionData(append(append([]byte{}, []byte(csr.ServerCertificate)...), []byte(csr.ServerNonce)...))
	if err != nil {
		return err
	}

	if _, err := cl.activateSession(ctx, identityToken, identitySig, clientSig); err != nil {
		return err
	}
	return nil
}

// renewalLoop is the background secure-channel renewal task, submitted
// to a single-worker pool so it never overlaps with itself. It can still
// run concurrently with a foreground Request/Open call from the
// caller's own goroutine; SecureChannel's own ioMu is what keeps the two
// from interleaving on the wire.
func (cl *Client) renewalLoop(ctx context.Context) func() {
	return func() {
		for {
			if cl.state.Get() < StateSecureChannel {
				return
			}
			wait := time.Until(cl.channel.NextChannelRenewal())
			if wait <= 0 {
				wait = time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if cl.state.Get() < StateSecureChannel {
				return
			}
			if err := cl.channel.Open(ctx, true, cl.config.secureChannelLifetime, cl.config.timeout, time.Now); err != nil {
				return
			}
			cl.state.Set(StateSessionRenewed)
		}
	}
}
