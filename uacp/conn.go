package uacp

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/djherbis/buffer"
	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
)

// State is the lifecycle of a uacp connection: Closed until Dial, Opening
// until the HEL/ACK handshake completes, Established once it can carry
// OPN/MSG traffic.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateEstablished
)

// LocalConnectionConfig is the buffer/message-size configuration this
// client advertises in its Hello message.
type LocalConnectionConfig struct {
	ReceiveBufferSize   uint32
	SendBufferSize      uint32
	MaxMessageSize      uint32
	MaxChunkCount       uint32
	ProtocolVersion     uint32
}

// DefaultLocalConnectionConfig returns sane buffer sizes, scaled up to
// satisfy MinMessageSize.
func DefaultLocalConnectionConfig() LocalConnectionConfig {
	return LocalConnectionConfig{
		ReceiveBufferSize: ua.MinMessageSize,
		SendBufferSize:    ua.MinMessageSize,
		MaxMessageSize:    1 << 20, // 1 MiB, generous headroom over MaxDataSize
		MaxChunkCount:     0,       // unbounded
		ProtocolVersion:   0,
	}
}

// bufferPool backs GetSendBuffer. A single package-level pool of
// ua.MinMessageSize-byte buffers, whatever a Conn's configured send
// buffer size, is shared by every Conn rather than allocating one
// buffer.MemPool per channel.
var bufferPool = buffer.NewMemPoolAt(int64(ua.MinMessageSize))

// Conn is a single TCP connection carrying the uacp/uasc protocol stack.
// Only the client role is implemented.
type Conn struct {
	conn   net.Conn
	local  LocalConnectionConfig
	remote LocalConnectionConfig

	mu    sync.Mutex
	state State
}

// Dial opens a TCP connection to the endpoint URL's host:port and leaves
// it in StateOpening; the HEL/ACK handshake (Hello/ReadAcknowledge) must
// follow before the connection is usable for OPN.
func Dial(ctx context.Context, endpointURL string, local LocalConnectionConfig, timeout time.Duration) (*Conn, error) {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return nil, errors.Wrap(err, "uacp: invalid endpoint url")
	}
	if u.Scheme != "opc.tcp" {
		return nil, errors.Errorf("uacp: unsupported scheme %q", u.Scheme)
	}
	d := net.Dialer{}
	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c, err := d.DialContext(dialCtx, "tcp", u.Host)
	if err != nil {
		return nil, errors.Wrap(err, "uacp: dial failed")
	}
	return &Conn{conn: c, local: local, state: StateOpening}, nil
}

// NewConn wraps an already-open net.Conn (used by tests with net.Pipe).
func NewConn(c net.Conn, local LocalConnectionConfig) *Conn {
	return &Conn{conn: c, local: local, state: StateOpening}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// RemoteConfig returns the negotiated remote buffer configuration, valid
// once the Acknowledge handshake has completed.
func (c *Conn) RemoteConfig() LocalConnectionConfig { return c.remote }

// EffectiveSendBufferSize is min(local, remote): a message body must
// never exceed what the smaller side of the handshake agreed to accept.
func (c *Conn) EffectiveSendBufferSize() uint32 {
	return minu32(c.local.SendBufferSize, c.remote.SendBufferSize)
}

// EffectiveReceiveBufferSize is min(local, remote).
func (c *Conn) EffectiveReceiveBufferSize() uint32 {
	return minu32(c.local.ReceiveBufferSize, c.remote.ReceiveBufferSize)
}

func minu32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// SendBuffer is a pooled buffer acquired from the transport for building
// an outgoing message body. Callers MUST call Release on every exit path
// that does not end in a successful Send. Neither Release nor Send hands
// the buffer back to bufferPool; both only reset it.
type SendBuffer struct {
	buf      buffer.BufferAt
	released bool
	sent     bool
}

// GetSendBuffer acquires a pooled buffer.
func (c *Conn) GetSendBuffer() *SendBuffer {
	return &SendBuffer{buf: bufferPool.Get()}
}

// Release discards the buffer's contents without sending it and marks it
// released; the buffer is not put back into bufferPool. Safe to call
// more than once or after Send.
func (sb *SendBuffer) Release() {
	if sb.released || sb.sent {
		return
	}
	sb.buf.Reset()
	sb.released = true
}

func (sb *SendBuffer) Write(p []byte) (int, error) { return sb.buf.Write(p) }

// Send writes the buffer's contents as a single message of type t and
// consumes the buffer (ownership transfers here, so Release after Send
// is a no-op).
func (c *Conn) Send(t MessageType, sb *SendBuffer) error {
	defer func() { sb.sent = true; sb.buf.Reset() }()
	body := make([]byte, sb.buf.Len())
	if _, err := sb.buf.Read(body); err != nil {
		return errors.Wrap(err, "uacp: draining send buffer")
	}
	if err := writeMessage(c.conn, t, body); err != nil {
		return errors.Wrap(err, "uacp: send failed")
	}
	return nil
}

// Receive blocks until one complete message of the expected type
// arrives, or ctx is done / the deadline passes.
func (c *Conn) Receive(ctx context.Context, want MessageType, deadline time.Time) ([]byte, error) {
	if !deadline.IsZero() {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := readMessage(c.conn, want)
		ch <- result{body, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if isTimeoutOrClosed(r.err) {
				return nil, ua.BadConnectionClosed
			}
			return nil, r.err
		}
		return r.body, nil
	}
}

// ReceiveAny blocks until one complete message of any type arrives. It is
// used by uasc.SecureChannel's dispatch loop, which routes OPN responses
// and MSG traffic to different decoders.
//
// If ctx is canceled before the read completes, ReceiveAny returns
// immediately but the goroutine it spawned is left blocked on the
// underlying net.Conn.Read until data arrives or the connection is
// closed; a subsequent Receive/ReceiveAny call then has two goroutines
// reading the same net.Conn concurrently. Closing the connection on
// cancellation (or tracking the in-flight read) would close this gap.
func (c *Conn) ReceiveAny(ctx context.Context, deadline time.Time) (MessageType, []byte, error) {
	if !deadline.IsZero() {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	type result struct {
		t    MessageType
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		t, body, err := readAnyMessage(c.conn)
		ch <- result{t, body, err}
	}()
	select {
	case <-ctx.Done():
		return MessageType{}, nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if isTimeoutOrClosed(r.err) {
				return MessageType{}, nil, ua.BadConnectionClosed
			}
			return MessageType{}, nil, r.err
		}
		return r.t, r.body, nil
	}
}

func isTimeoutOrClosed(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok && t.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

// Close closes the underlying TCP connection. Idempotent.
func (c *Conn) Close() error {
	c.setState(StateClosed)
	return c.conn.Close()
}
