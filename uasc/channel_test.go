package uasc_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
	"github.com/jahau/opcua/uasc"
)

// fakeServer drives one HEL/ACK handshake followed by one OPN exchange
// over conn, playing the server side well enough to exercise
// SecureChannel.Open without a real OPC UA server.
func fakeServer(t *testing.T, conn net.Conn, channelID, tokenID uint32, lifetimeMs uint32) {
	t.Helper()

	if err := readExpectedMessage(conn, "HEL"); err != nil {
		t.Errorf("server: reading HEL: %v", err)
		return
	}
	ackBody := make([]byte, 20)
	binary.LittleEndian.PutUint32(ackBody[4:8], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[8:12], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[12:16], 1<<20)
	if err := writeFrame(conn, "ACK", ackBody); err != nil {
		t.Errorf("server: writing ACK: %v", err)
		return
	}

	if err := readExpectedMessage(conn, "OPN"); err != nil {
		t.Errorf("server: reading OPN: %v", err)
		return
	}
	var resp []byte
	resp = appendUint32(resp, 0) // ServerProtocolVersion
	resp = appendUint32(resp, 0) // ServiceResult = Good
	resp = appendUint32(resp, channelID)
	resp = appendUint32(resp, tokenID)
	resp = appendUint32(resp, 0) // CreatedAt = unix epoch ms
	resp = appendUint32(resp, lifetimeMs)
	resp = appendUint32(resp, 0xFFFFFFFF) // ServerNonce = null
	if err := writeFrame(conn, "OPN", resp); err != nil {
		t.Errorf("server: writing OPN response: %v", err)
	}
}

func readExpectedMessage(conn net.Conn, want string) error {
	_, err := readMessageBody(conn, want)
	return err
}

// readMessageBody reads one frame and returns its body (header stripped)
// without inspecting the message type, for callers that need to look
// inside the body (e.g. the leading requestId field of an OPN request).
func readMessageBody(conn net.Conn, want string) ([]byte, error) {
	header := make([]byte, 8)
	if _, err := readFullConn(conn, header); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[4:8])
	body := make([]byte, size-8)
	if _, err := readFullConn(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeFrame(conn net.Conn, msgType string, body []byte) error {
	header := make([]byte, 8)
	copy(header[0:3], msgType)
	header[3] = 'F'
	binary.LittleEndian.PutUint32(header[4:8], uint32(8+len(body)))
	_, err := conn.Write(append(header, body...))
	return err
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func readFullConn(c net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestSecureChannelOpenIssuesToken(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := uacp.NewConn(clientConn, uacp.DefaultLocalConnectionConfig())

	go fakeServer(t, serverConn, 42, 7, 60000)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := uacp.Hello(ctx, c, "opc.tcp://localhost:4840", time.Second); err != nil {
		t.Fatalf("Hello: %v", err)
	}

	ch := uasc.New(c, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, time.Minute, time.Second, time.Now); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ch.State() != uasc.StateOpen {
		t.Errorf("state = %v, want StateOpen", ch.State())
	}
	if ch.NextChannelRenewal().IsZero() {
		t.Error("NextChannelRenewal should be set after a successful Open")
	}
}

func TestSecureChannelOpenRenewIsNoOpBeforeDeadline(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := uacp.NewConn(clientConn, uacp.DefaultLocalConnectionConfig())
	go fakeServer(t, serverConn, 1, 1, 60000)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := uacp.Hello(ctx, c, "opc.tcp://localhost:4840", time.Second); err != nil {
		t.Fatalf("Hello: %v", err)
	}
	ch := uasc.New(c, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, time.Minute, time.Second, time.Now); err != nil {
		t.Fatalf("initial Open: %v", err)
	}

	// A renew call before the channel's own nextChannelRenewal deadline
	// must be a no-op and must not touch the transport, so no second fake
	// response is queued.
	if err := ch.Open(ctx, true, time.Minute, time.Second, time.Now); err != nil {
		t.Fatalf("renew-before-deadline Open: %v", err)
	}
}

// fakeServerCapturingIDs behaves like fakeServer but handles n OPN
// exchanges in a row and records the leading requestId field of each one
// it reads, in arrival order.
func fakeServerCapturingIDs(t *testing.T, conn net.Conn, ids *[]uint32, n int, lifetimeMs uint32) {
	t.Helper()

	if err := readExpectedMessage(conn, "HEL"); err != nil {
		t.Errorf("server: reading HEL: %v", err)
		return
	}
	ackBody := make([]byte, 20)
	binary.LittleEndian.PutUint32(ackBody[4:8], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[8:12], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[12:16], 1<<20)
	if err := writeFrame(conn, "ACK", ackBody); err != nil {
		t.Errorf("server: writing ACK: %v", err)
		return
	}

	for i := 0; i < n; i++ {
		body, err := readMessageBody(conn, "OPN")
		if err != nil {
			t.Errorf("server: reading OPN %d: %v", i, err)
			return
		}
		if len(body) < 4 {
			t.Errorf("server: OPN %d body too short for a requestId field", i)
			return
		}
		*ids = append(*ids, binary.LittleEndian.Uint32(body[:4]))

		var resp []byte
		resp = appendUint32(resp, 0) // ServerProtocolVersion
		resp = appendUint32(resp, 0) // ServiceResult = Good
		resp = appendUint32(resp, 1) // ChannelID
		resp = appendUint32(resp, 1) // TokenID
		resp = appendUint32(resp, 0) // CreatedAt = unix epoch ms
		resp = appendUint32(resp, lifetimeMs)
		resp = appendUint32(resp, 0xFFFFFFFF) // ServerNonce = null
		if err := writeFrame(conn, "OPN", resp); err != nil {
			t.Errorf("server: writing OPN %d response: %v", i, err)
			return
		}
	}
}

// TestSecureChannelRequestIDsIncreaseOnWire confirms that the requestId
// field the client writes as the leading bytes of each OPN request body
// is not only incremented internally but actually lands on the wire, and
// keeps increasing across an issue followed by a renewal on the same
// channel.
func TestSecureChannelRequestIDsIncreaseOnWire(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := uacp.NewConn(clientConn, uacp.DefaultLocalConnectionConfig())
	var ids []uint32
	go fakeServerCapturingIDs(t, serverConn, &ids, 2, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := uacp.Hello(ctx, c, "opc.tcp://localhost:4840", time.Second); err != nil {
		t.Fatalf("Hello: %v", err)
	}

	ch := uasc.New(c, uasc.NewNonePolicy(ua.MessageSecurityModeNone))
	if err := ch.Open(ctx, false, time.Minute, time.Second, time.Now); err != nil {
		t.Fatalf("initial Open: %v", err)
	}

	time.Sleep(5 * time.Millisecond) // past the 0.75ms*lifetimeMs renewal deadline

	if err := ch.Open(ctx, true, time.Minute, time.Second, time.Now); err != nil {
		t.Fatalf("renew Open: %v", err)
	}

	if len(ids) != 2 {
		t.Fatalf("observed %d OPN requestIds on the wire, want 2", len(ids))
	}
	if ids[1] <= ids[0] {
		t.Errorf("requestId did not increase across OPN exchanges: %v", ids)
	}
}
