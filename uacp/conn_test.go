package uacp_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/jahau/opcua/ua"
	"github.com/jahau/opcua/uacp"
)

func TestHelloAcknowledgeHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	local := uacp.DefaultLocalConnectionConfig()
	c := uacp.NewConn(client, local)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- uacp.Hello(ctx, c, "opc.tcp://localhost:4840", time.Second)
	}()

	// Read the raw HEL bytes off the wire and verify bit-exact framing:
	// 8-byte header ("HEL" + 'F' + little-endian uint32 size) followed by
	// five little-endian uint32 fields and a length-prefixed string.
	header := make([]byte, 8)
	if _, err := readFull(server, header); err != nil {
		t.Fatalf("reading HEL header: %v", err)
	}
	if string(header[0:3]) != "HEL" {
		t.Fatalf("message type = %q, want HEL", header[0:3])
	}
	if header[3] != 'F' {
		t.Fatalf("chunk type = %q, want F", header[3])
	}
	size := binary.LittleEndian.Uint32(header[4:8])

	body := make([]byte, size-8)
	if _, err := readFull(server, body); err != nil {
		t.Fatalf("reading HEL body: %v", err)
	}
	protocolVersion := binary.LittleEndian.Uint32(body[0:4])
	if protocolVersion != local.ProtocolVersion {
		t.Errorf("protocol version = %d, want %d", protocolVersion, local.ProtocolVersion)
	}
	recvBuf := binary.LittleEndian.Uint32(body[4:8])
	if recvBuf != local.ReceiveBufferSize {
		t.Errorf("receive buffer size = %d, want %d", recvBuf, local.ReceiveBufferSize)
	}

	// Reply with an ACK advertising the server's own config.
	ackBody := make([]byte, 20)
	binary.LittleEndian.PutUint32(ackBody[0:4], 0)
	binary.LittleEndian.PutUint32(ackBody[4:8], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[8:12], ua.MinMessageSize)
	binary.LittleEndian.PutUint32(ackBody[12:16], 1<<20)
	binary.LittleEndian.PutUint32(ackBody[16:20], 0)

	ackHeader := make([]byte, 8)
	copy(ackHeader[0:3], "ACK")
	ackHeader[3] = 'F'
	binary.LittleEndian.PutUint32(ackHeader[4:8], uint32(8+len(ackBody)))
	if _, err := server.Write(append(ackHeader, ackBody...)); err != nil {
		t.Fatalf("writing ACK: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Hello returned error: %v", err)
	}
	if c.State() != uacp.StateEstablished {
		t.Errorf("state = %v, want StateEstablished", c.State())
	}
	if got := c.RemoteConfig().ReceiveBufferSize; got != ua.MinMessageSize {
		t.Errorf("remote receive buffer size = %d, want %d", got, ua.MinMessageSize)
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
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
