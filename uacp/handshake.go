package uacp

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jahau/opcua/ua"
)

// Hello sends a HEL message and blocks for the matching ACK. On success
// c.state becomes StateEstablished and c.remote holds the server's
// negotiated buffer sizes. On failure the connection is left open for
// the caller to close; tearing it down is not this function's job.
func Hello(ctx context.Context, c *Conn, endpointURL string, timeout time.Duration) error {
	if c.local.ReceiveBufferSize < ua.MinMessageSize {
		return errors.Errorf("uacp: receiveBufferSize %d below minimum %d", c.local.ReceiveBufferSize, ua.MinMessageSize)
	}

	sb := c.GetSendBuffer()
	if err := encodeHello(sb, c.local, endpointURL); err != nil {
		sb.Release()
		return errors.Wrap(err, "uacp: encoding HEL")
	}
	if err := c.Send(MessageTypeHello, sb); err != nil {
		return err
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	body, err := c.Receive(ctx, MessageTypeAcknowledge, deadline)
	if err != nil {
		return err
	}
	remote, err := decodeAcknowledge(body)
	if err != nil {
		return errors.Wrap(err, "uacp: decoding ACK")
	}
	c.remote = remote
	c.setState(StateEstablished)
	return nil
}

func encodeHello(w *SendBuffer, local LocalConnectionConfig, endpointURL string) error {
	if err := ua.WriteUint32(w, local.ProtocolVersion); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, local.ReceiveBufferSize); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, local.SendBufferSize); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, local.MaxMessageSize); err != nil {
		return err
	}
	if err := ua.WriteUint32(w, local.MaxChunkCount); err != nil {
		return err
	}
	return ua.WriteString(w, endpointURL)
}

func decodeAcknowledge(body []byte) (LocalConnectionConfig, error) {
	r := bytes.NewReader(body)
	var cfg LocalConnectionConfig
	var err error
	if cfg.ProtocolVersion, err = ua.ReadUint32(r); err != nil {
		return cfg, err
	}
	if cfg.ReceiveBufferSize, err = ua.ReadUint32(r); err != nil {
		return cfg, err
	}
	if cfg.SendBufferSize, err = ua.ReadUint32(r); err != nil {
		return cfg, err
	}
	if cfg.MaxMessageSize, err = ua.ReadUint32(r); err != nil {
		return cfg, err
	}
	if cfg.MaxChunkCount, err = ua.ReadUint32(r); err != nil {
		return cfg, err
	}
	return cfg, nil
}
