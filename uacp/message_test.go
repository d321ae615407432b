package uacp

import (
	"bytes"
	"testing"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5}
	var buf bytes.Buffer
	if err := writeMessage(&buf, MessageTypeMessage, body); err != nil {
		t.Fatalf("writeMessage: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != 8+len(body) {
		t.Fatalf("wire length = %d, want %d", len(raw), 8+len(body))
	}
	if string(raw[0:3]) != "MSG" {
		t.Errorf("type bytes = %q, want MSG", raw[0:3])
	}
	if raw[3] != byte(ChunkTypeFinal) {
		t.Errorf("chunk byte = %q, want %q", raw[3], ChunkTypeFinal)
	}

	got, err := readMessage(bytes.NewReader(raw), MessageTypeMessage)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("body = %v, want %v", got, body)
	}
}

func TestReadMessageWrongTypeIsError(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, MessageTypeAcknowledge, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := readMessage(bytes.NewReader(buf.Bytes()), MessageTypeHello); err == nil {
		t.Fatal("expected error reading ACK frame as HEL")
	}
}

func TestReadAnyMessageTranslatesERR(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, MessageTypeError, []byte{0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readAnyMessage(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected an error for an ERR message")
	}
}

func TestHeaderRejectsUndersizedMessage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("HEL")
	buf.WriteByte('F')
	buf.Write([]byte{0, 0, 0, 0}) // size = 0, below the 8-byte header itself
	if _, err := readHeader(&buf); err == nil {
		t.Fatal("expected error for message size below header size")
	}
}
