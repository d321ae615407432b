package ua

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Binary encoding primitives for the OPC UA "Part 6" binary encoding,
// limited to what HEL/ACK and the simplified OPN/CLO bodies need:
// little-endian fixed-width integers and length-prefixed strings/byte
// strings. Structures, arrays of arbitrary types and extension objects
// are not modeled here; request/response payloads use encoding/gob
// instead (see uasc).

// WriteUint32 writes a little-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32 reads a little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteString writes an OPC UA string: an Int32 length (-1 for null)
// followed by the UTF-8 bytes.
func WriteString(w io.Writer, s string) error {
	if s == "" {
		return WriteUint32(w, 0xFFFFFFFF) // -1 as int32, bit-identical
	}
	if err := WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// ReadString reads an OPC UA string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	if n == 0xFFFFFFFF || n == 0 {
		return "", nil
	}
	if n > MaxDataSize*16 {
		return "", errors.Errorf("string length %d exceeds sane bound", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteByteString writes an OPC UA ByteString: an Int32 length (-1 for
// null) followed by the raw bytes.
func WriteByteString(w io.Writer, b ByteString) error {
	if b == nil {
		return WriteUint32(w, 0xFFFFFFFF)
	}
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadByteString reads an OPC UA ByteString.
func ReadByteString(r io.Reader) (ByteString, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0xFFFFFFFF {
		return nil, nil
	}
	buf := make(ByteString, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Constants shared by uacp and uasc.
const (
	MinMessageSize   = 8192
	LocalNonceLength = 32
	MaxDataSize      = 4096
)
