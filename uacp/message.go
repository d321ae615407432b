// Package uacp implements the UA Connection Protocol transport layer:
// the 8-byte TCP message header and the HEL/ACK handshake. It is
// narrowed to single-chunk messages — chunk re-assembly for ongoing MSG
// traffic is a publish/subscribe concern, not a connection-establishment
// one, so it isn't implemented here.
package uacp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MessageType is the 3-byte ASCII message type prefix.
type MessageType [3]byte

var (
	MessageTypeHello        = MessageType{'H', 'E', 'L'}
	MessageTypeAcknowledge  = MessageType{'A', 'C', 'K'}
	MessageTypeError        = MessageType{'E', 'R', 'R'}
	MessageTypeOpenChannel  = MessageType{'O', 'P', 'N'}
	MessageTypeMessage      = MessageType{'M', 'S', 'G'}
	MessageTypeCloseChannel = MessageType{'C', 'L', 'O'}
)

// ChunkType is the 1-byte chunk-type suffix.
type ChunkType byte

const (
	ChunkTypeFinal        ChunkType = 'F'
	ChunkTypeIntermediate ChunkType = 'C'
	ChunkTypeAbort        ChunkType = 'A'
)

// header is the 8-byte frame header: 3 ASCII message-type bytes, 1 ASCII
// chunk-type byte, then a little-endian uint32 total message size
// (header included). Encoding the header requires the payload length to
// be known first, so callers build the body into a buffer and prepend
// the header only once its length is final.
type header struct {
	Type      MessageType
	Chunk     ChunkType
	Size      uint32
}

func writeHeader(w io.Writer, h header) error {
	var b [8]byte
	b[0], b[1], b[2] = h.Type[0], h.Type[1], h.Type[2]
	b[3] = byte(h.Chunk)
	binary.LittleEndian.PutUint32(b[4:], h.Size)
	_, err := w.Write(b[:])
	return err
}

func readHeader(r io.Reader) (header, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return header{}, err
	}
	h := header{
		Type:  MessageType{b[0], b[1], b[2]},
		Chunk: ChunkType(b[3]),
		Size:  binary.LittleEndian.Uint32(b[4:]),
	}
	if h.Size < 8 {
		return header{}, errors.Errorf("uacp: invalid message size %d", h.Size)
	}
	return h, nil
}

// writeMessage frames body with a Final-chunk header of the given type
// and writes it whole to w.
func writeMessage(w io.Writer, t MessageType, body []byte) error {
	h := header{Type: t, Chunk: ChunkTypeFinal, Size: uint32(8 + len(body))}
	if err := writeHeader(w, h); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readMessage reads one complete Final-chunk message of the expected
// type and returns its body (header stripped). Intermediate/Abort chunks
// are not produced by this core (HEL/ACK/OPN are always single-chunk),
// so encountering one is treated as a framing error.
func readMessage(r io.Reader, want MessageType) ([]byte, error) {
	t, body, err := readAnyMessage(r)
	if err != nil {
		return nil, err
	}
	if t != want {
		return nil, errors.Errorf("uacp: unexpected message type %s", string(t[:]))
	}
	return body, nil
}

// readAnyMessage reads one complete Final-chunk message of any type and
// returns its type and body (header stripped). An ERR message is
// translated into an error rather than returned as a body.
func readAnyMessage(r io.Reader) (MessageType, []byte, error) {
	h, err := readHeader(r)
	if err != nil {
		return MessageType{}, nil, err
	}
	if h.Chunk != ChunkTypeFinal {
		return MessageType{}, nil, errors.Errorf("uacp: unsupported chunk type %c", h.Chunk)
	}
	body := make([]byte, h.Size-8)
	if _, err := io.ReadFull(r, body); err != nil {
		return MessageType{}, nil, err
	}
	if h.Type == MessageTypeError {
		return MessageType{}, nil, errors.Errorf("uacp: server returned ERR")
	}
	return h.Type, body, nil
}
