package bkwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest payload this decoder will accept.
const MaxFrameLength = 2 << 20 // 2 MiB

// ErrFrameTooLarge is returned by ReadFrame when the declared length
// exceeds MaxFrameLength. It is connection-fatal.
var ErrFrameTooLarge = errors.New("bkwire: frame exceeds max frame length")

// ErrCorruptFrame wraps a payload decode failure. It is connection-fatal.
type ErrCorruptFrame struct {
	Err error
}

func (e *ErrCorruptFrame) Error() string { return fmt.Sprintf("bkwire: corrupt frame: %v", e.Err) }
func (e *ErrCorruptFrame) Unwrap() error { return e.Err }

var lenPrefixSize = 4

// ReadFrame reads one length-prefixed frame from r: a uint32 big-endian
// byte count followed by that many payload bytes. It returns
// ErrFrameTooLarge without consuming the payload if the declared length
// exceeds MaxFrameLength.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	var n = binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	var payload = make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its big-endian uint32
// length. It returns ErrFrameTooLarge without writing anything if
// payload exceeds MaxFrameLength.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// EncodeRequest frames and encodes req for the wire.
func EncodeRequest(w io.Writer, codec Codec, req *Request) error {
	payload, err := codec.MarshalRequest(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// DecodeRequest reads and decodes one request frame from r.
func DecodeRequest(r io.Reader, codec Codec) (*Request, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	req, err := codec.UnmarshalRequest(payload)
	if err != nil {
		return nil, &ErrCorruptFrame{Err: err}
	}
	return req, nil
}

// EncodeResponse frames and encodes resp for the wire.
func EncodeResponse(w io.Writer, codec Codec, resp *Response) error {
	payload, err := codec.MarshalResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// DecodeResponse reads and decodes one response frame from r.
func DecodeResponse(r io.Reader, codec Codec) (*Response, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	resp, err := codec.UnmarshalResponse(payload)
	if err != nil {
		return nil, &ErrCorruptFrame{Err: err}
	}
	return resp, nil
}
