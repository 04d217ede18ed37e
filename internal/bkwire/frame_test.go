package bkwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var codec = JSONCodec{}
	var req = &Request{
		Header:   Header{Version: ProtocolVersion, Op: OpAdd, TxnID: 42},
		LedgerID: 7,
		EntryID:  3,
		Body:     []byte("hello"),
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeRequest(&buf, codec, req))

	var got, err = DecodeRequest(&buf, codec)
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))

	// Overwrite the length prefix with something beyond MaxFrameLength.
	var raw = buf.Bytes()
	raw[0], raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF, 0xFF

	var _, err = ReadFrame(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	var err = WriteFrame(&buf, make([]byte, MaxFrameLength+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Zero(t, buf.Len())
}

func TestDecodeRequestSurfacesCorruptFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("not json")))

	var _, err = DecodeRequest(&buf, JSONCodec{})
	require.Error(t, err)

	var corrupt *ErrCorruptFrame
	require.ErrorAs(t, err, &corrupt)
}

func TestResponseRoundTrip(t *testing.T) {
	var codec = JSONCodec{}
	var resp = &Response{
		Header:   Header{Version: ProtocolVersion, Op: OpRead, TxnID: 99},
		LedgerID: 9,
		EntryID:  77,
		Status:   StatusOK,
		Body:     []byte("entry-body"),
		Peer:     "bookie-1:3181",
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeResponse(&buf, codec, resp))

	var got, err = DecodeResponse(&buf, codec)
	require.NoError(t, err)
	require.Equal(t, resp, got)
}
