package bkwire

import "encoding/json"

// Codec (de)serializes a framed payload into a Request or Response.
//
// The spec leaves payload schema generation out of scope, assuming it is
// produced from a schema file. This module has no schema compiler
// available, so it defines Request/Response directly in Go and speaks
// JSON over the wire. Codec exists as a seam so a schema-generated codec
// (protobuf, flatbuffers, ...) could later be swapped in without
// touching the framing layer below it, the same way the pack's
// message.Framing interface decouples line-delimited JSON from the
// broker transport it runs over.
type Codec interface {
	MarshalRequest(*Request) ([]byte, error)
	UnmarshalRequest([]byte) (*Request, error)
	MarshalResponse(*Response) ([]byte, error)
	UnmarshalResponse([]byte) (*Response, error)
}

// JSONCodec is the Codec used by this client.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) MarshalRequest(r *Request) ([]byte, error) { return json.Marshal(r) }

func (JSONCodec) UnmarshalRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (JSONCodec) MarshalResponse(r *Response) ([]byte, error) { return json.Marshal(r) }

func (JSONCodec) UnmarshalResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
