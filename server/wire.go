package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Request and response bodies are CBOR, encoded canonically so identical
// payloads are byte-identical.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// AssembleRequest carries source text for POST /v1/assemble.
type AssembleRequest struct {
	Name   string `cbor:"name,omitempty"`
	Source string `cbor:"source"`
}

// AssembleResponse returns the encoded program. ID is set when the artifact
// was persisted.
type AssembleResponse struct {
	ID      string `cbor:"id,omitempty"`
	Code    []byte `cbor:"code"`
	Listing string `cbor:"listing"`
}

// DisassembleRequest carries raw bytecode for POST /v1/disassemble.
type DisassembleRequest struct {
	Code []byte `cbor:"code"`
}

// DisassembleResponse returns the offset-annotated listing.
type DisassembleResponse struct {
	Listing string `cbor:"listing"`
}

// ExecuteRequest names a program for POST /v1/execute: exactly one of
// Source, Code or ID must be set.
type ExecuteRequest struct {
	Source   string `cbor:"source,omitempty"`
	Code     []byte `cbor:"code,omitempty"`
	ID       string `cbor:"id,omitempty"`
	Calldata []byte `cbor:"calldata,omitempty"`
	Value    []byte `cbor:"value,omitempty"` // big-endian, at most 32 bytes
}

// ExecuteResponse is the final machine state. Stack words are minimal
// big-endian, bottom of the stack first.
type ExecuteResponse struct {
	Stack      [][]byte `cbor:"stack"`
	Reverted   bool     `cbor:"reverted"`
	ReturnData []byte   `cbor:"return_data"`
}

// ArtifactInfo is one row of GET /v1/artifacts.
type ArtifactInfo struct {
	ID        string `cbor:"id"`
	Name      string `cbor:"name"`
	CreatedAt string `cbor:"created_at"` // RFC 3339
}

// ErrorResponse is the body of any non-2xx reply.
type ErrorResponse struct {
	Error string `cbor:"error"`
}
