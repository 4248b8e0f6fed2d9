package main

import apitypes "github.com/rexbrahh/ix-decoder/api/http/types"

type (
	// HealthResponse aliases the shared type for package-local convenience.
	HealthResponse = apitypes.HealthResponse
	// DecodeRequest aliases the wire instruction.
	DecodeRequest = apitypes.DecodeRequest
	// DecodeResponse aliases the rendered instruction.
	DecodeResponse = apitypes.DecodeResponse
	// BatchDecodeRequest aliases the batch payload.
	BatchDecodeRequest = apitypes.BatchDecodeRequest
	// BatchDecodeResponse aliases the batch result payload.
	BatchDecodeResponse = apitypes.BatchDecodeResponse
	// ProgramsResponse aliases the registered program listing.
	ProgramsResponse = apitypes.ProgramsResponse
	// ErrorResponse aliases the generic error payload.
	ErrorResponse = apitypes.ErrorResponse
)

var (
	// ErrNotFound exposes the shared not-found error.
	ErrNotFound = apitypes.ErrNotFound
	// ValidateBatch exposes the batch validator.
	ValidateBatch = apitypes.ValidateBatch
)
