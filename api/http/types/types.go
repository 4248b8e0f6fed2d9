package types

import (
	"errors"

	"github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/normalize"
)

// HealthResponse represents the shape of /healthz responses.
type HealthResponse struct {
	Status   string   `json:"status"`
	Uptime   string   `json:"uptime"`
	Programs []string `json:"programs"`
}

// DecodeRequest is the body of POST /decode.
type DecodeRequest = normalize.RawInstruction

// DecodeResponse is the body of a successful decode.
type DecodeResponse = common.DecodedInstruction

// ErrorResponse is returned with every 400.
type ErrorResponse struct {
	Msg string `json:"msg"`
}

// BatchDecodeRequest is the body of POST /v1/decode/batch.
type BatchDecodeRequest struct {
	Instructions []DecodeRequest `json:"instructions"`
}

// BatchDecodeResult holds exactly one of Decoded or Error.
type BatchDecodeResult struct {
	Decoded *DecodeResponse `json:"decoded,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BatchDecodeResponse preserves request order.
type BatchDecodeResponse struct {
	Results []BatchDecodeResult `json:"results"`
}

// ProgramInfo describes one registered program.
type ProgramInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ProgramsResponse is the body of GET /v1/programs.
type ProgramsResponse struct {
	Programs []ProgramInfo `json:"programs"`
}

// MaxBatchSize bounds the number of instructions in one batch request.
const MaxBatchSize = 256

// ErrNotFound indicates a cache miss.
var ErrNotFound = errors.New("not found")

// ValidateBatch checks the batch is non-empty and within MaxBatchSize.
func ValidateBatch(req BatchDecodeRequest) error {
	if len(req.Instructions) == 0 {
		return errors.New("no instructions")
	}
	if len(req.Instructions) > MaxBatchSize {
		return errors.New("too many instructions")
	}
	return nil
}
