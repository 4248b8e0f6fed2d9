// Package normalize converts the text wire form of an instruction into the
// binary form decoders consume.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58/base58"

	"github.com/rexbrahh/ix-decoder/decoder/common"
)

// RawInstruction is an instruction as clients send it: base58 program id,
// base58 accounts and base58 data.
type RawInstruction struct {
	ProgramID   string   `json:"programId"`
	Accounts    []string `json:"accounts"`
	Data        string   `json:"data"`
	StackHeight *uint32  `json:"stackHeight,omitempty"`
}

// UnmarshalJSON accepts both camelCase and snake_case keys.
func (r *RawInstruction) UnmarshalJSON(b []byte) error {
	var wire struct {
		ProgramID        string   `json:"programId"`
		ProgramIDSnake   string   `json:"program_id"`
		Accounts         []string `json:"accounts"`
		Data             string   `json:"data"`
		StackHeight      *uint32  `json:"stackHeight"`
		StackHeightSnake *uint32  `json:"stack_height"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	r.ProgramID = wire.ProgramID
	if r.ProgramID == "" {
		r.ProgramID = wire.ProgramIDSnake
	}
	r.Accounts = wire.Accounts
	r.Data = wire.Data
	r.StackHeight = wire.StackHeight
	if r.StackHeight == nil {
		r.StackHeight = wire.StackHeightSnake
	}
	return nil
}

// Normalize parses every field or fails as a whole; no partial instruction
// is ever returned.
func Normalize(raw RawInstruction) (common.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(raw.ProgramID)
	if err != nil {
		return common.Instruction{}, fmt.Errorf("%w: failed to parse program id: %v", common.ErrMalformedInput, err)
	}

	accounts := make([]solana.PublicKey, len(raw.Accounts))
	for i, acc := range raw.Accounts {
		pk, err := solana.PublicKeyFromBase58(acc)
		if err != nil {
			return common.Instruction{}, fmt.Errorf("%w: failed to parse account %d: %v", common.ErrMalformedInput, i, err)
		}
		accounts[i] = pk
	}

	// Empty data is well-formed; whether it decodes is up to the program.
	data := []byte{}
	if raw.Data != "" {
		data, err = base58.Decode(raw.Data)
		if err != nil {
			return common.Instruction{}, fmt.Errorf("%w: failed to decode instruction data: %v", common.ErrMalformedInput, err)
		}
	}

	return common.Instruction{
		ProgramID:   programID,
		Accounts:    accounts,
		Data:        data,
		StackHeight: raw.StackHeight,
	}, nil
}

// Denormalize renders ix back into its wire form.
func Denormalize(ix common.Instruction) RawInstruction {
	accounts := make([]string, len(ix.Accounts))
	for i, acc := range ix.Accounts {
		accounts[i] = acc.String()
	}
	return RawInstruction{
		ProgramID:   ix.ProgramID.String(),
		Accounts:    accounts,
		Data:        base58.Encode(ix.Data),
		StackHeight: ix.StackHeight,
	}
}
