package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrUnrecognized, "unrecognized"},
		{fmt.Errorf("account 3: %w", ErrMalformedInput), "malformed_input"},
		{Payloadf("tag %d", 99), "malformed_payload"},
		{&DecodeError{Program: "raydium_amm_v4", Err: ErrUnimplemented}, "unimplemented"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Reason(tt.err))
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	err := &DecodeError{Program: "serum_dex_v3", Err: Payloadf("bad length")}
	require.ErrorIs(t, err, ErrMalformedPayload)
	require.Contains(t, err.Error(), "serum_dex_v3")

	var target *DecodeError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	require.Equal(t, "serum_dex_v3", target.Program)
}

func TestAccountTemplateBind(t *testing.T) {
	keys := []solana.PublicKey{
		solana.TokenProgramID,
		solana.SystemProgramID,
		solana.SysVarRentPubkey,
	}

	tmpl := AccountTemplate{Names: []string{"token_program", "system_program"}}
	got := tmpl.Bind(keys)
	require.Equal(t, solana.TokenProgramID.String(), got["token_program"])
	require.Equal(t, solana.SystemProgramID.String(), got["system_program"])
	require.Equal(t, []string{solana.SysVarRentPubkey.String()}, got["remaining_accounts"])

	short := AccountTemplate{Names: []string{"a", "b", "c", "d"}}.Bind(keys[:1])
	require.Len(t, short, 1)

	rest := AccountTemplate{Names: []string{"a"}, Rest: "open_orders"}.Bind(keys)
	require.Len(t, rest["open_orders"], 2)
}

func TestFingerprintStable(t *testing.T) {
	ix := Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts:  []solana.PublicKey{solana.SystemProgramID},
		Data:      []byte{1, 2, 3},
	}
	height := uint32(2)
	withHeight := ix
	withHeight.StackHeight = &height
	require.Equal(t, ix.Fingerprint(), withHeight.Fingerprint())

	other := ix
	other.Data = []byte{1, 2, 4}
	require.NotEqual(t, ix.Fingerprint(), other.Fingerprint())
}
