package common

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestInstructionEventIdentity(t *testing.T) {
	ev := &InstructionEvent{
		Slot:       42,
		Signature:  "sig",
		Index:      3,
		InnerIndex: OuterInstruction,
		Program:    "raydium_amm_v4",
		Name:       "swapBaseIn",
	}

	require.Equal(t, "42:sig:3:-1", ev.MsgID())
	require.Equal(t, "dex.decoded.raydium_amm_v4.swapBaseIn", ev.Subject("dex.decoded"))
	require.Equal(t, "dex.decoded.raydium_amm_v4.swapBaseIn", ev.Subject("dex.decoded."))

	ev.InnerIndex = 0
	require.Equal(t, "42:sig:3:0", ev.MsgID())

	ev.Name = ""
	ev.Program = "a.b"
	require.Equal(t, "root.a_b.unknown", ev.Subject("root"))
}

func TestAccountKeysFromBytes(t *testing.T) {
	static := [][]byte{solana.SystemProgramID.Bytes()}
	writable := [][]byte{solana.TokenProgramID.Bytes()}
	readonly := [][]byte{solana.SysVarRentPubkey.Bytes()}

	keys, err := AccountKeysFromBytes(static, writable, readonly)
	require.NoError(t, err)
	require.Equal(t, []solana.PublicKey{solana.SystemProgramID, solana.TokenProgramID, solana.SysVarRentPubkey}, keys)

	_, err = AccountKeysFromBytes(static, [][]byte{{1, 2}})
	require.Error(t, err)
}

func TestUndoAndBlockHeadIDs(t *testing.T) {
	ev := &InstructionEvent{Slot: 1, Signature: "s", Index: 0, InnerIndex: 2, Undo: true}
	require.Equal(t, "1:s:0:2:undo", ev.MsgID())

	head := &BlockHead{Slot: 9, Status: StatusFinalized}
	require.Equal(t, "9:finalized", head.MsgID())
}
