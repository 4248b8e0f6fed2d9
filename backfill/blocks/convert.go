package blocks

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
	ixdecoder "github.com/rexbrahh/ix-decoder/ingestor/decoder"
)

// convertTransaction turns one transaction of a block into the decoder's
// compiled form. Account keys are the static keys followed by the loaded
// writable and readonly addresses.
func convertTransaction(slot uint64, index int, twm rpc.TransactionWithMeta) (*common.TxMeta, []ixdecoder.CompiledInstruction, error) {
	if twm.Transaction == nil || twm.Meta == nil {
		return nil, nil, fmt.Errorf("%w: transaction %d in slot %d has no body or meta", dcommon.ErrMalformedInput, index, slot)
	}
	tx, err := twm.GetTransaction()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: transaction %d in slot %d: %v", dcommon.ErrMalformedInput, index, slot, err)
	}
	if len(tx.Signatures) == 0 {
		return nil, nil, fmt.Errorf("%w: transaction %d in slot %d is unsigned", dcommon.ErrMalformedInput, index, slot)
	}

	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys)+len(twm.Meta.LoadedAddresses.Writable)+len(twm.Meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, twm.Meta.LoadedAddresses.Writable...)
	keys = append(keys, twm.Meta.LoadedAddresses.ReadOnly...)

	meta := &common.TxMeta{
		Slot:        slot,
		Signature:   tx.Signatures[0].String(),
		TxIndex:     uint64(index),
		Failed:      twm.Meta.Err != nil,
		AccountKeys: keys,
	}
	return meta, flattenRPC(tx.Message.Instructions, twm.Meta.InnerInstructions), nil
}

// flattenRPC lists outer instructions, each followed by its inner
// instructions, matching the order the geyser path produces. JSON-RPC does
// not report stack heights for blocks, so inner instructions carry none.
func flattenRPC(outer []solana.CompiledInstruction, innerGroups []rpc.InnerInstruction) []ixdecoder.CompiledInstruction {
	groups := make(map[uint16][]int, len(innerGroups))
	for gi, group := range innerGroups {
		groups[group.Index] = append(groups[group.Index], gi)
	}

	var out []ixdecoder.CompiledInstruction
	for i, instr := range outer {
		out = append(out, ixdecoder.CompiledInstruction{
			Index:          uint32(i),
			InnerIndex:     common.OuterInstruction,
			ProgramIDIndex: int(instr.ProgramIDIndex),
			Accounts:       indices(instr.Accounts),
			Data:           []byte(instr.Data),
		})
		var j int32
		for _, gi := range groups[uint16(i)] {
			for _, in := range innerGroups[gi].Instructions {
				out = append(out, ixdecoder.CompiledInstruction{
					Index:          uint32(i),
					InnerIndex:     j,
					ProgramIDIndex: int(in.ProgramIDIndex),
					Accounts:       indices(in.Accounts),
					Data:           []byte(in.Data),
				})
				j++
			}
		}
	}
	return out
}

func indices(raw []uint16) []int {
	out := make([]int, len(raw))
	for i, idx := range raw {
		out[i] = int(idx)
	}
	return out
}
