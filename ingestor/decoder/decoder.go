package decoder

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// CompiledInstruction is an instruction whose program and accounts are still
// indices into the transaction's account keys. Both Yellowstone updates and
// JSON-RPC blocks are converted to this form before decoding.
type CompiledInstruction struct {
	Index          uint32
	InnerIndex     int32
	StackHeight    *uint32
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// Result collects everything decoded from one transaction.
type Result struct {
	Events   []*common.InstructionEvent
	Failures []*dcommon.DecodeError
	// Skipped counts instructions of registered programs that decode but
	// have no rendered form.
	Skipped int
}

// Decoder turns transactions into InstructionEvents for the programs of its
// registry.
type Decoder struct {
	registry  *registry.Registry
	slotCache common.SlotTimeCache
}

// New constructs a decoder. When cache is nil a new in-memory cache is
// created; when reg is nil the default registry is used.
func New(reg *registry.Registry, cache common.SlotTimeCache) *Decoder {
	if cache == nil {
		cache = common.NewMemorySlotTimeCache()
	}
	if reg == nil {
		reg = registry.NewDefault()
	}
	return &Decoder{
		registry:  reg,
		slotCache: cache,
	}
}

// SlotCache exposes the underlying cache so callers can share it with other
// components (e.g. block head consumers).
func (d *Decoder) SlotCache() common.SlotTimeCache {
	return d.slotCache
}

// Registry returns the registry the decoder resolves programs with.
func (d *Decoder) Registry() *registry.Registry {
	return d.registry
}

// HandleBlockMeta updates the slot→timestamp cache with block metadata.
func (d *Decoder) HandleBlockMeta(meta *pb.SubscribeUpdateBlockMeta) {
	if meta == nil {
		return
	}
	if ts := meta.GetBlockTime(); ts != nil && d.slotCache != nil {
		d.slotCache.Set(meta.GetSlot(), time.Unix(ts.GetTimestamp(), 0).UTC())
	}
}

// DecodeTransaction flattens a Yellowstone transaction update and decodes
// every instruction owned by a registered program. A nil or incomplete
// update yields an empty result.
func (d *Decoder) DecodeTransaction(tx *pb.SubscribeUpdateTransaction) (*Result, error) {
	meta, err := common.ConvertTxMeta(tx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return &Result{}, nil
	}

	info := tx.GetTransaction()
	return d.Decode(meta, FlattenGeyser(info.GetTransaction().GetMessage(), info.GetMeta())), nil
}

// Decode resolves each compiled instruction against meta.AccountKeys and
// renders the ones the registry supports. Failures never abort the
// transaction: they are collected alongside the successful events.
func (d *Decoder) Decode(meta *common.TxMeta, instructions []CompiledInstruction) *Result {
	res := &Result{}
	blockTime := lookupSlotTimestamp(d.slotCache, meta.Slot)

	for _, ci := range instructions {
		if ci.ProgramIDIndex < 0 || ci.ProgramIDIndex >= len(meta.AccountKeys) {
			continue
		}
		programID := meta.AccountKeys[ci.ProgramIDIndex]
		if !d.registry.Supports(programID) {
			continue
		}

		ix, err := resolve(meta.AccountKeys, programID, ci)
		if err != nil {
			res.Failures = append(res.Failures, &dcommon.DecodeError{Program: programID.String(), Err: err})
			continue
		}

		decodable, err := d.registry.Resolve(ix)
		if err != nil {
			res.Failures = append(res.Failures, &dcommon.DecodeError{Program: programID.String(), Err: err})
			continue
		}

		decoded, err := decodable.Decode()
		if errors.Is(err, dcommon.ErrUnimplemented) {
			res.Skipped++
			continue
		}
		if err != nil {
			var decErr *dcommon.DecodeError
			if !errors.As(err, &decErr) {
				decErr = &dcommon.DecodeError{Program: decodable.Program().String(), Err: err}
			}
			res.Failures = append(res.Failures, decErr)
			continue
		}

		ev := &common.InstructionEvent{
			Slot:       meta.Slot,
			Signature:  meta.Signature,
			TxIndex:    meta.TxIndex,
			Index:      ci.Index,
			InnerIndex: ci.InnerIndex,
			ProgramID:  programID.String(),
			Program:    decodable.Program().String(),
			Name:       decoded.Name,
			Data:       decoded.Data,
			Accounts:   decoded.Accounts,
			BlockTime:  blockTime,
			Failed:     meta.Failed,
		}
		if ci.StackHeight != nil {
			ev.StackHeight = *ci.StackHeight
		}
		res.Events = append(res.Events, ev)
	}

	return res
}

// FlattenGeyser lists outer instructions, each followed by its inner
// instructions, in execution order.
func FlattenGeyser(message *pb.Message, meta *pb.TransactionStatusMeta) []CompiledInstruction {
	if message == nil {
		return nil
	}

	inner := make(map[uint32][]*pb.InnerInstruction, len(meta.GetInnerInstructions()))
	for _, group := range meta.GetInnerInstructions() {
		inner[group.GetIndex()] = append(inner[group.GetIndex()], group.GetInstructions()...)
	}

	var out []CompiledInstruction
	for i, instr := range message.GetInstructions() {
		out = append(out, CompiledInstruction{
			Index:          uint32(i),
			InnerIndex:     common.OuterInstruction,
			ProgramIDIndex: int(instr.GetProgramIdIndex()),
			Accounts:       byteIndices(instr.GetAccounts()),
			Data:           instr.GetData(),
		})
		for j, in := range inner[uint32(i)] {
			out = append(out, CompiledInstruction{
				Index:          uint32(i),
				InnerIndex:     int32(j),
				StackHeight:    in.StackHeight,
				ProgramIDIndex: int(in.GetProgramIdIndex()),
				Accounts:       byteIndices(in.GetAccounts()),
				Data:           in.GetData(),
			})
		}
	}
	return out
}

func resolve(keys []solana.PublicKey, programID solana.PublicKey, ci CompiledInstruction) (dcommon.Instruction, error) {
	accounts := make([]solana.PublicKey, len(ci.Accounts))
	for i, idx := range ci.Accounts {
		if idx < 0 || idx >= len(keys) {
			return dcommon.Instruction{}, fmt.Errorf("%w: account index %d out of range (%d keys)", dcommon.ErrMalformedInput, idx, len(keys))
		}
		accounts[i] = keys[idx]
	}
	data := ci.Data
	if data == nil {
		data = []byte{}
	}
	return dcommon.Instruction{
		ProgramID:   programID,
		Accounts:    accounts,
		Data:        data,
		StackHeight: ci.StackHeight,
	}, nil
}

func byteIndices(raw []byte) []int {
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out
}

func lookupSlotTimestamp(cache common.SlotTimeCache, slot uint64) int64 {
	if cache == nil {
		return 0
	}
	ts, err := cache.Get(slot)
	if err != nil || ts.IsZero() {
		return 0
	}
	return ts.Unix()
}
