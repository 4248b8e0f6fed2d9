package common

import (
	"fmt"
	"strings"
)

// OuterInstruction marks an event decoded from a top-level instruction.
const OuterInstruction = -1

// InstructionEvent is one decoded instruction with its position in the chain.
// It is the unit published on the event bus and written by the sinks.
type InstructionEvent struct {
	Slot        uint64         `json:"slot"`
	Signature   string         `json:"signature"`
	TxIndex     uint64         `json:"tx_index"`
	Index       uint32         `json:"index"`
	InnerIndex  int32          `json:"inner_index"`
	StackHeight uint32         `json:"stack_height,omitempty"`
	ProgramID   string         `json:"program_id"`
	Program     string         `json:"program"`
	Name        string         `json:"name"`
	Data        map[string]any `json:"data"`
	Accounts    map[string]any `json:"accounts"`
	BlockTime   int64          `json:"block_time,omitempty"`
	Failed      bool           `json:"failed"`
	// Undo marks a retraction of an event whose slot died before
	// finalization.
	Undo        bool           `json:"undo,omitempty"`
}

// Block statuses carried by BlockHead.
const (
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
	StatusDead      = "dead"
)

// BlockHead announces a slot and its commitment status.
type BlockHead struct {
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"block_time,omitempty"`
	Status    string `json:"status"`
}

// MsgID de-duplicates repeated announcements of the same status.
func (h *BlockHead) MsgID() string {
	return fmt.Sprintf("%d:%s", h.Slot, h.Status)
}

// MsgID is stable across replays of the same instruction, so JetStream
// de-duplicates re-published events.
func (e *InstructionEvent) MsgID() string {
	id := fmt.Sprintf("%d:%s:%d:%d", e.Slot, e.Signature, e.Index, e.InnerIndex)
	if e.Undo {
		id += ":undo"
	}
	return id
}

// Subject returns <root>.<program>.<instruction>.
func (e *InstructionEvent) Subject(root string) string {
	root = strings.TrimSuffix(root, ".")
	return fmt.Sprintf("%s.%s.%s", root, subjectToken(e.Program), subjectToken(e.Name))
}

func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
