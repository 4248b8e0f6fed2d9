package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/decoder/normalize"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
)

type recordingSink struct {
	events []*common.InstructionEvent
	heads  []*common.BlockHead
	err    error
}

func (r *recordingSink) PublishInstruction(_ context.Context, ev *common.InstructionEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) PublishBlockHead(_ context.Context, head *common.BlockHead) error {
	r.heads = append(r.heads, head)
	return nil
}

func TestReplayFixture(t *testing.T) {
	entries, err := loadEntries("testdata/replay.json")
	require.NoError(t, err)

	bad := entry{Type: "instruction", Slot: 250000123, Instruction: &normalize.RawInstruction{ProgramID: "not-base58!", Data: ""}}
	entries = append(entries, bad, entry{Type: "mystery"})

	out := &recordingSink{}
	stats, err := replay(context.Background(), registry.NewDefault(), entries, out, 0, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, 1, stats.published)
	require.Equal(t, 2, stats.heads)
	require.Equal(t, 1, stats.failed)
	require.Len(t, out.events, 1)

	ev := out.events[0]
	require.Equal(t, "raydium_amm_v4", ev.Program)
	require.Equal(t, "swapBaseIn", ev.Name)
	require.Equal(t, int32(common.OuterInstruction), ev.InnerIndex)
	require.Equal(t, uint64(7), ev.TxIndex)
	require.Equal(t, int64(1700000000), ev.BlockTime, "block time is taken from the preceding head")
	require.Equal(t, common.StatusFinalized, out.heads[1].Status)
}

func TestReplayStopsOnSinkError(t *testing.T) {
	entries, err := loadEntries("testdata/replay.json")
	require.NoError(t, err)

	out := &recordingSink{err: errors.New("nats down")}
	_, err = replay(context.Background(), registry.NewDefault(), entries, out, 0, zap.NewNop())
	require.ErrorContains(t, err, "nats down")
}

func TestPrinterUsesSubjectRoot(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "replay")
	require.NoError(t, p.PublishInstruction(context.Background(), &common.InstructionEvent{Program: "raydium_amm_v4", Name: "swapBaseIn"}))
	require.True(t, strings.Contains(buf.String(), `"subject":"replay.raydium_amm_v4.swapBaseIn"`), buf.String())
}
