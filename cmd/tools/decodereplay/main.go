package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/normalize"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/ingestor/common"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"
)

// entry is one line of a replay fixture. Instruction entries carry the raw
// instruction in the same shape the HTTP API accepts.
type entry struct {
	Type        string                    `json:"type"`
	Slot        uint64                    `json:"slot"`
	BlockTime   int64                     `json:"block_time"`
	Status      string                    `json:"status"`
	Signature   string                    `json:"signature"`
	TxIndex     uint64                    `json:"tx_index"`
	Index       uint32                    `json:"index"`
	InnerIndex  *int32                    `json:"inner_index"`
	Failed      bool                      `json:"failed"`
	SleepMs     int                       `json:"sleep_ms"`
	Instruction *normalize.RawInstruction `json:"instruction"`
}

// sink receives replayed messages. The publisher and the stdout printer both
// satisfy it.
type sink interface {
	PublishInstruction(ctx context.Context, ev *common.InstructionEvent) error
	PublishBlockHead(ctx context.Context, head *common.BlockHead) error
}

func main() {
	input := flag.String("input", "", "path to replay fixture (JSON array)")
	natsURL := flag.String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	stream := flag.String("stream", "DEX", "JetStream stream name")
	subjectRoot := flag.String("subject-root", "dex.sol", "subject prefix")
	delay := flag.Int("delay-ms", 0, "optional delay between entries")
	dryRun := flag.Bool("dry-run", false, "print decoded events instead of publishing")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if *input == "" {
		logger.Fatal("input is required")
	}

	entries, err := loadEntries(*input)
	if err != nil {
		logger.Fatal("load fixture", zap.Error(err))
	}

	regCfg, err := registry.FromEnv()
	if err != nil {
		logger.Fatal("registry config", zap.Error(err))
	}
	reg, err := regCfg.Build()
	if err != nil {
		logger.Fatal("build registry", zap.Error(err))
	}

	var out sink
	if *dryRun {
		out = newPrinter(os.Stdout, *subjectRoot)
	} else {
		cfg := natsx.DefaultConfig()
		cfg.URL = *natsURL
		cfg.Stream = *stream
		cfg.SubjectRoot = *subjectRoot
		pub, err := natsx.NewPublisher(cfg)
		if err != nil {
			logger.Fatal("connect nats", zap.Error(err))
		}
		defer pub.Close()
		out = pub
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := replay(ctx, reg, entries, out, time.Duration(*delay)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}
	logger.Info("replay complete",
		zap.Int("entries", len(entries)),
		zap.Int("published", stats.published),
		zap.Int("heads", stats.heads),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
}

func loadEntries(path string) ([]entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return entries, nil
}

type replayStats struct {
	published int
	heads     int
	skipped   int
	failed    int
}

// replay decodes instruction entries with reg and forwards them to out.
// Instructions that fail to decode are logged and counted; only sink errors
// stop the run.
func replay(ctx context.Context, reg *registry.Registry, entries []entry, out sink, delay time.Duration, logger *zap.Logger) (replayStats, error) {
	var stats replayStats
	blockTimes := make(map[uint64]int64)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch e.Type {
		case "block_head":
			if e.BlockTime > 0 {
				blockTimes[e.Slot] = e.BlockTime
			}
			head := &common.BlockHead{Slot: e.Slot, BlockTime: e.BlockTime, Status: e.Status}
			if head.Status == "" {
				head.Status = common.StatusConfirmed
			}
			if err := out.PublishBlockHead(ctx, head); err != nil {
				return stats, fmt.Errorf("entry %d: publish block head: %w", i, err)
			}
			stats.heads++
		case "instruction":
			ev, err := decodeEntry(reg, e)
			if err != nil {
				if dcommon.Reason(err) == "unimplemented" {
					stats.skipped++
				} else {
					stats.failed++
					logger.Warn("decode failed", zap.Int("entry", i), zap.String("reason", dcommon.Reason(err)), zap.Error(err))
				}
				continue
			}
			if ev.BlockTime == 0 {
				ev.BlockTime = blockTimes[e.Slot]
			}
			if err := out.PublishInstruction(ctx, ev); err != nil {
				return stats, fmt.Errorf("entry %d: publish instruction: %w", i, err)
			}
			stats.published++
		default:
			logger.Warn("skip entry with unknown type", zap.Int("entry", i), zap.String("type", e.Type))
		}

		pause := delay
		if e.SleepMs > 0 {
			pause = time.Duration(e.SleepMs) * time.Millisecond
		}
		if pause > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return stats, nil
}

func decodeEntry(reg *registry.Registry, e entry) (*common.InstructionEvent, error) {
	if e.Instruction == nil {
		return nil, fmt.Errorf("%w: missing instruction", dcommon.ErrMalformedInput)
	}
	ix, err := normalize.Normalize(*e.Instruction)
	if err != nil {
		return nil, err
	}
	decodable, err := reg.Resolve(ix)
	if err != nil {
		return nil, err
	}
	decoded, err := decodable.Decode()
	if err != nil {
		return nil, err
	}

	inner := int32(common.OuterInstruction)
	if e.InnerIndex != nil {
		inner = *e.InnerIndex
	}
	ev := &common.InstructionEvent{
		Slot:       e.Slot,
		Signature:  e.Signature,
		TxIndex:    e.TxIndex,
		Index:      e.Index,
		InnerIndex: inner,
		ProgramID:  ix.ProgramID.String(),
		Program:    decodable.Program().String(),
		Name:       decoded.Name,
		Data:       decoded.Data,
		Accounts:   decoded.Accounts,
		BlockTime:  e.BlockTime,
		Failed:     e.Failed,
	}
	if ix.StackHeight != nil {
		ev.StackHeight = *ix.StackHeight
	}
	return ev, nil
}

// printer writes one JSON document per message.
type printer struct {
	enc  *json.Encoder
	root string
}

func newPrinter(w io.Writer, root string) *printer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &printer{enc: enc, root: root}
}

func (p *printer) PublishInstruction(_ context.Context, ev *common.InstructionEvent) error {
	return p.enc.Encode(map[string]any{"subject": ev.Subject(p.root), "event": ev})
}

func (p *printer) PublishBlockHead(_ context.Context, head *common.BlockHead) error {
	return p.enc.Encode(map[string]any{"subject": natsx.BlockHeadSubject(p.root), "head": head})
}
