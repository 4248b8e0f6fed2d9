package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	sinkparquet "github.com/rexbrahh/ix-decoder/sinks/parquet"
)

type summary struct {
	TotalRows        int            `json:"total_rows"`
	Failed           int            `json:"failed"`
	Undo             int            `json:"undo"`
	MissingBlockTime int            `json:"missing_block_time"`
	InvalidData      int            `json:"invalid_data"`
	InvalidAccounts  int            `json:"invalid_accounts"`
	Instructions     map[string]int `json:"instructions"`
	Programs         []string       `json:"programs"`
	MinSlot          uint64         `json:"min_slot"`
	MaxSlot          uint64         `json:"max_slot"`
	Sample           []sampleRow    `json:"sample,omitempty"`
}

type sampleRow struct {
	Slot      uint64          `json:"slot"`
	Signature string          `json:"signature"`
	Program   string          `json:"program"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Accounts  json.RawMessage `json:"accounts"`
}

func main() {
	pattern := flag.String("pattern", "", "glob pattern selecting parquet files to inspect")
	samples := flag.Int("sample", 0, "number of rows to print alongside the summary")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if *pattern == "" {
		logger.Fatal("pattern is required")
	}

	files, err := filepath.Glob(*pattern)
	if err != nil {
		logger.Fatal("glob parquet files", zap.Error(err))
	}
	if len(files) == 0 {
		logger.Fatal("no parquet files match pattern", zap.String("pattern", *pattern))
	}

	sum := summary{Instructions: make(map[string]int)}
	programSet := make(map[string]struct{})

	for _, path := range files {
		if err := inspectFile(path, &sum, programSet, *samples); err != nil {
			logger.Fatal("inspect file", zap.String("path", path), zap.Error(err))
		}
	}

	sum.Programs = toSortedSlice(programSet)

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&sum); err != nil {
		logger.Fatal("encode summary", zap.Error(err))
	}
}

func inspectFile(path string, sum *summary, programSet map[string]struct{}, samples int) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewGenericReader[sinkparquet.InstructionRow](file)
	defer reader.Close()

	rows := make([]sinkparquet.InstructionRow, 128)

	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			processRow(&rows[i], sum, programSet, samples)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return nil
}

func processRow(row *sinkparquet.InstructionRow, sum *summary, programSet map[string]struct{}, samples int) {
	if sum.TotalRows == 0 || row.Slot < sum.MinSlot {
		sum.MinSlot = row.Slot
	}
	if row.Slot > sum.MaxSlot {
		sum.MaxSlot = row.Slot
	}
	sum.TotalRows++

	programSet[row.Program] = struct{}{}
	sum.Instructions[row.Program+"."+row.Name]++

	if row.Failed {
		sum.Failed++
	}
	if row.IsUndo {
		sum.Undo++
	}
	if row.BlockTime <= 0 {
		sum.MissingBlockTime++
	}
	dataOK := json.Valid([]byte(row.Data))
	accountsOK := json.Valid([]byte(row.Accounts))
	if !dataOK {
		sum.InvalidData++
	}
	if !accountsOK {
		sum.InvalidAccounts++
	}

	if len(sum.Sample) < samples && dataOK && accountsOK {
		sum.Sample = append(sum.Sample, sampleRow{
			Slot:      row.Slot,
			Signature: row.Signature,
			Program:   row.Program,
			Name:      row.Name,
			Data:      json.RawMessage(row.Data),
			Accounts:  json.RawMessage(row.Accounts),
		})
	}
}

func toSortedSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
