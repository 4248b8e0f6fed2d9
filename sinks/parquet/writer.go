package parquet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/snappy"

	"github.com/rexbrahh/ix-decoder/ingestor/common"
)

var ErrWriterDisabled = errors.New("parquet writer disabled: missing configuration")

// InstructionRow is the archived form of a decoded instruction. Data and
// Accounts hold the rendered JSON objects.
type InstructionRow struct {
	Slot        uint64 `parquet:"slot"`
	BlockTime   int64  `parquet:"block_time"`
	Signature   string `parquet:"signature"`
	TxIndex     uint64 `parquet:"tx_index"`
	Index       uint32 `parquet:"idx"`
	InnerIndex  int32  `parquet:"inner_idx"`
	StackHeight uint32 `parquet:"stack_height"`
	ProgramID   string `parquet:"program_id"`
	Program     string `parquet:"program"`
	Name        string `parquet:"name"`
	Data        string `parquet:"data"`
	Accounts    string `parquet:"accounts"`
	Failed      bool   `parquet:"failed"`
	IsUndo      bool   `parquet:"is_undo"`
}

// partition groups rows into one object per program and UTC day.
type partition struct {
	program string
	date    string
}

// Writer buffers decoded instructions and periodically uploads Parquet files
// to S3-compatible storage.
type Writer struct {
	cfg Config

	mu        sync.Mutex
	buckets   map[partition][]InstructionRow
	uploader  s3manageriface.UploaderAPI
	now       func() time.Time
	lastFlush time.Time
}

// NewWriter validates configuration and prepares a Writer.
func NewWriter(cfg Config) (*Writer, error) {
	if !cfg.S3.complete() {
		return nil, ErrWriterDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg := &aws.Config{
		Endpoint:         aws.String(cfg.S3.Endpoint),
		Region:           aws.String(cfg.S3.Region),
		S3ForcePathStyle: aws.Bool(cfg.S3.PathStyle),
		Credentials:      credentials.NewStaticCredentials(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return newWriter(cfg, s3manager.NewUploader(sess)), nil
}

func newWriter(cfg Config, uploader s3manageriface.UploaderAPI) *Writer {
	return &Writer{
		cfg:       cfg,
		buckets:   make(map[partition][]InstructionRow),
		uploader:  uploader,
		now:       time.Now,
		lastFlush: time.Now(),
	}
}

// RowFromEvent converts a bus event into its archived row.
func RowFromEvent(ev *common.InstructionEvent) (InstructionRow, error) {
	data, err := encodeJSON(ev.Data)
	if err != nil {
		return InstructionRow{}, fmt.Errorf("encode data: %w", err)
	}
	accounts, err := encodeJSON(ev.Accounts)
	if err != nil {
		return InstructionRow{}, fmt.Errorf("encode accounts: %w", err)
	}
	return InstructionRow{
		Slot:        ev.Slot,
		BlockTime:   ev.BlockTime,
		Signature:   ev.Signature,
		TxIndex:     ev.TxIndex,
		Index:       ev.Index,
		InnerIndex:  ev.InnerIndex,
		StackHeight: ev.StackHeight,
		ProgramID:   ev.ProgramID,
		Program:     ev.Program,
		Name:        ev.Name,
		Data:        data,
		Accounts:    accounts,
		Failed:      ev.Failed,
		IsUndo:      ev.Undo,
	}, nil
}

func encodeJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AppendInstruction buffers ev and flushes when a partition reaches
// BatchRows or the flush interval has elapsed.
func (w *Writer) AppendInstruction(ctx context.Context, ev *common.InstructionEvent) error {
	if ev == nil {
		return errors.New("nil instruction event")
	}
	row, err := RowFromEvent(ev)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := w.partitionFor(row)
	bucket := append(w.buckets[key], row)
	w.buckets[key] = bucket

	if len(bucket) >= w.cfg.BatchRows || w.now().Sub(w.lastFlush) >= w.cfg.FlushInterval {
		return w.flushLocked(ctx)
	}
	return nil
}

func (w *Writer) partitionFor(row InstructionRow) partition {
	program := row.Program
	if program == "" {
		program = "unknown"
	}
	ts := w.now().UTC()
	if row.BlockTime > 0 {
		ts = time.Unix(row.BlockTime, 0).UTC()
	}
	return partition{program: program, date: ts.Format("2006-01-02")}
}

// Pending reports buffered rows.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, rows := range w.buckets {
		n += len(rows)
	}
	return n
}

func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) Close() error {
	return w.Flush(context.Background())
}

func (w *Writer) flushLocked(ctx context.Context) error {
	keys := make([]partition, 0, len(w.buckets))
	for key, rows := range w.buckets {
		if len(rows) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].program != keys[j].program {
			return keys[i].program < keys[j].program
		}
		return keys[i].date < keys[j].date
	})

	for _, key := range keys {
		if err := w.writeBucket(ctx, key, w.buckets[key]); err != nil {
			return err
		}
		delete(w.buckets, key)
	}
	w.lastFlush = w.now()
	return nil
}

func (w *Writer) writeBucket(ctx context.Context, key partition, rows []InstructionRow) error {
	buf := bytes.NewBuffer(nil)
	if err := EncodeRows(buf, rows); err != nil {
		return err
	}

	_, err := w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(w.cfg.S3.Bucket),
		Key:         aws.String(w.objectKey(key)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("upload parquet to s3: %w", err)
	}
	return nil
}

// EncodeRows writes rows as a snappy-compressed Parquet file.
func EncodeRows(out io.Writer, rows []InstructionRow) error {
	writer := parquet.NewGenericWriter[InstructionRow](out, parquet.Compression(&snappy.Codec{}))
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func (w *Writer) objectKey(key partition) string {
	prefix := strings.TrimSuffix(w.cfg.Prefix, "/")
	filename := fmt.Sprintf("instructions-%d.parquet", w.now().UnixNano())
	return path.Join(prefix, "program="+key.program, "date="+key.date, filename)
}
