package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
)

const (
	// ReplaySlotWindow is how far behind the last seen slot a reconnect resumes.
	ReplaySlotWindow = 64
	ReconnectBackoff = 5 * time.Second
)

// xToken attaches the endpoint API key to every call.
type xToken string

func (t xToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"x-token": string(t)}, nil
}

func (xToken) RequireTransportSecurity() bool { return true }

// Client is a reconnecting Yellowstone subscription for one endpoint.
type Client struct {
	cfg    *Config
	conn   *grpc.ClientConn
	client pb.GeyserClient
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient validates cfg. Nothing is dialed until Connect.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("invalid config: nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{cfg: cfg, ctx: ctx, cancel: cancel}
	c.logger = logger.With(zap.String("source", c.Name()))
	return c, nil
}

// Name identifies the endpoint in logs and failover metrics.
func (c *Client) Name() string {
	if c.cfg.Name == "" {
		return PrimarySource
	}
	return c.cfg.Name
}

// maxRecvMsgSize accommodates full blocks at high-activity slots.
const maxRecvMsgSize = 1 << 30

func (c *Client) dialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
		grpc.WithPerRPCCredentials(xToken(c.cfg.APIKey)),
	}
}

// Connect dials the endpoint over TLS. It must be called before Subscribe
// and may be called again after Close.
func (c *Client) Connect() error {
	if c.ctx.Err() != nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	conn, err := grpc.DialContext(c.ctx, c.cfg.Endpoint, c.dialOptions()...) //nolint:staticcheck // DialContext remains viable for gRPC 1.x
	if err != nil {
		return fmt.Errorf("dial geyser %s: %w", c.Name(), err)
	}
	c.conn = conn
	c.client = pb.NewGeyserClient(conn)
	return nil
}

// Subscribe streams updates from startSlot until Close. Reconnects resume
// ReplaySlotWindow slots behind the highest slot seen; stream failures are
// reported on the error channel without stopping the loop.
func (c *Client) Subscribe(startSlot uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
	updates := make(chan *pb.SubscribeUpdate, 100)
	errs := make(chan error, 1)
	ctx, gc := c.ctx, c.client

	go func() {
		defer close(updates)
		defer close(errs)

		highest := startSlot
		for ctx.Err() == nil {
			from := replayFrom(highest)
			c.logger.Info("starting geyser subscription", zap.Uint64("slot", highest), zap.Uint64("replay_from", from))

			seen, err := c.session(ctx, gc, from, updates)
			if seen > highest {
				highest = seen
			}
			if err != nil {
				c.logger.Warn("geyser session ended", zap.Uint64("slot", highest), zap.Error(err))
				select {
				case errs <- err:
				case <-ctx.Done():
					return
				}
			} else {
				c.logger.Info("stream closed by server, reconnecting", zap.Uint64("slot", highest))
			}

			select {
			case <-ctx.Done():
			case <-time.After(ReconnectBackoff):
			}
		}
	}()

	return updates, errs
}

// replayFrom backs slot off by ReplaySlotWindow without wrapping.
func replayFrom(slot uint64) uint64 {
	if slot > ReplaySlotWindow {
		return slot - ReplaySlotWindow
	}
	return slot
}

// session runs one subscription stream and returns the highest slot it
// forwarded. A nil error means the server closed the stream or ctx ended.
func (c *Client) session(ctx context.Context, gc pb.GeyserClient, from uint64, updates chan<- *pb.SubscribeUpdate) (uint64, error) {
	stream, err := gc.Subscribe(ctx)
	if err != nil {
		return 0, fmt.Errorf("subscribe failed: %w", err)
	}
	if err := stream.Send(c.buildSubscribeRequest(from)); err != nil {
		return 0, fmt.Errorf("send request failed: %w", err)
	}

	var highest uint64
	for {
		update, err := stream.Recv()
		switch {
		case err == io.EOF:
			return highest, nil
		case ctx.Err() != nil:
			return highest, nil
		case err != nil:
			return highest, fmt.Errorf("stream recv failed: %w", err)
		}

		if slot := extractSlotFromUpdate(update); slot > highest {
			highest = slot
		}

		select {
		case updates <- update:
		case <-ctx.Done():
			return highest, nil
		}
	}
}

// buildSubscribeRequest subscribes to non-vote transactions mentioning any
// configured program, plus block meta and slot status updates. Replay only
// applies when startSlot is non-zero.
func (c *Client) buildSubscribeRequest(startSlot uint64) *pb.SubscribeRequest {
	programIDs := make([]string, 0, len(c.cfg.ProgramFilters))
	for _, id := range c.cfg.ProgramFilters {
		programIDs = append(programIDs, id)
	}
	sort.Strings(programIDs)

	vote := false
	commitment := pb.CommitmentLevel_CONFIRMED

	req := &pb.SubscribeRequest{
		Slots: map[string]*pb.SubscribeRequestFilterSlots{
			"client": {},
		},
		Accounts: map[string]*pb.SubscribeRequestFilterAccounts{},
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			"programs": {
				Vote:           &vote,
				AccountInclude: programIDs,
			},
		},
		TransactionsStatus: map[string]*pb.SubscribeRequestFilterTransactions{},
		Entry:              map[string]*pb.SubscribeRequestFilterEntry{},
		Blocks:             map[string]*pb.SubscribeRequestFilterBlocks{},
		BlocksMeta: map[string]*pb.SubscribeRequestFilterBlocksMeta{
			"client": {},
		},
		AccountsDataSlice: []*pb.SubscribeRequestAccountsDataSlice{},
		Commitment:        &commitment,
	}
	if startSlot > 0 {
		req.FromSlot = &startSlot
	}
	return req
}

// extractSlotFromUpdate returns 0 for updates that carry no slot.
func extractSlotFromUpdate(update *pb.SubscribeUpdate) uint64 {
	switch u := update.GetUpdateOneof().(type) {
	case *pb.SubscribeUpdate_Slot:
		return u.Slot.GetSlot()
	case *pb.SubscribeUpdate_Account:
		return u.Account.GetSlot()
	case *pb.SubscribeUpdate_Transaction:
		return u.Transaction.GetSlot()
	case *pb.SubscribeUpdate_Block:
		return u.Block.GetSlot()
	case *pb.SubscribeUpdate_BlockMeta:
		return u.BlockMeta.GetSlot()
	default:
		return 0
	}
}

// Close stops Subscribe and releases the connection.
func (c *Client) Close() error {
	c.cancel()
	conn := c.conn
	c.conn = nil
	if conn == nil {
		return nil
	}
	return conn.Close()
}
